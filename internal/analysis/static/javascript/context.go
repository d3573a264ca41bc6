// Filename: javascript/context.go
// Per-run analysis state. One AnalysisContext is constructed for every
// Analyze call and discarded with it; nothing here outlives a single file.
package javascript

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"
)

// Hard caps that bound worst-case cost on adversarial or minified input.
const (
	// maxValueSet bounds the size of any resolved value set.
	maxValueSet = 20
	// maxSoftErrors bounds the resolver error log per file.
	maxSoftErrors = 100
	// maxResolveDepth aborts pathological resolution chains.
	maxResolveDepth = 24
	// maxAssignmentUnion bounds how many write sites a mutated variable may
	// have before the resolver gives up on unioning them.
	maxAssignmentUnion = 6
	// maxProbedArgs bounds positional probing in sink argument matching.
	maxProbedArgs = 5
	// maxCallerSites bounds how many call sites the tracer inspects per
	// route.
	maxCallerSites = 25
)

// ResolutionKind tags what question is being asked about a node, so two
// different questions about the same node never collide in the cycle guard.
type ResolutionKind uint8

const (
	ResolveScalars ResolutionKind = iota
	ResolveObject
	ResolveArray
	ResolveCallers
	ResolveTaint
)

// ResolutionKey identifies one in-flight resolution for cycle avoidance.
type ResolutionKey struct {
	Kind  ResolutionKind
	Start uint32
	End   uint32
}

// ResolverError is a soft failure recorded during resolution. Soft errors
// never abort the file; they ride along on the result for triage.
type ResolverError struct {
	Context string `json:"context"`
	Detail  string `json:"detail"`
	Line    int    `json:"line"`
}

type globalCallKey struct {
	Global string
	Method string
}

type typeKey struct {
	Scope NodeKey
	Name  string
}

// AnalysisContext carries everything a single analysis run accumulates:
// the scope model, the global-binding index, the resolver's cycle guard and
// soft-error log, and the small per-run caches. It replaces what the
// original design kept in process globals, so a long-lived worker never
// leaks state between files.
type AnalysisContext struct {
	logger *zap.Logger
	source []byte

	Root    *sitter.Node
	Scopes  *ScopeModel
	Globals *GlobalIndex

	inProgress map[ResolutionKey]struct{}
	errors     []ResolverError
	dropped    int

	// globalCallers caches discovered call sites per (global, method) pair.
	globalCallers map[globalCallKey][]*sitter.Node

	// constraints maps a parameter/variable name to the literal values the
	// script elsewhere proves valid for it.
	constraints map[string][]string

	// varTypes records coarse type tags per (scope, name), used only to
	// suppress false taint inferences.
	varTypes map[typeKey]string

	// taintMemo caches taint classifications per node.
	taintMemo map[NodeKey]TaintClass
}

// NewAnalysisContext builds the run state for one source file. The scope
// model and global index are populated by the analyzer's pre-passes.
func NewAnalysisContext(logger *zap.Logger, source []byte) *AnalysisContext {
	return &AnalysisContext{
		logger:        logger.Named("resolver"),
		source:        source,
		inProgress:    make(map[ResolutionKey]struct{}),
		globalCallers: make(map[globalCallKey][]*sitter.Node),
		constraints:   make(map[string][]string),
		varTypes:      make(map[typeKey]string),
		taintMemo:     make(map[NodeKey]TaintClass),
	}
}

// enter marks a (kind, node) resolution as in flight. It returns false when
// the same question about the same node is already being answered, which is
// exactly the cycle case.
func (ac *AnalysisContext) enter(kind ResolutionKind, n *sitter.Node) bool {
	key := ResolutionKey{Kind: kind, Start: n.StartByte(), End: n.EndByte()}
	if _, busy := ac.inProgress[key]; busy {
		return false
	}
	ac.inProgress[key] = struct{}{}
	return true
}

func (ac *AnalysisContext) leave(kind ResolutionKind, n *sitter.Node) {
	delete(ac.inProgress, ResolutionKey{Kind: kind, Start: n.StartByte(), End: n.EndByte()})
}

// softError records a bounded, non-fatal resolution failure.
func (ac *AnalysisContext) softError(context string, n *sitter.Node, format string, args ...interface{}) {
	if len(ac.errors) >= maxSoftErrors {
		ac.dropped++
		return
	}
	line := 0
	if n != nil {
		line = int(n.StartPoint().Row) + 1
	}
	err := ResolverError{
		Context: context,
		Detail:  fmt.Sprintf(format, args...),
		Line:    line,
	}
	ac.errors = append(ac.errors, err)
	ac.logger.Debug("Soft resolution failure",
		zap.String("context", err.Context),
		zap.String("detail", err.Detail),
		zap.Int("line", err.Line),
	)
}

// Errors returns the soft errors recorded so far.
func (ac *AnalysisContext) Errors() []ResolverError {
	return ac.errors
}

// SetVarType records a coarse type tag for a variable in a scope.
func (ac *AnalysisContext) SetVarType(scope *Scope, name, tag string) {
	if scope == nil || name == "" || tag == "" {
		return
	}
	ac.varTypes[typeKey{Scope: keyOf(scope.Node), Name: name}] = tag
}

// VarType looks up the coarse type tag of a name, walking the scope chain.
func (ac *AnalysisContext) VarType(scope *Scope, name string) string {
	for s := scope; s != nil; s = s.Parent {
		if tag, ok := ac.varTypes[typeKey{Scope: keyOf(s.Node), Name: name}]; ok {
			return tag
		}
	}
	return ""
}

// AddConstraint records literal values a script proves valid for a name.
func (ac *AnalysisContext) AddConstraint(name string, values []string) {
	if name == "" || len(values) == 0 {
		return
	}
	existing := ac.constraints[name]
	for _, v := range values {
		found := false
		for _, e := range existing {
			if e == v {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, v)
		}
	}
	ac.constraints[name] = existing
}

// ConstraintFor returns mined valid values for a parameter name, if any.
func (ac *AnalysisContext) ConstraintFor(name string) []string {
	return ac.constraints[name]
}
