// Filename: javascript/findings.go
// Security sink scanning. Walks the tree matching sink shapes, classifies
// the flowing value, and emits findings only for user-controlled data;
// dynamic assignment is pervasive in minified code and flagging it would
// drown the signal.
package javascript

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// SecurityFinding is one taint flow into a recognized sink.
type SecurityFinding struct {
	Type        string       `json:"type"`
	Sink        string       `json:"sink"`
	Severity    Severity     `json:"severity"`
	TaintSource TaintSource  `json:"taintSource"`
	Sanitized   bool         `json:"sanitized"`
	Location    LocationInfo `json:"location"`
}

// DangerousPattern is a structural hazard that is not a point taint flow:
// missing postMessage origin checks, passthrough Trusted Types policies.
type DangerousPattern struct {
	Pattern  string       `json:"pattern"`
	Detail   string       `json:"detail"`
	Severity Severity     `json:"severity"`
	Location LocationInfo `json:"location"`
}

type messageHandler struct {
	fn        *sitter.Node
	startLine int
	endLine   int
	origin    originCheck
}

type originCheck int

const (
	originNone originCheck = iota
	originWeak
	originStrong
)

// scanSecurity runs the full security pass over the file.
func (ta *taintAnalyzer) scanSecurity(fileName string) ([]SecurityFinding, []DangerousPattern) {
	var findings []SecurityFinding
	var patterns []DangerousPattern
	var handlers []*messageHandler

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "assignment_expression":
			if f, ok := ta.checkAssignmentSink(n, fileName); ok {
				findings = append(findings, f)
			}
		case "call_expression":
			if f, ok := ta.checkCallSink(n, fileName); ok {
				findings = append(findings, f)
			}
			if h := ta.checkMessageHandler(n); h != nil {
				handlers = append(handlers, h)
			}
			if p, ok := ta.checkTrustedTypesPolicy(n, fileName); ok {
				patterns = append(patterns, p)
			}
		case "new_expression":
			if f, ok := ta.checkConstructorSink(n, fileName); ok {
				findings = append(findings, f)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(ta.ctx.Root)

	patterns = append(patterns, ta.handlerPatterns(handlers, findings, fileName)...)
	return findings, patterns
}

func (ta *taintAnalyzer) checkAssignmentSink(n *sitter.Node, fileName string) (SecurityFinding, bool) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil {
		return SecurityFinding{}, false
	}
	path := flattenPropertyAccess(left, ta.ctx.source)
	if len(path) == 0 {
		// Call-expression receivers (getElementById(...).innerHTML) defeat
		// flattening; the bare property name still identifies the sink.
		if name := memberPropertyName(left, ta.ctx.source); name != "" {
			path = []string{name}
		}
	}
	def, ok := assignmentSinkFor(path)
	if !ok {
		return SecurityFinding{}, false
	}
	tc := ta.traceValueSource(right, 0)
	if tc.Kind != TaintUserControlled {
		return SecurityFinding{}, false
	}
	return SecurityFinding{
		Type:        string(def.Type),
		Sink:        def.Name,
		Severity:    def.Severity,
		TaintSource: tc.Label,
		Sanitized:   ta.isSinkSanitized(n),
		Location:    FormatLocation(fileName, n, ta.ctx.source),
	}, true
}

func (ta *taintAnalyzer) checkCallSink(n *sitter.Node, fileName string) (SecurityFinding, bool) {
	callee := unwrapParens(n.ChildByFieldName("function"))
	if callee == nil {
		return SecurityFinding{}, false
	}
	path := flattenPropertyAccess(callee, ta.ctx.source)
	if len(path) == 0 {
		if name := memberPropertyName(callee, ta.ctx.source); name != "" {
			path = []string{name}
		}
	}
	args := callArguments(n)

	def, ok := callSinkFor(path)
	if !ok && len(path) > 0 && path[len(path)-1] == "setAttribute" {
		def, ok = ta.attributeSink(args)
	}
	if !ok {
		return SecurityFinding{}, false
	}
	// Dynamic-key object writes only matter when the key itself flows.
	worst := literalClass()
	for _, idx := range def.TaintedArgs {
		if idx < len(args) {
			worst = mergeTaint(worst, ta.traceValueSource(args[idx], 0))
		}
	}
	if worst.Kind != TaintUserControlled {
		return SecurityFinding{}, false
	}
	return SecurityFinding{
		Type:        string(def.Type),
		Sink:        def.Name,
		Severity:    def.Severity,
		TaintSource: worst.Label,
		Sanitized:   ta.isSinkSanitized(n),
		Location:    FormatLocation(fileName, n, ta.ctx.source),
	}, true
}

// attributeSink matches setAttribute calls whose first argument is a
// dangerous attribute name, including inline event handlers.
func (ta *taintAnalyzer) attributeSink(args []*sitter.Node) (SinkDefinition, bool) {
	if len(args) < 2 {
		return SinkDefinition{}, false
	}
	name := strings.ToLower(stringLiteralValue(args[0], ta.ctx.source))
	if name == "" {
		return SinkDefinition{}, false
	}
	if def, ok := attributeSinkNames[name]; ok {
		return def, true
	}
	if strings.HasPrefix(name, "on") {
		return SinkDefinition{
			Name:        "setAttribute(" + name + ")",
			Type:        SinkTypeExecution,
			Severity:    SeverityHigh,
			TaintedArgs: []int{1},
		}, true
	}
	return SinkDefinition{}, false
}

func (ta *taintAnalyzer) checkConstructorSink(n *sitter.Node, fileName string) (SecurityFinding, bool) {
	ctor := n.ChildByFieldName("constructor")
	if ctor == nil && n.ChildCount() > 1 {
		ctor = n.Child(1)
	}
	if ctor == nil || ctor.Type() != "identifier" {
		return SecurityFinding{}, false
	}
	name := ctor.Content(ta.ctx.source)
	def, ok := callSinks[name]
	if !ok {
		return SecurityFinding{}, false
	}
	args := callArguments(n)
	worst := literalClass()
	for _, idx := range def.TaintedArgs {
		if idx < len(args) {
			worst = mergeTaint(worst, ta.traceValueSource(args[idx], 0))
		}
	}
	if worst.Kind != TaintUserControlled {
		return SecurityFinding{}, false
	}
	sink := "new " + name
	return SecurityFinding{
		Type:        string(def.Type),
		Sink:        sink,
		Severity:    def.Severity,
		TaintSource: worst.Label,
		Sanitized:   ta.isSinkSanitized(n),
		Location:    FormatLocation(fileName, n, ta.ctx.source),
	}, true
}

// checkMessageHandler records addEventListener("message", fn) handlers and
// classifies the strength of their origin validation.
func (ta *taintAnalyzer) checkMessageHandler(call *sitter.Node) *messageHandler {
	callee := unwrapParens(call.ChildByFieldName("function"))
	if callee == nil {
		return nil
	}
	path := flattenPropertyAccess(callee, ta.ctx.source)
	if len(path) == 0 || path[len(path)-1] != "addEventListener" {
		return nil
	}
	args := callArguments(call)
	if len(args) < 2 || stringLiteralValue(args[0], ta.ctx.source) != "message" {
		return nil
	}
	fn := unwrapParens(args[1])
	if fn == nil || !isFunctionNode(fn) {
		return nil
	}
	return &messageHandler{
		fn:        fn,
		startLine: int(fn.StartPoint().Row) + 1,
		endLine:   int(fn.EndPoint().Row) + 1,
		origin:    ta.classifyOriginCheck(fn),
	}
}

// classifyOriginCheck grades origin validation inside a message handler:
// exact equality against a literal is strong, substring or prefix matching
// is weak, anything else is absent.
func (ta *taintAnalyzer) classifyOriginCheck(fn *sitter.Node) originCheck {
	src := ta.ctx.source
	result := originNone
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || result == originStrong {
			return
		}
		switch n.Type() {
		case "binary_expression":
			op := operatorOf(n, src)
			if op == "===" || op == "==" || op == "!==" || op == "!=" {
				left := n.ChildByFieldName("left")
				right := n.ChildByFieldName("right")
				if ta.mentionsOrigin(left) && isStringLiteral(right) ||
					ta.mentionsOrigin(right) && isStringLiteral(left) {
					result = originStrong
					return
				}
			}
		case "call_expression":
			callee := n.ChildByFieldName("function")
			if callee != nil && callee.Type() == "member_expression" {
				obj := callee.ChildByFieldName("object")
				prop := callee.ChildByFieldName("property")
				if prop != nil && ta.mentionsOrigin(obj) {
					switch prop.Content(src) {
					case "indexOf", "includes", "startsWith", "endsWith", "match", "test", "search":
						if result < originWeak {
							result = originWeak
						}
					}
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(functionBody(fn))
	return result
}

func (ta *taintAnalyzer) mentionsOrigin(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	path := flattenPropertyAccess(n, ta.ctx.source)
	return len(path) > 0 && path[len(path)-1] == "origin"
}

func isStringLiteral(n *sitter.Node) bool {
	return n != nil && (n.Type() == "string" || n.Type() == "template_string")
}

// handlerPatterns emits origin-check findings for message handlers and
// upgrades their severity when a high-confidence sink fired inside the
// handler's line range.
func (ta *taintAnalyzer) handlerPatterns(handlers []*messageHandler, findings []SecurityFinding, fileName string) []DangerousPattern {
	var out []DangerousPattern
	for _, h := range handlers {
		if h.origin == originStrong {
			continue
		}
		p := DangerousPattern{
			Pattern:  "postMessage handler without origin validation",
			Detail:   "handler processes event data with no origin check",
			Severity: SeverityMedium,
			Location: FormatLocation(fileName, h.fn, ta.ctx.source),
		}
		if h.origin == originWeak {
			p.Pattern = "postMessage handler with weak origin validation"
			p.Detail = "origin is matched by substring or prefix, which a lookalike domain can satisfy"
			p.Severity = SeverityLow
		}
		for _, f := range findings {
			if f.Location.Line >= h.startLine && f.Location.Line <= h.endLine &&
				(f.Severity == SeverityHigh || f.Severity == SeverityCritical) {
				p.Severity = SeverityHigh
				p.Detail += "; a high-confidence sink fires inside this handler"
				break
			}
		}
		out = append(out, p)
	}
	return out
}

// checkTrustedTypesPolicy flags createPolicy definitions whose createHTML
// (or sibling hooks) pass their input through unchanged, which defeats the
// point of Trusted Types.
func (ta *taintAnalyzer) checkTrustedTypesPolicy(call *sitter.Node, fileName string) (DangerousPattern, bool) {
	callee := unwrapParens(call.ChildByFieldName("function"))
	if callee == nil {
		return DangerousPattern{}, false
	}
	path := flattenPropertyAccess(callee, ta.ctx.source)
	if len(path) == 0 || path[len(path)-1] != "createPolicy" {
		return DangerousPattern{}, false
	}
	args := callArguments(call)
	if len(args) < 2 {
		return DangerousPattern{}, false
	}
	policy := unwrapParens(args[1])
	if policy == nil || policy.Type() != "object" {
		return DangerousPattern{}, false
	}
	for _, prop := range literalProperties(policy, ta.ctx.source) {
		switch prop.Key {
		case "createHTML", "createScript", "createScriptURL":
			if isIdentityFunction(prop.Value, ta.ctx.source) {
				return DangerousPattern{
					Pattern:  "passthrough Trusted Types policy",
					Detail:   prop.Key + " returns its input unchanged",
					Severity: SeverityMedium,
					Location: FormatLocation(fileName, call, ta.ctx.source),
				}, true
			}
		}
	}
	return DangerousPattern{}, false
}

// isIdentityFunction matches s => s and function(s){ return s; }.
func isIdentityFunction(fn *sitter.Node, source []byte) bool {
	fn = unwrapParens(fn)
	if fn == nil || !isFunctionNode(fn) {
		return false
	}
	params := functionParams(fn)
	if len(params) != 1 {
		return false
	}
	ident := paramIdentifier(params[0])
	if ident == nil {
		return false
	}
	name := ident.Content(source)
	returned := ""
	walkReturns(fn, func(arg *sitter.Node) {
		if returned == "" && arg.Type() == "identifier" {
			returned = arg.Content(source)
		}
	})
	return returned == name
}
