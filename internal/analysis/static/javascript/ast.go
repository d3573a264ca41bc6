// Filename: javascript/ast.go
// Parsing and the scope model: binding registration, reference site
// enumeration, and scope chain lookups over the Tree-sitter AST.
package javascript

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// ParseMode selects how the source is treated. Tree-sitter's JavaScript
// grammar parses both modes with the same rules, so the mode never fails a
// parse by itself; it is recorded on the result and seeds the module-export
// scan of the global index.
type ParseMode int

const (
	ModeScript ParseMode = iota
	ModeModule
)

func (m ParseMode) String() string {
	if m == ModeModule {
		return "module"
	}
	return "script"
}

// ParseSource parses raw JavaScript into a tree. The caller owns the tree
// and must Close it.
func ParseSource(ctx context.Context, source []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	return tree, nil
}

// NodeKey identifies a node by its byte span. Tree-sitter node handles are
// not stable map keys, so every map in the analyzer is keyed this way.
type NodeKey struct {
	Start uint32
	End   uint32
}

func keyOf(n *sitter.Node) NodeKey {
	return NodeKey{Start: n.StartByte(), End: n.EndByte()}
}

// BindingKind classifies how a name was introduced into its scope.
type BindingKind int

const (
	BindVar BindingKind = iota
	BindLet
	BindConst
	BindParam
	BindFunction
	BindClass
	BindImport
	BindCatch
)

// Binding is one declared name in one scope, plus everything the resolver
// needs to chase it: its initializer, later assignments, reference sites,
// and (for parameters) the owning function and position.
type Binding struct {
	Name  string
	Kind  BindingKind
	Scope *Scope

	// Decl is the identifier node at the declaration site.
	Decl *sitter.Node
	// Init is the initializer expression, when the declaration had one.
	Init *sitter.Node
	// FuncNode is set when the bound value is a function literal.
	FuncNode *sitter.Node

	// ParamIndex is the logical parameter position for BindParam bindings,
	// -1 otherwise. Owner is the function the parameter belongs to.
	ParamIndex int
	Owner      *sitter.Node

	// Refs are identifier nodes that reference this binding (declaration
	// sites excluded). Assignments are the right-hand sides of later
	// `name = expr` writes.
	Refs        []*sitter.Node
	Assignments []*sitter.Node
}

// IsConstLike reports whether the binding is never reassigned after its
// initializer.
func (b *Binding) IsConstLike() bool {
	return len(b.Assignments) == 0
}

// Scope is one lexical scope. Function scopes host `var` hoisting; block
// scopes only hold let/const/catch bindings.
type Scope struct {
	Node       *sitter.Node
	Parent     *Scope
	IsFunction bool
	Bindings   map[string]*Binding
}

func (s *Scope) functionScope() *Scope {
	cur := s
	for cur != nil && !cur.IsFunction {
		cur = cur.Parent
	}
	if cur == nil {
		return s
	}
	return cur
}

// ScopeModel holds the full scope tree for one parsed file.
type ScopeModel struct {
	source []byte
	Root   *Scope

	byNode    map[NodeKey]*Scope
	declSites map[NodeKey]*Binding
}

// BuildScopeModel walks the program once, creating scopes and bindings, then
// walks again attributing every identifier reference and assignment to its
// binding.
func BuildScopeModel(root *sitter.Node, source []byte) *ScopeModel {
	m := &ScopeModel{
		source:    source,
		byNode:    make(map[NodeKey]*Scope),
		declSites: make(map[NodeKey]*Binding),
	}
	m.Root = &Scope{Node: root, IsFunction: true, Bindings: make(map[string]*Binding)}
	m.byNode[keyOf(root)] = m.Root

	b := &scopeBuilder{src: source, model: m}
	b.walk(root, m.Root)
	b.collectRefs(root, m.Root)
	return m
}

// ScopeFor returns the innermost scope containing the node.
func (m *ScopeModel) ScopeFor(n *sitter.Node) *Scope {
	for cur := n; cur != nil; cur = cur.Parent() {
		if s, ok := m.byNode[keyOf(cur)]; ok {
			return s
		}
	}
	return m.Root
}

// Lookup resolves a name from the scope containing `at` outward. Returns nil
// for unbound identifiers (candidates for the global index).
func (m *ScopeModel) Lookup(name string, at *sitter.Node) *Binding {
	for s := m.ScopeFor(at); s != nil; s = s.Parent {
		if bind, ok := s.Bindings[name]; ok {
			return bind
		}
	}
	return nil
}

// BindingAt returns the binding an identifier node refers to: its own
// binding at a declaration site, otherwise the name resolved through the
// scope chain. Nil means unbound.
func (m *ScopeModel) BindingAt(n *sitter.Node) *Binding {
	if b, ok := m.declSites[keyOf(n)]; ok {
		return b
	}
	if n != nil && n.Type() == "identifier" {
		return m.Lookup(n.Content(m.source), n)
	}
	return nil
}

// EnclosingFunction returns the nearest function-valued ancestor, or nil at
// the top level.
func EnclosingFunction(n *sitter.Node) *sitter.Node {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		if isFunctionNode(cur) {
			return cur
		}
	}
	return nil
}

// FunctionName derives a display name for a function node: declared name,
// bound variable, owning property, or "".
func FunctionName(fn *sitter.Node, source []byte) string {
	if fn == nil {
		return ""
	}
	if name := fn.ChildByFieldName("name"); name != nil {
		return name.Content(source)
	}
	parent := fn.Parent()
	if parent == nil {
		return ""
	}
	switch parent.Type() {
	case "variable_declarator":
		if name := parent.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			return name.Content(source)
		}
	case "pair":
		if key := parent.ChildByFieldName("key"); key != nil {
			return strings.Trim(key.Content(source), "\"'`")
		}
	case "assignment_expression":
		if left := parent.ChildByFieldName("left"); left != nil {
			if path := flattenPropertyAccess(left, source); path != nil {
				return strings.Join(path, ".")
			}
		}
	case "method_definition":
		if name := parent.ChildByFieldName("name"); name != nil {
			return name.Content(source)
		}
	}
	return ""
}

func isFunctionNode(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "function", "function_expression", "function_declaration",
		"generator_function", "generator_function_declaration",
		"arrow_function", "method_definition":
		return true
	}
	return false
}

// functionBody returns the body of a function node, tolerating arrow
// functions whose body is a bare expression.
func functionBody(fn *sitter.Node) *sitter.Node {
	if fn == nil {
		return nil
	}
	return fn.ChildByFieldName("body")
}

// -- scope construction --

type scopeBuilder struct {
	src   []byte
	model *ScopeModel
}

func (b *scopeBuilder) newScope(n *sitter.Node, parent *Scope, isFunc bool) *Scope {
	s := &Scope{Node: n, Parent: parent, IsFunction: isFunc, Bindings: make(map[string]*Binding)}
	b.model.byNode[keyOf(n)] = s
	return s
}

func (b *scopeBuilder) declare(s *Scope, ident *sitter.Node, kind BindingKind, init, funcNode *sitter.Node) *Binding {
	name := ident.Content(b.src)
	bind := &Binding{
		Name:       name,
		Kind:       kind,
		Scope:      s,
		Decl:       ident,
		Init:       init,
		FuncNode:   funcNode,
		ParamIndex: -1,
	}
	// First declaration wins; re-declarations of the same name keep the
	// original binding so its reference list stays whole.
	if _, exists := s.Bindings[name]; !exists {
		s.Bindings[name] = bind
	} else {
		bind = s.Bindings[name]
	}
	b.model.declSites[keyOf(ident)] = bind
	return bind
}

func (b *scopeBuilder) walk(n *sitter.Node, cur *Scope) {
	if n == nil || n.IsNull() {
		return
	}

	next := cur
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			bind := b.declare(cur.functionScope(), name, BindFunction, n, n)
			bind.FuncNode = n
		}
		next = b.newScope(n, cur, true)
		b.declareParams(n, next)

	case "function", "function_expression", "generator_function", "arrow_function":
		next = b.newScope(n, cur, true)
		// A named function expression binds its own name inside itself.
		if name := n.ChildByFieldName("name"); name != nil {
			b.declare(next, name, BindFunction, n, n)
		}
		b.declareParams(n, next)

	case "method_definition":
		next = b.newScope(n, cur, true)
		b.declareParams(n, next)

	case "class_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			b.declare(cur, name, BindClass, n, nil)
		}

	case "statement_block", "for_statement", "for_in_statement", "while_statement", "do_statement":
		next = b.newScope(n, cur, false)

	case "catch_clause":
		next = b.newScope(n, cur, false)
		if param := n.ChildByFieldName("parameter"); param != nil {
			b.declarePattern(next, param, BindCatch, nil, -1, nil)
		}

	case "variable_declaration":
		b.declareDeclarators(n, cur.functionScope(), BindVar)

	case "lexical_declaration":
		kind := BindLet
		if n.ChildCount() > 0 && n.Child(0).Type() == "const" {
			kind = BindConst
		}
		b.declareDeclarators(n, cur, kind)

	case "import_statement":
		b.declareImports(n)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		b.walk(n.Child(i), next)
	}
}

func (b *scopeBuilder) declareDeclarators(decl *sitter.Node, target *Scope, kind BindingKind) {
	for i := 0; i < int(decl.ChildCount()); i++ {
		child := decl.Child(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		name := child.ChildByFieldName("name")
		value := child.ChildByFieldName("value")
		if name == nil {
			continue
		}
		b.declarePattern(target, name, kind, value, -1, nil)
	}
}

// declarePattern registers every identifier inside a binding pattern.
// Plain identifiers keep the initializer; destructured members drop it (the
// resolver re-derives member values from the shape helpers instead).
func (b *scopeBuilder) declarePattern(s *Scope, pattern *sitter.Node, kind BindingKind, init *sitter.Node, paramIndex int, owner *sitter.Node) {
	if pattern == nil {
		return
	}

	switch pattern.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		var funcNode *sitter.Node
		if init != nil && isFunctionNode(init) {
			funcNode = init
		}
		bind := b.declare(s, pattern, kind, init, funcNode)
		if paramIndex >= 0 {
			bind.ParamIndex = paramIndex
			bind.Owner = owner
		}

	case "object_pattern":
		for i := 0; i < int(pattern.ChildCount()); i++ {
			child := pattern.Child(i)
			switch child.Type() {
			case "shorthand_property_identifier_pattern":
				b.declarePattern(s, child, kind, nil, paramIndex, owner)
			case "pair_pattern":
				b.declarePattern(s, child.ChildByFieldName("value"), kind, nil, paramIndex, owner)
			case "rest_pattern", "rest_parameter", "assignment_pattern":
				b.declarePattern(s, child, kind, nil, paramIndex, owner)
			}
		}

	case "array_pattern":
		for i := 0; i < int(pattern.ChildCount()); i++ {
			child := pattern.Child(i)
			if t := child.Type(); t == "[" || t == "]" || t == "," {
				continue
			}
			b.declarePattern(s, pattern.Child(i), kind, nil, paramIndex, owner)
		}

	case "assignment_pattern":
		b.declarePattern(s, pattern.ChildByFieldName("left"), kind, nil, paramIndex, owner)

	case "rest_pattern", "rest_parameter":
		arg := pattern.ChildByFieldName("argument")
		if arg == nil && pattern.ChildCount() > 1 {
			arg = pattern.Child(1)
		}
		b.declarePattern(s, arg, kind, nil, paramIndex, owner)
	}
}

// declareParams registers function parameters, tolerating the grammar's
// formal_parameters/parameters/parameter variations.
func (b *scopeBuilder) declareParams(fn *sitter.Node, s *Scope) {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		params = fn.ChildByFieldName("formal_parameters")
	}
	if params == nil {
		// Paren-free arrow parameter: x => x
		if fn.Type() == "arrow_function" {
			if p := fn.ChildByFieldName("parameter"); p != nil {
				b.declarePattern(s, p, BindParam, nil, 0, fn)
			}
		}
		return
	}

	logical := 0
	for i := 0; i < int(params.ChildCount()); i++ {
		param := params.Child(i)
		switch param.Type() {
		case "identifier", "rest_parameter", "rest_pattern", "object_pattern", "array_pattern", "assignment_pattern":
			b.declarePattern(s, param, BindParam, nil, logical, fn)
			logical++
		}
	}
}

func (b *scopeBuilder) declareImports(stmt *sitter.Node) {
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "identifier":
			b.declare(b.model.Root, n, BindImport, nil, nil)
			return
		case "string":
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	if clause := stmt.ChildByFieldName("import"); clause != nil {
		visit(clause)
		return
	}
	for i := 0; i < int(stmt.ChildCount()); i++ {
		child := stmt.Child(i)
		if child.Type() == "import_clause" {
			visit(child)
		}
	}
}

// -- reference collection --

func (b *scopeBuilder) collectRefs(n *sitter.Node, cur *Scope) {
	if n == nil || n.IsNull() {
		return
	}

	if s, ok := b.model.byNode[keyOf(n)]; ok {
		cur = s
	}

	switch n.Type() {
	case "identifier", "shorthand_property_identifier":
		if _, isDecl := b.model.declSites[keyOf(n)]; isDecl {
			break
		}
		if isPropertyPosition(n) {
			break
		}
		name := n.Content(b.src)
		for s := cur; s != nil; s = s.Parent {
			if bind, ok := s.Bindings[name]; ok {
				bind.Refs = append(bind.Refs, n)
				break
			}
		}

	case "assignment_expression":
		left := n.ChildByFieldName("left")
		right := n.ChildByFieldName("right")
		if left != nil && right != nil && left.Type() == "identifier" {
			name := left.Content(b.src)
			for s := cur; s != nil; s = s.Parent {
				if bind, ok := s.Bindings[name]; ok {
					bind.Assignments = append(bind.Assignments, right)
					break
				}
			}
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		b.collectRefs(n.Child(i), cur)
	}
}

// isPropertyPosition reports whether the identifier names a property rather
// than referencing a binding (obj.x, {x: ...} keys).
func isPropertyPosition(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "member_expression":
		prop := parent.ChildByFieldName("property")
		return prop != nil && keyOf(prop) == keyOf(n)
	case "pair":
		key := parent.ChildByFieldName("key")
		return key != nil && keyOf(key) == keyOf(n)
	}
	return false
}
