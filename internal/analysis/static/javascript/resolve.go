// Filename: javascript/resolve.go
// The value resolution engine: given an expression node, compute the bounded
// set of concrete string values it can statically take. Rules are tried in
// priority order; every entry point is guarded against cycles through the
// AnalysisContext and aborts with a soft error instead of recursing forever.
package javascript

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// transparentStringMethods are methods whose receiver value passes through
// (approximately) unchanged for discovery purposes.
var transparentStringMethods = map[string]bool{
	"replace":     true,
	"replaceAll":  true,
	"trim":        true,
	"trimStart":   true,
	"trimEnd":     true,
	"toLowerCase": true,
	"toUpperCase": true,
	"toString":    true,
	"valueOf":     true,
	"normalize":   true,
	"slice":       true,
	"substring":   true,
	"substr":      true,
}

type resolver struct {
	ctx    *AnalysisContext
	tracer *callerTracer
}

func newResolver(ctx *AnalysisContext) *resolver {
	r := &resolver{ctx: ctx}
	r.tracer = newCallerTracer(ctx, r)
	return r
}

// Resolve returns every concrete value the expression is known to be able
// to take. Empty means unresolved. Never panics on a well-formed tree.
func (r *resolver) Resolve(n *sitter.Node, depth int) []string {
	if n == nil || n.IsNull() {
		return nil
	}

	// Rule 1/2: literals resolve unconditionally, even past the cycle
	// guard, because a literal can never re-enter resolution.
	switch n.Type() {
	case "string":
		return []string{stringLiteralValue(n, r.ctx.source)}
	case "number":
		return []string{n.Content(r.ctx.source)}
	case "true", "false":
		return []string{n.Type()}
	}

	if depth >= maxResolveDepth {
		r.ctx.softError("resolve", n, "depth limit at %q", snippetOf(n, r.ctx.source))
		return nil
	}
	if !r.ctx.enter(ResolveScalars, n) {
		return nil
	}
	defer r.ctx.leave(ResolveScalars, n)

	switch n.Type() {
	case "template_string":
		return r.resolveTemplate(n, depth)

	case "binary_expression":
		op := operatorOf(n, r.ctx.source)
		switch op {
		case "+":
			return r.resolveConcat(n, depth)
		case "||", "??":
			return r.resolveBranches(n, depth)
		}
		return nil

	case "ternary_expression":
		return r.resolveBranches(n, depth)

	case "parenthesized_expression":
		return r.Resolve(unwrapParens(n), depth+1)

	case "call_expression":
		return r.resolveCall(n, depth)

	case "identifier":
		return r.resolveIdentifier(n, depth)

	case "member_expression":
		return r.resolveMember(n, depth)

	case "subscript_expression":
		return r.resolveSubscript(n, depth)

	case "await_expression", "unary_expression":
		if arg := n.ChildByFieldName("argument"); arg != nil {
			return r.Resolve(arg, depth+1)
		}
		if n.ChildCount() > 1 {
			return r.Resolve(n.Child(1), depth+1)
		}
	}
	return nil
}

// resolveTemplate resolves `a${b}c`. If every interpolation resolves, the
// pieces concatenate positionally; otherwise the template degrades to a
// single string with {name} placeholders.
func (r *resolver) resolveTemplate(n *sitter.Node, depth int) []string {
	src := r.ctx.source

	type piece struct {
		text   string
		values []string
		name   string
	}
	var pieces []piece
	allResolved := true

	// Raw text lives between the substitution spans; reconstruct from byte
	// offsets so grammar variations in fragment node naming don't matter.
	cursor := int(n.StartByte()) + 1 // past the opening backtick
	endLimit := int(n.EndByte()) - 1
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() != "template_substitution" {
			continue
		}
		if start := int(child.StartByte()); start > cursor {
			pieces = append(pieces, piece{text: string(src[cursor:start])})
		}
		cursor = int(child.EndByte())

		expr := child.ChildByFieldName("expression")
		if expr == nil && child.ChildCount() > 1 {
			candidate := child.Child(1)
			if candidate.Type() != "}" {
				expr = candidate
			}
		}
		values := r.Resolve(expr, depth+1)
		name := "expr"
		if expr != nil && expr.Type() == "identifier" {
			name = expr.Content(src)
		}
		if len(values) == 0 {
			allResolved = false
		}
		pieces = append(pieces, piece{values: values, name: name})
	}
	if cursor < endLimit {
		pieces = append(pieces, piece{text: string(src[cursor:endLimit])})
	}

	if !allResolved {
		var sb strings.Builder
		for _, p := range pieces {
			if p.text != "" {
				sb.WriteString(p.text)
			} else {
				sb.WriteString("{" + p.name + "}")
			}
		}
		return []string{sb.String()}
	}

	out := []string{""}
	for _, p := range pieces {
		if p.text != "" {
			out = zipConcat(out, []string{p.text})
			continue
		}
		if len(p.values) > 0 {
			out = zipConcat(out, p.values)
		}
	}
	return out
}

// resolveConcat flattens the left-recursive `a + b + c` spine iteratively
// and zips the resolved term sets positionally, broadcasting the shorter
// side's last value.
func (r *resolver) resolveConcat(n *sitter.Node, depth int) []string {
	var terms []*sitter.Node
	cur := n
	for cur != nil && cur.Type() == "binary_expression" && operatorOf(cur, r.ctx.source) == "+" {
		right := cur.ChildByFieldName("right")
		terms = append([]*sitter.Node{right}, terms...)
		cur = cur.ChildByFieldName("left")
	}
	terms = append([]*sitter.Node{cur}, terms...)

	out := []string{""}
	for _, term := range terms {
		values := r.Resolve(term, depth+1)
		if len(values) == 0 {
			return nil
		}
		out = zipConcat(out, values)
	}
	return out
}

// resolveBranches flattens ternary and ||/?? chains iteratively and unions
// every branch. Deliberately unsound: a value reachable down any branch is
// kept, which maximizes recall for API discovery.
func (r *resolver) resolveBranches(n *sitter.Node, depth int) []string {
	var leaves []*sitter.Node
	work := []*sitter.Node{n}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		if cur == nil {
			continue
		}
		cur = unwrapParens(cur)
		switch {
		case cur != nil && cur.Type() == "ternary_expression":
			work = append(work, cur.ChildByFieldName("consequence"), cur.ChildByFieldName("alternative"))
		case cur != nil && cur.Type() == "binary_expression" &&
			(operatorOf(cur, r.ctx.source) == "||" || operatorOf(cur, r.ctx.source) == "??"):
			work = append(work, cur.ChildByFieldName("left"), cur.ChildByFieldName("right"))
		case cur != nil:
			leaves = append(leaves, cur)
		}
	}

	var out []string
	for _, leaf := range leaves {
		out = appendValues(out, r.Resolve(leaf, depth+1))
	}
	return out
}

// resolveCall resolves through a callee's return statements; failing that,
// through a transparent string method's receiver, or Array#join over a
// resolvable array literal.
func (r *resolver) resolveCall(n *sitter.Node, depth int) []string {
	callee := unwrapParens(n.ChildByFieldName("function"))
	if callee == nil {
		return nil
	}

	// Inter-procedural: find the called function's body and union its
	// return values.
	if fn := r.calleeFunction(callee); fn != nil {
		if values := r.resolveReturns(fn, depth); len(values) > 0 {
			return values
		}
	}

	if callee.Type() == "member_expression" {
		property := callee.ChildByFieldName("property")
		object := callee.ChildByFieldName("object")
		if property == nil || object == nil {
			return nil
		}
		name := property.Content(r.ctx.source)

		if transparentStringMethods[name] {
			return r.Resolve(object, depth+1)
		}

		if name == "join" {
			elems := r.resolveArrayShape(object, depth+1)
			if len(elems) == 0 {
				return nil
			}
			sep := ","
			if args := callArguments(n); len(args) > 0 {
				if sv := r.Resolve(args[0], depth+1); len(sv) == 1 {
					sep = sv[0]
				}
			}
			parts := make([]string, 0, len(elems))
			for _, el := range elems {
				values := r.Resolve(el, depth+1)
				if len(values) == 0 {
					return nil
				}
				parts = append(parts, values[0])
			}
			return []string{strings.Join(parts, sep)}
		}
	}
	return nil
}

// calleeFunction chases a callee expression to a function literal: a bound
// identifier, a global index entry, or an inline function.
func (r *resolver) calleeFunction(callee *sitter.Node) *sitter.Node {
	switch callee.Type() {
	case "identifier":
		name := callee.Content(r.ctx.source)
		if bind := r.ctx.Scopes.Lookup(name, callee); bind != nil {
			if bind.FuncNode != nil {
				return bind.FuncNode
			}
			if bind.Init != nil && isFunctionNode(bind.Init) {
				return bind.Init
			}
			return nil
		}
		if r.ctx.Globals != nil {
			if entry := r.ctx.Globals.Lookup(name); entry != nil && isFunctionNode(unwrapParens(entry.Value)) {
				return unwrapParens(entry.Value)
			}
			if exp := r.ctx.Globals.Export(name); exp != nil && isFunctionNode(unwrapParens(exp)) {
				return unwrapParens(exp)
			}
		}
	case "member_expression":
		if fn := r.methodOnObject(callee); fn != nil {
			return fn
		}
	default:
		if isFunctionNode(callee) {
			return callee
		}
	}
	return nil
}

// methodOnObject finds the function bound at obj.method for an object whose
// literal shape is statically resolvable, or a global alias method.
func (r *resolver) methodOnObject(callee *sitter.Node) *sitter.Node {
	object := callee.ChildByFieldName("object")
	property := callee.ChildByFieldName("property")
	if object == nil || property == nil {
		return nil
	}
	name := property.Content(r.ctx.source)

	if r.ctx.Globals != nil && r.ctx.Globals.IsGlobalObject(object) {
		if entry := r.ctx.Globals.Lookup(name); entry != nil && isFunctionNode(unwrapParens(entry.Value)) {
			return unwrapParens(entry.Value)
		}
		return nil
	}

	shape := r.resolveObjectShape(object, 0)
	for _, prop := range shape {
		if prop.Key == name && isFunctionNode(prop.Value) {
			return prop.Value
		}
	}
	return nil
}

// resolveReturns unions the values of every return statement in a function
// body, without descending into nested functions.
func (r *resolver) resolveReturns(fn *sitter.Node, depth int) []string {
	body := functionBody(fn)
	if body == nil {
		return nil
	}
	// Expression-bodied arrow function.
	if body.Type() != "statement_block" {
		return r.Resolve(body, depth+1)
	}

	var out []string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil || len(out) >= maxValueSet {
			return
		}
		if isFunctionNode(n) {
			return
		}
		if n.Type() == "return_statement" {
			arg := returnArgument(n)
			if arg != nil {
				out = appendValues(out, r.Resolve(arg, depth+1))
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(body)
	return out
}

func returnArgument(ret *sitter.Node) *sitter.Node {
	arg := ret.ChildByFieldName("argument")
	if arg == nil && ret.ChildCount() > 1 && ret.Child(0).Type() == "return" {
		candidate := ret.Child(1)
		if candidate.Type() != ";" {
			arg = candidate
		}
	}
	return arg
}

// resolveIdentifier looks up the binding: constants resolve their
// initializer, parameters delegate to the caller tracer, bounded mutation
// sets union, and unbound names fall back to the global index.
func (r *resolver) resolveIdentifier(n *sitter.Node, depth int) []string {
	name := n.Content(r.ctx.source)
	bind := r.ctx.Scopes.Lookup(name, n)
	if bind == nil {
		if r.ctx.Globals != nil {
			if entry := r.ctx.Globals.Lookup(name); entry != nil {
				return r.Resolve(entry.Value, depth+1)
			}
		}
		return nil
	}

	if bind.Kind == BindParam {
		return r.tracer.ValuesForParameter(bind, "", depth+1)
	}

	if bind.IsConstLike() {
		return r.Resolve(bind.Init, depth+1)
	}

	if len(bind.Assignments) <= maxAssignmentUnion {
		var out []string
		if bind.Init != nil {
			out = appendValues(out, r.Resolve(bind.Init, depth+1))
		}
		for _, rhs := range bind.Assignments {
			if len(out) >= maxValueSet {
				break
			}
			out = appendValues(out, r.Resolve(rhs, depth+1))
		}
		return out
	}

	r.ctx.softError("resolve", n, "identifier %q has %d assignment sites", name, len(bind.Assignments))
	return nil
}

// resolveMember handles non-computed obj.prop access, trying the sub-rules
// in order: this-property tracing, inline object shapes, later mutation
// scans, and parameter delegation with the named property.
func (r *resolver) resolveMember(n *sitter.Node, depth int) []string {
	object := n.ChildByFieldName("object")
	property := n.ChildByFieldName("property")
	if object == nil || property == nil {
		return nil
	}
	propName := property.Content(r.ctx.source)

	if object.Type() == "this" {
		return r.resolveThisProperty(n, propName, depth)
	}

	// Global-object properties: window.API_ROOT.
	if r.ctx.Globals != nil && r.ctx.Globals.IsGlobalObject(object) {
		if entry := r.ctx.Globals.Lookup(propName); entry != nil {
			return r.Resolve(entry.Value, depth+1)
		}
		return nil
	}

	// Inline or chased object shape.
	if shape := r.resolveObjectShape(object, depth+1); shape != nil {
		for _, prop := range shape {
			if prop.Key == propName {
				return r.Resolve(prop.Value, depth+1)
			}
		}
	}

	if object.Type() == "identifier" {
		name := object.Content(r.ctx.source)
		bind := r.ctx.Scopes.Lookup(name, object)
		if bind != nil {
			// Later `obj.prop = value` mutation at a reference site.
			if values := r.mutationValues(bind, propName, depth); len(values) > 0 {
				return values
			}
			if bind.Kind == BindParam {
				return r.tracer.ValuesForParameter(bind, propName, depth+1)
			}
		}
	}
	return nil
}

// mutationValues scans a binding's reference sites for obj.prop = value
// writes and unions the resolved values.
func (r *resolver) mutationValues(bind *Binding, propName string, depth int) []string {
	var out []string
	for _, ref := range bind.Refs {
		parent := ref.Parent()
		if parent == nil || parent.Type() != "member_expression" {
			continue
		}
		prop := parent.ChildByFieldName("property")
		if prop == nil || prop.Content(r.ctx.source) != propName {
			continue
		}
		assign := parent.Parent()
		if assign == nil || assign.Type() != "assignment_expression" {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || keyOf(left) != keyOf(parent) {
			continue
		}
		out = appendValues(out, r.Resolve(assign.ChildByFieldName("right"), depth+1))
		if len(out) >= maxValueSet {
			break
		}
	}
	return out
}

// resolveThisProperty traces this.prop inside object-literal methods and
// constructor/prototype/class methods, walking this.prop = param writes back
// to new Ctor(...) call sites.
func (r *resolver) resolveThisProperty(n *sitter.Node, propName string, depth int) []string {
	fn := EnclosingFunction(n)
	if fn == nil {
		return nil
	}

	// Method in an object literal: read the sibling property.
	if owner := objectLiteralOwner(fn); owner != nil {
		for _, prop := range literalProperties(owner, r.ctx.source) {
			if prop.Key == propName && !isFunctionNode(prop.Value) {
				return r.Resolve(prop.Value, depth+1)
			}
		}
	}

	ctor := r.tracer.constructorFor(fn)
	if ctor == nil {
		return nil
	}
	body := functionBody(ctor)
	if body == nil {
		return nil
	}

	var out []string
	var visit func(cur *sitter.Node)
	visit = func(cur *sitter.Node) {
		if cur == nil || len(out) >= maxValueSet {
			return
		}
		if isFunctionNode(cur) && keyOf(cur) != keyOf(ctor) {
			return
		}
		if cur.Type() == "assignment_expression" {
			left := cur.ChildByFieldName("left")
			right := cur.ChildByFieldName("right")
			if left != nil && right != nil && left.Type() == "member_expression" {
				obj := left.ChildByFieldName("object")
				prop := left.ChildByFieldName("property")
				if obj != nil && obj.Type() == "this" && prop != nil && prop.Content(r.ctx.source) == propName {
					out = appendValues(out, r.Resolve(right, depth+1))
				}
			}
		}
		for i := 0; i < int(cur.ChildCount()); i++ {
			visit(cur.Child(i))
		}
	}
	visit(body)
	return out
}

// resolveSubscript handles computed obj[key] access: specific keys read the
// matching properties, unresolvable keys fall back to the union of all
// property values.
func (r *resolver) resolveSubscript(n *sitter.Node, depth int) []string {
	object := n.ChildByFieldName("object")
	index := n.ChildByFieldName("index")
	if object == nil || index == nil {
		return nil
	}

	keys := r.Resolve(index, depth+1)

	if shape := r.resolveObjectShape(object, depth+1); shape != nil {
		var out []string
		if len(keys) > 0 {
			for _, key := range keys {
				for _, prop := range shape {
					if prop.Key == key {
						out = appendValues(out, r.Resolve(prop.Value, depth+1))
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
		// Best-effort discovery: union every property value.
		for _, prop := range shape {
			if isFunctionNode(prop.Value) {
				continue
			}
			out = appendValues(out, r.Resolve(prop.Value, depth+1))
			if len(out) >= maxValueSet {
				break
			}
		}
		return out
	}

	if elems := r.resolveArrayShape(object, depth+1); elems != nil {
		var out []string
		for _, el := range elems {
			out = appendValues(out, r.Resolve(el, depth+1))
			if len(out) >= maxValueSet {
				break
			}
		}
		return out
	}
	return nil
}

func operatorOf(n *sitter.Node, source []byte) string {
	op := n.ChildByFieldName("operator")
	if op == nil {
		return ""
	}
	return op.Content(source)
}

// snippetOf bounds a node's text for soft-error labels.
func snippetOf(n *sitter.Node, source []byte) string {
	s := NodeContent(n, source)
	if len(s) > 40 {
		s = s[:40] + "…"
	}
	return s
}

// objectLiteralOwner returns the enclosing object literal when the function
// is one of its property values.
func objectLiteralOwner(fn *sitter.Node) *sitter.Node {
	parent := fn.Parent()
	if parent == nil {
		return nil
	}
	if fn.Type() == "method_definition" && parent.Type() == "object" {
		return parent
	}
	if parent.Type() == "pair" {
		owner := parent.Parent()
		if owner != nil && owner.Type() == "object" {
			return owner
		}
	}
	return nil
}
