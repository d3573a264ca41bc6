// Filename: javascript/taint.go
// Bottom-up taint classification. traceValueSource walks an expression and
// decides whether its value is a literal, merely dynamic, or reachable from
// attacker-controlled input. Classifications are memoized per run.
package javascript

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// TaintKind orders classifications from safest to most dangerous.
type TaintKind uint8

const (
	TaintLiteral TaintKind = iota
	TaintDynamic
	TaintUserControlled
)

func (k TaintKind) String() string {
	switch k {
	case TaintLiteral:
		return "literal"
	case TaintDynamic:
		return "dynamic"
	case TaintUserControlled:
		return "userControlled"
	}
	return "unknown"
}

// TaintClass is the result of classifying one expression. Label and the
// position are only set for user-controlled values and name the originating
// source access.
type TaintClass struct {
	Kind   TaintKind
	Label  TaintSource
	Line   int
	Column int
}

func literalClass() TaintClass { return TaintClass{Kind: TaintLiteral} }
func dynamicClass() TaintClass { return TaintClass{Kind: TaintDynamic} }

func taintedClass(label TaintSource, n *sitter.Node) TaintClass {
	tc := TaintClass{Kind: TaintUserControlled, Label: label}
	if n != nil {
		tc.Line = int(n.StartPoint().Row) + 1
		tc.Column = int(n.StartPoint().Column)
	}
	return tc
}

// mergeTaint keeps the worse of two classifications. The first
// user-controlled operand wins so the reported source stays stable.
func mergeTaint(a, b TaintClass) TaintClass {
	if a.Kind >= b.Kind {
		return a
	}
	return b
}

// propagatingMethods are member calls whose result inherits the receiver's
// taint. replace and concat additionally inherit from their arguments.
var propagatingMethods = map[string]bool{
	"replace":     true,
	"replaceAll":  true,
	"trim":        true,
	"toLowerCase": true,
	"toUpperCase": true,
	"toString":    true,
	"substring":   true,
	"substr":      true,
	"slice":       true,
	"split":       true,
	"concat":      true,
	"charAt":      true,
	"padStart":    true,
	"padEnd":      true,
	"normalize":   true,
	"repeat":      true,
	"join":        true,
	"get":         true,
}

// iterationMethods invoke their callback per element of the receiver, so
// callback parameters inherit the receiver's taint.
var iterationMethods = map[string]bool{
	"forEach": true,
	"map":     true,
	"filter":  true,
	"reduce":  true,
	"some":    true,
	"every":   true,
	"find":    true,
	"flatMap": true,
	"then":    true,
}

type taintAnalyzer struct {
	ctx      *AnalysisContext
	resolver *resolver
	tracer   *callerTracer
}

func newTaintAnalyzer(ctx *AnalysisContext, r *resolver, t *callerTracer) *taintAnalyzer {
	return &taintAnalyzer{ctx: ctx, resolver: r, tracer: t}
}

// traceValueSource classifies an expression. It never fails; anything it
// cannot understand is dynamic, which downstream treats as benign.
func (ta *taintAnalyzer) traceValueSource(n *sitter.Node, depth int) TaintClass {
	if n == nil {
		return dynamicClass()
	}
	switch n.Type() {
	case "string", "number", "true", "false", "null", "undefined", "regex":
		return literalClass()
	}
	key := keyOf(n)
	if tc, ok := ta.ctx.taintMemo[key]; ok {
		return tc
	}
	if depth > maxResolveDepth {
		ta.ctx.softError("traceValueSource", n, "depth cap at %q", snippetOf(n, ta.ctx.source))
		return dynamicClass()
	}
	if !ta.ctx.enter(ResolveTaint, n) {
		return dynamicClass()
	}
	defer ta.ctx.leave(ResolveTaint, n)

	tc := ta.classify(n, depth)
	ta.ctx.taintMemo[key] = tc
	return tc
}

func (ta *taintAnalyzer) classify(n *sitter.Node, depth int) TaintClass {
	src := ta.ctx.source
	switch n.Type() {
	case "template_string":
		tc := literalClass()
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() != "template_substitution" {
				continue
			}
			if expr := child.Child(1); expr != nil {
				tc = mergeTaint(tc, ta.traceValueSource(expr, depth+1))
			}
		}
		return tc
	case "parenthesized_expression":
		return ta.traceValueSource(unwrapParens(n), depth+1)
	case "binary_expression":
		switch operatorOf(n, src) {
		case "+", "||", "??":
			left := ta.traceValueSource(n.ChildByFieldName("left"), depth+1)
			right := ta.traceValueSource(n.ChildByFieldName("right"), depth+1)
			return mergeTaint(left, right)
		case "&&":
			// Value of a && b is b when truthy.
			return ta.traceValueSource(n.ChildByFieldName("right"), depth+1)
		}
		return literalClass()
	case "ternary_expression":
		cons := ta.traceValueSource(n.ChildByFieldName("consequence"), depth+1)
		alt := ta.traceValueSource(n.ChildByFieldName("alternative"), depth+1)
		return mergeTaint(cons, alt)
	case "sequence_expression":
		if n.ChildCount() > 0 {
			return ta.traceValueSource(n.Child(int(n.ChildCount())-1), depth+1)
		}
		return dynamicClass()
	case "await_expression", "spread_element":
		if n.ChildCount() > 1 {
			return ta.traceValueSource(n.Child(1), depth+1)
		}
		return dynamicClass()
	case "assignment_expression":
		return ta.traceValueSource(n.ChildByFieldName("right"), depth+1)
	case "array":
		tc := literalClass()
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.IsNamed() {
				tc = mergeTaint(tc, ta.traceValueSource(child, depth+1))
			}
		}
		return tc
	case "object":
		tc := literalClass()
		for _, prop := range literalProperties(n, src) {
			if prop.Value != nil {
				tc = mergeTaint(tc, ta.traceValueSource(prop.Value, depth+1))
			}
		}
		return tc
	case "member_expression", "subscript_expression":
		return ta.classifyMember(n, depth)
	case "call_expression":
		return ta.classifyCall(n, depth)
	case "new_expression":
		// new URL(location.href) and friends keep their argument's taint.
		tc := literalClass()
		for _, arg := range callArguments(n) {
			tc = mergeTaint(tc, ta.traceValueSource(arg, depth+1))
		}
		if tc.Kind == TaintUserControlled {
			return tc
		}
		return dynamicClass()
	case "identifier":
		return ta.classifyIdentifier(n, depth)
	case "arrow_function", "function_expression", "function_declaration", "function":
		return literalClass()
	}
	return dynamicClass()
}

// classifyMember handles property reads: known source paths rooted at an
// unbound global, message-event payloads, and ordinary taint propagation
// through the receiver.
func (ta *taintAnalyzer) classifyMember(n *sitter.Node, depth int) TaintClass {
	src := ta.ctx.source
	path := flattenPropertyAccess(n, src)
	if len(path) > 0 {
		if label, ok := propertySourceFor(path); ok && ta.rootIsAmbient(n, path[0]) {
			return taintedClass(label, n)
		}
	}
	obj := n.ChildByFieldName("object")
	if obj == nil {
		return dynamicClass()
	}
	// e.data / e.originalEvent.data inside a message handler.
	if root := rootIdentifier(obj); root != nil {
		if bind := ta.ctx.Scopes.BindingAt(root); bind != nil && bind.Kind == BindParam {
			if isMessageEventParam(bind, src) {
				prop := n.ChildByFieldName("property")
				if prop != nil && prop.Content(src) == "data" {
					return taintedClass(SourceMessageData, n)
				}
			}
		}
	}
	tc := ta.traceValueSource(obj, depth+1)
	if tc.Kind == TaintUserControlled {
		return tc
	}
	return dynamicClass()
}

func (ta *taintAnalyzer) classifyCall(n *sitter.Node, depth int) TaintClass {
	src := ta.ctx.source
	callee := unwrapParens(n.ChildByFieldName("function"))
	if callee == nil {
		return dynamicClass()
	}
	path := flattenPropertyAccess(callee, src)
	if len(path) > 0 {
		if label, ok := functionSourceFor(path); ok {
			return taintedClass(label, n)
		}
		switch canonicalPath(path) {
		case "decodeURIComponent", "decodeURI", "unescape", "atob", "JSON.parse":
			args := callArguments(n)
			if len(args) > 0 {
				return ta.traceValueSource(args[0], depth+1)
			}
			return dynamicClass()
		case "Object.assign":
			tc := literalClass()
			for _, arg := range callArguments(n) {
				tc = mergeTaint(tc, ta.traceValueSource(arg, depth+1))
			}
			return tc
		}
	}
	if callee.Type() == "member_expression" {
		prop := callee.ChildByFieldName("property")
		if prop != nil && propagatingMethods[prop.Content(src)] {
			tc := ta.traceValueSource(callee.ChildByFieldName("object"), depth+1)
			name := prop.Content(src)
			if name == "replace" || name == "replaceAll" || name == "concat" {
				for _, arg := range callArguments(n) {
					tc = mergeTaint(tc, ta.traceValueSource(arg, depth+1))
				}
			}
			if tc.Kind == TaintUserControlled {
				return tc
			}
			return dynamicClass()
		}
	}
	// Chase user-defined callee returns.
	if fn := ta.resolver.calleeFunction(callee); fn != nil {
		if !ta.ctx.enter(ResolveTaint, fn) {
			return dynamicClass()
		}
		defer ta.ctx.leave(ResolveTaint, fn)
		tc := literalClass()
		found := false
		walkReturns(fn, func(arg *sitter.Node) {
			tc = mergeTaint(tc, ta.traceValueSource(arg, depth+1))
			found = true
		})
		if found {
			return tc
		}
	}
	return dynamicClass()
}

func (ta *taintAnalyzer) classifyIdentifier(n *sitter.Node, depth int) TaintClass {
	bind := ta.ctx.Scopes.BindingAt(n)
	if bind == nil {
		return dynamicClass()
	}
	switch bind.Kind {
	case BindParam:
		return ta.classifyParameter(n, bind, depth)
	default:
		tc := literalClass()
		seen := false
		if bind.Init != nil {
			tc = mergeTaint(tc, ta.traceValueSource(bind.Init, depth+1))
			seen = true
		}
		if len(bind.Assignments) <= maxAssignmentUnion {
			for _, rhs := range bind.Assignments {
				tc = mergeTaint(tc, ta.traceValueSource(rhs, depth+1))
				seen = true
			}
		}
		if !seen {
			return dynamicClass()
		}
		if tc.Kind == TaintUserControlled {
			return tc
		}
		return dynamicClass()
	}
}

// classifyParameter decides taint for a function parameter: message-event
// payload objects, iteration-callback elements inheriting their receiver's
// taint, and finally the caller-argument chase.
func (ta *taintAnalyzer) classifyParameter(n *sitter.Node, bind *Binding, depth int) TaintClass {
	src := ta.ctx.source
	if isMessageEventParam(bind, src) {
		// The event object itself is attacker-reachable via its payload.
		return taintedClass(SourceMessageData, n)
	}
	if recv := iterationReceiver(bind, src); recv != nil {
		if !ta.receiverIsNonIterable(recv) {
			tc := ta.traceValueSource(recv, depth+1)
			if tc.Kind == TaintUserControlled {
				return tc
			}
		}
		return dynamicClass()
	}
	sites := ta.tracer.SitesForParameter(bind, "")
	tc := literalClass()
	seen := 0
	for _, site := range sites {
		if seen >= maxProbedArgs {
			break
		}
		arg := site.Arg()
		if arg == nil {
			continue
		}
		tc = mergeTaint(tc, ta.traceValueSource(arg, depth+1))
		seen++
	}
	if seen == 0 {
		return dynamicClass()
	}
	if tc.Kind == TaintUserControlled {
		return tc
	}
	return dynamicClass()
}

// receiverIsNonIterable consults the type tracker to suppress element taint
// on objects that are provably not collections.
func (ta *taintAnalyzer) receiverIsNonIterable(recv *sitter.Node) bool {
	root := rootIdentifier(recv)
	if root == nil {
		return false
	}
	scope := ta.ctx.Scopes.ScopeFor(root)
	tag := ta.ctx.VarType(scope, root.Content(ta.ctx.source))
	return tag != "" && nonIterableCtors[tag]
}

// rootIsAmbient reports whether the leftmost segment of a member chain is a
// true browser global rather than a shadowing local binding.
func (ta *taintAnalyzer) rootIsAmbient(n *sitter.Node, rootName string) bool {
	root := rootIdentifier(n)
	if root == nil {
		return rootName == "this"
	}
	if ta.ctx.Globals.IsGlobalObject(root) {
		return true
	}
	return ta.ctx.Scopes.BindingAt(root) == nil
}

// rootIdentifier walks to the leftmost identifier of a member chain.
func rootIdentifier(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "identifier":
			return n
		case "member_expression", "subscript_expression":
			n = n.ChildByFieldName("object")
		case "parenthesized_expression":
			n = unwrapParens(n)
		case "call_expression":
			n = n.ChildByFieldName("function")
		default:
			return nil
		}
	}
	return nil
}

// isMessageEventParam reports whether a binding is the event parameter of a
// message handler: addEventListener("message", fn), onmessage = fn, or a
// conventionally named first parameter is not enough on its own.
func isMessageEventParam(bind *Binding, source []byte) bool {
	if bind.Kind != BindParam || bind.ParamIndex != 0 || bind.Owner == nil {
		return false
	}
	parent := bind.Owner.Parent()
	if parent == nil {
		return false
	}
	if parent.Type() == "arguments" {
		call := parent.Parent()
		if call == nil || call.Type() != "call_expression" {
			return false
		}
		callee := call.ChildByFieldName("function")
		if callee == nil {
			return false
		}
		path := flattenPropertyAccess(callee, source)
		if len(path) == 0 || path[len(path)-1] != "addEventListener" {
			return false
		}
		args := callArguments(call)
		return len(args) > 0 && stringLiteralValue(args[0], source) == "message"
	}
	if parent.Type() == "assignment_expression" {
		left := parent.ChildByFieldName("left")
		if left == nil {
			return false
		}
		path := flattenPropertyAccess(left, source)
		return len(path) > 0 && path[len(path)-1] == "onmessage"
	}
	return false
}

// iterationReceiver returns the receiver expression when the binding is the
// first parameter of a callback passed to an iteration method.
func iterationReceiver(bind *Binding, source []byte) *sitter.Node {
	if bind.Kind != BindParam || bind.Owner == nil {
		return nil
	}
	// reduce's element parameter is the second one.
	if bind.ParamIndex > 1 {
		return nil
	}
	parent := bind.Owner.Parent()
	if parent == nil || parent.Type() != "arguments" {
		return nil
	}
	call := parent.Parent()
	if call == nil || call.Type() != "call_expression" {
		return nil
	}
	callee := call.ChildByFieldName("function")
	if callee == nil || callee.Type() != "member_expression" {
		return nil
	}
	prop := callee.ChildByFieldName("property")
	if prop == nil || !iterationMethods[prop.Content(source)] {
		return nil
	}
	if prop.Content(source) == "reduce" {
		if bind.ParamIndex != 1 {
			return nil
		}
	} else if bind.ParamIndex != 0 {
		return nil
	}
	return callee.ChildByFieldName("object")
}

// walkReturns visits every returned expression in fn without descending
// into nested functions. Expression-bodied arrows count as a single return.
func walkReturns(fn *sitter.Node, visit func(*sitter.Node)) {
	body := functionBody(fn)
	if body == nil {
		return
	}
	if body.Type() != "statement_block" {
		visit(body)
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "return_statement" {
			if arg := returnArgument(n); arg != nil {
				visit(arg)
			}
			return
		}
		if isFunctionNode(n) {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
}

// trackTypes is the analyzer's type-tracking pre-pass. It records coarse
// tags for unambiguous construction patterns only.
func trackTypes(ctx *AnalysisContext) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "variable_declarator":
			name := n.ChildByFieldName("name")
			value := n.ChildByFieldName("value")
			if name != nil && name.Type() == "identifier" && value != nil {
				recordTypeOf(ctx, name, value)
			}
		case "assignment_expression":
			left := n.ChildByFieldName("left")
			right := n.ChildByFieldName("right")
			if left != nil && left.Type() == "identifier" && right != nil {
				recordTypeOf(ctx, left, right)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(ctx.Root)
}

func recordTypeOf(ctx *AnalysisContext, ident, value *sitter.Node) {
	tag := inferTypeTag(ctx, value)
	if tag == "" {
		return
	}
	scope := ctx.Scopes.ScopeFor(ident)
	if scope != nil {
		scope = scope.functionScope()
	}
	ctx.SetVarType(scope, ident.Content(ctx.source), tag)
}

func inferTypeTag(ctx *AnalysisContext, value *sitter.Node) string {
	value = unwrapParens(value)
	if value == nil {
		return ""
	}
	switch value.Type() {
	case "array":
		return "Array"
	case "new_expression":
		ctor := value.ChildByFieldName("constructor")
		if ctor == nil && value.ChildCount() > 1 {
			ctor = value.Child(1)
		}
		if ctor == nil || ctor.Type() != "identifier" {
			return ""
		}
		// Only trust the tag when the constructor is the ambient one.
		if ctx.Scopes.BindingAt(ctor) != nil {
			return ""
		}
		return ctor.Content(ctx.source)
	case "call_expression":
		callee := value.ChildByFieldName("function")
		if callee == nil {
			return ""
		}
		path := flattenPropertyAccess(callee, ctx.source)
		switch canonicalPath(path) {
		case "Object.keys", "Object.values", "Object.entries", "Array.from":
			return "Array"
		case "document.querySelectorAll", "document.getElementsByTagName", "document.getElementsByClassName":
			return "NodeList"
		case "document.querySelector", "document.getElementById", "document.createElement":
			return "Element"
		}
	}
	return ""
}
