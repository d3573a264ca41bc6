// Filename: javascript/netsink.go
// Network sink extraction: fetch, XMLHttpRequest, sendBeacon, EventSource,
// WebSocket, and image-beacon patterns. Sinks are discovered at the call
// site itself; wrapper indirection is unwound by the resolver's
// parameter-to-caller chase, so a sink buried three closures deep still
// reports the values its outermost callers pass in.
package javascript

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// NetworkSinkType labels the transport of a discovered call site.
type NetworkSinkType string

const (
	NetSinkFetch       NetworkSinkType = "fetch"
	NetSinkXHR         NetworkSinkType = "xhr"
	NetSinkBeacon      NetworkSinkType = "sendBeacon"
	NetSinkEventSource NetworkSinkType = "eventSource"
	NetSinkWebSocket   NetworkSinkType = "webSocket"
	NetSinkImage       NetworkSinkType = "imageBeacon"
)

// BodyParam describes one parameter observed in a request body.
type BodyParam struct {
	Name           string   `json:"name"`
	Required       bool     `json:"required"`
	Default        string   `json:"default,omitempty"`
	ObservedValues []string `json:"observedValues,omitempty"`
	ValidValues    []string `json:"validValues,omitempty"`
}

// FetchCallSite is one discovered outbound request. Records with the same
// (method, url) are merged downstream with params and headers unioned.
type FetchCallSite struct {
	URL               string              `json:"url"`
	Method            string              `json:"method"`
	Headers           map[string][]string `json:"headers,omitempty"`
	BodyParams        []BodyParam         `json:"bodyParams,omitempty"`
	Type              NetworkSinkType     `json:"type"`
	EnclosingFunction string              `json:"enclosingFunction,omitempty"`
	ResponseType      string              `json:"responseType,omitempty"`
	Line              int                 `json:"line"`
}

type networkExtractor struct {
	ctx    *AnalysisContext
	res    *resolver
	tracer *callerTracer
}

func newNetworkExtractor(ctx *AnalysisContext, r *resolver, t *callerTracer) *networkExtractor {
	return &networkExtractor{ctx: ctx, res: r, tracer: t}
}

// extract walks the whole tree once and emits every network call site.
func (x *networkExtractor) extract() []FetchCallSite {
	var sites []FetchCallSite
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "call_expression":
			sites = append(sites, x.fromCall(n)...)
		case "new_expression":
			sites = append(sites, x.fromConstructor(n)...)
		case "assignment_expression":
			sites = append(sites, x.fromImageSrc(n)...)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(x.ctx.Root)
	return sites
}

func (x *networkExtractor) fromCall(call *sitter.Node) []FetchCallSite {
	callee := unwrapParens(call.ChildByFieldName("function"))
	if callee == nil {
		return nil
	}
	if x.isFetchCallee(callee) {
		return x.fetchSites(call)
	}
	src := x.ctx.source
	if callee.Type() == "member_expression" {
		prop := callee.ChildByFieldName("property")
		if prop == nil {
			return nil
		}
		switch prop.Content(src) {
		case "open":
			if x.isXHRReceiver(callee.ChildByFieldName("object")) {
				return x.xhrOpenSites(call, callee.ChildByFieldName("object"))
			}
		case "sendBeacon":
			path := flattenPropertyAccess(callee, src)
			if len(path) >= 2 && path[len(path)-2] == "navigator" {
				return x.beaconSites(call)
			}
		}
	}
	return nil
}

// isFetchCallee recognizes bare fetch, window.fetch, and the OR-guarded
// polyfill form (window.fetch || shim).
func (x *networkExtractor) isFetchCallee(callee *sitter.Node) bool {
	src := x.ctx.source
	switch callee.Type() {
	case "identifier":
		if callee.Content(src) != "fetch" {
			return false
		}
		// A local binding named fetch that is not a fetch wrapper still
		// counts only when it is the ambient one.
		return x.ctx.Scopes.BindingAt(callee) == nil
	case "member_expression":
		prop := callee.ChildByFieldName("property")
		obj := callee.ChildByFieldName("object")
		return prop != nil && prop.Content(src) == "fetch" && obj != nil && x.ctx.Globals.IsGlobalObject(obj)
	case "binary_expression":
		op := operatorOf(callee, src)
		if op != "||" && op != "??" {
			return false
		}
		left := unwrapParens(callee.ChildByFieldName("left"))
		right := unwrapParens(callee.ChildByFieldName("right"))
		return left != nil && x.isFetchCallee(left) || right != nil && x.isFetchCallee(right)
	}
	return false
}

func (x *networkExtractor) fetchSites(call *sitter.Node) []FetchCallSite {
	args := callArguments(call)
	if len(args) == 0 {
		return nil
	}
	urls := x.urlValues(args[0])
	method := "GET"
	headers := map[string][]string{}
	var body []BodyParam

	if len(args) > 1 {
		opts := x.res.resolveObjectShape(args[1], 0)
		for _, prop := range opts {
			switch prop.Key {
			case "method":
				if vals := x.res.Resolve(prop.Value, 0); len(vals) > 0 {
					method = strings.ToUpper(vals[0])
				}
			case "headers":
				x.collectHeaderShape(prop.Value, headers)
			case "body":
				body = x.bodyParams(prop.Value)
			}
		}
	}

	var out []FetchCallSite
	for _, u := range urls {
		out = append(out, FetchCallSite{
			URL:               u,
			Method:            method,
			Headers:           copyHeaders(headers),
			BodyParams:        body,
			Type:              NetSinkFetch,
			EnclosingFunction: x.enclosingName(call),
			ResponseType:      x.fetchResponseType(call),
			Line:              int(call.StartPoint().Row) + 1,
		})
	}
	return out
}

// urlValues resolves a URL expression, falling back to the raw source text
// so an unresolvable endpoint is still visible in the report.
func (x *networkExtractor) urlValues(expr *sitter.Node) []string {
	vals := x.res.Resolve(expr, 0)
	if len(vals) > 0 {
		return dedupe(vals)
	}
	return []string{snippetOf(expr, x.ctx.source)}
}

// collectHeaderShape materializes a headers object and resolves each value,
// so header values captured from closure variables resolve too.
func (x *networkExtractor) collectHeaderShape(expr *sitter.Node, into map[string][]string) {
	for _, prop := range x.res.resolveObjectShape(expr, 0) {
		vals := x.res.Resolve(prop.Value, 0)
		if len(vals) == 0 {
			vals = []string{snippetOf(prop.Value, x.ctx.source)}
		}
		into[prop.Key] = appendValues(into[prop.Key], vals)
	}
}

// bodyParams extracts named parameters from a request body expression:
// JSON.stringify(obj) bodies and object literals directly.
func (x *networkExtractor) bodyParams(expr *sitter.Node) []BodyParam {
	expr = unwrapParens(expr)
	if expr == nil {
		return nil
	}
	src := x.ctx.source
	if expr.Type() == "call_expression" {
		callee := expr.ChildByFieldName("function")
		if callee != nil {
			path := flattenPropertyAccess(callee, src)
			joined := canonicalPath(path)
			if joined == "JSON.stringify" || strings.HasSuffix(joined, ".stringify") {
				args := callArguments(expr)
				if len(args) > 0 {
					return x.bodyParams(args[0])
				}
			}
		}
		return nil
	}
	var out []BodyParam
	for _, prop := range x.res.resolveObjectShape(expr, 0) {
		out = append(out, x.paramFromProp(prop))
	}
	return out
}

// paramFromProp derives required/default metadata from the value shape: an
// || fallback or a ternary means optional with a visible default, a
// parameter with a destructuring default likewise.
func (x *networkExtractor) paramFromProp(prop ShapeProp) BodyParam {
	p := BodyParam{Name: prop.Key, Required: true, ValidValues: x.ctx.ConstraintFor(prop.Key)}
	value := unwrapParens(prop.Value)
	if value == nil {
		return p
	}
	src := x.ctx.source
	switch value.Type() {
	case "binary_expression":
		op := operatorOf(value, src)
		if op == "||" || op == "??" {
			p.Required = false
			if right := value.ChildByFieldName("right"); right != nil {
				if def := stringLiteralValue(right, src); def != "" {
					p.Default = def
				}
			}
		}
	case "ternary_expression":
		p.Required = false
	case "identifier":
		if bind := x.ctx.Scopes.BindingAt(value); bind != nil && bind.Kind == BindParam {
			if def := x.paramDefault(bind); def != "" {
				p.Required = false
				p.Default = def
			}
		}
	}
	p.ObservedValues = x.res.Resolve(prop.Value, 0)
	return p
}

// paramDefault finds `function f(a = "x")` style defaults on a binding.
func (x *networkExtractor) paramDefault(bind *Binding) string {
	if bind.Decl == nil {
		return ""
	}
	parent := bind.Decl.Parent()
	if parent == nil {
		return ""
	}
	if parent.Type() == "assignment_pattern" || parent.Type() == "pair_pattern" {
		if right := parent.ChildByFieldName("right"); right != nil {
			return stringLiteralValue(right, x.ctx.source)
		}
	}
	return ""
}

// isXHRReceiver proves the receiver of .open() is an XMLHttpRequest via
// constructor or factory-call provenance, or the type-tracker tag.
func (x *networkExtractor) isXHRReceiver(obj *sitter.Node) bool {
	obj = unwrapParens(obj)
	if obj == nil {
		return false
	}
	src := x.ctx.source
	if obj.Type() == "new_expression" {
		return newExpressionCtor(obj, src) == "XMLHttpRequest"
	}
	if obj.Type() != "identifier" {
		// this.xhr style receivers: fall back to a name heuristic.
		path := flattenPropertyAccess(obj, src)
		if len(path) > 0 {
			last := strings.ToLower(path[len(path)-1])
			return strings.Contains(last, "xhr") || strings.Contains(last, "request")
		}
		return false
	}
	if scope := x.ctx.Scopes.ScopeFor(obj); scope != nil {
		if x.ctx.VarType(scope, obj.Content(src)) == "XMLHttpRequest" {
			return true
		}
	}
	bind := x.ctx.Scopes.BindingAt(obj)
	if bind == nil {
		return false
	}
	init := x.xhrProvenance(bind.Init)
	if init {
		return true
	}
	for _, rhs := range bind.Assignments {
		if x.xhrProvenance(rhs) {
			return true
		}
	}
	return false
}

// xhrProvenance chases an initializer to a `new XMLHttpRequest` either
// directly or through a factory function's returns.
func (x *networkExtractor) xhrProvenance(init *sitter.Node) bool {
	init = unwrapParens(init)
	if init == nil {
		return false
	}
	src := x.ctx.source
	if init.Type() == "new_expression" {
		return newExpressionCtor(init, src) == "XMLHttpRequest"
	}
	if init.Type() == "call_expression" {
		fn := x.res.calleeFunction(init.ChildByFieldName("function"))
		if fn == nil {
			return false
		}
		found := false
		walkReturns(fn, func(arg *sitter.Node) {
			arg = unwrapParens(arg)
			if arg != nil && arg.Type() == "new_expression" && newExpressionCtor(arg, src) == "XMLHttpRequest" {
				found = true
			}
		})
		return found
	}
	return false
}

func newExpressionCtor(n *sitter.Node, source []byte) string {
	ctor := n.ChildByFieldName("constructor")
	if ctor == nil && n.ChildCount() > 1 {
		ctor = n.Child(1)
	}
	if ctor == nil {
		return ""
	}
	path := flattenPropertyAccess(ctor, source)
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

// xhrOpenSites handles xhr.open(method, url). When both arguments are
// properties of the same parameter object, resolution runs per discovered
// caller so one caller's method is never paired with another caller's URL.
func (x *networkExtractor) xhrOpenSites(call *sitter.Node, recv *sitter.Node) []FetchCallSite {
	args := callArguments(call)
	if len(args) < 2 {
		return nil
	}
	headers := x.xhrHeaders(recv)
	body := x.xhrBody(recv)
	respType := x.xhrResponseType(recv)
	encl := x.enclosingName(call)
	line := int(call.StartPoint().Row) + 1

	build := func(method, url string) FetchCallSite {
		return FetchCallSite{
			URL:               url,
			Method:            strings.ToUpper(method),
			Headers:           copyHeaders(headers),
			BodyParams:        body,
			Type:              NetSinkXHR,
			EnclosingFunction: encl,
			ResponseType:      respType,
			Line:              line,
		}
	}

	if pairs := x.correlatedPairs(args[0], args[1]); len(pairs) > 0 {
		var out []FetchCallSite
		for _, pr := range pairs {
			out = append(out, build(pr[0], pr[1]))
		}
		return out
	}

	methods := x.res.Resolve(args[0], 0)
	if len(methods) == 0 {
		methods = []string{"GET"}
	}
	urls := x.urlValues(args[1])
	var out []FetchCallSite
	for _, u := range urls {
		for _, m := range dedupe(methods) {
			out = append(out, build(m, u))
		}
	}
	return out
}

// correlatedPairs fires when method and URL are member reads on the same
// parameter binding. It returns (method, url) pairs resolved per caller.
func (x *networkExtractor) correlatedPairs(methodExpr, urlExpr *sitter.Node) [][2]string {
	src := x.ctx.source
	mRoot, mProp := memberOnIdentifier(methodExpr, src)
	uRoot, uProp := memberOnIdentifier(urlExpr, src)
	if mRoot == nil || uRoot == nil || mProp == "" || uProp == "" {
		return nil
	}
	mBind := x.ctx.Scopes.BindingAt(mRoot)
	uBind := x.ctx.Scopes.BindingAt(uRoot)
	if mBind == nil || mBind != uBind || mBind.Kind != BindParam {
		return nil
	}
	sites := x.tracer.SitesForParameter(mBind, mProp)
	var out [][2]string
	for _, site := range sites {
		arg := site.Arg()
		if arg == nil {
			continue
		}
		methods := x.tracer.propertyOfArgument(arg, mProp, 0)
		urls := x.tracer.propertyOfArgument(arg, uProp, 0)
		if len(methods) == 0 || len(urls) == 0 {
			continue
		}
		for _, u := range dedupe(urls) {
			out = append(out, [2]string{methods[0], u})
		}
	}
	return out
}

// memberOnIdentifier splits `ident.prop` into its root identifier and
// property name.
func memberOnIdentifier(n *sitter.Node, source []byte) (*sitter.Node, string) {
	n = unwrapParens(n)
	if n == nil || n.Type() != "member_expression" {
		return nil, ""
	}
	obj := unwrapParens(n.ChildByFieldName("object"))
	prop := n.ChildByFieldName("property")
	if obj == nil || obj.Type() != "identifier" || prop == nil {
		return nil, ""
	}
	return obj, prop.Content(source)
}

// xhrHeaders gathers setRequestHeader calls on the same receiver binding.
func (x *networkExtractor) xhrHeaders(recv *sitter.Node) map[string][]string {
	headers := map[string][]string{}
	x.forReceiverCalls(recv, "setRequestHeader", func(call *sitter.Node) {
		args := callArguments(call)
		if len(args) < 2 {
			return
		}
		names := x.res.Resolve(args[0], 0)
		vals := x.res.Resolve(args[1], 0)
		if len(vals) == 0 {
			vals = []string{snippetOf(args[1], x.ctx.source)}
		}
		for _, name := range names {
			headers[name] = appendValues(headers[name], vals)
		}
	})
	return headers
}

// xhrBody looks for a send(payload) call on the receiver.
func (x *networkExtractor) xhrBody(recv *sitter.Node) []BodyParam {
	var body []BodyParam
	x.forReceiverCalls(recv, "send", func(call *sitter.Node) {
		if body != nil {
			return
		}
		args := callArguments(call)
		if len(args) > 0 {
			body = x.bodyParams(args[0])
		}
	})
	return body
}

// xhrResponseType picks up a literal `recv.responseType = "json"` write.
func (x *networkExtractor) xhrResponseType(recv *sitter.Node) string {
	out := ""
	x.forReceiverWrites(recv, "responseType", func(rhs *sitter.Node) {
		if out == "" {
			out = stringLiteralValue(rhs, x.ctx.source)
		}
	})
	return out
}

// forReceiverCalls visits method calls on every reference of the
// receiver's binding.
func (x *networkExtractor) forReceiverCalls(recv *sitter.Node, method string, visit func(call *sitter.Node)) {
	recv = unwrapParens(recv)
	if recv == nil || recv.Type() != "identifier" {
		return
	}
	bind := x.ctx.Scopes.BindingAt(recv)
	if bind == nil {
		return
	}
	src := x.ctx.source
	for _, ref := range bind.Refs {
		member := ref.Parent()
		if member == nil || member.Type() != "member_expression" {
			continue
		}
		prop := member.ChildByFieldName("property")
		if prop == nil || prop.Content(src) != method {
			continue
		}
		call := member.Parent()
		if call != nil && call.Type() == "call_expression" {
			visit(call)
		}
	}
}

func (x *networkExtractor) forReceiverWrites(recv *sitter.Node, property string, visit func(rhs *sitter.Node)) {
	recv = unwrapParens(recv)
	if recv == nil || recv.Type() != "identifier" {
		return
	}
	bind := x.ctx.Scopes.BindingAt(recv)
	if bind == nil {
		return
	}
	src := x.ctx.source
	for _, ref := range bind.Refs {
		member := ref.Parent()
		if member == nil || member.Type() != "member_expression" {
			continue
		}
		prop := member.ChildByFieldName("property")
		if prop == nil || prop.Content(src) != property {
			continue
		}
		assign := member.Parent()
		if assign != nil && assign.Type() == "assignment_expression" {
			if left := assign.ChildByFieldName("left"); left != nil && keyOf(left) == keyOf(member) {
				if rhs := assign.ChildByFieldName("right"); rhs != nil {
					visit(rhs)
				}
			}
		}
	}
}

func (x *networkExtractor) beaconSites(call *sitter.Node) []FetchCallSite {
	args := callArguments(call)
	if len(args) == 0 {
		return nil
	}
	var body []BodyParam
	if len(args) > 1 {
		body = x.bodyParams(args[1])
	}
	var out []FetchCallSite
	for _, u := range x.urlValues(args[0]) {
		out = append(out, FetchCallSite{
			URL:               u,
			Method:            "POST",
			BodyParams:        body,
			Type:              NetSinkBeacon,
			EnclosingFunction: x.enclosingName(call),
			Line:              int(call.StartPoint().Row) + 1,
		})
	}
	return out
}

func (x *networkExtractor) fromConstructor(n *sitter.Node) []FetchCallSite {
	ctor := newExpressionCtor(n, x.ctx.source)
	var kind NetworkSinkType
	switch ctor {
	case "EventSource":
		kind = NetSinkEventSource
	case "WebSocket":
		kind = NetSinkWebSocket
	default:
		return nil
	}
	args := callArguments(n)
	if len(args) == 0 {
		return nil
	}
	var out []FetchCallSite
	for _, u := range x.urlValues(args[0]) {
		out = append(out, FetchCallSite{
			URL:               u,
			Method:            "GET",
			Type:              kind,
			EnclosingFunction: x.enclosingName(n),
			Line:              int(n.StartPoint().Row) + 1,
		})
	}
	return out
}

// fromImageSrc catches the tracking-pixel pattern: a src write on a
// binding proven to hold `new Image()`.
func (x *networkExtractor) fromImageSrc(assign *sitter.Node) []FetchCallSite {
	left := assign.ChildByFieldName("left")
	right := assign.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "member_expression" {
		return nil
	}
	src := x.ctx.source
	prop := left.ChildByFieldName("property")
	if prop == nil || prop.Content(src) != "src" {
		return nil
	}
	obj := unwrapParens(left.ChildByFieldName("object"))
	if obj == nil {
		return nil
	}
	isImage := false
	if obj.Type() == "new_expression" {
		isImage = newExpressionCtor(obj, src) == "Image"
	} else if obj.Type() == "identifier" {
		if scope := x.ctx.Scopes.ScopeFor(obj); scope != nil {
			isImage = x.ctx.VarType(scope, obj.Content(src)) == "Image"
		}
		if !isImage {
			if bind := x.ctx.Scopes.BindingAt(obj); bind != nil && bind.Init != nil {
				init := unwrapParens(bind.Init)
				isImage = init != nil && init.Type() == "new_expression" && newExpressionCtor(init, src) == "Image"
			}
		}
	}
	if !isImage {
		return nil
	}
	var out []FetchCallSite
	for _, u := range x.urlValues(right) {
		out = append(out, FetchCallSite{
			URL:               u,
			Method:            "GET",
			Type:              NetSinkImage,
			EnclosingFunction: x.enclosingName(assign),
			Line:              int(assign.StartPoint().Row) + 1,
		})
	}
	return out
}

// fetchResponseType reports "json" when the promise chain immediately
// parses the body.
func (x *networkExtractor) fetchResponseType(call *sitter.Node) string {
	src := x.ctx.source
	for p := call.Parent(); p != nil; p = p.Parent() {
		if p.Type() != "call_expression" {
			if p.Type() == "member_expression" || p.Type() == "parenthesized_expression" || p.Type() == "await_expression" {
				continue
			}
			return ""
		}
		callee := p.ChildByFieldName("function")
		if callee == nil || callee.Type() != "member_expression" {
			return ""
		}
		prop := callee.ChildByFieldName("property")
		if prop == nil || prop.Content(src) != "then" {
			return ""
		}
		args := callArguments(p)
		if len(args) > 0 && strings.Contains(NodeContent(args[0], src), ".json()") {
			return "json"
		}
	}
	return ""
}

func (x *networkExtractor) enclosingName(n *sitter.Node) string {
	fn := EnclosingFunction(n)
	if fn == nil {
		return ""
	}
	return FunctionName(fn, x.ctx.source)
}

func copyHeaders(h map[string][]string) map[string][]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}
