// Filename: javascript/callers.go
// Caller-argument tracing: given a function parameter, find every concrete
// argument expression supplied by every discoverable caller. The owning
// function's syntactic binding route determines how its callers are found.
package javascript

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// BindingRoute describes how a function-valued entity is invoked by its
// callers.
type BindingRoute int

const (
	RouteUnknown BindingRoute = iota
	RouteDirectName
	RouteObjectProperty
	RouteAssignedMember
	RouteComputedMember
	RoutePrototypeMethod
	RouteClassMethod
	RouteCallbackArgument
	RouteReturnedFromFactory
	RouteGlobalAlias
)

func (r BindingRoute) String() string {
	switch r {
	case RouteDirectName:
		return "direct"
	case RouteObjectProperty:
		return "object-property"
	case RouteAssignedMember:
		return "assigned-member"
	case RouteComputedMember:
		return "computed-member"
	case RoutePrototypeMethod:
		return "prototype-method"
	case RouteClassMethod:
		return "class-method"
	case RouteCallbackArgument:
		return "callback"
	case RouteReturnedFromFactory:
		return "factory-return"
	case RouteGlobalAlias:
		return "global-alias"
	}
	return "unknown"
}

// ArgumentSite is one discovered caller's argument list, kept raw so two
// properties of the same caller argument can be read together without
// cross-contaminating unrelated callers.
type ArgumentSite struct {
	Call  *sitter.Node
	Args  []*sitter.Node
	Index int
}

// Arg returns the expression at the site's resolved index, nil when the
// caller supplied fewer arguments.
func (s ArgumentSite) Arg() *sitter.Node {
	if s.Index < 0 || s.Index >= len(s.Args) {
		return nil
	}
	return s.Args[s.Index]
}

type callerTracer struct {
	ctx      *AnalysisContext
	resolver *resolver
}

func newCallerTracer(ctx *AnalysisContext, r *resolver) *callerTracer {
	return &callerTracer{ctx: ctx, resolver: r}
}

// ValuesForParameter resolves a parameter (or a named property of it) by
// unioning the resolved argument of every discovered caller.
func (t *callerTracer) ValuesForParameter(bind *Binding, property string, depth int) []string {
	if bind == nil || bind.Owner == nil || depth >= maxResolveDepth {
		return nil
	}
	sites := t.SitesForParameter(bind, property)

	var out []string
	for _, site := range sites {
		if len(out) >= maxValueSet {
			break
		}
		arg := site.Arg()
		if arg == nil {
			continue
		}
		if property == "" {
			out = appendValues(out, t.resolver.Resolve(arg, depth+1))
			continue
		}
		out = appendValues(out, t.propertyOfArgument(arg, property, depth))
	}
	return out
}

// propertyOfArgument reads a named property from a caller's argument,
// matching object-literal keys directly before materializing a full shape.
func (t *callerTracer) propertyOfArgument(arg *sitter.Node, property string, depth int) []string {
	arg = unwrapParens(arg)
	if arg == nil {
		return nil
	}
	if arg.Type() == "object" {
		for _, prop := range literalProperties(arg, t.ctx.source) {
			if prop.Key == property {
				return t.resolver.Resolve(prop.Value, depth+1)
			}
		}
		return nil
	}
	for _, prop := range t.resolver.resolveObjectShape(arg, depth+1) {
		if prop.Key == property {
			return t.resolver.Resolve(prop.Value, depth+1)
		}
	}
	return nil
}

// ShapeForParameter materializes the union of caller-argument object shapes.
func (t *callerTracer) ShapeForParameter(bind *Binding, depth int) []ShapeProp {
	if bind == nil || bind.Owner == nil || depth >= maxResolveDepth {
		return nil
	}
	var shape []ShapeProp
	for _, site := range t.SitesForParameter(bind, "") {
		arg := site.Arg()
		if arg == nil {
			continue
		}
		shape = mergeShapes(shape, t.resolver.resolveObjectShape(arg, depth+1))
	}
	return shape
}

// SitesForParameter classifies the parameter's owning function and returns
// every discoverable caller's argument site, the index adjusted per caller.
// An unclassifiable route yields no sites rather than wrong ones.
func (t *callerTracer) SitesForParameter(bind *Binding, property string) []ArgumentSite {
	if bind.Owner == nil || bind.ParamIndex < 0 {
		return nil
	}
	if !t.ctx.enter(ResolveCallers, bind.Decl) {
		return nil
	}
	defer t.ctx.leave(ResolveCallers, bind.Decl)

	calls := t.callSitesOf(bind.Owner)
	return t.sitesFromCalls(calls, bind.ParamIndex, property)
}

// SitesForFunction is the correlated variant used by sink extraction: the
// raw caller argument sites for a function node's parameter index.
func (t *callerTracer) SitesForFunction(fn *sitter.Node, paramIndex int, property string) []ArgumentSite {
	if fn == nil || paramIndex < 0 {
		return nil
	}
	if !t.ctx.enter(ResolveCallers, fn) {
		return nil
	}
	defer t.ctx.leave(ResolveCallers, fn)

	calls := t.callSitesOf(fn)
	return t.sitesFromCalls(calls, paramIndex, property)
}

func (t *callerTracer) sitesFromCalls(calls []callSite, paramIndex int, property string) []ArgumentSite {
	var sites []ArgumentSite
	for _, cs := range calls {
		if len(sites) >= maxCallerSites {
			break
		}
		idx := paramIndex + cs.indexShift
		args := cs.args
		if idx >= len(args) {
			if property == "" || len(args) == 0 {
				continue
			}
			// Overloaded call with fewer arguments than expected: read the
			// last argument, probing earlier positions for the property.
			idx = len(args) - 1
			probed := false
			limit := len(args)
			if limit > maxProbedArgs {
				limit = maxProbedArgs
			}
			for i := limit - 1; i >= 0; i-- {
				if objectHasProperty(unwrapParens(args[i]), property, t.ctx.source) {
					idx = i
					probed = true
					break
				}
			}
			_ = probed
		}
		sites = append(sites, ArgumentSite{Call: cs.call, Args: args, Index: idx})
	}
	return sites
}

func objectHasProperty(n *sitter.Node, property string, source []byte) bool {
	if n == nil || n.Type() != "object" {
		return false
	}
	for _, prop := range literalProperties(n, source) {
		if prop.Key == property {
			return true
		}
	}
	return false
}

// callSite is one discovered invocation, with an argument index shift for
// .call()-style dispatch.
type callSite struct {
	call       *sitter.Node
	args       []*sitter.Node
	indexShift int
}

func directSite(call *sitter.Node) callSite {
	return callSite{call: call, args: callArguments(call)}
}

// callSitesOf dispatches on the owning function's binding route.
func (t *callerTracer) callSitesOf(fn *sitter.Node) []callSite {
	route, _ := classifyRoute(fn, t.ctx.source)
	switch route {
	case RouteDirectName:
		return t.directNameSites(fn)
	case RouteObjectProperty:
		return t.objectPropertySites(fn)
	case RouteAssignedMember, RoutePrototypeMethod:
		return t.memberAssignmentSites(fn)
	case RouteComputedMember:
		return t.computedMemberSites(fn)
	case RouteClassMethod:
		return t.classMethodSites(fn)
	case RouteCallbackArgument:
		return t.callbackSites(fn)
	case RouteReturnedFromFactory:
		return t.factorySites(fn)
	case RouteGlobalAlias:
		return t.globalAliasSites(fn)
	}
	return nil
}

// classifyRoute examines a function node's syntactic position.
func classifyRoute(fn *sitter.Node, source []byte) (BindingRoute, *sitter.Node) {
	if fn == nil {
		return RouteUnknown, nil
	}
	parent := fn.Parent()
	if parent == nil {
		return RouteUnknown, nil
	}

	switch {
	case fn.Type() == "function_declaration" || fn.Type() == "generator_function_declaration":
		return RouteDirectName, fn

	case fn.Type() == "method_definition":
		owner := parent.Parent()
		if parent.Type() == "class_body" && owner != nil {
			return RouteClassMethod, owner
		}
		return RouteObjectProperty, parent

	case parent.Type() == "variable_declarator":
		return RouteDirectName, parent

	case parent.Type() == "pair":
		return RouteObjectProperty, parent

	case parent.Type() == "assignment_expression":
		left := parent.ChildByFieldName("left")
		if left == nil {
			return RouteUnknown, nil
		}
		switch left.Type() {
		case "identifier":
			return RouteDirectName, parent
		case "member_expression":
			if path := flattenPropertyAccess(left, source); path != nil {
				if len(path) >= 3 && path[len(path)-2] == "prototype" {
					return RoutePrototypeMethod, parent
				}
				if path[0] == "window" || path[0] == "self" || path[0] == "globalThis" {
					return RouteGlobalAlias, parent
				}
			}
			return RouteAssignedMember, parent
		case "subscript_expression":
			return RouteComputedMember, parent
		}
		return RouteUnknown, nil

	case parent.Type() == "arguments":
		return RouteCallbackArgument, parent.Parent()

	case parent.Type() == "return_statement" || parent.Type() == "parenthesized_expression":
		return RouteReturnedFromFactory, parent
	}
	return RouteUnknown, nil
}

// -- route: direct name --

func (t *callerTracer) directNameSites(fn *sitter.Node) []callSite {
	bind := t.bindingForFunction(fn)
	if bind == nil {
		// window.f = function assignments land here via classify fallback.
		return t.globalAliasSites(fn)
	}
	var sites []callSite
	for _, ref := range bind.Refs {
		if len(sites) >= maxCallerSites {
			break
		}
		if cs, ok := t.refAsCall(ref); ok {
			sites = append(sites, cs)
		}
	}
	return sites
}

// refAsCall interprets a reference site as an invocation of the referenced
// value: a plain call, a `new`, or an f.call dispatch (which shifts the
// argument index by one past the receiver).
func (t *callerTracer) refAsCall(ref *sitter.Node) (callSite, bool) {
	parent := ref.Parent()
	if parent == nil {
		return callSite{}, false
	}
	switch parent.Type() {
	case "call_expression":
		callee := parent.ChildByFieldName("function")
		if callee != nil && keyOf(callee) == keyOf(ref) {
			return directSite(parent), true
		}
	case "new_expression":
		ctor := parent.ChildByFieldName("constructor")
		if ctor == nil && parent.ChildCount() > 1 {
			ctor = parent.Child(1)
		}
		if ctor != nil && keyOf(ctor) == keyOf(ref) {
			return directSite(parent), true
		}
	case "member_expression":
		prop := parent.ChildByFieldName("property")
		if prop == nil {
			break
		}
		call := parent.Parent()
		if call == nil || call.Type() != "call_expression" {
			break
		}
		callee := call.ChildByFieldName("function")
		if callee == nil || keyOf(callee) != keyOf(parent) {
			break
		}
		if prop.Content(t.ctx.source) == "call" {
			return callSite{call: call, args: callArguments(call), indexShift: 1}, true
		}
	}
	return callSite{}, false
}

func (t *callerTracer) bindingForFunction(fn *sitter.Node) *Binding {
	if name := fn.ChildByFieldName("name"); name != nil {
		if bind := t.ctx.Scopes.BindingAt(name); bind != nil {
			return bind
		}
	}
	parent := fn.Parent()
	if parent == nil {
		return nil
	}
	switch parent.Type() {
	case "variable_declarator":
		if name := parent.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			return t.ctx.Scopes.BindingAt(name)
		}
	case "assignment_expression":
		if left := parent.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
			return t.ctx.Scopes.Lookup(left.Content(t.ctx.source), left)
		}
	}
	return nil
}

// -- route: object-literal property --

func (t *callerTracer) objectPropertySites(fn *sitter.Node) []callSite {
	parent := fn.Parent() // pair or method_definition
	var keyNode *sitter.Node
	var owner *sitter.Node
	if fn.Type() == "method_definition" {
		keyNode = fn.ChildByFieldName("name")
		owner = parent
	} else {
		keyNode = parent.ChildByFieldName("key")
		owner = parent.Parent()
	}
	if keyNode == nil || owner == nil || owner.Type() != "object" {
		return nil
	}
	method, known := staticKeyName(keyNode, t.ctx.source)
	if !known {
		return nil
	}
	return t.sitesForOwnedMethod(owner, method)
}

// sitesForOwnedMethod finds obj.method(...) calls for every name the owning
// object literal travels under: its direct binding, extend-style copies,
// and global aliases.
func (t *callerTracer) sitesForOwnedMethod(objectLiteral *sitter.Node, method string) []callSite {
	var sites []callSite
	for _, ownerBind := range t.ownersOf(objectLiteral) {
		sites = append(sites, t.methodCallSites(ownerBind, method)...)
		if len(sites) >= maxCallerSites {
			return sites[:maxCallerSites]
		}
	}
	for _, globalName := range t.globalNamesOf(objectLiteral) {
		sites = append(sites, t.globalMethodSites(globalName, method)...)
		if len(sites) >= maxCallerSites {
			return sites[:maxCallerSites]
		}
	}
	return sites
}

// ownersOf finds the bindings an object literal is reachable through: the
// declarator or assignment it is the value of, and the target of
// X.extend/Object.assign copy calls it is an argument of.
func (t *callerTracer) ownersOf(objectLiteral *sitter.Node) []*Binding {
	var owners []*Binding
	parent := objectLiteral.Parent()
	if parent == nil {
		return nil
	}

	switch parent.Type() {
	case "variable_declarator":
		if name := parent.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			if bind := t.ctx.Scopes.BindingAt(name); bind != nil {
				owners = append(owners, bind)
			}
		}
	case "assignment_expression":
		if left := parent.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
			if bind := t.ctx.Scopes.Lookup(left.Content(t.ctx.source), left); bind != nil {
				owners = append(owners, bind)
			}
		}
	case "arguments":
		// Copy patterns: Object.assign(target, {...}) / X.extend({...}).
		call := parent.Parent()
		if call != nil && call.Type() == "call_expression" {
			callee := call.ChildByFieldName("function")
			path := flattenPropertyAccess(callee, t.ctx.source)
			if len(path) >= 2 {
				last := path[len(path)-1]
				args := callArguments(call)
				switch {
				case last == "assign" && path[0] == "Object" && len(args) >= 2:
					if target := unwrapParens(args[0]); target != nil && target.Type() == "identifier" {
						if bind := t.ctx.Scopes.Lookup(target.Content(t.ctx.source), target); bind != nil {
							owners = append(owners, bind)
						}
					}
				case last == "extend":
					// jQuery-style X.extend({method: fn}): the copy's owner
					// is the receiver.
					if recv := callee.ChildByFieldName("object"); recv != nil && recv.Type() == "identifier" {
						if bind := t.ctx.Scopes.Lookup(recv.Content(t.ctx.source), recv); bind != nil {
							owners = append(owners, bind)
						}
					}
				}
			}
		}
	}
	return owners
}

// globalNamesOf finds global names the object literal is published under.
func (t *callerTracer) globalNamesOf(objectLiteral *sitter.Node) []string {
	if t.ctx.Globals == nil {
		return nil
	}
	var names []string
	key := keyOf(objectLiteral)
	for _, name := range t.ctx.Globals.Names() {
		entry := t.ctx.Globals.Lookup(name)
		if entry != nil && entry.Value != nil && keyOf(unwrapParens(entry.Value)) == key {
			names = append(names, name)
		}
	}
	// The literal may also be published through a variable later assigned
	// to a global: window.api = api.
	for _, ownerBind := range t.ownersOf(objectLiteral) {
		for _, name := range t.ctx.Globals.Names() {
			entry := t.ctx.Globals.Lookup(name)
			if entry == nil || entry.Value == nil {
				continue
			}
			v := unwrapParens(entry.Value)
			if v != nil && v.Type() == "identifier" && v.Content(t.ctx.source) == ownerBind.Name {
				names = append(names, name)
			}
		}
	}
	return names
}

// methodCallSites scans a binding's references for owner.method(...) calls.
func (t *callerTracer) methodCallSites(ownerBind *Binding, method string) []callSite {
	var sites []callSite
	for _, ref := range ownerBind.Refs {
		if len(sites) >= maxCallerSites {
			break
		}
		member := ref.Parent()
		if member == nil || member.Type() != "member_expression" {
			continue
		}
		obj := member.ChildByFieldName("object")
		prop := member.ChildByFieldName("property")
		if obj == nil || prop == nil || keyOf(obj) != keyOf(ref) {
			continue
		}
		if prop.Content(t.ctx.source) != method {
			continue
		}
		call := member.Parent()
		if call == nil || call.Type() != "call_expression" {
			continue
		}
		callee := call.ChildByFieldName("function")
		if callee != nil && keyOf(callee) == keyOf(member) {
			sites = append(sites, directSite(call))
		}
	}
	return sites
}

// -- route: member / prototype assignment --

func (t *callerTracer) memberAssignmentSites(fn *sitter.Node) []callSite {
	assign := fn.Parent()
	left := assign.ChildByFieldName("left")
	path := flattenPropertyAccess(left, t.ctx.source)
	if len(path) < 2 {
		return nil
	}
	method := path[len(path)-1]

	// Ctor.prototype.m = fn: find instances created from Ctor and search
	// their references for inst.m(...) calls.
	if len(path) >= 3 && path[len(path)-2] == "prototype" {
		ctorName := path[0]
		var sites []callSite
		if ctorBind := t.ctx.Scopes.Lookup(ctorName, left); ctorBind != nil {
			for _, inst := range t.instanceBindings(ctorBind) {
				sites = append(sites, t.methodCallSites(inst, method)...)
				if len(sites) >= maxCallerSites {
					return sites[:maxCallerSites]
				}
			}
		}
		sites = append(sites, t.globalMethodSites(ctorName, method)...)
		return sites
	}

	// obj.m = fn: search obj's references, then any global alias of obj.
	ownerName := path[len(path)-2]
	var sites []callSite
	if ownerBind := t.ctx.Scopes.Lookup(ownerName, left); ownerBind != nil {
		sites = append(sites, t.methodCallSites(ownerBind, method)...)
	}
	if isGlobalObjectName(path[0]) && len(path) == 2 {
		sites = append(sites, t.globalCallSitesFor(method)...)
	} else {
		sites = append(sites, t.globalMethodSites(ownerName, method)...)
	}
	return sites
}

func isGlobalObjectName(name string) bool {
	switch name {
	case "window", "self", "globalThis", "top":
		return true
	}
	return false
}

// instanceBindings finds variables bound to `new Ctor(...)` results.
func (t *callerTracer) instanceBindings(ctorBind *Binding) []*Binding {
	var out []*Binding
	for _, ref := range ctorBind.Refs {
		parent := ref.Parent()
		if parent == nil || parent.Type() != "new_expression" {
			continue
		}
		holder := parent.Parent()
		if holder == nil {
			continue
		}
		switch holder.Type() {
		case "variable_declarator":
			if name := holder.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				if bind := t.ctx.Scopes.BindingAt(name); bind != nil {
					out = append(out, bind)
				}
			}
		case "assignment_expression":
			if left := holder.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				if bind := t.ctx.Scopes.Lookup(left.Content(t.ctx.source), left); bind != nil {
					out = append(out, bind)
				}
			}
		}
	}
	return out
}

// -- route: computed member assignment --

func (t *callerTracer) computedMemberSites(fn *sitter.Node) []callSite {
	assign := fn.Parent()
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "subscript_expression" {
		return nil
	}
	object := left.ChildByFieldName("object")
	index := left.ChildByFieldName("index")
	if object == nil || index == nil {
		return nil
	}

	names := t.resolver.Resolve(index, 0)
	if len(names) == 0 {
		return nil
	}

	var ownerBind *Binding
	if object.Type() == "identifier" {
		ownerBind = t.ctx.Scopes.Lookup(object.Content(t.ctx.source), object)
	}

	var sites []callSite
	for _, name := range dedupe(names) {
		if ownerBind != nil {
			sites = append(sites, t.methodCallSites(ownerBind, name)...)
		}
		if ownerBind != nil {
			sites = append(sites, t.globalMethodSites(ownerBind.Name, name)...)
		}
		if t.ctx.Globals != nil && t.ctx.Globals.IsGlobalObject(object) {
			sites = append(sites, t.globalCallSitesFor(name)...)
		}
		if len(sites) >= maxCallerSites {
			return sites[:maxCallerSites]
		}
	}
	return sites
}

// -- route: class method --

func (t *callerTracer) classMethodSites(fn *sitter.Node) []callSite {
	nameNode := fn.ChildByFieldName("name")
	classBody := fn.Parent()
	if nameNode == nil || classBody == nil {
		return nil
	}
	class := classBody.Parent()
	if class == nil {
		return nil
	}
	method := nameNode.Content(t.ctx.source)

	var classBind *Binding
	if cname := class.ChildByFieldName("name"); cname != nil {
		classBind = t.ctx.Scopes.BindingAt(cname)
	}
	if classBind == nil {
		return nil
	}
	var sites []callSite
	for _, inst := range t.instanceBindings(classBind) {
		sites = append(sites, t.methodCallSites(inst, method)...)
		if len(sites) >= maxCallerSites {
			return sites[:maxCallerSites]
		}
	}
	sites = append(sites, t.globalMethodSites(classBind.Name, method)...)
	return sites
}

// -- route: callback argument --

// callbackSites handles someFunc(function (param) {...}): find which of the
// callee's parameters receives the callback, then find where that parameter
// is invoked inside the callee, directly, via .call, or through a
// store-then-iterate container.
func (t *callerTracer) callbackSites(fn *sitter.Node) []callSite {
	argsNode := fn.Parent()
	call := argsNode.Parent()
	if call == nil || call.Type() != "call_expression" {
		return nil
	}

	// Which argument position holds the callback?
	cbIndex := -1
	args := callArguments(call)
	for i, arg := range args {
		if keyOf(unwrapParens(arg)) == keyOf(fn) || keyOf(arg) == keyOf(fn) {
			cbIndex = i
			break
		}
	}
	if cbIndex < 0 {
		return nil
	}

	callee := unwrapParens(call.ChildByFieldName("function"))
	target := t.resolver.calleeFunction(callee)
	if target == nil {
		return nil
	}
	params := functionParams(target)
	if cbIndex >= len(params) {
		return nil
	}
	cbParamIdent := paramIdentifier(params[cbIndex])
	if cbParamIdent == nil {
		return nil
	}
	cbBind := t.ctx.Scopes.BindingAt(cbParamIdent)
	if cbBind == nil {
		return nil
	}
	return t.invocationsOfCallback(cbBind, 0)
}

// invocationsOfCallback finds where a callback-holding binding is invoked,
// following one store-now-call-later container hop when needed.
func (t *callerTracer) invocationsOfCallback(cbBind *Binding, hop int) []callSite {
	if hop > 2 {
		return nil
	}
	var sites []callSite
	for _, ref := range cbBind.Refs {
		if len(sites) >= maxCallerSites {
			break
		}
		if cs, ok := t.refAsCall(ref); ok {
			sites = append(sites, cs)
			continue
		}
		// Store-then-call: container.push(cb); later each item is invoked.
		member := ref.Parent()
		if member == nil || member.Type() != "arguments" {
			continue
		}
		storeCall := member.Parent()
		if storeCall == nil || storeCall.Type() != "call_expression" {
			continue
		}
		storeCallee := storeCall.ChildByFieldName("function")
		path := flattenPropertyAccess(storeCallee, t.ctx.source)
		if len(path) < 2 || path[len(path)-1] != "push" {
			continue
		}
		containerName := path[len(path)-2]
		containerBind := t.ctx.Scopes.Lookup(containerName, storeCall)
		if containerBind == nil {
			continue
		}
		sites = append(sites, t.containerItemInvocations(containerBind, hop)...)
	}
	return sites
}

// containerItemInvocations finds where items of a container are invoked:
// container[i](...), container.forEach(cb => cb(...)), or the container
// itself escaping to a parameter (one more hop to its callers).
func (t *callerTracer) containerItemInvocations(containerBind *Binding, hop int) []callSite {
	var sites []callSite
	for _, ref := range containerBind.Refs {
		if len(sites) >= maxCallerSites {
			break
		}
		parent := ref.Parent()
		if parent == nil {
			continue
		}

		// container[i](...)
		if parent.Type() == "subscript_expression" {
			call := parent.Parent()
			if call != nil && call.Type() == "call_expression" {
				callee := call.ChildByFieldName("function")
				if callee != nil && keyOf(callee) == keyOf(parent) {
					sites = append(sites, directSite(call))
				}
			}
			continue
		}

		// container.forEach(function (item) { item(...) })
		if parent.Type() == "member_expression" {
			prop := parent.ChildByFieldName("property")
			call := parent.Parent()
			if prop == nil || call == nil || call.Type() != "call_expression" {
				continue
			}
			name := prop.Content(t.ctx.source)
			if name != "forEach" && name != "map" {
				continue
			}
			iterArgs := callArguments(call)
			if len(iterArgs) == 0 {
				continue
			}
			iterFn := unwrapParens(iterArgs[0])
			if !isFunctionNode(iterFn) {
				continue
			}
			iterParams := functionParams(iterFn)
			if len(iterParams) == 0 {
				continue
			}
			itemIdent := paramIdentifier(iterParams[0])
			if itemIdent == nil {
				continue
			}
			if itemBind := t.ctx.Scopes.BindingAt(itemIdent); itemBind != nil {
				sites = append(sites, t.invocationsOfCallback(itemBind, hop+1)...)
			}
		}
	}
	// The container may itself be a parameter: hop to its callers'
	// containers.
	if len(sites) == 0 && containerBind.Kind == BindParam && hop < 2 {
		for _, site := range t.SitesForParameter(containerBind, "") {
			arg := unwrapParens(site.Arg())
			if arg == nil || arg.Type() != "identifier" {
				continue
			}
			if outer := t.ctx.Scopes.Lookup(arg.Content(t.ctx.source), arg); outer != nil {
				sites = append(sites, t.containerItemInvocations(outer, hop+1)...)
			}
		}
	}
	return sites
}

// -- route: returned from factory / IIFE --

func (t *callerTracer) factorySites(fn *sitter.Node) []callSite {
	wrapper := EnclosingFunction(fn)
	if wrapper == nil {
		return nil
	}
	wrapperCall := enclosingCallOf(wrapper)
	if wrapperCall == nil {
		return nil
	}

	// The wrapper's result is the returned function; find what the call
	// result is bound to and treat its references as direct-name callers.
	holder := wrapperCall.Parent()
	if holder == nil {
		return nil
	}
	switch holder.Type() {
	case "variable_declarator":
		if name := holder.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			if bind := t.ctx.Scopes.BindingAt(name); bind != nil {
				var sites []callSite
				for _, ref := range bind.Refs {
					if cs, ok := t.refAsCall(ref); ok {
						sites = append(sites, cs)
					}
				}
				return sites
			}
		}
	case "assignment_expression":
		left := holder.ChildByFieldName("left")
		if left == nil {
			return nil
		}
		if left.Type() == "identifier" {
			if bind := t.ctx.Scopes.Lookup(left.Content(t.ctx.source), left); bind != nil {
				var sites []callSite
				for _, ref := range bind.Refs {
					if cs, ok := t.refAsCall(ref); ok {
						sites = append(sites, cs)
					}
				}
				return sites
			}
		}
		// window.f = (function(){ return function(){...} })()
		if left.Type() == "member_expression" && t.ctx.Globals != nil {
			obj := left.ChildByFieldName("object")
			prop := left.ChildByFieldName("property")
			if t.ctx.Globals.IsGlobalObject(obj) && prop != nil {
				return t.globalCallSitesFor(prop.Content(t.ctx.source))
			}
		}
	}
	return nil
}

// enclosingCallOf returns the call expression a function is the (possibly
// parenthesized) callee of.
func enclosingCallOf(fn *sitter.Node) *sitter.Node {
	cur := fn
	for {
		parent := cur.Parent()
		if parent == nil {
			return nil
		}
		switch parent.Type() {
		case "parenthesized_expression":
			cur = parent
		case "call_expression":
			callee := parent.ChildByFieldName("function")
			if callee != nil && keyOf(callee) == keyOf(cur) {
				return parent
			}
			return nil
		default:
			return nil
		}
	}
}

// -- route: global alias --

func (t *callerTracer) globalAliasSites(fn *sitter.Node) []callSite {
	parent := fn.Parent()
	if parent == nil || parent.Type() != "assignment_expression" {
		return nil
	}
	left := parent.ChildByFieldName("left")
	path := flattenPropertyAccess(left, t.ctx.source)
	if len(path) < 2 {
		return nil
	}
	name := path[len(path)-1]
	return t.globalCallSitesFor(name)
}

// globalCallSitesFor scans the whole program once per name for bare
// identifier calls and global.name(...) calls, cached for the run.
func (t *callerTracer) globalCallSitesFor(name string) []callSite {
	return t.globalMethodSites("", name)
}

// globalMethodSites finds calls of `name(...)` (ownerName empty) or
// `ownerName.name(...)` where the receiver is unbound or the global object.
func (t *callerTracer) globalMethodSites(ownerName, name string) []callSite {
	key := globalCallKey{Global: ownerName, Method: name}
	if cached, ok := t.ctx.globalCallers[key]; ok {
		return sitesFromNodes(cached)
	}

	var calls []*sitter.Node
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil || len(calls) >= maxCallerSites {
			return
		}
		if n.Type() == "call_expression" {
			callee := unwrapParens(n.ChildByFieldName("function"))
			if t.globalCallMatches(callee, ownerName, name) {
				calls = append(calls, n)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	if t.ctx.Root != nil {
		visit(t.ctx.Root)
	}

	t.ctx.globalCallers[key] = calls
	return sitesFromNodes(calls)
}

func (t *callerTracer) globalCallMatches(callee *sitter.Node, ownerName, name string) bool {
	if callee == nil {
		return false
	}
	src := t.ctx.source

	if ownerName == "" {
		// Bare call f(...) with f unbound, or window.f(...).
		if callee.Type() == "identifier" {
			return callee.Content(src) == name && t.ctx.Scopes.Lookup(name, callee) == nil
		}
		if callee.Type() == "member_expression" {
			obj := callee.ChildByFieldName("object")
			prop := callee.ChildByFieldName("property")
			return prop != nil && prop.Content(src) == name &&
				t.ctx.Globals != nil && t.ctx.Globals.IsGlobalObject(obj)
		}
		return false
	}

	if callee.Type() != "member_expression" {
		return false
	}
	obj := callee.ChildByFieldName("object")
	prop := callee.ChildByFieldName("property")
	if obj == nil || prop == nil || prop.Content(src) != name {
		return false
	}
	switch obj.Type() {
	case "identifier":
		return obj.Content(src) == ownerName
	case "member_expression":
		path := flattenPropertyAccess(obj, src)
		return len(path) == 2 && isGlobalObjectName(path[0]) && path[1] == ownerName
	}
	return false
}

func sitesFromNodes(calls []*sitter.Node) []callSite {
	sites := make([]callSite, 0, len(calls))
	for _, call := range calls {
		sites = append(sites, directSite(call))
	}
	return sites
}

// constructorFor maps a method function node to the constructor whose
// `this` it shares: the class constructor for class methods, the
// constructor function for prototype methods, the function itself when it
// is used with `new` directly.
func (t *callerTracer) constructorFor(fn *sitter.Node) *sitter.Node {
	route, _ := classifyRoute(fn, t.ctx.source)
	switch route {
	case RouteClassMethod:
		classBody := fn.Parent()
		for i := 0; i < int(classBody.ChildCount()); i++ {
			member := classBody.Child(i)
			if member.Type() != "method_definition" {
				continue
			}
			if name := member.ChildByFieldName("name"); name != nil && name.Content(t.ctx.source) == "constructor" {
				return member
			}
		}
		return nil

	case RoutePrototypeMethod:
		assign := fn.Parent()
		left := assign.ChildByFieldName("left")
		path := flattenPropertyAccess(left, t.ctx.source)
		if len(path) < 3 {
			return nil
		}
		ctorBind := t.ctx.Scopes.Lookup(path[0], left)
		if ctorBind != nil && ctorBind.FuncNode != nil {
			return ctorBind.FuncNode
		}
		return nil

	case RouteDirectName:
		// A plain function invoked with `new` is its own constructor.
		if bind := t.bindingForFunction(fn); bind != nil {
			for _, ref := range bind.Refs {
				if parent := ref.Parent(); parent != nil && parent.Type() == "new_expression" {
					return fn
				}
			}
		}
	}
	return nil
}
