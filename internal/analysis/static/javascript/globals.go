// Filename: javascript/globals.go
// Global-binding index: a pre-pass that records window/self/globalThis
// property assignments, IIFE parameters proven to alias the global object,
// and module export names. The resolver falls back to this index for
// identifiers the scope model cannot bind.
package javascript

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// GlobalEntry maps a global name to its definition expression.
type GlobalEntry struct {
	Name  string
	Value *sitter.Node
	// Site is the assignment or export node the definition came from.
	Site *sitter.Node
}

// GlobalIndex is rebuilt from scratch for every analyzed file.
type GlobalIndex struct {
	source  []byte
	scopes  *ScopeModel
	entries map[string]*GlobalEntry
	// aliasDecls marks parameter/variable bindings (by decl node) proven to
	// alias the global object via a literal IIFE argument.
	aliasDecls map[NodeKey]struct{}
	exports    map[string]*sitter.Node
}

// BuildGlobalIndex scans the whole program once. The scope model must
// already be built; alias detection consults it to verify unbound names.
func BuildGlobalIndex(root *sitter.Node, source []byte, scopes *ScopeModel) *GlobalIndex {
	gi := &GlobalIndex{
		source:     source,
		scopes:     scopes,
		entries:    make(map[string]*GlobalEntry),
		aliasDecls: make(map[NodeKey]struct{}),
		exports:    make(map[string]*sitter.Node),
	}
	// Aliases first, so the assignment sweep recognizes aliased receivers.
	gi.collectAliases(root)
	gi.collect(root)
	return gi
}

// Lookup returns the definition recorded for a global name.
func (gi *GlobalIndex) Lookup(name string) *GlobalEntry {
	return gi.entries[name]
}

// Export returns the exported value for a module export name.
func (gi *GlobalIndex) Export(name string) *sitter.Node {
	return gi.exports[name]
}

// Names returns every indexed global name. Order is map order; callers that
// need determinism sort.
func (gi *GlobalIndex) Names() []string {
	names := make([]string, 0, len(gi.entries))
	for name := range gi.entries {
		names = append(names, name)
	}
	return names
}

// IsGlobalObject reports whether the expression provably denotes the global
// object: an unbound window/self/globalThis/top, a proven alias binding, or
// top-level `this`.
func (gi *GlobalIndex) IsGlobalObject(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "this":
		return EnclosingFunction(n) == nil
	case "identifier":
		name := n.Content(gi.source)
		bind := gi.scopes.Lookup(name, n)
		if bind == nil {
			switch name {
			case "window", "self", "globalThis", "top":
				return true
			}
			return false
		}
		_, aliased := gi.aliasDecls[keyOf(bind.Decl)]
		return aliased
	case "parenthesized_expression":
		inner := n.ChildByFieldName("expression")
		if inner == nil && n.ChildCount() > 2 {
			inner = n.Child(1)
		}
		return gi.IsGlobalObject(inner)
	}
	return false
}

// collectAliases finds (function (w) {...})(window) call sites and marks the
// positionally matching parameters as global aliases. UMD-style
// `call(this)` at the top level counts too.
func (gi *GlobalIndex) collectAliases(n *sitter.Node) {
	if n == nil || n.IsNull() {
		return
	}

	if n.Type() == "call_expression" {
		gi.markIIFEAliases(n)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		gi.collectAliases(n.Child(i))
	}
}

func (gi *GlobalIndex) markIIFEAliases(call *sitter.Node) {
	callee := call.ChildByFieldName("function")
	fn := unwrapParens(callee)
	if !isFunctionNode(fn) {
		return
	}
	args := callArguments(call)
	params := functionParams(fn)

	for i, arg := range args {
		if i >= len(params) {
			break
		}
		isGlobal := false
		switch arg.Type() {
		case "identifier":
			name := arg.Content(gi.source)
			if gi.scopes.Lookup(name, arg) == nil {
				switch name {
				case "window", "self", "globalThis", "top":
					isGlobal = true
				}
			}
		case "this":
			isGlobal = EnclosingFunction(arg) == nil
		}
		if !isGlobal {
			continue
		}
		if params[i].Type() == "identifier" {
			gi.aliasDecls[keyOf(params[i])] = struct{}{}
		}
	}
}

func (gi *GlobalIndex) collect(n *sitter.Node) {
	if n == nil || n.IsNull() {
		return
	}

	switch n.Type() {
	case "assignment_expression":
		gi.indexAssignment(n)
	case "export_statement":
		gi.indexExport(n)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		gi.collect(n.Child(i))
	}
}

func (gi *GlobalIndex) indexAssignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil {
		return
	}

	var name string
	switch left.Type() {
	case "member_expression":
		object := left.ChildByFieldName("object")
		property := left.ChildByFieldName("property")
		if property == nil {
			return
		}
		if gi.IsGlobalObject(object) {
			name = property.Content(gi.source)
		} else if path := flattenPropertyAccess(left, gi.source); path != nil {
			// module.exports.x = ... / exports.x = ...
			if len(path) == 3 && path[0] == "module" && path[1] == "exports" {
				gi.exports[path[2]] = right
				return
			}
			if len(path) == 2 && path[0] == "exports" {
				gi.exports[path[1]] = right
				return
			}
		}
	case "subscript_expression":
		object := left.ChildByFieldName("object")
		index := left.ChildByFieldName("index")
		if gi.IsGlobalObject(object) && index != nil && index.Type() == "string" {
			name = stringLiteralValue(index, gi.source)
		}
	}

	if name == "" {
		return
	}
	// First assignment wins; later reassignments of the same global rarely
	// change the callable shape and keeping the first matches source order.
	if _, exists := gi.entries[name]; !exists {
		gi.entries[name] = &GlobalEntry{Name: name, Value: right, Site: n}
	}
}

func (gi *GlobalIndex) indexExport(stmt *sitter.Node) {
	if decl := stmt.ChildByFieldName("declaration"); decl != nil {
		switch decl.Type() {
		case "function_declaration", "generator_function_declaration", "class_declaration":
			if name := decl.ChildByFieldName("name"); name != nil {
				gi.exports[name.Content(gi.source)] = decl
			}
		case "lexical_declaration", "variable_declaration":
			for i := 0; i < int(decl.ChildCount()); i++ {
				child := decl.Child(i)
				if child.Type() != "variable_declarator" {
					continue
				}
				name := child.ChildByFieldName("name")
				value := child.ChildByFieldName("value")
				if name != nil && name.Type() == "identifier" && value != nil {
					gi.exports[name.Content(gi.source)] = value
				}
			}
		}
	}
}

// -- shared small node utilities --

func unwrapParens(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		inner := n.ChildByFieldName("expression")
		if inner == nil && n.ChildCount() > 2 {
			inner = n.Child(1)
		}
		n = inner
	}
	return n
}

// callArguments returns the argument expressions of a call, spread elements
// included, punctuation skipped.
func callArguments(call *sitter.Node) []*sitter.Node {
	argsNode := call.ChildByFieldName("arguments")
	if argsNode == nil {
		return nil
	}
	var args []*sitter.Node
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		child := argsNode.Child(i)
		if t := child.Type(); t == "(" || t == ")" || t == "," {
			continue
		}
		args = append(args, child)
	}
	return args
}

// functionParams returns the parameter pattern nodes of a function.
func functionParams(fn *sitter.Node) []*sitter.Node {
	if fn == nil {
		return nil
	}
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		params = fn.ChildByFieldName("formal_parameters")
	}
	if params == nil {
		if fn.Type() == "arrow_function" {
			if p := fn.ChildByFieldName("parameter"); p != nil {
				return []*sitter.Node{p}
			}
		}
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(params.ChildCount()); i++ {
		param := params.Child(i)
		switch param.Type() {
		case "identifier", "rest_parameter", "rest_pattern", "object_pattern", "array_pattern", "assignment_pattern":
			out = append(out, param)
		}
	}
	return out
}

// paramIdentifier digs the plain identifier out of a parameter pattern, nil
// for destructuring patterns.
func paramIdentifier(param *sitter.Node) *sitter.Node {
	switch param.Type() {
	case "identifier":
		return param
	case "assignment_pattern":
		left := param.ChildByFieldName("left")
		if left != nil && left.Type() == "identifier" {
			return left
		}
	}
	return nil
}
