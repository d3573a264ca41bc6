// Filename: javascript/shapes.go
// Object and array materialization: the same identifier/parameter/call-return
// chase as scalar resolution, but returning literal shapes so member rules
// can read individual fields. Supports shallow merging for spread and
// Object.assign-style combination.
package javascript

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// ShapeProp is one property of a materialized object shape.
type ShapeProp struct {
	Key   string
	Value *sitter.Node
}

// literalProperties lists the statically-keyed properties of an object
// literal node, spreads excluded (the shape resolver merges those).
func literalProperties(obj *sitter.Node, source []byte) []ShapeProp {
	if obj == nil || obj.Type() != "object" {
		return nil
	}
	var props []ShapeProp
	for i := 0; i < int(obj.ChildCount()); i++ {
		child := obj.Child(i)
		switch child.Type() {
		case "pair":
			key := child.ChildByFieldName("key")
			value := child.ChildByFieldName("value")
			if key == nil || value == nil {
				continue
			}
			name, known := staticKeyName(key, source)
			if !known {
				continue
			}
			props = append(props, ShapeProp{Key: name, Value: value})
		case "shorthand_property_identifier":
			props = append(props, ShapeProp{Key: NodeContent(child, source), Value: child})
		case "method_definition":
			if name := child.ChildByFieldName("name"); name != nil {
				props = append(props, ShapeProp{Key: NodeContent(name, source), Value: child})
			}
		}
	}
	return props
}

// staticKeyName extracts a statically known property key.
func staticKeyName(key *sitter.Node, source []byte) (string, bool) {
	if key == nil {
		return "", false
	}
	switch key.Type() {
	case "property_identifier", "identifier", "shorthand_property_identifier":
		return NodeContent(key, source), true
	case "string":
		return stringLiteralValue(key, source), true
	case "number":
		return NodeContent(key, source), true
	}
	return "", false
}

// mergeShapes overlays props onto base, later keys winning, modeling
// {...a, ...b} and Object.assign(a, b).
func mergeShapes(base, overlay []ShapeProp) []ShapeProp {
	if len(base) == 0 {
		return overlay
	}
	out := make([]ShapeProp, len(base))
	copy(out, base)
	for _, p := range overlay {
		replaced := false
		for i := range out {
			if out[i].Key == p.Key {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

// resolveObjectShape chases an expression to a property list. Cycle-guarded
// with its own resolution kind so shape questions never collide with scalar
// questions about the same node.
func (r *resolver) resolveObjectShape(n *sitter.Node, depth int) []ShapeProp {
	if n == nil || n.IsNull() || depth >= maxResolveDepth {
		return nil
	}
	if !r.ctx.enter(ResolveObject, n) {
		return nil
	}
	defer r.ctx.leave(ResolveObject, n)

	switch n.Type() {
	case "object":
		shape := make([]ShapeProp, 0, 4)
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() != "spread_element" {
				continue
			}
			arg := child.ChildByFieldName("argument")
			if arg == nil && child.ChildCount() > 1 {
				arg = child.Child(1)
			}
			shape = mergeShapes(shape, r.resolveObjectShape(arg, depth+1))
		}
		return mergeShapes(shape, literalProperties(n, r.ctx.source))

	case "parenthesized_expression":
		return r.resolveObjectShape(unwrapParens(n), depth+1)

	case "identifier":
		name := n.Content(r.ctx.source)
		bind := r.ctx.Scopes.Lookup(name, n)
		if bind == nil {
			if r.ctx.Globals != nil {
				if entry := r.ctx.Globals.Lookup(name); entry != nil {
					return r.resolveObjectShape(entry.Value, depth+1)
				}
			}
			return nil
		}
		if bind.Kind == BindParam {
			return r.tracer.ShapeForParameter(bind, depth+1)
		}
		if bind.Init != nil {
			shape := r.resolveObjectShape(bind.Init, depth+1)
			// Later whole-object reassignments overlay the initializer.
			if len(bind.Assignments) > 0 && len(bind.Assignments) <= maxAssignmentUnion {
				for _, rhs := range bind.Assignments {
					shape = mergeShapes(shape, r.resolveObjectShape(rhs, depth+1))
				}
			}
			return shape
		}
		return nil

	case "call_expression":
		callee := unwrapParens(n.ChildByFieldName("function"))
		if callee == nil {
			return nil
		}
		// Object.assign(target, ...sources): shallow merge, later wins.
		if path := flattenPropertyAccess(callee, r.ctx.source); len(path) == 2 && path[0] == "Object" && path[1] == "assign" {
			var shape []ShapeProp
			for _, arg := range callArguments(n) {
				shape = mergeShapes(shape, r.resolveObjectShape(arg, depth+1))
			}
			return shape
		}
		if fn := r.calleeFunction(callee); fn != nil {
			return r.shapeFromReturns(fn, depth)
		}
		return nil

	case "member_expression":
		// Nested shape read: cfg.endpoints.users etc.
		object := n.ChildByFieldName("object")
		property := n.ChildByFieldName("property")
		if object == nil || property == nil {
			return nil
		}
		outer := r.resolveObjectShape(object, depth+1)
		propName := property.Content(r.ctx.source)
		for _, prop := range outer {
			if prop.Key == propName {
				return r.resolveObjectShape(prop.Value, depth+1)
			}
		}
		return nil
	}
	return nil
}

// shapeFromReturns materializes the first object-resolvable return value of
// a function, not descending into nested functions.
func (r *resolver) shapeFromReturns(fn *sitter.Node, depth int) []ShapeProp {
	body := functionBody(fn)
	if body == nil {
		return nil
	}
	if body.Type() != "statement_block" {
		return r.resolveObjectShape(unwrapParens(body), depth+1)
	}

	var shape []ShapeProp
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil || shape != nil {
			return
		}
		if isFunctionNode(n) {
			return
		}
		if n.Type() == "return_statement" {
			if arg := returnArgument(n); arg != nil {
				shape = r.resolveObjectShape(unwrapParens(arg), depth+1)
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(body)
	return shape
}

// resolveArrayShape chases an expression to its element list.
func (r *resolver) resolveArrayShape(n *sitter.Node, depth int) []*sitter.Node {
	if n == nil || n.IsNull() || depth >= maxResolveDepth {
		return nil
	}
	if !r.ctx.enter(ResolveArray, n) {
		return nil
	}
	defer r.ctx.leave(ResolveArray, n)

	switch n.Type() {
	case "array":
		var elems []*sitter.Node
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if t := child.Type(); t == "[" || t == "]" || t == "," {
				continue
			}
			if child.Type() == "spread_element" {
				arg := child.ChildByFieldName("argument")
				if arg == nil && child.ChildCount() > 1 {
					arg = child.Child(1)
				}
				elems = append(elems, r.resolveArrayShape(arg, depth+1)...)
				continue
			}
			elems = append(elems, child)
		}
		return elems

	case "parenthesized_expression":
		return r.resolveArrayShape(unwrapParens(n), depth+1)

	case "identifier":
		name := n.Content(r.ctx.source)
		bind := r.ctx.Scopes.Lookup(name, n)
		if bind != nil && bind.Init != nil && bind.IsConstLike() {
			return r.resolveArrayShape(bind.Init, depth+1)
		}
		if bind == nil && r.ctx.Globals != nil {
			if entry := r.ctx.Globals.Lookup(name); entry != nil {
				return r.resolveArrayShape(entry.Value, depth+1)
			}
		}
		return nil

	case "call_expression":
		callee := unwrapParens(n.ChildByFieldName("function"))
		if fn := r.calleeFunction(callee); fn != nil {
			body := functionBody(fn)
			if body != nil && body.Type() != "statement_block" {
				return r.resolveArrayShape(unwrapParens(body), depth+1)
			}
			var elems []*sitter.Node
			var visit func(cur *sitter.Node)
			visit = func(cur *sitter.Node) {
				if cur == nil || elems != nil || isFunctionNode(cur) {
					return
				}
				if cur.Type() == "return_statement" {
					if arg := returnArgument(cur); arg != nil {
						elems = r.resolveArrayShape(unwrapParens(arg), depth+1)
					}
					return
				}
				for i := 0; i < int(cur.ChildCount()); i++ {
					visit(cur.Child(i))
				}
			}
			if body != nil {
				visit(body)
			}
			return elems
		}
	}
	return nil
}
