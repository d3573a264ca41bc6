// Filename: javascript/constraints.go
// Value-constraint mining. A pre-pass scans for validation idioms that
// prove the set of values a named parameter may take, so body parameters
// discovered later can be annotated with their valid values.
package javascript

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// mineConstraints walks the tree once recording validation patterns:
// inequality guard chains, array membership checks, and switch dispatch.
func mineConstraints(ctx *AnalysisContext) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch n.Type() {
		case "if_statement":
			mineGuardChain(ctx, n)
		case "call_expression":
			mineMembership(ctx, n)
		case "switch_statement":
			mineSwitch(ctx, n)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(ctx.Root)
}

// mineGuardChain matches `if (x !== "a" && x !== "b") throw ...`: the guard
// rejects everything outside the literal set, so the set is exhaustive.
func mineGuardChain(ctx *AnalysisContext, stmt *sitter.Node) {
	cond := unwrapParens(stmt.ChildByFieldName("condition"))
	if cond == nil {
		return
	}
	cons := stmt.ChildByFieldName("consequence")
	if cons == nil || !containsThrow(cons) {
		return
	}
	name, values := inequalityChain(ctx, cond)
	if name != "" && len(values) > 0 {
		ctx.AddConstraint(name, values)
	}
}

// inequalityChain flattens `x !== "a" && x !== "b" && ...` requiring every
// clause to test the same identifier.
func inequalityChain(ctx *AnalysisContext, n *sitter.Node) (string, []string) {
	src := ctx.source
	var name string
	var values []string
	var visit func(n *sitter.Node) bool
	visit = func(n *sitter.Node) bool {
		n = unwrapParens(n)
		if n == nil || n.Type() != "binary_expression" {
			return false
		}
		op := operatorOf(n, src)
		if op == "&&" {
			return visit(n.ChildByFieldName("left")) && visit(n.ChildByFieldName("right"))
		}
		if op != "!==" && op != "!=" {
			return false
		}
		left := unwrapParens(n.ChildByFieldName("left"))
		right := unwrapParens(n.ChildByFieldName("right"))
		if left == nil || right == nil {
			return false
		}
		if left.Type() != "identifier" {
			left, right = right, left
		}
		if left == nil || left.Type() != "identifier" {
			return false
		}
		lit := stringLiteralValue(right, src)
		if lit == "" {
			return false
		}
		ident := left.Content(src)
		if name == "" {
			name = ident
		} else if name != ident {
			return false
		}
		values = append(values, lit)
		return true
	}
	if !visit(n) {
		return "", nil
	}
	return name, values
}

func containsThrow(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	if n.Type() == "throw_statement" {
		return true
	}
	if isFunctionNode(n) {
		return false
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if containsThrow(n.Child(i)) {
			return true
		}
	}
	return false
}

// mineMembership matches `["a","b"].includes(x)` and the indexOf variant.
func mineMembership(ctx *AnalysisContext, call *sitter.Node) {
	src := ctx.source
	callee := unwrapParens(call.ChildByFieldName("function"))
	if callee == nil || callee.Type() != "member_expression" {
		return
	}
	prop := callee.ChildByFieldName("property")
	if prop == nil {
		return
	}
	method := prop.Content(src)
	if method != "includes" && method != "indexOf" {
		return
	}
	arr := unwrapParens(callee.ChildByFieldName("object"))
	if arr == nil || arr.Type() != "array" {
		return
	}
	args := callArguments(call)
	if len(args) == 0 {
		return
	}
	target := unwrapParens(args[0])
	if target == nil || target.Type() != "identifier" {
		return
	}
	var values []string
	for i := 0; i < int(arr.ChildCount()); i++ {
		el := arr.Child(i)
		if !el.IsNamed() {
			continue
		}
		if v := stringLiteralValue(el, src); v != "" {
			values = append(values, v)
		} else {
			return
		}
	}
	if len(values) > 0 {
		ctx.AddConstraint(target.Content(src), values)
	}
}

// mineSwitch records case labels of a switch over a bare identifier. A
// default clause voids the constraint since any value is then accepted.
func mineSwitch(ctx *AnalysisContext, stmt *sitter.Node) {
	src := ctx.source
	value := unwrapParens(stmt.ChildByFieldName("value"))
	if value == nil {
		value = unwrapParens(stmt.ChildByFieldName("condition"))
	}
	if value == nil || value.Type() != "identifier" {
		return
	}
	body := stmt.ChildByFieldName("body")
	if body == nil {
		return
	}
	var values []string
	for i := 0; i < int(body.ChildCount()); i++ {
		clause := body.Child(i)
		switch clause.Type() {
		case "switch_default":
			return
		case "switch_case":
			label := clause.ChildByFieldName("value")
			if label == nil {
				continue
			}
			if v := stringLiteralValue(label, src); v != "" {
				values = append(values, v)
			} else {
				return
			}
		}
	}
	if len(values) > 0 {
		ctx.AddConstraint(value.Content(src), values)
	}
}
