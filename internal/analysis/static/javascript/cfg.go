// Filename: javascript/cfg.go
// Minimal statement-level control flow used only for sanitizer dominance.
// One block per top-level statement; if/else diverges and rejoins; loops and
// switch are opaque pass-through blocks. That approximation is deliberate:
// the question is "does every path to this sink cross a sanitizer", not
// full flow analysis.
package javascript

import (
	sitter "github.com/smacker/go-tree-sitter"
)

type cfgBlock struct {
	node      *sitter.Node
	sanitizer bool
	succs     []int
}

type cfg struct {
	blocks []cfgBlock
	entry  int
	exit   int
}

// buildCFG assembles the block graph of a function body. The entry and exit
// blocks are synthetic and carry no statement.
func (ta *taintAnalyzer) buildCFG(body *sitter.Node) *cfg {
	g := &cfg{}
	g.entry = g.add(nil)
	g.exit = g.add(nil)

	frontier := []int{g.entry}
	for i := 0; i < int(body.ChildCount()); i++ {
		stmt := body.Child(i)
		if !stmt.IsNamed() || stmt.Type() == "comment" {
			continue
		}
		frontier = ta.linkStatement(g, stmt, frontier)
	}
	for _, idx := range frontier {
		g.blocks[idx].succs = append(g.blocks[idx].succs, g.exit)
	}
	return g
}

func (g *cfg) add(n *sitter.Node) int {
	g.blocks = append(g.blocks, cfgBlock{node: n})
	return len(g.blocks) - 1
}

// linkStatement wires one statement into the graph and returns the new
// frontier (the blocks whose successors the next statement becomes).
func (ta *taintAnalyzer) linkStatement(g *cfg, stmt *sitter.Node, frontier []int) []int {
	if stmt.Type() != "if_statement" {
		idx := g.add(stmt)
		g.blocks[idx].sanitizer = ta.blockSanitizes(stmt)
		for _, f := range frontier {
			g.blocks[f].succs = append(g.blocks[f].succs, idx)
		}
		return []int{idx}
	}

	cond := g.add(stmt.ChildByFieldName("condition"))
	for _, f := range frontier {
		g.blocks[f].succs = append(g.blocks[f].succs, cond)
	}

	var next []int
	if cons := stmt.ChildByFieldName("consequence"); cons != nil {
		idx := g.add(cons)
		g.blocks[idx].sanitizer = ta.blockSanitizes(cons)
		g.blocks[cond].succs = append(g.blocks[cond].succs, idx)
		next = append(next, idx)
	}
	if alt := stmt.ChildByFieldName("alternative"); alt != nil {
		// else-if chains nest one level deeper.
		body := alt
		if alt.Type() == "else_clause" && alt.ChildCount() > 1 {
			body = alt.Child(1)
		}
		idx := g.add(body)
		g.blocks[idx].sanitizer = ta.blockSanitizes(body)
		g.blocks[cond].succs = append(g.blocks[cond].succs, idx)
		next = append(next, idx)
	} else {
		// No else: the condition can fall through untouched.
		next = append(next, cond)
	}
	return next
}

// blockSanitizes reports whether a statement subtree contains a sanitizer
// call, without descending into nested functions (those do not run inline).
func (ta *taintAnalyzer) blockSanitizes(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	if isFunctionNode(n) {
		return false
	}
	if n.Type() == "call_expression" && ta.isSanitizerCall(n) {
		return true
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if ta.blockSanitizes(n.Child(i)) {
			return true
		}
	}
	return false
}

// isSanitizerCall checks the callee path against the sanitizer table and
// verifies the name is not shadowed by a local binding.
func (ta *taintAnalyzer) isSanitizerCall(call *sitter.Node) bool {
	callee := unwrapParens(call.ChildByFieldName("function"))
	if callee == nil {
		return false
	}
	path := flattenPropertyAccess(callee, ta.ctx.source)
	if !isSanitizerPath(path) {
		return false
	}
	if root := rootIdentifier(callee); root != nil {
		if ta.ctx.Scopes.BindingAt(root) != nil {
			return false
		}
	}
	return true
}

// isSinkSanitized decides whether every execution path from function entry
// to the sink crosses a sanitizer. When the enclosing function contains no
// sanitizer at all the answer is immediate.
func (ta *taintAnalyzer) isSinkSanitized(sink *sitter.Node) bool {
	fn := EnclosingFunction(sink)
	var body *sitter.Node
	if fn != nil {
		body = functionBody(fn)
	} else {
		body = ta.ctx.Root
	}
	if body == nil || body.Type() != "statement_block" && body.Type() != "program" {
		// Expression-bodied arrow: the sink is sanitized only if wrapped
		// directly in a sanitizer call.
		return ta.sanitizerWraps(sink)
	}
	if !ta.blockSanitizes(body) {
		return false
	}

	g := ta.buildCFG(body)
	sinkIdx := g.blockContaining(sink)
	if sinkIdx < 0 {
		return false
	}
	return !g.unsanitizedPathTo(sinkIdx)
}

// sanitizerWraps reports whether the sink expression sits inside a
// sanitizer call argument.
func (ta *taintAnalyzer) sanitizerWraps(sink *sitter.Node) bool {
	for p := sink.Parent(); p != nil; p = p.Parent() {
		if p.Type() == "call_expression" && ta.isSanitizerCall(p) {
			return true
		}
		if isFunctionNode(p) {
			return false
		}
	}
	return false
}

// blockContaining returns the innermost block whose statement spans the
// sink's byte range.
func (g *cfg) blockContaining(sink *sitter.Node) int {
	best := -1
	var bestSpan uint32
	for i, b := range g.blocks {
		if b.node == nil {
			continue
		}
		if b.node.StartByte() <= sink.StartByte() && sink.EndByte() <= b.node.EndByte() {
			span := b.node.EndByte() - b.node.StartByte()
			if best < 0 || span < bestSpan {
				best = i
				bestSpan = span
			}
		}
	}
	return best
}

// unsanitizedPathTo searches for an entry-to-sink path that never crosses a
// sanitizer block. The graph is acyclic, so plain DFS with a per-state
// visited set terminates.
func (g *cfg) unsanitizedPathTo(sinkIdx int) bool {
	type state struct {
		idx       int
		sanitized bool
	}
	visited := make(map[state]bool)
	var dfs func(idx int, sanitized bool) bool
	dfs = func(idx int, sanitized bool) bool {
		if g.blocks[idx].sanitizer {
			sanitized = true
		}
		if idx == sinkIdx {
			return !sanitized
		}
		st := state{idx: idx, sanitized: sanitized}
		if visited[st] {
			return false
		}
		visited[st] = true
		for _, s := range g.blocks[idx].succs {
			if dfs(s, sanitized) {
				return true
			}
		}
		return false
	}
	return dfs(g.entry, false)
}
