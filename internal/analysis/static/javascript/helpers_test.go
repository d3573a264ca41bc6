// Filename: javascript/helpers_test.go
package javascript

import (
	"context"
	"strings"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap/zaptest"
)

// -- Shared Test Helpers --

// newTestRun parses a snippet and builds the full per-file analysis state,
// including the pre-passes, exactly as Analyze does.
func newTestRun(t *testing.T, code string) (*AnalysisContext, *resolver) {
	t.Helper()
	source := []byte(code)
	tree, err := ParseSource(context.Background(), source)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	t.Cleanup(tree.Close)

	run := NewAnalysisContext(zaptest.NewLogger(t), source)
	run.Root = tree.RootNode()
	run.Scopes = BuildScopeModel(run.Root, source)
	run.Globals = BuildGlobalIndex(run.Root, source, run.Scopes)
	trackTypes(run)
	mineConstraints(run)
	return run, newResolver(run)
}

// findNode locates the first named node whose source text matches exactly.
// An optional type filter disambiguates identical spans.
func findNode(t *testing.T, run *AnalysisContext, snippet string, nodeTypes ...string) *sitter.Node {
	t.Helper()
	var found *sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || found != nil {
			return
		}
		if n.IsNamed() && NodeContent(n, run.source) == snippet {
			if len(nodeTypes) == 0 {
				found = n
				return
			}
			for _, tt := range nodeTypes {
				if n.Type() == tt {
					found = n
					return
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(run.Root)
	if found == nil {
		t.Fatalf("no node matching %q", snippet)
	}
	return found
}

func assertValues(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d values %v, got %v", len(want), want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func containsValue(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// -- Helper Unit Tests --

func TestUnquote(t *testing.T) {
	cases := map[string]string{
		`"hello"`:       "hello",
		`'world'`:       "world",
		"`plain`":       "plain",
		`"a\"b"`:        `a"b`,
		`"tab\there"`:   "tab\there",
		`"line\nbreak"`: "line\nbreak",
		`""`:            "",
	}
	for raw, want := range cases {
		if got := unquote(raw); got != want {
			t.Errorf("unquote(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestZipConcatBroadcast(t *testing.T) {
	// Shorter side's last value is broadcast.
	got := zipConcat([]string{"a1", "a2"}, []string{"b1"})
	assertValues(t, got, "a1b1", "a2b1")

	got = zipConcat([]string{"p"}, []string{"x", "y", "z"})
	assertValues(t, got, "px", "py", "pz")

	got = zipConcat([]string{"a", "b"}, []string{"1", "2"})
	assertValues(t, got, "a1", "b2")
}

func TestZipConcatEmptySides(t *testing.T) {
	if got := zipConcat(nil, []string{"x"}); got != nil {
		t.Errorf("expected nil for empty left side, got %v", got)
	}
	if got := zipConcat([]string{"x"}, nil); got != nil {
		t.Errorf("expected nil for empty right side, got %v", got)
	}
}

func TestAppendValueCap(t *testing.T) {
	var set []string
	for i := 0; i < maxValueSet*2; i++ {
		set = appendValue(set, strings.Repeat("v", i+1))
	}
	if len(set) != maxValueSet {
		t.Errorf("expected cap at %d values, got %d", maxValueSet, len(set))
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"a", "b", "a", "c", "b"})
	assertValues(t, got, "a", "b", "c")
}

func TestFormatLocationExcerpt(t *testing.T) {
	code := "var a = 1;\nvar b = location.hash;\nvar c = 3;\n"
	run, _ := newTestRun(t, code)
	node := findNode(t, run, "location.hash")

	loc := FormatLocation("test.js", node, run.source)
	if loc.Line != 2 {
		t.Errorf("expected line 2, got %d", loc.Line)
	}
	if loc.File != "test.js" {
		t.Errorf("expected file test.js, got %s", loc.File)
	}
	if !strings.Contains(loc.Excerpt, "location.hash") {
		t.Errorf("excerpt should contain the node text, got %q", loc.Excerpt)
	}
}

func TestTruncateAroundLongLine(t *testing.T) {
	long := strings.Repeat("x", 500) + "TARGET" + strings.Repeat("y", 500)
	got := truncateAround(long, 500)
	if len(got) > excerptLineWidth+10 {
		t.Errorf("truncated line still too long: %d chars", len(got))
	}
	if !strings.Contains(got, "TARGET") {
		t.Errorf("truncation lost the relevant column: %q", got)
	}
}
