// Filename: javascript/resolve_test.go
package javascript

import (
	"testing"
)

func resolveSnippet(t *testing.T, code, snippet string, nodeTypes ...string) []string {
	t.Helper()
	run, res := newTestRun(t, code)
	node := findNode(t, run, snippet, nodeTypes...)
	return res.Resolve(node, 0)
}

func TestResolveLiterals(t *testing.T) {
	got := resolveSnippet(t, `var a = "hello";`, `"hello"`)
	assertValues(t, got, "hello")

	got = resolveSnippet(t, `var n = 42;`, `42`)
	assertValues(t, got, "42")
}

func TestResolveTemplateNoInterpolation(t *testing.T) {
	got := resolveSnippet(t, "var a = `plain text`;", "`plain text`")
	assertValues(t, got, "plain text")
}

func TestResolveTemplateInterpolation(t *testing.T) {
	code := "var id = \"42\";\nvar url = `/api/users/${id}`;"
	got := resolveSnippet(t, code, "`/api/users/${id}`")
	assertValues(t, got, "/api/users/42")
}

func TestResolveTemplatePlaceholderFallback(t *testing.T) {
	// The interpolated name cannot resolve, so the template degrades to a
	// placeholder string instead of failing.
	code := "var url = `/api/items/${itemId}`;"
	got := resolveSnippet(t, code, "`/api/items/${itemId}`")
	assertValues(t, got, "/api/items/{itemId}")
}

func TestResolveConcatZipLaw(t *testing.T) {
	// a resolves to two values, b to one: the shorter side broadcasts.
	code := `
		var a = cond ? "x" : "y";
		var b = "1";
		var out = a + b;
	`
	got := resolveSnippet(t, code, `a + b`)
	assertValues(t, got, "x1", "y1")
}

func TestResolveConcatChain(t *testing.T) {
	code := `
		var base = "/api";
		var version = "/v2";
		var url = base + version + "/users";
	`
	got := resolveSnippet(t, code, `base + version + "/users"`)
	assertValues(t, got, "/api/v2/users")
}

func TestResolveTernaryUnion(t *testing.T) {
	code := `var mode = flag ? "fast" : "slow";`
	got := resolveSnippet(t, code, `flag ? "fast" : "slow"`)
	assertValues(t, got, "fast", "slow")
}

func TestResolveLogicalOrUnion(t *testing.T) {
	code := `var host = configured || "localhost";`
	got := resolveSnippet(t, code, `configured || "localhost"`)
	assertValues(t, got, "localhost")
}

func TestResolveCallReturnChase(t *testing.T) {
	code := `
		function endpoint() { return "/api/items"; }
		var url = endpoint();
	`
	got := resolveSnippet(t, code, `endpoint()`)
	assertValues(t, got, "/api/items")
}

func TestResolveTransparentStringMethods(t *testing.T) {
	// Transparent methods pass the receiver through for discovery; the
	// transformation itself is not evaluated.
	code := `var u = "/api/users/".trim();`
	got := resolveSnippet(t, code, `"/api/users/".trim()`)
	assertValues(t, got, "/api/users/")
}

func TestResolveArrayJoin(t *testing.T) {
	code := `var path = ["api", "v1", "users"].join("/");`
	got := resolveSnippet(t, code, `["api", "v1", "users"].join("/")`)
	assertValues(t, got, "api/v1/users")
}

func TestResolveIdentifierConst(t *testing.T) {
	code := `
		const BASE = "/api";
		var url = BASE;
	`
	run, res := newTestRun(t, code)
	node := findNode(t, run, "BASE", "identifier")
	// findNode returns the declaration site; look up the reference instead.
	bind := run.Scopes.BindingAt(node)
	if bind == nil {
		t.Fatal("BASE should be bound")
	}
	if len(bind.Refs) == 0 {
		t.Fatal("BASE should have a reference site")
	}
	got := res.Resolve(bind.Refs[0], 0)
	assertValues(t, got, "/api")
}

func TestResolveMutatedVariableUnion(t *testing.T) {
	code := `
		var path = "/a";
		if (x) { path = "/b"; }
		use(path);
	`
	run, res := newTestRun(t, code)
	bind := run.Scopes.Lookup("path", findNode(t, run, `use(path)`))
	if bind == nil {
		t.Fatal("path should be bound")
	}
	got := res.Resolve(bind.Refs[len(bind.Refs)-1], 0)
	if !containsValue(got, "/a") || !containsValue(got, "/b") {
		t.Errorf("expected union of initializer and assignment, got %v", got)
	}
}

func TestResolveParameterThroughCaller(t *testing.T) {
	code := `
		function load(id) { return "/users/" + id; }
		load("42");
	`
	got := resolveSnippet(t, code, `"/users/" + id`)
	assertValues(t, got, "/users/42")
}

func TestResolveMemberOfObjectLiteral(t *testing.T) {
	code := `
		var cfg = { base: "/api", timeout: 30 };
		var url = cfg.base;
	`
	got := resolveSnippet(t, code, `cfg.base`)
	assertValues(t, got, "/api")
}

func TestResolveMemberMutation(t *testing.T) {
	code := `
		var cfg = {};
		cfg.base = "/api/v2";
		var url = cfg.base;
	`
	got := resolveSnippet(t, code, `cfg.base`, "member_expression")
	if !containsValue(got, "/api/v2") {
		t.Errorf("expected mutation value /api/v2, got %v", got)
	}
}

func TestResolveThisPropertyInConstructor(t *testing.T) {
	code := `
		function Client(base) { this.base = base; }
		Client.prototype.url = function(p) { return this.base + p; };
		var c = new Client("/api");
		c.url("/x");
	`
	got := resolveSnippet(t, code, `this.base + p`)
	assertValues(t, got, "/api/x")
}

func TestResolveComputedMemberLiteralKey(t *testing.T) {
	code := `
		var routes = { list: "/list", detail: "/detail" };
		var key = "list";
		var url = routes[key];
	`
	got := resolveSnippet(t, code, `routes[key]`)
	assertValues(t, got, "/list")
}

func TestResolveComputedMemberUnknownKeyUnions(t *testing.T) {
	code := `
		var routes = { list: "/list", detail: "/detail" };
		var url = routes[pick()];
	`
	got := resolveSnippet(t, code, `routes[pick()]`)
	if !containsValue(got, "/list") || !containsValue(got, "/detail") {
		t.Errorf("expected union of all property values, got %v", got)
	}
}

func TestResolveIdempotence(t *testing.T) {
	code := `
		var a = cond ? "x" : "y";
		var out = a + "!";
	`
	run, res := newTestRun(t, code)
	node := findNode(t, run, `a + "!"`)
	first := res.Resolve(node, 0)
	second := res.Resolve(node, 0)
	assertValues(t, second, first...)
}

func TestResolveSelfReferenceTerminates(t *testing.T) {
	code := `
		function f(x) { return f(x) ? x : x; }
		f(y);
	`
	got := resolveSnippet(t, code, `f(x) ? x : x`)
	// Termination is the property under test; the value set may be empty.
	if len(got) > maxValueSet {
		t.Errorf("value set exceeds cap: %d", len(got))
	}
}

func TestResolveMutualReferenceTerminates(t *testing.T) {
	code := `
		var a = b;
		var b = a;
		use(a);
	`
	run, res := newTestRun(t, code)
	bind := run.Scopes.Lookup("a", findNode(t, run, `use(a)`))
	if bind == nil {
		t.Fatal("a should be bound")
	}
	got := res.Resolve(bind.Refs[len(bind.Refs)-1], 0)
	if len(got) != 0 {
		t.Errorf("expected empty set for circular bindings, got %v", got)
	}
}

func TestResolveDepthCapRecordsSoftError(t *testing.T) {
	// A deep chain of aliases exceeds the depth cap without crashing.
	code := "var " + varName(0) + " = \"x\";\n"
	for i := 1; i <= maxResolveDepth+10; i++ {
		code += varAlias(i)
	}
	run, res := newTestRun(t, code)
	bind := run.Scopes.Lookup(varName(maxResolveDepth+10), run.Root)
	if bind == nil {
		t.Fatal("alias chain tail should be bound")
	}
	_ = res.Resolve(bind.Init, 0)
	// Either the chain resolved within the cap or a soft error was logged;
	// what matters is no panic and a bounded error list.
	if len(run.Errors()) > maxSoftErrors {
		t.Errorf("soft errors exceed cap: %d", len(run.Errors()))
	}
}

func varName(i int) string {
	return "v" + string(rune('a'+i%26)) + itoa(i)
}

func varAlias(i int) string {
	return "var " + varName(i) + " = " + varName(i-1) + ";\n"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
