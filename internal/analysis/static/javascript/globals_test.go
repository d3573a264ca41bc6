// Filename: javascript/globals_test.go
package javascript

import (
	"testing"
)

func TestGlobalIndexWindowAssignment(t *testing.T) {
	code := `
		window.API_ROOT = "/api/v1";
		var url = API_ROOT + "/users";
	`
	run, res := newTestRun(t, code)
	entry := run.Globals.Lookup("API_ROOT")
	if entry == nil {
		t.Fatal("window property assignment should be indexed")
	}
	got := res.Resolve(findNode(t, run, `API_ROOT + "/users"`), 0)
	assertValues(t, got, "/api/v1/users")
}

func TestGlobalIndexIIFEAlias(t *testing.T) {
	// The classic UMD prologue: the global object enters as a parameter.
	code := `
		(function(root) {
			root.endpoint = "/iife";
		})(window);
		var u = endpoint;
	`
	run, res := newTestRun(t, code)
	entry := run.Globals.Lookup("endpoint")
	if entry == nil {
		t.Fatal("assignment through IIFE alias should be indexed")
	}
	got := res.Resolve(entry.Value, 0)
	assertValues(t, got, "/iife")
}

func TestGlobalIndexSelfAndGlobalThis(t *testing.T) {
	code := `
		self.fromSelf = "a";
		globalThis.fromGlobalThis = "b";
	`
	run, _ := newTestRun(t, code)
	if run.Globals.Lookup("fromSelf") == nil {
		t.Error("self.* assignment should be indexed")
	}
	if run.Globals.Lookup("fromGlobalThis") == nil {
		t.Error("globalThis.* assignment should be indexed")
	}
}

func TestGlobalIndexModuleExports(t *testing.T) {
	code := `
		module.exports.helper = function(x) { return x; };
		exports.other = "val";
	`
	run, _ := newTestRun(t, code)
	if run.Globals.Export("helper") == nil {
		t.Error("module.exports.* should be indexed")
	}
	if run.Globals.Export("other") == nil {
		t.Error("exports.* should be indexed")
	}
}

func TestIsGlobalObjectRecognizesAliases(t *testing.T) {
	code := `
		(function(w) {
			w.flag = "on";
		})(window);
	`
	run, _ := newTestRun(t, code)
	w := findNode(t, run, "w", "identifier")
	if !run.Globals.IsGlobalObject(w) {
		t.Error("IIFE parameter bound to window should count as the global object")
	}
}

func TestIsGlobalObjectRejectsLocals(t *testing.T) {
	code := `
		function f() {
			var window = {};
			window.x = 1;
		}
	`
	run, _ := newTestRun(t, code)
	// The shadowing local must not be treated as the browser global.
	node := findNode(t, run, "window.x")
	obj := node.ChildByFieldName("object")
	if run.Globals.IsGlobalObject(obj) {
		t.Error("shadowed window must not be the global object")
	}
}

func TestScopeModelVarHoisting(t *testing.T) {
	code := `
		function f() {
			if (x) { var hoisted = "v"; }
			return hoisted;
		}
	`
	run, _ := newTestRun(t, code)
	ret := findNode(t, run, "return hoisted;")
	bind := run.Scopes.Lookup("hoisted", ret)
	if bind == nil {
		t.Fatal("var should hoist to function scope")
	}
	if bind.Kind != BindVar {
		t.Errorf("expected var binding, got %v", bind.Kind)
	}
}

func TestScopeModelLexicalBlockScope(t *testing.T) {
	code := `
		function f() {
			if (x) { let scoped = "v"; }
			return scoped;
		}
	`
	run, _ := newTestRun(t, code)
	ret := findNode(t, run, "return scoped;")
	if run.Scopes.Lookup("scoped", ret) != nil {
		t.Error("let must not leak out of its block")
	}
}

func TestScopeModelRecordsAssignments(t *testing.T) {
	code := `
		var v = "a";
		v = "b";
		v = "c";
	`
	run, _ := newTestRun(t, code)
	bind := run.Scopes.Lookup("v", run.Root)
	if bind == nil {
		t.Fatal("v should be bound")
	}
	if len(bind.Assignments) != 2 {
		t.Errorf("expected 2 recorded assignments, got %d", len(bind.Assignments))
	}
}

func TestScopeModelDestructuredParams(t *testing.T) {
	code := `
		function f({url, method}) { return url; }
		f({url: "/x", method: "GET"});
	`
	run, _ := newTestRun(t, code)
	ret := findNode(t, run, "return url;")
	bind := run.Scopes.Lookup("url", ret)
	if bind == nil {
		t.Fatal("destructured parameter should be bound")
	}
	if bind.Kind != BindParam {
		t.Errorf("expected parameter binding, got %v", bind.Kind)
	}
}
