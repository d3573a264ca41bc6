// Filename: javascript/taint_test.go
package javascript

import (
	"testing"
)

func runSecurityScan(t *testing.T, code string) ([]SecurityFinding, []DangerousPattern) {
	t.Helper()
	run, res := newTestRun(t, code)
	ta := newTaintAnalyzer(run, res, res.tracer)
	return ta.scanSecurity("test_case.js")
}

func assertFindingCount(t *testing.T, findings []SecurityFinding, want int) {
	t.Helper()
	if len(findings) != want {
		for i, f := range findings {
			t.Logf("finding %d: %s -> %s (sanitized=%v) at line %d", i, f.TaintSource, f.Sink, f.Sanitized, f.Location.Line)
		}
		// Fatal so callers can index findings without panicking.
		t.Fatalf("expected %d findings, got %d", want, len(findings))
	}
}

func TestTaintBasicFlow(t *testing.T) {
	code := `
		var input = location.hash;
		document.write(input);
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].TaintSource != SourceLocationHash {
		t.Errorf("expected source location.hash, got %s", findings[0].TaintSource)
	}
	if findings[0].Sink != "document.write" {
		t.Errorf("expected sink document.write, got %s", findings[0].Sink)
	}
}

func TestTaintLiteralSuppressed(t *testing.T) {
	code := `el.innerHTML = "<b>static</b>";`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 0)
}

func TestTaintDynamicSuppressed(t *testing.T) {
	// Dynamic but not user-controlled assignment must not fire; minified
	// libraries do this constantly.
	code := `
		var computed = compute();
		el.innerHTML = computed;
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 0)
}

func TestTaintInnerHTMLFromHash(t *testing.T) {
	code := `el.innerHTML = location.hash;`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Sanitized {
		t.Error("no sanitizer in scope, finding must not be marked sanitized")
	}
}

func TestTaintInnerHTMLThroughCallReceiver(t *testing.T) {
	// The receiver chain contains a call expression and cannot be
	// flattened; the sink must still match on the bare property name.
	code := `document.getElementById("out").innerHTML = location.hash.slice(1);`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Sink != "innerHTML" {
		t.Errorf("expected innerHTML sink, got %s", findings[0].Sink)
	}
	if findings[0].TaintSource != SourceLocationHash {
		t.Errorf("expected source location.hash, got %s", findings[0].TaintSource)
	}
}

func TestTaintWindowNameSource(t *testing.T) {
	code := `eval(window.name);`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].TaintSource != SourceWindowName {
		t.Errorf("expected source window.name, got %s", findings[0].TaintSource)
	}
	if findings[0].Sink != "eval" {
		t.Errorf("expected eval sink, got %s", findings[0].Sink)
	}
}

func TestTaintValueLevelSanitizerSuppresses(t *testing.T) {
	// The sanitizer's return value is not user-controlled, so no finding.
	code := `
		var input = location.hash;
		var clean = encodeURIComponent(input);
		document.write(clean);
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 0)
}

func TestTaintPropagatesThroughConcat(t *testing.T) {
	code := `el.innerHTML = "<div>" + location.search + "</div>";`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].TaintSource != SourceLocationSearch {
		t.Errorf("expected location.search, got %s", findings[0].TaintSource)
	}
}

func TestTaintPropagatesThroughTemplate(t *testing.T) {
	code := "el.innerHTML = `<div>${location.hash}</div>`;"
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
}

func TestTaintPropagatesThroughTernary(t *testing.T) {
	code := `el.innerHTML = ok ? "safe" : document.cookie;`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
}

func TestTaintThroughFunctionReturn(t *testing.T) {
	code := `
		function grab() { return location.href; }
		el.innerHTML = grab();
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
}

func TestTaintThroughParameter(t *testing.T) {
	code := `
		function render(html) { el.innerHTML = html; }
		render(location.hash);
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
}

func TestTaintEvalSink(t *testing.T) {
	code := `eval(window.name);`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Severity != SeverityCritical {
		t.Errorf("eval should be critical, got %s", findings[0].Severity)
	}
}

func TestTaintNewFunctionSink(t *testing.T) {
	code := `var f = new Function(location.hash);`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Sink != "new Function" {
		t.Errorf("expected new Function sink, got %s", findings[0].Sink)
	}
}

func TestTaintSetAttributeEventHandler(t *testing.T) {
	code := `el.setAttribute("onclick", location.hash);`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Type != string(SinkTypeExecution) {
		t.Errorf("on* attribute should be execution, got %s", findings[0].Type)
	}
}

func TestTaintSetAttributeBenignName(t *testing.T) {
	code := `el.setAttribute("data-id", location.hash);`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 0)
}

func TestTaintProtoAssignment(t *testing.T) {
	code := `obj.__proto__ = JSON.parse(location.hash);`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Type != string(SinkTypePrototypePollution) {
		t.Errorf("expected prototype pollution, got %s", findings[0].Type)
	}
}

func TestTaintLocationAssignRedirect(t *testing.T) {
	code := `location.assign(document.referrer);`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
}

func TestTaintShadowedLocationIsLocal(t *testing.T) {
	// A local variable named location is not the browser global.
	code := `
		function f() {
			var location = { hash: "safe" };
			el.innerHTML = location.hash;
		}
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 0)
}

// -- Sanitizer dominance --

func TestSanitizerDominanceBranchMissing(t *testing.T) {
	// One path lacks the sanitizer: the unsanitized branch's finding must
	// not be marked sanitized.
	code := `
		function render(el) {
			if (cond) {
				el.innerHTML = encodeURIComponent(location.hash);
			} else {
				el.innerHTML = location.hash;
			}
		}
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Sanitized {
		t.Error("branch without sanitizer must not be marked sanitized")
	}
}

func TestSanitizerDominanceBeforeBranch(t *testing.T) {
	// The sanitizer runs before the branch on every path.
	code := `
		function render(el) {
			var clean = encodeURIComponent(location.hash);
			if (cond) {
				el.innerHTML = location.hash;
			} else {
				el.innerHTML = location.hash;
			}
		}
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 2)
	for _, f := range findings {
		if !f.Sanitized {
			t.Errorf("sanitizer dominates entry, finding at line %d should be marked sanitized", f.Location.Line)
		}
	}
}

func TestSanitizerShadowedDoesNotCount(t *testing.T) {
	code := `
		function render(el) {
			var encodeURIComponent = function(x) { return x; };
			encodeURIComponent("warm up");
			el.innerHTML = location.hash;
		}
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Sanitized {
		t.Error("shadowed sanitizer must not count for dominance")
	}
}

func TestSanitizerAbsentShortCircuits(t *testing.T) {
	code := `
		function render(el) {
			el.innerHTML = location.hash;
		}
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Sanitized {
		t.Error("function without sanitizers can never be sanitized")
	}
}

// -- postMessage handling --

func TestMessageHandlerStrongOriginCheck(t *testing.T) {
	// Strong origin check suppresses the handler pattern but never the
	// eval finding; origin checks are not sanitizers.
	code := `
		addEventListener("message", function(e) {
			if (e.origin === "https://x.com") eval(e.data);
		});
	`
	findings, patterns := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].Sink != "eval" {
		t.Errorf("expected eval finding, got %s", findings[0].Sink)
	}
	if findings[0].TaintSource != SourceMessageData {
		t.Errorf("expected message.data source, got %s", findings[0].TaintSource)
	}
	for _, p := range patterns {
		t.Errorf("strong origin check should suppress handler pattern, got %q", p.Pattern)
	}
}

func TestMessageDataReachesEvalWithoutOriginCheck(t *testing.T) {
	code := `
		addEventListener("message", function(e) { eval(e.data); });
	`
	findings, patterns := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].TaintSource != SourceMessageData {
		t.Errorf("expected message.data source, got %s", findings[0].TaintSource)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected one dangerous pattern, got %d", len(patterns))
	}
	if patterns[0].Severity != SeverityHigh {
		t.Errorf("critical sink in handler should upgrade pattern to high, got %s", patterns[0].Severity)
	}
}

func TestOnMessageAssignmentParamCarriesTaint(t *testing.T) {
	// The onmessage = fn form marks the handler parameter too.
	code := `
		onmessage = function(e) { document.write(e.data); };
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].TaintSource != SourceMessageData {
		t.Errorf("expected message.data source, got %s", findings[0].TaintSource)
	}
}

func TestMessageHandlerNoOriginCheck(t *testing.T) {
	code := `
		addEventListener("message", function(e) {
			process(e.data);
		});
	`
	_, patterns := runSecurityScan(t, code)
	if len(patterns) != 1 {
		t.Fatalf("expected one dangerous pattern, got %d", len(patterns))
	}
	if patterns[0].Pattern != "postMessage handler without origin validation" {
		t.Errorf("unexpected pattern %q", patterns[0].Pattern)
	}
}

func TestMessageHandlerWeakOriginCheck(t *testing.T) {
	code := `
		addEventListener("message", function(e) {
			if (e.origin.indexOf("x.com") !== -1) process(e.data);
		});
	`
	_, patterns := runSecurityScan(t, code)
	if len(patterns) != 1 {
		t.Fatalf("expected one dangerous pattern, got %d", len(patterns))
	}
	if patterns[0].Pattern != "postMessage handler with weak origin validation" {
		t.Errorf("unexpected pattern %q", patterns[0].Pattern)
	}
}

func TestMessageHandlerSeverityUpgrade(t *testing.T) {
	// A high-confidence sink inside the handler upgrades the pattern.
	code := `
		addEventListener("message", function(e) {
			el.innerHTML = e.data;
		});
	`
	findings, patterns := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if len(patterns) != 1 {
		t.Fatalf("expected one pattern, got %d", len(patterns))
	}
	if patterns[0].Severity != SeverityHigh {
		t.Errorf("expected upgraded severity high, got %s", patterns[0].Severity)
	}
}

func TestTrustedTypesPassthroughPolicy(t *testing.T) {
	code := `
		var policy = trustedTypes.createPolicy("default", {
			createHTML: function(s) { return s; }
		});
	`
	_, patterns := runSecurityScan(t, code)
	if len(patterns) != 1 {
		t.Fatalf("expected one pattern, got %d", len(patterns))
	}
	if patterns[0].Pattern != "passthrough Trusted Types policy" {
		t.Errorf("unexpected pattern %q", patterns[0].Pattern)
	}
}

// -- Type tracking --

func TestTypeTrackerSuppressesXHRIteration(t *testing.T) {
	// An XMLHttpRequest is not a collection; its forEach-style misuse must
	// not make callback parameters inherit taint from it.
	code := `
		var xhr = new XMLHttpRequest();
		var items = [location.hash];
		items.forEach(function(item) { el.innerHTML = item; });
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
}

func TestIterationCallbackInheritsReceiverTaint(t *testing.T) {
	code := `
		var parts = [location.search];
		parts.forEach(function(p) { document.write(p); });
	`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
}

func TestIterationArrowOverInlineArray(t *testing.T) {
	// Arrow callback over an inline array literal receiver.
	code := `[location.search].forEach(p => document.write(p));`
	findings, _ := runSecurityScan(t, code)
	assertFindingCount(t, findings, 1)
	if findings[0].TaintSource != SourceLocationSearch {
		t.Errorf("expected source location.search, got %s", findings[0].TaintSource)
	}
}

func TestIterationOverTrackedNonIterable(t *testing.T) {
	run, _ := newTestRun(t, `var xhr = new XMLHttpRequest();`)
	if tag := run.VarType(run.Scopes.Root, "xhr"); tag != "XMLHttpRequest" {
		t.Errorf("expected tracked type XMLHttpRequest, got %q", tag)
	}
}
