// Filename: javascript/netsink_test.go
package javascript

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func extractSites(t *testing.T, code string) []FetchCallSite {
	t.Helper()
	run, res := newTestRun(t, code)
	x := newNetworkExtractor(run, res, res.tracer)
	return mergeCallSites(x.extract())
}

func findSite(t *testing.T, sites []FetchCallSite, url string) FetchCallSite {
	t.Helper()
	for _, s := range sites {
		if s.URL == url {
			return s
		}
	}
	t.Fatalf("no call site with url %q in %v", url, sites)
	return FetchCallSite{}
}

func TestFetchThroughWrapperWithBody(t *testing.T) {
	// A wrapped fetch whose URL and body resolve through the caller chain.
	code := `
		function save(id, name) {
			fetch("/api/users/" + id, {
				method: "POST",
				body: JSON.stringify({name: name})
			});
		}
		save(userId, "Alice");
		var userId = "42";
	`
	sites := extractSites(t, code)
	site := findSite(t, sites, "/api/users/42")
	if site.Method != "POST" {
		t.Errorf("expected POST, got %s", site.Method)
	}
	if site.Type != NetSinkFetch {
		t.Errorf("expected fetch type, got %s", site.Type)
	}
	if len(site.BodyParams) != 1 || site.BodyParams[0].Name != "name" {
		t.Fatalf("expected one body param 'name', got %v", site.BodyParams)
	}
	if !containsValue(site.BodyParams[0].ObservedValues, "Alice") {
		t.Errorf("expected observed value Alice, got %v", site.BodyParams[0].ObservedValues)
	}
	if site.EnclosingFunction != "save" {
		t.Errorf("expected enclosing function save, got %q", site.EnclosingFunction)
	}
}

func TestFetchGlobalAliasRoute(t *testing.T) {
	code := `
		window.doFetch = function(u) { fetch(u); };
		doFetch("/ping");
	`
	sites := extractSites(t, code)
	site := findSite(t, sites, "/ping")
	if site.Method != "GET" {
		t.Errorf("expected GET default, got %s", site.Method)
	}
}

func TestFetchDedupUnionsParams(t *testing.T) {
	// Two sites with identical (method, url) and disjoint parameter sets
	// collapse into one record with the union.
	code := `
		fetch("/api/submit", {method: "POST", body: JSON.stringify({alpha: "1"})});
		fetch("/api/submit", {method: "POST", body: JSON.stringify({beta: "2"})});
	`
	sites := extractSites(t, code)
	count := 0
	for _, s := range sites {
		if s.URL == "/api/submit" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one merged record for /api/submit, got %d", count)
	}
	site := findSite(t, sites, "/api/submit")
	names := map[string]bool{}
	for _, p := range site.BodyParams {
		names[p.Name] = true
	}
	if !names["alpha"] || !names["beta"] {
		t.Errorf("expected union of alpha and beta, got %v", site.BodyParams)
	}
}

func TestFetchHeadersResolved(t *testing.T) {
	code := `
		var token = "abc123";
		fetch("/api/secure", {
			method: "GET",
			headers: { "Authorization": "Bearer " + token }
		});
	`
	sites := extractSites(t, code)
	site := findSite(t, sites, "/api/secure")
	vals := site.Headers["Authorization"]
	if !containsValue(vals, "Bearer abc123") {
		t.Errorf("expected resolved header value, got %v", vals)
	}
}

func TestFetchOrGuardedPolyfill(t *testing.T) {
	code := `(window.fetch || shim)("/guarded");`
	sites := extractSites(t, code)
	findSite(t, sites, "/guarded")
}

func TestXHRConstructorProvenance(t *testing.T) {
	code := `
		var xhr = new XMLHttpRequest();
		xhr.open("PUT", "/api/doc");
		xhr.setRequestHeader("Content-Type", "application/json");
		xhr.responseType = "json";
		xhr.send(JSON.stringify({title: "x"}));
	`
	sites := extractSites(t, code)
	site := findSite(t, sites, "/api/doc")
	if site.Method != "PUT" {
		t.Errorf("expected PUT, got %s", site.Method)
	}
	if site.Type != NetSinkXHR {
		t.Errorf("expected xhr type, got %s", site.Type)
	}
	if !containsValue(site.Headers["Content-Type"], "application/json") {
		t.Errorf("expected content-type header, got %v", site.Headers)
	}
	if site.ResponseType != "json" {
		t.Errorf("expected responseType json, got %q", site.ResponseType)
	}
	if len(site.BodyParams) != 1 || site.BodyParams[0].Name != "title" {
		t.Errorf("expected body param title, got %v", site.BodyParams)
	}
}

func TestXHRFactoryProvenance(t *testing.T) {
	code := `
		function makeXhr() { return new XMLHttpRequest(); }
		var req = makeXhr();
		req.open("GET", "/api/feed");
	`
	sites := extractSites(t, code)
	site := findSite(t, sites, "/api/feed")
	if site.Type != NetSinkXHR {
		t.Errorf("expected xhr type, got %s", site.Type)
	}
}

func TestXHRCorrelatedPerCaller(t *testing.T) {
	// Method and URL are properties of the same options parameter: each
	// caller's pair must stay together.
	code := `
		function transport(opts) {
			var x = new XMLHttpRequest();
			x.open(opts.method, opts.url);
		}
		transport({ method: "GET", url: "/read" });
		transport({ method: "POST", url: "/write" });
	`
	sites := extractSites(t, code)
	read := findSite(t, sites, "/read")
	write := findSite(t, sites, "/write")
	if read.Method != "GET" {
		t.Errorf("caller pairing broken: /read got method %s", read.Method)
	}
	if write.Method != "POST" {
		t.Errorf("caller pairing broken: /write got method %s", write.Method)
	}
	// The cross products must not exist.
	for _, s := range sites {
		if s.URL == "/read" && s.Method == "POST" || s.URL == "/write" && s.Method == "GET" {
			t.Errorf("cross-contaminated pairing: %s %s", s.Method, s.URL)
		}
	}
}

func TestSendBeacon(t *testing.T) {
	code := `navigator.sendBeacon("/metrics", JSON.stringify({event: "click"}));`
	sites := extractSites(t, code)
	site := findSite(t, sites, "/metrics")
	if site.Method != "POST" {
		t.Errorf("beacon is always POST, got %s", site.Method)
	}
	if site.Type != NetSinkBeacon {
		t.Errorf("expected sendBeacon type, got %s", site.Type)
	}
	if len(site.BodyParams) != 1 || site.BodyParams[0].Name != "event" {
		t.Errorf("expected body param event, got %v", site.BodyParams)
	}
}

func TestEventSourceAndWebSocket(t *testing.T) {
	code := `
		var es = new EventSource("/stream");
		var ws = new WebSocket("wss://example.com/socket");
	`
	sites := extractSites(t, code)
	if findSite(t, sites, "/stream").Type != NetSinkEventSource {
		t.Error("expected eventSource type for /stream")
	}
	if findSite(t, sites, "wss://example.com/socket").Type != NetSinkWebSocket {
		t.Error("expected webSocket type")
	}
}

func TestImageBeacon(t *testing.T) {
	code := `
		var px = new Image();
		px.src = "/track?id=" + uid;
		var uid = "u1";
	`
	sites := extractSites(t, code)
	site := findSite(t, sites, "/track?id=u1")
	if site.Type != NetSinkImage {
		t.Errorf("expected imageBeacon type, got %s", site.Type)
	}
}

func TestBodyParamOptionalDefault(t *testing.T) {
	code := `
		function send(limit) {
			fetch("/api/list", {
				method: "POST",
				body: JSON.stringify({ limit: limit || "10" })
			});
		}
		send();
	`
	sites := extractSites(t, code)
	site := findSite(t, sites, "/api/list")
	want := []BodyParam{{
		Name:     "limit",
		Required: false,
		Default:  "10",
	}}
	if diff := cmp.Diff(want, site.BodyParams, cmpopts.IgnoreFields(BodyParam{}, "ObservedValues")); diff != "" {
		t.Errorf("body params mismatch (-want +got):\n%s", diff)
	}
}

func TestBodyParamConstraintCrossReference(t *testing.T) {
	// A membership check elsewhere in the file constrains the parameter.
	code := `
		function validate(kind) {
			if (kind !== "user" && kind !== "admin") throw new Error("bad kind");
			return kind;
		}
		fetch("/api/create", {method: "POST", body: JSON.stringify({kind: kindVar})});
	`
	sites := extractSites(t, code)
	site := findSite(t, sites, "/api/create")
	if len(site.BodyParams) != 1 {
		t.Fatalf("expected one body param, got %v", site.BodyParams)
	}
	valid := site.BodyParams[0].ValidValues
	if !containsValue(valid, "user") || !containsValue(valid, "admin") {
		t.Errorf("expected mined constraint {user, admin}, got %v", valid)
	}
}

func TestUnresolvableURLFallsBackToSource(t *testing.T) {
	code := `fetch(buildUrl(a, b));`
	sites := extractSites(t, code)
	if len(sites) != 1 {
		t.Fatalf("expected one site, got %d", len(sites))
	}
	if sites[0].URL == "" {
		t.Error("unresolvable URL should fall back to source text, not empty")
	}
}
