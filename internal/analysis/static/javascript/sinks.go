// Filename: javascript/sinks.go
// This file contains the definitions of known taint sources, security sinks,
// and sanitizers used by the taint analyzer.
package javascript

import "strings"

// TaintSource represents a potential entry point for user controlled data.
type TaintSource string

// SinkType categorizes the impact of a security sink.
type SinkType string

const (
	SinkTypeExecution          SinkType = "Code Execution"
	SinkTypeHTMLInjection      SinkType = "DOM XSS (HTML Injection)"
	SinkTypeURLRedirection     SinkType = "Open Redirect/URL Manipulation"
	SinkTypeCookieManipulation SinkType = "Cookie Manipulation"
	SinkTypeAttributeInjection SinkType = "DOM XSS (Attribute Injection)"
	SinkTypePrototypePollution SinkType = "Prototype Pollution"
	SinkTypeRegexInjection     SinkType = "Regex Injection (ReDoS)"
	SinkTypeMessageHandling    SinkType = "Insecure postMessage Handling"
	SinkTypeTrustedTypes       SinkType = "Trusted Types Bypass"
	SinkTypeDataLeak           SinkType = "Data Leakage"
)

// Severity grades a finding for downstream triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Known taint sources rooted at browser globals.
const (
	SourceLocationHash     TaintSource = "location.hash"
	SourceLocationSearch   TaintSource = "location.search"
	SourceLocationHref     TaintSource = "location.href"
	SourceLocationPathname TaintSource = "location.pathname"
	SourceDocumentCookie   TaintSource = "document.cookie"
	SourceDocumentURL      TaintSource = "document.URL"
	SourceDocumentReferrer TaintSource = "document.referrer"
	SourceWindowName       TaintSource = "window.name"
	SourceLocalStorage     TaintSource = "localStorage.getItem"
	SourceSessionStorage   TaintSource = "sessionStorage.getItem"
	SourceMessageData      TaintSource = "message.data"
	SourceURLParams        TaintSource = "URLSearchParams.get"
	SourceUnknown          TaintSource = "unknown_source"
)

// SinkDefinition carries metadata about a specific sink shape.
type SinkDefinition struct {
	Name     string
	Type     SinkType
	Severity Severity
	// For call sinks, which argument indices are sensitive.
	TaintedArgs []int
}

// propertySources maps member-access paths to the source they represent.
// The raw flattened chain is tried first so `window.name` matches as
// written; the canonical form (global-object prefix stripped) covers
// `window.location.hash` and friends. Bare `name` stays out of the table
// since an unqualified `name` is almost never the window property.
var propertySources = map[string]TaintSource{
	"location.hash":     SourceLocationHash,
	"location.search":   SourceLocationSearch,
	"location.href":     SourceLocationHref,
	"location.pathname": SourceLocationPathname,
	"document.cookie":   SourceDocumentCookie,
	"document.URL":      SourceDocumentURL,
	"document.referrer": SourceDocumentReferrer,
	"window.name":       SourceWindowName,
	"top.name":          SourceWindowName,
}

// functionSources maps call paths to the source their return value carries.
var functionSources = map[string]TaintSource{
	"localStorage.getItem":   SourceLocalStorage,
	"sessionStorage.getItem": SourceSessionStorage,
}

// assignmentSinks maps property-assignment paths to sink definitions. Full
// paths are tried first, then the bare property name as a fallback so
// minified receivers (`e.innerHTML = ...`) still match.
var assignmentSinks = map[string]SinkDefinition{
	"innerHTML":            {Name: "innerHTML", Type: SinkTypeHTMLInjection, Severity: SeverityHigh},
	"outerHTML":            {Name: "outerHTML", Type: SinkTypeHTMLInjection, Severity: SeverityHigh},
	"srcdoc":               {Name: "iframe.srcdoc", Type: SinkTypeHTMLInjection, Severity: SeverityHigh},
	"location.href":        {Name: "location.href", Type: SinkTypeURLRedirection, Severity: SeverityMedium},
	"location":             {Name: "location", Type: SinkTypeURLRedirection, Severity: SeverityMedium},
	"document.cookie":      {Name: "document.cookie", Type: SinkTypeCookieManipulation, Severity: SeverityMedium},
	"__proto__":            {Name: "__proto__", Type: SinkTypePrototypePollution, Severity: SeverityHigh},
	"script.src":           {Name: "script.src", Type: SinkTypeExecution, Severity: SeverityCritical},
	"document.domain":      {Name: "document.domain", Type: SinkTypeExecution, Severity: SeverityHigh},
	"onclick":              {Name: "onclick", Type: SinkTypeExecution, Severity: SeverityHigh},
	"onerror":              {Name: "onerror", Type: SinkTypeExecution, Severity: SeverityHigh},
	"onload":               {Name: "onload", Type: SinkTypeExecution, Severity: SeverityHigh},
	"a.href":               {Name: "a.href", Type: SinkTypeAttributeInjection, Severity: SeverityMedium},
	"form.action":          {Name: "form.action", Type: SinkTypeAttributeInjection, Severity: SeverityMedium},
	"iframe.src":           {Name: "iframe.src", Type: SinkTypeHTMLInjection, Severity: SeverityHigh},
	"window.location.href": {Name: "window.location.href", Type: SinkTypeURLRedirection, Severity: SeverityMedium},
}

// callSinks maps call paths to sink definitions.
var callSinks = map[string]SinkDefinition{
	"eval":                     {Name: "eval", Type: SinkTypeExecution, Severity: SeverityCritical, TaintedArgs: []int{0}},
	"setTimeout":               {Name: "setTimeout", Type: SinkTypeExecution, Severity: SeverityHigh, TaintedArgs: []int{0}},
	"setInterval":              {Name: "setInterval", Type: SinkTypeExecution, Severity: SeverityHigh, TaintedArgs: []int{0}},
	"Function":                 {Name: "Function", Type: SinkTypeExecution, Severity: SeverityCritical, TaintedArgs: []int{0, 1, 2}},
	"execScript":               {Name: "execScript", Type: SinkTypeExecution, Severity: SeverityCritical, TaintedArgs: []int{0}},
	"document.write":           {Name: "document.write", Type: SinkTypeHTMLInjection, Severity: SeverityHigh, TaintedArgs: []int{0}},
	"document.writeln":         {Name: "document.writeln", Type: SinkTypeHTMLInjection, Severity: SeverityHigh, TaintedArgs: []int{0}},
	"insertAdjacentHTML":       {Name: "insertAdjacentHTML", Type: SinkTypeHTMLInjection, Severity: SeverityHigh, TaintedArgs: []int{1}},
	"location.assign":          {Name: "location.assign", Type: SinkTypeURLRedirection, Severity: SeverityMedium, TaintedArgs: []int{0}},
	"location.replace":         {Name: "location.replace", Type: SinkTypeURLRedirection, Severity: SeverityMedium, TaintedArgs: []int{0}},
	"window.open":              {Name: "window.open", Type: SinkTypeURLRedirection, Severity: SeverityMedium, TaintedArgs: []int{0}},
	"RegExp":                   {Name: "RegExp", Type: SinkTypeRegexInjection, Severity: SeverityLow, TaintedArgs: []int{0}},
	"Object.defineProperty":    {Name: "Object.defineProperty", Type: SinkTypePrototypePollution, Severity: SeverityMedium, TaintedArgs: []int{1}},
	"Reflect.set":              {Name: "Reflect.set", Type: SinkTypePrototypePollution, Severity: SeverityMedium, TaintedArgs: []int{1}},
	"Reflect.defineProperty":   {Name: "Reflect.defineProperty", Type: SinkTypePrototypePollution, Severity: SeverityMedium, TaintedArgs: []int{1}},
	"range.createContextualFragment": {Name: "createContextualFragment", Type: SinkTypeHTMLInjection, Severity: SeverityHigh, TaintedArgs: []int{0}},
}

// attributeSinkNames are setAttribute first-argument values that make the
// second argument a sink.
var attributeSinkNames = map[string]SinkDefinition{
	"href":       {Name: "setAttribute(href)", Type: SinkTypeAttributeInjection, Severity: SeverityMedium, TaintedArgs: []int{1}},
	"src":        {Name: "setAttribute(src)", Type: SinkTypeAttributeInjection, Severity: SeverityMedium, TaintedArgs: []int{1}},
	"srcdoc":     {Name: "setAttribute(srcdoc)", Type: SinkTypeHTMLInjection, Severity: SeverityHigh, TaintedArgs: []int{1}},
	"formaction": {Name: "setAttribute(formaction)", Type: SinkTypeAttributeInjection, Severity: SeverityMedium, TaintedArgs: []int{1}},
	"style":      {Name: "setAttribute(style)", Type: SinkTypeAttributeInjection, Severity: SeverityLow, TaintedArgs: []int{1}},
}

// sanitizers are functions known to safely encode or neutralize data.
// Lookup falls back from the full path to the bare function name so
// namespaced copies (`util.encodeURIComponent`) still match.
var sanitizers = map[string]bool{
	"encodeURI":              true,
	"encodeURIComponent":     true,
	"escape":                 true,
	"JSON.stringify":         true,
	"parseInt":               true,
	"parseFloat":             true,
	"Number":                 true,
	"Boolean":                true,
	"DOMPurify.sanitize":     true,
	"sanitizeHtml":           true,
	"textContent":            true,
	"escapeHtml":             true,
	"encodeHTML":             true,
	"he.encode":              true,
	"_.escape":               true,
	"validator.escape":       true,
	"CSS.escape":             true,
	"encodeURIComponentSafe": true,
}

// nonIterableCtors is the coarse type table the taint analyzer consults to
// suppress iteration-callback taint on objects that are provably not
// collections.
var nonIterableCtors = map[string]bool{
	"XMLHttpRequest": true,
	"WebSocket":      true,
	"EventSource":    true,
	"Worker":         true,
	"Image":          true,
	"Audio":          true,
	"AbortController": true,
	"FileReader":     true,
	"MutationObserver": true,
	"IntersectionObserver": true,
	"Date":           true,
	"Error":          true,
	"Promise":        false, // then/catch callbacks do receive the resolved value
}

func canonicalPath(path []string) string {
	if len(path) > 1 && (path[0] == "window" || path[0] == "self" || path[0] == "globalThis" || path[0] == "top") {
		path = path[1:]
	}
	return strings.Join(path, ".")
}

// propertySourceFor checks whether a flattened member-access path names a
// known user-controlled property.
func propertySourceFor(path []string) (TaintSource, bool) {
	if len(path) == 0 {
		return "", false
	}
	if src, ok := propertySources[strings.Join(path, ".")]; ok {
		return src, true
	}
	src, ok := propertySources[canonicalPath(path)]
	return src, ok
}

// functionSourceFor checks whether a flattened call path returns
// user-controlled data.
func functionSourceFor(path []string) (TaintSource, bool) {
	if len(path) == 0 {
		return "", false
	}
	src, ok := functionSources[canonicalPath(path)]
	return src, ok
}

// assignmentSinkFor matches a property-assignment path against the sink
// table, trying the full path before the bare property name.
func assignmentSinkFor(path []string) (SinkDefinition, bool) {
	if len(path) == 0 {
		return SinkDefinition{}, false
	}
	full := canonicalPath(path)
	if def, ok := assignmentSinks[full]; ok {
		return def, true
	}
	last := path[len(path)-1]
	if def, ok := assignmentSinks[last]; ok {
		return def, true
	}
	// Inline event handler properties on arbitrary receivers.
	if strings.HasPrefix(last, "on") && len(last) > 2 {
		if def, ok := assignmentSinks[last]; ok {
			return def, true
		}
	}
	return SinkDefinition{}, false
}

// callSinkFor matches a call path against the sink table.
func callSinkFor(path []string) (SinkDefinition, bool) {
	if len(path) == 0 {
		return SinkDefinition{}, false
	}
	if def, ok := callSinks[canonicalPath(path)]; ok {
		return def, true
	}
	last := path[len(path)-1]
	switch last {
	case "eval", "write", "writeln", "insertAdjacentHTML", "execScript":
		// Minified receivers: d.write(...), w.eval(...).
		if def, ok := callSinks[last]; ok {
			return def, true
		}
		if last == "write" || last == "writeln" {
			return callSinks["document."+last], true
		}
	}
	return SinkDefinition{}, false
}

// isSanitizerPath reports whether a call path names a known sanitizer.
func isSanitizerPath(path []string) bool {
	if len(path) == 0 {
		return false
	}
	if sanitizers[canonicalPath(path)] {
		return true
	}
	return sanitizers[path[len(path)-1]]
}
