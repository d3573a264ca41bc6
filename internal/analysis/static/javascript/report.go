// Filename: javascript/report.go
// The per-file result record and its assembly: call-site dedup, constraint
// flattening, and source map discovery.
package javascript

import (
	"regexp"
	"sort"
)

// ProtoEnum and ProtoFieldMap are reserved for protobuf schema recovery
// from bundled gRPC-web clients. They are always present in the report
// envelope so consumers can rely on the shape.
type ProtoEnum struct {
	Name   string            `json:"name"`
	Values map[string]int32  `json:"values"`
}

type ProtoFieldMap struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

// ValueConstraint reports the mined valid values for a named parameter.
type ValueConstraint struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// FileReport is the full analysis result for one source file.
type FileReport struct {
	SourceURL         string             `json:"sourceUrl"`
	ProtoEnums        []ProtoEnum        `json:"protoEnums"`
	ProtoFieldMaps    []ProtoFieldMap    `json:"protoFieldMaps"`
	FetchCallSites    []FetchCallSite    `json:"fetchCallSites"`
	ValueConstraints  []ValueConstraint  `json:"valueConstraints"`
	SecuritySinks     []SecurityFinding  `json:"securitySinks"`
	DangerousPatterns []DangerousPattern `json:"dangerousPatterns"`
	SourceMapURL      string             `json:"sourceMapUrl"`
	ResolverErrors    []ResolverError    `json:"resolverErrors,omitempty"`
}

var sourceMapRe = regexp.MustCompile(`(?m)^[ \t]*//[#@]\s*sourceMappingURL=(\S+)\s*$`)

// findSourceMapURL scans for the sourceMappingURL pragma, preferring the
// last occurrence since bundlers append theirs at the end.
func findSourceMapURL(source []byte) string {
	matches := sourceMapRe.FindAllSubmatch(source, -1)
	if len(matches) == 0 {
		return ""
	}
	return string(matches[len(matches)-1][1])
}

// mergeCallSites deduplicates discovered sites by (method, url), unioning
// headers and body parameters across duplicates. The first site's scalar
// fields win.
func mergeCallSites(sites []FetchCallSite) []FetchCallSite {
	type siteKey struct {
		Method string
		URL    string
	}
	index := make(map[siteKey]int)
	var out []FetchCallSite
	for _, s := range sites {
		key := siteKey{Method: s.Method, URL: s.URL}
		at, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, s)
			continue
		}
		merged := &out[at]
		for name, vals := range s.Headers {
			if merged.Headers == nil {
				merged.Headers = map[string][]string{}
			}
			merged.Headers[name] = appendValues(merged.Headers[name], vals)
		}
		merged.BodyParams = mergeBodyParams(merged.BodyParams, s.BodyParams)
		if merged.ResponseType == "" {
			merged.ResponseType = s.ResponseType
		}
		if merged.EnclosingFunction == "" {
			merged.EnclosingFunction = s.EnclosingFunction
		}
	}
	return out
}

func mergeBodyParams(base, extra []BodyParam) []BodyParam {
	for _, p := range extra {
		found := false
		for i := range base {
			if base[i].Name != p.Name {
				continue
			}
			found = true
			base[i].ObservedValues = appendValues(base[i].ObservedValues, p.ObservedValues)
			base[i].ValidValues = appendValues(base[i].ValidValues, p.ValidValues)
			if base[i].Default == "" {
				base[i].Default = p.Default
			}
			// Optional anywhere means optional.
			if !p.Required {
				base[i].Required = false
			}
			break
		}
		if !found {
			base = append(base, p)
		}
	}
	return base
}

// constraintList flattens the mined constraint table in stable name order.
func constraintList(ctx *AnalysisContext) []ValueConstraint {
	names := make([]string, 0, len(ctx.constraints))
	for name := range ctx.constraints {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]ValueConstraint, 0, len(names))
	for _, name := range names {
		out = append(out, ValueConstraint{Name: name, Values: ctx.constraints[name]})
	}
	return out
}
