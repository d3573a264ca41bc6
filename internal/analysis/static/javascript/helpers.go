// Filename: javascript/helpers.go
package javascript

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// LocationInfo holds the location and a bounded excerpt of a finding.
type LocationInfo struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Excerpt string `json:"excerpt,omitempty"`
}

func (l LocationInfo) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// NodeContent extracts the string content of a node from the source.
func NodeContent(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return node.Content(source)
}

// unquote strips the surrounding quotes from a string literal node's text
// and decodes the escape sequences that matter for URL/header matching.
func unquote(raw string) string {
	if len(raw) >= 2 {
		switch raw[0] {
		case '"', '\'', '`':
			if raw[len(raw)-1] == raw[0] {
				raw = raw[1 : len(raw)-1]
			}
		}
	}
	if !strings.ContainsRune(raw, '\\') {
		return raw
	}
	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '/':
			sb.WriteByte('/')
		default:
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// stringLiteralValue returns the decoded value of a string literal node.
func stringLiteralValue(n *sitter.Node, source []byte) string {
	return unquote(NodeContent(n, source))
}

// flattenPropertyAccess flattens member_expression/subscript_expression
// chains into path segments: window.location.hash -> [window location hash],
// obj['prop'] -> [obj prop]. Computed segments that are not string literals
// defeat flattening and return nil.
func flattenPropertyAccess(node *sitter.Node, source []byte) []string {
	var path []string
	current := node

	for {
		if current == nil {
			return nil
		}

		switch current.Type() {
		case "identifier":
			path = append([]string{NodeContent(current, source)}, path...)
			return path
		case "this":
			path = append([]string{"this"}, path...)
			return path

		case "member_expression":
			object := current.ChildByFieldName("object")
			property := current.ChildByFieldName("property")
			if property == nil || object == nil {
				return nil
			}
			if property.Type() == "identifier" || property.Type() == "property_identifier" {
				path = append([]string{NodeContent(property, source)}, path...)
				current = object
			} else {
				return nil
			}

		case "subscript_expression":
			object := current.ChildByFieldName("object")
			index := current.ChildByFieldName("index")
			if index == nil || object == nil {
				return nil
			}
			if index.Type() == "string" {
				path = append([]string{stringLiteralValue(index, source)}, path...)
				current = object
			} else {
				return nil
			}

		case "parenthesized_expression":
			inner := current.ChildByFieldName("expression")
			if inner == nil && current.ChildCount() > 2 {
				inner = current.Child(1)
			}
			current = inner

		default:
			return nil
		}
	}
}

// memberPropertyName returns the final property name of a member or
// subscript expression. Used as a fallback when the receiver chain contains
// a call expression and cannot be flattened to a path.
func memberPropertyName(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "member_expression":
		if prop := n.ChildByFieldName("property"); prop != nil {
			return NodeContent(prop, source)
		}
	case "subscript_expression":
		if idx := n.ChildByFieldName("index"); idx != nil && idx.Type() == "string" {
			return stringLiteralValue(idx, source)
		}
	}
	return ""
}

// excerpt bounds: at most excerptLines lines, long lines truncated in a
// window around the relevant column.
const (
	excerptLines     = 3
	excerptLineWidth = 160
)

// FormatLocation converts a node position into LocationInfo with a bounded
// source excerpt suitable for triage display.
func FormatLocation(filename string, node *sitter.Node, source []byte) LocationInfo {
	if node == nil {
		return LocationInfo{File: filename}
	}

	start := node.StartPoint()
	loc := LocationInfo{
		File:   filename,
		Line:   int(start.Row) + 1,
		Column: int(start.Column),
	}

	lineStart := findLineStart(source, int(node.StartByte()))
	var lines []string
	pos := lineStart
	for len(lines) < excerptLines && pos <= len(source) {
		end := findLineEnd(source, pos)
		lines = append(lines, truncateAround(string(source[pos:end]), int(start.Column)))
		if end >= len(source) || end >= int(node.EndByte()) {
			break
		}
		pos = end + 1
	}
	loc.Excerpt = strings.TrimSpace(strings.Join(lines, "\n"))
	return loc
}

// truncateAround clips a long (typically minified) line to a window around
// the column of interest.
func truncateAround(line string, col int) string {
	if len(line) <= excerptLineWidth {
		return line
	}
	half := excerptLineWidth / 2
	start := col - half
	if start < 0 {
		start = 0
	}
	end := start + excerptLineWidth
	if end > len(line) {
		end = len(line)
		start = end - excerptLineWidth
	}
	out := line[start:end]
	if start > 0 {
		out = "…" + out
	}
	if end < len(line) {
		out = out + "…"
	}
	return out
}

func findLineStart(source []byte, idx int) int {
	if idx >= len(source) {
		if len(source) == 0 {
			return 0
		}
		idx = len(source) - 1
	}
	if idx < 0 {
		return 0
	}
	for i := idx; i >= 0; i-- {
		if source[i] == '\n' {
			return i + 1
		}
	}
	return 0
}

func findLineEnd(source []byte, idx int) int {
	for i := idx; i < len(source); i++ {
		if source[i] == '\n' {
			return i
		}
	}
	return len(source)
}

// -- value set arithmetic --

// appendValue appends to a bounded value set. The engine never deduplicates;
// identical values collapse at report emission so per-caller pairing stays
// intact.
func appendValue(set []string, v string) []string {
	if len(set) >= maxValueSet {
		return set
	}
	return append(set, v)
}

func appendValues(set []string, vs []string) []string {
	for _, v := range vs {
		if len(set) >= maxValueSet {
			break
		}
		set = append(set, v)
	}
	return set
}

// zipConcat concatenates two value sets positionally, broadcasting the last
// value of the shorter side. This models `base + id` without combinatorial
// explosion and is deliberately not a cross product.
func zipConcat(left, right []string) []string {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}
	n := len(left)
	if len(right) > n {
		n = len(right)
	}
	if n > maxValueSet {
		n = maxValueSet
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		l := left[minInt(i, len(left)-1)]
		r := right[minInt(i, len(right)-1)]
		out = append(out, l+r)
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// dedupe coalesces identical values preserving first-seen order. Used only
// at record emission, never inside the engine.
func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
