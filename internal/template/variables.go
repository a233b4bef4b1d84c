package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	textTemplate "text/template"
)

// actionVar matches the leading field access of a template action:
// {{.name}}, {{range .items}}, {{if .cond | filter}} and the unpacking
// form {{range $i, $v := .items}}. Only the first dotted reference of a
// tag is captured; $-bindings before := are consumed without capture.
var actionVar = regexp.MustCompile(`\{\{\s*(?:range|if|with|else if)?\s*(?:\$[a-zA-Z_][a-zA-Z0-9_]*(?:\s*,\s*\$[a-zA-Z_][a-zA-Z0-9_]*)*\s*:=\s*)?\.([a-zA-Z_][a-zA-Z0-9_]*)`)

// Keywords that can look like a field access in malformed markup
// (e.g. "{{.end}}") and must never be reported as variables.
var reservedWords = map[string]struct{}{
	"else": {},
	"end":  {},
}

// ExtractVariables returns the deduplicated, lexicographically sorted set
// of placeholder variable names referenced by markup. The input is scanned
// textually, so variable-like tags inside HTML comments or scripts are
// matched too.
func ExtractVariables(markup string) []string {
	seen := make(map[string]struct{})
	for _, m := range actionVar.FindAllStringSubmatch(markup, -1) {
		name := m[1]
		if _, reserved := reservedWords[name]; reserved {
			continue
		}
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeVariables adds any variable not already present in the sample-data
// JSON document as a key with an empty string value. Existing values are
// never overwritten. When no key was added the input string is returned
// unchanged, so callers comparing strings see no spurious updates;
// otherwise the result is re-rendered with 2-space indentation.
//
// An unparseable or empty document is treated as "{}"; this function never
// fails.
func MergeVariables(sampleJSON string, variables []string) string {
	doc := make(map[string]interface{})

	trimmed := strings.TrimSpace(sampleJSON)
	if trimmed != "" && trimmed != "{}" {
		if err := json.Unmarshal([]byte(sampleJSON), &doc); err != nil {
			doc = make(map[string]interface{})
		}
	}

	added := false
	for _, name := range variables {
		if _, exists := doc[name]; !exists {
			doc[name] = ""
			added = true
		}
	}

	if !added {
		return sampleJSON
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return sampleJSON
	}
	return string(out)
}

// ValidateMarkup checks that markup parses as template syntax.
// Extraction works on invalid markup too; this is advisory only.
func ValidateMarkup(markup string) error {
	if _, err := textTemplate.New("markup").Parse(markup); err != nil {
		return fmt.Errorf("invalid template syntax: %w", err)
	}
	return nil
}
