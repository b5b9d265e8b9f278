// Package parser pulls structure out of free-text model output. It never fails:
// fenced JSON is tried first, then a bare JSON object, then markdown sections,
// and finally the raw text is returned as a single unnamed section.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

type Kind string

const (
	KindFencedJSON Kind = "fenced_json"
	KindBareJSON   Kind = "bare_json"
	KindSections   Kind = "sections"
	KindRaw        Kind = "raw"

	// UnnamedSection holds the whole text when no structure was found.
	UnnamedSection = "content"
)

type Result struct {
	Kind     Kind
	JSON     map[string]any
	Sections map[string]string
	// Order lists section titles as they appeared.
	Order []string
	Raw   string
}

func (r Result) IsJSON() bool {
	return r.Kind == KindFencedJSON || r.Kind == KindBareJSON
}

// Map returns the parsed JSON object, or the sections as title -> body.
func (r Result) Map() map[string]any {
	if r.IsJSON() {
		return r.JSON
	}
	out := make(map[string]any, len(r.Sections))
	for title, body := range r.Sections {
		out[title] = body
	}
	return out
}

var fencePattern = regexp.MustCompile("(?s)```[ \t]*(?:json|JSON)?[ \t]*\r?\n?(.*?)```")

func Parse(raw string) Result {
	if obj, ok := fencedJSON(raw); ok {
		return Result{Kind: KindFencedJSON, JSON: obj, Raw: raw}
	}
	if obj, ok := bareJSON(raw); ok {
		return Result{Kind: KindBareJSON, JSON: obj, Raw: raw}
	}
	if sections, order := markdownSections(raw); len(sections) > 0 {
		return Result{Kind: KindSections, Sections: sections, Order: order, Raw: raw}
	}
	return Result{
		Kind:     KindRaw,
		Sections: map[string]string{UnnamedSection: strings.TrimSpace(raw)},
		Order:    []string{UnnamedSection},
		Raw:      raw,
	}
}

func fencedJSON(raw string) (map[string]any, bool) {
	for _, m := range fencePattern.FindAllStringSubmatch(raw, -1) {
		if obj, ok := decodeObject(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
	}
	return nil, false
}

// bareJSON tries every balanced {...} span from the first brace, then the whole
// first-brace to last-brace range.
func bareJSON(raw string) (map[string]any, bool) {
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		if end := matchingBrace(raw, start); end > start {
			if obj, ok := decodeObject(raw[start : end+1]); ok {
				return obj, true
			}
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	first, last := strings.IndexByte(raw, '{'), strings.LastIndexByte(raw, '}')
	if first >= 0 && last > first {
		return decodeObject(raw[first : last+1])
	}
	return nil, false
}

// matchingBrace returns the index of the brace closing the one at start, skipping
// braces inside JSON strings, or -1.
func matchingBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// decodeObject accepts a JSON object; a top-level array is wrapped under "items".
func decodeObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		return map[string]any{"items": t}, true
	}
	return nil, false
}
