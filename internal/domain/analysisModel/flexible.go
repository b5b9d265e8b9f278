package analysisModel

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Text accepts a JSON string, number, bool or structure. Non-string values are kept
// as their compact JSON so nothing the model returned is lost.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	var s string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	*t = Text(compact.String())
	return nil
}

func (t Text) String() string { return string(t) }

// TextList accepts a list of anything or a single value. A single string is split
// into lines when it looks like a markdown bullet list.
type TextList []string

func (l *TextList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '[' {
		var items []Text
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make(TextList, 0, len(items))
		for _, item := range items {
			if s := strings.TrimSpace(string(item)); s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}
	var single Text
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = splitBullets(string(single))
	return nil
}

func splitBullets(s string) TextList {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	bulleted := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "- ") && !strings.HasPrefix(line, "* ") {
			bulleted = false
			break
		}
	}
	if !bulleted {
		return TextList{s}
	}
	var out TextList
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, strings.TrimSpace(line[2:]))
	}
	return out
}

// Dedupe returns the union of lists keeping first-seen order. Comparison ignores
// case and surrounding whitespace.
func Dedupe(lists ...TextList) TextList {
	seen := make(map[string]struct{})
	var out TextList
	for _, list := range lists {
		for _, item := range list {
			key := strings.ToLower(strings.TrimSpace(item))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, strings.TrimSpace(item))
		}
	}
	return out
}
