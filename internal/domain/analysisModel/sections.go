package analysisModel

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Section is one titled block of a document, outline or review.
type Section struct {
	Title      Text              `json:"title,omitempty"`
	Content    Text              `json:"content,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type Sections []Section

var (
	titleKeys   = []string{"title", "section_title", "section", "name", "heading"}
	contentKeys = []string{"content", "body", "text", "rationale", "feedback", "purpose", "description"}
)

// UnmarshalJSON accepts a list of objects or strings, or a single object mapping
// titles to bodies.
func (s *Sections) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make(Sections, 0, len(items))
		for _, item := range items {
			sec, err := decodeSection(item)
			if err != nil {
				return err
			}
			out = append(out, sec)
		}
		*s = out
	case '{':
		var byTitle map[string]Text
		if err := json.Unmarshal(data, &byTitle); err != nil {
			return err
		}
		titles := make([]string, 0, len(byTitle))
		for t := range byTitle {
			titles = append(titles, t)
		}
		sort.Strings(titles)
		out := make(Sections, 0, len(titles))
		for _, t := range titles {
			out = append(out, Section{Title: Text(t), Content: byTitle[t]})
		}
		*s = out
	default:
		var content Text
		if err := json.Unmarshal(data, &content); err != nil {
			return err
		}
		*s = Sections{{Content: content}}
	}
	return nil
}

func decodeSection(data json.RawMessage) (Section, error) {
	if len(data) == 0 || data[0] != '{' {
		var content Text
		err := json.Unmarshal(data, &content)
		return Section{Content: content}, err
	}
	var fields map[string]Text
	if err := json.Unmarshal(data, &fields); err != nil {
		return Section{}, err
	}
	var sec Section
	sec.Title = takeFirst(fields, titleKeys)
	sec.Content = takeFirst(fields, contentKeys)
	for k, v := range fields {
		if k == "attributes" {
			continue
		}
		if sec.Attributes == nil {
			sec.Attributes = make(map[string]string)
		}
		sec.Attributes[k] = string(v)
	}
	return sec, nil
}

// takeFirst removes and returns the first present key.
func takeFirst(fields map[string]Text, keys []string) Text {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			delete(fields, k)
			return v
		}
	}
	return ""
}
