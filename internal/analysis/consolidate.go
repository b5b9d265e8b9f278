package analysis

import (
	"encoding/json"
	"strings"

	"github.com/akolanti/ProposalAPI/internal/domain/analysisModel"
)

type docResult struct {
	Name   string
	Fields map[string]any
}

// consolidate merges per-document results without any semantic merge: narratives
// are concatenated under per-document headers, the first non-empty value of every
// other field is kept as representative and best_practices is a deduplicated union
// in first-seen order.
func consolidate(results []docResult) map[string]any {
	merged := map[string]any{}
	if len(results) == 1 {
		for k, v := range results[0].Fields {
			merged[k] = v
		}
		return merged
	}

	var narrative strings.Builder
	var practices []analysisModel.TextList
	for _, r := range results {
		n := textOf(r.Fields["narrative"])
		if n == "" {
			n = textOf(r.Fields["raw"])
		}
		if n != "" {
			narrative.WriteString("### " + r.Name + "\n\n" + n + "\n\n")
		}
		practices = append(practices, listOf(r.Fields["best_practices"]))

		for k, v := range r.Fields {
			switch k {
			case "narrative", "best_practices", "raw":
				continue
			}
			if _, taken := merged[k]; !taken && !isEmpty(v) {
				merged[k] = v
			}
		}
	}
	merged["narrative"] = strings.TrimSpace(narrative.String())
	if bp := analysisModel.Dedupe(practices...); len(bp) > 0 {
		merged["best_practices"] = []string(bp)
	}
	return merged
}

func textOf(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var t analysisModel.Text
	if json.Unmarshal(b, &t) != nil {
		return ""
	}
	return strings.TrimSpace(string(t))
}

func listOf(v any) analysisModel.TextList {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var l analysisModel.TextList
	if json.Unmarshal(b, &l) != nil {
		return nil
	}
	return l
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
