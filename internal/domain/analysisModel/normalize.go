package analysisModel

import (
	"bytes"
	"encoding/json"

	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/tidwall/gjson"
)

const maxUnwrapDepth = 4

var genericWrappers = []string{"analysis", "result", "output", "data"}

// Normalize turns any payload shape seen for a stage into its flat object:
// {"rfp_analysis": {...}}, {"rfp": {...}}, {"analysis": {...}}, a JSON object
// encoded inside a string, or the flat object itself. Anything that is not an
// object ends up as the narrative.
func Normalize(stage jobModel.AnalysisType, raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []byte("{}")
	}
	if !gjson.ValidBytes(raw) {
		return narrativeOnly(string(raw))
	}

	wrappers := append([]string{stage.OutputField(), string(stage)}, genericWrappers...)
	res := gjson.ParseBytes(raw)
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		if res.Type == gjson.String {
			inner := gjson.Parse(res.String())
			if gjson.Valid(res.String()) && inner.IsObject() {
				res = inner
				continue
			}
			return narrativeOnly(res.String())
		}
		if !res.IsObject() {
			if res.IsArray() {
				return wrapItems(res.Raw)
			}
			return narrativeOnly(res.String())
		}

		next, ok := unwrapOnce(res, wrappers)
		if !ok {
			break
		}
		res = next
	}
	return []byte(res.Raw)
}

// unwrapOnce descends into a wrapper key when the object has no stage fields of
// its own next to it.
func unwrapOnce(res gjson.Result, wrappers []string) (gjson.Result, bool) {
	if res.Get("narrative").Exists() {
		return res, false
	}
	for _, w := range wrappers {
		v := res.Get(w)
		if v.IsObject() || (v.Type == gjson.String && gjson.Valid(v.String()) && gjson.Parse(v.String()).IsObject()) {
			return v, true
		}
	}
	return res, false
}

func narrativeOnly(text string) []byte {
	b, _ := json.Marshal(map[string]string{"narrative": text, "raw": text})
	return b
}

func wrapItems(rawArray string) []byte {
	return []byte(`{"narrative":"","items":` + rawArray + `}`)
}
