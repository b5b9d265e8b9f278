package analysisModel

import (
	"encoding/json"
	"testing"

	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeShapes(t *testing.T) {
	flat := `{"narrative":"n","summary":"s"}`
	tests := []struct {
		name string
		in   string
	}{
		{"flat", flat},
		{"stage field wrapper", `{"rfp_analysis":` + flat + `}`},
		{"stage name wrapper", `{"rfp":` + flat + `}`},
		{"double wrapper", `{"result":{"rfp_analysis":` + flat + `}}`},
		{"string encoded", `"{\"narrative\":\"n\",\"summary\":\"s\"}"`},
		{"string encoded wrapper", `{"rfp_analysis":"{\"narrative\":\"n\",\"summary\":\"s\"}"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeAs[RfpAnalysis](jobModel.StageRFP, []byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, Text("n"), out.Narrative)
			assert.Equal(t, Text("s"), out.Summary)
		})
	}
}

func TestNormalizePlainTextBecomesNarrative(t *testing.T) {
	out, err := Decode(jobModel.StageConcept, []byte("not json at all"))
	require.NoError(t, err)
	concept := out.(*ConceptAnalysis)
	assert.Equal(t, Text("not json at all"), concept.Narrative)
	assert.Equal(t, "not json at all", concept.Raw)
}

func TestFlexibleFields(t *testing.T) {
	in := `{
		"narrative": {"overview": "structured narrative"},
		"objectives": "- reduce losses\n- train staff",
		"eligibility": "NGOs only",
		"deadlines": ["1 March", {"date": "15 April"}],
		"budget": 2000000
	}`
	out, err := DecodeAs[RfpAnalysis](jobModel.StageRFP, []byte(in))
	require.NoError(t, err)
	assert.Equal(t, Text(`{"overview":"structured narrative"}`), out.Narrative)
	assert.Equal(t, TextList{"reduce losses", "train staff"}, out.Objectives)
	assert.Equal(t, TextList{"NGOs only"}, out.Eligibility)
	assert.Equal(t, TextList{"1 March", `{"date":"15 April"}`}, out.Deadlines)
	assert.Equal(t, Text("2000000"), out.Budget)
}

func TestSectionsShapes(t *testing.T) {
	var doc ConceptDocument
	require.NoError(t, json.Unmarshal([]byte(`{
		"narrative": "doc",
		"sections": [
			{"title": "Background", "content": "b"},
			{"section_title": "Approach", "purpose": "p", "word_count": 400},
			"loose paragraph"
		]
	}`), &doc))
	require.Len(t, doc.Sections, 3)
	assert.Equal(t, Section{Title: "Background", Content: "b"}, doc.Sections[0])
	assert.Equal(t, Text("Approach"), doc.Sections[1].Title)
	assert.Equal(t, Text("p"), doc.Sections[1].Content)
	assert.Equal(t, "400", doc.Sections[1].Attributes["word_count"])
	assert.Equal(t, Text("loose paragraph"), doc.Sections[2].Content)

	var byTitle StructureWorkplan
	require.NoError(t, json.Unmarshal([]byte(`{"proposal_outline": {"B": "second", "A": "first"}}`), &byTitle))
	assert.Equal(t, Sections{{Title: "A", Content: "first"}, {Title: "B", Content: "second"}}, byTitle.ProposalOutline)
}

func TestDedupeKeepsFirstSeenOrder(t *testing.T) {
	got := Dedupe(TextList{"Clear logframe", "Local partners"}, TextList{"local partners ", "Gender lens", "Clear logframe"})
	assert.Equal(t, TextList{"Clear logframe", "Local partners", "Gender lens"}, got)
}

func TestDecodeAsMissingOutput(t *testing.T) {
	_, err := DecodeAs[RfpAnalysis](jobModel.StageRFP, nil)
	assert.ErrorIs(t, err, jobModel.ErrPrerequisiteMissing)
}

func TestDecodeKeepsUnknownKeys(t *testing.T) {
	out, err := Decode(jobModel.StageDraftFeedback, []byte(`{"narrative":"ok","Overall_Assessment":"solid","tone":"formal","extra":{"kept":1}}`))
	require.NoError(t, err)
	fb := out.(*DraftFeedback)

	assert.Equal(t, Text("solid"), fb.OverallAssessment)
	require.Len(t, fb.Extra, 2)
	assert.JSONEq(t, `"formal"`, string(fb.Extra["tone"]))
	assert.JSONEq(t, `1`, string(fb.Extra["kept"]))
}

func TestDecodeWithoutUnknownKeysLeavesExtraEmpty(t *testing.T) {
	out, err := Decode(jobModel.StageRFP, []byte(`{"narrative":"n","summary":"s"}`))
	require.NoError(t, err)
	assert.Nil(t, out.(*RfpAnalysis).Extra)
}
