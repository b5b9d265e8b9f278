package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/akolanti/ProposalAPI/internal/analysis"
	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/domain/analysisModel"
	"github.com/akolanti/ProposalAPI/internal/domain/commonModels"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/rag/llm"
	"github.com/akolanti/ProposalAPI/internal/rag/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*analysis.Registry, *blobStore.InMemory, *MockLLM, *MockVectors) {
	t.Helper()
	blobs := blobStore.NewInMemory()
	model := &MockLLM{}
	vectors := &MockVectors{}
	reg := analysis.NewRegistry(analysis.Deps{
		Blobs:   blobs,
		Vectors: vectors,
		LLM:     model,
		Options: analysis.DefaultOptions(),
	})
	return reg, blobs, model, vectors
}

func input(stage jobModel.AnalysisType, record jobModel.JobRecord) analysis.Input {
	return analysis.Input{
		JobID:      "J1",
		Descriptor: jobModel.JobDescriptor{JobID: "J1", AnalysisType: stage},
		Record:     record,
		Template:   prompt.Default(config.PromptSection, stage),
	}
}

func rfpDone() jobModel.JobRecord {
	return jobModel.JobRecord{
		JobID: "J1",
		Stages: map[jobModel.AnalysisType]jobModel.StageState{
			jobModel.StageRFP: {
				Stage:  jobModel.StageRFP,
				Status: jobModel.StatusCompleted,
				Output: json.RawMessage(`{"narrative":"rfp overview","summary":"water and sanitation in rural districts"}`),
			},
		},
		Attributes: map[string]string{},
	}
}

func TestRfpStage_ParsesFencedJSON(t *testing.T) {
	ctx := context.Background()
	reg, blobs, model, _ := setup(t)
	require.NoError(t, blobs.Put(ctx, blobStore.DocumentPath("J1", string(commonModels.KindRFP), "call.txt"),
		[]byte("The fund invites proposals for rural water access.")))

	model.OnInvoke = func(ctx context.Context, req llm.Request) (string, error) {
		return "Here is the analysis:\n```json\n{\"summary\":\"Rural water access\",\"objectives\":[\"wells\",\"hygiene\"]}\n```", nil
	}

	h, err := reg.Get(jobModel.StageRFP)
	require.NoError(t, err)
	in := input(jobModel.StageRFP, jobModel.JobRecord{JobID: "J1"})
	require.NoError(t, h.Check(ctx, in))

	out, err := h.Run(ctx, in)
	require.NoError(t, err)
	rfp, ok := out.(*analysisModel.RfpAnalysis)
	require.True(t, ok, "unexpected output type %T", out)
	assert.Equal(t, "Rural water access", string(rfp.Summary))
	assert.Equal(t, analysisModel.TextList{"wells", "hygiene"}, rfp.Objectives)

	require.Equal(t, 1, model.Calls())
	assert.Contains(t, model.Requests[0].UserPrompt, "rural water access")
	assert.Equal(t, config.MaxOutputTokens, model.Requests[0].MaxTokens)
}

func TestRfpStage_KeepsUnrecognisedJSON(t *testing.T) {
	ctx := context.Background()
	reg, blobs, model, _ := setup(t)
	require.NoError(t, blobs.Put(ctx, blobStore.DocumentPath("J1", string(commonModels.KindRFP), "call.txt"),
		[]byte("Water Fund 2024 call for proposals.")))

	reply := "```json\n{\"rfp_title\":\"Water Fund 2024\",\"key_requirements\":[\"wells\"],\"donor_name\":\"X\"}\n```"
	model.OnInvoke = func(ctx context.Context, req llm.Request) (string, error) {
		return reply, nil
	}

	h, _ := reg.Get(jobModel.StageRFP)
	out, err := h.Run(ctx, input(jobModel.StageRFP, jobModel.JobRecord{JobID: "J1"}))
	require.NoError(t, err)

	rfp := out.(*analysisModel.RfpAnalysis)
	assert.Equal(t, reply, rfp.Raw)
	assert.JSONEq(t, `"Water Fund 2024"`, string(rfp.Extra["rfp_title"]))
	assert.JSONEq(t, `["wells"]`, string(rfp.Extra["key_requirements"]))
	assert.JSONEq(t, `"X"`, string(rfp.Extra["donor_name"]))
	assert.Contains(t, rfp.SearchQuery(), "Water Fund 2024")

	// the stored form keeps everything for later stages
	stored, err := json.Marshal(rfp)
	require.NoError(t, err)
	again, err := analysisModel.DecodeAs[analysisModel.RfpAnalysis](jobModel.StageRFP, stored)
	require.NoError(t, err)
	assert.Equal(t, rfp.Extra, again.Extra)
	assert.Contains(t, again.Context(), "key_requirements")
}

func TestPrerequisitesAreChecked(t *testing.T) {
	ctx := context.Background()
	reg, _, model, _ := setup(t)

	tests := []struct {
		stage  jobModel.AnalysisType
		record jobModel.JobRecord
	}{
		{jobModel.StageRFP, jobModel.JobRecord{JobID: "J1"}},
		{jobModel.StageReferenceProposals, jobModel.JobRecord{JobID: "J1"}},
		{jobModel.StageConcept, jobModel.JobRecord{JobID: "J1"}},
		{jobModel.StageConcept, rfpDone()},
		{jobModel.StageConceptDocument, rfpDone()},
		{jobModel.StageStructureWorkplan, rfpDone()},
		{jobModel.StageDraftFeedback, rfpDone()},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			h, err := reg.Get(tt.stage)
			require.NoError(t, err)
			err = h.Check(ctx, input(tt.stage, tt.record))
			assert.True(t, errors.Is(err, jobModel.ErrPrerequisiteMissing), "got %v", err)
		})
	}
	assert.Equal(t, 0, model.Calls())
}

func TestConceptDocumentNeedsEvaluation(t *testing.T) {
	ctx := context.Background()
	reg, _, _, _ := setup(t)
	record := rfpDone()
	record.Stages[jobModel.StageConcept] = jobModel.StageState{
		Stage: jobModel.StageConcept, Status: jobModel.StatusCompleted, Output: json.RawMessage(`{"narrative":"concept"}`),
	}

	h, _ := reg.Get(jobModel.StageConceptDocument)
	in := input(jobModel.StageConceptDocument, record)
	assert.ErrorIs(t, h.Check(ctx, in), jobModel.ErrPrerequisiteMissing)

	in.Descriptor.ConceptEvaluation = map[string]any{"selected_sections": []string{"Theory of change"}}
	assert.NoError(t, h.Check(ctx, in))
}

func TestConceptUsesStoredConceptText(t *testing.T) {
	ctx := context.Background()
	reg, _, model, _ := setup(t)
	record := rfpDone()
	record.Attributes[jobModel.ConceptTextKey] = "Solar pumps for community wells"

	model.OnInvoke = func(ctx context.Context, req llm.Request) (string, error) {
		return "## Alignment\nStrong fit with the call.\n\n## Gaps\n- budget detail\n", nil
	}

	h, _ := reg.Get(jobModel.StageConcept)
	in := input(jobModel.StageConcept, record)
	require.NoError(t, h.Check(ctx, in))
	out, err := h.Run(ctx, in)
	require.NoError(t, err)

	concept := out.(*analysisModel.ConceptAnalysis)
	assert.Equal(t, "Strong fit with the call.", string(concept.Alignment))
	assert.Equal(t, analysisModel.TextList{"budget detail"}, concept.Gaps)
	assert.Contains(t, model.Requests[0].UserPrompt, "Solar pumps for community wells")
	assert.Contains(t, model.Requests[0].UserPrompt, "Not available.")
}

func TestReferenceStage_ConsolidatesDocuments(t *testing.T) {
	ctx := context.Background()
	reg, _, model, vectors := setup(t)

	var searched string
	vectors.OnSearchAndReconstruct = func(ctx context.Context, query string, topK int, index string) []commonModels.Document {
		searched = query
		assert.Equal(t, config.ReferenceIndexName, index)
		return []commonModels.Document{
			{Name: "a.pdf", Text: "first proposal body"},
			{Name: "b.pdf", Text: "second proposal body"},
		}
	}
	model.OnInvoke = func(ctx context.Context, req llm.Request) (string, error) {
		if strings.Contains(req.UserPrompt, "first proposal body") {
			return `{"narrative":"A story","writing_style":"formal","structure":"","best_practices":["Use logframes","Cite data"]}`, nil
		}
		return `{"narrative":"B story","structure":"Problem, solution","best_practices":["use logframes","Budget notes"]}`, nil
	}

	h, _ := reg.Get(jobModel.StageReferenceProposals)
	in := input(jobModel.StageReferenceProposals, rfpDone())
	require.NoError(t, h.Check(ctx, in))
	out, err := h.Run(ctx, in)
	require.NoError(t, err)

	ref := out.(*analysisModel.ReferenceProposalsAnalysis)
	assert.Equal(t, "water and sanitation in rural districts", searched)
	assert.Equal(t, 2, model.Calls())
	assert.Equal(t, "### a.pdf\n\nA story\n\n### b.pdf\n\nB story", string(ref.Narrative))
	assert.Equal(t, "formal", string(ref.WritingStyle))
	assert.Equal(t, "Problem, solution", string(ref.Structure))
	assert.Equal(t, analysisModel.TextList{"Use logframes", "Cite data", "Budget notes"}, ref.BestPractices)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, ref.Documents)
}

func TestExistingWorkStage_FallsBackToSearch(t *testing.T) {
	ctx := context.Background()
	reg, _, model, vectors := setup(t)

	vectors.OnSearchAndReconstruct = func(ctx context.Context, query string, topK int, index string) []commonModels.Document {
		assert.Equal(t, config.ExistingWorkIndexName, index)
		return []commonModels.Document{{Name: "annual-report.docx", Text: "we built 40 wells"}}
	}

	h, _ := reg.Get(jobModel.StageExistingWork)
	out, err := h.Run(ctx, input(jobModel.StageExistingWork, rfpDone()))
	require.NoError(t, err)

	work := out.(*analysisModel.ExistingWorkAnalysis)
	assert.Equal(t, "mocked llm response", string(work.Narrative))
	assert.Equal(t, []string{"annual-report.docx"}, work.Documents)
	assert.Equal(t, 1, model.Calls())
}

func TestReferenceStage_NoDocuments(t *testing.T) {
	ctx := context.Background()
	reg, _, model, _ := setup(t)

	h, _ := reg.Get(jobModel.StageReferenceProposals)
	_, err := h.Run(ctx, input(jobModel.StageReferenceProposals, rfpDone()))
	assert.ErrorIs(t, err, jobModel.ErrPrerequisiteMissing)
	assert.Equal(t, 0, model.Calls())
}

func TestModelFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	reg, blobs, model, _ := setup(t)
	require.NoError(t, blobs.Put(ctx, blobStore.DocumentPath("J1", string(commonModels.KindRFP), "call.txt"), []byte("call")))
	model.OnInvoke = func(ctx context.Context, req llm.Request) (string, error) {
		return "", llm.InvocationError("mock", errors.New("quota exceeded"))
	}

	h, _ := reg.Get(jobModel.StageRFP)
	_, err := h.Run(ctx, input(jobModel.StageRFP, jobModel.JobRecord{JobID: "J1"}))
	assert.ErrorIs(t, err, jobModel.ErrLLMInvocation)
}

func TestUnknownStage(t *testing.T) {
	reg, _, _, _ := setup(t)
	_, err := reg.Get("budget")
	assert.ErrorIs(t, err, jobModel.ErrUnknownAnalysisType)
}

func TestExistingWorkReadsBlobsWithoutVectorService(t *testing.T) {
	ctx := context.Background()
	blobs := blobStore.NewInMemory()
	model := &MockLLM{}
	reg := analysis.NewRegistry(analysis.Deps{
		Blobs:   blobs,
		LLM:     model,
		Options: analysis.DefaultOptions(),
	})
	for _, name := range []string{"a.txt", "b.txt"} {
		require.NoError(t, blobs.Put(ctx, blobStore.DocumentPath("J1", string(commonModels.KindExistingWork), name),
			[]byte("Borehole rehabilitation in "+name)))
	}

	h, err := reg.Get(jobModel.StageExistingWork)
	require.NoError(t, err)
	out, err := h.Run(ctx, input(jobModel.StageExistingWork, rfpDone()))
	require.NoError(t, err)

	work, ok := out.(*analysisModel.ExistingWorkAnalysis)
	require.True(t, ok, "unexpected output type %T", out)
	assert.Equal(t, []string{"a.txt", "b.txt"}, work.Documents)
	require.Equal(t, 2, model.Calls())
	assert.True(t, strings.Contains(model.Requests[0].UserPrompt, "Borehole rehabilitation in a.txt"))
}
