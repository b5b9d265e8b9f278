package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/domain/analysisModel"
	"github.com/akolanti/ProposalAPI/internal/domain/commonModels"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
)

// rfp: extracted RFP text -> RfpAnalysis

type rfpHandler struct{ stageBase }

func (h *rfpHandler) Stage() jobModel.AnalysisType { return jobModel.StageRFP }

func (h *rfpHandler) Check(ctx context.Context, in Input) error {
	return h.hasDocument(ctx, in.JobID, commonModels.KindRFP)
}

func (h *rfpHandler) Run(ctx context.Context, in Input) (analysisModel.Output, error) {
	_, text, err := h.documentText(ctx, in.JobID, commonModels.KindRFP)
	if err != nil {
		return nil, err
	}
	fields, err := h.generate(ctx, h.Stage(), in.Template, map[string]string{"rfp_text": text}, 0)
	if err != nil {
		return nil, err
	}
	return toOutput(h.Stage(), fields)
}

// reference_proposals: similar past proposals, one model call each, consolidated

type referenceHandler struct{ stageBase }

func (h *referenceHandler) Stage() jobModel.AnalysisType { return jobModel.StageReferenceProposals }

func (h *referenceHandler) Check(ctx context.Context, in Input) error {
	return requireCompleted(in.Record, jobModel.StageRFP)
}

func (h *referenceHandler) Run(ctx context.Context, in Input) (analysisModel.Output, error) {
	rfp, err := analysisModel.DecodeAs[analysisModel.RfpAnalysis](jobModel.StageRFP, in.Record.Stage(jobModel.StageRFP).Output)
	if err != nil {
		return nil, err
	}
	index := config.ReferenceIndexName
	maxDocs := h.deps.Options.MaxDocuments

	var docs []commonModels.Document
	if h.deps.Vectors == nil {
		docs = h.blobDocuments(ctx, in.JobID, commonModels.KindReference, maxDocs)
	} else {
		docs = h.deps.Vectors.SearchAndReconstruct(ctx, rfp.SearchQuery(), maxDocs, index)
		if len(docs) == 0 {
			docs = h.deps.Vectors.ReconstructByJob(ctx, in.JobID, index, maxDocs)
		}
	}
	return h.analyzeEach(ctx, in, docs, rfp.SearchQuery(), "reference_text")
}

// existing_work: the organization's own past work for this job

type existingWorkHandler struct{ stageBase }

func (h *existingWorkHandler) Stage() jobModel.AnalysisType { return jobModel.StageExistingWork }

func (h *existingWorkHandler) Check(ctx context.Context, in Input) error {
	return requireCompleted(in.Record, jobModel.StageRFP)
}

func (h *existingWorkHandler) Run(ctx context.Context, in Input) (analysisModel.Output, error) {
	rfp, err := analysisModel.DecodeAs[analysisModel.RfpAnalysis](jobModel.StageRFP, in.Record.Stage(jobModel.StageRFP).Output)
	if err != nil {
		return nil, err
	}
	index := config.ExistingWorkIndexName
	maxDocs := h.deps.Options.MaxDocuments

	if h.deps.Vectors == nil {
		return h.analyzeEach(ctx, in, h.blobDocuments(ctx, in.JobID, commonModels.KindExistingWork, maxDocs), rfp.SearchQuery(), "existing_work_text")
	}
	docs := h.deps.Vectors.ReconstructByJob(ctx, in.JobID, index, maxDocs)
	if len(docs) == 0 {
		docs = h.deps.Vectors.SearchAndReconstruct(ctx, rfp.SearchQuery(), maxDocs, index)
	}
	return h.analyzeEach(ctx, in, docs, rfp.SearchQuery(), "existing_work_text")
}

// analyzeEach runs one model call per document, in order, then consolidates.
func (b stageBase) analyzeEach(ctx context.Context, in Input, docs []commonModels.Document, rfpSummary, textVar string) (analysisModel.Output, error) {
	stage := in.Descriptor.AnalysisType
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents found for %s", jobModel.ErrPrerequisiteMissing, stage)
	}
	log := b.logger.ForContext(ctx).With("jobId", in.JobID, "stage", stage)

	results := make([]docResult, 0, len(docs))
	for _, doc := range docs {
		fields, err := b.generate(ctx, stage, in.Template, map[string]string{
			"rfp_summary":   rfpSummary,
			"document_name": doc.Name,
			textVar:         doc.Text,
		}, 0)
		if err != nil {
			return nil, fmt.Errorf("analyzing %s: %w", doc.Name, err)
		}
		log.Debug("document analyzed", "document", doc.Name, "fromChunks", doc.FromChunks)
		results = append(results, docResult{Name: doc.Name, Fields: fields})
	}

	merged := consolidate(results)
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	merged["documents"] = names
	return toOutput(stage, merged)
}

// concept: initial concept against the RFP and any supporting analyses

type conceptHandler struct{ stageBase }

func (h *conceptHandler) Stage() jobModel.AnalysisType { return jobModel.StageConcept }

func (h *conceptHandler) Check(ctx context.Context, in Input) error {
	if err := requireCompleted(in.Record, jobModel.StageRFP); err != nil {
		return err
	}
	if strings.TrimSpace(in.Record.Attributes[jobModel.ConceptTextKey]) != "" {
		return nil
	}
	return h.hasDocument(ctx, in.JobID, commonModels.KindConcept)
}

func (h *conceptHandler) Run(ctx context.Context, in Input) (analysisModel.Output, error) {
	concept := strings.TrimSpace(in.Record.Attributes[jobModel.ConceptTextKey])
	if concept == "" {
		var err error
		if _, concept, err = h.documentText(ctx, in.JobID, commonModels.KindConcept); err != nil {
			return nil, err
		}
	}
	fields, err := h.generate(ctx, h.Stage(), in.Template, map[string]string{
		"concept_text":           concept,
		"rfp_analysis":           priorContext(in.Record, jobModel.StageRFP),
		"reference_analysis":     priorContext(in.Record, jobModel.StageReferenceProposals),
		"existing_work_analysis": priorContext(in.Record, jobModel.StageExistingWork),
	}, 0)
	if err != nil {
		return nil, err
	}
	return toOutput(h.Stage(), fields)
}

// concept_document: full document generation, retried by the dispatcher

type conceptDocumentHandler struct{ stageBase }

func (h *conceptDocumentHandler) Stage() jobModel.AnalysisType { return jobModel.StageConceptDocument }

func (h *conceptDocumentHandler) Check(ctx context.Context, in Input) error {
	if err := requireCompleted(in.Record, jobModel.StageRFP, jobModel.StageConcept); err != nil {
		return err
	}
	if len(in.Descriptor.ConceptEvaluation) == 0 {
		return fmt.Errorf("%w: concept_evaluation is required", jobModel.ErrPrerequisiteMissing)
	}
	return nil
}

func (h *conceptDocumentHandler) Run(ctx context.Context, in Input) (analysisModel.Output, error) {
	evaluation, err := json.MarshalIndent(in.Descriptor.ConceptEvaluation, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding concept evaluation: %w", err)
	}
	fields, err := h.generate(ctx, h.Stage(), in.Template, map[string]string{
		"rfp_analysis":       priorContext(in.Record, jobModel.StageRFP),
		"concept_analysis":   priorContext(in.Record, jobModel.StageConcept),
		"concept_evaluation": string(evaluation),
	}, h.deps.Options.DocumentMaxTokens)
	if err != nil {
		return nil, err
	}
	return toOutput(h.Stage(), fields)
}

// structure_workplan: outline and workplan from the generated document

type structureWorkplanHandler struct{ stageBase }

func (h *structureWorkplanHandler) Stage() jobModel.AnalysisType {
	return jobModel.StageStructureWorkplan
}

func (h *structureWorkplanHandler) Check(ctx context.Context, in Input) error {
	return requireCompleted(in.Record, jobModel.StageRFP, jobModel.StageConceptDocument)
}

func (h *structureWorkplanHandler) Run(ctx context.Context, in Input) (analysisModel.Output, error) {
	fields, err := h.generate(ctx, h.Stage(), in.Template, map[string]string{
		"rfp_analysis":     priorContext(in.Record, jobModel.StageRFP),
		"concept_document": priorContext(in.Record, jobModel.StageConceptDocument),
	}, 0)
	if err != nil {
		return nil, err
	}
	return toOutput(h.Stage(), fields)
}

// draft_feedback: review of an uploaded draft

type draftFeedbackHandler struct{ stageBase }

func (h *draftFeedbackHandler) Stage() jobModel.AnalysisType { return jobModel.StageDraftFeedback }

func (h *draftFeedbackHandler) Check(ctx context.Context, in Input) error {
	if err := requireCompleted(in.Record, jobModel.StageRFP); err != nil {
		return err
	}
	return h.hasDocument(ctx, in.JobID, commonModels.KindDraft)
}

func (h *draftFeedbackHandler) Run(ctx context.Context, in Input) (analysisModel.Output, error) {
	_, draft, err := h.documentText(ctx, in.JobID, commonModels.KindDraft)
	if err != nil {
		return nil, err
	}
	fields, err := h.generate(ctx, h.Stage(), in.Template, map[string]string{
		"draft_text":   draft,
		"rfp_analysis": priorContext(in.Record, jobModel.StageRFP),
	}, 0)
	if err != nil {
		return nil, err
	}
	return toOutput(h.Stage(), fields)
}
