package prompt

import (
	"context"

	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
)

// stage -> sub-section and category tag used to select its template
var stageSelectors = map[jobModel.AnalysisType]struct{ subSection, category string }{
	jobModel.StageRFP:                {"step-1", "rfp_analysis"},
	jobModel.StageReferenceProposals: {"step-1", "reference_proposals_analysis"},
	jobModel.StageExistingWork:       {"step-1", "existing_work_analysis"},
	jobModel.StageConcept:            {"step-1", "concept_analysis"},
	jobModel.StageConceptDocument:    {"step-2", "concept_document"},
	jobModel.StageStructureWorkplan:  {"step-3", "structure_workplan"},
	jobModel.StageDraftFeedback:      {"step-4", "draft_feedback"},
}

func SelectorFor(section string, stage jobModel.AnalysisType) Selector {
	s := stageSelectors[stage]
	return Selector{Section: section, SubSection: s.subSection, Category: s.category}
}

// Default returns the built-in template for a stage.
func Default(section string, stage jobModel.AnalysisType) Template {
	sel := SelectorFor(section, stage)
	t := defaults[stage]
	t.ID = "default-" + string(stage)
	t.Section = section
	t.SubSection = sel.SubSection
	t.Categories = []string{sel.Category}
	t.Active = true
	return t
}

// ForStage resolves the stage's active template, falling back to Default.
func (l *Loader) ForStage(ctx context.Context, section string, stage jobModel.AnalysisType) Template {
	return l.Resolve(ctx, SelectorFor(section, stage), Default(section, stage))
}

const analystSystem = "You are a senior proposal development specialist for an international development organization. " +
	"You read funding calls and proposals closely and answer only from the material provided."

var defaults = map[jobModel.AnalysisType]Template{
	jobModel.StageRFP: {
		SystemPrompt: analystSystem,
		UserPromptTemplate: `Analyze the following request for proposals.

RFP TEXT:
{{rfp_text}}`,
		OutputFormat: "Respond with a single JSON object in a ```json fenced block with the keys: " +
			`"narrative" (markdown overview), "summary" (one paragraph), "donor", "objectives" (list), ` +
			`"eligibility" (list), "evaluation_criteria" (list), "requirements" (list), "deadlines" (list), "budget".`,
	},
	jobModel.StageReferenceProposals: {
		SystemPrompt: analystSystem,
		UserPromptTemplate: `A past proposal submitted to a similar call is provided below. Identify what made it competitive
and how it relates to the current RFP.

CURRENT RFP SUMMARY:
{{rfp_summary}}

REFERENCE PROPOSAL ({document_name}):
{{reference_text}}`,
		OutputFormat: "Respond with a single JSON object in a ```json fenced block with the keys: " +
			`"narrative", "structure" (how the proposal is organized), "writing_style", "strengths" (list), ` +
			`"relevance", "best_practices" (list).`,
	},
	jobModel.StageExistingWork: {
		SystemPrompt: analystSystem,
		UserPromptTemplate: `The document below describes work the organization has already delivered. Extract the experience
that supports a response to the current RFP.

CURRENT RFP SUMMARY:
{{rfp_summary}}

EXISTING WORK ({document_name}):
{{existing_work_text}}`,
		OutputFormat: "Respond with a single JSON object in a ```json fenced block with the keys: " +
			`"narrative", "capabilities" (list), "outcomes" (list), "partners" (list), "relevance", "best_practices" (list).`,
	},
	jobModel.StageConcept: {
		SystemPrompt: analystSystem,
		UserPromptTemplate: `Evaluate the initial concept note against the RFP and the supporting evidence.

RFP ANALYSIS:
{{rfp_analysis}}

REFERENCE PROPOSALS ANALYSIS:
{{reference_analysis}}

EXISTING WORK ANALYSIS:
{{existing_work_analysis}}

INITIAL CONCEPT:
{{concept_text}}`,
		OutputFormat: "Respond with a single JSON object in a ```json fenced block with the keys: " +
			`"narrative", "alignment" (how well the concept fits the call), "strengths" (list), "gaps" (list), ` +
			`"recommendations" (list), "sections" (list of objects with "title" and "rationale").`,
	},
	jobModel.StageConceptDocument: {
		SystemPrompt: analystSystem + " You write complete, persuasive concept documents.",
		UserPromptTemplate: `Write the full concept document for this proposal.

RFP ANALYSIS:
{{rfp_analysis}}

CONCEPT ANALYSIS:
{{concept_analysis}}

USER EVALUATION OF THE CONCEPT:
{{concept_evaluation}}`,
		OutputFormat: "Respond with a single JSON object in a ```json fenced block with the keys: " +
			`"narrative" (the complete document in markdown), "title", "sections" (list of objects with "title" and "content").`,
	},
	jobModel.StageStructureWorkplan: {
		SystemPrompt: analystSystem,
		UserPromptTemplate: `Produce the proposal structure and workplan that the full proposal should follow.

RFP ANALYSIS:
{{rfp_analysis}}

CONCEPT DOCUMENT:
{{concept_document}}`,
		OutputFormat: "Respond with a single JSON object in a ```json fenced block with the keys: " +
			`"narrative", "proposal_outline" (list of objects with "section_title", "purpose", "word_count"), ` +
			`"workplan" (list of activities), "timeline".`,
	},
	jobModel.StageDraftFeedback: {
		SystemPrompt: analystSystem + " You review drafts the way a donor evaluation panel would.",
		UserPromptTemplate: `Review the draft proposal against the RFP.

RFP ANALYSIS:
{{rfp_analysis}}

DRAFT PROPOSAL:
{{draft_text}}`,
		OutputFormat: "Respond with a single JSON object in a ```json fenced block with the keys: " +
			`"narrative", "overall_assessment", "section_feedback" (list of objects with "section", "feedback", "score"), ` +
			`"improvements" (list).`,
	},
}
