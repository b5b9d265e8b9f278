package jobModel

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type StageStatus string

// AnalysisType names one pipeline stage.
type AnalysisType string

type JobKind string

const (
	StatusNotStarted StageStatus = "not_started"
	StatusProcessing StageStatus = "processing"
	StatusCompleted  StageStatus = "completed"
	StatusFailed     StageStatus = "failed"

	StageRFP                AnalysisType = "rfp"
	StageReferenceProposals AnalysisType = "reference_proposals"
	StageExistingWork       AnalysisType = "existing_work"
	StageConcept            AnalysisType = "concept"
	StageConceptDocument    AnalysisType = "concept_document"
	StageStructureWorkplan  AnalysisType = "structure_workplan"
	StageDraftFeedback      AnalysisType = "draft_feedback"

	KindProposal   JobKind = "PROPOSAL"
	KindNewsletter JobKind = "NEWSLETTER"

	RecordSort     = "METADATA"
	JobIndexKey    = "JOBINDEX"
	ConceptTextKey = "initial_concept"
)

var AllStages = []AnalysisType{
	StageRFP,
	StageReferenceProposals,
	StageExistingWork,
	StageConcept,
	StageConceptDocument,
	StageStructureWorkplan,
	StageDraftFeedback,
}

func (a AnalysisType) Valid() bool {
	for _, s := range AllStages {
		if s == a {
			return true
		}
	}
	return false
}

func (a AnalysisType) StatusField() string      { return "analysis_status_" + string(a) }
func (a AnalysisType) StartedAtField() string   { return string(a) + "_started_at" }
func (a AnalysisType) CompletedAtField() string { return string(a) + "_completed_at" }
func (a AnalysisType) FailedAtField() string    { return string(a) + "_failed_at" }
func (a AnalysisType) ErrorField() string       { return string(a) + "_error" }
func (a AnalysisType) OutputField() string      { return string(a) + "_analysis" }

// KindOf derives the job kind from its human-readable code. Newsletter codes start
// with NEWS, everything else is a proposal.
func KindOf(jobID string) JobKind {
	if strings.HasPrefix(strings.ToUpper(jobID), "NEWS") {
		return KindNewsletter
	}
	return KindProposal
}

func RecordPartition(jobID string) string {
	return string(KindOf(jobID)) + "#" + jobID
}

// JobDescriptor is the unit of work handed to the dispatcher.
type JobDescriptor struct {
	JobID             string         `json:"job_id" validate:"required,max=128"`
	AnalysisType      AnalysisType   `json:"analysis_type" validate:"required,oneof=rfp reference_proposals existing_work concept concept_document structure_workplan draft_feedback"`
	ConceptEvaluation map[string]any `json:"concept_evaluation,omitempty" validate:"required_if=AnalysisType concept_document"`
	Force             bool           `json:"force,omitempty"`
	TraceId           string         `json:"trace_id,omitempty"`
}

var validate = validator.New()

func (d JobDescriptor) Validate() error {
	return validate.Struct(d)
}

type StageState struct {
	Stage       AnalysisType    `json:"analysis_type"`
	Status      StageStatus     `json:"status"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
	FailedAt    time.Time       `json:"failed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
}

// JobRecord is the decoded view of a job's METADATA item.
type JobRecord struct {
	JobID      string                      `json:"job_id"`
	Stages     map[AnalysisType]StageState `json:"stages"`
	Attributes map[string]string           `json:"attributes,omitempty"`
}

func (r JobRecord) Stage(a AnalysisType) StageState {
	if s, ok := r.Stages[a]; ok {
		return s
	}
	return StageState{Stage: a, Status: StatusNotStarted}
}

func (r JobRecord) Completed(a AnalysisType) bool {
	return r.Stage(a).Status == StatusCompleted
}

type DispatchBody struct {
	JobID        string       `json:"job_id"`
	AnalysisType AnalysisType `json:"analysis_type"`
	Status       StageStatus  `json:"status"`
	Message      string       `json:"message,omitempty"`
	Error        string       `json:"error,omitempty"`
}

type DispatchResult struct {
	StatusCode int          `json:"statusCode"`
	Body       DispatchBody `json:"body"`
}

type JobError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}
