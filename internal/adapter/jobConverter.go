package adapter

import (
	"errors"
	"net/http"
	"time"

	"github.com/akolanti/ProposalAPI/internal/api"
	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/data/store"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/rag/prompt"
)

func ToDispatchResponse(result jobModel.DispatchResult) api.DispatchResponse {
	return api.DispatchResponse{
		JobID:        result.Body.JobID,
		AnalysisType: string(result.Body.AnalysisType),
		Status:       string(result.Body.Status),
		Message:      result.Body.Message,
		Error:        result.Body.Error,
	}
}

func ToStageStatusResponse(jobID string, state jobModel.StageState) api.StageStatusResponse {
	return api.StageStatusResponse{
		JobID:        jobID,
		AnalysisType: string(state.Stage),
		Status:       string(state.Status),
		StartedAt:    timePtr(state.StartedAt),
		CompletedAt:  timePtr(state.CompletedAt),
		FailedAt:     timePtr(state.FailedAt),
		Error:        state.Error,
		Output:       state.Output,
	}
}

func ToPromptResponse(t prompt.Template) api.PromptResponse {
	return api.PromptResponse{
		Id:         t.ID,
		Section:    t.Section,
		SubSection: t.SubSection,
		Categories: t.Categories,
		Active:     t.Active,
		Version:    t.Version,
		UpdatedAt:  t.UpdatedAt,
	}
}

func FromPromptRequest(r api.PromptRequest) prompt.Template {
	return prompt.Template{
		ID:                 r.Id,
		Section:            r.Section,
		SubSection:         r.SubSection,
		Categories:         r.Categories,
		Active:             r.Active,
		SystemPrompt:       r.SystemPrompt,
		UserPromptTemplate: r.UserPromptTemplate,
		OutputFormat:       r.OutputFormat,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ToJobError maps a domain error onto the status code and retry hint sent to
// clients.
func ToJobError(err error) jobModel.JobError {
	switch {
	case errors.Is(err, jobModel.ErrUnknownAnalysisType):
		return jobModel.JobError{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blobStore.ErrNotFound):
		return jobModel.JobError{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, jobModel.ErrAlreadyProcessing),
		errors.Is(err, jobModel.ErrInvalidTransition),
		errors.Is(err, prompt.ErrActiveTemplateExists):
		return jobModel.JobError{Code: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, jobModel.ErrUnsupportedFormat):
		return jobModel.JobError{Code: http.StatusUnsupportedMediaType, Message: err.Error()}
	case errors.Is(err, jobModel.ErrPrerequisiteMissing):
		return jobModel.JobError{Code: http.StatusUnprocessableEntity, Message: err.Error()}
	case errors.Is(err, jobModel.ErrLLMInvocation), errors.Is(err, jobModel.ErrEmbedding):
		return jobModel.JobError{Code: http.StatusBadGateway, Message: err.Error(), Retry: true}
	}
	return jobModel.JobError{Code: http.StatusInternalServerError, Message: err.Error(), Retry: true}
}

func BadRequest(id string, error string, code int) api.ErrorResponse {
	return api.ErrorResponse{
		Id:     id,
		Status: string(api.JobStatusError),
		Error: api.JobOutgoingError{
			Code:    code,
			Message: error,
			Retry:   false,
		},
	}
}

func FromJobError(id string, e jobModel.JobError) api.ErrorResponse {
	return api.ErrorResponse{
		Id:     id,
		Status: string(api.JobStatusError),
		Error: api.JobOutgoingError{
			Code:    e.Code,
			Message: e.Message,
			Retry:   e.Retry,
		},
	}
}
