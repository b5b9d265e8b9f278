package api

import (
	"encoding/json"
	"time"
)

type JobExternalStatus string

const (
	JobStatusError JobExternalStatus = "Error"
)

type JobOutgoingError struct {
	Code    int    `json:"code" example:"404"`
	Message string `json:"message" example:"Job not found"`
	Retry   bool   `json:"can_retry" example:"false"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Id     string           `json:"id,omitempty" example:"PROP-2024-001"`
	Status string           `json:"status" example:"Error"`
	Error  JobOutgoingError `json:"error"`
}

// DispatchResponse mirrors the dispatcher's response body.
type DispatchResponse struct {
	JobID        string `json:"job_id" example:"PROP-2024-001"`
	AnalysisType string `json:"analysis_type" example:"rfp"`
	Status       string `json:"status" example:"processing"`
	Message      string `json:"message,omitempty" example:"analysis started"`
	Error        string `json:"error,omitempty"`
}

type StageStatusResponse struct {
	JobID        string          `json:"job_id" example:"PROP-2024-001"`
	AnalysisType string          `json:"analysis_type" example:"rfp"`
	Status       string          `json:"status" example:"completed"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	FailedAt     *time.Time      `json:"failed_at,omitempty"`
	Error        string          `json:"error,omitempty"`
	Output       json.RawMessage `json:"output,omitempty" swaggertype:"object"`
}

type UploadResponse struct {
	JobID        string `json:"job_id" example:"PROP-2024-001"`
	Kind         string `json:"kind" example:"reference"`
	DocumentName string `json:"document_name" example:"undp-2022.pdf"`
	Path         string `json:"path" example:"PROP-2024-001/documents/reference/undp-2022.pdf"`
	Chunks       int    `json:"chunks" example:"42"`
}

type PromptResponse struct {
	Id         string    `json:"id"`
	Section    string    `json:"section"`
	SubSection string    `json:"sub_section"`
	Categories []string  `json:"categories"`
	Active     bool      `json:"active"`
	Version    int       `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// requests---------------------

type DispatchRequest struct {
	ConceptEvaluation map[string]any `json:"concept_evaluation,omitempty"`
}

type ConceptTextRequest struct {
	Text string `json:"text" validate:"required"`
}

type PromptRequest struct {
	Id                 string   `json:"id,omitempty"`
	Section            string   `json:"section" validate:"required"`
	SubSection         string   `json:"sub_section" validate:"required"`
	Categories         []string `json:"categories" validate:"required,min=1"`
	Active             bool     `json:"active"`
	SystemPrompt       string   `json:"system_prompt"`
	UserPromptTemplate string   `json:"user_prompt_template" validate:"required"`
	OutputFormat       string   `json:"output_format"`
}
