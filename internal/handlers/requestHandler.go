package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/akolanti/ProposalAPI/internal/adapter"
	"github.com/akolanti/ProposalAPI/internal/adapter/utils"
	"github.com/akolanti/ProposalAPI/internal/api"
	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/domain/commonModels"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/go-playground/validator/v10"
)

const maxUploadSize = 32 << 20 //32mb

var (
	logRH    *logger_i.Logger
	validate = validator.New()
)

func GetHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// UploadDocumentHandler godoc
// @Summary      Upload a source document
// @Description  Stores the file under the job and kind. Reference and existing-work documents are also chunked and vectorized before the response is sent.
// @Tags         Documents
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id        path      string  true   "Job ID"
// @Param        kind      path      string  true   "Document kind"  Enums(rfp, reference, existing_work, concept, draft)
// @Param        document  formData  file    true   "The PDF, DOCX, HTML or text file"
// @Param        donor     formData  string  false  "Reference attribute"
// @Param        sector    formData  string  false  "Reference attribute"
// @Param        year      formData  string  false  "Reference attribute"
// @Success      201  {object}  api.UploadResponse
// @Failure      400  {object}  api.ErrorResponse  "Bad kind, missing file or file too large"
// @Failure      415  {object}  api.ErrorResponse  "Unreadable document format"
// @Failure      500  {object}  api.ErrorResponse
// @Router       /jobs/{id}/documents/{kind} [post]
func UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logRH.Warn("Invalid Context by request", "remoteAddr", r.RemoteAddr)
		return
	}
	ctx := r.Context()
	jobID := utils.GetChiURLParam(r, "id")
	kind := commonModels.DocumentKind(utils.GetChiURLParam(r, "kind"))
	if !kind.Valid() {
		WriteErrorResponse(w, http.StatusBadRequest, jobID, "unknown document kind "+string(kind))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, jobID, "File too large or bad request")
		return
	}
	fileReader, fileMetadata, err := r.FormFile("document")
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, jobID, "Could not retrieve file")
		return
	}
	defer fileReader.Close()

	data, err := io.ReadAll(fileReader)
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, jobID, "Could not read file")
		return
	}
	name := path.Base(fileMetadata.Filename)
	blobPath := blobStore.DocumentPath(jobID, string(kind), name)

	h := handlerInstance
	if err := h.blobs.Put(ctx, blobPath, data); err != nil {
		writeDomainError(ctx, w, jobID, err)
		return
	}

	chunks := 0
	if index := kind.Index(); index != "" && h.vectors != nil {
		var attrs [3]string
		for i, field := range kind.AttributeNames() {
			attrs[i] = r.FormValue(field)
		}
		chunks, err = h.vectors.IngestDocument(ctx, index, jobID, name, data, attrs)
		if err != nil {
			// an unreadable document would only fail the stage later
			_ = h.blobs.Delete(ctx, blobPath)
			writeDomainError(ctx, w, jobID, err)
			return
		}
	}

	logRH.ForContext(ctx).Info("document uploaded", "jobId", jobID, "kind", kind, "document", name, "chunks", chunks)
	writeJsonResponse(w, http.StatusCreated, api.UploadResponse{
		JobID:        jobID,
		Kind:         string(kind),
		DocumentName: name,
		Path:         blobPath,
		Chunks:       chunks,
	})
}

// DeleteDocumentHandler godoc
// @Summary      Delete a source document
// @Description  Removes the stored file and, for vectorized kinds, every chunk of it.
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Job ID"
// @Param        kind  path  string  true  "Document kind"
// @Param        name  path  string  true  "Document file name"
// @Success      204
// @Failure      404  {object}  api.ErrorResponse
// @Router       /jobs/{id}/documents/{kind}/{name} [delete]
func DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	ctx := r.Context()
	jobID := utils.GetChiURLParam(r, "id")
	kind := commonModels.DocumentKind(utils.GetChiURLParam(r, "kind"))
	name := utils.GetChiURLParam(r, "name")
	if !kind.Valid() || name == "" {
		WriteErrorResponse(w, http.StatusBadRequest, jobID, "unknown document kind or empty name")
		return
	}

	h := handlerInstance
	blobPath := blobStore.DocumentPath(jobID, string(kind), name)
	if ok, err := h.blobs.Exists(ctx, blobPath); err != nil || !ok {
		if err == nil {
			err = blobStore.ErrNotFound
		}
		writeDomainError(ctx, w, jobID, err)
		return
	}
	if index := kind.Index(); index != "" && h.vectors != nil {
		h.vectors.DeleteByDocumentName(ctx, name, index, jobID)
	}
	if err := h.blobs.Delete(ctx, blobPath); err != nil {
		writeDomainError(ctx, w, jobID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetConceptHandler godoc
// @Summary      Store the initial concept text
// @Description  The concept stage reads this text when no concept document was uploaded.
// @Tags         Documents
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                  true  "Job ID"
// @Param        request  body  api.ConceptTextRequest  true  "Concept text"
// @Success      204
// @Failure      400  {object}  api.ErrorResponse
// @Router       /jobs/{id}/concept [put]
func SetConceptHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	ctx := r.Context()
	jobID := utils.GetChiURLParam(r, "id")

	var req api.ConceptTextRequest
	if err := decodeOptionalBody(r.Body, &req); err != nil || validate.Struct(req) != nil {
		WriteErrorResponse(w, http.StatusBadRequest, jobID, "text is required")
		return
	}
	if err := handlerInstance.tracker.SetAttributes(ctx, jobID, map[string]string{jobModel.ConceptTextKey: req.Text}); err != nil {
		writeDomainError(ctx, w, jobID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DispatchStageHandler godoc
// @Summary      Start an analysis stage
// @Description  Moves the stage to processing and queues it. A stage that is already processing is left alone unless force is set. A stage whose prerequisites are missing is rejected without being recorded.
// @Tags         Analysis
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path   string               true   "Job ID"
// @Param        type     path   string               true   "Analysis type"  Enums(rfp, reference_proposals, existing_work, concept, concept_document, structure_workplan, draft_feedback)
// @Param        force    query  bool                 false  "Restart a stage that is processing"
// @Param        request  body   api.DispatchRequest  false  "Concept evaluation, required for concept_document"
// @Success      200  {object}  api.DispatchResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      422  {object}  api.DispatchResponse
// @Failure      500  {object}  api.DispatchResponse
// @Router       /jobs/{id}/analysis/{type} [post]
func DispatchStageHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	ctx := r.Context()
	jobID := utils.GetChiURLParam(r, "id")

	var req api.DispatchRequest
	if err := decodeOptionalBody(r.Body, &req); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, jobID, "invalid JSON body")
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	desc := jobModel.JobDescriptor{
		JobID:             jobID,
		AnalysisType:      jobModel.AnalysisType(utils.GetChiURLParam(r, "type")),
		ConceptEvaluation: req.ConceptEvaluation,
		Force:             force,
		TraceId:           traceID(ctx),
	}
	result, err := handlerInstance.service.Dispatch(ctx, desc)
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		WriteErrorResponse(w, http.StatusBadRequest, jobID, err.Error())
		return
	}
	writeJsonResponse(w, result.StatusCode, adapter.ToDispatchResponse(result))
}

// GetStageHandler godoc
// @Summary      Get stage status
// @Description  Returns the stage status, its timestamps and, once completed, its output.
// @Tags         Analysis
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Job ID"
// @Param        type  path  string  true  "Analysis type"
// @Success      200  {object}  api.StageStatusResponse
// @Failure      400  {object}  api.ErrorResponse
// @Router       /jobs/{id}/analysis/{type} [get]
func GetStageHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	ctx := r.Context()
	jobID := utils.GetChiURLParam(r, "id")
	stage, ok := stageParam(w, r, jobID)
	if !ok {
		return
	}
	state, err := handlerInstance.tracker.Status(ctx, jobID, stage)
	if err != nil {
		writeDomainError(ctx, w, jobID, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToStageStatusResponse(jobID, state))
}

// ResetStageHandler godoc
// @Summary      Reset a stage
// @Description  Clears the stage's status, timestamps, error and output. Other stages are untouched.
// @Tags         Analysis
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string  true  "Job ID"
// @Param        type  path  string  true  "Analysis type"
// @Success      200  {object}  api.StageStatusResponse
// @Failure      400  {object}  api.ErrorResponse
// @Router       /jobs/{id}/analysis/{type}/reset [post]
func ResetStageHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	ctx := r.Context()
	jobID := utils.GetChiURLParam(r, "id")
	stage, ok := stageParam(w, r, jobID)
	if !ok {
		return
	}
	if err := handlerInstance.service.Reset(ctx, jobID, stage); err != nil {
		writeDomainError(ctx, w, jobID, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToStageStatusResponse(jobID, jobModel.StageState{
		Stage:  stage,
		Status: jobModel.StatusNotStarted,
	}))
}

// DeleteJobHandler godoc
// @Summary      Delete a job
// @Description  Removes the job record, its uploaded documents and its vectors.
// @Tags         Jobs
// @Security     BearerAuth
// @Param        id  path  string  true  "Job ID"
// @Success      204
// @Failure      500  {object}  api.ErrorResponse
// @Router       /jobs/{id} [delete]
func DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	ctx := r.Context()
	jobID := utils.GetChiURLParam(r, "id")
	if err := handlerInstance.deleteJob(ctx, jobID); err != nil {
		writeDomainError(ctx, w, jobID, err)
		return
	}
	logRH.ForContext(ctx).Info("job deleted", "jobId", jobID)
	w.WriteHeader(http.StatusNoContent)
}

// SavePromptHandler godoc
// @Summary      Create or update a prompt template
// @Description  Rejected with 409 when another active template already covers one of the categories.
// @Tags         Prompts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body  api.PromptRequest  true  "Template"
// @Success      201  {object}  api.PromptResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      409  {object}  api.ErrorResponse
// @Router       /prompts [post]
func SavePromptHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	ctx := r.Context()

	var req api.PromptRequest
	if err := decodeOptionalBody(r.Body, &req); err != nil || validate.Struct(req) != nil {
		WriteErrorResponse(w, http.StatusBadRequest, req.Id, "section, sub_section, categories and user_prompt_template are required")
		return
	}
	saved, err := handlerInstance.prompts.Save(ctx, adapter.FromPromptRequest(req))
	if err != nil {
		writeDomainError(ctx, w, req.Id, err)
		return
	}
	writeJsonResponse(w, http.StatusCreated, adapter.ToPromptResponse(saved))
}

// ListPromptsHandler godoc
// @Summary      List prompt templates
// @Tags         Prompts
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  api.PromptResponse
// @Router       /prompts [get]
func ListPromptsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	templates, err := handlerInstance.prompts.List(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, "", err)
		return
	}
	res := make([]api.PromptResponse, 0, len(templates))
	for _, t := range templates {
		res = append(res, adapter.ToPromptResponse(t))
	}
	writeJsonResponse(w, http.StatusOK, res)
}

func stageParam(w http.ResponseWriter, r *http.Request, jobID string) (jobModel.AnalysisType, bool) {
	stage := jobModel.AnalysisType(utils.GetChiURLParam(r, "type"))
	if !stage.Valid() {
		WriteErrorResponse(w, http.StatusBadRequest, jobID, "unknown analysis type "+string(stage))
		return "", false
	}
	return stage, true
}
