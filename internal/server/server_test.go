package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/ProposalAPI/internal/api"
	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/data/store"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/handlers"
	"github.com/akolanti/ProposalAPI/internal/job"
	"github.com/akolanti/ProposalAPI/internal/middleware"
	"github.com/akolanti/ProposalAPI/internal/rag/prompt"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorService"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

const token = "test-token"

type ingestCall struct {
	index, jobID, filename string
	attrs                  [3]string
}

type deleteCall struct {
	name, index, jobID string
}

// fakeVectors records ingestion and deletion; ".bin" uploads are unreadable.
type fakeVectors struct {
	vectorService.Service
	mu      sync.Mutex
	ingests []ingestCall
	deletes []deleteCall
	jobs    []string
}

func (f *fakeVectors) IngestDocument(ctx context.Context, index, jobID, filename string, blob []byte, attrs [3]string) (int, error) {
	if strings.HasSuffix(filename, ".bin") {
		return 0, fmt.Errorf("%w: %s", jobModel.ErrUnsupportedFormat, filename)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingests = append(f.ingests, ingestCall{index, jobID, filename, attrs})
	return 3, nil
}

func (f *fakeVectors) DeleteByDocumentName(ctx context.Context, name, index, jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{name, index, jobID})
	return true
}

func (f *fakeVectors) DeleteByJob(ctx context.Context, jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobID)
	return true
}

// gatedJobs fails the prerequisite check for one job only.
type gatedJobs struct{ jobID string }

func (g gatedJobs) CheckPrerequisites(ctx context.Context, d jobModel.JobDescriptor, record jobModel.JobRecord) error {
	if d.JobID == g.jobID {
		return fmt.Errorf("%w: rfp analysis is %s", jobModel.ErrPrerequisiteMissing, record.Stage(jobModel.StageRFP).Status)
	}
	return nil
}

var (
	testServer *httptest.Server
	tracker    *job.Tracker
	blobs      *blobStore.InMemory
	vectors    *fakeVectors
	queue      chan jobModel.JobDescriptor
)

func TestMain(m *testing.M) {
	table := store.InitInMemoryTable()
	blobs = blobStore.NewInMemory()
	tracker = job.NewTracker(table)
	vectors = &fakeVectors{}
	queue = make(chan jobModel.JobDescriptor, 16)

	service := job.InitJobService(job.ServiceConfig{
		JobChannel:        queue,
		DispatcherChannel: make(chan bool, 1),
		Tracker:           tracker,
		Checker:           gatedJobs{jobID: "PROP-PRE"},
	})
	handlers.InitJobHandler(handlers.Deps{
		Service: service,
		Blobs:   blobs,
		Vectors: vectors,
		Prompts: prompt.NewLoader(table),
		DeleteJob: func(ctx context.Context, jobID string) error {
			vectors.DeleteByJob(ctx, jobID)
			paths, _ := blobs.List(ctx, blobStore.JobPrefix(jobID))
			for _, p := range paths {
				_ = blobs.Delete(ctx, p)
			}
			return tracker.Delete(ctx, jobID)
		},
	})
	middleware.InitMiddleware(token)
	middleware.SetRateLimit(rate.Inf, 1)

	r := chi.NewRouter()
	RegisterRoutes(r)
	testServer = httptest.NewServer(r)

	code := m.Run()
	testServer.Close()
	os.Exit(code)
}

func do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, testServer.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func doJSON(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(raw)
	}
	return do(t, method, path, body, "application/json")
}

func upload(t *testing.T, path, filename, content string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("document", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return do(t, http.MethodPost, path, &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(res.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, res *http.Response, want int) {
	t.Helper()
	if res.StatusCode != want {
		raw, _ := io.ReadAll(res.Body)
		t.Fatalf("expected status %d, got %d: %s", want, res.StatusCode, raw)
	}
}

func nextQueued(t *testing.T) jobModel.JobDescriptor {
	t.Helper()
	select {
	case d := <-queue:
		return d
	case <-time.After(time.Second):
		t.Fatal("nothing was queued")
		return jobModel.JobDescriptor{}
	}
}

func TestRejectsMissingToken(t *testing.T) {
	res, err := http.Get(testServer.URL + "/jobs/PROP-AUTH/analysis/rfp")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	expectStatus(t, res, http.StatusUnauthorized)

	body := decode[api.ErrorResponse](t, res)
	if body.Status != string(api.JobStatusError) || body.Error.Code != http.StatusUnauthorized {
		t.Errorf("unexpected error body %+v", body)
	}
	if res.Header.Get("X-Trace-Id") == "" {
		t.Error("trace id header was not set")
	}
}

func TestUploadVectorizesReferenceDocuments(t *testing.T) {
	ctx := context.Background()
	res := upload(t, "/jobs/PROP-UP/documents/reference", "undp.txt", "reference text", map[string]string{"donor": "UNDP", "year": "2022"})
	expectStatus(t, res, http.StatusCreated)

	body := decode[api.UploadResponse](t, res)
	if body.Chunks != 3 || body.DocumentName != "undp.txt" {
		t.Errorf("unexpected upload response %+v", body)
	}
	stored, err := blobs.Get(ctx, blobStore.DocumentPath("PROP-UP", "reference", "undp.txt"))
	if err != nil || string(stored) != "reference text" {
		t.Fatalf("blob not stored: %q, %v", stored, err)
	}

	vectors.mu.Lock()
	defer vectors.mu.Unlock()
	var found bool
	for _, c := range vectors.ingests {
		if c.jobID == "PROP-UP" {
			found = true
			if c.index != config.ReferenceIndexName || c.attrs != [3]string{"UNDP", "", "2022"} {
				t.Errorf("unexpected ingest call %+v", c)
			}
		}
	}
	if !found {
		t.Error("reference document was not vectorized")
	}
}

func TestUploadKeepsRfpAsBlobOnly(t *testing.T) {
	res := upload(t, "/jobs/PROP-RFP/documents/rfp", "call.txt", "rfp text", nil)
	expectStatus(t, res, http.StatusCreated)
	if body := decode[api.UploadResponse](t, res); body.Chunks != 0 {
		t.Errorf("rfp should not be chunked, got %d chunks", body.Chunks)
	}

	vectors.mu.Lock()
	defer vectors.mu.Unlock()
	for _, c := range vectors.ingests {
		if c.jobID == "PROP-RFP" {
			t.Errorf("rfp was vectorized: %+v", c)
		}
	}
}

func TestUploadRejections(t *testing.T) {
	res := upload(t, "/jobs/PROP-BAD/documents/reference", "scan.bin", "????", nil)
	expectStatus(t, res, http.StatusUnsupportedMediaType)
	if ok, _ := blobs.Exists(context.Background(), blobStore.DocumentPath("PROP-BAD", "reference", "scan.bin")); ok {
		t.Error("unreadable document should not be kept")
	}

	res = upload(t, "/jobs/PROP-BAD/documents/invoices", "a.txt", "x", nil)
	expectStatus(t, res, http.StatusBadRequest)
}

func TestDispatchWithMissingPrerequisites(t *testing.T) {
	res := doJSON(t, http.MethodPost, "/jobs/PROP-PRE/analysis/concept", nil)
	expectStatus(t, res, http.StatusUnprocessableEntity)
	body := decode[api.DispatchResponse](t, res)
	if body.Status != string(jobModel.StatusNotStarted) || !strings.Contains(body.Error, "rfp analysis is not_started") {
		t.Errorf("unexpected dispatch response %+v", body)
	}
	select {
	case d := <-queue:
		t.Errorf("stage was queued: %+v", d)
	default:
	}

	state, err := tracker.Status(context.Background(), "PROP-PRE", jobModel.StageConcept)
	if err != nil || state.Status != jobModel.StatusNotStarted || !state.StartedAt.IsZero() {
		t.Errorf("record was written: %+v %v", state, err)
	}
}

func TestDispatchQueuesOnceAndReportsStatus(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, testServer.URL+"/jobs/PROP-D/analysis/rfp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Trace-Id", "trace-123")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	expectStatus(t, res, http.StatusOK)

	body := decode[api.DispatchResponse](t, res)
	if body.Status != string(jobModel.StatusProcessing) || body.Message != "analysis started" {
		t.Errorf("unexpected dispatch response %+v", body)
	}
	queued := nextQueued(t)
	if queued.JobID != "PROP-D" || queued.AnalysisType != jobModel.StageRFP || queued.TraceId != "trace-123" {
		t.Errorf("unexpected descriptor %+v", queued)
	}

	again := doJSON(t, http.MethodPost, "/jobs/PROP-D/analysis/rfp", nil)
	expectStatus(t, again, http.StatusOK)
	if body := decode[api.DispatchResponse](t, again); body.Message != "analysis already in progress" {
		t.Errorf("second dispatch should be a no-op, got %+v", body)
	}
	select {
	case d := <-queue:
		t.Errorf("second dispatch was queued: %+v", d)
	default:
	}

	status := doJSON(t, http.MethodGet, "/jobs/PROP-D/analysis/rfp", nil)
	expectStatus(t, status, http.StatusOK)
	state := decode[api.StageStatusResponse](t, status)
	if state.Status != string(jobModel.StatusProcessing) || state.StartedAt == nil {
		t.Errorf("unexpected status %+v", state)
	}

	forced := doJSON(t, http.MethodPost, "/jobs/PROP-D/analysis/rfp?force=true", nil)
	expectStatus(t, forced, http.StatusOK)
	if d := nextQueued(t); !d.Force {
		t.Error("forced dispatch lost its force flag")
	}
}

func TestDispatchValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body any
	}{
		{"unknown stage", "/jobs/PROP-V/analysis/budget", nil},
		{"concept document without evaluation", "/jobs/PROP-V/analysis/concept_document", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := doJSON(t, http.MethodPost, tt.path, tt.body)
			expectStatus(t, res, http.StatusBadRequest)
		})
	}

	res := doJSON(t, http.MethodPost, "/jobs/PROP-V/analysis/concept_document", api.DispatchRequest{
		ConceptEvaluation: map[string]any{"fit": "strong"},
	})
	expectStatus(t, res, http.StatusOK)
	if d := nextQueued(t); d.ConceptEvaluation["fit"] != "strong" {
		t.Errorf("evaluation not carried: %+v", d)
	}
}

func TestResetReturnsStageToNotStarted(t *testing.T) {
	expectStatus(t, doJSON(t, http.MethodPost, "/jobs/PROP-R/analysis/concept", nil), http.StatusOK)
	nextQueued(t)

	res := doJSON(t, http.MethodPost, "/jobs/PROP-R/analysis/concept/reset", nil)
	expectStatus(t, res, http.StatusOK)

	state, err := tracker.Status(context.Background(), "PROP-R", jobModel.StageConcept)
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != jobModel.StatusNotStarted || !state.StartedAt.IsZero() {
		t.Errorf("stage not reset: %+v", state)
	}

	expectStatus(t, doJSON(t, http.MethodPost, "/jobs/PROP-R/analysis/budget/reset", nil), http.StatusBadRequest)
}

func TestConceptTextIsStoredAsAttribute(t *testing.T) {
	res := doJSON(t, http.MethodPut, "/jobs/PROP-C/concept", api.ConceptTextRequest{Text: "Solar kiosks"})
	expectStatus(t, res, http.StatusNoContent)

	record, err := tracker.Snapshot(context.Background(), "PROP-C")
	if err != nil {
		t.Fatal(err)
	}
	if record.Attributes[jobModel.ConceptTextKey] != "Solar kiosks" {
		t.Errorf("concept text not stored: %+v", record.Attributes)
	}

	expectStatus(t, doJSON(t, http.MethodPut, "/jobs/PROP-C/concept", api.ConceptTextRequest{}), http.StatusBadRequest)
}

func TestDeleteDocumentThenJob(t *testing.T) {
	ctx := context.Background()
	expectStatus(t, upload(t, "/jobs/PROP-DEL/documents/existing_work", "annual.txt", "work", nil), http.StatusCreated)
	expectStatus(t, upload(t, "/jobs/PROP-DEL/documents/rfp", "call.txt", "rfp", nil), http.StatusCreated)

	expectStatus(t, doJSON(t, http.MethodDelete, "/jobs/PROP-DEL/documents/existing_work/annual.txt", nil), http.StatusNoContent)
	vectors.mu.Lock()
	deleted := false
	for _, d := range vectors.deletes {
		if d == (deleteCall{"annual.txt", config.ExistingWorkIndexName, "PROP-DEL"}) {
			deleted = true
		}
	}
	vectors.mu.Unlock()
	if !deleted {
		t.Error("document vectors were not deleted")
	}
	expectStatus(t, doJSON(t, http.MethodDelete, "/jobs/PROP-DEL/documents/existing_work/annual.txt", nil), http.StatusNotFound)

	expectStatus(t, doJSON(t, http.MethodPost, "/jobs/PROP-DEL/analysis/rfp", nil), http.StatusOK)
	nextQueued(t)

	expectStatus(t, doJSON(t, http.MethodDelete, "/jobs/PROP-DEL", nil), http.StatusNoContent)
	paths, _ := blobs.List(ctx, blobStore.JobPrefix("PROP-DEL"))
	if len(paths) != 0 {
		t.Errorf("blobs left behind: %v", paths)
	}
	jobs, _ := tracker.Jobs(ctx)
	for _, id := range jobs {
		if id == "PROP-DEL" {
			t.Error("job still indexed")
		}
	}
	if state, _ := tracker.Status(ctx, "PROP-DEL", jobModel.StageRFP); state.Status != jobModel.StatusNotStarted {
		t.Errorf("job record not deleted: %+v", state)
	}
}

func TestSavePromptRejectsSecondActiveTemplate(t *testing.T) {
	tmpl := api.PromptRequest{
		Section:            "proposal_writer",
		SubSection:         "server-test",
		Categories:         []string{"rfp"},
		Active:             true,
		UserPromptTemplate: "Analyse {{rfp_text}}",
	}
	res := doJSON(t, http.MethodPost, "/prompts", tmpl)
	expectStatus(t, res, http.StatusCreated)
	saved := decode[api.PromptResponse](t, res)
	if saved.Id == "" || saved.Version != 1 {
		t.Errorf("unexpected saved template %+v", saved)
	}

	expectStatus(t, doJSON(t, http.MethodPost, "/prompts", tmpl), http.StatusConflict)
	expectStatus(t, doJSON(t, http.MethodPost, "/prompts", api.PromptRequest{Section: "proposal_writer"}), http.StatusBadRequest)

	list := doJSON(t, http.MethodGet, "/prompts", nil)
	expectStatus(t, list, http.StatusOK)
	if templates := decode[[]api.PromptResponse](t, list); len(templates) == 0 {
		t.Error("saved template not listed")
	}
}
