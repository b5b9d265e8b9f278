package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/domain/analysisModel"
	"github.com/akolanti/ProposalAPI/internal/domain/commonModels"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/metrics"
	"github.com/akolanti/ProposalAPI/internal/rag/ingest"
	"github.com/akolanti/ProposalAPI/internal/rag/llm"
	"github.com/akolanti/ProposalAPI/internal/rag/parser"
	"github.com/akolanti/ProposalAPI/internal/rag/prompt"
	"github.com/akolanti/ProposalAPI/internal/rag/vectorService"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

// Input is everything a stage handler may read. Record is a snapshot taken by the
// dispatcher; handlers never write to the job record themselves.
type Input struct {
	JobID      string
	Descriptor jobModel.JobDescriptor
	Record     jobModel.JobRecord
	Template   prompt.Template
}

type Handler interface {
	Stage() jobModel.AnalysisType
	// Check verifies prerequisites and fails with ErrPrerequisiteMissing. It has no
	// side effects.
	Check(ctx context.Context, in Input) error
	Run(ctx context.Context, in Input) (analysisModel.Output, error)
}

type Options struct {
	MaxDocuments      int
	Temperature       float32
	MaxTokens         int
	DocumentMaxTokens int
	MaxExtractedChars int
}

func DefaultOptions() Options {
	return Options{
		MaxDocuments:      config.MaxDocuments,
		Temperature:       config.ModelTemperature,
		MaxTokens:         config.MaxOutputTokens,
		DocumentMaxTokens: config.DocumentMaxOutputTokens,
		MaxExtractedChars: config.MaxExtractedChars,
	}
}

type Deps struct {
	Blobs   blobStore.Store
	Vectors vectorService.Service
	LLM     llm.Invoker
	Options Options
}

type Registry struct {
	handlers map[jobModel.AnalysisType]Handler
}

func NewRegistry(deps Deps) *Registry {
	base := stageBase{deps: deps, logger: logger_i.NewLogger("Analysis")}
	r := &Registry{handlers: map[jobModel.AnalysisType]Handler{}}
	for _, h := range []Handler{
		&rfpHandler{base},
		&referenceHandler{base},
		&existingWorkHandler{base},
		&conceptHandler{base},
		&conceptDocumentHandler{base},
		&structureWorkplanHandler{base},
		&draftFeedbackHandler{base},
	} {
		r.handlers[h.Stage()] = h
	}
	return r
}

func (r *Registry) Get(stage jobModel.AnalysisType) (Handler, error) {
	h, ok := r.handlers[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobModel.ErrUnknownAnalysisType, stage)
	}
	return h, nil
}

// CheckPrerequisites runs the stage's Check against record without running it.
func (r *Registry) CheckPrerequisites(ctx context.Context, d jobModel.JobDescriptor, record jobModel.JobRecord) error {
	h, err := r.Get(d.AnalysisType)
	if err != nil {
		return err
	}
	return h.Check(ctx, Input{JobID: d.JobID, Descriptor: d, Record: record})
}

type stageBase struct {
	deps   Deps
	logger *logger_i.Logger
}

func requireCompleted(record jobModel.JobRecord, stages ...jobModel.AnalysisType) error {
	for _, s := range stages {
		if !record.Completed(s) {
			return fmt.Errorf("%w: %s analysis is %s", jobModel.ErrPrerequisiteMissing, s, record.Stage(s).Status)
		}
	}
	return nil
}

// firstDocument returns the name and content of the first uploaded document of a
// kind, by name order.
func (b stageBase) firstDocument(ctx context.Context, jobID string, kind commonModels.DocumentKind) (string, []byte, error) {
	paths, err := b.deps.Blobs.List(ctx, blobStore.DocumentPrefix(jobID, string(kind)))
	if err != nil {
		return "", nil, err
	}
	if len(paths) == 0 {
		return "", nil, fmt.Errorf("%w: no %s document uploaded", jobModel.ErrPrerequisiteMissing, kind)
	}
	data, err := b.deps.Blobs.Get(ctx, paths[0])
	if err != nil {
		return "", nil, err
	}
	return path.Base(paths[0]), data, nil
}

func (b stageBase) hasDocument(ctx context.Context, jobID string, kind commonModels.DocumentKind) error {
	paths, err := b.deps.Blobs.List(ctx, blobStore.DocumentPrefix(jobID, string(kind)))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no %s document uploaded", jobModel.ErrPrerequisiteMissing, kind)
	}
	return nil
}

func (b stageBase) documentText(ctx context.Context, jobID string, kind commonModels.DocumentKind) (string, string, error) {
	name, data, err := b.firstDocument(ctx, jobID, kind)
	if err != nil {
		return "", "", err
	}
	text, err := ingest.ExtractLimit(data, name, b.deps.Options.MaxExtractedChars)
	if err != nil {
		return "", "", err
	}
	return name, text, nil
}

// blobDocuments reads up to maxDocs uploaded documents of a kind straight from
// blob storage. Used when no vector service is configured.
func (b stageBase) blobDocuments(ctx context.Context, jobID string, kind commonModels.DocumentKind, maxDocs int) []commonModels.Document {
	log := b.logger.ForContext(ctx).With("jobId", jobID, "kind", kind)
	paths, err := b.deps.Blobs.List(ctx, blobStore.DocumentPrefix(jobID, string(kind)))
	if err != nil {
		log.Warn("listing documents failed", "error", err)
		return nil
	}
	var docs []commonModels.Document
	for _, p := range paths {
		if maxDocs > 0 && len(docs) == maxDocs {
			break
		}
		data, err := b.deps.Blobs.Get(ctx, p)
		if err != nil {
			log.Warn("reading document failed", "path", p, "error", err)
			continue
		}
		name := path.Base(p)
		text, err := ingest.ExtractLimit(data, name, b.deps.Options.MaxExtractedChars)
		if err != nil {
			log.Warn("document skipped", "document", name, "error", err)
			continue
		}
		docs = append(docs, commonModels.Document{JobID: jobID, Name: name, Index: kind.Index(), Text: text})
	}
	return docs
}

// generate renders the template, calls the model and parses the answer into a
// field map.
func (b stageBase) generate(ctx context.Context, stage jobModel.AnalysisType, tpl prompt.Template, vars map[string]string, maxTokens int) (map[string]any, error) {
	log := b.logger.ForContext(ctx).With("stage", stage, "templateId", tpl.ID)
	if maxTokens <= 0 {
		maxTokens = b.deps.Options.MaxTokens
	}
	req := llm.Request{
		SystemPrompt: tpl.SystemPrompt,
		UserPrompt:   prompt.Render(tpl, vars),
		MaxTokens:    maxTokens,
		Temperature:  b.deps.Options.Temperature,
	}

	start := time.Now()
	raw, err := b.deps.LLM.Invoke(ctx, req)
	metrics.CaptureExecutionMetrics("llm_generation", time.Since(start))
	if err != nil {
		return nil, err
	}

	result := parser.Parse(raw)
	log.Debug("model response parsed", "kind", result.Kind, "chars", len(raw))
	return fieldsOf(result), nil
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

func snakeKey(title string) string {
	return strings.Trim(nonWord.ReplaceAllString(strings.ToLower(title), "_"), "_")
}

// fieldsOf maps any parse result onto stage fields. Markdown section titles become
// snake_case keys and the whole answer is the narrative unless a section claims it.
// JSON answers keep the model text as raw.
func fieldsOf(r parser.Result) map[string]any {
	raw := strings.TrimSpace(r.Raw)
	if r.IsJSON() {
		fields := make(map[string]any, len(r.JSON)+1)
		for k, v := range r.JSON {
			fields[k] = v
		}
		if _, ok := fields["raw"]; !ok {
			fields["raw"] = raw
		}
		return fields
	}
	if r.Kind == parser.KindRaw {
		return map[string]any{"narrative": raw, "raw": raw}
	}
	fields := map[string]any{}
	for title, body := range r.Sections {
		if key := snakeKey(title); key != "" {
			fields[key] = body
		}
	}
	if _, ok := fields["narrative"]; !ok {
		fields["narrative"] = raw
	}
	return fields
}

func toOutput(stage jobModel.AnalysisType, fields map[string]any) (analysisModel.Output, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding %s fields: %w", stage, err)
	}
	return analysisModel.Decode(stage, b)
}

// priorContext returns a completed stage's prompt context, or a placeholder.
func priorContext(record jobModel.JobRecord, stage jobModel.AnalysisType) string {
	if !record.Completed(stage) {
		return "Not available."
	}
	out, err := analysisModel.Decode(stage, record.Stage(stage).Output)
	if err != nil {
		return "Not available."
	}
	return out.Context()
}
