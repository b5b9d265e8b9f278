package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/akolanti/ProposalAPI/internal/analysis"
	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/domain/analysisModel"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/job"
	"github.com/akolanti/ProposalAPI/internal/metrics"
	"github.com/akolanti/ProposalAPI/internal/rag/prompt"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

// Dispatcher runs one stage for one job and reports the outcome through the
// tracker. It is what the worker pool calls for every queued descriptor and what
// the CLI calls directly.
type Dispatcher struct {
	tracker        *job.Tracker
	registry       *analysis.Registry
	prompts        *prompt.Loader
	section        string
	stageTimeout   time.Duration
	maxRetries     int
	retryBaseDelay time.Duration
	sleeper        Sleeper
	logger         *logger_i.Logger
}

type DispatcherConfig struct {
	Tracker        *job.Tracker
	Registry       *analysis.Registry
	Prompts        *prompt.Loader
	PromptSection  string
	StageTimeout   time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	Sleeper        Sleeper
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.PromptSection == "" {
		cfg.PromptSection = config.PromptSection
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = config.StageTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = config.MaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = config.RetryBaseDelay
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = RealSleeper
	}
	return &Dispatcher{
		tracker:        cfg.Tracker,
		registry:       cfg.Registry,
		prompts:        cfg.Prompts,
		section:        cfg.PromptSection,
		stageTimeout:   cfg.StageTimeout,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		sleeper:        cfg.Sleeper,
		logger:         logger_i.NewLogger("Dispatcher"),
	}
}

// Handle runs a descriptor whose stage the enqueuing caller already moved to
// processing. It never returns an error: every failure is written to the job
// record and mapped into a 500 result.
func (d *Dispatcher) Handle(ctx context.Context, desc jobModel.JobDescriptor) jobModel.DispatchResult {
	return d.execute(ctx, desc, true)
}

// Run is the direct invocation path. The stage is moved to processing only after
// its prerequisites check out, so a rejected invocation leaves the record untouched.
func (d *Dispatcher) Run(ctx context.Context, desc jobModel.JobDescriptor) jobModel.DispatchResult {
	return d.execute(ctx, desc, false)
}

func (d *Dispatcher) execute(ctx context.Context, desc jobModel.JobDescriptor, begun bool) jobModel.DispatchResult {
	if desc.TraceId != "" {
		ctx = context.WithValue(ctx, config.TRACE_ID_KEY, desc.TraceId)
	}
	log := d.logger.ForContext(ctx).With("jobId", desc.JobID, "stage", desc.AnalysisType)
	start := time.Now()

	if err := desc.Validate(); err != nil {
		return job.Result(desc, http.StatusInternalServerError, jobModel.StatusFailed, "", fmt.Sprintf("invalid job descriptor: %v", err))
	}
	handler, err := d.registry.Get(desc.AnalysisType)
	if err != nil {
		return job.Result(desc, http.StatusInternalServerError, jobModel.StatusFailed, "", err.Error())
	}

	record, err := d.tracker.Snapshot(ctx, desc.JobID)
	if err != nil {
		log.Error("reading job record failed", "error", err)
		if begun {
			d.fail(ctx, desc, err)
		}
		return job.Result(desc, http.StatusInternalServerError, jobModel.StatusFailed, "", err.Error())
	}
	status := record.Stage(desc.AnalysisType).Status
	if begun && status != jobModel.StatusProcessing {
		// reset or swept while it sat in the queue
		log.Warn("stage no longer processing, skipped", "status", status)
		return job.Result(desc, http.StatusOK, status, "stage no longer processing, skipped", "")
	}

	in := analysis.Input{
		JobID:      desc.JobID,
		Descriptor: desc,
		Record:     record,
		Template:   d.prompts.ForStage(ctx, d.section, desc.AnalysisType),
	}

	if err := handler.Check(ctx, in); err != nil {
		log.Warn("prerequisites not met", "error", err)
		if begun {
			d.fail(ctx, desc, err)
		}
		return job.Result(desc, http.StatusInternalServerError, jobModel.StatusFailed, "", err.Error())
	}

	if !begun {
		if err := d.tracker.Begin(ctx, desc.JobID, desc.AnalysisType, desc.Force); err != nil {
			if errors.Is(err, jobModel.ErrAlreadyProcessing) {
				return job.Result(desc, http.StatusOK, jobModel.StatusProcessing, "analysis already in progress", "")
			}
			log.Error("begin failed", "error", err)
			return job.Result(desc, http.StatusInternalServerError, jobModel.StatusFailed, "", err.Error())
		}
	}

	out, err := d.run(ctx, handler, in)
	if err != nil {
		log.Error("stage failed", "error", err, "elapsed", time.Since(start))
		metrics.CaptureStageMetrics(string(desc.AnalysisType), "failed", time.Since(start))
		d.fail(ctx, desc, err)
		return job.Result(desc, http.StatusInternalServerError, jobModel.StatusFailed, "", err.Error())
	}

	payload, err := json.Marshal(out)
	if err == nil {
		err = d.tracker.Complete(context.WithoutCancel(ctx), desc.JobID, desc.AnalysisType, payload)
	}
	if err != nil {
		log.Error("storing stage output failed", "error", err)
		metrics.CaptureStageMetrics(string(desc.AnalysisType), "failed", time.Since(start))
		d.fail(ctx, desc, err)
		return job.Result(desc, http.StatusInternalServerError, jobModel.StatusFailed, "", err.Error())
	}

	metrics.CaptureStageMetrics(string(desc.AnalysisType), "completed", time.Since(start))
	log.Info("stage completed", "elapsed", time.Since(start))
	return job.Result(desc, http.StatusOK, jobModel.StatusCompleted, "analysis completed", "")
}

// run bounds the handler by the stage timeout; document generation is retried.
func (d *Dispatcher) run(ctx context.Context, handler analysis.Handler, in analysis.Input) (analysisModel.Output, error) {
	runCtx, cancel := context.WithTimeout(ctx, d.stageTimeout)
	defer cancel()

	stage := handler.Stage()
	attempt := func(ctx context.Context) (analysisModel.Output, error) {
		return safeRun(ctx, handler, in)
	}

	var out analysisModel.Output
	var err error
	if stage == jobModel.StageConceptDocument {
		out, err = GenerateWithRetry(runCtx, d.maxRetries, d.retryBaseDelay, d.sleeper, attempt,
			func(n int, delay time.Duration, err error) {
				metrics.IncrementStageRetries(string(stage))
				d.logger.ForContext(ctx).Warn("generation attempt failed, retrying",
					"jobId", in.JobID, "attempt", n, "delay", delay, "error", err)
			})
	} else {
		out, err = attempt(runCtx)
	}

	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s: %w", jobModel.ErrStageTimedOut, d.stageTimeout, err)
	}
	return out, err
}

func safeRun(ctx context.Context, handler analysis.Handler, in analysis.Input) (out analysisModel.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", handler.Stage(), r)
		}
	}()
	return handler.Run(ctx, in)
}

func (d *Dispatcher) fail(ctx context.Context, desc jobModel.JobDescriptor, cause error) {
	if err := d.tracker.Fail(context.WithoutCancel(ctx), desc.JobID, desc.AnalysisType, cause); err != nil {
		d.logger.ForContext(ctx).Error("recording failure failed", "jobId", desc.JobID, "stage", desc.AnalysisType, "error", err)
	}
}
