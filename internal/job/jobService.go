package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/metrics"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

// PrerequisiteChecker reports whether a stage can run against the job's current
// record. It must not write anything.
type PrerequisiteChecker interface {
	CheckPrerequisites(ctx context.Context, d jobModel.JobDescriptor, record jobModel.JobRecord) error
}

type Service struct {
	JobChannel        chan jobModel.JobDescriptor
	RequestCount      int64
	DispatcherChannel chan bool
	Tracker           *Tracker
	Checker           PrerequisiteChecker
	logger            *logger_i.Logger
}

type ServiceConfig struct {
	JobChannel        chan jobModel.JobDescriptor
	RequestCount      int64
	DispatcherChannel chan bool
	Tracker           *Tracker
	Checker           PrerequisiteChecker
}

func InitJobService(cfg ServiceConfig) *Service {
	return &Service{
		JobChannel:        cfg.JobChannel,
		RequestCount:      cfg.RequestCount,
		DispatcherChannel: cfg.DispatcherChannel,
		Tracker:           cfg.Tracker,
		Checker:           cfg.Checker,
		logger:            logger_i.NewLogger("JobService"),
	}
}

// Dispatch validates d, checks its prerequisites, moves its stage to processing and
// queues it for the worker pool. A stage that is already processing is answered
// with a 200 and left alone. Missing prerequisites get a 422 and no writes.
func (s *Service) Dispatch(ctx context.Context, d jobModel.JobDescriptor) (jobModel.DispatchResult, error) {
	log := s.logger.ForContext(ctx).With("jobId", d.JobID, "stage", d.AnalysisType)
	if err := d.Validate(); err != nil {
		return jobModel.DispatchResult{}, fmt.Errorf("invalid job descriptor: %w", err)
	}

	if s.Checker != nil {
		record, err := s.Tracker.Snapshot(ctx, d.JobID)
		if err != nil {
			return Result(d, http.StatusInternalServerError, jobModel.StatusFailed, "", err.Error()), err
		}
		if err := s.Checker.CheckPrerequisites(ctx, d, record); err != nil {
			log.Info("stage not queued", "error", err)
			code := http.StatusInternalServerError
			if errors.Is(err, jobModel.ErrPrerequisiteMissing) {
				code = http.StatusUnprocessableEntity
			}
			return Result(d, code, record.Stage(d.AnalysisType).Status, "", err.Error()), err
		}
	}

	if err := s.Tracker.Begin(ctx, d.JobID, d.AnalysisType, d.Force); err != nil {
		if errors.Is(err, jobModel.ErrAlreadyProcessing) {
			log.Info("stage already processing, not queued")
			return Result(d, http.StatusOK, jobModel.StatusProcessing, "analysis already in progress", ""), nil
		}
		return Result(d, http.StatusInternalServerError, jobModel.StatusFailed, "", err.Error()), err
	}

	if err := s.enqueue(ctx, d); err != nil {
		_ = s.Tracker.Fail(context.WithoutCancel(ctx), d.JobID, d.AnalysisType, err)
		return Result(d, http.StatusInternalServerError, jobModel.StatusFailed, "", err.Error()), err
	}
	log.Info("stage queued")
	return Result(d, http.StatusOK, jobModel.StatusProcessing, "analysis started", ""), nil
}

// Reset is the force-restart path: the stage's fields are cleared and it goes
// back to not_started.
func (s *Service) Reset(ctx context.Context, jobID string, stage jobModel.AnalysisType) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %s", jobModel.ErrUnknownAnalysisType, stage)
	}
	return s.Tracker.Reset(ctx, jobID, stage)
}

func (s *Service) enqueue(ctx context.Context, d jobModel.JobDescriptor) error {
	metrics.IncrementJobsInQueue()

	// blocking send so a full queue pushes back on callers
	select {
	case s.JobChannel <- d:
	case <-ctx.Done():
		metrics.DecrementJobsInQueue()
		return fmt.Errorf("queueing %s/%s: %w", d.JobID, d.AnalysisType, ctx.Err())
	}

	// a new worker every RequestsPerNewWorkerCount requests, and always for document
	// generation which holds its worker for minutes
	count := atomic.AddInt64(&s.RequestCount, 1)
	if count%config.RequestsPerNewWorkerCount == 0 || d.AnalysisType == jobModel.StageConceptDocument {
		select {
		case s.DispatcherChannel <- true:
			metrics.StartDispatcherSignalCount()
		default:
		}
	}
	return nil
}

func Result(d jobModel.JobDescriptor, code int, status jobModel.StageStatus, message, errText string) jobModel.DispatchResult {
	return jobModel.DispatchResult{
		StatusCode: code,
		Body: jobModel.DispatchBody{
			JobID:        d.JobID,
			AnalysisType: d.AnalysisType,
			Status:       status,
			Message:      message,
			Error:        errText,
		},
	}
}
