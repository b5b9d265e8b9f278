package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/job"
	"github.com/akolanti/ProposalAPI/internal/metrics"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/robfig/cron/v3"
)

// Sweeper fails stages left in processing longer than maxAge, e.g. after a crash
// took their worker down.
type Sweeper struct {
	tracker *job.Tracker
	maxAge  time.Duration
	now     func() time.Time
	cron    *cron.Cron
	logger  *logger_i.Logger
}

func NewSweeper(tracker *job.Tracker, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		tracker: tracker,
		maxAge:  maxAge,
		now:     time.Now,
		logger:  logger_i.NewLogger("StaleStageSweeper"),
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start runs Sweep on schedule (standard cron spec or descriptors such as
// "@every 5m").
func (s *Sweeper) Start(schedule string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", schedule, "maxAge", s.maxAge)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep returns the number of stages it marked failed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	jobs, err := s.tracker.Jobs(ctx)
	if err != nil {
		s.logger.Error("listing jobs failed", "error", err)
		return 0
	}

	swept := 0
	cutoff := s.now().Add(-s.maxAge)
	for _, jobID := range jobs {
		record, err := s.tracker.Snapshot(ctx, jobID)
		if err != nil {
			s.logger.Warn("reading job failed", "jobId", jobID, "error", err)
			continue
		}
		for stage, state := range record.Stages {
			if state.Status != jobModel.StatusProcessing || state.StartedAt.IsZero() || state.StartedAt.After(cutoff) {
				continue
			}
			cause := fmt.Errorf("%w: processing since %s", jobModel.ErrStageTimedOut, state.StartedAt.Format(time.RFC3339))
			if err := s.tracker.FailStale(ctx, jobID, stage, state.StartedAt, cause); err != nil {
				s.logger.Warn("failing stale stage failed", "jobId", jobID, "stage", stage, "error", err)
				continue
			}
			metrics.IncrementStaleStagesSwept()
			swept++
		}
	}
	if swept > 0 {
		s.logger.Info("stale stages failed", "count", swept)
	}
	return swept
}
