package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/metrics"
)

func executeJob(desc jobModel.JobDescriptor) {
	start := time.Now()
	logger.Debug("Processing stage", "jobId", desc.JobID, "stage", desc.AnalysisType, "traceId", desc.TraceId)

	// the request that queued the stage is long gone; only the trace id carries over
	result := _dispatcher.Handle(context.Background(), desc)

	metrics.CaptureJobMetrics(string(result.Body.Status), time.Since(start))
	if result.StatusCode != 200 {
		logger.Warn("Stage finished with error", "jobId", desc.JobID, "stage", desc.AnalysisType, "error", result.Body.Error)
	}
}

func removeWorker(reason string) {
	workerWaitGroup.Done()
	count := atomic.AddInt64(&currentWorkerCount, -1)
	logger.Info("Removed worker", "reason", reason, "workerCount", count)
	metrics.DecrementActiveWorkerCount()
}
