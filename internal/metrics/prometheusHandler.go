package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var countJobsInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "count_jobs_in_queue",
	Help: "Number of stage descriptors waiting in the queue",
})

var dispatcherSignalCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "dispatcher_signal_count",
	Help: "How often the dispatcher has signaled to start worker",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "active_worker_count",
	Help: "Number of active workers",
})

var stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "analysis_stage_duration_seconds",
	Help:    "Time spent running an analysis stage, by stage and outcome.",
	Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
}, []string{"stage", "outcome"})

var stageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "analysis_stage_retries_total",
	Help: "Retries issued by the generation retry wrapper",
}, []string{"stage"})

var vectorInsertFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vector_insert_failures_total",
	Help: "Chunks that could not be embedded or indexed",
}, []string{"index"})

var staleStagesSwept = promauto.NewCounter(prometheus.CounterOpts{
	Name: "stale_stages_swept_total",
	Help: "Stages marked failed by the stale-stage sweeper",
})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func IncrementJobsInQueue() {
	countJobsInQueue.Inc()
}

func DecrementJobsInQueue() {
	countJobsInQueue.Dec()
}

func StartDispatcherSignalCount() {
	dispatcherSignalCount.Inc()
}

func IncrementActiveWorkerCount() {
	activeWorkerCount.Inc()
}
func DecrementActiveWorkerCount() {
	activeWorkerCount.Dec()
}

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "process_request_duration_seconds",
	Help:    "Total time spent handling a stage descriptor.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30},
}, []string{"status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

func CaptureExecutionMetrics(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureJobMetrics(label string, timeElapsed time.Duration) {
	requestDuration.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureStageMetrics(stage, outcome string, timeElapsed time.Duration) {
	stageDuration.WithLabelValues(stage, outcome).Observe(timeElapsed.Seconds())
}

func IncrementStageRetries(stage string) {
	stageRetries.WithLabelValues(stage).Inc()
}

func IncrementVectorInsertFailures(index string) {
	vectorInsertFailures.WithLabelValues(index).Inc()
}

func IncrementStaleStagesSwept() {
	staleStagesSwept.Inc()
}
