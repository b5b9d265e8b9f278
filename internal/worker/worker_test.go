package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akolanti/ProposalAPI/internal/analysis"
	"github.com/akolanti/ProposalAPI/internal/data/blobStore"
	"github.com/akolanti/ProposalAPI/internal/data/store"
	"github.com/akolanti/ProposalAPI/internal/domain/commonModels"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/internal/job"
	"github.com/akolanti/ProposalAPI/internal/rag/llm"
	"github.com/akolanti/ProposalAPI/internal/rag/prompt"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// MockLLM answers with OnInvoke and counts calls
type MockLLM struct {
	calls    int32
	OnInvoke func(ctx context.Context, n int, req llm.Request) (string, error)
}

func (m *MockLLM) Invoke(ctx context.Context, req llm.Request) (string, error) {
	n := int(atomic.AddInt32(&m.calls, 1))
	if m.OnInvoke != nil {
		return m.OnInvoke(ctx, n, req)
	}
	return `{"narrative":"mocked llm response"}`, nil
}

func (m *MockLLM) Calls() int { return int(atomic.LoadInt32(&m.calls)) }

type testEnv struct {
	table      store.Table
	tracker    *job.Tracker
	blobs      *blobStore.InMemory
	model      *MockLLM
	registry   *analysis.Registry
	dispatcher *Dispatcher

	mu     sync.Mutex
	sleeps []time.Duration
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		table: store.InitInMemoryTable(),
		blobs: blobStore.NewInMemory(),
		model: &MockLLM{},
	}
	env.tracker = job.NewTracker(env.table)
	env.registry = analysis.NewRegistry(analysis.Deps{
		Blobs:   env.blobs,
		LLM:     env.model,
		Options: analysis.DefaultOptions(),
	})
	env.dispatcher = NewDispatcher(DispatcherConfig{
		Tracker:        env.tracker,
		Registry:       env.registry,
		Prompts:        prompt.NewLoader(env.table),
		StageTimeout:   5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 30 * time.Second,
		Sleeper: SleeperFunc(func(ctx context.Context, d time.Duration) error {
			env.mu.Lock()
			env.sleeps = append(env.sleeps, d)
			env.mu.Unlock()
			return nil
		}),
	})
	return env
}

func (e *testEnv) upload(t *testing.T, jobID string, kind commonModels.DocumentKind, name, body string) {
	t.Helper()
	if err := e.blobs.Put(context.Background(), blobStore.DocumentPath(jobID, string(kind), name), []byte(body)); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) complete(t *testing.T, jobID string, stage jobModel.AnalysisType, output string) {
	t.Helper()
	ctx := context.Background()
	if err := e.tracker.Begin(ctx, jobID, stage, true); err != nil {
		t.Fatal(err)
	}
	if err := e.tracker.Complete(ctx, jobID, stage, json.RawMessage(output)); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateWithRetry_Backoff(t *testing.T) {
	var sleeps []time.Duration
	sleeper := SleeperFunc(func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	})

	calls := 0
	_, err := GenerateWithRetry(context.Background(), 3, 30*time.Second, sleeper,
		func(ctx context.Context) (string, error) {
			calls++
			return "", fmt.Errorf("attempt %d failed", calls)
		}, nil)

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(sleeps) != 2 || sleeps[0] != 30*time.Second || sleeps[1] != 60*time.Second {
		t.Errorf("unexpected sleeps %v", sleeps)
	}
	if err == nil || err.Error() != "attempt 3 failed" {
		t.Errorf("expected last error, got %v", err)
	}
}

func TestGenerateWithRetry_Schedule(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		failures   int
		wantCalls  int
		wantSleeps []time.Duration
		wantErr    bool
	}{
		{"first try", 3, 0, 1, nil, false},
		{"second try", 3, 1, 2, []time.Duration{time.Second}, false},
		{"five attempts", 5, 10, 5, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, true},
		{"zero means one", 0, 10, 1, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sleeps []time.Duration
			calls := 0
			out, err := GenerateWithRetry(context.Background(), tt.maxRetries, time.Second,
				SleeperFunc(func(ctx context.Context, d time.Duration) error {
					sleeps = append(sleeps, d)
					return nil
				}),
				func(ctx context.Context) (int, error) {
					calls++
					if calls <= tt.failures {
						return 0, errors.New("transient")
					}
					return calls, nil
				}, nil)

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if fmt.Sprint(sleeps) != fmt.Sprint(tt.wantSleeps) {
				t.Errorf("sleeps = %v, want %v", sleeps, tt.wantSleeps)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v", err)
			}
			if err == nil && out != calls {
				t.Errorf("out = %d", out)
			}
		})
	}
}

func TestGenerateWithRetry_PermanentErrorStops(t *testing.T) {
	calls := 0
	_, err := GenerateWithRetry(context.Background(), 3, time.Second,
		SleeperFunc(func(ctx context.Context, d time.Duration) error { return nil }),
		func(ctx context.Context) (string, error) {
			calls++
			return "", fmt.Errorf("%w: no rfp", jobModel.ErrPrerequisiteMissing)
		}, nil)
	if calls != 1 || !errors.Is(err, jobModel.ErrPrerequisiteMissing) {
		t.Errorf("calls=%d err=%v", calls, err)
	}
}

func TestRealSleeperHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := RealSleeper.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// J1: rfp, then concept, then a forced restart of concept that leaves rfp alone.
func TestDispatcher_EndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.upload(t, "J1", commonModels.KindRFP, "call.txt", "Call for proposals: clean water for rural schools.")
	env.model.OnInvoke = func(ctx context.Context, n int, req llm.Request) (string, error) {
		if strings.Contains(req.UserPrompt, "INITIAL CONCEPT") {
			return "```json\n{\"narrative\":\"concept fits\",\"gaps\":[\"budget\"]}\n```", nil
		}
		return "```json\n{\"narrative\":\"rfp read\",\"summary\":\"clean water\"}\n```", nil
	}

	before, _ := env.tracker.Status(ctx, "J1", jobModel.StageRFP)
	if before.Status != jobModel.StatusNotStarted {
		t.Fatalf("rfp starts as %s", before.Status)
	}

	res := env.dispatcher.Run(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageRFP, TraceId: "trace-1"})
	if res.StatusCode != http.StatusOK || res.Body.Status != jobModel.StatusCompleted {
		t.Fatalf("rfp dispatch: %+v", res)
	}
	rfp, _ := env.tracker.Status(ctx, "J1", jobModel.StageRFP)
	if rfp.Status != jobModel.StatusCompleted || !strings.Contains(string(rfp.Output), "clean water") {
		t.Fatalf("rfp state %+v", rfp)
	}

	if err := env.tracker.SetAttributes(ctx, "J1", map[string]string{jobModel.ConceptTextKey: "Solar pumps"}); err != nil {
		t.Fatal(err)
	}
	res = env.dispatcher.Run(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageConcept})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("concept dispatch: %+v", res)
	}
	concept, _ := env.tracker.Status(ctx, "J1", jobModel.StageConcept)
	if concept.Status != jobModel.StatusCompleted || !strings.Contains(string(concept.Output), "concept fits") {
		t.Fatalf("concept state %+v", concept)
	}

	svc := job.InitJobService(job.ServiceConfig{
		JobChannel:        make(chan jobModel.JobDescriptor, 1),
		DispatcherChannel: make(chan bool, 1),
		Tracker:           env.tracker,
	})
	if err := svc.Reset(ctx, "J1", jobModel.StageConcept); err != nil {
		t.Fatal(err)
	}
	concept, _ = env.tracker.Status(ctx, "J1", jobModel.StageConcept)
	if concept.Status != jobModel.StatusNotStarted || concept.Output != nil || concept.Error != "" {
		t.Errorf("concept after reset %+v", concept)
	}
	after, _ := env.tracker.Status(ctx, "J1", jobModel.StageRFP)
	if after.Status != jobModel.StatusCompleted || string(after.Output) != string(rfp.Output) || !after.CompletedAt.Equal(rfp.CompletedAt) {
		t.Errorf("rfp changed by concept reset: %+v", after)
	}

	// re-dispatch through the queue
	desc := jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageConcept, Force: true}
	if _, err := svc.Dispatch(ctx, desc); err != nil {
		t.Fatal(err)
	}
	res = env.dispatcher.Handle(ctx, <-svc.JobChannel)
	if res.Body.Status != jobModel.StatusCompleted {
		t.Errorf("re-dispatched concept: %+v", res)
	}
	if env.model.Calls() != 3 {
		t.Errorf("expected 3 model calls, got %d", env.model.Calls())
	}
}

func TestDispatcher_PrerequisiteMissingWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	res := env.dispatcher.Run(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageConcept})
	if res.StatusCode != http.StatusInternalServerError || !strings.Contains(res.Body.Error, "prerequisite missing") {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := env.table.Get(ctx, store.Key{Partition: jobModel.RecordPartition("J1"), Sort: jobModel.RecordSort}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("job record was written: %v", err)
	}
	if env.model.Calls() != 0 {
		t.Errorf("model called for a rejected stage")
	}
}

func TestDispatcher_QueuedPrerequisiteFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	if err := env.tracker.Begin(ctx, "J1", jobModel.StageConcept, false); err != nil {
		t.Fatal(err)
	}

	res := env.dispatcher.Handle(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageConcept})
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected result %+v", res)
	}
	state, _ := env.tracker.Status(ctx, "J1", jobModel.StageConcept)
	if state.Status != jobModel.StatusFailed || !strings.Contains(state.Error, "prerequisite missing") {
		t.Errorf("state %+v", state)
	}
}

func TestDispatch_PrerequisiteMissingIsNotWritten(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	svc := job.InitJobService(job.ServiceConfig{
		JobChannel:        make(chan jobModel.JobDescriptor, 1),
		DispatcherChannel: make(chan bool, 1),
		Tracker:           env.tracker,
		Checker:           env.registry,
	})

	res, err := svc.Dispatch(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageConcept})
	if !errors.Is(err, jobModel.ErrPrerequisiteMissing) {
		t.Fatalf("expected ErrPrerequisiteMissing, got %v", err)
	}
	if res.StatusCode != http.StatusUnprocessableEntity || res.Body.Status != jobModel.StatusNotStarted || res.Body.Error == "" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(svc.JobChannel) != 0 {
		t.Error("stage with missing prerequisites was queued")
	}
	state, _ := env.tracker.Status(ctx, "J1", jobModel.StageConcept)
	if state.Status != jobModel.StatusNotStarted || !state.StartedAt.IsZero() {
		t.Errorf("record was written: %+v", state)
	}
	if jobs, _ := env.tracker.Jobs(ctx); len(jobs) != 0 {
		t.Errorf("job index was written: %v", jobs)
	}

	// once rfp is done the same dispatch goes through
	env.complete(t, "J1", jobModel.StageRFP, `{"narrative":"rfp"}`)
	env.upload(t, "J1", commonModels.KindConcept, "concept.txt", "solar pumps")
	res, err = svc.Dispatch(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageConcept})
	if err != nil || res.StatusCode != http.StatusOK || res.Body.Message != "analysis started" {
		t.Fatalf("dispatch after rfp: %+v %v", res, err)
	}
	if len(svc.JobChannel) != 1 {
		t.Error("stage was not queued")
	}
}

func TestDispatcher_SkipsStageResetWhileQueued(t *testing.T) {
	env := newEnv(t)
	res := env.dispatcher.Handle(context.Background(), jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageRFP})
	if res.StatusCode != http.StatusOK || res.Body.Status != jobModel.StatusNotStarted {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestDispatcher_AlreadyProcessing(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.upload(t, "J1", commonModels.KindRFP, "call.txt", "call")
	_ = env.tracker.Begin(ctx, "J1", jobModel.StageRFP, false)

	res := env.dispatcher.Run(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageRFP})
	if res.StatusCode != http.StatusOK || res.Body.Status != jobModel.StatusProcessing {
		t.Errorf("unexpected result %+v", res)
	}
	if env.model.Calls() != 0 {
		t.Errorf("model called for a stage already processing")
	}
}

func TestDispatcher_ConceptDocumentRetries(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.complete(t, "J2", jobModel.StageRFP, `{"narrative":"rfp","summary":"water"}`)
	env.complete(t, "J2", jobModel.StageConcept, `{"narrative":"concept"}`)

	env.model.OnInvoke = func(ctx context.Context, n int, req llm.Request) (string, error) {
		if n < 3 {
			return "", llm.InvocationError("mock", errors.New("deadline exceeded"))
		}
		if !strings.Contains(req.UserPrompt, "Theory of change") {
			t.Errorf("evaluation missing from prompt")
		}
		return `{"title":"Clean Water for Schools","narrative":"# Clean Water\n\nFull document."}`, nil
	}

	res := env.dispatcher.Run(ctx, jobModel.JobDescriptor{
		JobID:             "J2",
		AnalysisType:      jobModel.StageConceptDocument,
		ConceptEvaluation: map[string]any{"sections": []string{"Theory of change"}},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result %+v", res)
	}
	if env.model.Calls() != 3 {
		t.Errorf("expected 3 attempts, got %d", env.model.Calls())
	}
	if fmt.Sprint(env.sleeps) != fmt.Sprint([]time.Duration{30 * time.Second, 60 * time.Second}) {
		t.Errorf("sleeps %v", env.sleeps)
	}
	doc, _ := env.tracker.Status(ctx, "J2", jobModel.StageConceptDocument)
	if doc.Status != jobModel.StatusCompleted || !strings.Contains(string(doc.Output), "Clean Water for Schools") {
		t.Errorf("document state %+v", doc)
	}
}

func TestDispatcher_OtherStagesAreNotRetried(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.upload(t, "J1", commonModels.KindRFP, "call.txt", "call")
	env.model.OnInvoke = func(ctx context.Context, n int, req llm.Request) (string, error) {
		return "", llm.InvocationError("mock", errors.New("quota exceeded"))
	}

	res := env.dispatcher.Run(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageRFP})
	if res.StatusCode != http.StatusInternalServerError || !strings.Contains(res.Body.Error, "quota exceeded") {
		t.Fatalf("unexpected result %+v", res)
	}
	if env.model.Calls() != 1 {
		t.Errorf("expected a single attempt, got %d", env.model.Calls())
	}
	state, _ := env.tracker.Status(ctx, "J1", jobModel.StageRFP)
	if state.Status != jobModel.StatusFailed || !strings.Contains(state.Error, "quota exceeded") || state.FailedAt.IsZero() {
		t.Errorf("state %+v", state)
	}
}

func TestDispatcher_PanicBecomesFailure(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.upload(t, "J1", commonModels.KindRFP, "call.txt", "call")
	env.model.OnInvoke = func(ctx context.Context, n int, req llm.Request) (string, error) {
		panic("provider client is nil")
	}

	res := env.dispatcher.Run(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageRFP})
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected result %+v", res)
	}
	state, _ := env.tracker.Status(ctx, "J1", jobModel.StageRFP)
	if state.Status != jobModel.StatusFailed || !strings.Contains(state.Error, "panicked") {
		t.Errorf("state %+v", state)
	}
}

func TestDispatcher_StageTimeout(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.dispatcher.stageTimeout = 20 * time.Millisecond
	env.upload(t, "J1", commonModels.KindRFP, "call.txt", "call")
	env.model.OnInvoke = func(ctx context.Context, n int, req llm.Request) (string, error) {
		<-ctx.Done()
		return "", llm.InvocationError("mock", ctx.Err())
	}

	res := env.dispatcher.Run(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageRFP})
	if !strings.Contains(res.Body.Error, "stage timed out") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSweeper_FailsStaleStages(t *testing.T) {
	ctx := context.Background()
	table := store.InitInMemoryTable()
	tr := job.NewTracker(table).WithClock(func() time.Time { return t0 })
	_ = tr.Begin(ctx, "J1", jobModel.StageRFP, false)
	_ = tr.Begin(ctx, "J2", jobModel.StageConcept, false)
	_ = tr.Complete(ctx, "J2", jobModel.StageConcept, json.RawMessage(`{}`))

	sweeper := NewSweeper(tr, 15*time.Minute).WithClock(func() time.Time { return t0.Add(10 * time.Minute) })
	if n := sweeper.Sweep(ctx); n != 0 {
		t.Errorf("swept %d fresh stages", n)
	}

	sweeper.WithClock(func() time.Time { return t0.Add(20 * time.Minute) })
	if n := sweeper.Sweep(ctx); n != 1 {
		t.Errorf("expected 1 stale stage, got %d", n)
	}
	state, _ := tr.Status(ctx, "J1", jobModel.StageRFP)
	if state.Status != jobModel.StatusFailed || !strings.Contains(state.Error, "stage timed out") {
		t.Errorf("state %+v", state)
	}
	done, _ := tr.Status(ctx, "J2", jobModel.StageConcept)
	if done.Status != jobModel.StatusCompleted {
		t.Errorf("completed stage touched: %+v", done)
	}
	if n := sweeper.Sweep(ctx); n != 0 {
		t.Errorf("second sweep failed %d stages", n)
	}
}

// restartingTable runs onGet once, right after the first record read.
type restartingTable struct {
	store.Table
	once  sync.Once
	onGet func()
}

func (r *restartingTable) Get(ctx context.Context, key store.Key) (store.Item, error) {
	item, err := r.Table.Get(ctx, key)
	r.once.Do(r.onGet)
	return item, err
}

func TestSweeper_SkipsStageRestartedDuringSweep(t *testing.T) {
	ctx := context.Background()
	table := store.InitInMemoryTable()
	restartedAt := t0.Add(19 * time.Minute)
	if err := job.NewTracker(table).WithClock(func() time.Time { return t0 }).Begin(ctx, "J1", jobModel.StageRFP, false); err != nil {
		t.Fatal(err)
	}

	wrapped := &restartingTable{Table: table, onGet: func() {
		restart := job.NewTracker(table).WithClock(func() time.Time { return restartedAt })
		if err := restart.Begin(ctx, "J1", jobModel.StageRFP, true); err != nil {
			t.Errorf("restart: %v", err)
		}
	}}
	tr := job.NewTracker(wrapped)
	sweeper := NewSweeper(tr, 15*time.Minute).WithClock(func() time.Time { return t0.Add(20 * time.Minute) })
	if n := sweeper.Sweep(ctx); n != 0 {
		t.Errorf("swept %d stages, the stale run was replaced", n)
	}

	state, _ := tr.Status(ctx, "J1", jobModel.StageRFP)
	if state.Status != jobModel.StatusProcessing || !state.StartedAt.Equal(restartedAt) {
		t.Errorf("restarted stage touched: %+v", state)
	}
	err := tr.FailStale(ctx, "J1", jobModel.StageRFP, t0, errors.New("stale"))
	if !errors.Is(err, jobModel.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for an old run, got %v", err)
	}
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	sweeper := NewSweeper(job.NewTracker(store.InitInMemoryTable()), time.Minute)
	if err := sweeper.Start("every now and then"); err == nil {
		t.Error("expected schedule error")
	}
	sweeper.Stop()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWorkerPool_Flow(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.upload(t, "J1", commonModels.KindRFP, "call.txt", "call for proposals")
	jobSvc := job.InitJobService(job.ServiceConfig{
		JobChannel:        make(chan jobModel.JobDescriptor, 10),
		DispatcherChannel: make(chan bool, 10),
		Tracker:           env.tracker,
		Checker:           env.registry,
	})
	stopChan := make(chan bool)
	wg := &sync.WaitGroup{}

	atomic.StoreInt64(&currentWorkerCount, 0)
	InitServices(jobSvc, env.dispatcher)
	InitWorkerPool(stopChan, wg)

	t.Run("Dispatcher creates worker on signal", func(t *testing.T) {
		jobSvc.DispatcherChannel <- true
		if !waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&currentWorkerCount) >= 1 }) {
			t.Errorf("Expected at least 1 worker, got %d", atomic.LoadInt64(&currentWorkerCount))
		}
	})

	t.Run("Worker processes a stage", func(t *testing.T) {
		res, err := jobSvc.Dispatch(ctx, jobModel.JobDescriptor{JobID: "J1", AnalysisType: jobModel.StageRFP})
		if err != nil || res.Body.Message != "analysis started" {
			t.Fatalf("dispatch: %+v %v", res, err)
		}
		completed := waitFor(t, 2*time.Second, func() bool {
			state, _ := env.tracker.Status(ctx, "J1", jobModel.StageRFP)
			return state.Status == jobModel.StatusCompleted
		})
		if !completed {
			t.Errorf("stage was not completed by the pool")
		}
	})

	t.Run("Stop signal retires workers", func(t *testing.T) {
		close(stopChan)
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Workers did not stop within timeout")
		}
	})
}

func TestWorker_IdleTimeout(t *testing.T) {
	prevMin, prevIdle := atomic.LoadInt64(&minWorkerCount), idleWorkerTimeout
	t.Cleanup(func() {
		atomic.StoreInt64(&minWorkerCount, prevMin)
		idleWorkerTimeout = prevIdle
	})
	atomic.StoreInt64(&currentWorkerCount, 0)
	atomic.StoreInt64(&minWorkerCount, 0)
	idleWorkerTimeout = 50 * time.Millisecond

	logger = logger_i.NewLogger("TestWorkerPool")
	jobSvc := &job.Service{JobChannel: make(chan jobModel.JobDescriptor)}
	InitServices(jobSvc, newEnv(t).dispatcher)

	wg := &sync.WaitGroup{}
	workerWaitGroup = wg
	stopWorkerChannel = make(chan bool)

	createWorker()
	if !waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&currentWorkerCount) == 0 }) {
		t.Errorf("Worker should have timed out and retired, but count is %d", atomic.LoadInt64(&currentWorkerCount))
	}
}
