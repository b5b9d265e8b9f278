package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/akolanti/ProposalAPI/internal/data/store"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

// Tracker owns the per-stage status fields of the job record. Every transition is
// a single partial update; Begin is conditional so two callers can never both move
// a stage into processing.
type Tracker struct {
	table  store.Table
	now    func() time.Time
	logger *logger_i.Logger
}

func NewTracker(table store.Table) *Tracker {
	return &Tracker{
		table:  table,
		now:    time.Now,
		logger: logger_i.NewLogger("StatusTracker"),
	}
}

func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func recordKey(jobID string) store.Key {
	return store.Key{Partition: jobModel.RecordPartition(jobID), Sort: jobModel.RecordSort}
}

func (t *Tracker) timestamp() string {
	return t.now().UTC().Format(time.RFC3339)
}

// Begin moves stage to processing. Without force it fails with
// ErrAlreadyProcessing when the stage is already processing.
func (t *Tracker) Begin(ctx context.Context, jobID string, stage jobModel.AnalysisType, force bool) error {
	expr := store.UpdateExpression{
		Set: map[string]string{
			stage.StatusField():    string(jobModel.StatusProcessing),
			stage.StartedAtField(): t.timestamp(),
		},
		Remove: []string{stage.ErrorField(), stage.FailedAtField(), stage.CompletedAtField(), stage.OutputField()},
	}
	if !force {
		expr.Condition = &store.Condition{Field: stage.StatusField(), Op: store.CondNotEquals, Value: string(jobModel.StatusProcessing)}
	}

	if err := t.table.Update(ctx, recordKey(jobID), expr); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return fmt.Errorf("%w: %s/%s", jobModel.ErrAlreadyProcessing, jobID, stage)
		}
		return err
	}

	indexItem := store.Item{"job_id": jobID, "kind": string(jobModel.KindOf(jobID))}
	if err := t.table.Put(ctx, store.Key{Partition: jobModel.JobIndexKey, Sort: jobID}, indexItem); err != nil {
		t.logger.ForContext(ctx).Warn("job index write failed", "jobId", jobID, "error", err)
	}
	t.logger.ForContext(ctx).Info("stage processing", "jobId", jobID, "stage", stage, "force", force)
	return nil
}

// Complete stores output and marks the stage completed. Calling it again
// overwrites the previous output.
func (t *Tracker) Complete(ctx context.Context, jobID string, stage jobModel.AnalysisType, output json.RawMessage) error {
	expr := store.UpdateExpression{
		Set: map[string]string{
			stage.StatusField():      string(jobModel.StatusCompleted),
			stage.CompletedAtField(): t.timestamp(),
			stage.OutputField():      string(output),
		},
		Remove: []string{stage.ErrorField(), stage.FailedAtField()},
		Condition: &store.Condition{
			Field:  stage.StatusField(),
			Op:     store.CondIn,
			Values: []string{string(jobModel.StatusProcessing), string(jobModel.StatusCompleted)},
		},
	}
	return t.transition(ctx, jobID, stage, expr, jobModel.StatusCompleted)
}

// Fail records err and drops any output. Only a processing (or already failed)
// stage can fail.
func (t *Tracker) Fail(ctx context.Context, jobID string, stage jobModel.AnalysisType, cause error) error {
	expr := failExpr(stage, cause, t.timestamp())
	expr.Condition = &store.Condition{
		Field:  stage.StatusField(),
		Op:     store.CondIn,
		Values: []string{string(jobModel.StatusProcessing), string(jobModel.StatusFailed)},
	}
	return t.transition(ctx, jobID, stage, expr, jobModel.StatusFailed)
}

// FailStale fails a processing stage only if it is still the run that started at
// startedAt. A stage restarted since then fails with ErrInvalidTransition.
func (t *Tracker) FailStale(ctx context.Context, jobID string, stage jobModel.AnalysisType, startedAt time.Time, cause error) error {
	expr := failExpr(stage, cause, t.timestamp())
	expr.Condition = &store.Condition{
		Field: stage.StatusField(),
		Op:    store.CondEquals,
		Value: string(jobModel.StatusProcessing),
		And: []store.Condition{{
			Field: stage.StartedAtField(),
			Op:    store.CondEquals,
			Value: startedAt.UTC().Format(time.RFC3339),
		}},
	}
	return t.transition(ctx, jobID, stage, expr, jobModel.StatusFailed)
}

func failExpr(stage jobModel.AnalysisType, cause error, at string) store.UpdateExpression {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	return store.UpdateExpression{
		Set: map[string]string{
			stage.StatusField():   string(jobModel.StatusFailed),
			stage.ErrorField():    message,
			stage.FailedAtField(): at,
		},
		Remove: []string{stage.OutputField(), stage.CompletedAtField()},
	}
}

// Reset clears every field of stage and sets it back to not_started. Other stages
// are untouched.
func (t *Tracker) Reset(ctx context.Context, jobID string, stage jobModel.AnalysisType) error {
	expr := store.UpdateExpression{
		Set: map[string]string{stage.StatusField(): string(jobModel.StatusNotStarted)},
		Remove: []string{
			stage.OutputField(),
			stage.ErrorField(),
			stage.StartedAtField(),
			stage.CompletedAtField(),
			stage.FailedAtField(),
		},
	}
	if err := t.table.Update(ctx, recordKey(jobID), expr); err != nil {
		return err
	}
	t.logger.ForContext(ctx).Info("stage reset", "jobId", jobID, "stage", stage)
	return nil
}

func (t *Tracker) transition(ctx context.Context, jobID string, stage jobModel.AnalysisType, expr store.UpdateExpression, to jobModel.StageStatus) error {
	err := t.table.Update(ctx, recordKey(jobID), expr)
	if errors.Is(err, store.ErrConditionFailed) {
		return fmt.Errorf("%w: %s/%s to %s", jobModel.ErrInvalidTransition, jobID, stage, to)
	}
	if err != nil {
		return err
	}
	t.logger.ForContext(ctx).Info("stage "+string(to), "jobId", jobID, "stage", stage)
	return nil
}

// Status reads one stage. A job that was never written reports not_started.
func (t *Tracker) Status(ctx context.Context, jobID string, stage jobModel.AnalysisType) (jobModel.StageState, error) {
	record, err := t.Snapshot(ctx, jobID)
	if err != nil {
		return jobModel.StageState{}, err
	}
	return record.Stage(stage), nil
}

func (t *Tracker) Output(ctx context.Context, jobID string, stage jobModel.AnalysisType) (json.RawMessage, error) {
	state, err := t.Status(ctx, jobID, stage)
	if err != nil {
		return nil, err
	}
	if state.Status != jobModel.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", jobModel.ErrPrerequisiteMissing, stage, state.Status)
	}
	return state.Output, nil
}

// Snapshot decodes the whole job record.
func (t *Tracker) Snapshot(ctx context.Context, jobID string) (jobModel.JobRecord, error) {
	record := jobModel.JobRecord{
		JobID:      jobID,
		Stages:     map[jobModel.AnalysisType]jobModel.StageState{},
		Attributes: map[string]string{},
	}
	item, err := t.table.Get(ctx, recordKey(jobID))
	if errors.Is(err, store.ErrNotFound) {
		return record, nil
	}
	if err != nil {
		return record, err
	}

	stageFields := map[string]bool{}
	for _, stage := range jobModel.AllStages {
		for _, f := range []string{stage.StatusField(), stage.StartedAtField(), stage.CompletedAtField(),
			stage.FailedAtField(), stage.ErrorField(), stage.OutputField()} {
			stageFields[f] = true
		}
		if _, ok := item[stage.StatusField()]; ok {
			record.Stages[stage] = stageFromItem(stage, item)
		}
	}
	for k, v := range item {
		if !stageFields[k] {
			record.Attributes[k] = v
		}
	}
	return record, nil
}

func stageFromItem(stage jobModel.AnalysisType, item store.Item) jobModel.StageState {
	state := jobModel.StageState{
		Stage:  stage,
		Status: jobModel.StageStatus(item[stage.StatusField()]),
		Error:  item[stage.ErrorField()],
	}
	state.StartedAt = parseTime(item[stage.StartedAtField()])
	state.CompletedAt = parseTime(item[stage.CompletedAtField()])
	state.FailedAt = parseTime(item[stage.FailedAtField()])
	if out := item[stage.OutputField()]; out != "" {
		if json.Valid([]byte(out)) {
			state.Output = json.RawMessage(out)
		} else {
			quoted, _ := json.Marshal(out)
			state.Output = quoted
		}
	}
	return state
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetAttributes writes non-stage fields such as the initial concept text.
func (t *Tracker) SetAttributes(ctx context.Context, jobID string, attrs map[string]string) error {
	for k := range attrs {
		if strings.HasPrefix(k, "analysis_status_") {
			return fmt.Errorf("attribute %q is reserved", k)
		}
	}
	return t.table.Update(ctx, recordKey(jobID), store.UpdateExpression{Set: attrs})
}

// Jobs lists every job that ever had a stage started.
func (t *Tracker) Jobs(ctx context.Context) ([]string, error) {
	records, err := t.table.QueryPartition(ctx, jobModel.JobIndexKey)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.Key.Sort)
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete removes the job record and its index entry.
func (t *Tracker) Delete(ctx context.Context, jobID string) error {
	if err := t.table.Delete(ctx, recordKey(jobID)); err != nil {
		return err
	}
	return t.table.Delete(ctx, store.Key{Partition: jobModel.JobIndexKey, Sort: jobID})
}
