package worker

import (
	"context"
	"time"

	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
)

// Sleeper waits between retry attempts. Tests inject one that only records.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealSleeper waits on a timer and gives up when ctx is done.
var RealSleeper Sleeper = timerSleeper{}

// GenerateWithRetry calls fn up to maxRetries times, sleeping
// baseDelay * 2^(attempt-1) after each failed attempt except the last. The last
// error is returned. Errors that cannot succeed on a later attempt stop the loop.
func GenerateWithRetry[T any](ctx context.Context, maxRetries int, baseDelay time.Duration, sleeper Sleeper,
	fn func(ctx context.Context) (T, error), onRetry func(attempt int, delay time.Duration, err error)) (T, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if sleeper == nil {
		sleeper = RealSleeper
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == maxRetries || !jobModel.Retryable(err) {
			break
		}

		delay := baseDelay * time.Duration(1<<(attempt-1))
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if sleepErr := sleeper.Sleep(ctx, delay); sleepErr != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}
