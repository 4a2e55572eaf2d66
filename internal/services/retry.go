package services

import (
	"context"
	"fmt"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the default SleepFunc: a cooperative wait, never a busy loop.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retrier runs an operation up to Retries+1 times with a fixed Delay between
// attempts. Every failure consumes one retry regardless of its cause.
type Retrier struct {
	Retries int
	Delay   time.Duration
	Sleep   SleepFunc
	// OnRetry is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, err error)
}

// RetryError is returned once the retry budget is exhausted. It unwraps to the
// last underlying error.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds or the budget is spent. A cancelled context
// stops the loop during the wait and is returned as is.
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	retries := max(r.Retries, 0)

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt > retries {
			break
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, lastErr)
		}
		if err := sleep(ctx, r.Delay); err != nil {
			return err
		}
	}
	return &RetryError{Attempts: retries + 1, Err: lastErr}
}
