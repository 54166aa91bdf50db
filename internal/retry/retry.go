// Package retry re-runs short operations that fail with a known transient error.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/estrella/internal/logging"
)

// Policy decides how often and how fast an operation is retried
type Policy struct {
	MaxAttempts int           // Including the first attempt
	BaseDelay   time.Duration // Delay after the first failure; doubled after each further one
	MaxDelay    time.Duration
	// Retryable decides whether an error warrants another attempt.
	// Nil means no error is retried.
	Retryable func(error) bool
}

// ConflictPolicy re-reads a row that a concurrent writer has just committed:
// 10ms, 20ms, 40ms, 80ms.
func ConflictPolicy(retryable func(error) bool) *Policy {
	return &Policy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
		Retryable:   retryable,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Backoff returns the wait after the given failed attempt (1-based)
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, fails with a non-retryable error, runs out of
// attempts, or ctx is done. A non-retryable error is returned unchanged; an
// interrupted wait wraps ctx.Err().
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Debug("Retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted after attempt %d: %w", attempt, ctx.Err())
		}
	}
	return &ExhaustedError{Attempts: p.MaxAttempts, Err: err}
}
