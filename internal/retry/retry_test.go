package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func fastPolicy() *Policy {
	return &Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errConflict) },
	}
}

func TestPolicy_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errConflict
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_StopsOnNonRetryable(t *testing.T) {
	storeDown := errors.New("store unavailable")
	calls := 0

	err := fastPolicy().Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return storeDown
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, storeDown, err)
}

func TestPolicy_NilRetryableNeverRetries(t *testing.T) {
	p := fastPolicy()
	p.Retryable = nil
	calls := 0

	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errConflict
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, errConflict, err)
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	err := fastPolicy().Do(context.Background(), func(ctx context.Context, attempt int) error {
		return errConflict
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errConflict)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
}

func TestPolicy_ContextCancelled(t *testing.T) {
	p := fastPolicy()
	p.BaseDelay = time.Hour
	p.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		cancel()
		return errConflict
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, errConflict)
	assert.Contains(t, err.Error(), "interrupted after attempt 1")
}

func TestPolicy_Backoff(t *testing.T) {
	p := &Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 20*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 40*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 50*time.Millisecond, p.Backoff(4))
	assert.Equal(t, 50*time.Millisecond, p.Backoff(10))
}
