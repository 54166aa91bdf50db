package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("connection refused")

type transitionLog struct {
	from, to State
}

func newTestBreaker(isFailure func(error) bool, log *[]transitionLog) *CircuitBreaker {
	cfg := &Config{
		Name:        "test",
		MinCalls:    3,
		FailureRate: 0.5,
		Cooldown:    time.Minute,
		Probes:      2,
		IsFailure:   isFailure,
	}
	if log != nil {
		cfg.OnStateChange = func(name string, from, to State, counts Counts) {
			*log = append(*log, transitionLog{from, to})
		}
	}
	return NewCircuitBreaker(cfg)
}

func trip(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for i := 0; i < cb.cfg.MinCalls; i++ {
		_ = cb.Execute(context.Background(), func() error { return errStore })
	}
	require.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var log []transitionLog
	cb := newTestBreaker(nil, &log)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func() error { return errStore }), errStore)
	}
	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, []transitionLog{{StateClosed, StateOpen}}, log)

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_OpensOnFailureRate(t *testing.T) {
	cb := newTestBreaker(nil, nil)
	ctx := context.Background()

	// success, failure, success, failure: never three in a row, but half of four calls
	for i := 0; i < 4; i++ {
		fail := i%2 == 1
		_ = cb.Execute(ctx, func() error {
			if fail {
				return errStore
			}
			return nil
		})
	}
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	rejected := errors.New("quota exceeded")
	cb := newTestBreaker(func(err error) bool { return !errors.Is(err, rejected) }, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, func() error { return rejected })
	}
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetCounts().Failures)
	assert.Equal(t, 10, cb.GetCounts().Successes)
}

func TestCircuitBreaker_IgnoresCallerCancellation(t *testing.T) {
	cb := newTestBreaker(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func() error { return ctx.Err() })
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var log []transitionLog
	cb := newTestBreaker(nil, &log)
	ctx := context.Background()
	clock := time.Now()
	cb.now = func() time.Time { return clock }

	trip(t, cb)
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return nil }), ErrCircuitOpen)

	clock = clock.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, Counts{}, cb.GetCounts())

	assert.Equal(t, []transitionLog{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, log)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(nil, nil)
	ctx := context.Background()
	clock := time.Now()
	cb.now = func() time.Time { return clock }

	trip(t, cb)
	clock = clock.Add(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errStore }), errStore)
	assert.Equal(t, StateOpen, cb.GetState())

	// The cooldown restarts from the reopen
	clock = clock.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb := newTestBreaker(nil, nil)
	ctx := context.Background()
	clock := time.Now()
	cb.now = func() time.Time { return clock }

	trip(t, cb)
	clock = clock.Add(2 * time.Minute)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- cb.Execute(ctx, func() error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started

	assert.ErrorIs(t, cb.Execute(ctx, func() error { return nil }), ErrTooManyRequests)

	close(release)
	assert.NoError(t, <-done)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}
