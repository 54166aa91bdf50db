// Package circuitbreaker stops calling a backing store that keeps failing, so callers
// get a fast error instead of waiting on every request.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means a limited number of probes are let through
	StateHalfOpen State = "half_open"
)

var (
	// ErrCircuitOpen is returned while the circuit is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open probe slot is taken
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Counts tallies the calls made since the last state change
type Counts struct {
	Calls            int `json:"calls"`
	Failures         int `json:"failures"`
	Successes        int `json:"successes"`
	ConsecutiveFails int `json:"consecutiveFails"`
}

// FailureRate is Failures / Calls, zero when nothing was called
func (c Counts) FailureRate() float64 {
	if c.Calls == 0 {
		return 0
	}
	return float64(c.Failures) / float64(c.Calls)
}

// Config configures a circuit breaker
type Config struct {
	Name string
	// MinCalls is both the consecutive-failure trip count and the number of calls
	// needed before FailureRate is considered
	MinCalls    int
	FailureRate float64
	// Cooldown is how long the circuit stays open before probing
	Cooldown time.Duration
	// Probes is the number of successful half-open calls needed to close
	Probes int
	// IsFailure decides whether an error counts against the circuit.
	// Nil counts every non-nil error.
	IsFailure func(error) bool
	// OnStateChange is called with the lock held; it must not call back into the breaker
	OnStateChange func(name string, from, to State, counts Counts)
}

// DefaultConfig returns the settings used in front of the quota counter store
func DefaultConfig(name string) *Config {
	return &Config{
		Name:        name,
		MinCalls:    10,
		FailureRate: 0.5,
		Cooldown:    30 * time.Second,
		Probes:      3,
	}
}

// CircuitBreaker guards calls to a backing store
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(cfg *Config) *CircuitBreaker {
	c := *cfg
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
	if c.Probes <= 0 {
		c.Probes = 1
	}
	return &CircuitBreaker{cfg: c, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the circuit is open.
// A cancelled caller context is not held against the store.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()

	failed := err != nil && cb.cfg.IsFailure(err)
	if failed && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		failed = false
	}
	cb.record(failed)

	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	case StateHalfOpen:
		if cb.counts.Calls >= cb.cfg.Probes {
			return ErrTooManyRequests
		}
	}

	cb.counts.Calls++
	return nil
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !failed {
		cb.counts.Successes++
		cb.counts.ConsecutiveFails = 0
		if cb.state == StateHalfOpen && cb.counts.Successes >= cb.cfg.Probes {
			cb.transition(StateClosed)
		}
		return
	}

	cb.counts.Failures++
	cb.counts.ConsecutiveFails++

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen)
	case StateClosed:
		if cb.shouldTrip() {
			cb.transition(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) shouldTrip() bool {
	if cb.counts.ConsecutiveFails >= cb.cfg.MinCalls {
		return true
	}
	return cb.counts.Calls >= cb.cfg.MinCalls && cb.counts.FailureRate() >= cb.cfg.FailureRate
}

// transition moves to state and starts a fresh count. Caller holds mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	counts := cb.counts

	cb.state = to
	cb.counts = Counts{}
	if to == StateOpen {
		cb.openedAt = cb.now()
	}

	if cb.cfg.OnStateChange != nil && from != to {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to, counts)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetCounts returns the tallies since the last state change
func (cb *CircuitBreaker) GetCounts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}
