package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/estrella/internal/circuitbreaker"
	"github.com/estrella/internal/config"
	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/logging"
	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
)

// QuotaLedger tracks, per user and calendar day, how many messages were sent and how
// many bonus messages were granted.
//
// Store failures always surface as STORE_UNAVAILABLE. They are never read as zero
// quota or as permission to send.
type QuotaLedger struct {
	store      QuotaStore
	allowances map[types.Level]int
	location   *time.Location
	clock      Clock
	breaker    *circuitbreaker.CircuitBreaker
}

// NewQuotaLedger creates a ledger over store using the allowances and timezone in cfg
func NewQuotaLedger(store QuotaStore, cfg *config.QuotaConfig) (*QuotaLedger, error) {
	if store == nil {
		return nil, errors.New("quota store is required")
	}

	allowances := make(map[types.Level]int, len(types.AllLevels))
	for _, level := range types.AllLevels {
		allowance, ok := cfg.Allowances[level]
		if !ok || allowance < 0 {
			return nil, fmt.Errorf("invalid allowance for level %s", level)
		}
		allowances[level] = allowance
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid quota timezone: %w", err)
	}

	breakerCfg := circuitbreaker.DefaultConfig("quota-store")
	breakerCfg.IsFailure = func(err error) bool {
		return apperrors.HasCode(err, apperrors.CodeStoreUnavailable)
	}
	breakerCfg.OnStateChange = logBreakerTransition

	return &QuotaLedger{
		store:      store,
		allowances: allowances,
		location:   loc,
		clock:      SystemClock(),
		breaker:    circuitbreaker.NewCircuitBreaker(breakerCfg),
	}, nil
}

// Today returns the current calendar day in the ledger's timezone
func (l *QuotaLedger) Today() types.Day {
	return types.DayOf(l.clock.Now(), l.location)
}

// BaseAllowance returns the daily allowance for level before bonuses
func (l *QuotaLedger) BaseAllowance(level types.Level) (int, error) {
	allowance, ok := l.allowances[level]
	if !ok {
		return 0, apperrors.NewInvalidArgumentError("level", fmt.Sprintf("unknown level %q", level))
	}
	return allowance, nil
}

// GetStatus computes the user's allowance for day. It never writes: a day without a
// record reads as nothing sent and no bonus.
func (l *QuotaLedger) GetStatus(ctx context.Context, userID string, level types.Level, day types.Day) (*models.QuotaStatus, error) {
	base, err := l.BaseAllowance(level)
	if err != nil {
		return nil, err
	}

	var quota models.DailyQuota
	err = l.guard(ctx, "get quota status", func() error {
		var err error
		quota, err = l.store.Get(ctx, userID, day)
		return err
	})
	if err != nil {
		return nil, err
	}

	return models.NewQuotaStatus(quota, level, base), nil
}

// RecordSend takes one message slot for (userID, day) and returns the new sent count.
// The limit is re-checked by the store in the same atomic step as the increment, so
// concurrent senders can never push the count past base + bonus. A full day yields
// QUOTA_EXCEEDED carrying the current counters.
func (l *QuotaLedger) RecordSend(ctx context.Context, userID string, level types.Level, day types.Day) (int, error) {
	base, err := l.BaseAllowance(level)
	if err != nil {
		return 0, err
	}

	var (
		quota models.DailyQuota
		ok    bool
	)
	err = l.guard(ctx, "record send", func() error {
		var err error
		quota, ok, err = l.store.IncrementSent(ctx, userID, day, base)
		return err
	})
	if err != nil {
		return 0, err
	}

	if !ok {
		status := models.NewQuotaStatus(quota, level, base)
		return status.Sent, quotaExceeded(status)
	}

	return quota.MessagesSent, nil
}

// ReleaseSend gives back a slot taken by RecordSend whose message was never stored
func (l *QuotaLedger) ReleaseSend(ctx context.Context, userID string, day types.Day) error {
	return l.guard(ctx, "release send", func() error {
		return l.store.DecrementSent(ctx, userID, day)
	})
}

// GrantBonus adds amount bonus messages to (userID, day) and returns the new bonus total.
// Concurrent grants add up.
func (l *QuotaLedger) GrantBonus(ctx context.Context, userID string, day types.Day, amount int) (int, error) {
	quota, err := l.grantBonus(ctx, userID, day, amount)
	if err != nil {
		return 0, err
	}
	return quota.BonusMessages, nil
}

func (l *QuotaLedger) grantBonus(ctx context.Context, userID string, day types.Day, amount int) (models.DailyQuota, error) {
	if amount <= 0 {
		return models.DailyQuota{}, apperrors.NewInvalidArgumentError("amount", "bonus must be positive")
	}

	var quota models.DailyQuota
	err := l.guard(ctx, "grant bonus", func() error {
		var err error
		quota, err = l.store.AddBonus(ctx, userID, day, amount)
		return err
	})
	if err != nil {
		return models.DailyQuota{}, err
	}

	return quota, nil
}

// statusOf builds a status from counters already returned by the store
func (l *QuotaLedger) statusOf(quota models.DailyQuota, level types.Level) *models.QuotaStatus {
	return models.NewQuotaStatus(quota, level, l.allowances[level])
}

// BreakerState reports the state of the circuit guarding the counter store
func (l *QuotaLedger) BreakerState() circuitbreaker.State {
	return l.breaker.GetState()
}

// guard runs fn through the circuit breaker. An open circuit fails fast with
// STORE_UNAVAILABLE.
func (l *QuotaLedger) guard(ctx context.Context, operation string, fn func() error) error {
	err := l.breaker.Execute(ctx, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		logging.FromContext(ctx).WithField("operation", operation).Warn("Quota store circuit is open, rejecting")
		return apperrors.NewStoreUnavailableError(operation, err)
	}
	return err
}

// notApplied reports whether a failed ledger write certainly left the counters
// untouched: the circuit refused the call or the arguments were rejected up front.
// Any other store error may have been raised after the write committed.
func notApplied(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return true
	}
	return apperrors.IsUserError(err)
}

func logBreakerTransition(name string, from, to circuitbreaker.State, counts circuitbreaker.Counts) {
	entry := logging.WithFields(map[string]interface{}{
		"circuitBreaker":   name,
		"from":             from,
		"to":               to,
		"failures":         counts.Failures,
		"calls":            counts.Calls,
		"consecutiveFails": counts.ConsecutiveFails,
	})
	if to == circuitbreaker.StateOpen {
		entry.Warn("Quota store circuit opened")
		return
	}
	entry.Info("Quota store circuit state changed")
}

func quotaExceeded(status *models.QuotaStatus) error {
	return apperrors.NewQuotaExceededError(
		status.Sent,
		status.Bonus,
		status.BaseAllowance,
		status.TotalAvailable,
		status.Remaining,
	)
}
