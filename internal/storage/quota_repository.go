package storage

import (
	"context"
	"errors"

	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
	"github.com/jackc/pgx/v5"
)

// QuotaRepository keeps the per-(user, day) message counters in Postgres
type QuotaRepository struct {
	db *PostgresDB
}

// NewQuotaRepository creates a new quota repository
func NewQuotaRepository(db *PostgresDB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// Get returns the counters for (userID, day). A missing row reads as zero and is not created.
func (r *QuotaRepository) Get(ctx context.Context, userID string, day types.Day) (models.DailyQuota, error) {
	quota := models.DailyQuota{UserID: userID, Day: day}

	query := `
		SELECT messages_sent, bonus_messages
		FROM daily_message_limits
		WHERE user_id = $1 AND date = $2::date
	`

	err := r.db.Pool().QueryRow(ctx, query, userID, day.String()).Scan(&quota.MessagesSent, &quota.BonusMessages)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return quota, storeError("get daily quota", err)
	}

	return quota, nil
}

// IncrementSent adds one to messages_sent only while messages_sent < baseAllowance + bonus_messages.
// The check and the increment happen in a single UPDATE, so concurrent senders cannot both
// take the last slot. ok is false when the limit was already reached; the returned counters
// are then the current ones.
func (r *QuotaRepository) IncrementSent(ctx context.Context, userID string, day types.Day, baseAllowance int) (models.DailyQuota, bool, error) {
	quota := models.DailyQuota{UserID: userID, Day: day}

	ensure := `
		INSERT INTO daily_message_limits (user_id, date)
		VALUES ($1, $2::date)
		ON CONFLICT (user_id, date) DO NOTHING
	`
	if _, err := r.db.Pool().Exec(ctx, ensure, userID, day.String()); err != nil {
		return quota, false, storeError("record send", err)
	}

	update := `
		UPDATE daily_message_limits
		SET messages_sent = messages_sent + 1, updated_at = NOW()
		WHERE user_id = $1 AND date = $2::date
		  AND messages_sent < $3 + bonus_messages
		RETURNING messages_sent, bonus_messages
	`
	err := r.db.Pool().QueryRow(ctx, update, userID, day.String(), baseAllowance).
		Scan(&quota.MessagesSent, &quota.BonusMessages)
	if err == nil {
		return quota, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return quota, false, storeError("record send", err)
	}

	current, err := r.Get(ctx, userID, day)
	if err != nil {
		return quota, false, err
	}
	return current, false, nil
}

// DecrementSent gives back one send slot, never going below zero
func (r *QuotaRepository) DecrementSent(ctx context.Context, userID string, day types.Day) error {
	query := `
		UPDATE daily_message_limits
		SET messages_sent = messages_sent - 1, updated_at = NOW()
		WHERE user_id = $1 AND date = $2::date AND messages_sent > 0
	`

	if _, err := r.db.Pool().Exec(ctx, query, userID, day.String()); err != nil {
		return storeError("release send", err)
	}
	return nil
}

// AddBonus adds amount to bonus_messages, creating the row if absent. Concurrent grants
// merge into the same row.
func (r *QuotaRepository) AddBonus(ctx context.Context, userID string, day types.Day, amount int) (models.DailyQuota, error) {
	quota := models.DailyQuota{UserID: userID, Day: day}

	query := `
		INSERT INTO daily_message_limits (user_id, date, bonus_messages)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (user_id, date) DO UPDATE
		SET bonus_messages = daily_message_limits.bonus_messages + EXCLUDED.bonus_messages,
			updated_at = NOW()
		RETURNING messages_sent, bonus_messages
	`

	err := r.db.Pool().QueryRow(ctx, query, userID, day.String(), amount).
		Scan(&quota.MessagesSent, &quota.BonusMessages)
	if err != nil {
		return quota, storeError("grant bonus", err)
	}

	return quota, nil
}
