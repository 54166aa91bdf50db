package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
)

// ActivityRepository appends quota events to ClickHouse and aggregates them per day
type ActivityRepository struct {
	db *ClickHouseDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *ClickHouseDB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// RecordBatch appends events in one insert
func (r *ActivityRepository) RecordBatch(ctx context.Context, events []models.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO quota_activity (user_id, day, kind, amount, related_id, occurred_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		day, err := time.Parse(types.DayLayout, e.Day.String())
		if err != nil {
			return fmt.Errorf("invalid activity day %q: %w", e.Day, err)
		}
		if err := batch.Append(e.UserID, day, string(e.Kind), int32(e.Amount), e.RelatedID, e.OccurredAt); err != nil { // #nosec G115 - amounts are small positive counters
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// DailySummary aggregates a user's events per day within [from, to], oldest first
func (r *ActivityRepository) DailySummary(ctx context.Context, userID string, from, to types.Day) ([]models.DailyActivity, error) {
	fromDate, err := time.Parse(types.DayLayout, from.String())
	if err != nil {
		return nil, fmt.Errorf("invalid from day: %w", err)
	}
	toDate, err := time.Parse(types.DayLayout, to.String())
	if err != nil {
		return nil, fmt.Errorf("invalid to day: %w", err)
	}

	query := `
		SELECT
			day,
			countIf(kind = ?) AS sent,
			countIf(kind = ?) AS rejected,
			countIf(kind = ?) AS beers,
			sumIf(amount, kind IN (?, ?)) AS bonus,
			countIf(kind = ?) AS stars
		FROM quota_activity
		WHERE user_id = ? AND day >= ? AND day <= ?
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := r.db.Conn().Query(ctx, query,
		string(models.ActivityMessageSent),
		string(models.ActivitySendRejected),
		string(models.ActivityBeerSent),
		string(models.ActivityBeerSent), string(models.ActivityPromoRedeemed),
		string(models.ActivityStarEarned),
		userID, fromDate, toDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}
	defer rows.Close()

	var summaries []models.DailyActivity
	for rows.Next() {
		var (
			day                          time.Time
			sent, rejected, beers, stars uint64
			bonus                        int64
		)
		if err := rows.Scan(&day, &sent, &rejected, &beers, &bonus, &stars); err != nil {
			return nil, fmt.Errorf("failed to scan daily activity: %w", err)
		}
		summaries = append(summaries, models.DailyActivity{
			Day:           types.DayOf(day, time.UTC),
			MessagesSent:  int(sent),
			SendsRejected: int(rejected),
			BeersSent:     int(beers),
			BonusGranted:  int(bonus),
			StarsEarned:   int(stars),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily activity: %w", err)
	}

	return summaries, nil
}
