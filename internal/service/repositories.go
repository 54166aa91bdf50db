// Package service implements the conversation resolver, the daily quota ledger and the
// messaging, promo and user operations built on top of them.
package service

import (
	"context"
	"time"

	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
)

// Repository interfaces for dependency injection

// UserRepository interface for profile operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, update *models.ProfileUpdate) (*models.User, error)
	AddStar(ctx context.Context, id string, thresholds types.LevelThresholds) (*models.User, error)
	ListVisible(ctx context.Context, filter models.MapFilter) ([]*models.User, error)
}

// ConversationRepository interface for conversation operations.
// FindByPair returns nil, nil when the pair has no conversation yet, and Create
// reports a lost race on the member-pair index as CONVERSATION_CONFLICT.
type ConversationRepository interface {
	FindByPair(ctx context.Context, userA, userB string) (*models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	Touch(ctx context.Context, id string, at time.Time) error
	ListForUser(ctx context.Context, userID string) ([]*models.ConversationSummary, error)
}

// MessageRepository interface for message operations
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
	MarkRead(ctx context.Context, conversationID, recipientID string) (int, error)
}

// QuotaStore is the day-keyed counter store behind the ledger. Every mutation is a
// single atomic operation at the store.
type QuotaStore interface {
	// Get returns the counters for (userID, day); a missing record reads as zero.
	Get(ctx context.Context, userID string, day types.Day) (models.DailyQuota, error)
	// IncrementSent adds one to the sent count only while sent < baseAllowance + bonus.
	// ok is false when the limit was already reached.
	IncrementSent(ctx context.Context, userID string, day types.Day, baseAllowance int) (quota models.DailyQuota, ok bool, err error)
	// DecrementSent removes one from the sent count, never going below zero.
	DecrementSent(ctx context.Context, userID string, day types.Day) error
	// AddBonus adds amount to the bonus count.
	AddBonus(ctx context.Context, userID string, day types.Day, amount int) (models.DailyQuota, error)
}

// PromoRepository interface for promo redemption records
type PromoRepository interface {
	Insert(ctx context.Context, redemption *models.PromoRedemption) (bool, error)
	Delete(ctx context.Context, userID, code string) error
	ListByUser(ctx context.Context, userID string) ([]*models.PromoRedemption, error)
}

// BeerRepository interface for beer invitation records
type BeerRepository interface {
	Create(ctx context.Context, beer *models.Beer) error
	Delete(ctx context.Context, id string) error
	ListReceived(ctx context.Context, recipientID string) ([]*models.Beer, error)
}

// ActivityRecorder accepts activity events without blocking. It returns false when
// the event was dropped.
type ActivityRecorder interface {
	Record(event models.ActivityEvent) bool
}

// ActivityReader reads the aggregated activity log
type ActivityReader interface {
	DailySummary(ctx context.Context, userID string, from, to types.Day) ([]models.DailyActivity, error)
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock {
	return systemClock{}
}

func recordActivity(recorder ActivityRecorder, event models.ActivityEvent) {
	if recorder == nil {
		return
	}
	recorder.Record(event)
}
