package models

import (
	"time"

	"github.com/estrella/internal/types"
)

// ActivityKind classifies quota-affecting events
type ActivityKind string

const (
	ActivityMessageSent   ActivityKind = "message_sent"
	ActivitySendRejected  ActivityKind = "send_rejected"
	ActivityBeerSent      ActivityKind = "beer_sent"
	ActivityPromoRedeemed ActivityKind = "promo_redeemed"
	ActivityStarEarned    ActivityKind = "star_earned"
)

// ActivityEvent is an append-only record of something that changed a user's quota or level
type ActivityEvent struct {
	UserID     string       `json:"userId" ch:"user_id"`
	Day        types.Day    `json:"date" ch:"day"`
	Kind       ActivityKind `json:"kind" ch:"kind"`
	Amount     int          `json:"amount" ch:"amount"`
	RelatedID  string       `json:"relatedId,omitempty" ch:"related_id"`
	OccurredAt time.Time    `json:"occurredAt" ch:"occurred_at"`
}

// DailyActivity aggregates a user's events for one day
type DailyActivity struct {
	Day           types.Day `json:"date"`
	MessagesSent  int       `json:"messagesSent"`
	SendsRejected int       `json:"sendsRejected"`
	BeersSent     int       `json:"beersSent"`
	BonusGranted  int       `json:"bonusGranted"`
	StarsEarned   int       `json:"starsEarned"`
}
