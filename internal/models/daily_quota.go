package models

import "github.com/estrella/internal/types"

// DailyQuota is the per-(user, day) accounting record
type DailyQuota struct {
	UserID        string    `json:"userId" db:"user_id"`
	Day           types.Day `json:"date" db:"date"`
	MessagesSent  int       `json:"messagesSent" db:"messages_sent"`
	BonusMessages int       `json:"bonusMessages" db:"bonus_messages"`
}

// QuotaStatus is the computed view of a user's allowance for one day
type QuotaStatus struct {
	UserID         string      `json:"userId"`
	Day            types.Day   `json:"date"`
	Level          types.Level `json:"level"`
	Sent           int         `json:"sent"`
	Bonus          int         `json:"bonus"`
	BaseAllowance  int         `json:"baseAllowance"`
	TotalAvailable int         `json:"totalAvailable"`
	Remaining      int         `json:"remaining"`
	CanSend        bool        `json:"canSend"`
}

// NewQuotaStatus derives the status from a stored record and a base allowance
func NewQuotaStatus(q DailyQuota, level types.Level, baseAllowance int) *QuotaStatus {
	total := baseAllowance + q.BonusMessages
	remaining := total - q.MessagesSent
	if remaining < 0 {
		remaining = 0
	}

	return &QuotaStatus{
		UserID:         q.UserID,
		Day:            q.Day,
		Level:          level,
		Sent:           q.MessagesSent,
		Bonus:          q.BonusMessages,
		BaseAllowance:  baseAllowance,
		TotalAvailable: total,
		Remaining:      remaining,
		CanSend:        remaining > 0,
	}
}
