// Package types provides common type definitions for the Estrella messaging service.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Level represents the tier a user has reached by collecting stars
type Level string

const (
	// LevelBronze is the starting tier
	LevelBronze Level = "Bronze"
	// LevelSilver is reached at the configured silver star threshold
	LevelSilver Level = "Silver"
	// LevelGold is reached at the configured gold star threshold
	LevelGold Level = "Gold"
)

// Default star thresholds for tier promotion.
const (
	DefaultSilverStars = 11
	DefaultGoldStars   = 31
)

// AllLevels lists the tiers in ascending order
var AllLevels = []Level{LevelBronze, LevelSilver, LevelGold}

// ParseLevel parses a tier name. Historical rows carry the Spanish labels, which are
// accepted as aliases.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bronze", "bronce":
		return LevelBronze, nil
	case "silver", "plata":
		return LevelSilver, nil
	case "gold", "oro":
		return LevelGold, nil
	default:
		return "", fmt.Errorf("unknown level: %q", s)
	}
}

// Valid reports whether l is one of the known tiers
func (l Level) Valid() bool {
	switch l {
	case LevelBronze, LevelSilver, LevelGold:
		return true
	}
	return false
}

// LevelThresholds holds the star counts at which users are promoted
type LevelThresholds struct {
	SilverStars int
	GoldStars   int
}

// DefaultLevelThresholds returns the thresholds used by the mobile app (11 and 31 stars)
func DefaultLevelThresholds() LevelThresholds {
	return LevelThresholds{SilverStars: DefaultSilverStars, GoldStars: DefaultGoldStars}
}

// LevelFor derives the tier for a star count
func (t LevelThresholds) LevelFor(stars int) Level {
	switch {
	case stars >= t.GoldStars:
		return LevelGold
	case stars >= t.SilverStars:
		return LevelSilver
	default:
		return LevelBronze
	}
}

// MessageKind distinguishes user-written messages from system-generated ones
type MessageKind string

const (
	// MessageKindText is a plain chat message
	MessageKindText MessageKind = "text"
	// MessageKindBeerInvite is the system message created by a beer invitation
	MessageKindBeerInvite MessageKind = "beer_invite"
)

// Day identifies a calendar day (YYYY-MM-DD) in the ledger's canonical timezone
type Day string

// DayLayout is the layout used to format a Day
const DayLayout = "2006-01-02"

// DayOf returns the calendar day of t in loc
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return Day(t.In(loc).Format(DayLayout))
}

// ParseDay validates and returns a Day
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(DayLayout, s); err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day(s), nil
}

// String returns the YYYY-MM-DD form
func (d Day) String() string {
	return string(d)
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
