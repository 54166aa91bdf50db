// Package models provides data models for the Estrella messaging service.
package models

import (
	"time"

	"github.com/estrella/internal/types"
)

// User represents a profile in the system
type User struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Age          int         `json:"age" db:"age"`
	Gender       string      `json:"gender" db:"gender"`
	Orientation  string      `json:"orientation,omitempty" db:"orientation"`
	Email        string      `json:"email,omitempty" db:"email"`
	Bio          string      `json:"bio,omitempty" db:"bio"`
	PhotoURL     string      `json:"profilePhotoUrl,omitempty" db:"profile_photo_url"`
	VisibleOnMap bool        `json:"visibleOnMap" db:"visible_on_map"`
	Stars        int         `json:"stars" db:"stars"`
	Level        types.Level `json:"level" db:"level"`
	CreatedAt    time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time   `json:"updatedAt" db:"updated_at"`
}

// ProfileUpdate holds the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name         *string `json:"name,omitempty"`
	Bio          *string `json:"bio,omitempty"`
	PhotoURL     *string `json:"profilePhotoUrl,omitempty"`
	VisibleOnMap *bool   `json:"visibleOnMap,omitempty"`
}

// Empty reports whether the update changes nothing
func (u *ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Bio == nil && u.PhotoURL == nil && u.VisibleOnMap == nil
}

// MapFilter narrows the users shown on the map
type MapFilter struct {
	ExcludeID string
	MinAge    int
	MaxAge    int
	Gender    string
}
