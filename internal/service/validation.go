package service

import (
	"strings"

	apperrors "github.com/estrella/internal/errors"
	"github.com/google/uuid"
)

// Profile constraints
const (
	MinUserAge = 18
	MaxUserAge = 99

	maxNameLength = 80
	maxBioLength  = 500
)

// validateID rejects identifiers that are not UUIDs
func validateID(param, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.NewInvalidArgumentError(param, "required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.NewInvalidArgumentError(param, "must be a valid UUID")
	}
	return nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewInvalidArgumentError("name", "required")
	}
	if len([]rune(name)) > maxNameLength {
		return apperrors.NewInvalidArgumentError("name", "too long")
	}
	return nil
}

func validateAge(age int) error {
	if age < MinUserAge || age > MaxUserAge {
		return apperrors.NewInvalidArgumentError("age", "must be between 18 and 99")
	}
	return nil
}
