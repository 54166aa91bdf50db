package service

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
)

// maxActivityRange bounds an activity summary query
const maxActivityRange = 92 * 24 * time.Hour

var errActivityLogDisabled = errors.New("activity log is not configured")

// UserService handles profiles, stars and per-user quota views
type UserService struct {
	users       UserRepository
	ledger      *QuotaLedger
	thresholds  types.LevelThresholds
	activity    ActivityRecorder
	activityLog ActivityReader
}

// NewUserService creates a new user service. activity and activityLog may be nil.
func NewUserService(users UserRepository, ledger *QuotaLedger, thresholds types.LevelThresholds, activity ActivityRecorder, activityLog ActivityReader) *UserService {
	return &UserService{
		users:       users,
		ledger:      ledger,
		thresholds:  thresholds,
		activity:    activity,
		activityLog: activityLog,
	}
}

// CreateUserInput represents input for creating a profile
type CreateUserInput struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Age          int    `json:"age"`
	Gender       string `json:"gender"`
	Orientation  string `json:"orientation,omitempty"`
	Email        string `json:"email,omitempty"`
	Bio          string `json:"bio,omitempty"`
	PhotoURL     string `json:"profilePhotoUrl,omitempty"`
	VisibleOnMap *bool  `json:"visibleOnMap,omitempty"`
}

// CreateUser creates a Bronze profile with no stars. ID is the identifier supplied by
// the identity provider; a new one is generated when it is empty.
func (s *UserService) CreateUser(ctx context.Context, input *CreateUserInput) (*models.User, error) {
	if input.ID != "" {
		if err := validateID("id", input.ID); err != nil {
			return nil, err
		}
	}
	if err := validateName(input.Name); err != nil {
		return nil, err
	}
	if err := validateAge(input.Age); err != nil {
		return nil, err
	}
	gender := strings.TrimSpace(input.Gender)
	if gender == "" {
		return nil, apperrors.NewInvalidArgumentError("gender", "required")
	}
	if len([]rune(input.Bio)) > maxBioLength {
		return nil, apperrors.NewInvalidArgumentError("bio", "too long")
	}

	visible := true
	if input.VisibleOnMap != nil {
		visible = *input.VisibleOnMap
	}

	user := &models.User{
		ID:           input.ID,
		Name:         strings.TrimSpace(input.Name),
		Age:          input.Age,
		Gender:       gender,
		Orientation:  strings.TrimSpace(input.Orientation),
		Email:        strings.TrimSpace(input.Email),
		Bio:          input.Bio,
		PhotoURL:     input.PhotoURL,
		VisibleOnMap: visible,
		Stars:        0,
		Level:        types.LevelBronze,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a profile
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// UpdateProfile applies the non-nil fields of update
func (s *UserService) UpdateProfile(ctx context.Context, userID string, update *models.ProfileUpdate) (*models.User, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}
	if update == nil || update.Empty() {
		return nil, apperrors.NewInvalidArgumentError("body", "no profile fields to update")
	}
	if update.Name != nil {
		if err := validateName(*update.Name); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(*update.Name)
		update.Name = &name
	}
	if update.Bio != nil && len([]rune(*update.Bio)) > maxBioLength {
		return nil, apperrors.NewInvalidArgumentError("bio", "too long")
	}

	return s.users.UpdateProfile(ctx, userID, update)
}

// AddStar credits one star (a scanned bottle cap) and promotes the user when a
// threshold is crossed
func (s *UserService) AddStar(ctx context.Context, userID string) (*models.User, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}

	user, err := s.users.AddStar(ctx, userID, s.thresholds)
	if err != nil {
		return nil, err
	}

	recordActivity(s.activity, models.ActivityEvent{
		UserID:     user.ID,
		Day:        s.ledger.Today(),
		Kind:       models.ActivityStarEarned,
		Amount:     1,
		OccurredAt: user.UpdatedAt,
	})

	return user, nil
}

// ListVisible returns the users shown on the map, most stars first
func (s *UserService) ListVisible(ctx context.Context, filter models.MapFilter) ([]*models.User, error) {
	if filter.ExcludeID != "" {
		if err := validateID("exclude", filter.ExcludeID); err != nil {
			return nil, err
		}
	}
	if filter.MinAge != 0 && filter.MaxAge != 0 && filter.MinAge > filter.MaxAge {
		return nil, apperrors.NewInvalidArgumentError("minAge", "must not exceed maxAge")
	}

	users, err := s.users.ListVisible(ctx, filter)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// QuotaStatus returns the user's allowance for today
func (s *UserService) QuotaStatus(ctx context.Context, userID string) (*models.QuotaStatus, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.GetStatus(ctx, user.ID, user.Level, s.ledger.Today())
}

// Activity returns the user's daily activity between from and to, inclusive
func (s *UserService) Activity(ctx context.Context, userID string, from, to types.Day) ([]models.DailyActivity, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}
	if s.activityLog == nil {
		return nil, apperrors.NewStoreUnavailableError("read activity", errActivityLogDisabled)
	}

	fromTime, err := time.Parse(types.DayLayout, from.String())
	if err != nil {
		return nil, apperrors.NewInvalidArgumentError("from", "must be YYYY-MM-DD")
	}
	toTime, err := time.Parse(types.DayLayout, to.String())
	if err != nil {
		return nil, apperrors.NewInvalidArgumentError("to", "must be YYYY-MM-DD")
	}
	if toTime.Before(fromTime) {
		return nil, apperrors.NewInvalidArgumentError("to", "must not be before from")
	}
	if toTime.Sub(fromTime) > maxActivityRange {
		return nil, apperrors.NewInvalidArgumentError("to", "range is limited to 92 days")
	}

	summary, err := s.activityLog.DailySummary(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		summary = []models.DailyActivity{}
	}
	return summary, nil
}
