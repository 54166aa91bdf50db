package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, name, age, gender, orientation, email, bio, profile_photo_url,
		visible_on_map, stars, level, created_at, updated_at`

// UserRepository handles user data persistence
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new profile
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Level == "" {
		user.Level = types.LevelBronze
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, name, age, gender, orientation, email, bio, profile_photo_url,
			visible_on_map, stars, level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		user.ID,
		user.Name,
		user.Age,
		user.Gender,
		user.Orientation,
		user.Email,
		user.Bio,
		user.PhotoURL,
		user.VisibleOnMap,
		user.Stars,
		user.Level,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewInvalidArgumentError("id", "user already exists")
		}
		return storeError("create user", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", id)
		}
		return nil, storeError("get user", err)
	}

	return user, nil
}

// UpdateProfile applies the non-nil fields of update
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, update *models.ProfileUpdate) (*models.User, error) {
	var (
		sets []string
		args = []interface{}{id}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Bio != nil {
		add("bio", *update.Bio)
	}
	if update.PhotoURL != nil {
		add("profile_photo_url", *update.PhotoURL)
	}
	if update.VisibleOnMap != nil {
		add("visible_on_map", *update.VisibleOnMap)
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}
	sets = append(sets, "updated_at = NOW()")

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", id)
		}
		return nil, storeError("update user", err)
	}

	return user, nil
}

// AddStar increments the star count and recomputes the level in one statement
func (r *UserRepository) AddStar(ctx context.Context, id string, thresholds types.LevelThresholds) (*models.User, error) {
	query := `
		UPDATE users
		SET stars = stars + 1,
			level = CASE
				WHEN stars + 1 >= $2 THEN $4
				WHEN stars + 1 >= $3 THEN $5
				ELSE $6
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query,
		id,
		thresholds.GoldStars,
		thresholds.SilverStars,
		string(types.LevelGold),
		string(types.LevelSilver),
		string(types.LevelBronze),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", id)
		}
		return nil, storeError("add star", err)
	}

	return user, nil
}

// ListVisible returns users shown on the map, most stars first
func (r *UserRepository) ListVisible(ctx context.Context, filter models.MapFilter) ([]*models.User, error) {
	var (
		conds = []string{"visible_on_map"}
		args  []interface{}
	)
	add := func(cond string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.ExcludeID != "" {
		add("id <> $%d", filter.ExcludeID)
	}
	if filter.MinAge > 0 {
		add("age >= $%d", filter.MinAge)
	}
	if filter.MaxAge > 0 {
		add("age <= $%d", filter.MaxAge)
	}
	if filter.Gender != "" {
		add("gender = $%d", filter.Gender)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY stars DESC, created_at ASC`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("list visible users", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storeError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list visible users", err)
	}

	return users, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user  models.User
		level string
	)

	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Age,
		&user.Gender,
		&user.Orientation,
		&user.Email,
		&user.Bio,
		&user.PhotoURL,
		&user.VisibleOnMap,
		&user.Stars,
		&level,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Rows written by the old client carry the Spanish labels
	parsed, err := types.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user.ID, err)
	}
	user.Level = parsed

	return &user, nil
}
