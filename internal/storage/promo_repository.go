package storage

import (
	"context"
	"time"

	"github.com/estrella/internal/models"
	"github.com/google/uuid"
)

// PromoRepository records promo code redemptions
type PromoRepository struct {
	db *PostgresDB
}

// NewPromoRepository creates a new promo repository
func NewPromoRepository(db *PostgresDB) *PromoRepository {
	return &PromoRepository{db: db}
}

// Insert records a redemption. It returns false without error when the user has
// already redeemed the code.
func (r *PromoRepository) Insert(ctx context.Context, redemption *models.PromoRedemption) (bool, error) {
	if redemption.ID == "" {
		redemption.ID = uuid.New().String()
	}
	if redemption.RedeemedAt.IsZero() {
		redemption.RedeemedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO promo_codes_used (id, user_id, promo_code, amount, redeemed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, promo_code) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		redemption.ID,
		redemption.UserID,
		redemption.Code,
		redemption.Amount,
		redemption.RedeemedAt,
	)
	if err != nil {
		return false, storeError("record promo redemption", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Delete removes a redemption record so the code can be redeemed again
func (r *PromoRepository) Delete(ctx context.Context, userID, code string) error {
	query := `DELETE FROM promo_codes_used WHERE user_id = $1 AND promo_code = $2`

	if _, err := r.db.Pool().Exec(ctx, query, userID, code); err != nil {
		return storeError("delete promo redemption", err)
	}
	return nil
}

// ListByUser returns a user's redemptions, newest first
func (r *PromoRepository) ListByUser(ctx context.Context, userID string) ([]*models.PromoRedemption, error) {
	query := `
		SELECT id, user_id, promo_code, amount, redeemed_at
		FROM promo_codes_used
		WHERE user_id = $1
		ORDER BY redeemed_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, storeError("list promo redemptions", err)
	}
	defer rows.Close()

	var redemptions []*models.PromoRedemption
	for rows.Next() {
		var p models.PromoRedemption
		if err := rows.Scan(&p.ID, &p.UserID, &p.Code, &p.Amount, &p.RedeemedAt); err != nil {
			return nil, storeError("scan promo redemption", err)
		}
		redemptions = append(redemptions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list promo redemptions", err)
	}

	return redemptions, nil
}
