package storage

import (
	"context"
	"time"

	"github.com/estrella/internal/models"
	"github.com/google/uuid"
)

// BeerRepository records beer invitations
type BeerRepository struct {
	db *PostgresDB
}

// NewBeerRepository creates a new beer repository
func NewBeerRepository(db *PostgresDB) *BeerRepository {
	return &BeerRepository{db: db}
}

// Create records a beer invitation
func (r *BeerRepository) Create(ctx context.Context, beer *models.Beer) error {
	if beer.ID == "" {
		beer.ID = uuid.New().String()
	}
	if beer.CreatedAt.IsZero() {
		beer.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO beers_sent (id, sender_id, recipient_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.db.Pool().Exec(ctx, query, beer.ID, beer.SenderID, beer.RecipientID, beer.Read, beer.CreatedAt); err != nil {
		return storeError("record beer", err)
	}
	return nil
}

// Delete removes a beer record
func (r *BeerRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM beers_sent WHERE id = $1`, id); err != nil {
		return storeError("delete beer", err)
	}
	return nil
}

// ListReceived returns the beers a user has been sent, newest first
func (r *BeerRepository) ListReceived(ctx context.Context, recipientID string) ([]*models.Beer, error) {
	query := `
		SELECT id, sender_id, recipient_id, read, created_at
		FROM beers_sent
		WHERE recipient_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, recipientID)
	if err != nil {
		return nil, storeError("list beers", err)
	}
	defer rows.Close()

	var beers []*models.Beer
	for rows.Next() {
		var b models.Beer
		if err := rows.Scan(&b.ID, &b.SenderID, &b.RecipientID, &b.Read, &b.CreatedAt); err != nil {
			return nil, storeError("scan beer", err)
		}
		beers = append(beers, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list beers", err)
	}

	return beers, nil
}
