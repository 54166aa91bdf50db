package models

import "time"

// PromoRedemption records that a user redeemed a promo code. (UserID, Code) is unique.
type PromoRedemption struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"userId" db:"user_id"`
	Code       string    `json:"promoCode" db:"promo_code"`
	Amount     int       `json:"amount" db:"amount"`
	RedeemedAt time.Time `json:"redeemedAt" db:"redeemed_at"`
}

// Beer records a beer invitation between two users
type Beer struct {
	ID          string    `json:"id" db:"id"`
	SenderID    string    `json:"senderId" db:"sender_id"`
	RecipientID string    `json:"recipientId" db:"recipient_id"`
	Read        bool      `json:"read" db:"read"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
