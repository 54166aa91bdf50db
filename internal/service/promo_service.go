package service

import (
	"context"
	"strings"

	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/logging"
	"github.com/estrella/internal/models"
)

// PromoService redeems promo codes for bonus messages. Each user may redeem a code once.
type PromoService struct {
	promos   PromoRepository
	users    UserRepository
	ledger   *QuotaLedger
	codes    map[string]int
	activity ActivityRecorder
}

// NewPromoService creates a new promo service. codes maps each redeemable code to the
// bonus it grants.
func NewPromoService(promos PromoRepository, users UserRepository, ledger *QuotaLedger, codes map[string]int, activity ActivityRecorder) *PromoService {
	catalog := make(map[string]int, len(codes))
	for code, amount := range codes {
		catalog[normalizeCode(code)] = amount
	}

	return &PromoService{
		promos:   promos,
		users:    users,
		ledger:   ledger,
		codes:    catalog,
		activity: activity,
	}
}

// RedeemResult is the outcome of a promo redemption
type RedeemResult struct {
	Redemption *models.PromoRedemption `json:"redemption"`
	Quota      *models.QuotaStatus     `json:"quota"`
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RedeemPromoCode grants the code's bonus to userID for today.
// A second redemption of the same code by the same user fails with ALREADY_REDEEMED,
// including when both arrive concurrently. When the grant is refused before reaching
// the counter store the redemption record is removed so the user can try again. Any
// other grant failure keeps the record, since the bonus may already have been added.
func (s *PromoService) RedeemPromoCode(ctx context.Context, userID, code string) (*RedeemResult, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}

	code = normalizeCode(code)
	if code == "" {
		return nil, apperrors.NewInvalidArgumentError("code", "required")
	}
	amount, ok := s.codes[code]
	if !ok {
		return nil, apperrors.NewInvalidPromoCodeError(code)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	redemption := &models.PromoRedemption{
		UserID: user.ID,
		Code:   code,
		Amount: amount,
	}
	inserted, err := s.promos.Insert(ctx, redemption)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, apperrors.NewAlreadyRedeemedError(code)
	}

	day := s.ledger.Today()
	quota, err := s.ledger.grantBonus(ctx, user.ID, day, amount)
	if err != nil {
		logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
			"user": user.ID,
			"code": code,
		})
		if !notApplied(err) {
			logger.WithError(err).Error("Bonus grant outcome unknown, keeping promo redemption")
			return nil, err
		}
		if deleteErr := s.promos.Delete(ctx, user.ID, code); deleteErr != nil {
			logger.WithError(deleteErr).Error("Failed to remove promo redemption after bonus grant failure")
		}
		return nil, err
	}

	recordActivity(s.activity, models.ActivityEvent{
		UserID:     user.ID,
		Day:        day,
		Kind:       models.ActivityPromoRedeemed,
		Amount:     amount,
		RelatedID:  code,
		OccurredAt: redemption.RedeemedAt,
	})

	return &RedeemResult{
		Redemption: redemption,
		Quota:      s.ledger.statusOf(quota, user.Level),
	}, nil
}

// ListRedemptions returns the codes a user has redeemed, newest first
func (s *PromoService) ListRedemptions(ctx context.Context, userID string) ([]*models.PromoRedemption, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}
	redemptions, err := s.promos.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if redemptions == nil {
		redemptions = []*models.PromoRedemption{}
	}
	return redemptions, nil
}
