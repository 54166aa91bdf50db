package api

import (
	"net/http"
)

// handleRedeemPromoCode handles POST /api/promo-codes/redeem
func (s *Server) handleRedeemPromoCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondInvalidBody(w, err)
		return
	}

	result, err := s.promoService.RedeemPromoCode(r.Context(), userID, req.Code)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleListRedemptions handles GET /api/promo-codes - codes the caller has redeemed
func (s *Server) handleListRedemptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	redemptions, err := s.promoService.ListRedemptions(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"redemptions": redemptions,
		"count":       len(redemptions),
	})
}
