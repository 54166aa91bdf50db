package api

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/models"
	"github.com/estrella/internal/service"
	"github.com/estrella/internal/types"
	"github.com/gorilla/mux"
)

// handleCreateUser handles POST /api/users - Create a profile.
// The authenticated identity becomes the profile ID unless the body names one.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserInput
	if err := parseJSONBody(r, &req); err != nil {
		respondInvalidBody(w, err)
		return
	}

	if req.ID == "" {
		req.ID = r.Header.Get(HeaderUserID)
	}

	user, err := s.userService.CreateUser(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

// handleGetUser handles GET /api/users/{id}
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.userService.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// handleListVisibleUsers handles GET /api/users - users shown on the map.
// Optional filters: minAge, maxAge, gender. The caller is left out of the list.
func (s *Server) handleListVisibleUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := models.MapFilter{
		ExcludeID: r.Header.Get(HeaderUserID),
		Gender:    strings.TrimSpace(query.Get("gender")),
	}

	var ok bool
	if filter.MinAge, ok = parseIntParam(w, query.Get("minAge"), "minAge"); !ok {
		return
	}
	if filter.MaxAge, ok = parseIntParam(w, query.Get("maxAge"), "maxAge"); !ok {
		return
	}

	users, err := s.userService.ListVisible(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// handleUpdateProfile handles PATCH /api/users/{id} (self only)
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if !requireSelf(w, r, userID) {
		return
	}

	var update models.ProfileUpdate
	if err := parseJSONBody(r, &update); err != nil {
		respondInvalidBody(w, err)
		return
	}

	user, err := s.userService.UpdateProfile(r.Context(), userID, &update)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// handleAddStar handles POST /api/users/{id}/stars - credit a scanned bottle cap (self only)
func (s *Server) handleAddStar(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if !requireSelf(w, r, userID) {
		return
	}

	user, err := s.userService.AddStar(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// handleGetQuota handles GET /api/users/{id}/quota (self only)
func (s *Server) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if !requireSelf(w, r, userID) {
		return
	}

	status, err := s.userService.QuotaStatus(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// handleGetActivity handles GET /api/users/{id}/activity?from=YYYY-MM-DD&to=YYYY-MM-DD (self only)
func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if !requireSelf(w, r, userID) {
		return
	}

	query := r.URL.Query()
	from, err := types.ParseDay(query.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, "from must be a date (YYYY-MM-DD)", nil)
		return
	}
	to, err := types.ParseDay(query.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, "to must be a date (YYYY-MM-DD)", nil)
		return
	}

	days, err := s.userService.Activity(r.Context(), userID, from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"userId": userID,
		"from":   from,
		"to":     to,
		"days":   days,
	})
}

// parseIntParam parses an optional non-negative integer query parameter
func parseIntParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		respondError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, name+" must be a non-negative integer", nil)
		return 0, false
	}
	return v, true
}
