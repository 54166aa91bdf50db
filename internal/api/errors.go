package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/logging"
	"github.com/estrella/internal/types"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 64 << 10

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondServiceError maps a service error to its status and code. System errors are
// logged with their cause and reported without it.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)

	if apperrors.IsSystemError(err) {
		logging.FromContext(r.Context()).WithError(err).WithField("code", catErr.Code).Error("Request failed")
	}

	body := catErr.ToServiceError()
	if catErr.Code == apperrors.CodeInternal {
		body.Message = "An internal error occurred"
	}

	respondJSON(w, catErr.StatusCode, ErrorResponse{Error: *body})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

// respondInvalidBody reports a body that could not be decoded
func respondInvalidBody(w http.ResponseWriter, err error) {
	respondError(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, "Invalid request body", map[string]interface{}{
		"reason": err.Error(),
	})
}
