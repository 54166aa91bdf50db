package api

import (
	"net/http"
	"runtime/debug"
	"time"

	apperrors "github.com/estrella/internal/errors"
	"github.com/estrella/internal/logging"
	"github.com/google/uuid"
)

// Headers set by the identity proxy and by this service
const (
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"
)

// LoggingMiddleware tags each request with a request ID, stores a request-scoped
// logger in the context and logs the outcome.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		fields := map[string]interface{}{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		}
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			fields["user_id"] = userID
		}
		logger := logging.GetGlobalLogger().WithFields(fields)

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r.WithContext(logging.WithLogger(r.Context(), logger)))

		entry := logger.WithFields(map[string]interface{}{
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		})
		if wrapped.statusCode >= http.StatusInternalServerError {
			entry.Warn("Request completed with server error")
			return
		}
		entry.Info("Request completed")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// RecoveryMiddleware recovers from panics and returns 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.FromContext(r.Context()).WithFields(map[string]interface{}{
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("Recovered from panic")
				respondError(w, http.StatusInternalServerError, apperrors.CodeInternal, "An internal server error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware adds CORS headers to responses.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// callerID returns the authenticated user from the X-User-ID header, or writes a 401.
// The identity provider in front of this service is trusted to set the header.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		respondServiceError(w, r, apperrors.NewUnauthorizedError("User ID required"))
		return "", false
	}
	if _, err := uuid.Parse(userID); err != nil {
		respondServiceError(w, r, apperrors.NewUnauthorizedError("User ID must be a valid UUID"))
		return "", false
	}
	return userID, true
}

// requireSelf checks that the caller is acting on their own profile
func requireSelf(w http.ResponseWriter, r *http.Request, userID string) bool {
	caller, ok := callerID(w, r)
	if !ok {
		return false
	}
	if caller != userID {
		respondServiceError(w, r, apperrors.NewForbiddenError("You can only act on your own profile"))
		return false
	}
	return true
}
