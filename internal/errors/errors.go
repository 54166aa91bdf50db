package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/estrella/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryStore represents counter/relational store errors
	CategoryStore ErrorCategory = "store"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryQuota represents daily quota errors
	CategoryQuota ErrorCategory = "quota"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// Error codes
const (
	CodeSelfMessage          = "SELF_MESSAGE"
	CodeEmptyContent         = "EMPTY_CONTENT"
	CodeQuotaExceeded        = "QUOTA_EXCEEDED"
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeAlreadyRedeemed      = "ALREADY_REDEEMED"
	CodeInvalidPromoCode     = "INVALID_PROMO_CODE"
	CodeConversationConflict = "CONVERSATION_CONFLICT"
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
	CodeNotFound             = "NOT_FOUND"
	CodeForbidden            = "FORBIDDEN"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeInternal             = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// User Input Errors (4xx)

// NewSelfMessageError is returned when a user addresses themselves
func NewSelfMessageError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeSelfMessage,
		Message:    "cannot send a message to yourself",
	}
}

// NewEmptyContentError is returned for blank message content
func NewEmptyContentError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeEmptyContent,
		Message:    "message content cannot be empty",
	}
}

// NewInvalidArgumentError creates an invalid argument error
func NewInvalidArgumentError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidArgument,
		Message:    fmt.Sprintf("invalid argument '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewQuotaExceededError carries the concrete counters so the client can tell the
// user how many messages are left and what today's total is.
func NewQuotaExceededError(sent, bonus, baseAllowance, totalAvailable, remaining int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryQuota,
		StatusCode: http.StatusForbidden,
		Code:       CodeQuotaExceeded,
		Message:    fmt.Sprintf("daily message limit reached (%d of %d used)", sent, totalAvailable),
		Details: map[string]interface{}{
			"sent":           sent,
			"bonus":          bonus,
			"baseAllowance":  baseAllowance,
			"totalAvailable": totalAvailable,
			"remaining":      remaining,
		},
	}
}

// NewAlreadyRedeemedError is returned when a user reuses a promo code
func NewAlreadyRedeemedError(code string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeAlreadyRedeemed,
		Message:    "promo code already redeemed",
		Details: map[string]interface{}{
			"code": code,
		},
	}
}

// NewInvalidPromoCodeError is returned for codes missing from the catalog
func NewInvalidPromoCodeError(code string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidPromoCode,
		Message:    "promo code is not valid",
		Details: map[string]interface{}{
			"code": code,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       CodeForbidden,
		Message:    message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConversationConflictError signals a lost insert race on the member pair.
// The resolver recovers from it; it is never returned to callers.
func NewConversationConflictError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeConversationConflict,
		Message:    "conversation for this pair was created concurrently",
		Cause:      cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// NewStoreUnavailableError wraps a failure to reach a backing store
func NewStoreUnavailableError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStore,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeStoreUnavailable,
		Message:    fmt.Sprintf("store unavailable during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Categorize categorizes an existing error, looking through wrapping
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	status := http.StatusInternalServerError
	category := CategorySystem

	switch err.Code {
	case CodeSelfMessage, CodeEmptyContent, CodeInvalidArgument, CodeInvalidPromoCode:
		status, category = http.StatusBadRequest, CategoryUserInput
	case CodeNotFound:
		status, category = http.StatusNotFound, CategoryNotFound
	case CodeQuotaExceeded:
		status, category = http.StatusForbidden, CategoryQuota
	case CodeForbidden:
		status, category = http.StatusForbidden, CategoryAuthorization
	case CodeUnauthorized:
		status, category = http.StatusUnauthorized, CategoryAuthorization
	case CodeAlreadyRedeemed:
		status, category = http.StatusConflict, CategoryConflict
	case CodeStoreUnavailable:
		status, category = http.StatusServiceUnavailable, CategoryStore
	}

	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// HasCode reports whether err, or any error it wraps, is a CategorizedError with code
func HasCode(err error, code string) bool {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Code == code
	}
	return false
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
