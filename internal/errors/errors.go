package errors

import (
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Authentication errors (401xx)
	ErrInvalidCredentials ErrorCode = "40101"
	ErrTokenExpired       ErrorCode = "40102"

	// Authorization errors (403xx)
	ErrForbidden ErrorCode = "40301"

	// Resource errors (404xx)
	ErrUserNotFound    ErrorCode = "40401"
	ErrRequestNotFound ErrorCode = "40402"

	// Request errors (400xx)
	ErrInvalidRequest    ErrorCode = "40001"
	ErrValidationFailed  ErrorCode = "40002"
	ErrInvalidAmount     ErrorCode = "40003"
	ErrReasonRequired    ErrorCode = "40004"
	ErrQuotaNotExhausted ErrorCode = "40005"

	// Conflict errors (409xx)
	ErrDuplicatePending  ErrorCode = "40901"
	ErrRequestNotPending ErrorCode = "40902"

	// Limit errors (402xx/429xx)
	ErrInsufficientCredits ErrorCode = "40201"
	ErrQuotaExceeded       ErrorCode = "42901"
	ErrRateLimited         ErrorCode = "42902"

	// Server errors (500xx)
	ErrInternalServer   ErrorCode = "50001"
	ErrTransientFailure ErrorCode = "50301"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id"`
}

// Common errors
var (
	ErrInvalidCredentialsError = &APIError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid or missing credentials",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbiddenError = &APIError{
		Code:       ErrForbidden,
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrUserNotFoundError = &APIError{
		Code:       ErrUserNotFound,
		Message:    "User not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrRequestNotFoundError = &APIError{
		Code:       ErrRequestNotFound,
		Message:    "Quota request not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidAmountError = &APIError{
		Code:       ErrInvalidAmount,
		Message:    "Adjustment amount must be non-negative",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrReasonRequiredError = &APIError{
		Code:       ErrReasonRequired,
		Message:    "A reason explaining the request or decision is required",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrQuotaNotExhaustedError = &APIError{
		Code:       ErrQuotaNotExhausted,
		Message:    "Additional quota may only be requested once the current allotment is fully used",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrDuplicatePendingError = &APIError{
		Code:       ErrDuplicatePending,
		Message:    "A pending quota request already exists",
		HTTPStatus: http.StatusConflict,
	}

	ErrRequestNotPendingError = &APIError{
		Code:       ErrRequestNotPending,
		Message:    "Quota request has already been resolved",
		HTTPStatus: http.StatusConflict,
	}

	ErrInsufficientCreditsError = &APIError{
		Code:       ErrInsufficientCredits,
		Message:    "Chat credit limit reached",
		HTTPStatus: http.StatusPaymentRequired,
	}

	ErrQuotaExceededError = &APIError{
		Code:       ErrQuotaExceeded,
		Message:    "Custom project quota exhausted",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrRateLimitedError = &APIError{
		Code:       ErrRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrTransientFailureError = &APIError{
		Code:       ErrTransientFailure,
		Message:    "Temporary storage conflict, please retry",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}
