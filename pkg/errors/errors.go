// Package errors provides custom error types for the application.
// It defines domain-specific errors with error codes for better error handling and API responses.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents application error codes
type ErrorCode string

// Error codes for different error categories
const (
	// General errors (1xxx)
	ErrCodeInternal     ErrorCode = "E1000"
	ErrCodeValidation   ErrorCode = "E1001"
	ErrCodeNotFound     ErrorCode = "E1002"
	ErrCodeConflict     ErrorCode = "E1003"
	ErrCodeForbidden    ErrorCode = "E1004"
	ErrCodeUnauthorized ErrorCode = "E1005"

	// Host transport errors (2xxx)
	ErrCodeHostTransport ErrorCode = "E2001"
	ErrCodeHostAuth      ErrorCode = "E2002"
	ErrCodeHostNotFound  ErrorCode = "E2003"
	ErrCodeHostRateLimit ErrorCode = "E2004"
	ErrCodeHostTimeout   ErrorCode = "E2005"

	// AI adapter errors (3xxx)
	ErrCodeAITimeout   ErrorCode = "E3001"
	ErrCodeAIAuth      ErrorCode = "E3002"
	ErrCodeAIRateLimit ErrorCode = "E3003"
	ErrCodeAIParse     ErrorCode = "E3004"
	ErrCodeAINetwork   ErrorCode = "E3005"

	// Review run errors (4xxx)
	ErrCodeRunNotFound     ErrorCode = "E4001"
	ErrCodeRunFailed       ErrorCode = "E4002"
	ErrCodeRunNotRetryable ErrorCode = "E4003"
	ErrCodeTenantMismatch  ErrorCode = "E4004"

	// Database errors (5xxx)
	ErrCodeDBConnection ErrorCode = "E5001"
	ErrCodeDBQuery      ErrorCode = "E5002"
	ErrCodeDBMigration  ErrorCode = "E5003"

	// Queue errors (6xxx)
	ErrCodeQueueEnqueue ErrorCode = "E6001"
	ErrCodeQueueLease   ErrorCode = "E6002"
	ErrCodeJobNotFound  ErrorCode = "E6003"

	// Configuration errors (7xxx)
	ErrCodeConfigNotFound ErrorCode = "E7001"
	ErrCodeConfigInvalid  ErrorCode = "E7002"
	ErrCodeConfigParse    ErrorCode = "E7003"
)

// Exit codes for application startup failures
const (
	// ExitCodeConfigValidation indicates configuration validation failure
	ExitCodeConfigValidation = 2
)

// AppError represents an application-level error with code and context
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	Details any       `json:"details,omitempty"`
	// StatusCode carries the upstream HTTP status for transport errors (0 when not applicable)
	StatusCode int `json:"statusCode,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for the error
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeHostNotFound, ErrCodeRunNotFound, ErrCodeJobNotFound:
		return http.StatusNotFound
	case ErrCodeValidation, ErrCodeRunNotRetryable:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeHostAuth, ErrCodeAIAuth:
		return http.StatusUnauthorized
	case ErrCodeForbidden, ErrCodeTenantMismatch:
		return http.StatusForbidden
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeHostRateLimit, ErrCodeAIRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeHostTimeout, ErrCodeAITimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithStatusCode attaches the upstream HTTP status to a transport error
func (e *AppError) WithStatusCode(status int) *AppError {
	e.StatusCode = status
	return e
}

// Common error constructors for convenience

// ErrInternal creates an internal server error
func ErrInternal(message string, err error) *AppError {
	return Wrap(ErrCodeInternal, message, err)
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// ErrUnauthorized creates an unauthorized error
func ErrUnauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

// ErrForbidden creates a forbidden error
func ErrForbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError attempts to convert an error to AppError
func AsAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}

// IsPermanentHostError reports whether err carries an upstream status that
// must not be retried (401/403/404).
func IsPermanentHostError(err error) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	switch appErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// transientMarkers are the substrings that classify a failure message as
// retryable. The match is deliberately fuzzy and conservative: when in
// doubt a failure is treated as transient and retried.
var transientMarkers = []string{
	"429",
	"500",
	"502",
	"503",
	"504",
	"5xx",
	"timeout",
	"timed out",
	"deadline exceeded",
	"network",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"too many requests",
}

// IsTransientMessage reports whether a stored error message looks retryable.
func IsTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
