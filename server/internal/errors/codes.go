package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific error type surfaced by the API.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the requested object does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConfigMissing indicates a collaborator has no credentials configured.
	ErrCodeConfigMissing ErrorCode = "CONFIG_MISSING"
	// ErrCodeUpstreamUnavailable indicates an upstream service failed after retries.
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	// ErrCodeRateLimited indicates a rate limit has been exceeded.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeMalformedResponse indicates an upstream returned data that could not be parsed.
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// AppError represents a structured error carrying a code for the API layer.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Convenience constructors for common error types.

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AppError {
	return &AppError{Code: ErrCodeInvalidArgument, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: msg}
}

// ConfigMissing creates a configuration error for the named collaborator.
func ConfigMissing(collaborator string) *AppError {
	return &AppError{
		Code:    ErrCodeConfigMissing,
		Message: fmt.Sprintf("%s is not configured", collaborator),
	}
}

// UpstreamUnavailable creates an upstream failure error.
func UpstreamUnavailable(upstream string, cause error) *AppError {
	return &AppError{Code: ErrCodeUpstreamUnavailable, Message: upstream + " unavailable", Cause: cause}
}

// RateLimited creates a rate limit exceeded error.
func RateLimited(msg string) *AppError {
	return &AppError{Code: ErrCodeRateLimited, Message: msg}
}

// MalformedResponse creates a malformed response error.
func MalformedResponse(upstream string, cause error) *AppError {
	return &AppError{Code: ErrCodeMalformedResponse, Message: "malformed response from " + upstream, Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(msg string) *AppError {
	return &AppError{Code: ErrCodeTimeout, Message: msg}
}

// Internal wraps an unexpected failure.
func Internal(msg string, cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error, or any error it wraps, carries the code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AppError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return defaultCode
}

// HTTPStatus maps an error code to the HTTP status the API responds with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeUpstreamUnavailable, ErrCodeConfigMissing:
		return http.StatusServiceUnavailable
	case ErrCodeMalformedResponse:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
