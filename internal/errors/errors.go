// Package errors defines the service error type shared by handlers and
// middleware. A ServiceError carries a stable machine code, the HTTP status
// to respond with, and optional structured details.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeInvalidFormat     ErrorCode = "INVALID_FORMAT"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
	CodeUpstream          ErrorCode = "UPSTREAM_ERROR"
)

// ServiceError is the canonical error surfaced at the API boundary.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	cause      error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails returns the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetServiceError returns the ServiceError inside err, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// Validation reports a rejected request body or parameter.
func Validation(message string) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

// InvalidFormat reports a field that failed format validation.
func InvalidFormat(field, requirement string) *ServiceError {
	return (&ServiceError{
		Code:       CodeInvalidFormat,
		Message:    fmt.Sprintf("Invalid %s", field),
		HTTPStatus: http.StatusBadRequest,
	}).WithDetails("field", field).WithDetails("requirement", requirement)
}

// Unauthorized reports missing or unusable credentials.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Authentication required"
	}
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InvalidToken reports a token that failed validation.
func InvalidToken(cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeInvalidToken,
		Message:    "Invalid or expired token",
		HTTPStatus: http.StatusUnauthorized,
		cause:      cause,
	}
}

// Forbidden reports valid credentials without sufficient rights.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "Access denied"
	}
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// NotFound reports a missing resource.
func NotFound(resource string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// Conflict reports a request that cannot apply to the current resource state.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// RateLimitExceeded reports a rejected request over the configured limit.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return (&ServiceError{
		Code:       CodeRateLimitExceeded,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}).WithDetails("limit", limit).WithDetails("window", window)
}

// Internal reports an unexpected failure. The cause is kept for logs and
// never serialized to clients.
func Internal(message string, cause error) *ServiceError {
	if message == "" {
		message = "Internal server error"
	}
	return &ServiceError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		cause:      cause,
	}
}

// Upstream reports a failure of an external collaborator.
func Upstream(service string, cause error) *ServiceError {
	return (&ServiceError{
		Code:       CodeUpstream,
		Message:    fmt.Sprintf("%s unavailable", service),
		HTTPStatus: http.StatusBadGateway,
		cause:      cause,
	}).WithDetails("service", service)
}
