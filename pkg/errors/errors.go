// Package errors defines custom error types and error handling utilities for the renewguard service.
// This package provides structured error types that map to stable error codes and HTTP status codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error identifier
type ErrorCode string

const (
	ErrCodeInvalidRequest     ErrorCode = "invalid_request"
	ErrCodeServerError        ErrorCode = "server_error"
	ErrCodeUnknownLimitType   ErrorCode = "unknown_limit_type"
	ErrCodeStoreUnavailable   ErrorCode = "store_unavailable"
	ErrCodeCircuitOpen        ErrorCode = "circuit_open"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeBlocked            ErrorCode = "BLOCKED"
	ErrCodeSuspiciousActivity ErrorCode = "SUSPICIOUS_ACTIVITY_BLOCKED"
	ErrCodeValidation         ErrorCode = "validation_error"
	ErrCodeInvalidConfig      ErrorCode = "invalid_config"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// AppError represents a structured error with additional metadata
type AppError interface {
	error

	// Code returns the stable error code
	Code() ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) AppError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) AppError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

// baseError is the internal implementation of AppError
type baseError struct {
	code        ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() ErrorCode     { return e.code }
func (e *baseError) HTTPStatus() int     { return e.httpStatus }
func (e *baseError) Description() string { return e.description }
func (e *baseError) Unwrap() error       { return e.cause }

// Is matches any AppError carrying the same code, so errors.Is works against the
// sentinel values below.
func (e *baseError) Is(target error) bool {
	t, ok := target.(AppError)
	if !ok {
		return false
	}
	return t.Code() == e.code
}

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) AppError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all metadata
func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new AppError with the specified parameters
func NewError(code ErrorCode, httpStatus int, description string, message string) AppError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Sentinel Errors
// ================================================================================

// Sentinels are compared by code through errors.Is; never mutate them.
var (
	ErrStoreUnavailableSentinel = NewError(ErrCodeStoreUnavailable, http.StatusServiceUnavailable, "shared store unavailable", "")
	ErrCircuitOpenSentinel      = NewError(ErrCodeCircuitOpen, http.StatusServiceUnavailable, "circuit breaker open", "")
	ErrUnknownLimitTypeSentinel = NewError(ErrCodeUnknownLimitType, http.StatusInternalServerError, "unknown limit type", "")
)

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) AppError {
	return NewError(
		ErrCodeInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter or is otherwise malformed.",
		message,
	)
}

// ErrServerError creates a server_error error
func ErrServerError(message string) AppError {
	return NewError(
		ErrCodeServerError,
		http.StatusInternalServerError,
		"The server encountered an unexpected condition that prevented it from fulfilling the request.",
		message,
	)
}

// ErrInvalidConfig creates a configuration validation error
func ErrInvalidConfig(message string) AppError {
	return NewError(ErrCodeInvalidConfig, http.StatusInternalServerError, "Invalid configuration", message)
}

// ================================================================================
// Domain-Specific Error Constructors
// ================================================================================

// ErrUnknownLimitType reports a limit type with no base policy
func ErrUnknownLimitType(limitType string) AppError {
	return NewError(
		ErrCodeUnknownLimitType,
		http.StatusInternalServerError,
		"unknown limit type",
		fmt.Sprintf("no policy configured for limit type %q", limitType),
	).WithMetadata("limit_type", limitType)
}

// ErrStoreUnavailable wraps a transport or protocol failure of the shared store
func ErrStoreUnavailable(op string, cause error) AppError {
	return NewError(
		ErrCodeStoreUnavailable,
		http.StatusServiceUnavailable,
		"shared store unavailable",
		fmt.Sprintf("store operation %s failed", op),
	).WithCause(cause).WithMetadata("operation", op)
}

// ErrCircuitOpen reports a call rejected by an open circuit breaker
func ErrCircuitOpen(name string, cause error) AppError {
	return NewError(
		ErrCodeCircuitOpen,
		http.StatusServiceUnavailable,
		"circuit breaker open",
		fmt.Sprintf("circuit %s is open", name),
	).WithCause(cause).WithMetadata("circuit", name)
}

// ErrRateLimited creates a rate limit exceeded error
func ErrRateLimited(limitType string, limit int64) AppError {
	return NewError(
		ErrCodeRateLimited,
		http.StatusTooManyRequests,
		"Rate limit exceeded. Please try again later.",
		fmt.Sprintf("rate limit exceeded for %s: %d requests", limitType, limit),
	).WithMetadata("limit_type", limitType).
		WithMetadata("limit", limit)
}

// ErrBlocked creates an error for a key currently under a block penalty
func ErrBlocked(limitType string) AppError {
	return NewError(
		ErrCodeBlocked,
		http.StatusTooManyRequests,
		"Too many attempts. Access is temporarily blocked.",
		fmt.Sprintf("key is blocked for %s", limitType),
	).WithMetadata("limit_type", limitType)
}

// ErrSuspiciousActivity creates an error for a failure-pattern block
func ErrSuspiciousActivity(identifier string) AppError {
	return NewError(
		ErrCodeSuspiciousActivity,
		http.StatusForbidden,
		"Suspicious activity detected. Access is temporarily blocked.",
		"too many failed operations",
	).WithMetadata("identifier", identifier)
}

// ErrMissingIdentifier creates a validation error for a missing required identifier
func ErrMissingIdentifier(code string, paramName string) AppError {
	return NewError(
		ErrorCode(code),
		http.StatusBadRequest,
		fmt.Sprintf("Missing required parameter: %s", paramName),
		fmt.Sprintf("%s is required", paramName),
	).WithMetadata("parameter", paramName)
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// AsAppError attempts to extract an AppError from an error chain
func AsAppError(err error) (AppError, bool) {
	var appErr AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsStoreFailure reports whether err is an infrastructure failure that the
// limiter recovers from locally.
func IsStoreFailure(err error) bool {
	return stderrors.Is(err, ErrStoreUnavailableSentinel) || stderrors.Is(err, ErrCircuitOpenSentinel)
}

// IsUnknownLimitType reports whether err is an UnknownLimitType error
func IsUnknownLimitType(err error) bool {
	return stderrors.Is(err, ErrUnknownLimitTypeSentinel)
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts an AppError to an ErrorResponse
func ToErrorResponse(err AppError) *ErrorResponse {
	return &ErrorResponse{
		Error:            string(err.Code()),
		ErrorDescription: err.Description(),
		Metadata:         err.Metadata(),
	}
}

// ToGenericErrorResponse converts any error to an ErrorResponse
func ToGenericErrorResponse(err error) (int, *ErrorResponse) {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus(), ToErrorResponse(appErr)
	}

	return http.StatusInternalServerError, &ErrorResponse{
		Error:            string(ErrCodeServerError),
		ErrorDescription: "An unexpected error occurred",
	}
}

//Personal.AI order the ending
