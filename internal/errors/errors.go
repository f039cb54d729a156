// Package errors defines structured error types for the API.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jarq/jarq/internal/storage"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrValidationFailed is returned when input data fails validation
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrMissingField is returned when a required field is missing
	ErrMissingField ErrorCode = "MISSING_FIELD"
	// ErrNotFound is returned when a resource is not found
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrStorageError is returned when a filesystem or database operation fails
	ErrStorageError ErrorCode = "STORAGE_ERROR"
	// ErrAllocationFailed is returned when no identifier could be allocated
	ErrAllocationFailed ErrorCode = "ALLOCATION_FAILED"
	// ErrSecurityViolation is returned when a path would leave the storage root
	ErrSecurityViolation ErrorCode = "SECURITY_VIOLATION"
	// ErrInternal is returned when an unexpected server error occurs
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	// ErrUnauthorized is returned when authentication is missing or invalid
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrForbidden is returned when a user accesses another user's data
	ErrForbidden ErrorCode = "FORBIDDEN"
	// ErrTooManyRequests is returned when a client exceeds its rate limit
	ErrTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	// ErrPreconditionFailed is returned when If-Match does not match
	ErrPreconditionFailed ErrorCode = "PRECONDITION_FAILED"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Message() string
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Message returns the client facing message, without the wrapped error.
func (e *APIError) Message() string {
	return e.message
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrMissingField, fmt.Sprintf("Missing required field: %s", fieldName))
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized() *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrUnauthorized, "Unauthorized")
}

// Forbidden returns a 403 Forbidden error.
func Forbidden(message string) *APIError {
	return NewAPIError(http.StatusForbidden, ErrForbidden, message)
}

// TooManyRequests returns a 429 error.
func TooManyRequests() *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrTooManyRequests, "Too many requests")
}

// PreconditionFailed returns a 412 error.
func PreconditionFailed(message string) *APIError {
	return NewAPIError(http.StatusPreconditionFailed, ErrPreconditionFailed, message)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// FromStorage converts an error returned by the storage layer into an API
// error. Errors that already carry a status are returned as is; nil stays nil.
func FromStorage(err error) error {
	if err == nil {
		return nil
	}
	var ews ErrorWithStatus
	if errors.As(err, &ews) {
		return err
	}
	var se *storage.Error
	if !errors.As(err, &se) {
		return InternalWithError("Internal error", err)
	}
	switch se.Kind {
	case storage.KindInvalid:
		msg := "Invalid request"
		if se.Err != nil {
			msg = se.Err.Error()
		}
		return BadRequest(msg).Wrap(err)
	case storage.KindNotFound:
		return NewAPIError(http.StatusNotFound, ErrNotFound, "Not found").Wrap(err)
	case storage.KindSecurityViolation:
		return NewAPIError(http.StatusForbidden, ErrSecurityViolation, "Forbidden path").Wrap(err)
	case storage.KindAllocationFailure:
		return NewAPIError(http.StatusInternalServerError, ErrAllocationFailed, "Identifier allocation failed").Wrap(err)
	case storage.KindIOFailure, storage.KindDaoFailure:
		return NewAPIError(http.StatusInternalServerError, ErrStorageError, "Storage error").Wrap(err)
	default:
		return InternalWithError("Internal error", err)
	}
}
