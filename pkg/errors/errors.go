package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies a class of credential failure
type ErrorCode string

const (
	// Configuration faults. Surfaced to the operator, never to the end user.
	ErrCodeUnknownAlgorithm ErrorCode = "UNKNOWN_ALGORITHM"
	ErrCodeMisconfigured    ErrorCode = "MISCONFIGURED"

	// Authentication outcomes
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	ErrCodeNoPasswordSet      ErrorCode = "NO_PASSWORD_SET"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenNotFound      ErrorCode = "TOKEN_NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"

	// Password changes
	ErrCodePasswordComplexity ErrorCode = "PASSWORD_COMPLEXITY"
	ErrCodePasswordReused     ErrorCode = "PASSWORD_REUSED"

	// Generic
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// GenericLoginMessage is the only failure text a login caller ever sees,
// whatever the internal cause.
const GenericLoginMessage = "The provided details don't seem to be correct. Please try again."

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrapf wraps an existing error with code and formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns ErrCodeInternal if the error is not a structured Error.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetDetails extracts the details from an error
func GetDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodePasswordComplexity:
		return http.StatusBadRequest

	// A missing password or an unknown algorithm looks exactly like bad
	// credentials from the outside.
	case ErrCodeInvalidCredentials, ErrCodeNoPasswordSet, ErrCodeUnknownAlgorithm,
		ErrCodeTokenExpired, ErrCodeTokenNotFound, ErrCodeUnauthorized:
		return http.StatusUnauthorized

	case ErrCodeAccountLocked:
		return http.StatusLocked

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeConflict, ErrCodePasswordReused:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// InvalidCredentials returns the generic login failure
func InvalidCredentials() *Error {
	return New(ErrCodeInvalidCredentials, GenericLoginMessage)
}

// AccountLocked builds the lockout error. The message names the remaining
// minutes, rounded up so a caller never retries too early.
func AccountLocked(retryAfter time.Duration) *Error {
	minutes := int((retryAfter + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return Newf(ErrCodeAccountLocked,
		"Your account has been temporarily disabled because of too many failed attempts at logging in. Please try again in %d %s.",
		minutes, unit).WithDetail("retry_after", retryAfter.String())
}

// NotFound creates a "not found" error
func NotFound(resourceType, identifier string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resourceType, identifier)
}

// InvalidInput creates an "invalid input" error
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// InternalWrap wraps an internal error
func InternalWrap(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}
