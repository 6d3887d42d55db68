package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType classifies a failure so callers can pick a retry policy
// without parsing message text.
type ErrorType string

const (
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeParsing      ErrorType = "parsing"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeServerError  ErrorType = "server_error"
	ErrorTypeSizeMismatch ErrorType = "size_mismatch"
	ErrorTypeLocalIO      ErrorType = "local_io"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Error represents an API or transfer error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// New creates a typed error without an HTTP status code
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

// NewWithCode creates a typed error carrying the HTTP status code
func NewWithCode(errorType ErrorType, code int, message string) *Error {
	return &Error{Type: errorType, Message: message, Code: code}
}

// IsRetryable reports whether another attempt could succeed for this
// error type.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeSizeMismatch, ErrorTypeLocalIO:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode reports whether a response status is worth
// retrying. Zero means the request never got a response at all.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0:
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// TypeFromStatusCode maps an HTTP status code to an error type
func TypeFromStatusCode(statusCode int) ErrorType {
	switch {
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode >= 500:
		return ErrorTypeServerError
	case statusCode >= 400:
		return ErrorTypeParsing
	default:
		return ErrorTypeUnknown
	}
}

// Classify determines the error type of an arbitrary error.
// Typed errors report their own type; timeouts and connection
// failures from the net stack classify as network errors.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}

// IsRetryableError reports whether an arbitrary error should be retried
func IsRetryableError(err error) bool {
	return IsRetryable(Classify(err))
}

// IsFatal reports whether an error must abort the whole run:
// authentication failures and local I/O problems cannot be
// isolated to a single file or post.
func IsFatal(err error) bool {
	switch Classify(err) {
	case ErrorTypeAuth, ErrorTypeLocalIO:
		return true
	default:
		return false
	}
}

// StatusCode extracts the HTTP status code from a typed error, or 0
func StatusCode(err error) int {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return 0
}
