package errors

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	withCode := NewWithCode(ErrorTypeServerError, 503, "service unavailable")
	if withCode.Error() != "server_error: service unavailable (status 503)" {
		t.Errorf("unexpected message: %s", withCode.Error())
	}

	withoutCode := New(ErrorTypeLocalIO, "disk full")
	if withoutCode.Error() != "local_io: disk full" {
		t.Errorf("unexpected message: %s", withoutCode.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		retryable bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeRateLimit, true},
		{ErrorTypeServerError, true},
		{ErrorTypeAuth, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeParsing, false},
		{ErrorTypeSizeMismatch, false},
		{ErrorTypeLocalIO, false},
		{ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			if got := IsRetryable(tt.errorType); got != tt.retryable {
				t.Errorf("IsRetryable(%s) = %v, want %v", tt.errorType, got, tt.retryable)
			}
		})
	}
}

func TestTypeFromStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeNotFound},
		{500, ErrorTypeServerError},
		{502, ErrorTypeServerError},
		{400, ErrorTypeParsing},
		{418, ErrorTypeParsing},
		{200, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			if got := TypeFromStatusCode(tt.code); got != tt.want {
				t.Errorf("TypeFromStatusCode(%d) = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"typed error", New(ErrorTypeAuth, "login required"), ErrorTypeAuth},
		{"wrapped typed error", fmt.Errorf("fetch page: %w", NewWithCode(ErrorTypeRateLimit, 429, "slow down")), ErrorTypeRateLimit},
		{"deadline exceeded", context.DeadlineExceeded, ErrorTypeNetwork},
		{"net timeout", timeoutError{}, ErrorTypeNetwork},
		{"net op error", &net.OpError{Op: "read", Err: os.ErrClosed}, ErrorTypeNetwork},
		{"plain error", fmt.Errorf("something odd"), ErrorTypeUnknown},
		{"nil", nil, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(New(ErrorTypeAuth, "session expired")) {
		t.Error("auth errors must abort the run")
	}
	if !IsFatal(New(ErrorTypeLocalIO, "permission denied")) {
		t.Error("local I/O errors must abort the run")
	}
	if IsFatal(New(ErrorTypeSizeMismatch, "short body")) {
		t.Error("size mismatches are per-file failures, not fatal")
	}
	if IsFatal(&net.OpError{Op: "dial", Err: timeoutError{}}) {
		t.Error("network errors are retryable, not fatal")
	}
}

func TestStatusCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewWithCode(ErrorTypeServerError, 503, "unavailable"))
	if got := StatusCode(err); got != 503 {
		t.Errorf("StatusCode() = %d, want 503", got)
	}
	if got := StatusCode(fmt.Errorf("plain")); got != 0 {
		t.Errorf("StatusCode(plain) = %d, want 0", got)
	}
}
