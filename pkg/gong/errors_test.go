package gong

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{
		StatusCode: 401,
		ErrorClass: ErrorClassFatal,
		Message:    "invalid credentials",
	}

	msg := err.Error()
	for _, want := range []string{"fatal", "401", "invalid credentials"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want it to contain %q", msg, want)
		}
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &APIError{ErrorClass: ErrorClassTransient, Message: "request failed", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is() did not find wrapped error")
	}

	wrapped := fmt.Errorf("list calls: %w", err)
	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) {
		t.Fatal("errors.As() did not find APIError in chain")
	}
	if apiErr.ErrorClass != ErrorClassTransient {
		t.Errorf("ErrorClass = %v, want %v", apiErr.ErrorClass, ErrorClassTransient)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name     string
		class    ErrorClass
		expected bool
	}{
		{
			name:     "transient errors retry",
			class:    ErrorClassTransient,
			expected: true,
		},
		{
			name:     "rate limit errors retry",
			class:    ErrorClassRateLimit,
			expected: true,
		},
		{
			name:     "fatal errors do not retry",
			class:    ErrorClassFatal,
			expected: false,
		},
		{
			name:     "unknown class does not retry",
			class:    "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{
			name:     "plain network error is transient",
			err:      errors.New("dial tcp: connection refused"),
			expected: ErrorClassTransient,
		},
		{
			name:     "api error carries its class",
			err:      &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit},
			expected: ErrorClassRateLimit,
		},
		{
			name:     "wrapped api error carries its class",
			err:      fmt.Errorf("fetch: %w", &APIError{StatusCode: 400, ErrorClass: ErrorClassFatal}),
			expected: ErrorClassFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.expected {
				t.Errorf("classify() = %v, want %v", got, tt.expected)
			}
		})
	}
}
