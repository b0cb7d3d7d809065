package gong

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled while
	// waiting between retry attempts or for a Retry-After delay.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrTooManyPages is returned when cursor pagination exceeds the
	// configured page ceiling without the server exhausting its cursor.
	ErrTooManyPages = errors.New("pagination exceeded page ceiling")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassTransient represents network errors and timeouts.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassRateLimit represents HTTP 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassFatal represents any other non-2xx response. These are
	// almost always auth or request-shape problems; retrying won't help.
	ErrorClassFatal ErrorClass = "fatal"
)

// APIError represents a Gong API failure with status context.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gong %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("gong %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error class warrants another attempt.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassTransient, ErrorClassRateLimit:
		return true
	default:
		// Fatal request errors waste attempts: a 401 or 400 will fail
		// identically on every retry.
		return false
	}
}

// classify maps an arbitrary error to its class. Network-level errors
// (no APIError in the chain) are transient.
func classify(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassTransient
}
