package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrRetryExhausted is returned when all retry attempts failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrRateLimited is returned when the rate limit tracker blocks a request.
	ErrRateLimited = errors.New("request blocked: rate limit critical")

	// ErrMissingTotal is returned by a PageSource when a response does not
	// carry a usable total element count.
	ErrMissingTotal = errors.New("response has no total count")
)

// ErrorClass classifies failed requests.
type ErrorClass string

const (
	// ErrorClassClient is a 4xx response other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer is a 5xx response.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit is a 429 Too Many Requests response.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork is a transport failure or timeout.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus returns the class of an HTTP status, or "" for success.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// shouldRetry reports whether errors of class are retried. Client errors
// are not: the same request would fail the same way.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// APIError is a failed request.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// RetryAfter is the server's Retry-After hint, if any.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d): %s: %v", e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// newAPIError builds an APIError from a failed response.
func newAPIError(resp *http.Response) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp.StatusCode),
		Message:    resp.Status,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// parseRetryAfter accepts delay-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(max(seconds, 0)) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}
