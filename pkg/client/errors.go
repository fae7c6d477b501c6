package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ErrUnexpectedStatus is wrapped by every HTTPError carrying a status code.
var ErrUnexpectedStatus = errors.New("unexpected status")

// HTTPError is a failed flowzz request.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
	Class      ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("flowzz %s error: GET %s: %v", e.Class, e.URL, e.Err)
	}
	return fmt.Sprintf("flowzz %s error (status %d): GET %s", e.Class, e.StatusCode, e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode != 0 {
		return ErrUnexpectedStatus
	}
	return e.Err
}

// Temporary reports whether a later attempt may succeed. Callers' retry
// policies use it to decide whether to try again.
func (e *HTTPError) Temporary() bool {
	return shouldRetry(e.Class)
}

// classifyStatus maps a non-2xx status to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
