package client

import (
	"errors"
	"strings"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name  string
		class ErrorClass
		want  bool
	}{
		{"client errors are final", ErrorClassClient, false},
		{"server errors retry", ErrorClassServer, true},
		{"rate limit retries", ErrorClassRateLimit, true},
		{"network errors retry", ErrorClassNetwork, true},
		{"unknown class is final", ErrorClass("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.want {
				t.Errorf("shouldRetry(%s) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{400, ErrorClassClient},
		{403, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{502, ErrorClassServer},
		{504, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestHTTPError_Error(t *testing.T) {
	statusErr := &HTTPError{URL: "https://flowzz.com/x", StatusCode: 503, Class: ErrorClassServer}
	if msg := statusErr.Error(); !strings.Contains(msg, "status 503") || !strings.Contains(msg, "https://flowzz.com/x") {
		t.Errorf("Error() = %q", msg)
	}

	netErr := &HTTPError{URL: "https://flowzz.com/x", Class: ErrorClassNetwork, Err: errors.New("connection refused")}
	if msg := netErr.Error(); !strings.Contains(msg, "connection refused") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestHTTPError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	netErr := &HTTPError{Class: ErrorClassNetwork, Err: cause}
	if !errors.Is(netErr, cause) {
		t.Error("network error should unwrap to its cause")
	}

	statusErr := &HTTPError{StatusCode: 404, Class: ErrorClassClient}
	if !errors.Is(statusErr, ErrUnexpectedStatus) {
		t.Error("status error should unwrap to ErrUnexpectedStatus")
	}
}

func TestHTTPError_Temporary(t *testing.T) {
	if (&HTTPError{StatusCode: 404, Class: ErrorClassClient}).Temporary() {
		t.Error("404 should not be temporary")
	}
	if !(&HTTPError{StatusCode: 503, Class: ErrorClassServer}).Temporary() {
		t.Error("503 should be temporary")
	}
	if !(&HTTPError{StatusCode: 429, Class: ErrorClassRateLimit}).Temporary() {
		t.Error("429 should be temporary")
	}
}
