package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the classified category of a failed request
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network_error"
	KindTimeout     ErrorKind = "timeout"
	KindServer      ErrorKind = "server_error"
	KindClient      ErrorKind = "client_error"
	KindAuthExpired ErrorKind = "auth_expired"
	KindForbidden   ErrorKind = "forbidden"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnknown     ErrorKind = "unknown"
)

// Kinds lists every error kind
var Kinds = []ErrorKind{
	KindNetwork,
	KindTimeout,
	KindServer,
	KindClient,
	KindAuthExpired,
	KindForbidden,
	KindRateLimited,
	KindUnknown,
}

// Retryable reports whether failures of this kind are transient
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindAuthExpired, KindForbidden:
		return true
	}
	return false
}

// Common errors
var (
	// ErrNotAuthenticated is returned when authentication is required
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired is returned when the session can no longer be renewed
	ErrSessionExpired = errors.New("session expired")

	// ErrForbidden is returned on 403 responses
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited is returned when rate limited
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout is returned on timeout
	ErrTimeout = errors.New("request timeout")

	// ErrNetwork is returned when the backend cannot be reached
	ErrNetwork = errors.New("network error")

	// ErrServerError is returned for server errors
	ErrServerError = errors.New("server error")

	// ErrClientError is returned for rejected requests
	ErrClientError = errors.New("client error")

	// ErrUnknown is returned when a failure could not be classified
	ErrUnknown = errors.New("unknown error")

	// ErrRefreshFailed is returned when the refresh endpoint rejects the token
	ErrRefreshFailed = errors.New("token refresh failed")
)

// Sentinel returns the sentinel error matching a kind
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindTimeout:
		return ErrTimeout
	case KindServer:
		return ErrServerError
	case KindClient:
		return ErrClientError
	case KindAuthExpired:
		return ErrSessionExpired
	case KindForbidden:
		return ErrForbidden
	case KindRateLimited:
		return ErrRateLimited
	}
	return ErrUnknown
}

// ClassifiedError is the error returned to callers once a request has failed for good.
// It is immutable after construction.
type ClassifiedError struct {
	Kind       ErrorKind `json:"kind"`
	Retryable  bool      `json:"retryable"`
	HTTPStatus int       `json:"httpStatus,omitempty"`

	// Message is the user-safe text; it is the only text meant for display.
	Message string `json:"message"`

	// Detail carries diagnostic information for logs, never for display.
	Detail string `json:"-"`

	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	RetryCount int       `json:"retryCount"`
	Timestamp  time.Time `json:"timestamp"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("error: %s", e.Kind)
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *ClassifiedError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.Sentinel(), e.Err}
	}
	return []error{e.Kind.Sentinel()}
}

// AsClassified extracts a ClassifiedError from an error chain
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
