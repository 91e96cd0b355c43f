package fleet

import (
	"errors"

	"github.com/eshaffer321/fleetclient-go/internal/classify"
	internalTypes "github.com/eshaffer321/fleetclient-go/internal/types"
)

var (
	// ErrNotAuthenticated is returned when authentication is required
	ErrNotAuthenticated = internalTypes.ErrNotAuthenticated

	// ErrSessionExpired is returned when the token expired or was rejected
	ErrSessionExpired = internalTypes.ErrSessionExpired

	// ErrForbidden is returned on 403
	ErrForbidden = internalTypes.ErrForbidden

	// ErrRateLimited is returned when rate limited
	ErrRateLimited = internalTypes.ErrRateLimited

	// ErrTimeout is returned on timeout
	ErrTimeout = internalTypes.ErrTimeout

	// ErrNetwork is returned when the server could not be reached
	ErrNetwork = internalTypes.ErrNetwork

	// ErrServerError is returned for server errors
	ErrServerError = internalTypes.ErrServerError

	// ErrClientError is returned for other 4xx responses
	ErrClientError = internalTypes.ErrClientError

	// ErrUnknown is returned for unclassifiable failures
	ErrUnknown = internalTypes.ErrUnknown

	// ErrRefreshFailed is returned when the token could not be renewed
	ErrRefreshFailed = internalTypes.ErrRefreshFailed
)

// ClassifiedError is the error returned for every failed request.
// Error() is safe to show to users; the cause is reachable with errors.Unwrap.
type ClassifiedError = internalTypes.ClassifiedError

// ErrorKind classifies a failure
type ErrorKind = internalTypes.ErrorKind

// Error kinds
const (
	KindNetwork     = internalTypes.KindNetwork
	KindTimeout     = internalTypes.KindTimeout
	KindServer      = internalTypes.KindServer
	KindClient      = internalTypes.KindClient
	KindAuthExpired = internalTypes.KindAuthExpired
	KindForbidden   = internalTypes.KindForbidden
	KindRateLimited = internalTypes.KindRateLimited
	KindUnknown     = internalTypes.KindUnknown
)

// AsClassified extracts the *ClassifiedError from err
func AsClassified(err error) (*ClassifiedError, bool) {
	return internalTypes.AsClassified(err)
}

// IsAuthError checks if error is authentication related
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrRefreshFailed)
}

// IsRetryable checks if error is of a kind the client retries
func IsRetryable(err error) bool {
	if ce, ok := AsClassified(err); ok {
		return ce.Retryable
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// UserMessage returns text suitable for display for any error
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if ce, ok := AsClassified(err); ok {
		return ce.Message
	}
	return classify.UserMessage(KindUnknown, 0)
}
