package fleet

import (
	"context"
)

// AuthService handles the session and its token
type AuthService interface {
	// Login exchanges credentials for a token and starts the session
	Login(ctx context.Context, email, password string) error

	// Logout ends the session with reason "manual"
	Logout(ctx context.Context)

	// IsAuthenticated reports whether an unexpired token is held
	IsAuthenticated() bool

	// Token returns the current bearer token, or "" when logged out
	Token() string

	// Claims returns the decoded claims of the current token
	Claims() (*Claims, error)

	// State returns the token lifecycle state
	State() State

	// Refresh renews the token now; concurrent callers share one call
	Refresh(ctx context.Context) error

	// Subscribe registers an observer for lifecycle events
	Subscribe(fn func(Event)) func()

	// RecordActivity marks the user as active
	RecordActivity()
}

// Logger interface for logging
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Store persists the session between runs
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Navigator presents the login view
type Navigator interface {
	Location() string
	Navigate(target string)
}

// ActivitySource delivers user activity signals
type ActivitySource interface {
	Subscribe(fn func(Signal)) (unsubscribe func())
}
