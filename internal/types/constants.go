package types

import "time"

const (
	// DefaultBaseURL is the default fleet API base URL
	DefaultBaseURL = "https://api.fleetdesk.io"

	// DefaultAuthPath is appended to the base URL when no auth base is configured
	DefaultAuthPath = "/auth"

	// DefaultTimeout is the overall per-attempt request timeout
	DefaultTimeout = 30 * time.Second

	// HealthTimeout is the shorter timeout used for health checks
	HealthTimeout = 5 * time.Second

	// UserAgent is the user agent string
	UserAgent = "fleetclient-go/1.0.0"
)

// Retry defaults
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1000 * time.Millisecond
)

// Token lifecycle defaults
const (
	DefaultCheckInterval      = 60 * time.Second
	DefaultRefreshThreshold   = 10 * time.Minute
	DefaultWarningTime        = 5 * time.Minute
	DefaultWarningSuppression = 60 * time.Second
	DefaultAutoLogoutTime     = 30 * time.Minute
	DefaultMaxRefreshAttempts = 3
)

// DefaultLoginPath is both the login endpoint under the auth base and the
// view the navigator is sent to after a logout
const DefaultLoginPath = "/login"

// Endpoint paths
const (
	DefaultHealthPath  = "/health"
	DefaultRefreshPath = "/refresh"
)
