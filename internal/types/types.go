package types

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Session is what the auth endpoints hand back on login or refresh
type Session struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user,omitempty"`
}

// Claims are the decoded parts of a bearer token the client cares about
type Claims struct {
	Subject   string    `json:"sub"`
	ExpiresAt time.Time `json:"exp"`
	IssuedAt  time.Time `json:"iat"`
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

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries int           `json:"maxRetries"`
	BaseDelay  time.Duration `json:"baseDelay"`
}

// Hooks provides lifecycle hooks for requests
type Hooks struct {
	OnRequest  func(ctx context.Context, req *http.Request)
	OnResponse func(ctx context.Context, resp *http.Response, duration time.Duration)
	OnRetry    func(ctx context.Context, rc RequestContext, delay time.Duration, err *ClassifiedError)
	OnError    func(ctx context.Context, err error)
}

// Request describes one logical call to the backend
type Request struct {
	Method string
	// URL is either absolute or a path relative to the base URL.
	URL    string
	Header http.Header
	// Body is sent as-is when it is []byte or string, JSON encoded otherwise.
	Body interface{}

	// Timeout overrides the default per-attempt timeout
	Timeout time.Duration

	// NoRetry disables the retry policy for this request
	NoRetry bool

	// Anonymous suppresses the Authorization header
	Anonymous bool

	// BearerToken, when set, is attached instead of the managed token
	BearerToken string

	// SkipAuthRecovery keeps a terminal 401 from touching the session
	SkipAuthRecovery bool
}

// RequestContext is the per-attempt descriptor of a logical request.
// It is passed by value; each retry works on a copy with RetryCount+1.
type RequestContext struct {
	ID         string
	Method     string
	URL        string
	Header     http.Header
	Body       []byte
	RetryCount int
}

// NextAttempt returns the descriptor for the following attempt
func (rc RequestContext) NextAttempt() RequestContext {
	next := rc
	next.Header = rc.Header.Clone()
	next.RetryCount = rc.RetryCount + 1
	return next
}

// Response is a successful backend response with its body fully read
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}
