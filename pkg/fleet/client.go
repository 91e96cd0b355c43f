package fleet

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eshaffer321/fleetclient-go/internal/activity"
	"github.com/eshaffer321/fleetclient-go/internal/auth"
	"github.com/eshaffer321/fleetclient-go/internal/classify"
	"github.com/eshaffer321/fleetclient-go/internal/store/filestore"
	"github.com/eshaffer321/fleetclient-go/internal/store/memory"
	"github.com/eshaffer321/fleetclient-go/internal/token"
	"github.com/eshaffer321/fleetclient-go/internal/transport"
	internalTypes "github.com/eshaffer321/fleetclient-go/internal/types"
	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

const (
	// DefaultBaseURL is the default fleet API base URL
	DefaultBaseURL = internalTypes.DefaultBaseURL

	// DefaultTimeout is the default per-attempt request timeout
	DefaultTimeout = internalTypes.DefaultTimeout

	// UserAgent is the user agent string
	UserAgent = internalTypes.UserAgent
)

// Client is the main fleet API client
type Client struct {
	// Auth manages the session
	Auth AuthService

	// Internal fields
	baseURL   string
	transport Transport
	tokens    *token.Manager
	tracker   *activity.Tracker
	options   *ClientOptions
	detach    func()

	mu     sync.Mutex
	runCtx context.Context
}

// ClientOptions configures the client
type ClientOptions struct {
	// BaseURL overrides the default API base URL
	BaseURL string

	// AuthBaseURL overrides the auth endpoint base (default BaseURL + "/auth")
	AuthBaseURL string

	// HTTPClient allows using a custom HTTP client
	HTTPClient *http.Client

	// Timeout sets the per-attempt request timeout
	Timeout time.Duration

	// Headers are sent with every request
	Headers map[string]string

	// Token provides direct authentication token
	Token string

	// SessionFile path for session persistence. Ignored when Store is set.
	SessionFile string

	// Store persists the session. Defaults to memory.
	Store Store

	// Logger for debug logging
	Logger Logger

	// RetryConfig configures retry behavior
	RetryConfig *RetryConfig

	// RateLimiter for rate limiting
	RateLimiter RateLimiter

	// Hooks for observability
	Hooks *Hooks

	// SentryDSN enables Sentry error tracking when set
	SentryDSN string

	// SentryOptions allows custom Sentry configuration
	SentryOptions *sentry.ClientOptions

	// Navigator is asked to show the login view after a logout
	Navigator Navigator

	// ActivitySource feeds user activity into the inactivity timer
	ActivitySource ActivitySource

	// Clock drives timers and expiry checks. Defaults to the real clock.
	Clock clockwork.Clock

	// Language selects the locale of user-facing error messages
	// (BCP 47 tag or Accept-Language value).
	Language string

	// Token lifecycle tuning; zero values use the defaults
	CheckInterval      time.Duration
	RefreshThreshold   time.Duration
	WarningTime        time.Duration
	AutoLogoutTime     time.Duration
	MaxRefreshAttempts int
	LoginPath          string
}

// Transport handles HTTP communication
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	Ping(ctx context.Context) error
}

// NewClient creates a new fleet client
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil {
		opts = &ClientOptions{}
	}

	// Initialize Sentry if DSN is provided
	if opts.SentryDSN != "" || opts.SentryOptions != nil {
		sentryOpts := sentry.ClientOptions{}

		// Use provided options if available, otherwise create new ones
		if opts.SentryOptions != nil {
			sentryOpts = *opts.SentryOptions
		}

		// Override DSN if provided separately
		if opts.SentryDSN != "" {
			sentryOpts.Dsn = opts.SentryDSN
		}

		// Set default environment if not provided
		if sentryOpts.Environment == "" {
			sentryOpts.Environment = "production"
		}

		// Initialize Sentry
		if err := sentry.Init(sentryOpts); err != nil {
			// Log error but don't fail client creation
			if opts.Logger != nil {
				opts.Logger.Error("Failed to initialize Sentry", "error", err)
			}
		}
	}

	// Set defaults
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if opts.AuthBaseURL == "" {
		opts.AuthBaseURL = opts.BaseURL + internalTypes.DefaultAuthPath
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Store == nil {
		if opts.SessionFile != "" {
			opts.Store = filestore.New(opts.SessionFile)
		} else {
			opts.Store = memory.New()
		}
	}

	var localizer *classify.Localizer
	if opts.Language != "" {
		localizer = classify.NewLocalizer(opts.Language)
	}

	// Create transport using the internal package
	trans := transport.New(&transport.Options{
		BaseURL:     opts.BaseURL,
		HTTPClient:  opts.HTTPClient,
		Headers:     opts.Headers,
		Timeout:     opts.Timeout,
		RetryConfig: opts.RetryConfig,
		RateLimiter: opts.RateLimiter,
		Logger:      opts.Logger,
		Hooks:       opts.Hooks,
		Clock:       opts.Clock,
		Localizer:   localizer,
	})

	authSvc := auth.NewService(trans, opts.AuthBaseURL, opts.Logger)
	tracker := activity.NewTracker(opts.Clock)
	tokens := token.NewManager(token.Options{
		Store:              opts.Store,
		Refresher:          authSvc,
		Tracker:            tracker,
		Navigator:          opts.Navigator,
		Clock:              opts.Clock,
		Logger:             opts.Logger,
		CheckInterval:      opts.CheckInterval,
		RefreshThreshold:   opts.RefreshThreshold,
		WarningTime:        opts.WarningTime,
		AutoLogoutTime:     opts.AutoLogoutTime,
		MaxRefreshAttempts: opts.MaxRefreshAttempts,
		LoginPath:          opts.LoginPath,
	})
	trans.SetTokenSource(tokens)

	// Create client
	c := &Client{
		baseURL:   opts.BaseURL,
		transport: trans,
		tokens:    tokens,
		tracker:   tracker,
		options:   opts,
	}
	c.Auth = newAuthService(c, authSvc)

	if opts.ActivitySource != nil {
		c.detach = tracker.Attach(opts.ActivitySource)
	}
	tokens.Subscribe(c.recordLogout)

	// Set auth if token provided, otherwise resume a persisted session
	ctx := context.Background()
	if opts.Token != "" {
		if err := tokens.SetSession(ctx, &Session{Token: opts.Token}); err != nil {
			return nil, errors.Wrap(err, "invalid token")
		}
	} else if err := tokens.Restore(ctx); err != nil && !errors.Is(err, ErrNotAuthenticated) && opts.Logger != nil {
		opts.Logger.Warn("Failed to load session", "error", err)
	}

	return c, nil
}

// NewClientWithToken creates a client with an auth token
func NewClientWithToken(token string) (*Client, error) {
	return NewClient(&ClientOptions{
		Token: token,
	})
}

// Send performs a request. Failures are returned as *ClassifiedError.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		c.capture(ctx, err)
		return nil, err
	}
	return resp, nil
}

// Get fetches path and decodes the JSON body into result
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post sends body as JSON and decodes the response into result
func (c *Client) Post(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// Put sends body as JSON and decodes the response into result
func (c *Client) Put(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, result)
}

// Patch sends body as JSON and decodes the response into result
func (c *Client) Patch(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPatch, path, body, result)
}

// Delete deletes the resource at path
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	resp, err := c.Send(ctx, &Request{Method: method, URL: path, Body: body})
	if err != nil {
		return err
	}
	if result != nil && len(resp.Body) > 0 {
		if err := resp.JSON(result); err != nil {
			return errors.Wrap(err, "failed to unmarshal result")
		}
	}
	return nil
}

// Ping checks that the API is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.transport.Ping(ctx)
}

// Start runs the periodic token check until ctx is done or Stop is called.
// The check is resumed on the next login after a logout.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()
	c.tokens.Start(ctx)
}

// Stop halts the periodic token check
func (c *Client) Stop() {
	c.mu.Lock()
	c.runCtx = nil
	c.mu.Unlock()
	c.tokens.Stop()
}

func (c *Client) resume() {
	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()
	if ctx != nil && ctx.Err() == nil {
		c.tokens.Start(ctx)
	}
}

// Close stops background work and flushes any pending Sentry events
func (c *Client) Close() {
	c.Stop()
	if c.detach != nil {
		c.detach()
	}

	// Flush Sentry events with a 2 second timeout
	sentry.Flush(2 * time.Second)
}

func (c *Client) capture(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		if ce, ok := internalTypes.AsClassified(err); ok {
			scope.SetTag("error.kind", string(ce.Kind))
			scope.SetTag("http.method", ce.Method)
			scope.SetTag("http.endpoint", ce.Endpoint)
			scope.SetContext("request", map[string]interface{}{
				"status":     ce.HTTPStatus,
				"retryCount": ce.RetryCount,
				"detail":     ce.Detail,
			})
		}
		hub.CaptureException(err)
	})
}

func (c *Client) recordLogout(e Event) {
	if e.Type != EventLogout {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: "auth",
		Message:  "session ended",
		Level:    sentry.LevelInfo,
		Data:     map[string]interface{}{"reason": string(e.Reason)},
	})
}
