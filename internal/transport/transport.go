// Package transport sends requests to the fleet API with bearer auth,
// classified errors and bounded retries.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eshaffer321/fleetclient-go/internal/classify"
	"github.com/eshaffer321/fleetclient-go/internal/retry"
	"github.com/eshaffer321/fleetclient-go/internal/types"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

const (
	authHeaderKey = "Authorization"
	contentType   = "application/json"
)

// TokenSource supplies the bearer token and is told about unrecoverable 401s
type TokenSource interface {
	// AuthToken returns the token to attach, waiting for an in-flight refresh.
	// An empty token means the request goes out unauthenticated.
	AuthToken(ctx context.Context) (string, error)
	HandleUnauthorized(ctx context.Context)
}

// Options for the transport
type Options struct {
	BaseURL     string
	HTTPClient  *http.Client
	Headers     map[string]string
	Timeout     time.Duration
	RetryConfig *types.RetryConfig
	RateLimiter types.RateLimiter
	Tokens      TokenSource
	Logger      types.Logger
	Hooks       *types.Hooks
	Clock       clockwork.Clock
	Localizer   *classify.Localizer
	// DeviceID identifies this client installation; generated when empty.
	DeviceID string
}

// Transport handles communication with the fleet API
type Transport struct {
	baseURL   string
	client    *retryablehttp.Client
	headers   map[string]string
	timeout   time.Duration
	policy    retry.Policy
	limiter   types.RateLimiter
	tokens    TokenSource
	logger    types.Logger
	hooks     *types.Hooks
	clock     clockwork.Clock
	localizer *classify.Localizer
	deviceID  string
}

// New creates a new transport
func New(opts *Options) *Transport {
	if opts == nil {
		opts = &Options{}
	}

	// Set defaults
	if opts.BaseURL == "" {
		opts.BaseURL = types.DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		// per-attempt deadlines come from the request context
		opts.HTTPClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = types.DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Localizer == nil {
		opts.Localizer = classify.NewLocalizer()
	}
	if opts.DeviceID == "" {
		opts.DeviceID = uuid.NewString()
	}

	// One attempt per Do; retries are decided by the retry policy
	client := retryablehttp.NewClient()
	client.HTTPClient = opts.HTTPClient
	client.RetryMax = 0
	client.CheckRetry = func(context.Context, *http.Response, error) (bool, error) {
		return false, nil
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = &retryLogger{logger: opts.Logger}
	}

	// Set default headers
	headers := map[string]string{
		"Accept":       contentType,
		"Content-Type": contentType,
		"User-Agent":   types.UserAgent,
		"X-Device-ID":  opts.DeviceID,
	}

	// Merge custom headers
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Transport{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		client:    client,
		headers:   headers,
		timeout:   opts.Timeout,
		policy:    retry.NewPolicy(opts.RetryConfig),
		limiter:   opts.RateLimiter,
		tokens:    opts.Tokens,
		logger:    opts.Logger,
		hooks:     opts.Hooks,
		clock:     opts.Clock,
		localizer: opts.Localizer,
		deviceID:  opts.DeviceID,
	}
}

// SetTokenSource wires the token owner after construction
func (t *Transport) SetTokenSource(ts TokenSource) {
	t.tokens = ts
}

// BaseURL returns the base URL relative paths are resolved against
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// DeviceID returns the X-Device-ID sent with every request
func (t *Transport) DeviceID() string {
	return t.deviceID
}

// Send performs a logical request. Retryable failures are re-issued with
// exponential backoff; the final failure is returned as *types.ClassifiedError.
func (t *Transport) Send(ctx context.Context, req *types.Request) (*types.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}
	target, err := t.resolve(req.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid request URL")
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	header := make(http.Header, len(t.headers)+len(req.Header))
	for k, v := range t.headers {
		header.Set(k, v)
	}
	for k, vs := range req.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	rc := types.RequestContext{
		ID:     uuid.NewString(),
		Method: method,
		URL:    target,
		Header: header,
		Body:   body,
	}

	policy := t.policy
	if req.NoRetry {
		policy.MaxRetries = 0
	}

	for {
		resp, cerr := t.attempt(ctx, req, rc)
		if cerr == nil {
			return resp, nil
		}

		decision := policy.ShouldRetry(cerr, rc)
		if !decision.Retry || ctx.Err() != nil {
			return nil, t.fail(ctx, req, cerr)
		}

		if t.logger != nil {
			t.logger.Warn("Retrying request",
				"method", rc.Method, "url", rc.URL, "kind", cerr.Kind,
				"retry", decision.Next.RetryCount, "delay", decision.Delay)
		}
		if t.hooks != nil && t.hooks.OnRetry != nil {
			t.hooks.OnRetry(ctx, decision.Next, decision.Delay, cerr)
		}

		if err := retry.Wait(ctx, t.clock, decision.Delay); err != nil {
			return nil, t.fail(ctx, req, cerr)
		}
		rc = decision.Next
	}
}

// Ping checks that the API is reachable using the short health timeout
func (t *Transport) Ping(ctx context.Context) error {
	_, err := t.Send(ctx, &types.Request{
		Method:           http.MethodGet,
		URL:              types.DefaultHealthPath,
		Timeout:          types.HealthTimeout,
		NoRetry:          true,
		SkipAuthRecovery: true,
	})
	return err
}

func (t *Transport) fail(ctx context.Context, req *types.Request, cerr *types.ClassifiedError) error {
	if cerr.Kind == types.KindAuthExpired && !req.SkipAuthRecovery && t.tokens != nil {
		t.tokens.HandleUnauthorized(ctx)
	}

	if t.logger != nil {
		t.logger.Error("Request failed",
			"method", cerr.Method, "url", cerr.Endpoint, "kind", cerr.Kind,
			"status", cerr.HTTPStatus, "retries", cerr.RetryCount, "detail", cerr.Detail)
	}
	if t.hooks != nil && t.hooks.OnError != nil {
		t.hooks.OnError(ctx, cerr)
	}
	return cerr
}

// attempt issues rc exactly once
func (t *Transport) attempt(ctx context.Context, req *types.Request, rc types.RequestContext) (*types.Response, *types.ClassifiedError) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, t.classify(rc, err, 0, nil)
		}
	}

	token, err := t.bearer(ctx, req)
	if err != nil {
		return nil, t.classify(rc, err, 0, nil)
	}

	timeout := t.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var raw interface{}
	if len(rc.Body) > 0 {
		raw = rc.Body
	}
	httpReq, err := retryablehttp.NewRequestWithContext(attemptCtx, rc.Method, rc.URL, raw)
	if err != nil {
		return nil, t.classify(rc, err, 0, nil)
	}

	// Set headers
	for k, vs := range rc.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	httpReq.Header.Set("X-Request-ID", rc.ID)
	if token != "" {
		httpReq.Header.Set(authHeaderKey, "Bearer "+token)
	}

	// Call request hook
	if t.hooks != nil && t.hooks.OnRequest != nil {
		t.hooks.OnRequest(ctx, httpReq.Request)
	}

	if t.logger != nil {
		t.logger.Debug("HTTP request", "method", rc.Method, "url", rc.URL, "retry", rc.RetryCount, "requestID", rc.ID)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.classify(rc, err, 0, nil)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, t.classify(rc, errors.Wrap(err, "failed to read response"), 0, nil)
	}

	// Call response hook
	if t.hooks != nil && t.hooks.OnResponse != nil {
		t.hooks.OnResponse(ctx, resp, duration)
	}

	if t.logger != nil {
		t.logger.Debug("HTTP response", "status", resp.StatusCode, "duration", duration, "size", len(respBody))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, t.classify(rc, nil, resp.StatusCode, respBody)
	}

	return &types.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

func (t *Transport) bearer(ctx context.Context, req *types.Request) (string, error) {
	switch {
	case req.Anonymous:
		return "", nil
	case req.BearerToken != "":
		return req.BearerToken, nil
	case t.tokens == nil:
		return "", nil
	}
	return t.tokens.AuthToken(ctx)
}

func (t *Transport) classify(rc types.RequestContext, err error, status int, body []byte) *types.ClassifiedError {
	return t.localizer.New(rc, err, status, body, t.clock.Now())
}

func (t *Transport) resolve(target string) (string, error) {
	if target == "" {
		return t.baseURL, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return target, nil
	}
	return t.baseURL + "/" + strings.TrimPrefix(target, "/"), nil
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return json.Marshal(body)
}

// retryLogger adapts our logger to retryablehttp
type retryLogger struct {
	logger types.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}
