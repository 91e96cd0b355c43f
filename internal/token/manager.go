// Package token owns the bearer token and its lifecycle: periodic expiry checks,
// single-flight renewal, inactivity auto-logout and forced logout.
package token

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eshaffer321/fleetclient-go/internal/activity"
	"github.com/eshaffer321/fleetclient-go/internal/store"
	"github.com/eshaffer321/fleetclient-go/internal/store/memory"
	"github.com/eshaffer321/fleetclient-go/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// State is the lifecycle state of the managed token
type State string

const (
	StateLoggedOut  State = "logged_out"
	StateValid      State = "valid"
	StateNearExpiry State = "near_expiry"
	StateRefreshing State = "refreshing"
	StateExpired    State = "expired"
)

// Refresher exchanges the current token for a new one
type Refresher interface {
	Refresh(ctx context.Context, token string) (*types.Session, error)
}

// Navigator is the UI collaborator that can present the login screen
type Navigator interface {
	Location() string
	Navigate(target string)
}

// Options configures a Manager. Zero values take the package defaults.
type Options struct {
	Store     store.Store
	Refresher Refresher
	Tracker   *activity.Tracker
	Navigator Navigator
	Clock     clockwork.Clock
	Logger    types.Logger

	CheckInterval      time.Duration
	RefreshThreshold   time.Duration
	WarningTime        time.Duration
	WarningSuppression time.Duration
	AutoLogoutTime     time.Duration
	MaxRefreshAttempts int

	// RefreshTimeout bounds one refresh call independently of the caller
	RefreshTimeout time.Duration

	// LoginPath is the location of the login view
	LoginPath string
}

// Manager is the sole owner and writer of the token and session state
type Manager struct {
	opts      Options
	clock     clockwork.Clock
	store     store.Store
	refresher Refresher
	tracker   *activity.Tracker
	navigator Navigator
	logger    types.Logger
	bus       *Bus

	current    atomic.Pointer[token]
	refreshing atomic.Bool
	group      singleflight.Group
	waiting    atomic.Int32

	mu              sync.Mutex
	state           State
	loggedIn        bool
	refreshAttempts int
	warningEmitted  bool
	lastWarningAt   time.Time
	refreshDone     chan struct{}
	stopCh          chan struct{}
}

// NewManager creates a manager in the logged-out state
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Store == nil {
		opts.Store = memory.New()
	}
	if opts.Tracker == nil {
		opts.Tracker = activity.NewTracker(opts.Clock)
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = types.DefaultCheckInterval
	}
	if opts.RefreshThreshold <= 0 {
		opts.RefreshThreshold = types.DefaultRefreshThreshold
	}
	if opts.WarningTime <= 0 {
		opts.WarningTime = types.DefaultWarningTime
	}
	if opts.WarningSuppression <= 0 {
		opts.WarningSuppression = types.DefaultWarningSuppression
	}
	if opts.AutoLogoutTime <= 0 {
		opts.AutoLogoutTime = types.DefaultAutoLogoutTime
	}
	if opts.MaxRefreshAttempts <= 0 {
		opts.MaxRefreshAttempts = types.DefaultMaxRefreshAttempts
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = types.DefaultTimeout
	}
	if opts.LoginPath == "" {
		opts.LoginPath = types.DefaultLoginPath
	}

	return &Manager{
		opts:      opts,
		clock:     opts.Clock,
		store:     opts.Store,
		refresher: opts.Refresher,
		tracker:   opts.Tracker,
		navigator: opts.Navigator,
		logger:    opts.Logger,
		bus:       NewBus(),
		state:     StateLoggedOut,
	}
}

// SetRefresher wires the refresh endpoint after construction
func (m *Manager) SetRefresher(r Refresher) {
	m.refresher = r
}

// Subscribe registers a lifecycle observer and returns its unsubscribe func
func (m *Manager) Subscribe(fn func(Event)) func() {
	return m.bus.Subscribe(fn)
}

// Tracker returns the activity tracker consulted for auto-logout
func (m *Manager) Tracker() *activity.Tracker {
	return m.tracker
}

// SetSession installs a freshly issued token, persists it and resets the session state
func (m *Manager) SetSession(ctx context.Context, sess *types.Session) error {
	if sess == nil || sess.Token == "" {
		return types.ErrNotAuthenticated
	}

	t := newToken(sess.Token, sess.User)
	if _, err := t.Claims(); err != nil {
		return err
	}

	m.mu.Lock()
	if err := store.SaveSession(ctx, m.store, sess.Token, sess.User); err != nil {
		m.mu.Unlock()
		return errors.Wrap(err, "failed to persist session")
	}
	m.current.Store(t)
	m.loggedIn = true
	m.state = StateValid
	m.refreshAttempts = 0
	m.warningEmitted = false
	m.lastWarningAt = time.Time{}
	m.mu.Unlock()

	m.tracker.Reset()

	if m.logger != nil {
		claims, _ := t.Claims()
		m.logger.Info("Session started", "subject", claims.Subject, "expiresAt", claims.ExpiresAt)
	}
	return nil
}

// Restore loads a persisted token. Expired or unreadable tokens are cleared.
func (m *Manager) Restore(ctx context.Context) error {
	raw, err := store.LoadToken(ctx, m.store)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ErrNotAuthenticated
		}
		return errors.Wrap(err, "failed to load session")
	}

	claims, err := newToken(raw, nil).Claims()
	if err != nil || !m.clock.Now().Before(claims.ExpiresAt) {
		if clearErr := store.ClearSession(ctx, m.store); clearErr != nil && m.logger != nil {
			m.logger.Warn("Failed to clear stale session", "error", clearErr)
		}
		if err != nil {
			return err
		}
		return types.ErrSessionExpired
	}

	user, err := store.LoadUser(ctx, m.store)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return errors.Wrap(err, "failed to load user")
	}
	return m.SetSession(ctx, &types.Session{Token: raw, User: user})
}

// Token returns the current bearer token, or "" when logged out
func (m *Manager) Token() string {
	if t := m.current.Load(); t != nil {
		return t.raw
	}
	return ""
}

// AuthToken returns the token to attach to a request. If a refresh is in
// flight it waits for it; it never starts one.
func (m *Manager) AuthToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	done := m.refreshDone
	m.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.Token(), nil
}

// Claims returns the claims of the current token
func (m *Manager) Claims() (types.Claims, error) {
	t := m.current.Load()
	if t == nil {
		return types.Claims{}, types.ErrNotAuthenticated
	}
	return t.Claims()
}

// IsValid reports whether a token is held and has not expired.
// An expired token is invalid even while a refresh is in flight.
func (m *Manager) IsValid() bool {
	claims, err := m.Claims()
	if err != nil {
		return false
	}
	return m.clock.Now().Before(claims.ExpiresAt)
}

// IsLoggedIn reports whether a session is active
func (m *Manager) IsLoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

// IsRefreshing reports whether a refresh call is in flight
func (m *Manager) IsRefreshing() bool {
	return m.refreshing.Load()
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RefreshAttempts returns the number of consecutive failed refreshes
func (m *Manager) RefreshAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshAttempts
}

// Start runs Check every CheckInterval until Stop, a logout, or ctx is done
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stopCh = stop
	ticker := m.clock.NewTicker(m.opts.CheckInterval)
	m.mu.Unlock()

	go m.loop(ctx, ticker, stop)
}

// Stop halts the periodic check
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopLocked()
	m.mu.Unlock()
}

// Running reports whether the periodic check is active
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCh != nil
}

func (m *Manager) stopLocked() {
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
}

func (m *Manager) loop(ctx context.Context, ticker clockwork.Ticker, stop chan struct{}) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if m.stopCh == stop {
				m.stopLocked()
			}
			m.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.Chan():
			m.Check(ctx)
		}
	}
}

// Check runs one periodic evaluation: inactivity, renewal, expiry warning
func (m *Manager) Check(ctx context.Context) {
	if !m.IsLoggedIn() {
		return
	}

	if idle := m.tracker.Since(); idle >= m.opts.AutoLogoutTime {
		if m.logger != nil {
			m.logger.Info("Logging out after inactivity", "idle", idle)
		}
		m.ForceLogout(ctx, ReasonAutoLogout)
		return
	}

	claims, err := m.Claims()
	if err != nil {
		if m.logger != nil {
			m.logger.Error("Current token is unreadable", "error", err)
		}
		m.ForceLogout(ctx, ReasonSessionExpired)
		return
	}

	until := claims.ExpiresAt.Sub(m.clock.Now())
	if until <= 0 {
		m.setState(StateExpired)
	}

	if until <= m.opts.RefreshThreshold && !m.refreshing.Load() {
		if until > 0 {
			m.setState(StateNearExpiry)
		}
		if _, err := m.Refresh(ctx); err == nil {
			return
		}
		if !m.IsLoggedIn() {
			return
		}
	}

	m.maybeWarn(until)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.loggedIn {
		m.state = s
	}
	m.mu.Unlock()
}

func (m *Manager) maybeWarn(until time.Duration) {
	if until > m.opts.WarningTime {
		return
	}

	now := m.clock.Now()
	m.mu.Lock()
	if m.warningEmitted && now.Sub(m.lastWarningAt) < m.opts.WarningSuppression {
		m.mu.Unlock()
		return
	}
	m.warningEmitted = true
	m.lastWarningAt = now
	m.mu.Unlock()

	minutes := int(until / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	if m.logger != nil {
		m.logger.Warn("Session about to expire", "minutesLeft", minutes)
	}
	m.bus.Publish(Event{Type: EventTokenWarning, MinutesLeft: minutes, At: now})
}

// Refresh renews the token. Concurrent callers share one network call and
// receive the same new token. The call is detached from ctx: a caller that
// gives up returns ctx.Err() while the others keep waiting.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	ch := m.group.DoChan(refreshKey, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RefreshTimeout)
		defer cancel()
		return m.refresh(rctx)
	})
	m.waiting.Add(1)
	defer m.waiting.Add(-1)

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refreshWaiters is the number of callers blocked on the shared refresh
func (m *Manager) refreshWaiters() int {
	return int(m.waiting.Load())
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	cur := m.current.Load()
	if cur == nil {
		return "", types.ErrNotAuthenticated
	}
	if m.refresher == nil {
		return "", fmt.Errorf("%w: no refresher configured", types.ErrRefreshFailed)
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.refreshing.Store(true)
	m.refreshDone = done
	m.state = StateRefreshing
	m.mu.Unlock()

	sess, err := m.refresher.Refresh(ctx, cur.raw)
	var next *token
	if err == nil {
		if sess == nil || sess.Token == "" {
			err = errors.New("refresh response carried no token")
		} else {
			next = newToken(sess.Token, sess.User)
			if _, claimsErr := next.Claims(); claimsErr != nil {
				err = claimsErr
			}
		}
	}

	if err != nil {
		return "", m.refreshFailed(ctx, cur, done, err)
	}

	m.mu.Lock()
	if !m.loggedIn || m.current.Load() != cur {
		// logged out or replaced while the call was in flight
		m.finishRefreshLocked(done)
		m.mu.Unlock()
		return "", types.ErrNotAuthenticated
	}
	if saveErr := store.SaveSession(ctx, m.store, sess.Token, sess.User); saveErr != nil && m.logger != nil {
		m.logger.Error("Failed to persist refreshed token", "error", saveErr)
	}
	m.current.Store(next)
	m.refreshAttempts = 0
	m.warningEmitted = false
	m.lastWarningAt = time.Time{}
	m.state = StateValid
	m.finishRefreshLocked(done)
	m.mu.Unlock()

	if m.logger != nil {
		claims, _ := next.Claims()
		m.logger.Info("Token refreshed", "expiresAt", claims.ExpiresAt)
	}
	m.bus.Publish(Event{
		Type:  EventTokenRefreshed,
		Token: sess.Token,
		User:  sess.User,
		At:    m.clock.Now(),
	})
	return sess.Token, nil
}

func (m *Manager) refreshFailed(ctx context.Context, cur *token, done chan struct{}, cause error) error {
	m.mu.Lock()
	if !m.loggedIn || m.current.Load() != cur {
		m.finishRefreshLocked(done)
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", types.ErrRefreshFailed, cause)
	}
	if errors.Is(cause, context.Canceled) {
		// not a verdict from the backend
		m.state = StateNearExpiry
		m.finishRefreshLocked(done)
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", types.ErrRefreshFailed, cause)
	}
	m.refreshAttempts++
	attempts := m.refreshAttempts
	exhausted := attempts >= m.opts.MaxRefreshAttempts
	m.state = StateNearExpiry
	m.finishRefreshLocked(done)
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Warn("Token refresh failed", "attempt", attempts, "max", m.opts.MaxRefreshAttempts, "error", cause)
	}
	if exhausted {
		m.ForceLogout(ctx, ReasonSessionExpired)
	}
	return fmt.Errorf("%w: %w", types.ErrRefreshFailed, cause)
}

func (m *Manager) finishRefreshLocked(done chan struct{}) {
	m.refreshing.Store(false)
	if m.refreshDone == done {
		m.refreshDone = nil
	}
	close(done)
}

// HandleUnauthorized is called after a request finally failed with 401.
// It tries one refresh; if none is possible the session is ended.
func (m *Manager) HandleUnauthorized(ctx context.Context) {
	cur := m.current.Load()
	if cur == nil {
		if !m.ForceLogout(ctx, ReasonSessionExpired) {
			m.redirectToLogin(ReasonSessionExpired)
		}
		return
	}
	if _, err := m.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			// the caller gave up; the shared refresh decides on its own
			return
		}
		if m.current.Load() != cur && m.IsLoggedIn() {
			return
		}
		m.ForceLogout(ctx, ReasonSessionExpired)
	}
}

// Logout ends the session at the user's request
func (m *Manager) Logout(ctx context.Context) bool {
	return m.ForceLogout(ctx, ReasonManual)
}

// ForceLogout clears the persisted session, stops the periodic check, emits
// auth:logout and shows the login view. It reports whether a session was
// actually ended; repeated calls emit nothing.
func (m *Manager) ForceLogout(ctx context.Context, reason LogoutReason) bool {
	m.mu.Lock()
	wasLoggedIn := m.loggedIn
	m.loggedIn = false
	m.state = StateLoggedOut
	m.current.Store(nil)
	m.refreshAttempts = 0
	m.warningEmitted = false
	m.lastWarningAt = time.Time{}
	m.stopLocked()
	clearErr := store.ClearSession(context.WithoutCancel(ctx), m.store)
	m.mu.Unlock()

	if clearErr != nil && m.logger != nil {
		m.logger.Error("Failed to clear session storage", "error", clearErr)
	}

	if !wasLoggedIn {
		return false
	}

	if m.logger != nil {
		m.logger.Info("Session ended", "reason", reason)
	}
	m.bus.Publish(Event{Type: EventLogout, Reason: reason, At: m.clock.Now()})
	m.redirectToLogin(reason)
	return true
}

func (m *Manager) redirectToLogin(reason LogoutReason) {
	if m.navigator == nil {
		return
	}
	if m.isLoginLocation(m.navigator.Location()) {
		return
	}
	m.navigator.Navigate(LoginURL(m.opts.LoginPath, reason))
}

func (m *Manager) isLoginLocation(loc string) bool {
	u, err := url.Parse(loc)
	if err != nil {
		return strings.HasPrefix(loc, m.opts.LoginPath)
	}
	return strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(m.opts.LoginPath, "/")
}

// LoginURL returns the login location carrying the logout reason
func LoginURL(loginPath string, reason LogoutReason) string {
	if reason == "" {
		return loginPath
	}
	q := url.Values{}
	q.Set("reason", string(reason))
	return loginPath + "?" + q.Encode()
}
