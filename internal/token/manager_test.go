package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eshaffer321/fleetclient-go/internal/store"
	"github.com/eshaffer321/fleetclient-go/internal/store/memory"
	"github.com/eshaffer321/fleetclient-go/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func mintToken(t *testing.T, subject string, issuedAt, expiresAt time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

// MockRefresher is a mock implementation of the Refresher interface
type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) Refresh(ctx context.Context, token string) (*types.Session, error) {
	args := m.Called(ctx, token)
	sess, _ := args.Get(0).(*types.Session)
	return sess, args.Error(1)
}

type fakeNavigator struct {
	mu       sync.Mutex
	location string
	visited  []string
}

func (n *fakeNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *fakeNavigator) Navigate(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = target
	n.visited = append(n.visited, target)
}

func (n *fakeNavigator) Visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visited...)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(typ EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	clock     *clockwork.FakeClock
	store     *memory.Store
	refresher *MockRefresher
	navigator *fakeNavigator
	events    *eventLog
	manager   *Manager
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		clock:     clockwork.NewFakeClockAt(base),
		store:     memory.New(),
		refresher: new(MockRefresher),
		navigator: &fakeNavigator{location: "/dashboard"},
		events:    &eventLog{},
	}
	opts := Options{
		Store:     f.store,
		Refresher: f.refresher,
		Navigator: f.navigator,
		Clock:     f.clock,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.manager = NewManager(opts)
	f.manager.Subscribe(f.events.record)
	return f
}

func (f *fixture) login(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	now := f.clock.Now()
	raw := mintToken(t, "driver-42", now, now.Add(expiresIn))
	require.NoError(t, f.manager.SetSession(context.Background(), &types.Session{Token: raw, User: []byte(`{"id":"driver-42"}`)}))
	return raw
}

func TestSetSession_ClaimsRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	issued := base.Add(-time.Minute)
	expires := base.Add(time.Hour)
	raw := mintToken(t, "dispatcher-7", issued, expires)

	require.NoError(t, f.manager.SetSession(context.Background(), &types.Session{Token: raw}))

	claims, err := f.manager.Claims()
	require.NoError(t, err)
	assert.Equal(t, "dispatcher-7", claims.Subject)
	assert.True(t, issued.Equal(claims.IssuedAt))
	assert.True(t, expires.Equal(claims.ExpiresAt))
	assert.Equal(t, raw, f.manager.Token())
	assert.True(t, f.manager.IsValid())
	assert.Equal(t, StateValid, f.manager.State())

	for _, k := range store.TokenKeys {
		v, err := f.store.Get(context.Background(), k)
		require.NoError(t, err)
		assert.Equal(t, raw, v)
	}
}

func TestSetSession_Rejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.SetSession(ctx, nil), types.ErrNotAuthenticated)
	assert.ErrorIs(t, f.manager.SetSession(ctx, &types.Session{}), types.ErrNotAuthenticated)
	assert.Error(t, f.manager.SetSession(ctx, &types.Session{Token: "not-a-jwt"}))

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"})
	raw, err := noExp.SignedString([]byte("k"))
	require.NoError(t, err)
	assert.ErrorIs(t, f.manager.SetSession(ctx, &types.Session{Token: raw}), ErrNoExpiry)

	assert.False(t, f.manager.IsLoggedIn())
	assert.Zero(t, f.store.Len())
}

func TestIsValid_ExpiredTokenAlwaysInvalid(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	f.refresher.On("Refresh", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil, errors.New("unavailable")).Once()

	f.clock.Advance(2 * time.Minute)
	assert.False(t, f.manager.IsValid())

	go f.manager.Refresh(context.Background())
	<-started
	assert.True(t, f.manager.IsRefreshing())
	assert.False(t, f.manager.IsValid())
	close(release)

	assert.Eventually(t, func() bool { return !f.manager.IsRefreshing() }, time.Second, time.Millisecond)
	assert.False(t, f.manager.IsValid())
}

func TestRefresh_SingleFlight(t *testing.T) {
	f := newFixture(t, nil)
	old := f.login(t, 5*time.Minute)
	fresh := mintToken(t, "driver-42", base, base.Add(time.Hour))

	started := make(chan struct{})
	release := make(chan struct{})
	f.refresher.On("Refresh", mock.Anything, old).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&types.Session{Token: fresh}, nil).Once()

	results := make([]string, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = f.manager.Refresh(context.Background())
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = f.manager.Refresh(context.Background())
	}()

	require.Eventually(t, func() bool { return f.manager.refreshWaiters() == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, fresh, results[0])
	assert.Equal(t, fresh, results[1])
	f.refresher.AssertNumberOfCalls(t, "Refresh", 1)

	assert.Len(t, f.events.ofType(EventTokenRefreshed), 1)
	assert.Equal(t, fresh, f.manager.Token())
}

func TestRefresh_CallerCancellationDoesNotFailOthers(t *testing.T) {
	f := newFixture(t, nil)
	old := f.login(t, 5*time.Minute)
	fresh := mintToken(t, "driver-42", base, base.Add(time.Hour))

	started := make(chan struct{})
	release := make(chan struct{})
	var refreshCtx context.Context
	f.refresher.On("Refresh", mock.Anything, old).
		Run(func(args mock.Arguments) {
			refreshCtx = args.Get(0).(context.Context)
			close(started)
			<-release
		}).
		Return(&types.Session{Token: fresh}, nil).Once()

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.manager.Refresh(ctxA)
		errA <- err
	}()
	<-started

	type result struct {
		token string
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		tok, err := f.manager.Refresh(context.Background())
		resB <- result{tok, err}
	}()
	require.Eventually(t, func() bool { return f.manager.refreshWaiters() == 2 }, time.Second, time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	assert.True(t, f.manager.IsRefreshing())

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, fresh, b.token)
	assert.NoError(t, refreshCtx.Err())
	assert.Zero(t, f.manager.RefreshAttempts())
	assert.True(t, f.manager.IsLoggedIn())
}

func TestRefresh_LogoutDuringRefreshKeepsStoreCleared(t *testing.T) {
	f := newFixture(t, nil)
	old := f.login(t, 5*time.Minute)
	fresh := mintToken(t, "driver-42", base, base.Add(time.Hour))

	started := make(chan struct{})
	release := make(chan struct{})
	f.refresher.On("Refresh", mock.Anything, old).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&types.Session{Token: fresh}, nil).Once()

	ctx := context.Background()
	errc := make(chan error, 1)
	go func() {
		_, err := f.manager.Refresh(ctx)
		errc <- err
	}()
	<-started

	assert.True(t, f.manager.Logout(ctx))
	close(release)

	assert.ErrorIs(t, <-errc, types.ErrNotAuthenticated)
	assert.False(t, f.manager.IsLoggedIn())
	assert.Empty(t, f.manager.Token())
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.events.ofType(EventTokenRefreshed))

	next := NewManager(Options{Store: f.store, Clock: f.clock})
	assert.ErrorIs(t, next.Restore(ctx), types.ErrNotAuthenticated)
	assert.False(t, next.IsLoggedIn())
}

func TestRefresh_StaleResultLeavesNewSessionAlone(t *testing.T) {
	for name, outcome := range map[string]struct {
		sess *types.Session
		err  error
	}{
		"success": {sess: &types.Session{Token: mintToken(t, "driver-42", base, base.Add(time.Hour))}},
		"failure": {err: &types.ClassifiedError{Kind: types.KindAuthExpired, HTTPStatus: 401}},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			old := f.login(t, 5*time.Minute)

			started := make(chan struct{})
			release := make(chan struct{})
			f.refresher.On("Refresh", mock.Anything, old).
				Run(func(mock.Arguments) {
					close(started)
					<-release
				}).
				Return(outcome.sess, outcome.err).Once()

			ctx := context.Background()
			errc := make(chan error, 1)
			go func() {
				_, err := f.manager.Refresh(ctx)
				errc <- err
			}()
			<-started

			relogin := mintToken(t, "driver-42", base, base.Add(2*time.Hour))
			require.NoError(t, f.manager.SetSession(ctx, &types.Session{Token: relogin}))
			close(release)
			assert.Error(t, <-errc)

			assert.Equal(t, relogin, f.manager.Token())
			tok, err := store.LoadToken(ctx, f.store)
			require.NoError(t, err)
			assert.Equal(t, relogin, tok)
			assert.Zero(t, f.manager.RefreshAttempts())
			assert.Equal(t, StateValid, f.manager.State())
			assert.Empty(t, f.events.ofType(EventTokenRefreshed))
		})
	}
}

func TestAuthToken_WaitsForInFlightRefresh(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, 5*time.Minute)
	fresh := mintToken(t, "driver-42", base, base.Add(time.Hour))

	started := make(chan struct{})
	release := make(chan struct{})
	f.refresher.On("Refresh", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&types.Session{Token: fresh}, nil).Once()

	go f.manager.Refresh(context.Background())
	<-started

	got := make(chan string, 1)
	go func() {
		tok, _ := f.manager.AuthToken(context.Background())
		got <- tok
	}()

	select {
	case <-got:
		t.Fatal("AuthToken returned while refresh was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, fresh, <-got)
}

func TestCheck_RefreshesNearExpiry(t *testing.T) {
	f := newFixture(t, nil)
	old := f.login(t, 8*time.Minute)
	fresh := mintToken(t, "driver-42", base, base.Add(time.Hour))

	f.refresher.On("Refresh", mock.Anything, old).
		Return(&types.Session{Token: fresh, User: []byte(`{"id":"driver-42"}`)}, nil).Once()

	f.manager.Check(context.Background())

	f.refresher.AssertExpectations(t)
	refreshed := f.events.ofType(EventTokenRefreshed)
	require.Len(t, refreshed, 1)
	assert.Equal(t, fresh, refreshed[0].Token)
	assert.JSONEq(t, `{"id":"driver-42"}`, string(refreshed[0].User))
	assert.Equal(t, StateValid, f.manager.State())
	assert.Empty(t, f.events.ofType(EventTokenWarning))

	tok, err := store.LoadToken(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, fresh, tok)
}

func TestCheck_NothingToDoWhenFarFromExpiry(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, time.Hour)

	f.manager.Check(context.Background())

	f.refresher.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	assert.Empty(t, f.events.ofType(EventTokenWarning))
	assert.Equal(t, StateValid, f.manager.State())
}

func TestCheck_WarningSuppressedForOneMinute(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxRefreshAttempts = 10 })
	f.login(t, 4*time.Minute+30*time.Second)
	f.refresher.On("Refresh", mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))

	ctx := context.Background()
	f.manager.Check(ctx)
	warnings := f.events.ofType(EventTokenWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, 4, warnings[0].MinutesLeft)
	assert.Equal(t, StateNearExpiry, f.manager.State())

	f.clock.Advance(30 * time.Second)
	f.manager.Check(ctx)
	assert.Len(t, f.events.ofType(EventTokenWarning), 1)

	f.clock.Advance(30 * time.Second)
	f.manager.Check(ctx)
	warnings = f.events.ofType(EventTokenWarning)
	require.Len(t, warnings, 2)
	assert.Equal(t, 3, warnings[1].MinutesLeft)
	assert.Equal(t, 3, f.manager.RefreshAttempts())
}

func TestRefresh_ExhaustionForcesLogout(t *testing.T) {
	f := newFixture(t, nil)
	old := f.login(t, 5*time.Minute)

	unauthorized := &types.ClassifiedError{Kind: types.KindAuthExpired, HTTPStatus: 401}
	f.refresher.On("Refresh", mock.Anything, old).Return(nil, unauthorized).Times(3)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := f.manager.Refresh(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrRefreshFailed)
		assert.ErrorIs(t, err, types.ErrSessionExpired)
		if i < 3 {
			assert.True(t, f.manager.IsLoggedIn())
			assert.Equal(t, i, f.manager.RefreshAttempts())
			assert.Empty(t, f.events.ofType(EventLogout))
		}
	}

	logouts := f.events.ofType(EventLogout)
	require.Len(t, logouts, 1)
	assert.Equal(t, ReasonSessionExpired, logouts[0].Reason)
	assert.False(t, f.manager.IsLoggedIn())
	assert.Zero(t, f.store.Len())
	assert.Equal(t, []string{"/login?reason=session-expired"}, f.navigator.Visited())

	tok, err := f.manager.AuthToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
	f.refresher.AssertExpectations(t)
}

func TestCheck_InactivityLogsOutOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, 2*time.Hour)
	ctx := context.Background()

	f.clock.Advance(29 * time.Minute)
	f.manager.Check(ctx)
	assert.True(t, f.manager.IsLoggedIn())

	f.clock.Advance(time.Minute)
	f.manager.Check(ctx)
	f.manager.Check(ctx)
	f.clock.Advance(time.Hour)
	f.manager.Check(ctx)

	logouts := f.events.ofType(EventLogout)
	require.Len(t, logouts, 1)
	assert.Equal(t, ReasonAutoLogout, logouts[0].Reason)
	assert.Equal(t, []string{"/login?reason=auto-logout"}, f.navigator.Visited())
	f.refresher.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestCheck_ActivityPostponesAutoLogout(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, 2*time.Hour)

	f.clock.Advance(20 * time.Minute)
	f.manager.Tracker().OnActivity()
	f.clock.Advance(20 * time.Minute)
	f.manager.Check(context.Background())

	assert.True(t, f.manager.IsLoggedIn())
	assert.Empty(t, f.events.ofType(EventLogout))
}

func TestLogout_Manual(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, time.Hour)
	f.navigator.location = "/login"

	assert.True(t, f.manager.Logout(context.Background()))
	assert.False(t, f.manager.Logout(context.Background()))

	logouts := f.events.ofType(EventLogout)
	require.Len(t, logouts, 1)
	assert.Equal(t, ReasonManual, logouts[0].Reason)
	assert.Empty(t, f.navigator.Visited(), "already on the login view")
	assert.Zero(t, f.store.Len())
	assert.Equal(t, StateLoggedOut, f.manager.State())
}

func TestHandleUnauthorized(t *testing.T) {
	t.Run("refresh succeeds", func(t *testing.T) {
		f := newFixture(t, nil)
		f.login(t, time.Hour)
		fresh := mintToken(t, "driver-42", base, base.Add(2*time.Hour))
		f.refresher.On("Refresh", mock.Anything, mock.Anything).Return(&types.Session{Token: fresh}, nil).Once()

		f.manager.HandleUnauthorized(context.Background())

		assert.True(t, f.manager.IsLoggedIn())
		assert.Equal(t, fresh, f.manager.Token())
	})

	t.Run("refresh impossible", func(t *testing.T) {
		f := newFixture(t, nil)
		f.login(t, time.Hour)
		f.refresher.On("Refresh", mock.Anything, mock.Anything).Return(nil, errors.New("401")).Once()

		f.manager.HandleUnauthorized(context.Background())

		assert.False(t, f.manager.IsLoggedIn())
		require.Len(t, f.events.ofType(EventLogout), 1)
		assert.Equal(t, []string{"/login?reason=session-expired"}, f.navigator.Visited())
	})

	t.Run("caller cancelled", func(t *testing.T) {
		f := newFixture(t, nil)
		f.login(t, time.Hour)
		fresh := mintToken(t, "driver-42", base, base.Add(2*time.Hour))

		started := make(chan struct{})
		release := make(chan struct{})
		f.refresher.On("Refresh", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(&types.Session{Token: fresh}, nil).Once()

		ctx, cancel := context.WithCancel(context.Background())
		handled := make(chan struct{})
		go func() {
			f.manager.HandleUnauthorized(ctx)
			close(handled)
		}()
		<-started
		cancel()
		<-handled

		assert.True(t, f.manager.IsLoggedIn())
		assert.Empty(t, f.events.ofType(EventLogout))

		close(release)
		assert.Eventually(t, func() bool { return f.manager.Token() == fresh }, time.Second, time.Millisecond)
	})

	t.Run("no session", func(t *testing.T) {
		f := newFixture(t, nil)

		f.manager.HandleUnauthorized(context.Background())

		assert.Empty(t, f.events.ofType(EventLogout))
		assert.Equal(t, []string{"/login?reason=session-expired"}, f.navigator.Visited())
		f.refresher.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		f := newFixture(t, nil)
		raw := mintToken(t, "driver-42", base, base.Add(time.Hour))
		require.NoError(t, f.store.Set(ctx, "authToken", raw))

		require.NoError(t, f.manager.Restore(ctx))
		assert.True(t, f.manager.IsLoggedIn())
		assert.Equal(t, raw, f.manager.Token())
		v, err := f.store.Get(ctx, "token")
		require.NoError(t, err)
		assert.Equal(t, raw, v)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t, nil)
		raw := mintToken(t, "driver-42", base.Add(-2*time.Hour), base.Add(-time.Hour))
		require.NoError(t, store.SaveSession(ctx, f.store, raw, nil))

		assert.ErrorIs(t, f.manager.Restore(ctx), types.ErrSessionExpired)
		assert.False(t, f.manager.IsLoggedIn())
		assert.Zero(t, f.store.Len())
	})

	t.Run("empty store", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.ErrorIs(t, f.manager.Restore(ctx), types.ErrNotAuthenticated)
	})
}

func TestStart_TickerDrivesChecks(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.CheckInterval = time.Minute
		o.AutoLogoutTime = time.Minute
	})
	f.login(t, 2*time.Hour)

	f.manager.Start(context.Background())
	f.manager.Start(context.Background())
	assert.True(t, f.manager.Running())

	f.clock.BlockUntil(1)
	f.clock.Advance(time.Minute)

	assert.Eventually(t, func() bool {
		return len(f.events.ofType(EventLogout)) == 1
	}, time.Second, time.Millisecond)
	assert.False(t, f.manager.Running(), "logout stops the periodic check")
}

func TestStart_StopsWithContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	f.manager.Start(ctx)
	require.True(t, f.manager.Running())
	cancel()

	assert.Eventually(t, func() bool { return !f.manager.Running() }, time.Second, time.Millisecond)

	f.manager.Start(context.Background())
	assert.True(t, f.manager.Running())
	f.manager.Stop()
	assert.False(t, f.manager.Running())
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "/login", LoginURL("/login", ""))
	assert.Equal(t, "/login?reason=auto-logout", LoginURL("/login", ReasonAutoLogout))
}
