package fleet

import (
	"context"

	"github.com/eshaffer321/fleetclient-go/internal/auth"
)

// authService implements the AuthService interface
type authService struct {
	client  *Client
	service *auth.Service
}

// newAuthService creates a new auth service
func newAuthService(client *Client, service *auth.Service) *authService {
	return &authService{
		client:  client,
		service: service,
	}
}

// Login performs authentication
func (a *authService) Login(ctx context.Context, email, password string) error {
	session, err := a.service.Login(ctx, email, password)
	if err != nil {
		a.client.capture(ctx, err)
		return err
	}

	if err := a.client.tokens.SetSession(ctx, session); err != nil {
		return err
	}
	a.client.resume()
	return nil
}

// Logout ends the session
func (a *authService) Logout(ctx context.Context) {
	a.client.tokens.Logout(ctx)
}

// IsAuthenticated reports whether a session with an unexpired token is held
func (a *authService) IsAuthenticated() bool {
	return a.client.tokens.IsLoggedIn() && a.client.tokens.IsValid()
}

// Token returns the current bearer token
func (a *authService) Token() string {
	return a.client.tokens.Token()
}

// Claims returns the decoded claims of the current token
func (a *authService) Claims() (*Claims, error) {
	claims, err := a.client.tokens.Claims()
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

// State returns the token lifecycle state
func (a *authService) State() State {
	return a.client.tokens.State()
}

// Refresh renews the token now
func (a *authService) Refresh(ctx context.Context) error {
	_, err := a.client.tokens.Refresh(ctx)
	return err
}

// Subscribe registers a lifecycle observer
func (a *authService) Subscribe(fn func(Event)) func() {
	return a.client.tokens.Subscribe(fn)
}

// RecordActivity marks the user as active
func (a *authService) RecordActivity() {
	a.client.tracker.OnActivity()
}
