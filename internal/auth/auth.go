// Package auth talks to the fleet authentication endpoints.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/eshaffer321/fleetclient-go/internal/types"
	"github.com/pkg/errors"
)

// ErrMissingToken is returned when an auth endpoint answers 2xx without a token
var ErrMissingToken = errors.New("auth response carried no token")

// Sender performs a request against the API
type Sender interface {
	Send(ctx context.Context, req *types.Request) (*types.Response, error)
}

// Service handles authentication operations
type Service struct {
	sender  Sender
	baseURL string
	logger  types.Logger
}

// NewService creates a new auth service. baseURL is the auth base, e.g.
// https://api.fleetdesk.io/auth.
func NewService(sender Sender, baseURL string, logger types.Logger) *Service {
	return &Service{
		sender:  sender,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Login exchanges credentials for a session
func (s *Service) Login(ctx context.Context, email, password string) (*types.Session, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	// Log request
	if s.logger != nil {
		s.logger.Debug("Login request", "email", email)
	}

	resp, err := s.sender.Send(ctx, &types.Request{
		Method: http.MethodPost,
		URL:    s.baseURL + types.DefaultLoginPath,
		Body: map[string]string{
			"email":    email,
			"password": password,
		},
		Anonymous:        true,
		NoRetry:          true,
		SkipAuthRecovery: true,
	})
	if err != nil {
		return nil, err
	}

	sess, err := decodeSession(resp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse login response")
	}

	if s.logger != nil {
		s.logger.Info("Login successful", "email", email)
	}
	return sess, nil
}

// Refresh exchanges the current token for a new one. A 401 means the
// token can no longer be renewed.
func (s *Service) Refresh(ctx context.Context, token string) (*types.Session, error) {
	if token == "" {
		return nil, types.ErrNotAuthenticated
	}

	resp, err := s.sender.Send(ctx, &types.Request{
		Method:           http.MethodPost,
		URL:              s.baseURL + types.DefaultRefreshPath,
		BearerToken:      token,
		NoRetry:          true,
		SkipAuthRecovery: true,
	})
	if err != nil {
		return nil, err
	}

	sess, err := decodeSession(resp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse refresh response")
	}
	return sess, nil
}

func decodeSession(resp *types.Response) (*types.Session, error) {
	var sess types.Session
	if err := resp.JSON(&sess); err != nil {
		return nil, err
	}
	if sess.Token == "" {
		return nil, ErrMissingToken
	}
	return &sess, nil
}
