package token

import (
	"encoding/json"
	"sync"

	"github.com/eshaffer321/fleetclient-go/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ErrNoExpiry is returned for tokens without an exp claim
var ErrNoExpiry = errors.New("token has no expiry")

var parser = jwt.NewParser()

// ParseClaims decodes the claims of a JWT without verifying its signature.
// The client holds no key; the backend remains the authority on validity.
func ParseClaims(raw string) (types.Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(raw, &rc); err != nil {
		return types.Claims{}, errors.Wrap(err, "failed to parse token claims")
	}
	if rc.ExpiresAt == nil {
		return types.Claims{}, ErrNoExpiry
	}

	c := types.Claims{
		Subject:   rc.Subject,
		ExpiresAt: rc.ExpiresAt.Time.UTC(),
	}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time.UTC()
	}
	return c, nil
}

// token is an immutable bearer token with lazily parsed claims
type token struct {
	raw  string
	user json.RawMessage

	once   sync.Once
	claims types.Claims
	err    error
}

func newToken(raw string, user json.RawMessage) *token {
	return &token{raw: raw, user: user}
}

func (t *token) Claims() (types.Claims, error) {
	t.once.Do(func() {
		t.claims, t.err = ParseClaims(t.raw)
	})
	return t.claims, t.err
}
