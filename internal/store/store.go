// Package store defines the persistent key-value store the session lives in.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key is absent
var ErrNotFound = errors.New("key not found")

// Store is a small persistent key-value store
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// TokenKeys are the keys the bearer token is written under. Older
// frontends read one of the later names, so all of them are kept in sync.
var TokenKeys = []string{"token", "authToken", "access_token"}

// UserKey holds the JSON user profile returned with the token
const UserKey = "user"

// SaveSession writes the token under every token key, and the user when present
func SaveSession(ctx context.Context, s Store, token string, user []byte) error {
	for _, k := range TokenKeys {
		if err := s.Set(ctx, k, token); err != nil {
			return err
		}
	}
	if len(user) > 0 {
		return s.Set(ctx, UserKey, string(user))
	}
	return nil
}

// LoadToken returns the first non-empty token found under TokenKeys
func LoadToken(ctx context.Context, s Store) (string, error) {
	for _, k := range TokenKeys {
		v, err := s.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", ErrNotFound
}

// LoadUser returns the stored user profile, if any
func LoadUser(ctx context.Context, s Store) ([]byte, error) {
	v, err := s.Get(ctx, UserKey)
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

// ClearSession removes every session key. All keys are attempted even if one fails.
func ClearSession(ctx context.Context, s Store) error {
	var errs []error
	for _, k := range append(append([]string{}, TokenKeys...), UserKey) {
		if err := s.Remove(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
