// Package retry decides whether and when a failed request is issued again.
package retry

import (
	"context"
	"time"

	"github.com/eshaffer321/fleetclient-go/internal/types"
	"github.com/jonboulle/clockwork"
)

// Policy is an exponential backoff policy without jitter
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Decision is the verdict for one failed attempt
type Decision struct {
	Retry bool
	Delay time.Duration
	// Next is the descriptor to re-issue with; only set when Retry is true.
	Next types.RequestContext
}

// NewPolicy builds a policy from config. A nil config yields the defaults;
// a zero BaseDelay falls back to the default.
func NewPolicy(cfg *types.RetryConfig) Policy {
	p := Policy{
		MaxRetries: types.DefaultMaxRetries,
		BaseDelay:  types.DefaultBaseDelay,
	}
	if cfg != nil {
		if cfg.MaxRetries >= 0 {
			p.MaxRetries = cfg.MaxRetries
		}
		if cfg.BaseDelay > 0 {
			p.BaseDelay = cfg.BaseDelay
		}
	}
	return p
}

// ShouldRetry decides on a failed attempt described by rc
func (p Policy) ShouldRetry(err *types.ClassifiedError, rc types.RequestContext) Decision {
	if err == nil || !err.Retryable {
		return Decision{}
	}
	if rc.RetryCount >= p.MaxRetries {
		return Decision{}
	}
	next := rc.NextAttempt()
	return Decision{
		Retry: true,
		Delay: p.Backoff(next.RetryCount),
		Next:  next,
	}
}

// Backoff returns the delay before retry n (1-based): BaseDelay * 2^(n-1)
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return p.BaseDelay << uint(n-1)
}

// Wait blocks for d on clock, returning early with the context error
func Wait(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
