// Package replay rejects signed request values that were already accepted
// inside the acceptance window.
//
// [Guard] first applies the freshness gate (issuedAt within the window) and only
// then consults a [Cache], whose insert-if-absent must be atomic. Caches may
// forget entries older than twice the window; by then the freshness gate
// rejects them anyway.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goStepUp/clock"
)

var (
	// ErrReplayed is returned when a value was already accepted.
	ErrReplayed = errors.New("replay: value already used")
	// ErrStale is returned when issuedAt falls outside the acceptance window.
	ErrStale = errors.New("replay: issued outside acceptance window")
	// ErrMissingValue is returned for empty values.
	ErrMissingValue = errors.New("replay: value required")
	// ErrCacheUnavailable wraps cache backend failures.
	ErrCacheUnavailable = errors.New("replay: cache unavailable")
)

// Cache remembers accepted values.
type Cache interface {
	// Insert stores value and reports true, or reports false when value is
	// already present. The check and the insert are atomic.
	Insert(ctx context.Context, value string, issuedAt time.Time) (bool, error)
}

// Guard combines the freshness gate with a Cache.
type Guard struct {
	cache     Cache
	window    time.Duration
	maxFuture time.Duration
	clock     clock.Clock
}

// NewGuard accepts values issued at most window ago and at most maxFuture ahead.
func NewGuard(cache Cache, window, maxFuture time.Duration, c clock.Clock) (*Guard, error) {
	if cache == nil {
		return nil, errors.New("replay: cache required")
	}
	if window <= 0 {
		return nil, errors.New("replay: window must be > 0")
	}
	if maxFuture < 0 || maxFuture > window {
		return nil, errors.New("replay: max future skew must be between 0 and window")
	}
	return &Guard{cache: cache, window: window, maxFuture: maxFuture, clock: clock.OrSystem(c)}, nil
}

// Window returns the acceptance window.
func (g *Guard) Window() time.Duration { return g.window }

// Accept admits value exactly once while issuedAt is fresh.
func (g *Guard) Accept(ctx context.Context, value string, issuedAt time.Time) error {
	if value == "" {
		return ErrMissingValue
	}
	if err := g.Fresh(issuedAt); err != nil {
		return err
	}

	inserted, err := g.cache.Insert(ctx, value, issuedAt)
	if err != nil {
		if errors.Is(err, ErrCacheUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if !inserted {
		return ErrReplayed
	}
	return nil
}

// Fresh applies only the freshness gate.
func (g *Guard) Fresh(issuedAt time.Time) error {
	now := g.clock.Now()
	if issuedAt.IsZero() {
		return fmt.Errorf("%w: missing issue time", ErrStale)
	}
	if now.Sub(issuedAt) > g.window {
		return ErrStale
	}
	if issuedAt.Sub(now) > g.maxFuture {
		return fmt.Errorf("%w: issued in the future", ErrStale)
	}
	return nil
}
