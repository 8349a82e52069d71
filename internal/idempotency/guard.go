// Package idempotency implements the once-per-token-per-day admission guard used in front of
// the request queue.
package idempotency

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL is how long a mark survives. It covers the rest of the calendar day in any zone.
const DefaultTTL = 24 * time.Hour

// Key identifies one tokenKey on one calendar day: token:{tokenKey}:{yyyy-MM-dd}.
type Key string

// NewKey builds the guard key for tokenKey on the calendar day of t.
func NewKey(tokenKey string, t time.Time) Key {
	return Key(fmt.Sprintf("token:%s:%s", tokenKey, t.Format("2006-01-02")))
}

func (k Key) String() string { return string(k) }

// KeyStore is a keyed store with TTLs and an atomic set-if-absent.
type KeyStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	// SetIfAbsent stores key with ttl unless it is already present. It reports whether this
	// call created the entry.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Guard answers "has this tokenKey been admitted today" and performs the admission.
type Guard struct {
	store    KeyStore
	ttl      time.Duration
	location *time.Location
	nowFunc  func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(g *Guard) { g.nowFunc = now }
}

// NewGuard returns a Guard over store. Days are computed in loc (UTC when nil). A non-positive
// ttl falls back to DefaultTTL.
func NewGuard(store KeyStore, ttl time.Duration, loc *time.Location, opts ...Option) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if loc == nil {
		loc = time.UTC
	}
	g := &Guard{
		store:    store,
		ttl:      ttl,
		location: loc,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// KeyFor returns today's key for tokenKey. Compute it once per request and pass it to the
// other methods so a request straddling midnight checks and marks the same day.
func (g *Guard) KeyFor(tokenKey string) Key {
	return NewKey(tokenKey, g.nowFunc().In(g.location))
}

// KeyForDay returns the key for tokenKey on the calendar day of t, taken in the guard's zone.
func (g *Guard) KeyForDay(tokenKey string, t time.Time) Key {
	return NewKey(tokenKey, t.In(g.location))
}

// SeenToday reports whether key is marked. It is a fast-path check only; MarkSeenToday decides.
func (g *Guard) SeenToday(ctx context.Context, key Key) (bool, error) {
	ok, err := g.store.Exists(ctx, key.String())
	if err != nil {
		return false, fmt.Errorf("check %s: %w", key, err)
	}
	return ok, nil
}

// MarkSeenToday atomically marks key. admitted is true for exactly one caller per key per TTL.
func (g *Guard) MarkSeenToday(ctx context.Context, key Key) (admitted bool, err error) {
	admitted, err = g.store.SetIfAbsent(ctx, key.String(), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return admitted, nil
}

// Release removes a mark. Used when an admitted request could not be enqueued.
func (g *Guard) Release(ctx context.Context, key Key) error {
	if err := g.store.Delete(ctx, key.String()); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
