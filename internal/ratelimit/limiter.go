package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimitExceeded is returned when an address used up its daily quota
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrSuspiciousActivity is returned for addresses past twice the daily quota
	ErrSuspiciousActivity = errors.New("suspicious activity")
)

// LimitError is the ErrRateLimitExceeded rejection with the end of the
// address's current window.
type LimitError struct {
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return ErrRateLimitExceeded.Error()
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

const (
	DefaultMaxPerDay = 200
	DefaultWindow    = 24 * time.Hour
)

type Config struct {
	MaxPerDay           int           // Default: 200
	Window              time.Duration // Default: 24 hours
	ResetExpiredWindows bool
	Clock               func() time.Time
}

// Limiter gates registration attempts per source address.
type Limiter struct {
	store  Store
	policy Policy
	clock  func() time.Time
}

func New(store Store, cfg Config) *Limiter {
	if cfg.MaxPerDay <= 0 {
		cfg.MaxPerDay = DefaultMaxPerDay
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Limiter{
		store: store,
		policy: Policy{
			Limit:        cfg.MaxPerDay,
			Window:       cfg.Window,
			ResetExpired: cfg.ResetExpiredWindows,
		},
		clock: cfg.Clock,
	}
}

func (l *Limiter) Limit() int {
	return l.policy.Limit
}

func (l *Limiter) Window() time.Duration {
	return l.policy.Window
}

// Request count above which an address is hard-blocked
func (l *Limiter) SuspiciousThreshold() int {
	return 2 * l.policy.Limit
}

// Rejects addresses whose counted attempts exceed the suspicious threshold.
// It never modifies quota state.
func (l *Limiter) CheckSuspicious(ctx context.Context, address string) error {
	rec, err := l.store.Get(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to read quota: %w", err)
	}

	if rec != nil && rec.RequestCount > l.SuspiciousThreshold() {
		return ErrSuspiciousActivity
	}

	return nil
}

// Counts one attempt from address, or rejects it with a *LimitError
func (l *Limiter) Admit(ctx context.Context, address string) (Decision, error) {
	now := l.clock().UTC()
	decision, err := l.store.Admit(ctx, address, now, l.policy)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to update quota: %w", err)
	}

	if !decision.Allowed {
		resetAt := l.ResetAt(decision.WindowStart)
		return decision, &LimitError{ResetAt: resetAt, RetryAfter: resetAt.Sub(now)}
	}

	return decision, nil
}

// Undoes one Admit for an attempt that did not go through
func (l *Limiter) Release(ctx context.Context, address string) error {
	if err := l.store.Release(ctx, address); err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}

// Discards every quota record regardless of age
func (l *Limiter) Sweep(ctx context.Context) (int64, error) {
	return l.store.Sweep(ctx)
}

func (l *Limiter) Quota(ctx context.Context, address string) (*Record, error) {
	return l.store.Get(ctx, address)
}

// Time at which a window opened at windowStart ends
func (l *Limiter) ResetAt(windowStart time.Time) time.Time {
	return windowStart.Add(l.policy.Window)
}
