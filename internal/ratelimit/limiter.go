// Package ratelimit implements fixed-window request limits keyed by client
// and endpoint.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy is a fixed window: at most Limit uses per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Result describes the state of a window after a call.
type Result struct {
	Allowed           bool      `json:"allowed"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	RetryAfterSeconds int       `json:"retryAfterSeconds"`
	ResetAt           time.Time `json:"resetAt"`
}

// Store keeps window counters. Every method reports the counter after the
// call and the time left in its window (zero when no window is open).
type Store interface {
	Get(ctx context.Context, key string) (int64, time.Duration, error)
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// IncrIfBelow increments only when the counter is below limit.
	IncrIfBelow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Duration, error)
	Decr(ctx context.Context, key string) error
}

// Limiter applies one policy to many keys.
type Limiter struct {
	store  Store
	policy Policy
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewLimiter creates a limiter. Keys are namespaced under prefix.
func NewLimiter(store Store, policy Policy, prefix string, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:  store,
		policy: policy,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Policy returns the limiter's policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

func (l *Limiter) key(key, endpoint string) string {
	return l.prefix + ":" + endpoint + ":" + key
}

func (l *Limiter) result(allowed bool, count int64, ttl time.Duration) Result {
	limit := int64(l.policy.Limit)
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	if ttl <= 0 {
		ttl = l.policy.Window
		if count == 0 {
			ttl = 0
		}
	}

	res := Result{
		Allowed:   allowed,
		Limit:     l.policy.Limit,
		Remaining: int(remaining),
		ResetAt:   l.now().Add(ttl),
	}
	if !allowed {
		res.RetryAfterSeconds = int((ttl + time.Second - 1) / time.Second)
		if res.RetryAfterSeconds < 1 {
			res.RetryAfterSeconds = 1
		}
	}
	return res
}

// failOpen is returned when the counter store is unavailable.
func (l *Limiter) failOpen(op string, err error) Result {
	l.logger.Warn("rate limit store unavailable, allowing request",
		zap.String("op", op),
		zap.Error(err),
	)
	return Result{
		Allowed:   true,
		Limit:     l.policy.Limit,
		Remaining: l.policy.Limit,
		ResetAt:   l.now().Add(l.policy.Window),
	}
}

// Check reports whether one more request would be allowed without using any
// allowance.
func (l *Limiter) Check(ctx context.Context, key, endpoint string) Result {
	count, ttl, err := l.store.Get(ctx, l.key(key, endpoint))
	if err != nil {
		return l.failOpen("check", err)
	}
	return l.result(count < int64(l.policy.Limit), count, ttl)
}

// Record uses one unit of allowance unconditionally.
func (l *Limiter) Record(ctx context.Context, key, endpoint string) Result {
	count, ttl, err := l.store.Incr(ctx, l.key(key, endpoint), l.policy.Window)
	if err != nil {
		return l.failOpen("record", err)
	}
	return l.result(count <= int64(l.policy.Limit), count, ttl)
}

// Reserve atomically checks and uses one unit of allowance. A rejected
// reservation does not count against the window.
func (l *Limiter) Reserve(ctx context.Context, key, endpoint string) Result {
	ok, count, ttl, err := l.store.IncrIfBelow(ctx, l.key(key, endpoint), int64(l.policy.Limit), l.policy.Window)
	if err != nil {
		return l.failOpen("reserve", err)
	}
	return l.result(ok, count, ttl)
}

// Release returns a unit taken by Reserve when the guarded operation was not
// accepted.
func (l *Limiter) Release(ctx context.Context, key, endpoint string) {
	if err := l.store.Decr(ctx, l.key(key, endpoint)); err != nil {
		l.logger.Warn("rate limit release failed", zap.Error(err))
	}
}
