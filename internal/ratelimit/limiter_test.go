package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var portraitPolicy = Policy{Limit: 3, Window: time.Hour}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemoryLimiter(t *testing.T) (*Limiter, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now
	l := NewLimiter(store, portraitPolicy, "ratelimit", zap.NewNop())
	l.now = clock.Now
	return l, store, clock
}

func newRedisLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLimiter(NewRedisStore(client), portraitPolicy, "ratelimit", zap.NewNop()), mr
}

func TestMemoryLimiter_RejectsAfterLimit(t *testing.T) {
	l, _, clock := newMemoryLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := l.Reserve(ctx, "203.0.113.9", "/api/portraits/variations")
		require.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, res.Remaining)
	}

	clock.Advance(10 * time.Minute)
	res := l.Reserve(ctx, "203.0.113.9", "/api/portraits/variations")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 50*60, res.RetryAfterSeconds)
	assert.Equal(t, clock.Now().Add(50*time.Minute), res.ResetAt)

	// Other keys and endpoints have their own windows.
	assert.True(t, l.Reserve(ctx, "198.51.100.1", "/api/portraits/variations").Allowed)
	assert.True(t, l.Reserve(ctx, "203.0.113.9", "/api/referrals/scan").Allowed)

	clock.Advance(50 * time.Minute)
	assert.True(t, l.Reserve(ctx, "203.0.113.9", "/api/portraits/variations").Allowed)
}

func TestMemoryLimiter_CheckDoesNotConsume(t *testing.T) {
	l, _, _ := newMemoryLimiter(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res := l.Check(ctx, "k", "/e")
		require.True(t, res.Allowed)
		assert.Equal(t, 3, res.Remaining)
	}

	l.Record(ctx, "k", "/e")
	l.Record(ctx, "k", "/e")
	l.Record(ctx, "k", "/e")

	res := l.Check(ctx, "k", "/e")
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfterSeconds)
}

func TestMemoryLimiter_ReleaseGivesSlotBack(t *testing.T) {
	l, _, _ := newMemoryLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Reserve(ctx, "k", "/e").Allowed)
	}
	l.Release(ctx, "k", "/e")
	assert.True(t, l.Reserve(ctx, "k", "/e").Allowed)
	assert.False(t, l.Reserve(ctx, "k", "/e").Allowed)
}

func TestMemoryLimiter_ConcurrentReserveNeverExceedsLimit(t *testing.T) {
	l, _, _ := newMemoryLimiter(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve(context.Background(), "burst", "/e").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, allowed)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	l, store, clock := newMemoryLimiter(t)
	l.Record(context.Background(), "a", "/e")
	l.Record(context.Background(), "b", "/e")

	assert.Zero(t, store.Cleanup())
	clock.Advance(time.Hour)
	assert.Equal(t, 2, store.Cleanup())
}

func TestRedisLimiter_RejectsAfterLimit(t *testing.T) {
	l, mr := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Reserve(ctx, "203.0.113.9", "/api/portraits/variations").Allowed)
	}

	res := l.Reserve(ctx, "203.0.113.9", "/api/portraits/variations")
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfterSeconds)
	assert.LessOrEqual(t, res.RetryAfterSeconds, 3600)

	// The rejected call did not extend or grow the window.
	count, err := mr.Get("ratelimit:/api/portraits/variations:203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "3", count)

	mr.FastForward(time.Hour)
	assert.True(t, l.Reserve(ctx, "203.0.113.9", "/api/portraits/variations").Allowed)
}

func TestRedisLimiter_CheckRecordRelease(t *testing.T) {
	l, _ := newRedisLimiter(t)
	ctx := context.Background()

	res := l.Check(ctx, "k", "/e")
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)

	res = l.Record(ctx, "k", "/e")
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)

	require.True(t, l.Reserve(ctx, "k", "/e").Allowed)
	require.True(t, l.Reserve(ctx, "k", "/e").Allowed)
	assert.False(t, l.Check(ctx, "k", "/e").Allowed)

	l.Release(ctx, "k", "/e")
	assert.True(t, l.Check(ctx, "k", "/e").Allowed)
}

type brokenStore struct{}

var errStoreDown = errors.New("store down")

func (brokenStore) Get(context.Context, string) (int64, time.Duration, error) {
	return 0, 0, errStoreDown
}

func (brokenStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errStoreDown
}

func (brokenStore) IncrIfBelow(context.Context, string, int64, time.Duration) (bool, int64, time.Duration, error) {
	return false, 0, 0, errStoreDown
}

func (brokenStore) Decr(context.Context, string) error {
	return errStoreDown
}

func TestLimiter_FailsOpen(t *testing.T) {
	l := NewLimiter(brokenStore{}, portraitPolicy, "ratelimit", zap.NewNop())

	res := l.Reserve(context.Background(), "k", "/e")
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
	assert.True(t, l.Check(context.Background(), "k", "/e").Allowed)
}
