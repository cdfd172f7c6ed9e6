package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var incrScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {current, redis.call('PTTL', KEYS[1])}
`)

var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return {0, current, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, current, redis.call('PTTL', KEYS[1])}
`)

var releaseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current > 0 then
  return redis.call('DECR', KEYS[1])
end
return 0
`)

// RedisStore keeps windows in Redis so limits hold across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func pttl(ms int64) time.Duration {
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// int64s unpacks a script reply of n integers.
func int64s(cmd *redis.Cmd, n int) ([]int64, error) {
	raw, err := cmd.Slice()
	if err != nil {
		return nil, err
	}
	if len(raw) != n {
		return nil, fmt.Errorf("unexpected script reply length %d", len(raw))
	}
	out := make([]int64, n)
	for i, v := range raw {
		x, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected script reply type %T", v)
		}
		out[i] = x
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Duration, error) {
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("error reading rate limit window: %w", err)
	}

	count, err := get.Int64()
	if err == redis.Nil {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("error parsing rate limit counter: %w", err)
	}
	d, _ := ttl.Result()
	if d < 0 {
		d = 0
	}
	return count, d, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	vals, err := int64s(incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()), 2)
	if err != nil {
		return 0, 0, fmt.Errorf("error incrementing rate limit window: %w", err)
	}
	return vals[0], pttl(vals[1]), nil
}

func (s *RedisStore) IncrIfBelow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Duration, error) {
	vals, err := int64s(reserveScript.Run(ctx, s.client, []string{key}, limit, window.Milliseconds()), 3)
	if err != nil {
		return false, 0, 0, fmt.Errorf("error reserving rate limit slot: %w", err)
	}
	return vals[0] == 1, vals[1], pttl(vals[2]), nil
}

func (s *RedisStore) Decr(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.client, []string{key}).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("error releasing rate limit slot: %w", err)
	}
	return nil
}
