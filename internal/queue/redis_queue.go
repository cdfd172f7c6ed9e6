package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Redis key prefixes
const (
	queuePrefix   = "queue:"
	delayedPrefix = "delayed:"
	failedPrefix  = "failed:"
)

const defaultMaxRetries = 3

// RedisQueue stores jobs as JSON in Redis lists. Delayed jobs wait in a
// sorted set scored by the unix time they become due.
type RedisQueue struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisQueue creates a queue on top of a Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, now: time.Now}
}

// Enqueue adds a job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error) {
	options := &EnqueueOptions{maxRetry: defaultMaxRetries}
	for _, opt := range opts {
		opt(options)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{
		ID:         uuid.New(),
		Type:       jobType,
		Payload:    payloadBytes,
		MaxRetries: options.maxRetry,
		CreatedAt:  q.now(),
	}

	if options.delay > 0 {
		if err := q.schedule(ctx, job, q.now().Add(options.delay)); err != nil {
			return "", err
		}
		return job.ID.String(), nil
	}

	if err := q.push(ctx, job); err != nil {
		return "", err
	}
	return job.ID.String(), nil
}

func (q *RedisQueue) push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, queuePrefix+string(job.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to add job to queue: %w", err)
	}
	return nil
}

func (q *RedisQueue) schedule(ctx context.Context, job Job, at time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	err = q.client.ZAdd(ctx, delayedPrefix+string(job.Type), &redis.Z{
		Score:  float64(at.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add job to delayed queue: %w", err)
	}
	return nil
}

// Dequeue pops the oldest job of any of the given types, waiting up to
// timeout. It returns nil when nothing arrived.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration, types ...JobType) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}
	keys := make([]string, len(types))
	for i, t := range types {
		keys[i] = queuePrefix + string(t)
	}

	result, err := q.client.BRPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error popping job: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid result from BRPOP")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	return &job, nil
}

// Retry schedules a failed job again with backoff, or moves it to the failed
// list once its retries are used up. It reports whether the job will run again.
func (q *RedisQueue) Retry(ctx context.Context, job Job, cause error) (bool, error) {
	job.Attempts++
	job.Error = cause.Error()

	if job.Attempts > job.MaxRetries {
		data, err := json.Marshal(job)
		if err != nil {
			return false, fmt.Errorf("failed to marshal job: %w", err)
		}
		if err := q.client.LPush(ctx, failedPrefix+string(job.Type), data).Err(); err != nil {
			return false, fmt.Errorf("failed to add job to failed list: %w", err)
		}
		return false, nil
	}

	if err := q.schedule(ctx, job, q.now().Add(calculateBackoff(job.Attempts-1))); err != nil {
		return false, err
	}
	return true, nil
}

// PromoteDue moves delayed jobs of a type that are due at now onto the main
// queue and returns how many moved.
func (q *RedisQueue) PromoteDue(ctx context.Context, jobType JobType, now time.Time) (int, error) {
	delayedKey := delayedPrefix + string(jobType)

	due, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("error getting delayed jobs: %w", err)
	}

	moved := 0
	for _, member := range due {
		// Only the caller that removes the member gets to push it.
		removed, err := q.client.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return moved, fmt.Errorf("error removing delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, queuePrefix+string(jobType), member).Err(); err != nil {
			return moved, fmt.Errorf("failed to add job to queue: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Stats reports queue sizes for a job type.
func (q *RedisQueue) Stats(ctx context.Context, jobType JobType) (*Stats, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.LLen(ctx, queuePrefix+string(jobType))
	delayed := pipe.ZCard(ctx, delayedPrefix+string(jobType))
	failed := pipe.LLen(ctx, failedPrefix+string(jobType))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("error reading queue stats: %w", err)
	}
	return &Stats{
		Type:    jobType,
		Waiting: waiting.Val(),
		Delayed: delayed.Val(),
		Failed:  failed.Val(),
	}, nil
}

// Close closes the Redis client
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
