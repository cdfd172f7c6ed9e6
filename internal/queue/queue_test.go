package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type portraitPayload struct {
	VariationID string `json:"variation_id"`
}

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client), mr
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, JobTypeGeneratePortrait, portraitPayload{VariationID: "a"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, JobTypeGeneratePortrait, portraitPayload{VariationID: "b"})
	require.NoError(t, err)

	job, err := q.Dequeue(ctx, time.Second, JobTypeGeneratePortrait)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id1, job.ID.String())
	assert.Equal(t, defaultMaxRetries, job.MaxRetries)

	var p portraitPayload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, "a", p.VariationID)
}

func TestDequeue_NoTypes(t *testing.T) {
	q, _ := newTestQueue(t)
	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestEnqueue_Delayed(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return start }

	_, err := q.Enqueue(ctx, JobTypeApplyCredit, map[string]string{"k": "v"}, WithDelay(time.Minute))
	require.NoError(t, err)

	stats, err := q.Stats(ctx, JobTypeApplyCredit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Waiting)
	assert.Equal(t, int64(1), stats.Delayed)

	moved, err := q.PromoteDue(ctx, JobTypeApplyCredit, start.Add(30*time.Second))
	require.NoError(t, err)
	assert.Zero(t, moved)

	moved, err = q.PromoteDue(ctx, JobTypeApplyCredit, start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	stats, err = q.Stats(ctx, JobTypeApplyCredit)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)
	assert.Equal(t, int64(0), stats.Delayed)
}

func TestRetry_ExhaustsToFailedList(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, JobTypeGeneratePortrait, portraitPayload{VariationID: "x"}, WithMaxRetry(1))
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, time.Second, JobTypeGeneratePortrait)
	require.NoError(t, err)

	again, err := q.Retry(ctx, *job, errors.New("model overloaded"))
	require.NoError(t, err)
	assert.True(t, again)

	_, err = q.PromoteDue(ctx, JobTypeGeneratePortrait, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	job, err = q.Dequeue(ctx, time.Second, JobTypeGeneratePortrait)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "model overloaded", job.Error)

	again, err = q.Retry(ctx, *job, errors.New("still overloaded"))
	require.NoError(t, err)
	assert.False(t, again)

	stats, err := q.Stats(ctx, JobTypeGeneratePortrait)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestCalculateBackoff(t *testing.T) {
	for retry, base := range map[int]float64{0: 5, 1: 10, 3: 40, 20: 3600} {
		d := calculateBackoff(retry)
		assert.GreaterOrEqual(t, d.Seconds(), base*0.8-1, "retry %d", retry)
		assert.LessOrEqual(t, d.Seconds(), base*1.2, "retry %d", retry)
	}
}

func TestProcessor_ProcessNext(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	p := NewProcessor(q, zap.NewNop(), 1)

	var seen []string
	p.RegisterHandler(JobTypeGeneratePortrait, func(ctx context.Context, job Job) error {
		var payload portraitPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		seen = append(seen, payload.VariationID)
		if payload.VariationID == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	_, err := q.Enqueue(ctx, JobTypeGeneratePortrait, portraitPayload{VariationID: "good"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, JobTypeGeneratePortrait, portraitPayload{VariationID: "bad"})
	require.NoError(t, err)

	handled, err := p.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	handled, err = p.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, handled)

	assert.Equal(t, []string{"good", "bad"}, seen)

	stats, err := q.Stats(ctx, JobTypeGeneratePortrait)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
}

func TestProcessor_RecoversFromPanic(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	p := NewProcessor(q, zap.NewNop(), 1)
	p.RegisterHandler(JobTypeApplyCredit, func(context.Context, Job) error {
		panic("nil map")
	})

	_, err := q.Enqueue(ctx, JobTypeApplyCredit, nil)
	require.NoError(t, err)

	handled, err := p.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, handled)

	stats, err := q.Stats(ctx, JobTypeApplyCredit)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
}

func TestProcessor_StartStop(t *testing.T) {
	q, _ := newTestQueue(t)
	p := NewProcessor(q, zap.NewNop(), 2)
	done := make(chan struct{}, 1)
	p.RegisterHandler(JobTypeApplyCredit, func(context.Context, Job) error {
		done <- struct{}{}
		return nil
	})

	require.NoError(t, p.Start(context.Background()))
	_, err := q.Enqueue(context.Background(), JobTypeApplyCredit, nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}
	p.Stop()
}
