package batches

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFOAckRestore(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "b1"))
	require.NoError(t, q.Enqueue(ctx, "b2"))

	j1, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b1", j1.BatchID)
	j2, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b2", j2.BatchID)

	require.NoError(t, q.Ack(ctx, j1))
	members, err := q.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, members)

	n, err := q.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	again, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b2", again.BatchID)
}

func TestMemoryQueue_RestoreKeepsDequeueOrderAhead(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	for _, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, q.Enqueue(ctx, id))
	}
	for range 2 {
		_, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
	}

	n, err := q.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, want := range []string{"b1", "b2", "b3"} {
		job, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, job.BatchID)
	}
}

func TestMemoryQueue_DequeueTimeoutAndCancel(t *testing.T) {
	q := NewMemoryQueue()
	_, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoJob)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, q.Enqueue(context.Background(), ""), ErrInvalidArgument)
}

// Runs only against a real server: TEST_REDIS_ADDR=127.0.0.1:6379.
func TestRedisQueue_Roundtrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()

	key := "test:callbatch:" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, key, key+":processing")
	q := NewRedisQueue(rdb, key)

	require.NoError(t, q.Enqueue(ctx, "b1"))
	require.NoError(t, q.Enqueue(ctx, "b2"))

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b1", job.BatchID)

	members, err := q.Members(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b1", "b2"}, members)

	job2, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b2", job2.BatchID)
	require.NoError(t, q.Enqueue(ctx, "b3"))

	// Restored jobs go back ahead of waiting ones, oldest dequeue first.
	n, err := q.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, want := range []string{"b1", "b2", "b3"} {
		job, err = q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, job.BatchID)
		require.NoError(t, q.Ack(ctx, job))
	}

	_, err = q.Dequeue(ctx, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoJob)
}
