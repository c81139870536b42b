package batches

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoJob is returned by Dequeue when nothing arrived before the timeout.
var ErrNoJob = errors.New("batches: no job")

// Job is one queued batch run.
type Job struct {
	BatchID string
}

// Queue hands batch ids from request handlers to dispatcher workers.
//
// A dequeued job stays in a processing list until Ack; Restore puts unacknowledged
// jobs back so a restarted process resumes them.
type Queue interface {
	Enqueue(ctx context.Context, batchID string) error
	Dequeue(ctx context.Context, timeout time.Duration) (Job, error)
	Ack(ctx context.Context, job Job) error
	Restore(ctx context.Context) (int, error)
	// Members lists batch ids waiting or in processing.
	Members(ctx context.Context) ([]string, error)
}

// RedisQueue is a durable list-based queue: LPUSH to enqueue, BLMOVE into a
// processing list to dequeue, LREM from it to acknowledge.
type RedisQueue struct {
	rdb           *redis.Client
	key           string
	processingKey string
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key, processingKey: key + ":processing"}
}

func (q *RedisQueue) Enqueue(ctx context.Context, batchID string) error {
	if batchID == "" {
		return ErrInvalidArgument
	}
	return q.rdb.LPush(ctx, q.key, batchID).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, error) {
	id, err := q.rdb.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrNoJob
	}
	if err != nil {
		return Job{}, err
	}
	return Job{BatchID: id}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	return q.rdb.LRem(ctx, q.processingKey, 1, job.BatchID).Err()
}

// Restore moves every job left in the processing list back to the head of the
// queue, oldest dequeue first. Only one dispatcher process may own a queue key.
func (q *RedisQueue) Restore(ctx context.Context) (int, error) {
	n := 0
	for {
		// The processing list is newest-left, so moving LEFT onto the RIGHT (dequeue)
		// end leaves the oldest job next in line.
		err := q.rdb.LMove(ctx, q.processingKey, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (q *RedisQueue) Members(ctx context.Context) ([]string, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LRange(ctx, q.key, 0, -1)
	processing := pipe.LRange(ctx, q.processingKey, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return append(waiting.Val(), processing.Val()...), nil
}

// MemoryQueue is an in-process Queue for tests and local runs without Redis.
type MemoryQueue struct {
	mu         sync.Mutex
	waiting    []string
	processing []string
	notify     chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, batchID string) error {
	if batchID == "" {
		return ErrInvalidArgument
	}
	q.mu.Lock()
	q.waiting = append(q.waiting, batchID)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		q.mu.Lock()
		if len(q.waiting) > 0 {
			id := q.waiting[0]
			q.waiting = q.waiting[1:]
			q.processing = append(q.processing, id)
			more := len(q.waiting) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return Job{BatchID: id}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-t.C:
			return Job{}, ErrNoJob
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, id := range q.processing {
		if id == job.BatchID {
			q.processing = append(q.processing[:i], q.processing[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) Restore(ctx context.Context) (int, error) {
	q.mu.Lock()
	n := len(q.processing)
	q.waiting = append(q.processing, q.waiting...)
	q.processing = nil
	q.mu.Unlock()
	if n > 0 {
		q.signal()
	}
	return n, nil
}

func (q *MemoryQueue) Members(ctx context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.waiting)+len(q.processing))
	out = append(out, q.waiting...)
	return append(out, q.processing...), nil
}

// Pending returns the number of jobs not yet acknowledged.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting) + len(q.processing)
}
