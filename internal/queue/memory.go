package queue

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue closed")

// MemoryQueue is a channel-backed queue for tests and single-process
// deployments without a broker. Failed jobs are requeued once, matching
// the AMQP behavior.
type MemoryQueue struct {
	jobs chan memoryJob

	mu     sync.Mutex
	closed bool
}

type memoryJob struct {
	job         Job
	redelivered bool
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryQueue{jobs: make(chan memoryJob, buffer)}
}

func (q *MemoryQueue) Publish(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.jobs <- memoryJob{job: job}:
		return nil
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handler func(ctx context.Context, job Job) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case mj, ok := <-q.jobs:
			if !ok {
				return ErrClosed
			}
			if err := handler(ctx, mj.job); err != nil && !mj.redelivered {
				select {
				case q.jobs <- memoryJob{job: mj.job, redelivered: true}:
				default:
					// Queue full; the database retry path recovers it.
				}
			}
		}
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
