// Package queue provides the unbounded FIFO between message ingestion and
// the pipeline worker.
package queue

import (
	"context"
	"sync"

	"github.com/cwygoda/vidbot/internal/domain"
)

// Queue is an unbounded FIFO of jobs. Enqueue never blocks; Dequeue blocks
// until a job is available. It assumes a single consumer.
type Queue struct {
	mu    sync.Mutex
	items []domain.Job
	ready chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Enqueue appends a job.
func (q *Queue) Enqueue(job domain.Job) {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest job, waiting until one is
// available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (domain.Job, error) {
	for {
		if job, ok := q.pop(); ok {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return domain.Job{}, ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *Queue) pop() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domain.Job{}, false
	}
	job := q.items[0]
	q.items[0] = domain.Job{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return job, true
}

// Len returns the number of waiting jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
