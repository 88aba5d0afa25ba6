package adapters

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"repobuild/internal/ports"
	"repobuild/internal/types"
)

var jobSequence atomic.Uint64

func newJobID(now time.Time) string {
	return fmt.Sprintf("%020d-%08d", now.UnixNano(), jobSequence.Add(1))
}

// MemoryQueueAdapter is an in-process FIFO. Jobs are lost when the
// process exits, which is acceptable because repositories stay queued
// in the store and can be released with the schedule command.
type MemoryQueueAdapter struct {
	Clock func() time.Time

	mu      sync.Mutex
	pending []types.QueueJob
	notify  chan struct{}
}

func NewMemoryQueueAdapter() *MemoryQueueAdapter {
	return &MemoryQueueAdapter{Clock: time.Now, notify: make(chan struct{}, 1)}
}

func (q *MemoryQueueAdapter) Enqueue(ctx context.Context, repositoryID int64) (types.QueueJob, error) {
	if err := ctx.Err(); err != nil {
		return types.QueueJob{}, err
	}
	now := q.now()
	job := types.QueueJob{ID: newJobID(now), RepositoryID: repositoryID, EnqueuedAt: now, Attempt: 1}
	q.push(job)
	return job, nil
}

func (q *MemoryQueueAdapter) Dequeue(ctx context.Context) (types.QueueJob, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			job := q.pending[0]
			q.pending = q.pending[1:]
			more := len(q.pending) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return job, nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return types.QueueJob{}, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *MemoryQueueAdapter) Ack(context.Context, types.QueueJob) error {
	return nil
}

func (q *MemoryQueueAdapter) Nack(ctx context.Context, job types.QueueJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job.Attempt++
	q.push(job)
	return nil
}

func (q *MemoryQueueAdapter) Depth(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

func (q *MemoryQueueAdapter) push(job types.QueueJob) {
	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()
	q.signal()
}

func (q *MemoryQueueAdapter) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueueAdapter) now() time.Time {
	if q.Clock == nil {
		return time.Now()
	}
	return q.Clock()
}

var _ ports.QueuePort = (*MemoryQueueAdapter)(nil)
