package ports

import (
	"context"

	"repobuild/internal/types"
)

// QueuePort delivers build jobs at least once. Dequeue blocks until a
// job is available or ctx is done. A job that is neither acked nor
// nacked is redelivered after the queue is reopened. Depth counts jobs
// waiting for a worker.
type QueuePort interface {
	Enqueue(ctx context.Context, repositoryID int64) (types.QueueJob, error)
	Dequeue(ctx context.Context) (types.QueueJob, error)
	Ack(ctx context.Context, job types.QueueJob) error
	Nack(ctx context.Context, job types.QueueJob) error
	Depth(ctx context.Context) (int, error)
}
