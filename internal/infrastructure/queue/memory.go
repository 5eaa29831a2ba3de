package queue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
)

// MemoryQueue is a buffered channel. Jobs do not survive a restart.
type MemoryQueue struct {
	jobs   chan shared.Job
	logger logrus.FieldLogger
}

// NewMemoryQueue creates a queue holding up to size pending jobs
func NewMemoryQueue(size int, logger logrus.FieldLogger) *MemoryQueue {
	return &MemoryQueue{
		jobs:   make(chan shared.Job, size),
		logger: logger,
	}
}

// Enqueue blocks while the buffer is full
func (q *MemoryQueue) Enqueue(ctx context.Context, job shared.Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to enqueue job %s: %w", job.Type, ctx.Err())
	}
}

// Consume blocks until ctx is cancelled
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.jobs:
			if run(ctx, handler, job, q.logger) {
				job.Attempts++
				select {
				case q.jobs <- job:
				default:
					q.logger.WithField("job_id", job.ID).Error("Queue full, dropping retry")
				}
			}
		}
	}
}

// Len reports the number of pending jobs
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Close is a no-op
func (q *MemoryQueue) Close() error {
	return nil
}
