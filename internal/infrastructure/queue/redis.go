package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
)

// RedisQueue keeps pending jobs in a list. A consumer atomically moves a job
// into a processing list with BLMOVE and removes it only after the handler
// returns, so a crashed worker leaves its job behind for Recover.
type RedisQueue struct {
	client      *redis.Client
	key         string
	processing  string
	dead        string
	pollTimeout time.Duration
	logger      logrus.FieldLogger
}

// NewRedisQueue creates a queue on the list named key
func NewRedisQueue(client *redis.Client, key string, pollTimeout time.Duration, logger logrus.FieldLogger) *RedisQueue {
	if key == "" {
		key = "marketplace:jobs"
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisQueue{
		client:      client,
		key:         key,
		processing:  key + ":processing",
		dead:        key + ":dead",
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// Enqueue pushes a job onto the pending list
func (q *RedisQueue) Enqueue(ctx context.Context, job shared.Job) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.Type, err)
	}
	return nil
}

// Consume blocks until ctx is cancelled
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := q.client.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", q.pollTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			q.logger.WithError(err).Error("Failed to read from job queue")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		q.handle(ctx, handler, raw)
	}
}

func (q *RedisQueue) handle(ctx context.Context, handler Handler, raw string) {
	job, err := decode([]byte(raw))
	if err != nil {
		q.logger.WithError(err).Error("Dropping malformed job")
		q.moveTo(ctx, raw, q.dead, nil)
		return
	}

	if !run(ctx, handler, job, q.logger) {
		if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
			q.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to ack job")
		}
		return
	}

	job.Attempts++
	next, err := encode(job)
	if err != nil {
		q.logger.WithError(err).Error("Failed to re-encode job")
		return
	}
	q.moveTo(ctx, raw, q.key, next)
}

// moveTo removes raw from the processing list and pushes next (or raw) onto dest in one transaction
func (q *RedisQueue) moveTo(ctx context.Context, raw, dest string, next []byte) {
	value := []byte(raw)
	if next != nil {
		value = next
	}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, raw)
		pipe.LPush(ctx, dest, value)
		return nil
	})
	if err != nil {
		q.logger.WithError(err).WithField("dest", dest).Error("Failed to move job")
	}
}

// Recover returns jobs abandoned in the processing list to the pending list.
// Call it once at worker start-up, before consumers begin.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.client.LMove(ctx, q.processing, q.key, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover jobs: %w", err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.WithField("count", moved).Warn("Recovered unacknowledged jobs")
	}
	return moved, nil
}

// Depth reports the pending, in-flight and dead-lettered job counts
func (q *RedisQueue) Depth(ctx context.Context) (pending, processing, dead int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, q.key)
	pr := pipe.LLen(ctx, q.processing)
	d := pipe.LLen(ctx, q.dead)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return p.Val(), pr.Val(), d.Val(), nil
}

// Close is a no-op; the client is owned by the caller
func (q *RedisQueue) Close() error {
	return nil
}
