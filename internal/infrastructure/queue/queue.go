// Package queue carries background jobs between the API and the worker.
// Every driver delivers at least once; handlers must be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
)

// DefaultMaxAttempts is how many times a job is handed to a handler before it is dead-lettered
const DefaultMaxAttempts = 5

// Handler processes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, job shared.Job) error

// Queue is both ends of a job transport
type Queue interface {
	shared.JobDispatcher
	// Consume blocks, handing jobs to handler until ctx is cancelled
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// New builds the queue selected by cfg.Queue.Driver. rdb is only used by the redis driver.
func New(cfg *config.Config, rdb *redis.Client, logger logrus.FieldLogger) (Queue, error) {
	switch cfg.Queue.Driver {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis queue requires a redis client")
		}
		return NewRedisQueue(rdb, cfg.Queue.RedisKey, cfg.Queue.PollTimeout, logger), nil
	case "kafka":
		if len(cfg.Queue.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka queue requires at least one broker")
		}
		return NewKafkaQueue(cfg.Queue.KafkaBrokers, cfg.Queue.KafkaTopic, cfg.Queue.KafkaGroupID, logger), nil
	case "memory", "":
		return NewMemoryQueue(1024, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

func encode(job shared.Job) ([]byte, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	return raw, nil
}

func decode(raw []byte) (shared.Job, error) {
	var job shared.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return shared.Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, nil
}

// run calls the handler and reports whether the job should be retried
func run(ctx context.Context, handler Handler, job shared.Job, logger logrus.FieldLogger) (retry bool) {
	err := handler(ctx, job)
	if err == nil {
		return false
	}

	fields := logrus.Fields{
		"job_id":   job.ID,
		"job_type": job.Type,
		"job_key":  job.Key,
		"attempt":  job.Attempts + 1,
	}
	if job.Attempts+1 >= DefaultMaxAttempts {
		logger.WithFields(fields).WithError(err).Error("Job failed permanently")
		return false
	}
	logger.WithFields(fields).WithError(err).Warn("Job failed, scheduling retry")
	return true
}
