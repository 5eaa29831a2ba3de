package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
)

// KafkaQueue publishes jobs to a topic keyed by job key, so every job for
// one order lands on the same partition. Offsets are committed only after
// the handler returns.
type KafkaQueue struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger logrus.FieldLogger
}

// NewKafkaQueue creates a writer and a consumer-group reader for topic
func NewKafkaQueue(brokers []string, topic, groupID string, logger logrus.FieldLogger) *KafkaQueue {
	if topic == "" {
		topic = "marketplace.jobs"
	}
	if groupID == "" {
		groupID = "marketplace-worker"
	}
	return &KafkaQueue{
		writer: newKafkaWriter(brokers, topic),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        time.Second,
			CommitInterval: 0,
		}),
		logger: logger,
	}
}

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Enqueue writes the job synchronously
func (q *KafkaQueue) Enqueue(ctx context.Context, job shared.Job) error {
	msg, err := toMessage(job)
	if err != nil {
		return err
	}
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.Type, err)
	}
	return nil
}

// Consume blocks until ctx is cancelled
func (q *KafkaQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to fetch job: %w", err)
		}

		job, err := decode(msg.Value)
		if err != nil {
			q.logger.WithError(err).WithField("offset", msg.Offset).Error("Skipping malformed job")
		} else if run(ctx, handler, job, q.logger) {
			// Retries go to the back of the partition so the offset can advance.
			job.Attempts++
			if err := q.Enqueue(ctx, job); err != nil {
				return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
			}
		}

		if err := q.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

// Close closes the reader and flushes the writer
func (q *KafkaQueue) Close() error {
	return errors.Join(q.reader.Close(), q.writer.Close())
}

func toMessage(job shared.Job) (kafka.Message, error) {
	raw, err := encode(job)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(job.Key),
		Value: raw,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(job.Type)},
		},
		Time: job.EnqueuedAt,
	}, nil
}
