package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Background job types
const (
	JobOrderPaid        = "order.paid"
	JobDigitalKeyNotify = "notify.digital_key"
)

// Job is a unit of at-least-once background work. Key identifies the logical
// work item (order id, or order id + item id) and drives consumer-side idempotency.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// IdempotencyKey is the key a consumer marks once the job's side effects are done.
func (j Job) IdempotencyKey() string {
	return j.Type + ":" + j.Key
}

// NewJob builds a job with a fresh id and a JSON-encoded payload
func NewJob(jobType, key string, payload interface{}) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	return Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Key:        key,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// JobDispatcher enqueues background jobs
type JobDispatcher interface {
	Enqueue(ctx context.Context, job Job) error
}

// OrderPaidPayload is carried by JobOrderPaid
type OrderPaidPayload struct {
	OrderID uint `json:"order_id"`
}

// DigitalKeyNotifyPayload is carried by JobDigitalKeyNotify
type DigitalKeyNotifyPayload struct {
	OrderID     uint   `json:"order_id"`
	OrderItemID uint   `json:"order_item_id"`
	BuyerID     uint   `json:"buyer_id"`
	ProductName string `json:"product_name"`
	Code        string `json:"code"`
}

// NoopDispatcher drops every job. Useful where background work is not wired.
type NoopDispatcher struct{}

// Enqueue implements JobDispatcher
func (NoopDispatcher) Enqueue(context.Context, Job) error { return nil }
