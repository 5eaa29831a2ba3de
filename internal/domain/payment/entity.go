// internal/domain/payment/entity.go
package payment

import (
	"time"

	"gorm.io/datatypes"
)

// Supported webhook event types
const (
	EventTopUpSucceeded   = "topup.succeeded"
	EventTopUpFailed      = "topup.failed"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// PaymentWebhook stores a raw provider event. EventID is unique, so a
// redelivered event is recorded once.
type PaymentWebhook struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Provider     string            `gorm:"size:50;not null;index" json:"provider"`
	EventType    string            `gorm:"size:100;not null" json:"event_type"`
	EventID      string            `gorm:"size:255;not null;uniqueIndex" json:"event_id"`
	Payload      datatypes.JSONMap `gorm:"type:jsonb" json:"payload"`
	Processed    bool              `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
	ErrorMessage string            `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TableName overrides
func (PaymentWebhook) TableName() string { return "payment_webhooks" }

// Event is the provider payload accepted by the webhook endpoint
type Event struct {
	EventID   string    `json:"event_id" binding:"required,max=255"`
	EventType string    `json:"event_type" binding:"required,max=100"`
	Data      EventData `json:"data"`
}

// EventData carries the references an event applies to
type EventData struct {
	TopUpID   uint   `json:"topup_id,omitempty"`
	OrderID   uint   `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// IngestResult reports what happened to one delivered event
type IngestResult struct {
	WebhookID uint   `json:"webhook_id"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Processed bool   `json:"processed"`
	Error     string `json:"error,omitempty"`
}
