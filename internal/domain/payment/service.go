// internal/domain/payment/service.go
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/ledger"
	"github.com/your-org/marketplace-backend/internal/domain/order"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TopUps is the part of the ledger driven by provider events
type TopUps interface {
	CompleteTopUp(ctx context.Context, topUpID uint, paymentID string) (*ledger.BalanceTopUp, error)
	FailTopUp(ctx context.Context, topUpID uint, reason string) (*ledger.BalanceTopUp, error)
}

// Orders is the part of the order service driven by payments
type Orders interface {
	GetOrder(ctx context.Context, id uint) (*order.Order, error)
	CompletePayment(ctx context.Context, orderID uint, source order.PaymentSource, reference string) (*order.PaymentResult, error)
	FailPayment(ctx context.Context, orderID uint, reason string) (*order.Order, error)
}

// Service handles provider webhooks and balance payments
type Service struct {
	db      *gorm.DB
	secrets map[string]string
	topUps  TopUps
	orders  Orders
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewService creates a new payment service
func NewService(db *gorm.DB, cfg *config.Config, topUps TopUps, orders Orders, logger logrus.FieldLogger) *Service {
	return &Service{
		db:      db,
		secrets: cfg.External.Payment.WebhookSecrets,
		topUps:  topUps,
		orders:  orders,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret, the value providers
// send in the signature header
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a provider signature. A "sha256=" prefix is accepted.
func (s *Service) VerifySignature(provider, signature string, body []byte) error {
	secret, ok := s.secrets[provider]
	if !ok || secret == "" {
		return shared.ErrInvalidSignature.WithMessage("unknown payment provider %q", provider)
	}

	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	given, err := hex.DecodeString(signature)
	if err != nil {
		return shared.ErrInvalidSignature
	}
	expected, _ := hex.DecodeString(Sign(secret, body))
	if !hmac.Equal(given, expected) {
		return shared.ErrInvalidSignature
	}
	return nil
}

// IngestWebhook verifies, records and processes a provider event. A redelivered
// event id is reported as a duplicate and has no further effect. Processing
// errors are kept on the stored row for a later replay and do not fail intake.
func (s *Service) IngestWebhook(ctx context.Context, provider, signature string, body []byte) (*IngestResult, error) {
	if err := s.VerifySignature(provider, signature, body); err != nil {
		s.logger.WithField("provider", provider).Warn("Rejected webhook with invalid signature")
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, shared.ErrInvalidInput.WithMessage("malformed webhook payload")
	}
	if err := shared.ValidateStruct(&event); err != nil {
		return nil, err
	}

	var payload datatypes.JSONMap
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, shared.ErrInvalidInput.WithMessage("malformed webhook payload")
	}

	hook := PaymentWebhook{
		Provider:  provider,
		EventType: event.EventType,
		EventID:   event.EventID,
		Payload:   payload,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&hook)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to store webhook: %w", res.Error)
	}

	result := &IngestResult{EventID: event.EventID, EventType: event.EventType}
	if res.RowsAffected == 0 {
		var existing PaymentWebhook
		if err := s.db.WithContext(ctx).Where("event_id = ?", event.EventID).First(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to load webhook: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"provider": provider,
			"event_id": event.EventID,
		}).Info("Duplicate webhook ignored")
		result.WebhookID = existing.ID
		result.Duplicate = true
		result.Processed = existing.Processed
		return result, nil
	}

	result.WebhookID = hook.ID
	if err := s.process(ctx, &hook, &event); err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.Processed = true
	return result, nil
}

// ReplayUnprocessed retries stored events that failed processing, oldest first
func (s *Service) ReplayUnprocessed(ctx context.Context, limit int) ([]IngestResult, error) {
	if limit <= 0 {
		limit = 50
	}

	var hooks []PaymentWebhook
	err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("id ASC").
		Limit(limit).
		Find(&hooks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load unprocessed webhooks: %w", err)
	}

	results := make([]IngestResult, 0, len(hooks))
	for i := range hooks {
		hook := &hooks[i]
		result := IngestResult{WebhookID: hook.ID, EventID: hook.EventID, EventType: hook.EventType}

		event, err := decodeEvent(hook.Payload)
		if err == nil {
			err = s.process(ctx, hook, event)
		}
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Processed = true
		}
		results = append(results, result)
	}
	return results, nil
}

// ListWebhooks returns stored events, optionally only the unprocessed ones
func (s *Service) ListWebhooks(ctx context.Context, unprocessedOnly bool, page, limit int) ([]PaymentWebhook, shared.Pagination, error) {
	page, limit = shared.NormalizePage(page, limit)

	query := s.db.WithContext(ctx).Model(&PaymentWebhook{})
	if unprocessedOnly {
		query = query.Where("processed = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("failed to count webhooks: %w", err)
	}

	var hooks []PaymentWebhook
	err := query.Order("id DESC").Offset(shared.Offset(page, limit)).Limit(limit).Find(&hooks).Error
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return hooks, shared.NewPagination(page, limit, total), nil
}

// PayWithBalance pays one of the buyer's pending orders from their balance
func (s *Service) PayWithBalance(ctx context.Context, buyerID, orderID uint) (*order.PaymentResult, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID == nil || *o.BuyerID != buyerID {
		return nil, shared.ErrNotFound.WithMessage("order not found")
	}
	return s.orders.CompletePayment(ctx, orderID, order.PaymentSourceBalance, "")
}

// process applies an event and records the outcome on the webhook row
func (s *Service) process(ctx context.Context, hook *PaymentWebhook, event *Event) error {
	logger := s.logger.WithFields(logrus.Fields{
		"provider":   hook.Provider,
		"event_id":   hook.EventID,
		"event_type": hook.EventType,
	})

	procErr := s.apply(ctx, hook.Provider, event)
	if errors.Is(procErr, errUnsupportedEvent) {
		logger.Warn("Unsupported webhook event type recorded without action")
		procErr = nil
	}

	updates := map[string]interface{}{}
	if procErr != nil {
		updates["error_message"] = procErr.Error()
		logger.WithError(procErr).Error("Webhook processing failed")
	} else {
		now := s.now()
		updates["processed"] = true
		updates["processed_at"] = now
		updates["error_message"] = ""
		hook.Processed = true
		hook.ProcessedAt = &now
	}

	if err := s.db.WithContext(ctx).Model(hook).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return procErr
}

var errUnsupportedEvent = errors.New("unsupported event type")

func (s *Service) apply(ctx context.Context, provider string, event *Event) error {
	data := event.Data
	reference := data.PaymentID
	if reference == "" {
		reference = provider + ":" + event.EventID
	}

	switch event.EventType {
	case EventTopUpSucceeded:
		if data.TopUpID == 0 {
			return shared.ErrInvalidInput.WithMessage("topup_id is required")
		}
		_, err := s.topUps.CompleteTopUp(ctx, data.TopUpID, reference)
		return err
	case EventTopUpFailed:
		if data.TopUpID == 0 {
			return shared.ErrInvalidInput.WithMessage("topup_id is required")
		}
		_, err := s.topUps.FailTopUp(ctx, data.TopUpID, data.Reason)
		return err
	case EventPaymentSucceeded:
		if data.OrderID == 0 {
			return shared.ErrInvalidInput.WithMessage("order_id is required")
		}
		_, err := s.orders.CompletePayment(ctx, data.OrderID, order.PaymentSourceExternal, reference)
		return err
	case EventPaymentFailed:
		if data.OrderID == 0 {
			return shared.ErrInvalidInput.WithMessage("order_id is required")
		}
		_, err := s.orders.FailPayment(ctx, data.OrderID, data.Reason)
		return err
	default:
		return errUnsupportedEvent
	}
}

func decodeEvent(payload datatypes.JSONMap) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stored payload: %w", err)
	}
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("failed to decode stored payload: %w", err)
	}
	return &event, nil
}
