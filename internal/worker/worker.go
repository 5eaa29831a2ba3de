// Package worker consumes background jobs: digital key delivery after
// payment and the notification emails that follow it.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/domain/fulfillment"
	"github.com/your-org/marketplace-backend/internal/domain/order"
	"github.com/your-org/marketplace-backend/internal/domain/payment"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/infrastructure/queue"
	"github.com/your-org/marketplace-backend/internal/pkg/email"
)

// Fulfiller delivers digital keys for a paid order
type Fulfiller interface {
	FulfillOrder(ctx context.Context, orderID uint) (*fulfillment.FulfillmentResult, error)
}

// OrderReader loads orders for notification content
type OrderReader interface {
	GetOrder(ctx context.Context, id uint) (*order.Order, error)
}

// Notifier sends buyer emails
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, data email.OrderConfirmationData) error
	SendDigitalKey(ctx context.Context, data email.DigitalKeyData) error
}

// WebhookReplayer reprocesses stored payment events whose first attempt failed
type WebhookReplayer interface {
	ReplayUnprocessed(ctx context.Context, limit int) ([]payment.IngestResult, error)
}

// Options tune the worker loop
type Options struct {
	Concurrency    int
	IdempotencyTTL time.Duration
	ReplayInterval time.Duration
	ReplayBatch    int
}

// Worker routes jobs to handlers
type Worker struct {
	queue     queue.Queue
	store     shared.IdempotencyStore
	orders    OrderReader
	fulfiller Fulfiller
	notifier  Notifier
	replayer  WebhookReplayer
	opts      Options
	logger    logrus.FieldLogger
}

// New creates a worker. replayer may be nil to disable webhook replay.
func New(
	q queue.Queue,
	store shared.IdempotencyStore,
	orders OrderReader,
	fulfiller Fulfiller,
	notifier Notifier,
	replayer WebhookReplayer,
	opts Options,
	logger logrus.FieldLogger,
) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if opts.ReplayBatch <= 0 {
		opts.ReplayBatch = 50
	}
	return &Worker{
		queue:     q,
		store:     store,
		orders:    orders,
		fulfiller: fulfiller,
		notifier:  notifier,
		replayer:  replayer,
		opts:      opts,
		logger:    logger,
	}
}

// Run consumes until ctx is cancelled or a consumer fails
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.queue.Consume(ctx, w.Handle); err != nil {
				fail(fmt.Errorf("consumer stopped: %w", err))
			}
		}()
	}

	if w.replayer != nil && w.opts.ReplayInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.replayLoop(ctx)
		}()
	}

	w.logger.WithField("consumers", w.opts.Concurrency).Info("Worker started")
	wg.Wait()
	w.logger.Info("Worker stopped")
	return firstErr
}

// Handle dispatches one job by type. Returning an error asks the queue to retry.
func (w *Worker) Handle(ctx context.Context, job shared.Job) error {
	log := w.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"job_type": job.Type,
		"job_key":  job.Key,
	})

	var err error
	switch job.Type {
	case shared.JobOrderPaid:
		err = w.handleOrderPaid(ctx, job, log)
	case shared.JobDigitalKeyNotify:
		err = w.handleDigitalKeyNotify(ctx, job)
	default:
		log.Warn("Ignoring job of unknown type")
		return nil
	}

	if err != nil && !retryable(err) {
		log.WithError(err).Warn("Dropping job that cannot succeed")
		return nil
	}
	return err
}

func (w *Worker) handleOrderPaid(ctx context.Context, job shared.Job, log logrus.FieldLogger) error {
	var payload shared.OrderPaidPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return shared.ErrInvalidInput.WithMessage("malformed order.paid payload: %v", err)
	}

	result, err := w.fulfiller.FulfillOrder(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"delivered": len(result.Delivered),
		"shortages": len(result.Shortages),
	}).Info("Order fulfillment finished")

	return w.once(ctx, job.IdempotencyKey(), func() error {
		o, err := w.orders.GetOrder(ctx, payload.OrderID)
		if err != nil {
			return err
		}
		if o.Email == "" {
			return nil
		}
		return w.notifier.SendOrderConfirmation(ctx, confirmationData(o))
	})
}

func (w *Worker) handleDigitalKeyNotify(ctx context.Context, job shared.Job) error {
	var payload shared.DigitalKeyNotifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return shared.ErrInvalidInput.WithMessage("malformed notify.digital_key payload: %v", err)
	}

	return w.once(ctx, job.IdempotencyKey(), func() error {
		o, err := w.orders.GetOrder(ctx, payload.OrderID)
		if err != nil {
			return err
		}
		if o.Email == "" {
			return nil
		}
		return w.notifier.SendDigitalKey(ctx, email.DigitalKeyData{
			EmailTemplateData: email.EmailTemplateData{UserName: recipientName(o), UserEmail: o.Email},
			OrderNumber:       o.OrderNumber,
			ProductName:       payload.ProductName,
			Code:              payload.Code,
		})
	})
}

// once runs fn at most once per key. A failed fn releases the key so a retry can run it.
func (w *Worker) once(ctx context.Context, key string, fn func() error) error {
	marked, err := w.store.MarkProcessed(ctx, key, w.opts.IdempotencyTTL)
	if err != nil {
		return err
	}
	if !marked {
		w.logger.WithField("key", key).Debug("Side effect already done, skipping")
		return nil
	}

	if err := fn(); err != nil {
		if unmarkErr := w.store.Unmark(ctx, key); unmarkErr != nil {
			w.logger.WithError(unmarkErr).WithField("key", key).Error("Failed to release idempotency key")
		}
		return err
	}
	return nil
}

func (w *Worker) replayLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.ReplayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ReplayWebhooks(ctx)
		}
	}
}

// ReplayWebhooks runs one replay pass and logs the outcome
func (w *Worker) ReplayWebhooks(ctx context.Context) {
	results, err := w.replayer.ReplayUnprocessed(ctx, w.opts.ReplayBatch)
	if err != nil {
		w.logger.WithError(err).Error("Webhook replay failed")
		return
	}

	failed := 0
	for _, r := range results {
		if !r.Processed {
			failed++
		}
	}
	if len(results) > 0 {
		w.logger.WithFields(logrus.Fields{
			"replayed": len(results),
			"failed":   failed,
		}).Info("Replayed payment webhooks")
	}
}

// retryable reports whether running the job again could succeed
func retryable(err error) bool {
	kind, ok := shared.KindOf(err)
	if !ok {
		return true
	}
	switch kind {
	case shared.KindNotFound, shared.KindValidation, shared.KindInvalidState, shared.KindForbidden:
		return false
	}
	return true
}

func recipientName(o *order.Order) string {
	if o.ShippingAddress.FullName != "" {
		return o.ShippingAddress.FullName
	}
	return o.Email
}

func confirmationData(o *order.Order) email.OrderConfirmationData {
	items := make([]email.OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, email.OrderItem{
			Name:      item.ProductName,
			SKU:       item.ProductSKU,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
			Total:     item.Subtotal,
			IsDigital: item.IsDigital,
		})
	}

	orderDate := o.CreatedAt
	if o.PaidAt != nil {
		orderDate = *o.PaidAt
	}

	return email.OrderConfirmationData{
		EmailTemplateData: email.EmailTemplateData{UserName: recipientName(o), UserEmail: o.Email},
		OrderNumber:       o.OrderNumber,
		OrderDate:         orderDate.Format("January 2, 2006"),
		Subtotal:          o.Subtotal,
		Discount:          o.DiscountAmount,
		Tax:               o.TaxAmount,
		Shipping:          o.ShippingAmount,
		Total:             o.TotalAmount,
		Currency:          o.Currency,
		Items:             items,
	}
}
