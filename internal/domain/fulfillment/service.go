// internal/domain/fulfillment/service.go
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/domain/order"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxKeysPerUpload = 1000

// Service delivers digital keys for paid orders
type Service struct {
	db         *gorm.DB
	logger     logrus.FieldLogger
	dispatcher shared.JobDispatcher
	now        func() time.Time
}

// NewService creates a new fulfillment service
func NewService(db *gorm.DB, logger logrus.FieldLogger, dispatcher shared.JobDispatcher) *Service {
	if dispatcher == nil {
		dispatcher = shared.NoopDispatcher{}
	}
	return &Service{
		db:         db,
		logger:     logger,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AddKeysRequest represents a seller restock of key codes
type AddKeysRequest struct {
	Codes []string `json:"codes" binding:"required,min=1,max=1000"`
}

// AddKeys stores new unused keys for a digital product owned by the seller.
// Blank and repeated codes in the upload are ignored.
func (s *Service) AddKeys(ctx context.Context, sellerID, productID uint, codes []string) (int, error) {
	var p product.Product
	if err := s.db.WithContext(ctx).First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, shared.ErrNotFound.WithMessage("product not found")
		}
		return 0, fmt.Errorf("failed to load product: %w", err)
	}
	if p.SellerID != sellerID {
		return 0, shared.ErrForbidden.WithMessage("product belongs to another seller")
	}
	if !p.IsDigital() {
		return 0, shared.ErrInvalidInput.WithMessage("keys can only be added to digital products")
	}

	seen := make(map[string]struct{}, len(codes))
	keys := make([]DigitalKey, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		keys = append(keys, DigitalKey{ProductID: productID, KeyCode: code})
	}
	if len(keys) == 0 {
		return 0, shared.ErrInvalidInput.WithMessage("no key codes supplied")
	}
	if len(keys) > maxKeysPerUpload {
		return 0, shared.ErrInvalidInput.WithMessage("at most %d keys per upload", maxKeysPerUpload)
	}

	if err := s.db.WithContext(ctx).CreateInBatches(&keys, 200).Error; err != nil {
		return 0, fmt.Errorf("failed to store digital keys: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": productID,
		"seller_id":  sellerID,
		"count":      len(keys),
	}).Info("Digital keys added")
	return len(keys), nil
}

// FulfillOrder delivers one key to every digital item of a paid order that
// has none yet. Each claim runs in its own transaction. Items that cannot be
// served are reported as shortages and left for an operator-triggered retry.
// A digital-only order with every key delivered moves to delivered.
func (s *Service) FulfillOrder(ctx context.Context, orderID uint) (*FulfillmentResult, error) {
	var o order.Order
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_digital = ?", true).Order("id ASC")
		}).
		First(&o, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("order not found")
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !o.IsPaid() || o.Status == order.OrderStatusCancelled || o.Status == order.OrderStatusRefunded {
		return nil, shared.ErrInvalidState.WithMessage("order %s is not eligible for fulfillment", o.OrderNumber)
	}

	result := &FulfillmentResult{OrderID: o.ID, Delivered: []Delivered{}, Shortages: []Shortage{}}
	for _, item := range o.Items {
		if item.ProductID == nil {
			result.Shortages = append(result.Shortages, Shortage{OrderItemID: item.ID, ProductName: item.ProductName})
			continue
		}

		delivered, err := s.fulfillItem(ctx, &o, &item)
		switch {
		case errors.Is(err, errAlreadyDelivered):
			result.AlreadyDelivered++
		case errors.Is(err, shared.ErrKeysOutOfStock):
			result.Shortages = append(result.Shortages, Shortage{
				OrderItemID: item.ID,
				ProductID:   *item.ProductID,
				ProductName: item.ProductName,
			})
		case err != nil:
			return nil, err
		default:
			result.Delivered = append(result.Delivered, *delivered)
		}
	}

	if len(o.Items) > 0 && len(result.Shortages) == 0 {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			completed, err := order.DeliverDigitalOrder(tx, o.ID, s.now())
			result.OrderCompleted = completed
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to complete digital order: %w", err)
		}
	}

	for _, d := range result.Delivered {
		s.notify(ctx, &o, d)
	}
	for _, sh := range result.Shortages {
		s.logger.WithFields(logrus.Fields{
			"order_id":      o.ID,
			"order_item_id": sh.OrderItemID,
			"product_id":    sh.ProductID,
		}).Warn("Digital key shortage, item left undelivered")
	}

	return result, nil
}

var errAlreadyDelivered = errors.New("order item already delivered")

func (s *Service) fulfillItem(ctx context.Context, o *order.Order, item *order.OrderItem) (*Delivered, error) {
	var delivered *Delivered

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&DigitalKeyDelivery{}).Where("order_item_id = ?", item.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check delivery: %w", err)
		}
		if existing > 0 {
			return errAlreadyDelivered
		}

		now := s.now()
		key, err := ClaimKey(tx, *item.ProductID, o.BuyerID, now)
		if err != nil {
			return err
		}

		delivery := DigitalKeyDelivery{OrderItemID: item.ID, KeyID: key.ID, DeliveredAt: now}
		if err := tx.Create(&delivery).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyDelivered
			}
			return fmt.Errorf("failed to record delivery: %w", err)
		}

		delivered = &Delivered{
			OrderItemID: item.ID,
			ProductID:   *item.ProductID,
			ProductName: item.ProductName,
			KeyID:       key.ID,
			code:        key.KeyCode,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivered, nil
}

// ClaimKey locks one unused key of the product, skipping keys locked by
// concurrent claims, and marks it used by buyerID. tx must be a transaction.
func ClaimKey(tx *gorm.DB, productID uint, buyerID *uint, now time.Time) (*DigitalKey, error) {
	var key DigitalKey
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("product_id = ? AND is_used = ?", productID, false).
		Order("id").
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrKeysOutOfStock.WithMessage("no unused keys for product %d", productID)
		}
		return nil, fmt.Errorf("failed to claim digital key: %w", err)
	}

	result := tx.Model(&DigitalKey{}).
		Where("id = ? AND is_used = ?", key.ID, false).
		Updates(map[string]interface{}{
			"is_used":      true,
			"purchased_by": buyerID,
			"purchased_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to mark key used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, shared.ErrKeysOutOfStock.WithMessage("key %d was claimed concurrently", key.ID)
	}

	key.IsUsed = true
	key.PurchasedBy = buyerID
	key.PurchasedAt = &now
	return &key, nil
}

// RetryProduct runs one fulfillment pass over every paid order still waiting
// for keys of the product, typically right after a restock
func (s *Service) RetryProduct(ctx context.Context, productID uint) ([]FulfillmentResult, error) {
	var orderIDs []uint
	err := s.pendingItems(s.db.WithContext(ctx)).
		Where("oi.product_id = ?", productID).
		Distinct().
		Pluck("oi.order_id", &orderIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending orders: %w", err)
	}

	results := make([]FulfillmentResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		res, err := s.FulfillOrder(ctx, id)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// PendingDeliveries reports, per product, paid digital items without a delivery
// next to the number of unused keys available
func (s *Service) PendingDeliveries(ctx context.Context) ([]PendingDelivery, error) {
	var pending []PendingDelivery
	err := s.pendingItems(s.db.WithContext(ctx)).
		Select("oi.product_id AS product_id, MAX(oi.product_name) AS product_name, MAX(oi.seller_id) AS seller_id, COUNT(*) AS pending").
		Where("oi.product_id IS NOT NULL").
		Group("oi.product_id").
		Order("pending DESC").
		Scan(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count pending deliveries: %w", err)
	}
	if len(pending) == 0 {
		return pending, nil
	}

	productIDs := make([]uint, len(pending))
	for i, p := range pending {
		productIDs[i] = p.ProductID
	}

	var stock []struct {
		ProductID uint
		Unused    int64
	}
	err = s.db.WithContext(ctx).Model(&DigitalKey{}).
		Select("product_id, COUNT(*) AS unused").
		Where("product_id IN ? AND is_used = ?", productIDs, false).
		Group("product_id").
		Scan(&stock).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count unused keys: %w", err)
	}

	unused := make(map[uint]int64, len(stock))
	for _, row := range stock {
		unused[row.ProductID] = row.Unused
	}
	for i := range pending {
		pending[i].UnusedKeys = unused[pending[i].ProductID]
	}
	return pending, nil
}

// ListDeliveries returns the keys delivered to a buyer, newest first
func (s *Service) ListDeliveries(ctx context.Context, buyerID uint) ([]DeliveredKey, error) {
	var keys []DeliveredKey
	err := s.db.WithContext(ctx).
		Table("digital_key_deliveries AS d").
		Select("o.id AS order_id, o.order_number, oi.id AS order_item_id, oi.product_name, k.key_code AS code, d.delivered_at").
		Joins("JOIN digital_keys k ON k.id = d.key_id").
		Joins("JOIN order_items oi ON oi.id = d.order_item_id").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Where("o.buyer_id = ?", buyerID).
		Order("d.delivered_at DESC, d.id DESC").
		Scan(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list delivered keys: %w", err)
	}
	return keys, nil
}

// pendingItems selects paid digital order items that have no delivery yet
func (s *Service) pendingItems(db *gorm.DB) *gorm.DB {
	return db.Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Joins("LEFT JOIN digital_key_deliveries d ON d.order_item_id = oi.id").
		Where("oi.is_digital = ? AND d.id IS NULL", true).
		Where("o.payment_status = ?", order.PaymentStatusCompleted).
		Where("o.status NOT IN ?", []order.OrderStatus{order.OrderStatusCancelled, order.OrderStatusRefunded}).
		Where("o.deleted_at IS NULL")
}

func (s *Service) notify(ctx context.Context, o *order.Order, d Delivered) {
	if o.BuyerID == nil {
		return
	}
	payload := shared.DigitalKeyNotifyPayload{
		OrderID:     o.ID,
		OrderItemID: d.OrderItemID,
		BuyerID:     *o.BuyerID,
		ProductName: d.ProductName,
		Code:        d.code,
	}
	key := strconv.FormatUint(uint64(o.ID), 10) + ":" + strconv.FormatUint(uint64(d.OrderItemID), 10)

	job, err := shared.NewJob(shared.JobDigitalKeyNotify, key, payload)
	if err == nil {
		err = s.dispatcher.Enqueue(ctx, job)
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":      o.ID,
			"order_item_id": d.OrderItemID,
		}).Error("Failed to enqueue digital key notification")
	}
}
