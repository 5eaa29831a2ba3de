// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/ledger"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles order business logic
type Service struct {
	db         *gorm.DB
	config     *config.Config
	logger     logrus.FieldLogger
	dispatcher shared.JobDispatcher
	now        func() time.Time
}

// NewService creates a new order service
func NewService(db *gorm.DB, cfg *config.Config, logger logrus.FieldLogger, dispatcher shared.JobDispatcher) *Service {
	if dispatcher == nil {
		dispatcher = shared.NoopDispatcher{}
	}
	return &Service{
		db:         db,
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page     int         `form:"page,default=1"`
	Limit    int         `form:"limit,default=20"`
	Status   OrderStatus `form:"status"`
	BuyerID  uint        `form:"-"`
	SellerID uint        `form:"-"`
}

// OrderResponse represents order response with pagination
type OrderResponse struct {
	Orders     []Order           `json:"orders"`
	Pagination shared.Pagination `json:"pagination"`
}

// UpdateStatusRequest represents an operator status change
type UpdateStatusRequest struct {
	Status  OrderStatus `json:"status" binding:"required,oneof=processing shipped delivered cancelled refunded"`
	Comment string      `json:"comment"`
}

// ShipRequest represents shipping details supplied by the seller
type ShipRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"required,max=100"`
	Carrier        string `json:"carrier" binding:"required,max=50"`
}

// ListOrders retrieves orders for a buyer or a seller with pagination
func (s *Service) ListOrders(ctx context.Context, req *OrderListRequest) (*OrderResponse, error) {
	page, limit := shared.NormalizePage(req.Page, req.Limit)

	query := s.db.WithContext(ctx).Model(&Order{})
	if req.BuyerID > 0 {
		query = query.Where("buyer_id = ?", req.BuyerID)
	}
	if req.SellerID > 0 {
		query = query.Where("seller_id = ?", req.SellerID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	err := query.
		Preload("Items").
		Order("created_at DESC, id DESC").
		Offset(shared.Offset(page, limit)).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	return &OrderResponse{
		Orders:     orders,
		Pagination: shared.NewPagination(page, limit, total),
	}, nil
}

// GetOrder retrieves a single order by ID
func (s *Service) GetOrder(ctx context.Context, id uint) (*Order, error) {
	return s.loadOrder(s.db.WithContext(ctx).Where("id = ?", id))
}

// GetOrderByNumber retrieves a single order by order number
func (s *Service) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	return s.loadOrder(s.db.WithContext(ctx).Where("order_number = ?", orderNumber))
}

// GetOrderForUser returns an order visible to its buyer or its seller
func (s *Service) GetOrderForUser(ctx context.Context, userID, id uint) (*Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParticipant(order, userID) {
		return nil, shared.ErrNotFound.WithMessage("order not found")
	}
	return order, nil
}

// UpdateStatus moves an order along the status table and records history.
// Payment-driven statuses go through CompletePayment; cancellation and
// refunds restore stock or credit the buyer as needed.
func (s *Service) UpdateStatus(ctx context.Context, orderID uint, req *UpdateStatusRequest, actorID *uint) (*Order, error) {
	switch req.Status {
	case OrderStatusPaid:
		return nil, shared.ErrInvalidState.WithMessage("orders become paid only through payment completion")
	case OrderStatusCancelled:
		return s.Cancel(ctx, orderID, req.Comment, actorID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !order.CanTransitionTo(req.Status) {
			return shared.ErrInvalidState.WithMessage("invalid status transition from %s to %s", order.Status, req.Status)
		}

		if req.Status == OrderStatusRefunded {
			if err := s.refundBuyer(tx, order, req.Comment); err != nil {
				return err
			}
		}

		return s.transition(tx, order, req.Status, req.Comment, actorID, nil)
	})
	if err != nil {
		return nil, err
	}

	return s.GetOrder(ctx, orderID)
}

// Ship records tracking details and marks a seller's paid order shipped
func (s *Service) Ship(ctx context.Context, sellerID, orderID uint, req *ShipRequest) (*Order, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID == nil || *order.SellerID != sellerID {
			return shared.ErrNotFound.WithMessage("order not found")
		}
		if !order.CanTransitionTo(OrderStatusShipped) {
			return shared.ErrInvalidState.WithMessage("order %s cannot be shipped while %s", order.OrderNumber, order.Status)
		}

		extra := map[string]interface{}{
			"tracking_number":  req.TrackingNumber,
			"shipping_carrier": req.Carrier,
		}
		comment := fmt.Sprintf("Shipped via %s, tracking %s", req.Carrier, req.TrackingNumber)
		return s.transition(tx, order, OrderStatusShipped, comment, &sellerID, extra)
	})
	if err != nil {
		return nil, err
	}

	return s.GetOrder(ctx, orderID)
}

// Cancel cancels an order, restoring physical stock. A paid order is
// refunded to the buyer's balance.
func (s *Service) Cancel(ctx context.Context, orderID uint, reason string, actorID *uint) (*Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !order.CanBeCancelled() {
			return shared.ErrInvalidState.WithMessage("order cannot be cancelled in current status: %s", order.Status)
		}

		var items []OrderItem
		if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}
		for _, item := range items {
			if item.IsDigital || item.ProductID == nil {
				continue
			}
			if err := product.RestoreStock(tx, *item.ProductID, item.ProductVariantID, item.Quantity); err != nil {
				return fmt.Errorf("failed to restore inventory: %w", err)
			}
		}

		if order.IsPaid() {
			if err := s.refundBuyer(tx, order, reason); err != nil {
				return err
			}
		}

		comment := "Order cancelled"
		if reason != "" {
			comment = fmt.Sprintf("Order cancelled: %s", reason)
		}
		return s.transition(tx, order, OrderStatusCancelled, comment, actorID, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"order_id": orderID}).Info("Order cancelled")
	return s.GetOrder(ctx, orderID)
}

// refundBuyer credits the order total back to the buyer, reverses the
// commission and seller earnings posted at payment, and marks the payment
// refunded. Earnings a seller has already withdrawn are recorded on the order
// as payout_clawback instead of driving the balance negative.
func (s *Service) refundBuyer(tx *gorm.DB, order *Order, reason string) error {
	if !order.IsPaid() {
		return nil
	}

	var items []OrderItem
	if err := tx.Where("order_id = ?", order.ID).Order("id ASC").Find(&items).Error; err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	marketplaceID := s.config.Marketplace.AccountUserID
	settlement := settlementFor(order, items)
	if err := ledger.LockAccounts(tx, accountsFor(order, settlement, marketplaceID)...); err != nil {
		return err
	}

	if order.BuyerID != nil && order.TotalAmount.Sign() > 0 {
		orderID := order.ID
		_, err := ledger.Post(tx, ledger.Entry{
			UserID:         *order.BuyerID,
			Type:           ledger.TransactionRefund,
			Amount:         order.TotalAmount,
			Description:    fmt.Sprintf("Refund for order %s", order.OrderNumber),
			RelatedOrderID: &orderID,
			Metadata:       map[string]interface{}{"reason": reason},
		})
		if err != nil {
			return fmt.Errorf("failed to refund buyer: %w", err)
		}
	}

	reversed, err := ledger.ReverseSettlement(tx, marketplaceID, settlement)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"payment_status": PaymentStatusRefunded}
	if reversed.Shortfall.Sign() > 0 {
		updates["payout_clawback"] = reversed.Shortfall
		s.logger.WithFields(logrus.Fields{
			"order_id": order.ID,
			"clawback": reversed.Shortfall.StringFixed(2),
			"reason":   reason,
		}).Warn("Refund left earnings to claw back")
	}
	if err := tx.Model(order).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	order.PaymentStatus = PaymentStatusRefunded
	order.PayoutClawback = reversed.Shortfall
	return nil
}

func (s *Service) transition(tx *gorm.DB, order *Order, status OrderStatus, comment string, actorID *uint, extra map[string]interface{}) error {
	return applyTransition(tx, order, status, comment, actorID, extra, s.now())
}

// DeliverDigitalOrder marks a paid order delivered when it has no physical
// lines left to ship. It reports whether the order changed. tx must be a
// transaction and the caller must have delivered every digital line.
func DeliverDigitalOrder(tx *gorm.DB, orderID uint, now time.Time) (bool, error) {
	order, err := lockOrder(tx, orderID)
	if err != nil {
		return false, err
	}
	if order.Status != OrderStatusPaid || !order.IsPaid() {
		return false, nil
	}

	var physical int64
	err = tx.Model(&OrderItem{}).Where("order_id = ? AND is_digital = ?", order.ID, false).Count(&physical).Error
	if err != nil {
		return false, fmt.Errorf("failed to count physical items: %w", err)
	}
	if physical > 0 {
		return false, nil
	}

	if err := applyTransition(tx, order, OrderStatusDelivered, "All digital keys delivered", nil, nil, now); err != nil {
		return false, err
	}
	return true, nil
}

// applyTransition writes the new status, its timestamp, item statuses and a history row
func applyTransition(tx *gorm.DB, order *Order, status OrderStatus, comment string, actorID *uint, extra map[string]interface{}, now time.Time) error {
	updates := map[string]interface{}{"status": status}
	for k, v := range extra {
		updates[k] = v
	}
	switch status {
	case OrderStatusPaid:
		updates["paid_at"] = now
	case OrderStatusShipped:
		updates["shipped_at"] = now
	case OrderStatusDelivered:
		updates["delivered_at"] = now
	}

	if err := tx.Model(order).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if err := tx.Model(&OrderItem{}).Where("order_id = ?", order.ID).Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to update order item status: %w", err)
	}

	history := OrderStatusHistory{
		OrderID:   order.ID,
		Status:    status,
		Comment:   comment,
		CreatedBy: actorID,
		CreatedAt: now,
	}
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("failed to create status history: %w", err)
	}

	order.Status = status
	return nil
}

func (s *Service) loadOrder(query *gorm.DB) (*Order, error) {
	var order Order
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC, id DESC")
		}).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("order not found")
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return &order, nil
}

func lockOrder(tx *gorm.DB, orderID uint) (*Order, error) {
	var order Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("order not found")
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return &order, nil
}

func isParticipant(order *Order, userID uint) bool {
	return (order.BuyerID != nil && *order.BuyerID == userID) ||
		(order.SellerID != nil && *order.SellerID == userID)
}
