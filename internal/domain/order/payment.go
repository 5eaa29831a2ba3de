// internal/domain/order/payment.go
package order

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/domain/ledger"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// PaymentResult reports the outcome of a payment completion
type PaymentResult struct {
	Order          *Order `json:"order"`
	AlreadyPaid    bool   `json:"already_paid"`
	JobEnqueued    bool   `json:"job_enqueued"`
	SettledEntries int    `json:"settled_entries"`
}

// CompletePayment marks an order paid. In one transaction it debits the
// buyer when paying from balance, settles commission and seller earnings,
// and records the status change. The order.paid job is enqueued after
// commit. Completing an already completed payment is a no-op.
func (s *Service) CompletePayment(ctx context.Context, orderID uint, source PaymentSource, reference string) (*PaymentResult, error) {
	result := &PaymentResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.IsPaid() {
			result.AlreadyPaid = true
			return nil
		}
		if order.Status != OrderStatusPending {
			return shared.ErrInvalidState.WithMessage("order %s cannot be paid while %s", order.OrderNumber, order.Status)
		}
		if source == "" {
			source = order.PaymentSource
		}

		var items []OrderItem
		if err := tx.Where("order_id = ?", order.ID).Order("id ASC").Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		settlement := settlementFor(order, items)
		if err := ledger.LockAccounts(tx, accountsFor(order, settlement, s.config.Marketplace.AccountUserID)...); err != nil {
			return err
		}

		relatedOrder := order.ID
		if source == PaymentSourceBalance && order.TotalAmount.Sign() > 0 {
			if order.BuyerID == nil {
				return shared.ErrInvalidState.WithMessage("order %s has no buyer to charge", order.OrderNumber)
			}
			_, err := ledger.Post(tx, ledger.Entry{
				UserID:         *order.BuyerID,
				Type:           ledger.TransactionPurchase,
				Amount:         order.TotalAmount,
				Description:    fmt.Sprintf("Payment for order %s", order.OrderNumber),
				RelatedOrderID: &relatedOrder,
			})
			if err != nil {
				return err
			}
		}

		settled, err := ledger.SettleOrder(tx, s.config.Marketplace.AccountUserID, settlement)
		if err != nil {
			return err
		}
		for itemID, commission := range settled.CommissionByItem {
			err := tx.Model(&OrderItem{}).Where("id = ?", itemID).Update("commission_amount", commission).Error
			if err != nil {
				return fmt.Errorf("failed to record commission: %w", err)
			}
		}
		result.SettledEntries = len(settled.CommissionByItem)

		err = tx.Model(order).Updates(map[string]interface{}{
			"payment_status": PaymentStatusCompleted,
			"payment_source": source,
			"payment_ref":    reference,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		order.PaymentStatus = PaymentStatusCompleted

		return s.transition(tx, order, OrderStatusPaid, fmt.Sprintf("Payment completed via %s", source), order.BuyerID, nil)
	})
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result.Order = order

	if result.AlreadyPaid {
		return result, nil
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"source":       source,
		"total":        order.TotalAmount.StringFixed(2),
	}).Info("Order payment completed")

	result.JobEnqueued = s.enqueuePaid(ctx, order)
	return result, nil
}

// FailPayment records a failed payment attempt. The order stays pending so
// the buyer can retry.
func (s *Service) FailPayment(ctx context.Context, orderID uint, reason string) (*Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.IsPaid() {
			return shared.ErrInvalidState.WithMessage("order %s is already paid", order.OrderNumber)
		}
		if order.PaymentStatus == PaymentStatusFailed {
			return nil
		}

		if err := tx.Model(order).Update("payment_status", PaymentStatusFailed).Error; err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}

		history := OrderStatusHistory{
			OrderID:   order.ID,
			Status:    order.Status,
			Comment:   fmt.Sprintf("Payment failed: %s", reason),
			CreatedAt: s.now(),
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"order_id": orderID, "reason": reason}).Warn("Order payment failed")
	return s.GetOrder(ctx, orderID)
}

// enqueuePaid hands post-payment work (key delivery, confirmation email) to the
// job queue. The payment is already committed, so failures are logged only.
func (s *Service) enqueuePaid(ctx context.Context, order *Order) bool {
	job, err := shared.NewJob(shared.JobOrderPaid, strconv.FormatUint(uint64(order.ID), 10), shared.OrderPaidPayload{OrderID: order.ID})
	if err == nil {
		err = s.dispatcher.Enqueue(ctx, job)
	}
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to enqueue order.paid job")
		return false
	}
	return true
}

func settlementFor(order *Order, items []OrderItem) ledger.Settlement {
	settlement := ledger.Settlement{OrderID: order.ID, OrderNumber: order.OrderNumber}
	for _, item := range items {
		if item.SellerID == nil {
			continue
		}
		settlement.Lines = append(settlement.Lines, ledger.SettlementLine{
			OrderItemID:    item.ID,
			ProductID:      item.ProductID,
			SellerID:       *item.SellerID,
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal,
			CommissionRate: item.CommissionRate,
		})
	}
	return settlement
}

// accountsFor lists every balance a payment or refund of the order touches
func accountsFor(order *Order, settlement ledger.Settlement, marketplaceAccountID uint) []uint {
	ids := []uint{marketplaceAccountID}
	if order.BuyerID != nil {
		ids = append(ids, *order.BuyerID)
	}
	for _, line := range settlement.Lines {
		ids = append(ids, line.SellerID)
	}
	return ids
}
