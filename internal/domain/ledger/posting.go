// internal/domain/ledger/posting.go
package ledger

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is a balance change to post
type Entry struct {
	UserID         uint
	Type           TransactionType
	Amount         decimal.Decimal
	Description    string
	RelatedOrderID *uint
	Metadata       map[string]interface{}
}

// Post applies an entry to the user's balance and appends it to the ledger.
// The user row is locked for the duration of tx; a debit that would take the
// balance below zero fails with ErrInsufficientBalance.
func Post(tx *gorm.DB, entry Entry) (*BalanceTransaction, error) {
	if !entry.Type.Valid() {
		return nil, shared.ErrInvalidInput.WithMessage("unknown transaction type %q", entry.Type)
	}
	amount := shared.RoundMoney(entry.Amount)
	if amount.Sign() <= 0 {
		return nil, shared.ErrInvalidInput.WithMessage("transaction amount must be positive")
	}

	var account user.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "balance").
		First(&account, entry.UserID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("user %d not found", entry.UserID)
		}
		return nil, fmt.Errorf("failed to lock user balance: %w", err)
	}

	balance := shared.RoundMoney(account.Balance.Add(entry.Type.Signed(amount)))
	if balance.Sign() < 0 {
		return nil, shared.ErrInsufficientBalance.WithMessage(
			"Insufficient balance: %s available, %s required", account.Balance.StringFixed(2), amount.StringFixed(2))
	}

	if err := tx.Model(&user.User{}).Where("id = ?", entry.UserID).Update("balance", balance).Error; err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	record := &BalanceTransaction{
		UserID:          entry.UserID,
		TransactionType: entry.Type,
		Amount:          amount,
		BalanceAfter:    balance,
		Description:     entry.Description,
		RelatedOrderID:  entry.RelatedOrderID,
	}
	if len(entry.Metadata) > 0 {
		record.Metadata = datatypes.JSONMap(entry.Metadata)
	}
	if err := tx.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to record balance transaction: %w", err)
	}

	return record, nil
}

// LockAccounts locks the given user rows in ascending id order. Anything that
// posts to more than one balance in a transaction calls it first, so two
// transactions never wait on each other's rows in opposite order. Zero and
// duplicate ids are ignored, as are ids with no row.
func LockAccounts(tx *gorm.DB, ids ...uint) error {
	ordered := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != 0 {
			ordered = append(ordered, id)
		}
	}
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)
	if len(ordered) == 0 {
		return nil
	}

	var locked []uint
	err := tx.Model(&user.User{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ordered).
		Order("id ASC").
		Pluck("id", &locked).Error
	if err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}
	return nil
}

// SettlementLine is one paid order item as seen by the ledger
type SettlementLine struct {
	OrderItemID    uint
	ProductID      *uint
	SellerID       uint
	Quantity       int
	Subtotal       decimal.Decimal
	CommissionRate decimal.Decimal
}

// Settlement describes a paid order to settle
type Settlement struct {
	OrderID     uint
	OrderNumber string
	Lines       []SettlementLine
}

// SettlementResult reports what was posted per order item
type SettlementResult struct {
	Commission       decimal.Decimal
	Earnings         decimal.Decimal
	CommissionByItem map[uint]decimal.Decimal
}

// SettleOrder posts commission to the marketplace account and earnings to
// sellers for every line, and bumps seller total_sales and product sold_count.
// It must run inside the transaction that marks the order paid.
func SettleOrder(tx *gorm.DB, marketplaceAccountID uint, settlement Settlement) (*SettlementResult, error) {
	if err := LockAccounts(tx, settlement.accounts(marketplaceAccountID)...); err != nil {
		return nil, err
	}

	result := &SettlementResult{
		Commission:       decimal.Zero,
		Earnings:         decimal.Zero,
		CommissionByItem: make(map[uint]decimal.Decimal, len(settlement.Lines)),
	}
	orderID := settlement.OrderID

	for _, line := range settlement.Lines {
		subtotal := shared.RoundMoney(line.Subtotal)
		commission := shared.Percent(subtotal, line.CommissionRate)
		earning := subtotal.Sub(commission)
		meta := map[string]interface{}{
			"order_item_id": line.OrderItemID,
			"order_number":  settlement.OrderNumber,
		}

		if commission.Sign() > 0 {
			_, err := Post(tx, Entry{
				UserID:         marketplaceAccountID,
				Type:           TransactionCommission,
				Amount:         commission,
				Description:    fmt.Sprintf("Commission for order %s", settlement.OrderNumber),
				RelatedOrderID: &orderID,
				Metadata:       withRate(meta, line.CommissionRate),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to post commission: %w", err)
			}
		}

		if earning.Sign() > 0 {
			_, err := Post(tx, Entry{
				UserID:         line.SellerID,
				Type:           TransactionEarning,
				Amount:         earning,
				Description:    fmt.Sprintf("Earning from order %s", settlement.OrderNumber),
				RelatedOrderID: &orderID,
				Metadata:       meta,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to post seller earning: %w", err)
			}
		}

		err := tx.Model(&user.SellerProfile{}).
			Where("user_id = ?", line.SellerID).
			UpdateColumn("total_sales", gorm.Expr("total_sales + ?", subtotal)).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update seller sales: %w", err)
		}

		if line.ProductID != nil {
			err := tx.Model(&product.Product{}).
				Where("id = ?", *line.ProductID).
				UpdateColumn("sold_count", gorm.Expr("sold_count + ?", line.Quantity)).Error
			if err != nil {
				return nil, fmt.Errorf("failed to update sold count: %w", err)
			}
		}

		result.Commission = result.Commission.Add(commission)
		result.Earnings = result.Earnings.Add(earning)
		result.CommissionByItem[line.OrderItemID] = commission
	}

	return result, nil
}

// ReversalResult reports what a settlement reversal took back. Shortfall is
// the part that could not be debited because the account had already spent
// or withdrawn it.
type ReversalResult struct {
	Commission decimal.Decimal
	Earnings   decimal.Decimal
	Shortfall  decimal.Decimal
}

// ReverseSettlement takes back the commission and seller earnings SettleOrder
// posted for an order and undoes its total_sales and sold_count bumps. Each
// debit is capped at the account's balance, which never goes negative; the
// uncovered remainder is reported as Shortfall.
func ReverseSettlement(tx *gorm.DB, marketplaceAccountID uint, settlement Settlement) (*ReversalResult, error) {
	if err := LockAccounts(tx, settlement.accounts(marketplaceAccountID)...); err != nil {
		return nil, err
	}

	result := &ReversalResult{Commission: decimal.Zero, Earnings: decimal.Zero, Shortfall: decimal.Zero}
	orderID := settlement.OrderID

	for _, line := range settlement.Lines {
		subtotal := shared.RoundMoney(line.Subtotal)
		commission := shared.Percent(subtotal, line.CommissionRate)
		earning := subtotal.Sub(commission)
		meta := map[string]interface{}{
			"order_item_id": line.OrderItemID,
			"order_number":  settlement.OrderNumber,
		}

		taken, err := debitUpTo(tx, Entry{
			UserID:         marketplaceAccountID,
			Type:           TransactionReversal,
			Amount:         commission,
			Description:    fmt.Sprintf("Commission reversal for order %s", settlement.OrderNumber),
			RelatedOrderID: &orderID,
			Metadata:       withRate(meta, line.CommissionRate),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to reverse commission: %w", err)
		}
		result.Commission = result.Commission.Add(taken)
		result.Shortfall = result.Shortfall.Add(commission.Sub(taken))

		taken, err = debitUpTo(tx, Entry{
			UserID:         line.SellerID,
			Type:           TransactionReversal,
			Amount:         earning,
			Description:    fmt.Sprintf("Earning reversal for order %s", settlement.OrderNumber),
			RelatedOrderID: &orderID,
			Metadata:       meta,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to reverse seller earning: %w", err)
		}
		result.Earnings = result.Earnings.Add(taken)
		result.Shortfall = result.Shortfall.Add(earning.Sub(taken))

		err = tx.Model(&user.SellerProfile{}).
			Where("user_id = ?", line.SellerID).
			UpdateColumn("total_sales", gorm.Expr("total_sales - ?", subtotal)).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update seller sales: %w", err)
		}

		if line.ProductID != nil {
			err := tx.Model(&product.Product{}).
				Where("id = ? AND sold_count >= ?", *line.ProductID, line.Quantity).
				UpdateColumn("sold_count", gorm.Expr("sold_count - ?", line.Quantity)).Error
			if err != nil {
				return nil, fmt.Errorf("failed to update sold count: %w", err)
			}
		}
	}

	return result, nil
}

// debitUpTo posts a debit of at most the account's current balance and
// returns the amount actually taken.
func debitUpTo(tx *gorm.DB, entry Entry) (decimal.Decimal, error) {
	amount := shared.RoundMoney(entry.Amount)
	if amount.Sign() <= 0 {
		return decimal.Zero, nil
	}

	var account user.User
	if err := tx.Select("id", "balance").First(&account, entry.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, shared.ErrNotFound.WithMessage("user %d not found", entry.UserID)
		}
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}

	if account.Balance.LessThan(amount) {
		amount = shared.RoundMoney(account.Balance)
		if entry.Metadata == nil {
			entry.Metadata = map[string]interface{}{}
		}
		entry.Metadata["requested"] = shared.RoundMoney(entry.Amount).StringFixed(2)
	}
	if amount.Sign() <= 0 {
		return decimal.Zero, nil
	}

	entry.Amount = amount
	if _, err := Post(tx, entry); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (s Settlement) accounts(marketplaceAccountID uint) []uint {
	ids := make([]uint, 0, len(s.Lines)+1)
	ids = append(ids, marketplaceAccountID)
	for _, line := range s.Lines {
		ids = append(ids, line.SellerID)
	}
	return ids
}

func withRate(meta map[string]interface{}, rate decimal.Decimal) map[string]interface{} {
	out := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["commission_rate"] = rate.StringFixed(2)
	return out
}
