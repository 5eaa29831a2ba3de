// internal/domain/ledger/entity.go
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionType classifies a ledger entry; the type decides the sign
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionPurchase   TransactionType = "purchase"
	TransactionRefund     TransactionType = "refund"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionCommission TransactionType = "commission"
	TransactionEarning    TransactionType = "earning"
	TransactionReversal   TransactionType = "reversal"
)

// IsCredit reports whether entries of this type increase the balance
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionDeposit, TransactionRefund, TransactionEarning, TransactionCommission:
		return true
	default:
		return false
	}
}

// Valid reports whether t is a known type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionPurchase, TransactionRefund,
		TransactionWithdrawal, TransactionCommission, TransactionEarning, TransactionReversal:
		return true
	}
	return false
}

// Signed applies the type's sign to a positive magnitude
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t.IsCredit() {
		return amount
	}
	return amount.Neg()
}

// BalanceTransaction is an append-only ledger entry
type BalanceTransaction struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	UserID          uint              `gorm:"not null;index:idx_balance_tx_user_created,priority:1" json:"user_id"`
	TransactionType TransactionType   `gorm:"size:20;not null;index" json:"transaction_type"`
	Amount          decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	BalanceAfter    decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"balance_after"`
	Description     string            `gorm:"type:text" json:"description"`
	RelatedOrderID  *uint             `gorm:"index" json:"related_order_id,omitempty"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"index:idx_balance_tx_user_created,priority:2" json:"created_at"`
}

// TopUpStatus tracks a top-up request
type TopUpStatus string

const (
	TopUpPending    TopUpStatus = "pending"
	TopUpProcessing TopUpStatus = "processing"
	TopUpCompleted  TopUpStatus = "completed"
	TopUpFailed     TopUpStatus = "failed"
	TopUpCancelled  TopUpStatus = "cancelled"
)

// PaymentMethod is how a top-up is funded
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodYooKassa     PaymentMethod = "yookassa"
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

var paymentMethodNames = map[PaymentMethod]string{
	PaymentMethodCard:         "Credit/Debit Card",
	PaymentMethodYooKassa:     "YooKassa",
	PaymentMethodStripe:       "Stripe",
	PaymentMethodPayPal:       "PayPal",
	PaymentMethodBankTransfer: "Bank Transfer",
}

// DisplayName returns the human label of the method
func (m PaymentMethod) DisplayName() string {
	if name, ok := paymentMethodNames[m]; ok {
		return name
	}
	return string(m)
}

// BalanceTopUp is a request to add funds, completed by a payment provider event
type BalanceTopUp struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	UserID        uint              `gorm:"not null;index:idx_topup_user_status,priority:1" json:"user_id"`
	Amount        decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	PaymentMethod PaymentMethod     `gorm:"size:50;not null" json:"payment_method"`
	PaymentID     string            `gorm:"size:255;index" json:"payment_id"`
	Status        TopUpStatus       `gorm:"size:20;not null;default:'pending';index:idx_topup_user_status,priority:2" json:"status"`
	PaymentData   datatypes.JSONMap `gorm:"type:jsonb" json:"payment_data,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// TableName overrides
func (BalanceTransaction) TableName() string { return "balance_transactions" }
func (BalanceTopUp) TableName() string       { return "balance_topups" }

// IsFinal reports whether the top-up can no longer change state
func (t *BalanceTopUp) IsFinal() bool {
	return t.Status == TopUpCompleted || t.Status == TopUpFailed || t.Status == TopUpCancelled
}
