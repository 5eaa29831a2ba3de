// internal/domain/promo/entity.go
package promo

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a promo code's value is applied
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode represents a redeemable discount code
type PromoCode struct {
	ID                uint                `gorm:"primaryKey" json:"id"`
	Code              string              `gorm:"uniqueIndex;not null;size:50" json:"code"`
	DiscountType      DiscountType        `gorm:"size:20;not null" json:"discount_type"`
	DiscountValue     decimal.Decimal     `gorm:"type:numeric(10,2);not null" json:"discount_value"`
	MinPurchaseAmount decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"min_purchase_amount"`
	MaxDiscount       decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"max_discount"`
	ValidFrom         time.Time           `gorm:"not null" json:"valid_from"`
	ValidTo           time.Time           `gorm:"not null" json:"valid_to"`
	UsageLimit        *int                `json:"usage_limit"`
	UsedCount         int                 `gorm:"not null;default:0" json:"used_count"`
	IsActive          bool                `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// TableName overrides
func (PromoCode) TableName() string { return "promo_codes" }

// IsValid reports whether the code can be applied at now, with the reason when it cannot
func (p *PromoCode) IsValid(now time.Time) (bool, string) {
	if !p.IsActive {
		return false, "Promo code is inactive."
	}
	if now.Before(p.ValidFrom) {
		return false, "Promo code is not yet valid."
	}
	if now.After(p.ValidTo) {
		return false, "Promo code has expired."
	}
	if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
		return false, "Promo code usage limit reached."
	}
	return true, "Promo code is valid."
}

// MeetsMinimum reports whether amount satisfies the minimum purchase, if one is set
func (p *PromoCode) MeetsMinimum(amount decimal.Decimal) bool {
	if !p.MinPurchaseAmount.Valid {
		return true
	}
	return amount.GreaterThanOrEqual(p.MinPurchaseAmount.Decimal)
}

// CalculateDiscount returns the discount for amount. The result never exceeds amount.
func (p *PromoCode) CalculateDiscount(amount decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch p.DiscountType {
	case DiscountPercentage:
		discount = amount.Mul(p.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
		if p.MaxDiscount.Valid {
			discount = decimal.Min(discount, p.MaxDiscount.Decimal)
		}
	default:
		discount = p.DiscountValue
	}

	if discount.Sign() < 0 {
		return decimal.Zero
	}
	return decimal.Min(discount, amount)
}

// Application describes the outcome of applying a code to an amount
type Application struct {
	Code           string          `json:"code"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ValidUntil     *time.Time      `json:"valid_until,omitempty"`
	Applied        bool            `json:"applied"`
	Message        string          `json:"message,omitempty"`
}
