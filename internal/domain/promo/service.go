// internal/domain/promo/service.go
package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles promo code lookups and redemption
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a new promo service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// CreatePromoRequest represents promo code creation data
type CreatePromoRequest struct {
	Code              string           `json:"code" binding:"required,max=50"`
	DiscountType      DiscountType     `json:"discount_type" binding:"required,oneof=percentage fixed"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MinPurchaseAmount *decimal.Decimal `json:"min_purchase_amount"`
	MaxDiscount       *decimal.Decimal `json:"max_discount"`
	ValidFrom         time.Time        `json:"valid_from" binding:"required"`
	ValidTo           time.Time        `json:"valid_to" binding:"required"`
	UsageLimit        *int             `json:"usage_limit" binding:"omitempty,min=1"`
}

// CreatePromo stores a new promo code
func (s *Service) CreatePromo(ctx context.Context, req *CreatePromoRequest) (*PromoCode, error) {
	if req.DiscountValue.Sign() <= 0 {
		return nil, shared.ErrInvalidInput.WithMessage("Discount value must be positive")
	}
	if req.DiscountType == DiscountPercentage && req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, shared.ErrInvalidInput.WithMessage("Percentage discount cannot exceed 100")
	}
	if !req.ValidTo.After(req.ValidFrom) {
		return nil, shared.ErrInvalidInput.WithMessage("valid_to must be after valid_from")
	}

	code := &PromoCode{
		Code:          normalizeCode(req.Code),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		ValidFrom:     req.ValidFrom,
		ValidTo:       req.ValidTo,
		UsageLimit:    req.UsageLimit,
		IsActive:      true,
	}
	if req.MinPurchaseAmount != nil {
		code.MinPurchaseAmount = decimal.NewNullDecimal(*req.MinPurchaseAmount)
	}
	if req.MaxDiscount != nil {
		code.MaxDiscount = decimal.NewNullDecimal(*req.MaxDiscount)
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&PromoCode{}).Where("code = ?", code.Code).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check promo code: %w", err)
	}
	if existing > 0 {
		return nil, shared.ErrAlreadyExists.WithMessage("Promo code %s already exists", code.Code)
	}

	if err := s.db.WithContext(ctx).Create(code).Error; err != nil {
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}
	return code, nil
}

// Preview evaluates a code against an amount without redeeming it
func (s *Service) Preview(ctx context.Context, code string, amount decimal.Decimal) (*Application, error) {
	promo, err := s.find(s.db.WithContext(ctx), code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &Application{Code: normalizeCode(code), Message: "Invalid promo code"}, nil
		}
		return nil, err
	}

	app := &Application{
		Code:          promo.Code,
		DiscountType:  promo.DiscountType,
		DiscountValue: promo.DiscountValue,
		ValidUntil:    &promo.ValidTo,
	}
	if ok, reason := promo.IsValid(s.now()); !ok {
		app.Message = reason
		return app, nil
	}
	if !promo.MeetsMinimum(amount) {
		app.Message = fmt.Sprintf("Minimum purchase amount of %s required", promo.MinPurchaseAmount.Decimal.StringFixed(2))
		return app, nil
	}

	app.DiscountAmount = promo.CalculateDiscount(amount)
	app.Applied = true
	return app, nil
}

// Apply validates code for amount inside tx and returns the discount.
// The row is locked so the usage check and the later Redeem see the same count.
func Apply(tx *gorm.DB, code string, amount decimal.Decimal, now time.Time) (*PromoCode, decimal.Decimal, error) {
	var promo PromoCode
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", normalizeCode(code)).
		First(&promo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, decimal.Zero, shared.ErrPromoInvalid.WithMessage("Promo code %s does not exist.", normalizeCode(code))
		}
		return nil, decimal.Zero, fmt.Errorf("failed to load promo code: %w", err)
	}

	if ok, reason := promo.IsValid(now); !ok {
		return nil, decimal.Zero, shared.ErrPromoInvalid.WithMessage("%s", reason)
	}
	if !promo.MeetsMinimum(amount) {
		return nil, decimal.Zero, shared.ErrPromoInvalid.WithMessage(
			"Minimum purchase amount of %s required.", promo.MinPurchaseAmount.Decimal.StringFixed(2))
	}

	return &promo, promo.CalculateDiscount(amount), nil
}

// Redeem increments used_count once, refusing when the usage limit is already reached
func Redeem(tx *gorm.DB, promoID uint) error {
	result := tx.Model(&PromoCode{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", promoID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to redeem promo code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrPromoInvalid.WithMessage("Promo code usage limit reached.")
	}
	return nil
}

// SetActive enables or disables a code
func (s *Service) SetActive(ctx context.Context, id uint, active bool) error {
	result := s.db.WithContext(ctx).Model(&PromoCode{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update promo code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound.WithMessage("Promo code not found")
	}
	return nil
}

func (s *Service) find(db *gorm.DB, code string) (*PromoCode, error) {
	var promo PromoCode
	if err := db.Where("code = ?", normalizeCode(code)).First(&promo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("Promo code not found")
		}
		return nil, fmt.Errorf("failed to load promo code: %w", err)
	}
	return &promo, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
