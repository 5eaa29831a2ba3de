// internal/domain/user/admin_service.go
package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// AdminService handles seller administration
type AdminService struct {
	db     *gorm.DB
	config *config.Config
}

// NewAdminService creates a new admin service
func NewAdminService(db *gorm.DB, cfg *config.Config) *AdminService {
	return &AdminService{
		db:     db,
		config: cfg,
	}
}

// SellerListRequest represents seller list query parameters
type SellerListRequest struct {
	Page     int   `form:"page,default=1"`
	Limit    int   `form:"limit,default=20"`
	Approved *bool `form:"approved"`
}

// SellerListResponse represents a page of seller profiles
type SellerListResponse struct {
	Sellers    []SellerProfile   `json:"sellers"`
	Pagination shared.Pagination `json:"pagination"`
}

// CommissionUpdateRequest changes a seller's commission rate for future orders
type CommissionUpdateRequest struct {
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// ListSellers returns seller profiles, optionally filtered by approval
func (s *AdminService) ListSellers(ctx context.Context, req *SellerListRequest) (*SellerListResponse, error) {
	page, limit := shared.NormalizePage(req.Page, req.Limit)

	query := s.db.WithContext(ctx).Model(&SellerProfile{})
	if req.Approved != nil {
		query = query.Where("is_approved = ?", *req.Approved)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count sellers: %w", err)
	}

	var sellers []SellerProfile
	if err := query.Order("created_at DESC").Offset(shared.Offset(page, limit)).Limit(limit).Find(&sellers).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve sellers: %w", err)
	}

	return &SellerListResponse{
		Sellers:    sellers,
		Pagination: shared.NewPagination(page, limit, total),
	}, nil
}

// ApproveSeller allows a seller to list products
func (s *AdminService) ApproveSeller(ctx context.Context, sellerID uint) error {
	result := s.db.WithContext(ctx).Model(&SellerProfile{}).
		Where("user_id = ?", sellerID).
		Update("is_approved", true)
	if result.Error != nil {
		return fmt.Errorf("failed to approve seller: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound.WithMessage("seller profile not found")
	}
	return nil
}

// UpdateCommissionRate sets the rate captured on future order lines.
// Existing order lines keep the rate captured at checkout.
func (s *AdminService) UpdateCommissionRate(ctx context.Context, sellerID uint, req *CommissionUpdateRequest) (*SellerProfile, error) {
	rate := req.CommissionRate
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, shared.ErrInvalidInput.WithMessage("commission rate must be between 0 and 100")
	}

	var profile SellerProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", sellerID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("seller profile not found")
		}
		return nil, fmt.Errorf("failed to load seller profile: %w", err)
	}

	profile.CommissionRate = rate.Round(2)
	if err := s.db.WithContext(ctx).Model(&profile).Update("commission_rate", profile.CommissionRate).Error; err != nil {
		return nil, fmt.Errorf("failed to update commission rate: %w", err)
	}

	return &profile, nil
}
