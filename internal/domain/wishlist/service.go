// internal/domain/wishlist/service.go
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxBulkAdd   = 50
	recentWindow = 7 * 24 * time.Hour
)

// Service handles wishlist business logic
type Service struct {
	db          *gorm.DB
	cartService *cart.Service
	now         func() time.Time
}

// NewService creates a new wishlist service
func NewService(db *gorm.DB, cartService *cart.Service) *Service {
	return &Service{
		db:          db,
		cartService: cartService,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListRequest represents wishlist query parameters
type ListRequest struct {
	Page      int    `form:"page,default=1"`
	Limit     int    `form:"limit,default=20"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}

// AddRequest represents add to wishlist request
type AddRequest struct {
	ProductID        uint  `json:"product_id" binding:"required"`
	ProductVariantID *uint `json:"product_variant_id"`
}

// MoveToCartRequest represents a move of a saved product into the cart
type MoveToCartRequest struct {
	ProductVariantID *uint `json:"product_variant_id"`
	Quantity         int   `json:"quantity" binding:"required,min=1"`
}

// WishlistResponse represents a page of the wishlist with its summary
type WishlistResponse struct {
	Items      []ItemResponse    `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
	Summary    Summary           `json:"summary"`
}

// BulkAddResult reports the outcome per product of a bulk add
type BulkAddResult struct {
	Added   []uint `json:"added"`
	Skipped []uint `json:"skipped"`
	Failed  []uint `json:"failed"`
}

// GetWishlist returns one page of the user's wishlist, newest first by default
func (s *Service) GetWishlist(ctx context.Context, userID uint, req *ListRequest) (*WishlistResponse, error) {
	page, limit := shared.NormalizePage(req.Page, req.Limit)
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&WishlistItem{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count wishlist items: %w", err)
	}

	var items []WishlistItem
	err := s.withProducts(db).
		Where("user_id = ?", userID).
		Order(orderClause(req.SortBy, req.SortOrder)).
		Offset(shared.Offset(page, limit)).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve wishlist items: %w", err)
	}

	lines, err := s.toResponses(db, items)
	if err != nil {
		return nil, err
	}

	summary, err := s.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &WishlistResponse{
		Items:      lines,
		Pagination: shared.NewPagination(page, limit, total),
		Summary:    *summary,
	}, nil
}

// AddItem saves a product for the user. Saving an entry that already exists
// returns it unchanged; created reports whether a new entry was stored.
func (s *Service) AddItem(ctx context.Context, userID uint, req *AddRequest) (*ItemResponse, bool, error) {
	db := s.db.WithContext(ctx)
	if err := ensureListable(db, req.ProductID, req.ProductVariantID); err != nil {
		return nil, false, err
	}

	entry := WishlistItem{
		UserID:           userID,
		ProductID:        req.ProductID,
		ProductVariantID: req.ProductVariantID,
		AddedAt:          s.now(),
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}, {Name: "variant_key"}},
		DoNothing: true,
	}).Create(&entry)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to add item to wishlist: %w", result.Error)
	}

	var stored WishlistItem
	err := s.withProducts(db).
		Where("user_id = ? AND product_id = ? AND variant_key = ?", userID, req.ProductID, variantKey(req.ProductVariantID)).
		First(&stored).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to load wishlist item: %w", err)
	}

	lines, err := s.toResponses(db, []WishlistItem{stored})
	if err != nil {
		return nil, false, err
	}
	return &lines[0], result.RowsAffected > 0, nil
}

// BulkAdd saves several products, skipping ones already saved
func (s *Service) BulkAdd(ctx context.Context, userID uint, productIDs []uint) (*BulkAddResult, error) {
	if len(productIDs) == 0 || len(productIDs) > maxBulkAdd {
		return nil, shared.ErrInvalidInput.WithMessage("between 1 and %d products can be added at once", maxBulkAdd)
	}

	result := &BulkAddResult{Added: []uint{}, Skipped: []uint{}, Failed: []uint{}}
	for _, productID := range productIDs {
		_, created, err := s.AddItem(ctx, userID, &AddRequest{ProductID: productID})
		if err != nil {
			if _, ok := shared.KindOf(err); !ok {
				return nil, err
			}
		}
		switch {
		case err != nil:
			result.Failed = append(result.Failed, productID)
		case created:
			result.Added = append(result.Added, productID)
		default:
			result.Skipped = append(result.Skipped, productID)
		}
	}
	return result, nil
}

// RemoveItem deletes the user's entry for a product and variant
func (s *Service) RemoveItem(ctx context.Context, userID, productID uint, variantID *uint) error {
	return removeEntry(s.db.WithContext(ctx), userID, productID, variantID)
}

// Clear removes every entry of the user's wishlist
func (s *Service) Clear(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&WishlistItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear wishlist: %w", err)
	}
	return nil
}

// Count returns the number of saved entries
func (s *Service) Count(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&WishlistItem{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count wishlist items: %w", err)
	}
	return count, nil
}

// Contains reports whether the product and variant are saved
func (s *Service) Contains(ctx context.Context, userID, productID uint, variantID *uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&WishlistItem{}).
		Where("user_id = ? AND product_id = ? AND variant_key = ?", userID, productID, variantKey(variantID)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check wishlist: %w", err)
	}
	return count > 0, nil
}

// MoveToCart adds a saved product to the user's cart, then drops the entry.
// Cart stock rules apply; on rejection the entry stays saved.
func (s *Service) MoveToCart(ctx context.Context, userID, productID uint, req *MoveToCartRequest) (*cart.CartResponse, error) {
	saved, err := s.Contains(ctx, userID, productID, req.ProductVariantID)
	if err != nil {
		return nil, err
	}
	if !saved {
		return nil, shared.ErrNotFound.WithMessage("item not found in wishlist")
	}

	resp, err := s.cartService.AddItem(ctx, cart.Owner{UserID: &userID}, &cart.AddToCartRequest{
		ProductID:        productID,
		ProductVariantID: req.ProductVariantID,
		Quantity:         req.Quantity,
	})
	if err != nil {
		return nil, err
	}

	if err := removeEntry(s.db.WithContext(ctx), userID, productID, req.ProductVariantID); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return resp, nil
}

// Summary totals the whole wishlist at current prices
func (s *Service) Summary(ctx context.Context, userID uint) (*Summary, error) {
	db := s.db.WithContext(ctx)

	var items []WishlistItem
	if err := s.withProducts(db).Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve wishlist items: %w", err)
	}
	lines, err := s.toResponses(db, items)
	if err != nil {
		return nil, err
	}

	summary := &Summary{TotalItems: len(lines), TotalValue: decimal.Zero}
	recent := s.now().Add(-recentWindow)
	for _, line := range lines {
		if line.IsAvailable {
			summary.AvailableItems++
			summary.TotalValue = summary.TotalValue.Add(line.CurrentPrice)
		} else {
			summary.UnavailableItems++
		}
		if line.AddedAt.After(recent) {
			summary.RecentlyAdded++
		}
	}
	summary.TotalValue = shared.RoundMoney(summary.TotalValue)
	return summary, nil
}

func (s *Service) withProducts(db *gorm.DB) *gorm.DB {
	return db.Preload("Product").Preload("ProductVariant")
}

func (s *Service) toResponses(db *gorm.DB, items []WishlistItem) ([]ItemResponse, error) {
	lines := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		line := ItemResponse{
			ID:               item.ID,
			ProductID:        item.ProductID,
			ProductVariantID: item.ProductVariantID,
			AddedAt:          item.AddedAt,
			CurrentPrice:     decimal.Zero,
		}
		if item.Product != nil {
			p := item.Product
			line.Name = p.Name
			line.Slug = p.Slug
			line.IsDigital = p.IsDigital()
			line.CurrentPrice = p.CurrentPrice(item.ProductVariant)
			line.IsAvailable = p.IsActive
			if item.ProductVariant != nil {
				line.VariantName = item.ProductVariant.Name
				line.IsAvailable = line.IsAvailable && item.ProductVariant.IsActive
			}
			if line.IsAvailable {
				available, err := product.AvailableStock(db, p, item.ProductVariant)
				if err != nil {
					return nil, err
				}
				line.InStock = available > 0
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func ensureListable(db *gorm.DB, productID uint, variantID *uint) error {
	var p product.Product
	if err := db.Where("id = ? AND is_active = ?", productID, true).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound.WithMessage("product not found")
		}
		return fmt.Errorf("failed to load product: %w", err)
	}
	if variantID == nil {
		return nil
	}

	var variant product.ProductVariant
	err := db.Where("id = ? AND product_id = ? AND is_active = ?", *variantID, productID, true).First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound.WithMessage("product variant not found")
		}
		return fmt.Errorf("failed to load product variant: %w", err)
	}
	return nil
}

func removeEntry(db *gorm.DB, userID, productID uint, variantID *uint) error {
	result := db.Where("user_id = ? AND product_id = ? AND variant_key = ?", userID, productID, variantKey(variantID)).
		Delete(&WishlistItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove item from wishlist: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound.WithMessage("item not found in wishlist")
	}
	return nil
}

func orderClause(sortBy, sortOrder string) string {
	switch sortBy {
	case "added_at", "product_id":
	default:
		sortBy = "added_at"
	}
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	return fmt.Sprintf("%s %s, id %s", sortBy, sortOrder, sortOrder)
}
