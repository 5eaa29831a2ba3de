// internal/domain/product/service.go
package product

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// Service handles catalog business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new product service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// ProductListRequest represents product list query parameters
type ProductListRequest struct {
	Page        int         `form:"page,default=1"`
	Limit       int         `form:"limit,default=20"`
	SellerID    uint        `form:"seller_id"`
	CategoryID  uint        `form:"category_id"`
	ProductType ProductType `form:"product_type"`
	Search      string      `form:"search"`
	SortBy      string      `form:"sort_by,default=created_at"`
	SortOrder   string      `form:"sort_order,default=desc"`
}

// ProductCreateRequest represents product creation data
type ProductCreateRequest struct {
	SKU           string               `json:"sku" binding:"required"`
	Name          string               `json:"name" binding:"required"`
	Description   string               `json:"description"`
	CategoryID    *uint                `json:"category_id"`
	ProductType   ProductType          `json:"product_type" binding:"omitempty,oneof=physical digital"`
	Price         decimal.Decimal      `json:"price"`
	SalePrice     *decimal.Decimal     `json:"sale_price"`
	StockQuantity int                  `json:"stock_quantity" binding:"min=0"`
	Variants      []VariantCreateInput `json:"variants"`
}

// VariantCreateInput describes a variant created with its product
type VariantCreateInput struct {
	SKU             string          `json:"sku" binding:"required"`
	Name            string          `json:"name" binding:"required"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
	StockQuantity   int             `json:"stock_quantity" binding:"min=0"`
}

// ProductUpdateRequest represents product update data
type ProductUpdateRequest struct {
	Name           *string          `json:"name"`
	Description    *string          `json:"description"`
	CategoryID     *uint            `json:"category_id"`
	Price          *decimal.Decimal `json:"price"`
	SalePrice      *decimal.Decimal `json:"sale_price"`
	ClearSalePrice bool             `json:"clear_sale_price"`
	StockQuantity  *int             `json:"stock_quantity"`
	IsActive       *bool            `json:"is_active"`
}

// ProductResponse represents product response with pagination
type ProductResponse struct {
	Products   []Product         `json:"products"`
	Pagination shared.Pagination `json:"pagination"`
}

// GetProducts retrieves active products with filtering and pagination
func (s *Service) GetProducts(ctx context.Context, req *ProductListRequest) (*ProductResponse, error) {
	page, limit := shared.NormalizePage(req.Page, req.Limit)

	query := s.db.WithContext(ctx).Model(&Product{}).Where("is_active = ?", true)

	if req.SellerID > 0 {
		query = query.Where("seller_id = ?", req.SellerID)
	}
	if req.CategoryID > 0 {
		query = query.Where("category_id = ?", req.CategoryID)
	}
	if req.ProductType != "" {
		query = query.Where("product_type = ?", req.ProductType)
	}
	if req.Search != "" {
		search := "%" + strings.ToLower(req.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", search, search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	var products []Product
	err := query.
		Preload("Category").
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_primary DESC, sort_order ASC, id ASC")
		}).
		Order(s.buildOrderClause(req.SortBy, req.SortOrder)).
		Offset(shared.Offset(page, limit)).
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve products: %w", err)
	}

	return &ProductResponse{
		Products:   products,
		Pagination: shared.NewPagination(page, limit, total),
	}, nil
}

// GetProduct retrieves a single product by ID
func (s *Service) GetProduct(ctx context.Context, id uint) (*Product, error) {
	var product Product
	err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("Images").
		Preload("Variants", "is_active = ?", true).
		First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("product not found")
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}
	return &product, nil
}

// GetProductBySlug retrieves a single product by slug
func (s *Service) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	var product Product
	err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("Images").
		Preload("Variants", "is_active = ?", true).
		Where("slug = ?", slug).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("product not found")
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}
	return &product, nil
}

// CreateProduct lists a new product for a seller
func (s *Service) CreateProduct(ctx context.Context, sellerID uint, req *ProductCreateRequest) (*Product, error) {
	if err := s.ensureSeller(ctx, sellerID); err != nil {
		return nil, err
	}
	if err := validatePricing(req.Price, req.SalePrice); err != nil {
		return nil, err
	}

	productType := req.ProductType
	if productType == "" {
		productType = ProductTypePhysical
	}

	product := Product{
		SellerID:      sellerID,
		CategoryID:    req.CategoryID,
		SKU:           req.SKU,
		Name:          req.Name,
		Slug:          generateSlug(req.Name),
		Description:   req.Description,
		ProductType:   productType,
		Price:         req.Price.Round(2),
		StockQuantity: req.StockQuantity,
		IsActive:      true,
	}
	if req.SalePrice != nil {
		product.SalePrice = decimal.NewNullDecimal(req.SalePrice.Round(2))
	}
	if product.IsDigital() {
		// Digital availability is the key pool.
		product.StockQuantity = 0
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var skuCount int64
		if err := tx.Model(&Product{}).Unscoped().Where("sku = ?", req.SKU).Count(&skuCount).Error; err != nil {
			return fmt.Errorf("failed to check sku: %w", err)
		}
		if skuCount > 0 {
			return shared.ErrAlreadyExists.WithMessage("product with sku %s already exists", req.SKU)
		}

		if err := tx.Create(&product).Error; err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}

		for _, v := range req.Variants {
			variant := ProductVariant{
				ProductID:       product.ID,
				SKU:             v.SKU,
				Name:            v.Name,
				PriceAdjustment: v.PriceAdjustment.Round(2),
				StockQuantity:   v.StockQuantity,
				IsActive:        true,
			}
			if err := tx.Create(&variant).Error; err != nil {
				return fmt.Errorf("failed to create variant %s: %w", v.SKU, err)
			}
			product.Variants = append(product.Variants, variant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &product, nil
}

// UpdateProduct updates a product owned by the seller. Catalog edits never
// touch existing order lines, which keep their snapshots.
func (s *Service) UpdateProduct(ctx context.Context, sellerID, id uint, req *ProductUpdateRequest) (*Product, error) {
	product, err := s.ownedProduct(ctx, sellerID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.CategoryID != nil {
		updates["category_id"] = *req.CategoryID
	}

	price := product.Price
	if req.Price != nil {
		price = req.Price.Round(2)
		updates["price"] = price
	}
	switch {
	case req.ClearSalePrice:
		updates["sale_price"] = nil
	case req.SalePrice != nil:
		if err := validatePricing(price, req.SalePrice); err != nil {
			return nil, err
		}
		updates["sale_price"] = req.SalePrice.Round(2)
	}
	if req.Price != nil && req.SalePrice == nil {
		if err := validatePricing(price, nil); err != nil {
			return nil, err
		}
	}

	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return nil, shared.ErrInvalidInput.WithMessage("stock quantity cannot be negative")
		}
		if product.IsDigital() {
			return nil, shared.ErrInvalidInput.WithMessage("digital stock is managed through keys")
		}
		updates["stock_quantity"] = *req.StockQuantity
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(product).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update product: %w", err)
		}
	}

	return s.GetProduct(ctx, id)
}

// DeleteProduct soft-deletes a product owned by the seller
func (s *Service) DeleteProduct(ctx context.Context, sellerID, id uint) error {
	product, err := s.ownedProduct(ctx, sellerID, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(product).Error; err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// GetAvailableStock exposes the stock rule to transports
func (s *Service) GetAvailableStock(ctx context.Context, productID uint, variantID *uint) (int, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}

	var variant *ProductVariant
	if variantID != nil {
		for i := range product.Variants {
			if product.Variants[i].ID == *variantID {
				variant = &product.Variants[i]
			}
		}
		if variant == nil {
			return 0, shared.ErrNotFound.WithMessage("variant not found")
		}
	}

	return AvailableStock(s.db.WithContext(ctx), product, variant)
}

func (s *Service) ownedProduct(ctx context.Context, sellerID, id uint) (*Product, error) {
	var product Product
	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("product not found")
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}
	if product.SellerID != sellerID {
		return nil, shared.ErrForbidden.WithMessage("product belongs to another seller")
	}
	return &product, nil
}

func (s *Service) ensureSeller(ctx context.Context, sellerID uint) error {
	var userType string
	err := s.db.WithContext(ctx).Table("users").Select("user_type").Where("id = ?", sellerID).Scan(&userType).Error
	if err != nil {
		return fmt.Errorf("failed to load seller: %w", err)
	}
	if userType != "seller" {
		return shared.ErrForbidden.WithMessage("only sellers can list products")
	}
	return nil
}

func validatePricing(price decimal.Decimal, salePrice *decimal.Decimal) error {
	if !price.IsPositive() {
		return shared.ErrInvalidInput.WithMessage("price must be greater than zero")
	}
	if salePrice != nil && (salePrice.IsNegative() || salePrice.GreaterThanOrEqual(price)) {
		return shared.ErrInvalidInput.WithMessage("sale price must be below the regular price")
	}
	return nil
}

// buildOrderClause builds ORDER BY clause for sorting
func (s *Service) buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"name":           true,
		"price":          true,
		"created_at":     true,
		"sold_count":     true,
		"average_rating": true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	return fmt.Sprintf("%s %s", sortBy, sortOrder)
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// generateSlug generates a URL-friendly slug with a short random suffix
func generateSlug(name string) string {
	slug := strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "item"
	}
	return slug + "-" + uuid.NewString()[:8]
}
