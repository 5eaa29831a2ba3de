// internal/domain/product/entity.go
package product

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductType distinguishes shipped goods from key-delivered goods
type ProductType string

const (
	ProductTypePhysical ProductType = "physical"
	ProductTypeDigital  ProductType = "digital"
)

// Product represents a seller's catalog entry
type Product struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	SellerID      uint                `gorm:"not null;index" json:"seller_id"`
	CategoryID    *uint               `gorm:"index" json:"category_id"`
	SKU           string              `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name          string              `gorm:"not null;size:255" json:"name"`
	Slug          string              `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Description   string              `gorm:"type:text" json:"description"`
	ProductType   ProductType         `gorm:"size:20;not null;default:'physical'" json:"product_type"`
	Price         decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"price"`
	SalePrice     decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"sale_price"`
	StockQuantity int                 `gorm:"not null;default:0" json:"stock_quantity"`
	IsActive      bool                `gorm:"default:true" json:"is_active"`
	SoldCount     int                 `gorm:"not null;default:0" json:"sold_count"`
	AverageRating decimal.Decimal     `gorm:"type:numeric(3,2);not null;default:0" json:"average_rating"`
	ReviewCount   int                 `gorm:"not null;default:0" json:"review_count"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	DeletedAt     gorm.DeletedAt      `gorm:"index" json:"-"`

	// Relationships
	Category *Category       `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"category,omitempty"`
	Images   []ProductImage   `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"images,omitempty"`
	Variants []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"variants,omitempty"`
}

// Category represents product categories
type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	Slug        string    `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Description string    `gorm:"size:500" json:"description"`
	ParentID    *uint     `gorm:"index" json:"parent_id"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Children []Category `gorm:"foreignKey:ParentID" json:"children,omitempty"`
}

// ProductImage represents product images
type ProductImage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProductID uint      `gorm:"not null;index" json:"product_id"`
	URL       string    `gorm:"not null;size:500" json:"url"`
	AltText   string    `gorm:"size:255" json:"alt_text"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	IsPrimary bool      `gorm:"default:false" json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductVariant represents a purchasable option (size, edition, region)
type ProductVariant struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	ProductID       uint            `gorm:"not null;index" json:"product_id"`
	SKU             string          `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name            string          `gorm:"not null;size:255" json:"name"`
	PriceAdjustment decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"price_adjustment"`
	StockQuantity   int             `gorm:"not null;default:0" json:"stock_quantity"`
	IsActive        bool            `gorm:"default:true" json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName overrides
func (Product) TableName() string        { return "products" }
func (Category) TableName() string       { return "categories" }
func (ProductImage) TableName() string   { return "product_images" }
func (ProductVariant) TableName() string { return "product_variants" }

// IsDigital reports whether the product is fulfilled with digital keys
func (p *Product) IsDigital() bool {
	return p.ProductType == ProductTypeDigital
}

// IsOnSale reports whether a sale price below the list price is set
func (p *Product) IsOnSale() bool {
	return p.SalePrice.Valid && p.SalePrice.Decimal.LessThan(p.Price)
}

// CurrentPrice returns the sale-aware unit price, adjusted by the variant if any
func (p *Product) CurrentPrice(variant *ProductVariant) decimal.Decimal {
	price := p.Price
	if p.IsOnSale() {
		price = p.SalePrice.Decimal
	}
	if variant != nil {
		price = price.Add(variant.PriceAdjustment)
	}
	return price.Round(2)
}

// GetDiscountPercentage returns the whole-percent discount of an active sale
func (p *Product) GetDiscountPercentage() int {
	if !p.IsOnSale() || p.Price.IsZero() {
		return 0
	}
	return int(p.Price.Sub(p.SalePrice.Decimal).Mul(decimal.NewFromInt(100)).Div(p.Price).IntPart())
}
