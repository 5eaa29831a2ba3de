// internal/domain/wishlist/entity.go
package wishlist

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"gorm.io/gorm"
)

// WishlistItem is a product a user saved for later. VariantKey mirrors
// ProductVariantID (0 when absent) so each product and variant is saved once.
type WishlistItem struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;uniqueIndex:idx_wishlist_entry" json:"user_id"`
	ProductID        uint      `gorm:"not null;uniqueIndex:idx_wishlist_entry;index" json:"product_id"`
	ProductVariantID *uint     `gorm:"index" json:"product_variant_id,omitempty"`
	VariantKey       uint      `gorm:"not null;default:0;uniqueIndex:idx_wishlist_entry" json:"-"`
	AddedAt          time.Time `gorm:"not null" json:"added_at"`

	Product        *product.Product        `gorm:"foreignKey:ProductID" json:"-"`
	ProductVariant *product.ProductVariant `gorm:"foreignKey:ProductVariantID" json:"-"`
}

// TableName overrides the table name
func (WishlistItem) TableName() string {
	return "wishlist_items"
}

// BeforeSave keeps VariantKey in sync with the nullable variant reference
func (i *WishlistItem) BeforeSave(tx *gorm.DB) error {
	i.VariantKey = variantKey(i.ProductVariantID)
	return nil
}

func variantKey(variantID *uint) uint {
	if variantID == nil {
		return 0
	}
	return *variantID
}

// ItemResponse is a wishlist entry priced at the current catalog price
type ItemResponse struct {
	ID               uint            `json:"id"`
	ProductID        uint            `json:"product_id"`
	ProductVariantID *uint           `json:"product_variant_id,omitempty"`
	Name             string          `json:"name"`
	Slug             string          `json:"slug"`
	VariantName      string          `json:"variant_name,omitempty"`
	IsDigital        bool            `json:"is_digital"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	IsAvailable      bool            `json:"is_available"`
	InStock          bool            `json:"in_stock"`
	AddedAt          time.Time       `json:"added_at"`
}

// Summary totals the available entries of a wishlist
type Summary struct {
	TotalItems       int             `json:"total_items"`
	AvailableItems   int             `json:"available_items"`
	UnavailableItems int             `json:"unavailable_items"`
	TotalValue       decimal.Decimal `json:"total_value"`
	RecentlyAdded    int             `json:"recently_added"`
}
