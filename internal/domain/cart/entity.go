// internal/domain/cart/entity.go
package cart

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"gorm.io/gorm"
)

// Cart belongs to either a user or an anonymous session, never both
type Cart struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     *uint      `gorm:"uniqueIndex" json:"user_id,omitempty"`
	SessionKey *string    `gorm:"uniqueIndex;size:64" json:"session_key,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Items      []CartItem `gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items,omitempty"`
}

// CartItem is one line of a cart. VariantKey mirrors ProductVariantID (0 when
// absent) so the (cart, product, variant) uniqueness holds with NULL variants.
type CartItem struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CartID           uint      `gorm:"not null;uniqueIndex:idx_cart_line" json:"cart_id"`
	ProductID        uint      `gorm:"not null;uniqueIndex:idx_cart_line;index" json:"product_id"`
	ProductVariantID *uint     `gorm:"index" json:"product_variant_id"`
	VariantKey       uint      `gorm:"not null;default:0;uniqueIndex:idx_cart_line" json:"-"`
	Quantity         int       `gorm:"not null;default:1" json:"quantity"`
	CreatedAt        time.Time `json:"added_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Product        *product.Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	ProductVariant *product.ProductVariant `gorm:"foreignKey:ProductVariantID" json:"product_variant,omitempty"`
}

// TableName overrides
func (Cart) TableName() string     { return "carts" }
func (CartItem) TableName() string { return "cart_items" }

// BeforeSave keeps VariantKey in sync with the nullable variant reference
func (i *CartItem) BeforeSave(tx *gorm.DB) error {
	i.VariantKey = variantKey(i.ProductVariantID)
	return nil
}

func variantKey(variantID *uint) uint {
	if variantID == nil {
		return 0
	}
	return *variantID
}

// Owner identifies whose cart an operation targets
type Owner struct {
	UserID     *uint
	SessionKey string
}

// IsGuest reports whether the owner is an anonymous session
func (o Owner) IsGuest() bool {
	return o.UserID == nil
}

// CartLine is a cart item priced at the current catalog price
type CartLine struct {
	ID          uint            `json:"id"`
	ProductID   uint            `json:"product_id"`
	VariantID   *uint           `json:"product_variant_id,omitempty"`
	SellerID    uint            `json:"seller_id"`
	Name        string          `json:"name"`
	VariantName string          `json:"variant_name,omitempty"`
	IsDigital   bool            `json:"is_digital"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	AddedAt     time.Time       `json:"added_at"`
}

// CartResponse represents a shopping cart with totals
type CartResponse struct {
	ID        uint            `json:"id,omitempty"`
	Items     []CartLine      `json:"items"`
	LineCount int             `json:"line_count"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}
