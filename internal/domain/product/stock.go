package product

import (
	"fmt"

	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// digitalKeysTable is owned by the fulfillment domain; the catalog only counts rows in it.
const digitalKeysTable = "digital_keys"

// AvailableStock returns how many units can be sold right now. Physical goods
// use the variant or product counter; digital goods count unused keys.
// db may be a transaction handle.
func AvailableStock(db *gorm.DB, p *Product, variant *ProductVariant) (int, error) {
	if p.IsDigital() {
		var unused int64
		err := db.Table(digitalKeysTable).
			Where("product_id = ? AND is_used = ?", p.ID, false).
			Count(&unused).Error
		if err != nil {
			return 0, fmt.Errorf("failed to count digital keys: %w", err)
		}
		return int(unused), nil
	}

	if variant != nil {
		return variant.StockQuantity, nil
	}
	return p.StockQuantity, nil
}

// DecrementStock removes sold physical units. Digital stock is consumed at fulfillment.
func DecrementStock(tx *gorm.DB, p *Product, variant *ProductVariant, quantity int) error {
	if p.IsDigital() {
		return nil
	}
	return adjustStock(tx, p.ID, variant, -quantity)
}

// RestoreStock returns physical units, e.g. after a cancellation
func RestoreStock(tx *gorm.DB, productID uint, variantID *uint, quantity int) error {
	var variant *ProductVariant
	if variantID != nil {
		variant = &ProductVariant{ID: *variantID}
	}
	return adjustStock(tx, productID, variant, quantity)
}

func adjustStock(tx *gorm.DB, productID uint, variant *ProductVariant, delta int) error {
	var result *gorm.DB
	if variant != nil {
		result = tx.Model(&ProductVariant{}).
			Where("id = ? AND stock_quantity + ? >= 0", variant.ID, delta).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	} else {
		result = tx.Model(&Product{}).
			Where("id = ? AND stock_quantity + ? >= 0", productID, delta).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	}

	if result.Error != nil {
		return fmt.Errorf("failed to update stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrInsufficientStock.WithMessage("insufficient stock for product %d", productID)
	}
	return nil
}
