// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles cart business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new cart service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductID        uint  `json:"product_id" binding:"required"`
	ProductVariantID *uint `json:"product_variant_id"`
	Quantity         int   `json:"quantity" binding:"required,min=1"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

// GetOrCreateCart finds the owner's cart or initializes it. The insert uses
// ON CONFLICT DO NOTHING so concurrent callers converge on one row.
func (s *Service) GetOrCreateCart(ctx context.Context, owner Owner) (*Cart, error) {
	var cart *Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cart, err = s.lockOrCreateCart(tx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// GetCart returns the owner's cart priced at current catalog prices.
// An owner without a cart gets an empty response.
func (s *Service) GetCart(ctx context.Context, owner Owner) (*CartResponse, error) {
	cart, err := s.findCart(s.db.WithContext(ctx), owner, false)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &CartResponse{Items: []CartLine{}}, nil
		}
		return nil, err
	}
	return s.buildResponse(ctx, cart.ID)
}

// AddItem adds a product to the cart, summing quantities for an existing line
func (s *Service) AddItem(ctx context.Context, owner Owner, req *AddToCartRequest) (*CartResponse, error) {
	if req.Quantity < 1 {
		return nil, shared.ErrInvalidInput.WithMessage("Quantity must be at least 1")
	}

	var cartID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.lockOrCreateCart(tx, owner)
		if err != nil {
			return err
		}
		cartID = cart.ID

		p, variant, err := loadPurchasable(tx, req.ProductID, req.ProductVariantID)
		if err != nil {
			return err
		}

		var item CartItem
		err = tx.Where("cart_id = ? AND product_id = ? AND variant_key = ?",
			cart.ID, req.ProductID, variantKey(req.ProductVariantID)).
			First(&item).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load cart item: %w", err)
		}

		quantity := item.Quantity + req.Quantity
		if err := ensureStock(tx, p, variant, quantity); err != nil {
			return err
		}

		if item.ID == 0 {
			item = CartItem{
				CartID:           cart.ID,
				ProductID:        req.ProductID,
				ProductVariantID: req.ProductVariantID,
				Quantity:         quantity,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to add cart item: %w", err)
			}
			return nil
		}

		if err := tx.Model(&item).Update("quantity", quantity).Error; err != nil {
			return fmt.Errorf("failed to update cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.buildResponse(ctx, cartID)
}

// UpdateItem sets a line's quantity. Zero removes the line.
func (s *Service) UpdateItem(ctx context.Context, owner Owner, itemID uint, req *UpdateCartItemRequest) (*CartResponse, error) {
	if req.Quantity < 0 {
		return nil, shared.ErrInvalidInput.WithMessage("Quantity cannot be negative")
	}

	var cartID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.findCart(tx, owner, true)
		if err != nil {
			return err
		}
		cartID = cart.ID

		var item CartItem
		if err := tx.Where("id = ? AND cart_id = ?", itemID, cart.ID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound.WithMessage("Cart item not found")
			}
			return fmt.Errorf("failed to load cart item: %w", err)
		}

		if req.Quantity == 0 {
			if err := tx.Delete(&item).Error; err != nil {
				return fmt.Errorf("failed to remove cart item: %w", err)
			}
			return nil
		}

		p, variant, err := loadPurchasable(tx, item.ProductID, item.ProductVariantID)
		if err != nil {
			return err
		}
		if err := ensureStock(tx, p, variant, req.Quantity); err != nil {
			return err
		}

		if err := tx.Model(&item).Update("quantity", req.Quantity).Error; err != nil {
			return fmt.Errorf("failed to update cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.buildResponse(ctx, cartID)
}

// RemoveItem deletes a line from the cart
func (s *Service) RemoveItem(ctx context.Context, owner Owner, itemID uint) (*CartResponse, error) {
	return s.UpdateItem(ctx, owner, itemID, &UpdateCartItemRequest{Quantity: 0})
}

// Clear removes every line from the owner's cart
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	db := s.db.WithContext(ctx)
	cart, err := s.findCart(db, owner, false)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	return ClearItems(db, cart.ID)
}

// MergeGuestCart moves a guest session's lines into the user's cart on login.
// Lines for the same product and variant have their quantities summed and
// clamped to what is purchasable now, one key for digital products. Lines for
// products that can no longer be bought are dropped. The guest cart is removed
// afterwards.
func (s *Service) MergeGuestCart(ctx context.Context, userID uint, sessionKey string) error {
	if sessionKey == "" {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guest, err := s.findCart(tx, Owner{SessionKey: sessionKey}, true)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil
			}
			return err
		}

		userCart, err := s.lockOrCreateCart(tx, Owner{UserID: &userID})
		if err != nil {
			return err
		}

		var guestItems []CartItem
		if err := tx.Where("cart_id = ?", guest.ID).Find(&guestItems).Error; err != nil {
			return fmt.Errorf("failed to load guest cart items: %w", err)
		}

		for i := range guestItems {
			if err := mergeItem(tx, userCart.ID, &guestItems[i]); err != nil {
				return err
			}
		}

		if err := tx.Delete(&Cart{}, guest.ID).Error; err != nil {
			return fmt.Errorf("failed to delete guest cart: %w", err)
		}
		return nil
	})
}

func mergeItem(tx *gorm.DB, cartID uint, gi *CartItem) error {
	var existing CartItem
	err := tx.Where("cart_id = ? AND product_id = ? AND variant_key = ?", cartID, gi.ProductID, gi.VariantKey).
		First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load cart item: %w", err)
	}

	limit, err := purchasableQuantity(tx, gi.ProductID, gi.ProductVariantID)
	if err != nil {
		return err
	}
	quantity := existing.Quantity + gi.Quantity
	if quantity > limit {
		quantity = limit
	}

	if existing.ID == 0 && quantity > 0 {
		err := tx.Model(gi).Updates(map[string]interface{}{"cart_id": cartID, "quantity": quantity}).Error
		if err != nil {
			return fmt.Errorf("failed to move guest item: %w", err)
		}
		return nil
	}

	if existing.ID != 0 && quantity > existing.Quantity {
		if err := tx.Model(&existing).Update("quantity", quantity).Error; err != nil {
			return fmt.Errorf("failed to merge cart item: %w", err)
		}
	}
	if err := tx.Delete(gi).Error; err != nil {
		return fmt.Errorf("failed to remove merged guest item: %w", err)
	}
	return nil
}

// purchasableQuantity is the largest line quantity the product accepts right
// now. Unknown or inactive products accept none.
func purchasableQuantity(tx *gorm.DB, productID uint, variantID *uint) (int, error) {
	p, variant, err := loadPurchasable(tx, productID, variantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	available, err := product.AvailableStock(tx, p, variant)
	if err != nil {
		return 0, err
	}
	if p.IsDigital() && available > 1 {
		available = 1
	}
	if available < 0 {
		available = 0
	}
	return available, nil
}

// LockForCheckout locks the user's cart row and returns it with its lines,
// products and variants loaded. tx must be an open transaction.
func LockForCheckout(tx *gorm.DB, userID uint) (*Cart, error) {
	var cart Cart
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrEmptyCart
		}
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}

	err = tx.Preload("Product").Preload("ProductVariant").
		Where("cart_id = ?", cart.ID).
		Order("id ASC").
		Find(&cart.Items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, shared.ErrEmptyCart
	}
	return &cart, nil
}

// ClearItems deletes all lines of a cart
func ClearItems(tx *gorm.DB, cartID uint) error {
	if err := tx.Where("cart_id = ?", cartID).Delete(&CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *Service) findCart(db *gorm.DB, owner Owner, lock bool) (*Cart, error) {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if owner.IsGuest() {
		if owner.SessionKey == "" {
			return nil, shared.ErrNotFound.WithMessage("Cart not found")
		}
		query = query.Where("session_key = ?", owner.SessionKey)
	} else {
		query = query.Where("user_id = ?", *owner.UserID)
	}

	var cart Cart
	if err := query.First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("Cart not found")
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &cart, nil
}

// lockOrCreateCart inserts the owner's cart if missing, then locks it
func (s *Service) lockOrCreateCart(tx *gorm.DB, owner Owner) (*Cart, error) {
	cart := Cart{}
	var conflict clause.Column
	if owner.IsGuest() {
		if owner.SessionKey == "" {
			return nil, shared.ErrInvalidInput.WithMessage("Session key is required for guest carts")
		}
		key := owner.SessionKey
		cart.SessionKey = &key
		conflict = clause.Column{Name: "session_key"}
	} else {
		cart.UserID = owner.UserID
		conflict = clause.Column{Name: "user_id"}
	}

	err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{conflict}, DoNothing: true}).
		Create(&cart).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	return s.findCart(tx, owner, true)
}

func (s *Service) buildResponse(ctx context.Context, cartID uint) (*CartResponse, error) {
	var items []CartItem
	err := s.db.WithContext(ctx).
		Preload("Product").Preload("ProductVariant").
		Where("cart_id = ?", cartID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}

	resp := &CartResponse{ID: cartID, Items: make([]CartLine, 0, len(items)), Subtotal: decimal.Zero}
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		line := CartLine{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.ProductVariantID,
			SellerID:  item.Product.SellerID,
			Name:      item.Product.Name,
			IsDigital: item.Product.IsDigital(),
			Quantity:  item.Quantity,
			UnitPrice: item.Product.CurrentPrice(item.ProductVariant),
			AddedAt:   item.CreatedAt,
		}
		if item.ProductVariant != nil {
			line.VariantName = item.ProductVariant.Name
		}
		line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))

		resp.Items = append(resp.Items, line)
		resp.Subtotal = resp.Subtotal.Add(line.LineTotal)
		resp.ItemCount += item.Quantity
	}
	resp.LineCount = len(resp.Items)
	resp.Subtotal = shared.RoundMoney(resp.Subtotal)
	return resp, nil
}

func loadPurchasable(tx *gorm.DB, productID uint, variantID *uint) (*product.Product, *product.ProductVariant, error) {
	var p product.Product
	if err := tx.Where("id = ? AND is_active = ?", productID, true).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, shared.ErrNotFound.WithMessage("Product not found")
		}
		return nil, nil, fmt.Errorf("failed to load product: %w", err)
	}

	if variantID == nil {
		return &p, nil, nil
	}

	var variant product.ProductVariant
	err := tx.Where("id = ? AND product_id = ? AND is_active = ?", *variantID, productID, true).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, shared.ErrNotFound.WithMessage("Product variant not found")
		}
		return nil, nil, fmt.Errorf("failed to load product variant: %w", err)
	}
	return &p, &variant, nil
}

func ensureStock(tx *gorm.DB, p *product.Product, variant *product.ProductVariant, quantity int) error {
	if p.IsDigital() && quantity > 1 {
		return shared.ErrInvalidInput.WithMessage("%s is delivered as a single key per order line", p.Name)
	}
	available, err := product.AvailableStock(tx, p, variant)
	if err != nil {
		return err
	}
	if quantity > available {
		return shared.ErrInsufficientStock.WithMessage("Only %d units of %s available", available, p.Name)
	}
	return nil
}
