// internal/domain/order/checkout.go
package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/promo"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"gorm.io/gorm"
)

// CheckoutRequest represents checkout data
type CheckoutRequest struct {
	ShippingAddress *Address         `json:"shipping_address"`
	AddressID       *uint            `json:"address_id"`
	ShippingCost    *decimal.Decimal `json:"shipping_cost,omitempty"`
	PromoCode       string           `json:"promo_code" binding:"max=50"`
	PaymentSource   PaymentSource    `json:"payment_source" binding:"omitempty,oneof=balance card external"`
	Notes           string           `json:"notes" binding:"max=2000"`
}

// CheckoutResult lists the seller orders created from one cart
type CheckoutResult struct {
	Orders    []Order         `json:"orders"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
	PromoCode string          `json:"promo_code,omitempty"`
}

// sellerGroup collects one seller's cart lines and their money
type sellerGroup struct {
	sellerID uint
	lines    []pricedLine
	subtotal decimal.Decimal
	physical bool
}

type pricedLine struct {
	item    cart.CartItem
	price   decimal.Decimal
	total   decimal.Decimal
	digital bool
}

// Checkout turns the buyer's cart into one pending order per seller.
// Everything runs in one transaction holding the cart row lock: orders,
// items, stock decrements, promo redemption and the cart clear commit
// together or not at all.
func (s *Service) Checkout(ctx context.Context, buyerID uint, req *CheckoutRequest) (*CheckoutResult, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.ShippingCost != nil && req.ShippingCost.Sign() < 0 {
		return nil, shared.ErrInvalidInput.WithMessage("shipping cost cannot be negative")
	}

	result := &CheckoutResult{}
	var orderIDs []uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userCart, err := cart.LockForCheckout(tx, buyerID)
		if err != nil {
			return err
		}

		var buyer user.User
		if err := tx.Select("id", "email").First(&buyer, buyerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound.WithMessage("buyer not found")
			}
			return fmt.Errorf("failed to load buyer: %w", err)
		}

		groups, err := groupBySeller(tx, userCart.Items)
		if err != nil {
			return err
		}

		address, err := s.resolveAddress(tx, buyerID, req, groups)
		if err != nil {
			return err
		}

		combined := decimal.Zero
		for _, g := range groups {
			combined = combined.Add(g.subtotal)
		}

		discount := decimal.Zero
		var applied *promo.PromoCode
		if req.PromoCode != "" {
			applied, discount, err = promo.Apply(tx, req.PromoCode, combined, s.now())
			if err != nil {
				return err
			}
		}
		shares := apportion(discount, combined, groups)

		rates := map[uint]decimal.Decimal{}
		for i, g := range groups {
			order, err := s.createSellerOrder(tx, &buyer, g, shares[i], address, applied, req, rates)
			if err != nil {
				return err
			}
			orderIDs = append(orderIDs, order.ID)
			result.Total = result.Total.Add(order.TotalAmount)
		}

		if applied != nil {
			if err := promo.Redeem(tx, applied.ID); err != nil {
				return err
			}
			result.PromoCode = applied.Code
		}

		result.Subtotal = combined
		result.Discount = discount
		return cart.ClearItems(tx, userCart.ID)
	})
	if err != nil {
		return nil, err
	}

	for _, id := range orderIDs {
		order, err := s.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		result.Orders = append(result.Orders, *order)
	}

	s.logger.WithFields(logrus.Fields{
		"buyer_id": buyerID,
		"orders":   len(orderIDs),
		"total":    result.Total.StringFixed(2),
	}).Info("Checkout completed")

	return result, nil
}

func (s *Service) createSellerOrder(
	tx *gorm.DB,
	buyer *user.User,
	g *sellerGroup,
	discount decimal.Decimal,
	address Address,
	applied *promo.PromoCode,
	req *CheckoutRequest,
	rates map[uint]decimal.Decimal,
) (*Order, error) {
	shipping := decimal.Zero
	if g.physical {
		shipping = s.config.Marketplace.DefaultShipping
		if req.ShippingCost != nil {
			shipping = *req.ShippingCost
		}
	}
	shipping = shared.RoundMoney(shipping)
	tax := shared.RoundMoney(g.subtotal.Mul(s.config.Marketplace.TaxRate))
	total := g.subtotal.Add(shipping).Add(tax).Sub(discount)
	if total.Sign() < 0 {
		return nil, fmt.Errorf("computed negative total %s for seller %d", total.StringFixed(2), g.sellerID)
	}

	source := req.PaymentSource
	if source == "" {
		source = PaymentSourceExternal
	}

	buyerID := buyer.ID
	sellerID := g.sellerID
	order := &Order{
		OrderNumber:    GenerateOrderNumber(),
		BuyerID:        &buyerID,
		SellerID:       &sellerID,
		Email:          buyer.Email,
		Status:         OrderStatusPending,
		PaymentStatus:  PaymentStatusPending,
		PaymentSource:  source,
		Subtotal:       g.subtotal,
		ShippingAmount: shipping,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    total,
		Currency:       s.config.Marketplace.Currency,
		Notes:          req.Notes,
	}
	if applied != nil {
		order.PromoCode = applied.Code
	}
	if g.physical {
		order.ShippingAddress = address
	}
	if err := tx.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	rate, err := s.commissionRate(tx, g.sellerID, rates)
	if err != nil {
		return nil, err
	}

	for _, line := range g.lines {
		p := line.item.Product
		item := OrderItem{
			OrderID:          order.ID,
			ProductID:        &p.ID,
			ProductVariantID: line.item.ProductVariantID,
			SellerID:         &sellerID,
			ProductName:      p.Name,
			ProductSKU:       p.SKU,
			Quantity:         line.item.Quantity,
			Price:            line.price,
			Subtotal:         line.total,
			CommissionRate:   rate,
			IsDigital:        line.digital,
			Status:           OrderStatusPending,
		}
		if v := line.item.ProductVariant; v != nil {
			item.ProductSKU = v.SKU
			item.VariantName = v.Name
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		if err := product.DecrementStock(tx, p, line.item.ProductVariant, line.item.Quantity); err != nil {
			return nil, err
		}
	}

	history := OrderStatusHistory{
		OrderID:   order.ID,
		Status:    OrderStatusPending,
		Comment:   "Order created",
		CreatedBy: &buyerID,
		CreatedAt: s.now(),
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to create status history: %w", err)
	}

	return order, nil
}

// groupBySeller validates every line and partitions the cart by seller,
// keeping sellers in the order their first line was added
func groupBySeller(tx *gorm.DB, items []cart.CartItem) ([]*sellerGroup, error) {
	var groups []*sellerGroup
	index := map[uint]*sellerGroup{}

	for _, item := range items {
		p := item.Product
		if p == nil || !p.IsActive {
			return nil, shared.ErrInvalidInput.WithMessage("product %d is no longer available", item.ProductID)
		}
		if item.ProductVariantID != nil && (item.ProductVariant == nil || !item.ProductVariant.IsActive) {
			return nil, shared.ErrInvalidInput.WithMessage("selected option of %s is no longer available", p.Name)
		}
		if item.Quantity < 1 || (p.IsDigital() && item.Quantity > 1) {
			return nil, shared.ErrInvalidInput.WithMessage("invalid quantity for %s", p.Name)
		}

		available, err := product.AvailableStock(tx, p, item.ProductVariant)
		if err != nil {
			return nil, err
		}
		if item.Quantity > available {
			return nil, shared.ErrInsufficientStock.WithMessage(
				"insufficient stock for %s: available %d, requested %d", p.Name, available, item.Quantity)
		}

		price := p.CurrentPrice(item.ProductVariant)
		line := pricedLine{
			item:    item,
			price:   price,
			total:   shared.RoundMoney(price.Mul(decimal.NewFromInt(int64(item.Quantity)))),
			digital: p.IsDigital(),
		}

		g, ok := index[p.SellerID]
		if !ok {
			g = &sellerGroup{sellerID: p.SellerID, subtotal: decimal.Zero}
			index[p.SellerID] = g
			groups = append(groups, g)
		}
		g.lines = append(g.lines, line)
		g.subtotal = g.subtotal.Add(line.total)
		if !line.digital {
			g.physical = true
		}
	}

	return groups, nil
}

// apportion splits a checkout discount across seller groups in proportion to
// their subtotals. The last group takes the rounding remainder.
func apportion(discount, combined decimal.Decimal, groups []*sellerGroup) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(groups))
	if discount.Sign() <= 0 || combined.Sign() <= 0 {
		for i := range shares {
			shares[i] = decimal.Zero
		}
		return shares
	}

	allocated := decimal.Zero
	for i, g := range groups {
		if i == len(groups)-1 {
			shares[i] = discount.Sub(allocated)
			break
		}
		shares[i] = shared.RoundMoney(discount.Mul(g.subtotal).Div(combined))
		allocated = allocated.Add(shares[i])
	}
	return shares
}

// commissionRate returns the seller's current rate, captured onto each line
func (s *Service) commissionRate(tx *gorm.DB, sellerID uint, cache map[uint]decimal.Decimal) (decimal.Decimal, error) {
	if rate, ok := cache[sellerID]; ok {
		return rate, nil
	}

	rate := s.config.Marketplace.DefaultCommission
	var profile user.SellerProfile
	err := tx.Select("commission_rate").Where("user_id = ?", sellerID).First(&profile).Error
	switch {
	case err == nil:
		rate = profile.CommissionRate
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return decimal.Zero, fmt.Errorf("failed to load seller commission: %w", err)
	}

	cache[sellerID] = rate
	return rate, nil
}

// resolveAddress picks the shipping snapshot for carts with physical goods
func (s *Service) resolveAddress(tx *gorm.DB, buyerID uint, req *CheckoutRequest, groups []*sellerGroup) (Address, error) {
	needsShipping := false
	for _, g := range groups {
		if g.physical {
			needsShipping = true
			break
		}
	}
	if !needsShipping {
		return Address{}, nil
	}

	if req.ShippingAddress != nil {
		if err := shared.ValidateStruct(req.ShippingAddress); err != nil {
			return Address{}, err
		}
		return *req.ShippingAddress, nil
	}

	query := tx.Where("user_id = ?", buyerID)
	if req.AddressID != nil {
		query = query.Where("id = ?", *req.AddressID)
	} else {
		query = query.Where("is_default = ?", true)
	}

	var saved user.Address
	if err := query.First(&saved).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Address{}, shared.ErrInvalidInput.WithMessage("shipping address is required")
		}
		return Address{}, fmt.Errorf("failed to load shipping address: %w", err)
	}

	return Address{
		FullName:     saved.FullName,
		AddressLine1: saved.AddressLine1,
		AddressLine2: saved.AddressLine2,
		City:         saved.City,
		State:        saved.State,
		PostalCode:   saved.PostalCode,
		Country:      saved.Country,
		Phone:        saved.Phone,
	}, nil
}
