// internal/domain/order/entity.go
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// PaymentStatus represents payment status
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentSource is where the money for an order comes from
type PaymentSource string

const (
	PaymentSourceBalance  PaymentSource = "balance"
	PaymentSourceCard     PaymentSource = "card"
	PaymentSourceExternal PaymentSource = "external"
)

// statusTransitions lists the statuses reachable from each status
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
}

// Order is a seller-scoped purchase. A multi-seller checkout produces one Order per seller.
type Order struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	OrderNumber   string        `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	BuyerID       *uint         `gorm:"index" json:"buyer_id"`
	SellerID      *uint         `gorm:"index" json:"seller_id"`
	Email         string        `gorm:"size:255" json:"email"`
	Status        OrderStatus   `gorm:"size:20;not null;default:'pending';index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"size:20;not null;default:'pending'" json:"payment_status"`
	PaymentSource PaymentSource `gorm:"size:20;not null;default:'external'" json:"payment_source"`
	PaymentRef    string        `gorm:"size:255" json:"payment_reference,omitempty"`

	// Financial Information
	Subtotal       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	ShippingAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"shipping_amount"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"tax_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"discount_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	PayoutClawback decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"payout_clawback"`
	Currency       string          `gorm:"size:3;default:'USD'" json:"currency"`
	PromoCode      string          `gorm:"size:50" json:"promo_code,omitempty"`

	ShippingAddress Address `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`

	Notes string `gorm:"type:text" json:"notes"`

	// Shipping Information
	TrackingNumber  string `gorm:"size:100" json:"tracking_number"`
	ShippingCarrier string `gorm:"size:50" json:"shipping_carrier"`

	// Timestamps
	PaidAt      *time.Time     `json:"paid_at"`
	ShippedAt   *time.Time     `json:"shipped_at"`
	DeliveredAt *time.Time     `json:"delivered_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem snapshots a purchased line. Name, SKU and price never follow later catalog edits.
type OrderItem struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrderID          uint            `gorm:"not null;index" json:"order_id"`
	ProductID        *uint           `gorm:"index" json:"product_id"`
	ProductVariantID *uint           `gorm:"index" json:"product_variant_id"`
	SellerID         *uint           `gorm:"index" json:"seller_id"`
	ProductName      string          `gorm:"not null;size:255" json:"product_name"`
	ProductSKU       string          `gorm:"not null;size:100" json:"product_sku"`
	VariantName      string          `gorm:"size:255" json:"variant_name,omitempty"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	Price            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Subtotal         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	CommissionRate   decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"commission_rate"`
	CommissionAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"commission_amount"`
	IsDigital        bool            `gorm:"not null;default:false" json:"is_digital"`
	Status           OrderStatus     `gorm:"size:20;not null;default:'pending'" json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// OrderStatusHistory tracks order status changes
type OrderStatusHistory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   uint        `gorm:"not null;index" json:"order_id"`
	Status    OrderStatus `gorm:"size:20;not null" json:"status"`
	Comment   string      `gorm:"type:text" json:"comment"`
	CreatedBy *uint       `gorm:"index" json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// Address is the shipping address snapshot embedded in an order
type Address struct {
	FullName     string `gorm:"size:200" json:"full_name" binding:"required"`
	AddressLine1 string `gorm:"size:255" json:"address_line1" binding:"required"`
	AddressLine2 string `gorm:"size:255" json:"address_line2"`
	City         string `gorm:"size:100" json:"city" binding:"required"`
	State        string `gorm:"size:100" json:"state"`
	PostalCode   string `gorm:"size:20" json:"postal_code" binding:"required"`
	Country      string `gorm:"size:2" json:"country" binding:"required,len=2"`
	Phone        string `gorm:"size:20" json:"phone"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }

// GenerateOrderNumber returns ORD- followed by 12 upper-case hex characters
func GenerateOrderNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ORD-%s", strings.ToUpper(hex[:12]))
}

// CanTransitionTo checks the status transition table
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range statusTransitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanBeCancelled checks if order can be cancelled
func (o *Order) CanBeCancelled() bool {
	return o.CanTransitionTo(OrderStatusCancelled)
}

// IsPaid reports whether payment has been captured
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusCompleted
}

// HasDigitalItems reports whether any loaded item is delivered by key
func (o *Order) HasDigitalItems() bool {
	for _, item := range o.Items {
		if item.IsDigital {
			return true
		}
	}
	return false
}

// HasPhysicalItems reports whether any loaded item needs shipping
func (o *Order) HasPhysicalItems() bool {
	for _, item := range o.Items {
		if !item.IsDigital {
			return true
		}
	}
	return false
}

// SellerEarnings is the line subtotal minus the captured commission
func (i *OrderItem) SellerEarnings() decimal.Decimal {
	return i.Subtotal.Sub(i.CommissionAmount)
}
