// internal/domain/fulfillment/entity.go
package fulfillment

import "time"

// DigitalKey is a single-use code for a digital product
type DigitalKey struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ProductID   uint       `gorm:"not null;index:idx_digital_keys_product_used,priority:1" json:"product_id"`
	KeyCode     string     `gorm:"type:text;not null" json:"-"`
	IsUsed      bool       `gorm:"not null;default:false;index:idx_digital_keys_product_used,priority:2" json:"is_used"`
	PurchasedBy *uint      `gorm:"index" json:"purchased_by,omitempty"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DigitalKeyDelivery binds one order item to one key. Rows are never updated.
type DigitalKeyDelivery struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderItemID uint      `gorm:"not null;uniqueIndex" json:"order_item_id"`
	KeyID       uint      `gorm:"not null;uniqueIndex" json:"key_id"`
	DeliveredAt time.Time `gorm:"not null" json:"delivered_at"`

	Key *DigitalKey `gorm:"foreignKey:KeyID" json:"-"`
}

// TableName overrides
func (DigitalKey) TableName() string         { return "digital_keys" }
func (DigitalKeyDelivery) TableName() string { return "digital_key_deliveries" }

// Delivered describes a key handed to a buyer during fulfillment
type Delivered struct {
	OrderItemID uint   `json:"order_item_id"`
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	KeyID       uint   `json:"key_id"`
	code        string
}

// Shortage is a paid digital line left undelivered for lack of keys
type Shortage struct {
	OrderItemID uint   `json:"order_item_id"`
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
}

// FulfillmentResult summarizes one fulfillment pass over an order
type FulfillmentResult struct {
	OrderID          uint        `json:"order_id"`
	Delivered        []Delivered `json:"delivered"`
	AlreadyDelivered int         `json:"already_delivered"`
	Shortages        []Shortage  `json:"shortages"`
	OrderCompleted   bool        `json:"order_completed"`
}

// PendingDelivery is the operator view of undelivered paid digital items per product
type PendingDelivery struct {
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	SellerID    uint   `json:"seller_id"`
	Pending     int64  `json:"pending"`
	UnusedKeys  int64  `json:"unused_keys"`
}

// DeliveredKey is a key as shown to the buyer who owns it
type DeliveredKey struct {
	OrderID     uint      `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	OrderItemID uint      `json:"order_item_id"`
	ProductName string    `json:"product_name"`
	Code        string    `json:"code"`
	DeliveredAt time.Time `json:"delivered_at"`
}
