// internal/domain/user/entity.go
package user

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserType represents the role of an account
type UserType string

const (
	UserTypeBuyer  UserType = "buyer"
	UserTypeSeller UserType = "seller"
	UserTypeAdmin  UserType = "admin"
)

// User represents the user entity. Balance is mutated only through the ledger.
type User struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Email       string          `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password    string          `gorm:"not null;size:255" json:"-"`
	FirstName   string          `gorm:"size:100" json:"first_name"`
	LastName    string          `gorm:"size:100" json:"last_name"`
	Phone       string          `gorm:"size:20" json:"phone"`
	UserType    UserType        `gorm:"size:20;not null;default:'buyer'" json:"user_type"`
	Balance     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"balance"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time      `json:"last_login_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relationships
	SellerProfile *SellerProfile `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"seller_profile,omitempty"`
	Addresses     []Address      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"addresses,omitempty"`
}

// SellerProfile holds payout data for a seller account
type SellerProfile struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	BusinessName   string          `gorm:"size:255;not null" json:"business_name"`
	Description    string          `gorm:"type:text" json:"description"`
	CommissionRate decimal.Decimal `gorm:"type:numeric(5,2);not null;default:15.00" json:"commission_rate"`
	TotalSales     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total_sales"`
	IsApproved     bool            `gorm:"default:false" json:"is_approved"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Address represents a saved user address
type Address struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	FullName     string    `gorm:"size:200;not null" json:"full_name"`
	AddressLine1 string    `gorm:"size:255;not null" json:"address_line1"`
	AddressLine2 string    `gorm:"size:255" json:"address_line2"`
	City         string    `gorm:"size:100;not null" json:"city"`
	State        string    `gorm:"size:100" json:"state"`
	PostalCode   string    `gorm:"size:20" json:"postal_code"`
	Country      string    `gorm:"size:2;not null;default:'US'" json:"country"`
	Phone        string    `gorm:"size:20" json:"phone"`
	IsDefault    bool      `gorm:"default:false" json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName overrides
func (User) TableName() string          { return "users" }
func (SellerProfile) TableName() string { return "seller_profiles" }
func (Address) TableName() string       { return "addresses" }

// BeforeCreate normalizes the email and defaults the account type
func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.UserType == "" {
		u.UserType = UserTypeBuyer
	}
	return nil
}

// GetFullName returns the user's full name
func (u *User) GetFullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// GetDisplayName returns display name (full name or email)
func (u *User) GetDisplayName() string {
	if fullName := u.GetFullName(); fullName != "" {
		return fullName
	}
	return u.Email
}

// IsSeller reports whether the account can list products
func (u *User) IsSeller() bool {
	return u.UserType == UserTypeSeller
}

// IsAdmin reports whether the account is an administrator
func (u *User) IsAdmin() bool {
	return u.UserType == UserTypeAdmin
}
