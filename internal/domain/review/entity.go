// internal/domain/review/entity.go
package review

import (
	"time"

	"github.com/shopspring/decimal"
)

// Review is a buyer's rating of a product. A user reviews a product once.
type Review struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	ProductID          uint      `gorm:"not null;uniqueIndex:idx_reviews_product_user,priority:1" json:"product_id"`
	UserID             uint      `gorm:"not null;uniqueIndex:idx_reviews_product_user,priority:2;index" json:"user_id"`
	OrderItemID        *uint     `gorm:"index" json:"order_item_id,omitempty"`
	Rating             int       `gorm:"not null;check:rating BETWEEN 1 AND 5" json:"rating"`
	Title              string    `gorm:"size:200" json:"title"`
	Comment            string    `gorm:"type:text" json:"comment"`
	IsVerifiedPurchase bool      `gorm:"not null;default:false" json:"is_verified_purchase"`
	IsApproved         bool      `gorm:"not null;default:true" json:"is_approved"`
	HelpfulCount       int       `gorm:"not null;default:0" json:"helpful_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ReviewHelpful records that a user found a review helpful
type ReviewHelpful struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ReviewID  uint      `gorm:"not null;uniqueIndex:idx_review_helpful_user,priority:1" json:"review_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_review_helpful_user,priority:2" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides
func (Review) TableName() string        { return "reviews" }
func (ReviewHelpful) TableName() string { return "review_helpful" }

// Summary is the derived rating of a product
type Summary struct {
	AverageRating decimal.Decimal `json:"average_rating"`
	ReviewCount   int             `json:"review_count"`
	Distribution  map[int]int     `json:"distribution"`
}
