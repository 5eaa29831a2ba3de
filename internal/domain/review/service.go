// internal/domain/review/service.go
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/domain/order"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles review business logic
type Service struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

// NewService creates a new review service
func NewService(db *gorm.DB, logger logrus.FieldLogger) *Service {
	return &Service{db: db, logger: logger}
}

// CreateReviewRequest represents a new review
type CreateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Title   string `json:"title" binding:"max=200"`
	Comment string `json:"comment" binding:"max=5000"`
}

// UpdateReviewRequest represents a review edit. Nil fields are left unchanged.
type UpdateReviewRequest struct {
	Rating  *int    `json:"rating" binding:"omitempty,min=1,max=5"`
	Title   *string `json:"title" binding:"omitempty,max=200"`
	Comment *string `json:"comment" binding:"omitempty,max=5000"`
}

// ReviewListRequest represents review list query parameters
type ReviewListRequest struct {
	Page         int    `form:"page,default=1"`
	Limit        int    `form:"limit,default=10"`
	Rating       int    `form:"rating" binding:"omitempty,min=1,max=5"`
	VerifiedOnly bool   `form:"verified_only"`
	SortBy       string `form:"sort_by" binding:"omitempty,oneof=newest oldest rating_high rating_low helpful"`
}

// ReviewListResponse represents a page of reviews with the product summary
type ReviewListResponse struct {
	Reviews    []Review          `json:"reviews"`
	Summary    Summary           `json:"summary"`
	Pagination shared.Pagination `json:"pagination"`
}

// CreateReview stores the user's review of a product and refreshes the
// product rating in the same transaction
func (s *Service) CreateReview(ctx context.Context, userID, productID uint, req *CreateReviewRequest) (*Review, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}

	var review Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockProduct(tx, productID)
		if err != nil {
			return err
		}
		if p.SellerID == userID {
			return shared.ErrForbidden.WithMessage("sellers cannot review their own products")
		}

		review = Review{
			ProductID: productID,
			UserID:    userID,
			Rating:    req.Rating,
			Title:     req.Title,
			Comment:   req.Comment,
		}
		if err := verifyPurchase(tx, &review); err != nil {
			return err
		}

		if err := tx.Create(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.ErrAlreadyExists.WithMessage("you have already reviewed this product")
			}
			return fmt.Errorf("failed to create review: %w", err)
		}

		return recomputeRating(tx, productID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"review_id":  review.ID,
		"product_id": productID,
		"verified":   review.IsVerifiedPurchase,
	}).Info("Review created")
	return &review, nil
}

// UpdateReview edits the owner's review, re-evaluating the verified flag
func (s *Service) UpdateReview(ctx context.Context, userID, reviewID uint, req *UpdateReviewRequest) (*Review, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}

	var review Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.loadOwned(tx, userID, reviewID, &review); err != nil {
			return err
		}
		if _, err := lockProduct(tx, review.ProductID); err != nil {
			return err
		}

		if req.Rating != nil {
			review.Rating = *req.Rating
		}
		if req.Title != nil {
			review.Title = *req.Title
		}
		if req.Comment != nil {
			review.Comment = *req.Comment
		}
		if err := verifyPurchase(tx, &review); err != nil {
			return err
		}

		err := tx.Model(&review).Select("rating", "title", "comment", "is_verified_purchase", "order_item_id").Updates(&review).Error
		if err != nil {
			return fmt.Errorf("failed to update review: %w", err)
		}

		return recomputeRating(tx, review.ProductID)
	})
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// DeleteReview removes the owner's review
func (s *Service) DeleteReview(ctx context.Context, userID, reviewID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var review Review
		if err := s.loadOwned(tx, userID, reviewID, &review); err != nil {
			return err
		}
		if _, err := lockProduct(tx, review.ProductID); err != nil {
			return err
		}

		if err := tx.Where("review_id = ?", review.ID).Delete(&ReviewHelpful{}).Error; err != nil {
			return fmt.Errorf("failed to delete helpful votes: %w", err)
		}
		if err := tx.Delete(&review).Error; err != nil {
			return fmt.Errorf("failed to delete review: %w", err)
		}

		return recomputeRating(tx, review.ProductID)
	})
}

// SetApproved hides or shows a review. Only approved reviews count towards the rating.
func (s *Service) SetApproved(ctx context.Context, reviewID uint, approved bool) (*Review, error) {
	var review Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&review, reviewID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound.WithMessage("review not found")
			}
			return fmt.Errorf("failed to load review: %w", err)
		}
		if _, err := lockProduct(tx, review.ProductID); err != nil {
			return err
		}

		if err := tx.Model(&review).Update("is_approved", approved).Error; err != nil {
			return fmt.Errorf("failed to update review: %w", err)
		}
		review.IsApproved = approved

		return recomputeRating(tx, review.ProductID)
	})
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// ListProductReviews retrieves approved reviews of a product
func (s *Service) ListProductReviews(ctx context.Context, productID uint, req *ReviewListRequest) (*ReviewListResponse, error) {
	page, limit := shared.NormalizePage(req.Page, req.Limit)

	query := s.db.WithContext(ctx).Model(&Review{}).
		Where("product_id = ? AND is_approved = ?", productID, true)
	if req.Rating > 0 {
		query = query.Where("rating = ?", req.Rating)
	}
	if req.VerifiedOnly {
		query = query.Where("is_verified_purchase = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}

	orderBy := "created_at DESC, id DESC"
	switch req.SortBy {
	case "oldest":
		orderBy = "created_at ASC, id ASC"
	case "rating_high":
		orderBy = "rating DESC, id DESC"
	case "rating_low":
		orderBy = "rating ASC, id DESC"
	case "helpful":
		orderBy = "helpful_count DESC, id DESC"
	}

	var reviews []Review
	err := query.Order(orderBy).Offset(shared.Offset(page, limit)).Limit(limit).Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve reviews: %w", err)
	}

	summary, err := s.Summary(ctx, productID)
	if err != nil {
		return nil, err
	}

	return &ReviewListResponse{
		Reviews:    reviews,
		Summary:    *summary,
		Pagination: shared.NewPagination(page, limit, total),
	}, nil
}

// Summary returns the product's stored rating with a per-star breakdown
func (s *Service) Summary(ctx context.Context, productID uint) (*Summary, error) {
	var p product.Product
	if err := s.db.WithContext(ctx).Select("id", "average_rating", "review_count").First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("product not found")
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	var rows []struct {
		Rating int
		Count  int
	}
	err := s.db.WithContext(ctx).Model(&Review{}).
		Select("rating, COUNT(*) AS count").
		Where("product_id = ? AND is_approved = ?", productID, true).
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rating distribution: %w", err)
	}

	dist := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	for _, r := range rows {
		dist[r.Rating] = r.Count
	}
	return &Summary{
		AverageRating: p.AverageRating,
		ReviewCount:   p.ReviewCount,
		Distribution:  dist,
	}, nil
}

// MarkHelpful records a helpful vote. Each user counts once per review.
func (s *Service) MarkHelpful(ctx context.Context, userID, reviewID uint) (*Review, error) {
	var review Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&review, reviewID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound.WithMessage("review not found")
			}
			return fmt.Errorf("failed to load review: %w", err)
		}
		if review.UserID == userID {
			return shared.ErrInvalidInput.WithMessage("you cannot vote for your own review")
		}

		vote := ReviewHelpful{ReviewID: reviewID, UserID: userID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&vote)
		if res.Error != nil {
			return fmt.Errorf("failed to record vote: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		err := tx.Model(&review).UpdateColumn("helpful_count", gorm.Expr("helpful_count + ?", 1)).Error
		if err != nil {
			return fmt.Errorf("failed to update helpful count: %w", err)
		}
		review.HelpfulCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (s *Service) loadOwned(tx *gorm.DB, userID, reviewID uint, review *Review) error {
	if err := tx.First(review, reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound.WithMessage("review not found")
		}
		return fmt.Errorf("failed to load review: %w", err)
	}
	if review.UserID != userID {
		return shared.ErrNotFound.WithMessage("review not found")
	}
	return nil
}

// verifyPurchase sets the verified flag from the user's fully paid order items
// for the product that were shipped, delivered, or served a digital key
func verifyPurchase(tx *gorm.DB, review *Review) error {
	received := tx.Session(&gorm.Session{NewDB: true}).
		Where("o.status IN ?", []order.OrderStatus{order.OrderStatusShipped, order.OrderStatusDelivered}).
		Or("oi.is_digital = ? AND o.status NOT IN ? AND EXISTS (SELECT 1 FROM digital_key_deliveries d WHERE d.order_item_id = oi.id)",
			true, []order.OrderStatus{order.OrderStatusCancelled, order.OrderStatusRefunded})

	var itemIDs []uint
	err := tx.Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Where("o.buyer_id = ? AND oi.product_id = ?", review.UserID, review.ProductID).
		Where(received).
		Where("o.payment_status = ?", order.PaymentStatusCompleted).
		Where("o.deleted_at IS NULL").
		Order("oi.id DESC").
		Limit(1).
		Pluck("oi.id", &itemIDs).Error
	if err != nil {
		return fmt.Errorf("failed to check purchase: %w", err)
	}

	if len(itemIDs) == 0 {
		review.IsVerifiedPurchase = false
		review.OrderItemID = nil
		return nil
	}
	review.IsVerifiedPurchase = true
	review.OrderItemID = &itemIDs[0]
	return nil
}

// recomputeRating rewrites the product's average rating and review count
// from its approved reviews. The product row must already be locked.
func recomputeRating(tx *gorm.DB, productID uint) error {
	var agg struct {
		Count int64
		Total int64
	}
	err := tx.Model(&Review{}).
		Select("COUNT(*) AS count, COALESCE(SUM(rating), 0) AS total").
		Where("product_id = ? AND is_approved = ?", productID, true).
		Scan(&agg).Error
	if err != nil {
		return fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	average := decimal.Zero
	if agg.Count > 0 {
		average = decimal.NewFromInt(agg.Total).DivRound(decimal.NewFromInt(agg.Count), 2)
	}

	err = tx.Model(&product.Product{}).Where("id = ?", productID).UpdateColumns(map[string]interface{}{
		"average_rating": average,
		"review_count":   agg.Count,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update product rating: %w", err)
	}
	return nil
}

func lockProduct(tx *gorm.DB, productID uint) (*product.Product, error) {
	var p product.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "seller_id").
		First(&p, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("product not found")
		}
		return nil, fmt.Errorf("failed to lock product: %w", err)
	}
	return &p, nil
}
