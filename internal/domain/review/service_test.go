package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/domain/fulfillment"
	"github.com/your-org/marketplace-backend/internal/domain/order"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/testutil"
	"gorm.io/gorm"
)

const (
	sellerID  uint = 10
	productID uint = 1
)

func setupReviewTest(t *testing.T) (*gorm.DB, *Service) {
	db := testutil.NewDB(t,
		&product.Product{}, &order.Order{}, &order.OrderItem{},
		&fulfillment.DigitalKey{}, &fulfillment.DigitalKeyDelivery{},
		&Review{}, &ReviewHelpful{},
	)
	require.NoError(t, db.Create(&product.Product{
		ID: productID, SellerID: sellerID, SKU: "MUG", Name: "Mug", Slug: "mug",
		ProductType: product.ProductTypePhysical, Price: testutil.Dec(t, "20.00"), StockQuantity: 5, IsActive: true,
	}).Error)
	return db, NewService(db, testutil.Logger())
}

func createOrder(t *testing.T, db *gorm.DB, number string, buyerID uint, status order.OrderStatus, payment order.PaymentStatus) order.OrderItem {
	buyer, seller, pid := buyerID, sellerID, productID
	o := order.Order{
		OrderNumber:   number,
		BuyerID:       &buyer,
		SellerID:      &seller,
		Status:        status,
		PaymentStatus: payment,
		Subtotal:      testutil.Dec(t, "20.00"),
		TotalAmount:   testutil.Dec(t, "20.00"),
		Items: []order.OrderItem{{
			ProductID: &pid, SellerID: &seller, ProductName: "Mug", ProductSKU: "MUG",
			Quantity: 1, Price: testutil.Dec(t, "20.00"), Subtotal: testutil.Dec(t, "20.00"),
		}},
	}
	require.NoError(t, db.Create(&o).Error)
	return o.Items[0]
}

func productRating(t *testing.T, db *gorm.DB) (string, int) {
	var p product.Product
	require.NoError(t, db.First(&p, productID).Error)
	return p.AverageRating.StringFixed(2), p.ReviewCount
}

func TestCreateReview_VerifiedPurchase(t *testing.T) {
	db, svc := setupReviewTest(t)
	ctx := context.Background()

	item := createOrder(t, db, "ORD-1", 2, order.OrderStatusDelivered, order.PaymentStatusCompleted)
	createOrder(t, db, "ORD-2", 3, order.OrderStatusPaid, order.PaymentStatusCompleted)

	verified, err := svc.CreateReview(ctx, 2, productID, &CreateReviewRequest{Rating: 5, Title: "Great"})
	require.NoError(t, err)
	assert.True(t, verified.IsVerifiedPurchase)
	require.NotNil(t, verified.OrderItemID)
	assert.Equal(t, item.ID, *verified.OrderItemID)

	notYet, err := svc.CreateReview(ctx, 3, productID, &CreateReviewRequest{Rating: 4})
	require.NoError(t, err)
	assert.False(t, notYet.IsVerifiedPurchase, "paid but unshipped orders do not verify")

	stranger, err := svc.CreateReview(ctx, 4, productID, &CreateReviewRequest{Rating: 3})
	require.NoError(t, err)
	assert.False(t, stranger.IsVerifiedPurchase)
}

func TestCreateReview_DeliveredDigitalKeyVerifies(t *testing.T) {
	db, svc := setupReviewTest(t)
	ctx := context.Background()

	const gameID uint = 5
	require.NoError(t, db.Create(&product.Product{
		ID: gameID, SellerID: sellerID, SKU: "GAME", Name: "Game", Slug: "game",
		ProductType: product.ProductTypeDigital, Price: testutil.Dec(t, "30.00"), IsActive: true,
	}).Error)

	paidDigital := func(number string, buyerID uint) order.OrderItem {
		buyer, seller, pid := buyerID, sellerID, gameID
		o := order.Order{
			OrderNumber: number, BuyerID: &buyer, SellerID: &seller,
			Status: order.OrderStatusPaid, PaymentStatus: order.PaymentStatusCompleted,
			Subtotal: testutil.Dec(t, "30.00"), TotalAmount: testutil.Dec(t, "30.00"),
			Items: []order.OrderItem{{
				ProductID: &pid, SellerID: &seller, ProductName: "Game", ProductSKU: "GAME",
				Quantity: 1, Price: testutil.Dec(t, "30.00"), Subtotal: testutil.Dec(t, "30.00"), IsDigital: true,
			}},
		}
		require.NoError(t, db.Create(&o).Error)
		return o.Items[0]
	}

	delivered := paidDigital("ORD-1", 2)
	key := fulfillment.DigitalKey{ProductID: gameID, KeyCode: "K1", IsUsed: true}
	require.NoError(t, db.Create(&key).Error)
	require.NoError(t, db.Create(&fulfillment.DigitalKeyDelivery{
		OrderItemID: delivered.ID, KeyID: key.ID, DeliveredAt: time.Now().UTC(),
	}).Error)
	paidDigital("ORD-2", 3)

	r, err := svc.CreateReview(ctx, 2, gameID, &CreateReviewRequest{Rating: 5})
	require.NoError(t, err)
	assert.True(t, r.IsVerifiedPurchase, "a delivered key counts as a received purchase")
	require.NotNil(t, r.OrderItemID)
	assert.Equal(t, delivered.ID, *r.OrderItemID)

	waiting, err := svc.CreateReview(ctx, 3, gameID, &CreateReviewRequest{Rating: 4})
	require.NoError(t, err)
	assert.False(t, waiting.IsVerifiedPurchase, "a key still pending does not verify")
}

func TestCreateReview_Rules(t *testing.T) {
	_, svc := setupReviewTest(t)
	ctx := context.Background()

	_, err := svc.CreateReview(ctx, 2, productID, &CreateReviewRequest{Rating: 4})
	require.NoError(t, err)

	_, err = svc.CreateReview(ctx, 2, productID, &CreateReviewRequest{Rating: 2})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	_, err = svc.CreateReview(ctx, 3, productID, &CreateReviewRequest{Rating: 6})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.CreateReview(ctx, sellerID, productID, &CreateReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.CreateReview(ctx, 3, 404, &CreateReviewRequest{Rating: 5})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRatingAggregate(t *testing.T) {
	db, svc := setupReviewTest(t)
	ctx := context.Background()

	a, err := svc.CreateReview(ctx, 2, productID, &CreateReviewRequest{Rating: 5})
	require.NoError(t, err)
	_, err = svc.CreateReview(ctx, 3, productID, &CreateReviewRequest{Rating: 4})
	require.NoError(t, err)
	c, err := svc.CreateReview(ctx, 4, productID, &CreateReviewRequest{Rating: 4})
	require.NoError(t, err)

	avg, count := productRating(t, db)
	assert.Equal(t, "4.33", avg)
	assert.Equal(t, 3, count)

	rating := 1
	_, err = svc.UpdateReview(ctx, 2, a.ID, &UpdateReviewRequest{Rating: &rating})
	require.NoError(t, err)
	avg, _ = productRating(t, db)
	assert.Equal(t, "3.00", avg)

	_, err = svc.SetApproved(ctx, c.ID, false)
	require.NoError(t, err)
	avg, count = productRating(t, db)
	assert.Equal(t, "2.50", avg)
	assert.Equal(t, 2, count)

	_, err = svc.UpdateReview(ctx, 3, a.ID, &UpdateReviewRequest{Rating: &rating})
	assert.ErrorIs(t, err, shared.ErrNotFound, "only the owner can edit")

	require.NoError(t, svc.DeleteReview(ctx, 2, a.ID))
	avg, count = productRating(t, db)
	assert.Equal(t, "4.00", avg)
	assert.Equal(t, 1, count)
}

func TestUpdateReview_ReevaluatesVerifiedFlag(t *testing.T) {
	db, svc := setupReviewTest(t)
	ctx := context.Background()

	r, err := svc.CreateReview(ctx, 2, productID, &CreateReviewRequest{Rating: 3})
	require.NoError(t, err)
	assert.False(t, r.IsVerifiedPurchase)

	createOrder(t, db, "ORD-1", 2, order.OrderStatusShipped, order.PaymentStatusCompleted)

	title := "Arrived"
	updated, err := svc.UpdateReview(ctx, 2, r.ID, &UpdateReviewRequest{Title: &title})
	require.NoError(t, err)
	assert.True(t, updated.IsVerifiedPurchase)
	assert.Equal(t, 3, updated.Rating)
	assert.Equal(t, "Arrived", updated.Title)
}

func TestMarkHelpful(t *testing.T) {
	_, svc := setupReviewTest(t)
	ctx := context.Background()

	r, err := svc.CreateReview(ctx, 2, productID, &CreateReviewRequest{Rating: 5})
	require.NoError(t, err)

	got, err := svc.MarkHelpful(ctx, 3, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.HelpfulCount)

	got, err = svc.MarkHelpful(ctx, 3, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.HelpfulCount, "a second vote from the same user is ignored")

	got, err = svc.MarkHelpful(ctx, 4, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.HelpfulCount)

	_, err = svc.MarkHelpful(ctx, 2, r.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestListProductReviews(t *testing.T) {
	db, svc := setupReviewTest(t)
	ctx := context.Background()
	createOrder(t, db, "ORD-1", 2, order.OrderStatusDelivered, order.PaymentStatusCompleted)

	for user, rating := range map[uint]int{2: 5, 3: 4, 4: 1} {
		_, err := svc.CreateReview(ctx, user, productID, &CreateReviewRequest{Rating: rating})
		require.NoError(t, err)
	}

	all, err := svc.ListProductReviews(ctx, productID, &ReviewListRequest{SortBy: "rating_high"})
	require.NoError(t, err)
	require.Len(t, all.Reviews, 3)
	assert.Equal(t, 5, all.Reviews[0].Rating)
	assert.Equal(t, int64(3), all.Pagination.Total)
	assert.Equal(t, 3, all.Summary.ReviewCount)
	assert.Equal(t, 1, all.Summary.Distribution[4])
	assert.Equal(t, 0, all.Summary.Distribution[2])

	verified, err := svc.ListProductReviews(ctx, productID, &ReviewListRequest{VerifiedOnly: true})
	require.NoError(t, err)
	require.Len(t, verified.Reviews, 1)
	assert.Equal(t, uint(2), verified.Reviews[0].UserID)

	ones, err := svc.ListProductReviews(ctx, productID, &ReviewListRequest{Rating: 1})
	require.NoError(t, err)
	assert.Len(t, ones.Reviews, 1)
}
