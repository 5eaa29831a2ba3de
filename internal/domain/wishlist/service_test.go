package wishlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/domain/fulfillment"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/testutil"
	"gorm.io/gorm"
)

const userID uint = 7

func setupWishlistTest(t *testing.T) (*gorm.DB, *Service) {
	db := testutil.NewDB(t,
		&product.Product{}, &product.ProductVariant{}, &fulfillment.DigitalKey{},
		&cart.Cart{}, &cart.CartItem{}, &WishlistItem{},
	)
	require.NoError(t, db.Create(&[]product.Product{
		{ID: 1, SellerID: 10, SKU: "MUG", Name: "Mug", Slug: "mug", ProductType: product.ProductTypePhysical, Price: testutil.Dec(t, "12.00"), StockQuantity: 3, IsActive: true},
		{ID: 2, SellerID: 20, SKU: "GAME", Name: "Game", Slug: "game", ProductType: product.ProductTypeDigital, Price: testutil.Dec(t, "30.00"), IsActive: true},
		{ID: 3, SellerID: 10, SKU: "LAMP", Name: "Lamp", Slug: "lamp", ProductType: product.ProductTypePhysical, Price: testutil.Dec(t, "40.00"), StockQuantity: 1, IsActive: true},
	}).Error)
	require.NoError(t, db.Create(&product.ProductVariant{
		ID: 1, ProductID: 1, SKU: "MUG-XL", Name: "XL", PriceAdjustment: testutil.Dec(t, "3.00"), StockQuantity: 2, IsActive: true,
	}).Error)

	return db, NewService(db, cart.NewService(db, testutil.Config()))
}

func TestAddItem_GetOrCreate(t *testing.T) {
	db, svc := setupWishlistTest(t)
	ctx := context.Background()

	item, created, err := svc.AddItem(ctx, userID, &AddRequest{ProductID: 1})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Mug", item.Name)
	testutil.AssertMoney(t, "12.00", item.CurrentPrice)
	assert.True(t, item.IsAvailable)
	assert.True(t, item.InStock)

	again, created, err := svc.AddItem(ctx, userID, &AddRequest{ProductID: 1})
	require.NoError(t, err)
	assert.False(t, created, "saving twice keeps one entry")
	assert.Equal(t, item.ID, again.ID)

	variantID := uint(1)
	xl, created, err := svc.AddItem(ctx, userID, &AddRequest{ProductID: 1, ProductVariantID: &variantID})
	require.NoError(t, err)
	assert.True(t, created, "a variant is a separate entry")
	testutil.AssertMoney(t, "15.00", xl.CurrentPrice)

	game, _, err := svc.AddItem(ctx, userID, &AddRequest{ProductID: 2})
	require.NoError(t, err)
	assert.False(t, game.InStock, "no unused keys")

	var rows int64
	require.NoError(t, db.Model(&WishlistItem{}).Where("user_id = ?", userID).Count(&rows).Error)
	assert.Equal(t, int64(3), rows)

	_, _, err = svc.AddItem(ctx, userID, &AddRequest{ProductID: 404})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	missing := uint(9)
	_, _, err = svc.AddItem(ctx, userID, &AddRequest{ProductID: 1, ProductVariantID: &missing})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetWishlist_PagesAndSummarizes(t *testing.T) {
	db, svc := setupWishlistTest(t)
	ctx := context.Background()

	for _, id := range []uint{1, 2, 3} {
		_, _, err := svc.AddItem(ctx, userID, &AddRequest{ProductID: id})
		require.NoError(t, err)
	}
	_, _, err := svc.AddItem(ctx, 99, &AddRequest{ProductID: 1})
	require.NoError(t, err)

	old := time.Now().UTC().AddDate(0, 0, -30)
	require.NoError(t, db.Model(&WishlistItem{}).Where("user_id = ? AND product_id = ?", userID, 3).Update("added_at", old).Error)
	require.NoError(t, db.Model(&product.Product{}).Where("id = ?", 2).Update("is_active", false).Error)

	resp, err := svc.GetWishlist(ctx, userID, &ListRequest{Page: 1, Limit: 2, SortBy: "product_id", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, uint(1), resp.Items[0].ProductID)
	assert.Equal(t, uint(2), resp.Items[1].ProductID)
	assert.False(t, resp.Items[1].IsAvailable)
	assert.Equal(t, int64(3), resp.Pagination.Total)
	assert.True(t, resp.Pagination.HasNext)

	assert.Equal(t, 3, resp.Summary.TotalItems)
	assert.Equal(t, 2, resp.Summary.AvailableItems)
	assert.Equal(t, 1, resp.Summary.UnavailableItems)
	assert.Equal(t, 2, resp.Summary.RecentlyAdded)
	testutil.AssertMoney(t, "52.00", resp.Summary.TotalValue)

	count, err := svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRemoveAndClear(t *testing.T) {
	_, svc := setupWishlistTest(t)
	ctx := context.Background()

	_, _, err := svc.AddItem(ctx, userID, &AddRequest{ProductID: 1})
	require.NoError(t, err)
	_, _, err = svc.AddItem(ctx, userID, &AddRequest{ProductID: 3})
	require.NoError(t, err)

	variantID := uint(1)
	assert.ErrorIs(t, svc.RemoveItem(ctx, userID, 1, &variantID), shared.ErrNotFound)
	require.NoError(t, svc.RemoveItem(ctx, userID, 1, nil))

	saved, err := svc.Contains(ctx, userID, 1, nil)
	require.NoError(t, err)
	assert.False(t, saved)
	saved, err = svc.Contains(ctx, userID, 3, nil)
	require.NoError(t, err)
	assert.True(t, saved)

	require.NoError(t, svc.Clear(ctx, userID))
	count, err := svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMoveToCart(t *testing.T) {
	_, svc := setupWishlistTest(t)
	ctx := context.Background()

	_, _, err := svc.AddItem(ctx, userID, &AddRequest{ProductID: 3})
	require.NoError(t, err)

	_, err = svc.MoveToCart(ctx, userID, 3, &MoveToCartRequest{Quantity: 2})
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	saved, err := svc.Contains(ctx, userID, 3, nil)
	require.NoError(t, err)
	assert.True(t, saved, "a rejected move keeps the entry")

	resp, err := svc.MoveToCart(ctx, userID, 3, &MoveToCartRequest{Quantity: 1})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, uint(3), resp.Items[0].ProductID)

	saved, err = svc.Contains(ctx, userID, 3, nil)
	require.NoError(t, err)
	assert.False(t, saved)

	_, err = svc.MoveToCart(ctx, userID, 1, &MoveToCartRequest{Quantity: 1})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBulkAdd(t *testing.T) {
	_, svc := setupWishlistTest(t)
	ctx := context.Background()

	_, _, err := svc.AddItem(ctx, userID, &AddRequest{ProductID: 1})
	require.NoError(t, err)

	result, err := svc.BulkAdd(ctx, userID, []uint{1, 3, 404})
	require.NoError(t, err)
	assert.Equal(t, []uint{3}, result.Added)
	assert.Equal(t, []uint{1}, result.Skipped)
	assert.Equal(t, []uint{404}, result.Failed)

	_, err = svc.BulkAdd(ctx, userID, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
