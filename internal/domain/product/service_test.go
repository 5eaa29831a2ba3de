package product

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/testutil"
	"gorm.io/gorm"
)

type testUser struct {
	ID       uint
	Email    string
	UserType string
}

func (testUser) TableName() string { return "users" }

type testDigitalKey struct {
	ID        uint
	ProductID uint
	Code      string
	IsUsed    bool
}

func (testDigitalKey) TableName() string { return "digital_keys" }

func setupProductTestDB(t *testing.T) *gorm.DB {
	return testutil.NewDB(t, &testUser{}, &testDigitalKey{}, &Category{}, &Product{}, &ProductVariant{}, &ProductImage{})
}

func TestProduct_CurrentPrice(t *testing.T) {
	p := Product{Price: testutil.Dec(t, "20.00")}
	testutil.AssertMoney(t, "20.00", p.CurrentPrice(nil))
	assert.False(t, p.IsOnSale())

	p.SalePrice = decimal.NewNullDecimal(testutil.Dec(t, "15.00"))
	testutil.AssertMoney(t, "15.00", p.CurrentPrice(nil))
	assert.Equal(t, 25, p.GetDiscountPercentage())

	variant := &ProductVariant{PriceAdjustment: testutil.Dec(t, "2.50")}
	testutil.AssertMoney(t, "17.50", p.CurrentPrice(variant))

	p.SalePrice = decimal.NewNullDecimal(testutil.Dec(t, "25.00"))
	testutil.AssertMoney(t, "20.00", p.CurrentPrice(nil), "sale above list price is ignored")
}

func TestAvailableStock(t *testing.T) {
	db := setupProductTestDB(t)

	physical := Product{ID: 1, SellerID: 1, SKU: "P-1", Name: "Mug", Slug: "mug", ProductType: ProductTypePhysical, Price: testutil.Dec(t, "5"), StockQuantity: 7}
	digital := Product{ID: 2, SellerID: 1, SKU: "D-1", Name: "Game", Slug: "game", ProductType: ProductTypeDigital, Price: testutil.Dec(t, "30")}
	require.NoError(t, db.Create(&physical).Error)
	require.NoError(t, db.Create(&digital).Error)
	require.NoError(t, db.Create(&[]testDigitalKey{
		{ProductID: 2, Code: "A"},
		{ProductID: 2, Code: "B"},
		{ProductID: 2, Code: "C", IsUsed: true},
	}).Error)

	stock, err := AvailableStock(db, &physical, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, stock)

	stock, err = AvailableStock(db, &physical, &ProductVariant{StockQuantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	stock, err = AvailableStock(db, &digital, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stock)
}

func TestStockAdjustments(t *testing.T) {
	db := setupProductTestDB(t)

	p := Product{SellerID: 1, SKU: "P-2", Name: "Lamp", Slug: "lamp", ProductType: ProductTypePhysical, Price: testutil.Dec(t, "12"), StockQuantity: 2}
	require.NoError(t, db.Create(&p).Error)

	require.NoError(t, DecrementStock(db, &p, nil, 2))
	err := DecrementStock(db, &p, nil, 1)
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)

	require.NoError(t, RestoreStock(db, p.ID, nil, 2))
	var reloaded Product
	require.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.Equal(t, 2, reloaded.StockQuantity)
}

func TestService_CreateAndUpdateProduct(t *testing.T) {
	db := setupProductTestDB(t)
	svc := NewService(db, testutil.Config())
	ctx := context.Background()

	require.NoError(t, db.Create(&testUser{ID: 10, Email: "seller@example.com", UserType: "seller"}).Error)
	require.NoError(t, db.Create(&testUser{ID: 11, Email: "buyer@example.com", UserType: "buyer"}).Error)

	t.Run("buyers cannot list products", func(t *testing.T) {
		_, err := svc.CreateProduct(ctx, 11, &ProductCreateRequest{SKU: "X", Name: "X", Price: testutil.Dec(t, "1")})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("sale price must be below price", func(t *testing.T) {
		sale := testutil.Dec(t, "10")
		_, err := svc.CreateProduct(ctx, 10, &ProductCreateRequest{SKU: "X", Name: "X", Price: testutil.Dec(t, "10"), SalePrice: &sale})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	created, err := svc.CreateProduct(ctx, 10, &ProductCreateRequest{
		SKU:           "TSHIRT",
		Name:          "Plain T-Shirt",
		Price:         testutil.Dec(t, "20"),
		StockQuantity: 5,
		Variants: []VariantCreateInput{
			{SKU: "TSHIRT-XL", Name: "XL", PriceAdjustment: testutil.Dec(t, "2"), StockQuantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ProductTypePhysical, created.ProductType)
	assert.Contains(t, created.Slug, "plain-t-shirt-")
	require.Len(t, created.Variants, 1)

	_, err = svc.CreateProduct(ctx, 10, &ProductCreateRequest{SKU: "TSHIRT", Name: "Dup", Price: testutil.Dec(t, "1")})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	sale := testutil.Dec(t, "18")
	updated, err := svc.UpdateProduct(ctx, 10, created.ID, &ProductUpdateRequest{SalePrice: &sale})
	require.NoError(t, err)
	testutil.AssertMoney(t, "18.00", updated.CurrentPrice(nil))

	_, err = svc.UpdateProduct(ctx, 11, created.ID, &ProductUpdateRequest{SalePrice: &sale})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	variantID := created.Variants[0].ID
	stock, err := svc.GetAvailableStock(ctx, created.ID, &variantID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)

	list, err := svc.GetProducts(ctx, &ProductListRequest{SellerID: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Pagination.Total)

	require.NoError(t, svc.DeleteProduct(ctx, 10, created.ID))
	_, err = svc.GetProduct(ctx, created.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestService_DigitalProductIgnoresStockCounter(t *testing.T) {
	db := setupProductTestDB(t)
	svc := NewService(db, testutil.Config())
	require.NoError(t, db.Create(&testUser{ID: 10, Email: "seller@example.com", UserType: "seller"}).Error)

	created, err := svc.CreateProduct(context.Background(), 10, &ProductCreateRequest{
		SKU: "GAME", Name: "Game Key", ProductType: ProductTypeDigital, Price: testutil.Dec(t, "30"), StockQuantity: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, created.StockQuantity)

	stock := 3
	_, err = svc.UpdateProduct(context.Background(), 10, created.ID, &ProductUpdateRequest{StockQuantity: &stock})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCategoryService(t *testing.T) {
	db := setupProductTestDB(t)
	svc := NewCategoryService(db)
	ctx := context.Background()

	root, err := svc.CreateCategory(ctx, &CategoryCreateRequest{Name: "Games"})
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, &CategoryCreateRequest{Name: "RPG", ParentID: &root.ID})
	require.NoError(t, err)

	missing := uint(999)
	_, err = svc.CreateCategory(ctx, &CategoryCreateRequest{Name: "Orphan", ParentID: &missing})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	categories, err := svc.GetCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Len(t, categories[0].Children, 1)
}
