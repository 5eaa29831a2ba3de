package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/domain/ledger"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/promo"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"github.com/your-org/marketplace-backend/internal/testutil"
	"gorm.io/gorm"
)

type testDigitalKey struct {
	ID        uint
	ProductID uint
	Code      string
	IsUsed    bool
}

func (testDigitalKey) TableName() string { return "digital_keys" }

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []shared.Job
}

func (d *recordingDispatcher) Enqueue(_ context.Context, job shared.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

type orderFixture struct {
	db         *gorm.DB
	svc        *Service
	carts      *cart.Service
	dispatcher *recordingDispatcher
}

const (
	buyerID   uint = 2
	sellerA   uint = 10
	sellerB   uint = 20
	mugID     uint = 1
	lampID    uint = 2
	gameID    uint = 3
	accountID uint = 1
)

func setupOrderTest(t *testing.T) *orderFixture {
	db := testutil.NewDB(t,
		&user.User{}, &user.SellerProfile{}, &user.Address{},
		&product.Product{}, &product.ProductVariant{}, &testDigitalKey{},
		&cart.Cart{}, &cart.CartItem{}, &promo.PromoCode{},
		&Order{}, &OrderItem{}, &OrderStatusHistory{},
		&ledger.BalanceTransaction{}, &ledger.BalanceTopUp{},
	)

	require.NoError(t, db.Create(&[]user.User{
		{ID: accountID, Email: "market@example.com", Password: "x", UserType: user.UserTypeAdmin},
		{ID: buyerID, Email: "buyer@example.com", Password: "x", Balance: testutil.Dec(t, "100.00")},
		{ID: sellerA, Email: "a@example.com", Password: "x", UserType: user.UserTypeSeller},
		{ID: sellerB, Email: "b@example.com", Password: "x", UserType: user.UserTypeSeller},
	}).Error)
	require.NoError(t, db.Create(&user.SellerProfile{UserID: sellerA, BusinessName: "A", CommissionRate: testutil.Dec(t, "12.50")}).Error)

	require.NoError(t, db.Create(&[]product.Product{
		{ID: mugID, SellerID: sellerA, SKU: "MUG", Name: "Mug", Slug: "mug", ProductType: product.ProductTypePhysical, Price: testutil.Dec(t, "20.00"), StockQuantity: 5, IsActive: true},
		{ID: lampID, SellerID: sellerB, SKU: "LAMP", Name: "Lamp", Slug: "lamp", ProductType: product.ProductTypePhysical, Price: testutil.Dec(t, "15.00"), StockQuantity: 3, IsActive: true},
		{ID: gameID, SellerID: sellerB, SKU: "GAME", Name: "Game", Slug: "game", ProductType: product.ProductTypeDigital, Price: testutil.Dec(t, "30.00"), IsActive: true},
	}).Error)
	require.NoError(t, db.Create(&testDigitalKey{ProductID: gameID, Code: "KEY-1"}).Error)

	cfg := testutil.Config()
	dispatcher := &recordingDispatcher{}
	return &orderFixture{
		db:         db,
		svc:        NewService(db, cfg, testutil.Logger(), dispatcher),
		carts:      cart.NewService(db, cfg),
		dispatcher: dispatcher,
	}
}

func (f *orderFixture) addToCart(t *testing.T, productID uint, qty int) {
	id := buyerID
	_, err := f.carts.AddItem(context.Background(), cart.Owner{UserID: &id}, &cart.AddToCartRequest{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
}

func (f *orderFixture) cartLines(t *testing.T) int64 {
	var count int64
	require.NoError(t, f.db.Model(&cart.CartItem{}).Count(&count).Error)
	return count
}

func shippingAddress() *Address {
	return &Address{FullName: "Ada Buyer", AddressLine1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
}

func orderForSeller(t *testing.T, orders []Order, sellerID uint) Order {
	for _, o := range orders {
		if o.SellerID != nil && *o.SellerID == sellerID {
			return o
		}
	}
	t.Fatalf("no order for seller %d", sellerID)
	return Order{}
}

func TestCheckout_SplitsCartBySeller(t *testing.T) {
	f := setupOrderTest(t)
	f.addToCart(t, mugID, 2)
	f.addToCart(t, lampID, 1)

	result, err := f.svc.Checkout(context.Background(), buyerID, &CheckoutRequest{ShippingAddress: shippingAddress()})
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)

	a := orderForSeller(t, result.Orders, sellerA)
	testutil.AssertMoney(t, "40.00", a.Subtotal)
	testutil.AssertMoney(t, "4.00", a.TaxAmount)
	testutil.AssertMoney(t, "10.00", a.ShippingAmount)
	testutil.AssertMoney(t, "54.00", a.TotalAmount)

	b := orderForSeller(t, result.Orders, sellerB)
	testutil.AssertMoney(t, "15.00", b.Subtotal)
	testutil.AssertMoney(t, "1.50", b.TaxAmount)
	testutil.AssertMoney(t, "10.00", b.ShippingAmount)
	testutil.AssertMoney(t, "26.50", b.TotalAmount)

	testutil.AssertMoney(t, "80.50", result.Total)
	assert.Zero(t, f.cartLines(t))
	assert.NotEqual(t, a.OrderNumber, b.OrderNumber)
	assert.Regexp(t, `^ORD-[0-9A-F]{12}$`, a.OrderNumber)

	for _, o := range result.Orders {
		assert.Equal(t, OrderStatusPending, o.Status)
		assert.Equal(t, PaymentStatusPending, o.PaymentStatus)
		assert.Equal(t, "Springfield", o.ShippingAddress.City)
		for _, item := range o.Items {
			assert.Equal(t, *o.SellerID, *item.SellerID, "an order never mixes sellers")
			testutil.AssertMoney(t, item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).StringFixed(2), item.Subtotal)
		}
	}

	require.Len(t, a.Items, 1)
	testutil.AssertMoney(t, "12.50", a.Items[0].CommissionRate)
	assert.Equal(t, "MUG", a.Items[0].ProductSKU)
	require.Len(t, b.Items, 1)
	testutil.AssertMoney(t, "15.00", b.Items[0].CommissionRate, "sellers without a profile use the default rate")

	var mug product.Product
	require.NoError(t, f.db.First(&mug, mugID).Error)
	assert.Equal(t, 3, mug.StockQuantity)
}

func TestCheckout_SnapshotSurvivesCatalogEdits(t *testing.T) {
	f := setupOrderTest(t)
	f.addToCart(t, mugID, 1)

	result, err := f.svc.Checkout(context.Background(), buyerID, &CheckoutRequest{ShippingAddress: shippingAddress()})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&product.Product{}).Where("id = ?", mugID).
		Updates(map[string]interface{}{"name": "Renamed", "price": testutil.Dec(t, "99.00")}).Error)

	stored, err := f.svc.GetOrder(context.Background(), result.Orders[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Mug", stored.Items[0].ProductName)
	testutil.AssertMoney(t, "20.00", stored.Items[0].Price)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := setupOrderTest(t)

	_, err := f.svc.Checkout(context.Background(), buyerID, &CheckoutRequest{ShippingAddress: shippingAddress()})
	assert.ErrorIs(t, err, shared.ErrEmptyCart)
}

func TestCheckout_FailureLeavesCartAndStockUntouched(t *testing.T) {
	f := setupOrderTest(t)
	f.addToCart(t, mugID, 2)
	f.addToCart(t, lampID, 3)

	// Stock drops after the lamp was added to the cart.
	require.NoError(t, f.db.Model(&product.Product{}).Where("id = ?", lampID).Update("stock_quantity", 1).Error)

	_, err := f.svc.Checkout(context.Background(), buyerID, &CheckoutRequest{ShippingAddress: shippingAddress()})
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)

	var orders int64
	require.NoError(t, f.db.Model(&Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
	assert.Equal(t, int64(2), f.cartLines(t))

	var mug product.Product
	require.NoError(t, f.db.First(&mug, mugID).Error)
	assert.Equal(t, 5, mug.StockQuantity)
}

func TestCheckout_RequiresShippingAddressForPhysicalGoods(t *testing.T) {
	f := setupOrderTest(t)
	f.addToCart(t, mugID, 1)

	_, err := f.svc.Checkout(context.Background(), buyerID, &CheckoutRequest{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Equal(t, int64(1), f.cartLines(t))

	require.NoError(t, f.db.Create(&user.Address{
		UserID: buyerID, FullName: "Ada", AddressLine1: "2 Side St", City: "Shelbyville", Country: "US", IsDefault: true,
	}).Error)
	result, err := f.svc.Checkout(context.Background(), buyerID, &CheckoutRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Shelbyville", result.Orders[0].ShippingAddress.City)
}

func TestCheckout_DigitalOnlyOrderHasNoShipping(t *testing.T) {
	f := setupOrderTest(t)
	f.addToCart(t, gameID, 1)

	result, err := f.svc.Checkout(context.Background(), buyerID, &CheckoutRequest{})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)

	o := result.Orders[0]
	testutil.AssertMoney(t, "0.00", o.ShippingAmount)
	testutil.AssertMoney(t, "33.00", o.TotalAmount)
	assert.True(t, o.Items[0].IsDigital)
	assert.True(t, o.HasDigitalItems())
	assert.False(t, o.HasPhysicalItems())
}

func TestCheckout_PromoDiscountSplitAcrossSellers(t *testing.T) {
	f := setupOrderTest(t)
	limit := 1
	require.NoError(t, f.db.Create(&promo.PromoCode{
		Code: "SAVE10", DiscountType: promo.DiscountPercentage, DiscountValue: testutil.Dec(t, "10"),
		ValidFrom: time.Now().Add(-time.Hour), ValidTo: time.Now().Add(time.Hour), UsageLimit: &limit, IsActive: true,
	}).Error)
	f.addToCart(t, mugID, 2)
	f.addToCart(t, lampID, 1)

	result, err := f.svc.Checkout(context.Background(), buyerID, &CheckoutRequest{ShippingAddress: shippingAddress(), PromoCode: "save10"})
	require.NoError(t, err)
	testutil.AssertMoney(t, "5.50", result.Discount)
	assert.Equal(t, "SAVE10", result.PromoCode)

	a := orderForSeller(t, result.Orders, sellerA)
	b := orderForSeller(t, result.Orders, sellerB)
	testutil.AssertMoney(t, "4.00", a.DiscountAmount)
	testutil.AssertMoney(t, "50.00", a.TotalAmount)
	testutil.AssertMoney(t, "1.50", b.DiscountAmount)
	testutil.AssertMoney(t, "25.00", b.TotalAmount)

	var code promo.PromoCode
	require.NoError(t, f.db.Where("code = ?", "SAVE10").First(&code).Error)
	assert.Equal(t, 1, code.UsedCount)

	f.addToCart(t, mugID, 1)
	_, err = f.svc.Checkout(context.Background(), buyerID, &CheckoutRequest{ShippingAddress: shippingAddress(), PromoCode: "SAVE10"})
	assert.ErrorIs(t, err, shared.ErrPromoInvalid)
	assert.Equal(t, int64(1), f.cartLines(t), "a rejected promo leaves the cart intact")
}

func TestApportion_RemainderGoesToLastGroup(t *testing.T) {
	groups := []*sellerGroup{
		{subtotal: testutil.Dec(t, "10.00")},
		{subtotal: testutil.Dec(t, "10.00")},
		{subtotal: testutil.Dec(t, "10.00")},
	}
	shares := apportion(testutil.Dec(t, "10.00"), testutil.Dec(t, "30.00"), groups)
	testutil.AssertMoney(t, "3.33", shares[0])
	testutil.AssertMoney(t, "3.33", shares[1])
	testutil.AssertMoney(t, "3.34", shares[2])
}

func TestCompletePayment_FromBalanceSettlesLedger(t *testing.T) {
	f := setupOrderTest(t)
	ctx := context.Background()
	f.addToCart(t, lampID, 1)

	result, err := f.svc.Checkout(ctx, buyerID, &CheckoutRequest{ShippingAddress: shippingAddress(), PaymentSource: PaymentSourceBalance})
	require.NoError(t, err)
	orderID := result.Orders[0].ID

	paid, err := f.svc.CompletePayment(ctx, orderID, PaymentSourceBalance, "")
	require.NoError(t, err)
	assert.False(t, paid.AlreadyPaid)
	assert.True(t, paid.JobEnqueued)
	assert.Equal(t, OrderStatusPaid, paid.Order.Status)
	assert.Equal(t, PaymentStatusCompleted, paid.Order.PaymentStatus)
	assert.NotNil(t, paid.Order.PaidAt)
	testutil.AssertMoney(t, "2.25", paid.Order.Items[0].CommissionAmount)
	testutil.AssertMoney(t, "12.75", paid.Order.Items[0].SellerEarnings())

	ledgerSvc := ledger.NewService(f.db, testutil.Config(), testutil.Logger())
	buyerBalance, err := ledgerSvc.GetBalance(ctx, buyerID)
	require.NoError(t, err)
	testutil.AssertMoney(t, "73.50", buyerBalance.Balance)

	sellerBalance, err := ledgerSvc.GetBalance(ctx, sellerB)
	require.NoError(t, err)
	testutil.AssertMoney(t, "12.75", sellerBalance.Balance)

	marketBalance, err := ledgerSvc.GetBalance(ctx, accountID)
	require.NoError(t, err)
	testutil.AssertMoney(t, "2.25", marketBalance.Balance)

	var lamp product.Product
	require.NoError(t, f.db.First(&lamp, lampID).Error)
	assert.Equal(t, 1, lamp.SoldCount)

	require.Len(t, f.dispatcher.jobs, 1)
	assert.Equal(t, shared.JobOrderPaid, f.dispatcher.jobs[0].Type)

	again, err := f.svc.CompletePayment(ctx, orderID, PaymentSourceBalance, "")
	require.NoError(t, err)
	assert.True(t, again.AlreadyPaid)
	assert.Len(t, f.dispatcher.jobs, 1)

	var entries int64
	require.NoError(t, f.db.Model(&ledger.BalanceTransaction{}).Count(&entries).Error)
	assert.Equal(t, int64(3), entries, "purchase, commission and earning posted once")

	for _, id := range []uint{buyerID, sellerB, accountID} {
		report, err := ledgerSvc.Reconcile(ctx, id)
		require.NoError(t, err)
		if id == buyerID {
			// The buyer's opening balance was seeded without a ledger entry.
			testutil.AssertMoney(t, "100.00", report.Drift)
			continue
		}
		assert.True(t, report.Consistent, "user %d", id)
	}
}

func TestCompletePayment_InsufficientBalanceRollsBack(t *testing.T) {
	f := setupOrderTest(t)
	ctx := context.Background()
	f.addToCart(t, mugID, 5)

	result, err := f.svc.Checkout(ctx, buyerID, &CheckoutRequest{ShippingAddress: shippingAddress()})
	require.NoError(t, err)
	orderID := result.Orders[0].ID

	_, err = f.svc.CompletePayment(ctx, orderID, PaymentSourceBalance, "")
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)

	stored, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, stored.PaymentStatus)

	var entries int64
	require.NoError(t, f.db.Model(&ledger.BalanceTransaction{}).Count(&entries).Error)
	assert.Zero(t, entries)
	assert.Empty(t, f.dispatcher.jobs)

	failed, err := f.svc.FailPayment(ctx, orderID, "card declined")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, failed.PaymentStatus)

	_, err = f.svc.CompletePayment(ctx, orderID, PaymentSourceExternal, "pi_1")
	require.NoError(t, err, "a failed payment can be retried")
}

func TestOrderLifecycle_ShipDeliverRefund(t *testing.T) {
	f := setupOrderTest(t)
	ctx := context.Background()
	f.addToCart(t, mugID, 1)

	result, err := f.svc.Checkout(ctx, buyerID, &CheckoutRequest{ShippingAddress: shippingAddress()})
	require.NoError(t, err)
	orderID := result.Orders[0].ID

	_, err = f.svc.Ship(ctx, sellerA, orderID, &ShipRequest{TrackingNumber: "1Z", Carrier: "UPS"})
	assert.ErrorIs(t, err, shared.ErrInvalidState, "unpaid orders cannot ship")

	_, err = f.svc.CompletePayment(ctx, orderID, PaymentSourceExternal, "pi_2")
	require.NoError(t, err)

	_, err = f.svc.Ship(ctx, sellerB, orderID, &ShipRequest{TrackingNumber: "1Z", Carrier: "UPS"})
	assert.ErrorIs(t, err, shared.ErrNotFound, "only the owning seller ships")

	shipped, err := f.svc.Ship(ctx, sellerA, orderID, &ShipRequest{TrackingNumber: "1Z", Carrier: "UPS"})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, shipped.Status)
	assert.Equal(t, "1Z", shipped.TrackingNumber)
	assert.NotNil(t, shipped.ShippedAt)

	_, err = f.svc.UpdateStatus(ctx, orderID, &UpdateStatusRequest{Status: OrderStatusCancelled}, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	delivered, err := f.svc.UpdateStatus(ctx, orderID, &UpdateStatusRequest{Status: OrderStatusDelivered}, nil)
	require.NoError(t, err)
	assert.NotNil(t, delivered.DeliveredAt)

	refunded, err := f.svc.UpdateStatus(ctx, orderID, &UpdateStatusRequest{Status: OrderStatusRefunded, Comment: "damaged"}, nil)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusRefunded, refunded.Status)
	assert.Equal(t, PaymentStatusRefunded, refunded.PaymentStatus)
	assert.Len(t, refunded.StatusHistory, 5)

	var buyer user.User
	require.NoError(t, f.db.First(&buyer, buyerID).Error)
	testutil.AssertMoney(t, "132.00", buyer.Balance, "refund of 32.00 credited to balance")

	var seller, market user.User
	require.NoError(t, f.db.First(&seller, sellerA).Error)
	require.NoError(t, f.db.First(&market, accountID).Error)
	testutil.AssertMoney(t, "0.00", seller.Balance, "earning reversed")
	testutil.AssertMoney(t, "0.00", market.Balance, "commission reversed")
	testutil.AssertMoney(t, "0.00", refunded.PayoutClawback)

	var reversals int64
	require.NoError(t, f.db.Model(&ledger.BalanceTransaction{}).
		Where("related_order_id = ? AND transaction_type = ?", orderID, ledger.TransactionReversal).
		Count(&reversals).Error)
	assert.Equal(t, int64(2), reversals)
}

func TestCancelPaidOrder_RecordsClawbackForWithdrawnEarnings(t *testing.T) {
	f := setupOrderTest(t)
	ctx := context.Background()
	f.addToCart(t, mugID, 1)

	result, err := f.svc.Checkout(ctx, buyerID, &CheckoutRequest{ShippingAddress: shippingAddress()})
	require.NoError(t, err)
	orderID := result.Orders[0].ID

	_, err = f.svc.CompletePayment(ctx, orderID, PaymentSourceBalance, "")
	require.NoError(t, err)
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.Post(tx, ledger.Entry{UserID: sellerA, Type: ledger.TransactionWithdrawal, Amount: testutil.Dec(t, "10.00")})
		return err
	}))

	cancelled, err := f.svc.Cancel(ctx, orderID, "out of stock", nil)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusRefunded, cancelled.PaymentStatus)
	testutil.AssertMoney(t, "10.00", cancelled.PayoutClawback)

	var buyer, seller, market user.User
	require.NoError(t, f.db.First(&buyer, buyerID).Error)
	require.NoError(t, f.db.First(&seller, sellerA).Error)
	require.NoError(t, f.db.First(&market, accountID).Error)
	testutil.AssertMoney(t, "100.00", buyer.Balance)
	testutil.AssertMoney(t, "0.00", seller.Balance, "never negative")
	testutil.AssertMoney(t, "0.00", market.Balance)
}

func TestCancel_RestoresStock(t *testing.T) {
	f := setupOrderTest(t)
	ctx := context.Background()
	f.addToCart(t, mugID, 2)

	result, err := f.svc.Checkout(ctx, buyerID, &CheckoutRequest{ShippingAddress: shippingAddress()})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, result.Orders[0].ID, "changed my mind", nil)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, PaymentStatusPending, cancelled.PaymentStatus)

	var mug product.Product
	require.NoError(t, f.db.First(&mug, mugID).Error)
	assert.Equal(t, 5, mug.StockQuantity)

	_, err = f.svc.Cancel(ctx, result.Orders[0].ID, "again", nil)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestListOrdersAndVisibility(t *testing.T) {
	f := setupOrderTest(t)
	ctx := context.Background()
	f.addToCart(t, mugID, 1)
	f.addToCart(t, lampID, 1)

	result, err := f.svc.Checkout(ctx, buyerID, &CheckoutRequest{ShippingAddress: shippingAddress()})
	require.NoError(t, err)

	buyerView, err := f.svc.ListOrders(ctx, &OrderListRequest{BuyerID: buyerID})
	require.NoError(t, err)
	assert.Len(t, buyerView.Orders, 2)
	assert.Equal(t, int64(2), buyerView.Pagination.Total)

	sellerView, err := f.svc.ListOrders(ctx, &OrderListRequest{SellerID: sellerA})
	require.NoError(t, err)
	require.Len(t, sellerView.Orders, 1)

	a := orderForSeller(t, result.Orders, sellerA)
	_, err = f.svc.GetOrderForUser(ctx, sellerB, a.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.GetOrderForUser(ctx, buyerID, a.ID)
	assert.NoError(t, err)

	byNumber, err := f.svc.GetOrderByNumber(ctx, a.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byNumber.ID)
}
