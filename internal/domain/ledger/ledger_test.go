package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"github.com/your-org/marketplace-backend/internal/testutil"
	"gorm.io/gorm"
)

func setupLedgerTest(t *testing.T) (*gorm.DB, *Service) {
	db := testutil.NewDB(t,
		&user.User{}, &user.SellerProfile{}, &user.Address{},
		&product.Product{}, &BalanceTransaction{}, &BalanceTopUp{},
	)

	require.NoError(t, db.Create(&[]user.User{
		{ID: 1, Email: "market@example.com", Password: "x", UserType: user.UserTypeAdmin},
		{ID: 2, Email: "buyer@example.com", Password: "x", Balance: testutil.Dec(t, "100.00")},
		{ID: 3, Email: "seller@example.com", Password: "x", UserType: user.UserTypeSeller},
	}).Error)
	require.NoError(t, db.Create(&user.SellerProfile{UserID: 3, BusinessName: "Shop", CommissionRate: testutil.Dec(t, "15")}).Error)

	return db, NewService(db, testutil.Config(), testutil.Logger())
}

func balanceOf(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	var u user.User
	require.NoError(t, db.Select("id", "balance").First(&u, userID).Error)
	return u.Balance
}

func TestTransactionType_Sign(t *testing.T) {
	amount := decimal.NewFromInt(5)
	for _, typ := range []TransactionType{TransactionDeposit, TransactionRefund, TransactionEarning, TransactionCommission} {
		assert.True(t, typ.Signed(amount).IsPositive(), typ)
	}
	for _, typ := range []TransactionType{TransactionPurchase, TransactionWithdrawal, TransactionReversal} {
		assert.True(t, typ.Signed(amount).IsNegative(), typ)
	}
	assert.False(t, TransactionType("bonus").Valid())
}

func TestService_CompleteTopUp(t *testing.T) {
	db, svc := setupLedgerTest(t)
	ctx := context.Background()

	topUp, err := svc.CreateTopUp(ctx, 2, &TopUpRequest{Amount: testutil.Dec(t, "50"), PaymentMethod: PaymentMethodStripe})
	require.NoError(t, err)
	assert.Equal(t, TopUpPending, topUp.Status)

	summary, err := svc.GetBalance(ctx, 2)
	require.NoError(t, err)
	testutil.AssertMoney(t, "50.00", summary.PendingTopUps)

	completed, err := svc.CompleteTopUp(ctx, topUp.ID, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, TopUpCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.Equal(t, "pi_123", completed.PaymentID)
	testutil.AssertMoney(t, "150.00", balanceOf(t, db, 2))

	var entries []BalanceTransaction
	require.NoError(t, db.Where("user_id = ?", 2).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, TransactionDeposit, entries[0].TransactionType)
	testutil.AssertMoney(t, "50.00", entries[0].Amount)
	testutil.AssertMoney(t, "150.00", entries[0].BalanceAfter)
	assert.Equal(t, "Balance top-up via Stripe", entries[0].Description)

	_, err = svc.CompleteTopUp(ctx, topUp.ID, "pi_123")
	require.NoError(t, err, "completing twice is a no-op")
	testutil.AssertMoney(t, "150.00", balanceOf(t, db, 2))

	var count int64
	require.NoError(t, db.Model(&BalanceTransaction{}).Where("user_id = ?", 2).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = svc.FailTopUp(ctx, topUp.ID, "late failure")
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestService_FailTopUpLeavesBalance(t *testing.T) {
	db, svc := setupLedgerTest(t)
	ctx := context.Background()

	topUp, err := svc.CreateTopUp(ctx, 2, &TopUpRequest{Amount: testutil.Dec(t, "20"), PaymentMethod: PaymentMethodCard})
	require.NoError(t, err)

	failed, err := svc.FailTopUp(ctx, topUp.ID, "card declined")
	require.NoError(t, err)
	assert.Equal(t, TopUpFailed, failed.Status)
	assert.Equal(t, "card declined", failed.PaymentData["failure_reason"])
	testutil.AssertMoney(t, "100.00", balanceOf(t, db, 2))

	_, err = svc.CompleteTopUp(ctx, topUp.ID, "")
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.CreateTopUp(ctx, 2, &TopUpRequest{Amount: testutil.Dec(t, "-1"), PaymentMethod: PaymentMethodCard})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = svc.CreateTopUp(ctx, 2, &TopUpRequest{Amount: testutil.Dec(t, "5"), PaymentMethod: "cash"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestPost_RejectsOverdraft(t *testing.T) {
	db, _ := setupLedgerTest(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := Post(tx, Entry{UserID: 2, Type: TransactionPurchase, Amount: testutil.Dec(t, "100.01")})
		return err
	})
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)
	testutil.AssertMoney(t, "100.00", balanceOf(t, db, 2))

	err = db.Transaction(func(tx *gorm.DB) error {
		record, err := Post(tx, Entry{UserID: 2, Type: TransactionPurchase, Amount: testutil.Dec(t, "40")})
		if err == nil {
			testutil.AssertMoney(t, "60.00", record.BalanceAfter)
		}
		return err
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := Post(tx, Entry{UserID: 99, Type: TransactionDeposit, Amount: testutil.Dec(t, "1")})
		return err
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSettleOrder(t *testing.T) {
	db, _ := setupLedgerTest(t)
	require.NoError(t, db.Create(&product.Product{ID: 7, SellerID: 3, SKU: "S", Name: "Lamp", Slug: "lamp", Price: testutil.Dec(t, "20")}).Error)

	productID := uint(7)
	var result *SettlementResult
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = SettleOrder(tx, 1, Settlement{
			OrderID:     11,
			OrderNumber: "ORD-ABC",
			Lines: []SettlementLine{
				{OrderItemID: 1, ProductID: &productID, SellerID: 3, Quantity: 2, Subtotal: testutil.Dec(t, "40.00"), CommissionRate: testutil.Dec(t, "15")},
				{OrderItemID: 2, SellerID: 3, Quantity: 1, Subtotal: testutil.Dec(t, "10.05"), CommissionRate: testutil.Dec(t, "15")},
			},
		})
		return err
	})
	require.NoError(t, err)

	testutil.AssertMoney(t, "6.00", result.CommissionByItem[1])
	testutil.AssertMoney(t, "1.51", result.CommissionByItem[2])
	testutil.AssertMoney(t, "7.51", result.Commission)
	testutil.AssertMoney(t, "42.54", result.Earnings)

	testutil.AssertMoney(t, "7.51", balanceOf(t, db, 1))
	testutil.AssertMoney(t, "42.54", balanceOf(t, db, 3))

	var profile user.SellerProfile
	require.NoError(t, db.Where("user_id = ?", 3).First(&profile).Error)
	testutil.AssertMoney(t, "50.05", profile.TotalSales)

	var p product.Product
	require.NoError(t, db.First(&p, 7).Error)
	assert.Equal(t, 2, p.SoldCount)

	var commissions []BalanceTransaction
	require.NoError(t, db.Where("transaction_type = ?", TransactionCommission).Find(&commissions).Error)
	require.Len(t, commissions, 2)
	require.NotNil(t, commissions[0].RelatedOrderID)
	assert.Equal(t, uint(11), *commissions[0].RelatedOrderID)
	assert.Equal(t, "15.00", commissions[0].Metadata["commission_rate"])
}

func TestReverseSettlement_CapsAtBalance(t *testing.T) {
	db, _ := setupLedgerTest(t)
	require.NoError(t, db.Create(&product.Product{ID: 7, SellerID: 3, SKU: "S", Name: "Lamp", Slug: "lamp", Price: testutil.Dec(t, "20")}).Error)

	productID := uint(7)
	settlement := Settlement{
		OrderID:     11,
		OrderNumber: "ORD-ABC",
		Lines: []SettlementLine{
			{OrderItemID: 1, ProductID: &productID, SellerID: 3, Quantity: 2, Subtotal: testutil.Dec(t, "40.00"), CommissionRate: testutil.Dec(t, "15")},
		},
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := SettleOrder(tx, 1, settlement)
		return err
	}))
	testutil.AssertMoney(t, "34.00", balanceOf(t, db, 3))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := Post(tx, Entry{UserID: 3, Type: TransactionWithdrawal, Amount: testutil.Dec(t, "30.00")})
		return err
	}))

	var result *ReversalResult
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = ReverseSettlement(tx, 1, settlement)
		return err
	})
	require.NoError(t, err)

	testutil.AssertMoney(t, "6.00", result.Commission)
	testutil.AssertMoney(t, "4.00", result.Earnings)
	testutil.AssertMoney(t, "30.00", result.Shortfall, "withdrawn earnings are left to claw back")
	testutil.AssertMoney(t, "0.00", balanceOf(t, db, 1))
	testutil.AssertMoney(t, "0.00", balanceOf(t, db, 3))

	var profile user.SellerProfile
	require.NoError(t, db.Where("user_id = ?", 3).First(&profile).Error)
	testutil.AssertMoney(t, "0.00", profile.TotalSales)

	var p product.Product
	require.NoError(t, db.First(&p, 7).Error)
	assert.Equal(t, 0, p.SoldCount)

	var reversals []BalanceTransaction
	require.NoError(t, db.Where("transaction_type = ?", TransactionReversal).Order("id").Find(&reversals).Error)
	require.Len(t, reversals, 2)
	assert.Equal(t, uint(1), reversals[0].UserID)
	assert.Equal(t, uint(3), reversals[1].UserID)
	testutil.AssertMoney(t, "4.00", reversals[1].Amount)
	assert.Equal(t, "34.00", reversals[1].Metadata["requested"])
}

func TestSettleOrder_SellerBuyingOwnListing(t *testing.T) {
	db, _ := setupLedgerTest(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, LockAccounts(tx, 3, 1, 3))
		_, err := SettleOrder(tx, 1, Settlement{
			OrderID:     12,
			OrderNumber: "ORD-SELF",
			Lines: []SettlementLine{
				{OrderItemID: 1, SellerID: 3, Quantity: 1, Subtotal: testutil.Dec(t, "10.00"), CommissionRate: testutil.Dec(t, "15")},
				{OrderItemID: 2, SellerID: 3, Quantity: 1, Subtotal: testutil.Dec(t, "10.00"), CommissionRate: testutil.Dec(t, "15")},
			},
		})
		return err
	})
	require.NoError(t, err, "locking an already held row is a no-op")
	testutil.AssertMoney(t, "17.00", balanceOf(t, db, 3))
	testutil.AssertMoney(t, "3.00", balanceOf(t, db, 1))
}

func TestService_ReconcileAndWithdraw(t *testing.T) {
	db, svc := setupLedgerTest(t)
	ctx := context.Background()

	topUp, err := svc.CreateTopUp(ctx, 3, &TopUpRequest{Amount: testutil.Dec(t, "80"), PaymentMethod: PaymentMethodPayPal})
	require.NoError(t, err)
	_, err = svc.CompleteTopUp(ctx, topUp.ID, "")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, 3, &WithdrawRequest{Amount: testutil.Dec(t, "30"), Destination: "IBAN DE00"})
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, 3, &WithdrawRequest{Amount: testutil.Dec(t, "60"), Destination: "IBAN DE00"})
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)

	report, err := svc.Reconcile(ctx, 3)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 2, report.Transactions)
	testutil.AssertMoney(t, "50.00", report.LedgerBalance)

	list, err := svc.ListTransactions(ctx, 3, &TransactionListRequest{Type: TransactionWithdrawal})
	require.NoError(t, err)
	assert.Len(t, list.Transactions, 1)

	require.NoError(t, db.Model(&user.User{}).Where("id = ?", 3).Update("balance", testutil.Dec(t, "55")).Error)
	report, err = svc.Reconcile(ctx, 3)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	testutil.AssertMoney(t, "5.00", report.Drift)

	// Buyer 2 starts at 100.00 without any ledger history, so the replay disagrees.
	report, err = svc.Reconcile(ctx, 2)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
}
