// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/domain/fulfillment"
	"github.com/your-org/marketplace-backend/internal/domain/ledger"
	"github.com/your-org/marketplace-backend/internal/domain/order"
	"github.com/your-org/marketplace-backend/internal/domain/payment"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/promo"
	"github.com/your-org/marketplace-backend/internal/domain/review"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"github.com/your-org/marketplace-backend/internal/domain/wishlist"
	"github.com/your-org/marketplace-backend/internal/pkg/auth"
	"gorm.io/gorm"
)

// Migration handles development schema sync and seed data. Production
// schemas are managed by the versioned SQL migrations in cmd/migrate.
type Migration struct {
	db     *gorm.DB
	config *config.Config
	logger logrus.FieldLogger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, cfg *config.Config, logger logrus.FieldLogger) *Migration {
	return &Migration{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// Models lists every persisted model in dependency order
func Models() []interface{} {
	return []interface{}{
		&user.User{},
		&user.SellerProfile{},
		&user.Address{},

		&product.Category{},
		&product.Product{},
		&product.ProductImage{},
		&product.ProductVariant{},

		&cart.Cart{},
		&cart.CartItem{},
		&promo.PromoCode{},
		&wishlist.WishlistItem{},

		&order.Order{},
		&order.OrderItem{},
		&order.OrderStatusHistory{},

		&ledger.BalanceTransaction{},
		&ledger.BalanceTopUp{},
		&payment.PaymentWebhook{},

		&fulfillment.DigitalKey{},
		&fulfillment.DigitalKeyDelivery{},

		&review.Review{},
		&review.ReviewHelpful{},
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("Running database auto-migrations")

	for _, model := range Models() {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates the composite and partial indexes that struct tags cannot express
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_orders_buyer_created ON orders(buyer_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_seller_status ON orders(seller_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_payment_status ON orders(payment_status)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_digital ON order_items(product_id) WHERE is_digital = true",
		"CREATE INDEX IF NOT EXISTS idx_digital_keys_unused ON digital_keys(product_id, id) WHERE is_used = false",
		"CREATE INDEX IF NOT EXISTS idx_payment_webhooks_unprocessed ON payment_webhooks(id) WHERE processed = false",
		"CREATE INDEX IF NOT EXISTS idx_reviews_product_approved ON reviews(product_id, is_approved)",
		"CREATE INDEX IF NOT EXISTS idx_products_active_created ON products(is_active, created_at DESC)",
	}

	for _, stmt := range indexes {
		if err := m.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	m.logger.WithField("count", len(indexes)).Info("Additional indexes ensured")
	return nil
}

// SeedInitialData inserts the marketplace account and demo catalog. It is safe to run repeatedly.
func (m *Migration) SeedInitialData() error {
	m.logger.Info("Seeding initial data")

	if err := m.seedMarketplaceAccount(); err != nil {
		return fmt.Errorf("failed to seed marketplace account: %w", err)
	}
	if err := m.seedCategories(); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}
	if err := m.seedDemoSeller(); err != nil {
		return fmt.Errorf("failed to seed demo seller: %w", err)
	}
	if err := m.seedPromoCodes(); err != nil {
		return fmt.Errorf("failed to seed promo codes: %w", err)
	}

	m.logger.Info("Initial data seeded")
	return nil
}

// seedMarketplaceAccount ensures the user that collects commission exists
func (m *Migration) seedMarketplaceAccount() error {
	accountID := m.config.Marketplace.AccountUserID

	var existing user.User
	err := m.db.First(&existing, accountID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := auth.NewPasswordManager(m.config).HashPassword("Admin12345")
	if err != nil {
		return err
	}
	account := user.User{
		ID:        accountID,
		Email:     "admin@example.com",
		Password:  hash,
		FirstName: "Marketplace",
		LastName:  "Admin",
		UserType:  user.UserTypeAdmin,
		IsActive:  true,
	}
	if err := m.db.Create(&account).Error; err != nil {
		return err
	}
	// explicit IDs do not advance the serial
	if m.db.Dialector.Name() == "postgres" {
		err := m.db.Exec("SELECT setval(pg_get_serial_sequence('users', 'id'), (SELECT MAX(id) FROM users))").Error
		if err != nil {
			return err
		}
	}

	m.logger.WithField("user_id", accountID).Info("Created marketplace account admin@example.com")
	return nil
}

func (m *Migration) seedCategories() error {
	categories := []product.Category{
		{Name: "Electronics", Slug: "electronics", Description: "Devices, gadgets and accessories", IsActive: true},
		{Name: "Games", Slug: "games", Description: "Game keys and downloadable content", IsActive: true},
		{Name: "Software", Slug: "software", Description: "Licenses and subscriptions", IsActive: true},
		{Name: "Home & Garden", Slug: "home-garden", Description: "Furniture and garden supplies", IsActive: true},
	}

	for _, category := range categories {
		err := m.db.Where(product.Category{Slug: category.Slug}).FirstOrCreate(&category).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration) seedDemoSeller() error {
	var existing user.User
	err := m.db.Where("email = ?", "seller@example.com").First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := auth.NewPasswordManager(m.config).HashPassword("Seller12345")
	if err != nil {
		return err
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		seller := user.User{
			Email:     "seller@example.com",
			Password:  hash,
			FirstName: "Demo",
			LastName:  "Seller",
			UserType:  user.UserTypeSeller,
			IsActive:  true,
		}
		if err := tx.Create(&seller).Error; err != nil {
			return err
		}

		profile := user.SellerProfile{
			UserID:         seller.ID,
			BusinessName:   "Demo Goods",
			CommissionRate: m.config.Marketplace.DefaultCommission,
			IsApproved:     true,
		}
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}

		var games product.Category
		if err := tx.Where("slug = ?", "games").First(&games).Error; err != nil {
			return err
		}

		products := []product.Product{
			{
				SellerID: seller.ID, SKU: "DEMO-MUG", Name: "Ceramic Mug", Slug: "ceramic-mug",
				ProductType: product.ProductTypePhysical, Price: decimal.RequireFromString("20.00"),
				StockQuantity: 100, IsActive: true,
			},
			{
				SellerID: seller.ID, CategoryID: &games.ID, SKU: "DEMO-GAME", Name: "Space Game (Steam key)",
				Slug: "space-game-steam-key", ProductType: product.ProductTypeDigital,
				Price: decimal.RequireFromString("30.00"), IsActive: true,
			},
		}
		if err := tx.Create(&products).Error; err != nil {
			return err
		}

		keys := make([]fulfillment.DigitalKey, 0, 5)
		for i := 1; i <= 5; i++ {
			keys = append(keys, fulfillment.DigitalKey{
				ProductID: products[1].ID,
				KeyCode:   fmt.Sprintf("DEMO-%04d-%s", i, time.Now().UTC().Format("0102")),
			})
		}
		if err := tx.Create(&keys).Error; err != nil {
			return err
		}

		m.logger.WithField("seller_id", seller.ID).Info("Created demo seller seller@example.com")
		return nil
	})
}

func (m *Migration) seedPromoCodes() error {
	now := time.Now().UTC()
	limit := 1000
	code := promo.PromoCode{
		Code:          "WELCOME10",
		DiscountType:  promo.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		MaxDiscount:   decimal.NewNullDecimal(decimal.NewFromInt(25)),
		ValidFrom:     now,
		ValidTo:       now.AddDate(1, 0, 0),
		UsageLimit:    &limit,
		IsActive:      true,
	}
	return m.db.Where(promo.PromoCode{Code: code.Code}).FirstOrCreate(&code).Error
}
