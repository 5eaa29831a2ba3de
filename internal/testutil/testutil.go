// Package testutil holds helpers shared by package tests.
package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens an in-memory SQLite database and migrates the given models.
// The pool is pinned to one connection so every query sees the same database.
func NewDB(t *testing.T, models ...interface{}) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		require.NoError(t, db.AutoMigrate(models...))
	}

	return db
}

// Config returns a configuration with the marketplace defaults.
func Config() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "marketplace-test", Environment: "test"},
		JWT: config.JWTConfig{
			Secret:             "0123456789abcdef0123456789abcdef",
			AccessTokenExpiry:  time.Hour,
			RefreshTokenExpiry: 24 * time.Hour,
		},
		Security: config.SecurityConfig{BcryptCost: 4, RateLimitPerMinute: 1000},
		Queue: config.QueueConfig{
			Driver:         "memory",
			PollTimeout:    50 * time.Millisecond,
			IdempotencyTTL: time.Hour,
		},
		Marketplace: config.MarketplaceConfig{
			AccountUserID:     1,
			Currency:          "USD",
			TaxRate:           decimal.RequireFromString("0.10"),
			DefaultShipping:   decimal.RequireFromString("10.00"),
			DefaultCommission: decimal.RequireFromString("15.00"),
		},
		External: config.ExternalConfig{
			Payment: config.PaymentConfig{WebhookSecrets: map[string]string{"stripe": "whsec_test"}},
			Email:   config.EmailConfig{Provider: "log", FromEmail: "noreply@example.com"},
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
	}
}

// Logger returns a logger that discards output.
func Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Dec parses a decimal literal, failing the test on error.
func Dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// AssertMoney compares a decimal against an expected amount at cent precision.
func AssertMoney(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, Dec(t, expected).StringFixed(2), actual.StringFixed(2), msgAndArgs...)
}
