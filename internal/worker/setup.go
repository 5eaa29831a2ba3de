package worker

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/fulfillment"
	"github.com/your-org/marketplace-backend/internal/domain/ledger"
	"github.com/your-org/marketplace-backend/internal/domain/order"
	"github.com/your-org/marketplace-backend/internal/domain/payment"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/infrastructure/cache"
	"github.com/your-org/marketplace-backend/internal/infrastructure/queue"
	"github.com/your-org/marketplace-backend/internal/pkg/email"
	"gorm.io/gorm"
)

// Setup wires a worker from configuration. The idempotency store lives in
// redis when rdb is set and in memory otherwise. The returned cleanup closes it.
func Setup(cfg *config.Config, db *gorm.DB, rdb *redis.Client, q queue.Queue, logger logrus.FieldLogger) (*Worker, func() error, error) {
	sender, err := email.NewSender(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create email sender: %w", err)
	}
	notifier, err := email.NewEmailService(cfg, sender, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create email service: %w", err)
	}

	var store shared.IdempotencyStore
	if rdb != nil {
		store = cache.NewRedisIdempotencyStore(rdb, "")
	} else {
		store = cache.NewInMemoryIdempotencyStore()
	}

	orders := order.NewService(db, cfg, logger, q)
	payments := payment.NewService(db, cfg, ledger.NewService(db, cfg, logger), orders, logger)
	fulfiller := fulfillment.NewService(db, logger, q)

	concurrency := cfg.Queue.Workers
	if cfg.Queue.Driver == "kafka" {
		// one reader per process keeps partition order
		concurrency = 1
	}

	w := New(q, store, orders, fulfiller, notifier, payments, Options{
		Concurrency:    concurrency,
		IdempotencyTTL: cfg.Queue.IdempotencyTTL,
		ReplayInterval: cfg.Queue.ReplayInterval,
	}, logger)
	return w, store.Close, nil
}
