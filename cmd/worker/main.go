// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/infrastructure/database/postgres"
	"github.com/your-org/marketplace-backend/internal/infrastructure/database/redis"
	"github.com/your-org/marketplace-backend/internal/infrastructure/logger"
	"github.com/your-org/marketplace-backend/internal/infrastructure/queue"
	"github.com/your-org/marketplace-backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Logging)
	if cfg.Queue.Driver == "memory" {
		log.Fatal("The memory queue runs inside the API process; set QUEUE_DRIVER to redis or kafka")
	}

	db, err := postgres.NewConnection(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var rdb *goredis.Client
	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		if cfg.Queue.Driver == "redis" {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.WithError(err).Warn("Redis unavailable, using in-memory idempotency store")
	} else {
		defer redisClient.Close()
		rdb = redisClient.GetClient()
	}

	jobs, err := queue.New(cfg, rdb, log)
	if err != nil {
		log.Fatalf("Failed to create job queue: %v", err)
	}
	defer jobs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Jobs left in processing by a crashed worker go back to the queue
	if rq, ok := jobs.(*queue.RedisQueue); ok {
		recovered, err := rq.Recover(ctx)
		if err != nil {
			log.WithError(err).Warn("Failed to recover in-flight jobs")
		} else if recovered > 0 {
			log.WithField("jobs", recovered).Info("Recovered in-flight jobs")
		}
	}

	w, closeStore, err := worker.Setup(cfg, db.GetDB(), rdb, jobs, log)
	if err != nil {
		log.Fatalf("Failed to set up worker: %v", err)
	}
	defer closeStore()

	log.WithFields(logrus.Fields{
		"driver":  cfg.Queue.Driver,
		"workers": cfg.Queue.Workers,
	}).Info("Starting worker")

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Worker stopped with error")
	}
}
