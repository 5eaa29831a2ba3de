// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/infrastructure/database/postgres"
	"github.com/your-org/marketplace-backend/internal/infrastructure/database/redis"
	"github.com/your-org/marketplace-backend/internal/infrastructure/logger"
	"github.com/your-org/marketplace-backend/internal/infrastructure/queue"
	"github.com/your-org/marketplace-backend/internal/interfaces/http"
	"github.com/your-org/marketplace-backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Logging)
	log.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("Starting API")

	db, err := postgres.NewConnection(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStartup()
	if err := db.Health(startupCtx); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}

	// Redis backs rate limiting and the redis queue. Without it the API
	// still serves requests with limiting disabled.
	var rdb *goredis.Client
	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		if cfg.Queue.Driver == "redis" {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.WithError(err).Warn("Redis unavailable, rate limiting disabled")
	} else {
		defer redisClient.Close()
		if err := redisClient.Health(startupCtx); err != nil {
			log.Fatalf("Redis health check failed: %v", err)
		}
		rdb = redisClient.GetClient()
	}

	if cfg.Database.AutoMigrate || cfg.IsDevelopment() {
		migration := postgres.NewMigration(db.GetDB(), cfg, log)
		if err := migration.RunAutoMigrations(); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		if err := migration.CreateIndexes(); err != nil {
			log.WithError(err).Warn("Index creation failed")
		}
		if cfg.IsDevelopment() {
			if err := migration.SeedInitialData(); err != nil {
				log.WithError(err).Warn("Data seeding failed")
			}
		}
	}

	jobs, err := queue.New(cfg, rdb, log)
	if err != nil {
		log.Fatalf("Failed to create job queue: %v", err)
	}
	defer jobs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The in-memory queue only reaches consumers in this process
	workerDone := make(chan struct{})
	if cfg.Queue.Driver == "memory" {
		w, closeStore, err := worker.Setup(cfg, db.GetDB(), rdb, jobs, log)
		if err != nil {
			log.Fatalf("Failed to set up in-process worker: %v", err)
		}
		defer closeStore()
		go func() {
			defer close(workerDone)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("In-process worker stopped")
			}
		}()
	} else {
		close(workerDone)
	}

	server := http.NewServer(cfg, db.GetDB(), rdb, jobs, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
		stop()
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}
	<-workerDone

	log.Info("Server shutdown completed")
}
