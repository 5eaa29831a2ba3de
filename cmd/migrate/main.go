// cmd/migrate/main.go
package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/infrastructure/database/migrations"
	"github.com/your-org/marketplace-backend/internal/infrastructure/logger"
)

func main() {
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.New(cfg.Logging).WithField("component", "migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runner, err := migrations.NewRunner(ctx, cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("Failed to open migrations: %v", err)
	}
	defer runner.Close()

	switch command {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down(*steps)
	case "version":
	default:
		log.Fatalf("Unknown command %q, expected up, down or version", command)
	}
	if err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}

	version, dirty, err := runner.Version()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Infof("Migration %s finished", command)
}
