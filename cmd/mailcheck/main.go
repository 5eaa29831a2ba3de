// cmd/mailcheck/main.go sends a sample digital key email through the
// configured provider so delivery settings can be checked before launch.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/infrastructure/logger"
	"github.com/your-org/marketplace-backend/internal/pkg/email"
)

func main() {
	to := flag.String("to", "", "recipient address")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.New(cfg.Logging)

	if *to == "" {
		log.Fatal("Usage: mailcheck -to someone@example.com")
	}

	sender, err := email.NewSender(cfg, log)
	if err != nil {
		log.Fatalf("Failed to create sender: %v", err)
	}
	service, err := email.NewEmailService(cfg, sender, log)
	if err != nil {
		log.Fatalf("Failed to load templates: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = service.SendDigitalKey(ctx, email.DigitalKeyData{
		EmailTemplateData: email.EmailTemplateData{UserName: "Test Recipient", UserEmail: *to},
		OrderNumber:       "TEST-0001",
		ProductName:       "Sample product",
		Code:              "TEST-KEY-0000",
	})
	if err != nil {
		log.Fatalf("Send failed: %v", err)
	}

	log.WithFields(logrus.Fields{
		"provider": cfg.External.Email.Provider,
		"to":       *to,
	}).Info("Test email sent")
}
