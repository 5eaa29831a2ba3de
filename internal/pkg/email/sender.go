// internal/pkg/email/sender.go
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
)

// Sender delivers a rendered message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns the sender for the configured provider
func NewSender(cfg *config.Config, logger logrus.FieldLogger) (Sender, error) {
	switch cfg.External.Email.Provider {
	case "smtp":
		return NewSMTPSender(cfg), nil
	case "resend":
		return NewResendSender(cfg), nil
	case "log", "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", cfg.External.Email.Provider)
	}
}

// LogSender writes messages to the log instead of sending them
type LogSender struct {
	logger logrus.FieldLogger
}

// NewLogSender creates a log-only sender
func NewLogSender(logger logrus.FieldLogger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.WithFields(logrus.Fields{
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
	}).Info("Email (log provider)")
	return nil
}

func fromAddress(cfg *config.Config) string {
	if cfg.External.Email.FromName != "" {
		return fmt.Sprintf("%s <%s>", cfg.External.Email.FromName, cfg.External.Email.FromEmail)
	}
	return cfg.External.Email.FromEmail
}
