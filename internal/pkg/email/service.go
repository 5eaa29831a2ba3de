// internal/pkg/email/service.go
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	templateOrderConfirmation = "order_confirmation"
	templateDigitalKey        = "digital_key"
)

// EmailService renders marketplace notifications and hands them to a Sender
type EmailService struct {
	config    *config.Config
	sender    Sender
	templates map[string]*template.Template
	logger    logrus.FieldLogger
}

// NewEmailService parses the embedded templates
func NewEmailService(cfg *config.Config, sender Sender, logger logrus.FieldLogger) (*EmailService, error) {
	service := &EmailService{
		config:    cfg,
		sender:    sender,
		templates: make(map[string]*template.Template),
		logger:    logger,
	}

	for _, name := range []string{templateOrderConfirmation, templateDigitalKey} {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse email template %s: %w", name, err)
		}
		service.templates[name] = tmpl
	}

	return service, nil
}

// SendOrderConfirmation sends the paid-order confirmation
func (s *EmailService) SendOrderConfirmation(ctx context.Context, data OrderConfirmationData) error {
	data.EmailTemplateData = s.baseData(data.UserName, data.UserEmail)
	if data.Currency == "" {
		data.Currency = s.config.Marketplace.Currency
	}
	if data.OrderURL == "" {
		data.OrderURL = fmt.Sprintf("%s/orders/%s", s.config.External.Email.BaseURL, data.OrderNumber)
	}

	body, err := s.render(templateOrderConfirmation, data)
	if err != nil {
		return err
	}

	return s.send(ctx, Message{
		To:      []string{data.UserEmail},
		Subject: fmt.Sprintf("Order Confirmation - %s", data.OrderNumber),
		Body:    body,
	})
}

// SendDigitalKey sends one delivered product key
func (s *EmailService) SendDigitalKey(ctx context.Context, data DigitalKeyData) error {
	data.EmailTemplateData = s.baseData(data.UserName, data.UserEmail)
	if data.LibraryURL == "" {
		data.LibraryURL = s.config.External.Email.BaseURL + "/library"
	}

	body, err := s.render(templateDigitalKey, data)
	if err != nil {
		return err
	}

	return s.send(ctx, Message{
		To:       []string{data.UserEmail},
		Subject:  fmt.Sprintf("Your key for %s", data.ProductName),
		Body:     body,
		TextBody: fmt.Sprintf("Your key for %s: %s", data.ProductName, data.Code),
	})
}

func (s *EmailService) send(ctx context.Context, msg Message) error {
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %q: %w", msg.Subject, err)
	}
	s.logger.WithField("subject", msg.Subject).Debug("Email sent")
	return nil
}

func (s *EmailService) render(name string, data interface{}) (string, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *EmailService) baseData(userName, userEmail string) EmailTemplateData {
	siteName := s.config.External.Email.FromName
	if siteName == "" {
		siteName = s.config.App.Name
	}
	return GetBaseTemplateData(siteName, s.config.External.Email.BaseURL, userName, userEmail)
}
