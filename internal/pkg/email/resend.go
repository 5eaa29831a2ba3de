// internal/pkg/email/resend.go
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/your-org/marketplace-backend/internal/config"
)

// ResendEmailRequest is the Resend API payload
type ResendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// ResendSender sends through the Resend HTTP API
type ResendSender struct {
	config *config.Config
	client *http.Client
}

// NewResendSender creates a Resend API sender
func NewResendSender(cfg *config.Config) *ResendSender {
	return &ResendSender{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send implements Sender
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	emailCfg := s.config.External.Email
	if emailCfg.APIKey == "" {
		return fmt.Errorf("resend API key not configured")
	}

	payload, err := json.Marshal(ResendEmailRequest{
		From:    fromAddress(s.config),
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.Body,
		Text:    msg.TextBody,
		ReplyTo: emailCfg.ReplyTo,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal resend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, emailCfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create resend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+emailCfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send resend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
