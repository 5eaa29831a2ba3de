// internal/pkg/email/smtp.go
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/your-org/marketplace-backend/internal/config"
)

// SMTPSender sends mail through an SMTP relay. Port 465 uses implicit TLS;
// other ports upgrade with STARTTLS when the server offers it.
type SMTPSender struct {
	config *config.Config
	dialer *net.Dialer
}

// NewSMTPSender creates an SMTP sender
func NewSMTPSender(cfg *config.Config) *SMTPSender {
	return &SMTPSender{
		config: cfg,
		dialer: &net.Dialer{Timeout: 10 * time.Second},
	}
}

// Send implements Sender
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	emailCfg := s.config.External.Email
	if emailCfg.SMTPHost == "" {
		return fmt.Errorf("SMTP configuration incomplete: missing host")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}

	serverAddr := fmt.Sprintf("%s:%d", emailCfg.SMTPHost, emailCfg.SMTPPort)
	conn, err := s.dial(ctx, serverAddr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, emailCfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok && emailCfg.SMTPPort != 465 {
		if err := client.StartTLS(&tls.Config{ServerName: emailCfg.SMTPHost}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if emailCfg.SMTPUsername != "" {
		auth := smtp.PlainAuth("", emailCfg.SMTPUsername, emailCfg.SMTPPassword, emailCfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(emailCfg.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, addr := range msg.To {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", addr, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to send DATA command: %w", err)
	}
	if _, err := writer.Write(buildMIME(s.config, msg)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write email content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish email content: %w", err)
	}

	return client.Quit()
}

func (s *SMTPSender) dial(ctx context.Context, addr string) (net.Conn, error) {
	if s.config.External.Email.SMTPPort == 465 {
		tlsDialer := &tls.Dialer{
			NetDialer: s.dialer,
			Config:    &tls.Config{ServerName: s.config.External.Email.SMTPHost},
		}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS connection: %w", err)
		}
		return conn, nil
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	return conn, nil
}

// buildMIME renders headers and the HTML body
func buildMIME(cfg *config.Config, msg Message) []byte {
	headers := map[string]string{
		"From":         fromAddress(cfg),
		"To":           strings.Join(msg.To, ", "),
		"Subject":      msg.Subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=\"utf-8\"",
		"Date":         time.Now().UTC().Format(time.RFC1123Z),
	}
	if cfg.External.Email.ReplyTo != "" {
		headers["Reply-To"] = cfg.External.Email.ReplyTo
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, headers[k])
	}
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)
	return buf.Bytes()
}
