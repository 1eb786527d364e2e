// Package email delivers alerts to email subscribers via SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Config holds SMTP client configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	BatchSize    int
	DialTimeout  time.Duration
}

// Client sends plain-text mail over SMTP with STARTTLS.
type Client struct {
	config Config
	auth   smtp.Auth
}

// NewClient creates a new SMTP client.
// Returns error if enabled but required config is missing.
func NewClient(config Config) (*Client, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email client: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email client: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.BatchSize == 0 {
		config.BatchSize = 50
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email client configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"batch_size", config.BatchSize,
	)

	return &Client{
		config: config,
		auth:   auth,
	}, nil
}

// Enabled reports whether the transport is configured to send.
func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// Send mails one message to a single recipient.
func (c *Client) Send(ctx context.Context, subject, body, to string) error {
	if !c.config.Enabled {
		return errors.New("email transport disabled")
	}

	accepted, err := c.sendEmail(ctx, subject, body, []string{to})
	if err != nil {
		return err
	}
	if accepted == 0 {
		return fmt.Errorf("recipient %s rejected", to)
	}
	return nil
}

// SendBatch mails one message to many recipients using BCC, split into
// batches to respect SMTP server limits. Recipients of a failed batch and
// recipients the server rejects count as failed.
func (c *Client) SendBatch(ctx context.Context, subject, body string, recipients []string) (sent, failed int) {
	for i := 0; i < len(recipients); i += c.config.BatchSize {
		end := min(i+c.config.BatchSize, len(recipients))
		batch := recipients[i:end]

		if ctx.Err() != nil {
			failed += len(recipients) - i
			break
		}

		accepted, err := c.sendEmail(ctx, subject, body, batch)
		if err != nil {
			slog.Error("failed to send email batch",
				"batch_start", i,
				"batch_size", len(batch),
				"error", err,
			)
			failed += len(batch)
			continue
		}

		sent += accepted
		failed += len(batch) - accepted
		slog.Debug("email batch sent",
			"batch_start", i,
			"batch_size", len(batch),
			"accepted", accepted,
		)
	}

	return sent, failed
}

func (c *Client) sendEmail(ctx context.Context, subject, body string, recipients []string) (int, error) {
	msg := c.buildMessage(subject, body)
	addr := fmt.Sprintf("%s:%d", c.config.SMTPHost, c.config.SMTPPort)

	tlsConfig := &tls.Config{
		ServerName: c.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	return c.sendWithSTARTTLS(ctx, addr, tlsConfig, recipients, msg)
}

// buildMessage constructs the email message with headers.
func (c *Client) buildMessage(subject, body string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", c.config.FromAddress))
	msg.WriteString("To: undisclosed-recipients:;\r\n")
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

// sendWithSTARTTLS delivers one message and returns how many recipients the server accepted.
func (c *Client) sendWithSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config, recipients []string, msg []byte) (int, error) {
	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.config.SMTPHost)
	if err != nil {
		return 0, fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return 0, fmt.Errorf("starttls: %w", err)
		}
	}

	if c.auth != nil {
		if err := client.Auth(c.auth); err != nil {
			return 0, fmt.Errorf("auth: %w", err)
		}
	}

	from := extractEmail(c.config.FromAddress)
	if err := client.Mail(from); err != nil {
		return 0, fmt.Errorf("mail from: %w", err)
	}

	// Recipients go in the envelope only.
	var accepted int
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			slog.Warn("failed to add recipient", "error", err)
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return 0, errors.New("no valid recipients")
	}

	w, err := client.Data()
	if err != nil {
		return 0, fmt.Errorf("data: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return 0, fmt.Errorf("write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("close data: %w", err)
	}

	if err := client.Quit(); err != nil {
		slog.Debug("smtp quit failed", "error", err)
	}
	return accepted, nil
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}
