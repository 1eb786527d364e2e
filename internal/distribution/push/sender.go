// Package push delivers alerts to registered devices through a push gateway.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/amber-relay/internal/catalog"
	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/go-resty/resty/v2"
)

const (
	defaultBatchSize = 500
	defaultTimeout   = 30 * time.Second
)

// Config holds push gateway configuration.
type Config struct {
	Enabled    bool
	GatewayURL string
	APIKey     string
	BatchSize  int
	Timeout    time.Duration
}

// Sender multicasts a notification to device tokens in batches.
type Sender struct {
	config      Config
	client      *resty.Client
	subscribers catalog.SubscriberDirectory
	renderer    *distribution.Renderer
}

type notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Image string            `json:"image,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

type multicastRequest struct {
	Tokens       []string     `json:"tokens"`
	Notification notification `json:"notification"`
	Priority     string       `json:"priority"`
}

type multicastResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// NewSender creates a new push sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config, subscribers catalog.SubscriberDirectory, renderer *distribution.Renderer) (*Sender, error) {
	if config.Enabled && config.GatewayURL == "" {
		return nil, errors.New("push sender: gateway URL is required when enabled")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(config.GatewayURL).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json")
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	slog.Info("push sender configured",
		"enabled", config.Enabled,
		"gateway_url", config.GatewayURL,
		"batch_size", config.BatchSize,
	)

	return &Sender{
		config:      config,
		client:      client,
		subscribers: subscribers,
		renderer:    renderer,
	}, nil
}

// Channel returns the channel.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelPush
}

// Send notifies every push subscriber in the unit's provinces.
func (s *Sender) Send(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (distribution.Result, error) {
	if !s.config.Enabled {
		return distribution.Result{}, fmt.Errorf("%w: push", distribution.ErrChannelDisabled)
	}

	subs, err := s.subscribers.ListSubscribers(ctx, domain.SubscriberKindPush, unit.Config.Provinces)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("list push subscribers: %w", err)
	}

	msg, err := s.renderer.Render(distribution.MessagePush, alert, unit.Config.Provinces)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("render push: %w", err)
	}

	tokens := make([]string, 0, len(subs))
	for _, sub := range subs {
		tokens = append(tokens, sub.Address)
	}

	n := notification{
		Title: msg.Subject,
		Body:  msg.Body,
		Image: alert.Person.PhotoURL,
		Data: map[string]string{
			"alert_id":     alert.ID,
			"alert_number": alert.AlertNumber,
			"alert_type":   string(alert.Type),
		},
	}

	var sent, failed int
	for i := 0; i < len(tokens); i += s.config.BatchSize {
		end := min(i+s.config.BatchSize, len(tokens))
		batch := tokens[i:end]

		out, err := s.sendBatch(ctx, batch, n)
		if err != nil {
			slog.Error("push batch failed",
				"unit_id", unit.ID,
				"batch_start", i,
				"batch_size", len(batch),
				"error", err,
			)
			failed += len(batch)
			continue
		}
		sent += out.Success
		failed += out.Failure
	}

	slog.Info("push distribution finished",
		"alert_id", alert.ID,
		"unit_id", unit.ID,
		"sent", sent,
		"failed", failed,
	)

	return distribution.BulkResult(sent, failed)
}

func (s *Sender) sendBatch(ctx context.Context, tokens []string, n notification) (multicastResponse, error) {
	var out multicastResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(multicastRequest{Tokens: tokens, Notification: n, Priority: "high"}).
		SetResult(&out).
		Post("/send")
	if err != nil {
		return out, fmt.Errorf("send push batch: %w", err)
	}
	if resp.IsError() {
		return out, fmt.Errorf("push gateway returned %d: %s", resp.StatusCode(), resp.String())
	}
	return out, nil
}
