// Package sms delivers alerts to SMS subscribers through an HTTP SMS gateway.
package sms

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
	"golang.org/x/time/rate"
)

const (
	defaultRateLimit = 10.0
	defaultTimeout   = 10 * time.Second
)

// Config holds SMS gateway configuration.
type Config struct {
	Enabled    bool
	GatewayURL string
	APIKey     string
	From       string
	RateLimit  float64 // messages per second
	Timeout    time.Duration
}

// Sender sends one gateway request per subscriber, throttled to the gateway's rate.
type Sender struct {
	config      Config
	client      *resty.Client
	limiter     *rate.Limiter
	subscribers catalog.SubscriberDirectory
	renderer    *distribution.Renderer
}

type messageRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

type messageResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// NewSender creates a new SMS sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config, subscribers catalog.SubscriberDirectory, renderer *distribution.Renderer) (*Sender, error) {
	if config.Enabled && config.GatewayURL == "" {
		return nil, errors.New("sms sender: gateway URL is required when enabled")
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(config.GatewayURL).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	slog.Info("sms sender configured",
		"enabled", config.Enabled,
		"gateway_url", config.GatewayURL,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:      config,
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		subscribers: subscribers,
		renderer:    renderer,
	}, nil
}

// Channel returns the channel.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelSMS
}

// Send texts the alert to every SMS subscriber in the unit's provinces.
func (s *Sender) Send(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (distribution.Result, error) {
	if !s.config.Enabled {
		return distribution.Result{}, fmt.Errorf("%w: sms", distribution.ErrChannelDisabled)
	}

	subs, err := s.subscribers.ListSubscribers(ctx, domain.SubscriberKindSMS, unit.Config.Provinces)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("list sms subscribers: %w", err)
	}

	msg, err := s.renderer.Render(distribution.MessageSMS, alert, unit.Config.Provinces)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("render sms: %w", err)
	}

	var sent, failed int
	for i, sub := range subs {
		if err := s.limiter.Wait(ctx); err != nil {
			failed += len(subs) - i
			slog.Warn("sms distribution interrupted", "unit_id", unit.ID, "remaining", len(subs)-i, "error", err)
			break
		}

		if err := s.sendOne(ctx, sub.Address, msg.Body); err != nil {
			slog.Debug("sms message failed", "unit_id", unit.ID, "error", err)
			failed++
			continue
		}
		sent++
	}

	slog.Info("sms distribution finished",
		"alert_id", alert.ID,
		"unit_id", unit.ID,
		"sent", sent,
		"failed", failed,
	)

	return distribution.BulkResult(sent, failed)
}

func (s *Sender) sendOne(ctx context.Context, to, body string) error {
	var out messageResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(messageRequest{To: to, From: s.config.From, Body: body}).
		SetResult(&out).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
