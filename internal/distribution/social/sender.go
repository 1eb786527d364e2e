// Package social posts alerts to connected social media accounts.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultRateLimit = 1.0
	defaultTimeout   = 15 * time.Second
)

// Config holds social posting API configuration.
type Config struct {
	Enabled     bool
	APIURL      string
	APIKey      string
	LinkBaseURL string  // public alert page prefix; no link when empty
	RateLimit   float64 // posts per second across all accounts
	Timeout     time.Duration
}

// Sender publishes one post per unit on the unit's account.
type Sender struct {
	config   Config
	client   *resty.Client
	limiter  *rate.Limiter
	renderer *distribution.Renderer
}

type postRequest struct {
	Message  string   `json:"message"`
	ImageURL string   `json:"image_url,omitempty"`
	Link     string   `json:"link,omitempty"`
	Hashtags []string `json:"hashtags"`
}

type postResponse struct {
	PostID string `json:"post_id"`
	URL    string `json:"url"`
}

// NewSender creates a new social media sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config, renderer *distribution.Renderer) (*Sender, error) {
	if config.Enabled && config.APIURL == "" {
		return nil, errors.New("social sender: API URL is required when enabled")
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(config.APIURL).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json")
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	slog.Info("social sender configured",
		"enabled", config.Enabled,
		"api_url", config.APIURL,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:   config,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		renderer: renderer,
	}, nil
}

// Channel returns the channel.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelSocialMedia
}

// Send posts the alert on the account identified by the unit's target.
func (s *Sender) Send(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (distribution.Result, error) {
	if !s.config.Enabled {
		return distribution.Result{}, fmt.Errorf("%w: social_media", distribution.ErrChannelDisabled)
	}

	msg, err := s.renderer.Render(distribution.MessageSocial, alert, unit.Config.Provinces)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("render social post: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return distribution.Result{}, fmt.Errorf("wait for rate limit: %w", err)
	}

	req := postRequest{
		Message:  msg.Body,
		ImageURL: alert.Person.PhotoURL,
		Link:     s.alertLink(alert),
		Hashtags: msg.Hashtags,
	}

	var out postResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("accountID", unit.TargetID).
		SetBody(req).
		SetResult(&out).
		Post("/accounts/{accountID}/posts")
	if err != nil {
		return distribution.Result{}, fmt.Errorf("post to %s: %w", unit.TargetName, err)
	}
	if resp.IsError() {
		return distribution.Result{}, fmt.Errorf("post to %s: social API returned %d: %s", unit.TargetName, resp.StatusCode(), resp.String())
	}

	note := "Posted to " + unit.TargetName
	if out.URL != "" {
		note += ": " + out.URL
	}
	return distribution.Result{Sent: 1, Note: note}, nil
}

func (s *Sender) alertLink(alert *domain.Alert) string {
	if s.config.LinkBaseURL == "" {
		return ""
	}
	return strings.TrimRight(s.config.LinkBaseURL, "/") + "/alerts/" + alert.AlertNumber
}
