// Package webhook delivers signed alert payloads to partner endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/amber-relay/internal/catalog"
	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/google/uuid"
)

const (
	// EventAmberAlert is the event name carried in every payload.
	EventAmberAlert = "amber_alert"

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "amber-relay-webhook/1.0"
	recordTimeout    = 5 * time.Second
	maxErrorBody     = 1024
)

// Header names.
const (
	HeaderEvent       = "X-Webhook-Event"
	HeaderTimestamp   = "X-Webhook-Timestamp"
	HeaderAlertNumber = "X-Alert-Number"
	HeaderSignature   = "X-Webhook-Signature"
)

// PartnerReader loads the partner that owns a webhook.
type PartnerReader interface {
	GetPartner(ctx context.Context, id string) (*domain.Partner, error)
}

// DeliveryLog records every webhook attempt.
type DeliveryLog interface {
	RecordWebhookDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
}

// Config holds webhook sender configuration.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Sender POSTs the alert payload to the partner's webhook URL.
type Sender struct {
	config     Config
	partners   PartnerReader
	log        DeliveryLog
	httpClient *http.Client
	now        func() time.Time
}

// Payload is the JSON document delivered to partners.
type Payload struct {
	Event       string       `json:"event"`
	Timestamp   string       `json:"timestamp"`
	AlertNumber string       `json:"alert_number"`
	Alert       AlertPayload `json:"alert"`
}

// AlertPayload is the alert section of a webhook payload.
type AlertPayload struct {
	ID        string                    `json:"id"`
	CaseID    string                    `json:"case_id"`
	Status    domain.AlertStatus        `json:"status"`
	AlertType domain.AlertType          `json:"alert_type"`
	Message   string                    `json:"message"`
	Child     domain.PersonDescriptor   `json:"child"`
	Abduction domain.LocationDescriptor `json:"abduction"`
	Vehicle   *domain.VehicleDescriptor `json:"vehicle"`
	Suspect   *domain.SuspectDescriptor `json:"suspect"`
	Contact   domain.ContactInfo        `json:"contact"`
	IssuedAt  *string                   `json:"issued_at"`
}

// NewSender creates a new webhook sender.
func NewSender(config Config, partners PartnerReader, log DeliveryLog) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}

	return &Sender{
		config:   config,
		partners: partners,
		log:      log,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		now: time.Now,
	}
}

// Channel returns the channel.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelWebhook
}

// Send delivers the payload and records the outcome in the delivery log.
func (s *Sender) Send(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (distribution.Result, error) {
	delivery := &domain.WebhookDelivery{
		ID:        uuid.NewString(),
		UnitID:    unit.ID,
		AlertID:   alert.ID,
		PartnerID: unit.TargetID,
		URL:       unit.TargetContact,
	}

	start := time.Now()
	statusCode, err := s.deliver(ctx, unit, alert)
	delivery.Duration = time.Since(start)
	delivery.StatusCode = statusCode
	delivery.Success = err == nil
	if err != nil {
		delivery.ErrorMessage = err.Error()
	}
	delivery.CreatedAt = s.now().UTC()

	s.record(ctx, delivery)

	if err != nil {
		return distribution.Result{}, err
	}
	return distribution.Result{Sent: 1, Note: fmt.Sprintf("Webhook delivered (HTTP %d)", statusCode)}, nil
}

func (s *Sender) deliver(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (int, error) {
	if unit.TargetContact == "" {
		return 0, errors.New("webhook URL is empty")
	}

	partner, err := s.partners.GetPartner(ctx, unit.TargetID)
	if err != nil {
		return 0, fmt.Errorf("get partner %s: %w", unit.TargetID, err)
	}
	if !partner.IsActive {
		return 0, fmt.Errorf("%w: %s", catalog.ErrPartnerInactive, partner.Name)
	}

	timestamp := s.now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(BuildPayload(alert, timestamp))
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, unit.TargetContact, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set(HeaderEvent, EventAmberAlert)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderAlertNumber, alert.AlertNumber)
	if partner.WebhookSecret != "" {
		req.Header.Set(HeaderSignature, Sign(body, partner.WebhookSecret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Sender) record(ctx context.Context, delivery *domain.WebhookDelivery) {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.log.RecordWebhookDelivery(recordCtx, delivery); err != nil {
		slog.Warn("failed to record webhook delivery",
			"unit_id", delivery.UnitID,
			"partner_id", delivery.PartnerID,
			"error", err,
		)
	}
}

// BuildPayload builds the webhook document for an alert.
func BuildPayload(alert *domain.Alert, timestamp string) Payload {
	var issuedAt *string
	if alert.IssuedAt != nil {
		s := alert.IssuedAt.UTC().Format(time.RFC3339)
		issuedAt = &s
	}

	return Payload{
		Event:       EventAmberAlert,
		Timestamp:   timestamp,
		AlertNumber: alert.AlertNumber,
		Alert: AlertPayload{
			ID:        alert.ID,
			CaseID:    alert.CaseID,
			Status:    alert.Status,
			AlertType: alert.Type,
			Message:   alert.Message,
			Child:     alert.Person,
			Abduction: alert.Location,
			Vehicle:   alert.Vehicle,
			Suspect:   alert.Suspect,
			Contact:   alert.Contact,
			IssuedAt:  issuedAt,
		},
	}
}

// Sign returns the signature header value for a raw body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the body under secret.
func Verify(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
