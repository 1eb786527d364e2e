package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bissquit/amber-relay/internal/catalog"
	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
)

// Transport sends one message to many recipients.
type Transport interface {
	Enabled() bool
	SendBatch(ctx context.Context, subject, body string, recipients []string) (sent, failed int)
}

// Sender fans an alert out to the email subscriber pool.
type Sender struct {
	transport   Transport
	subscribers catalog.SubscriberDirectory
	renderer    *distribution.Renderer
}

// NewSender creates a new email channel sender.
func NewSender(transport Transport, subscribers catalog.SubscriberDirectory, renderer *distribution.Renderer) *Sender {
	return &Sender{
		transport:   transport,
		subscribers: subscribers,
		renderer:    renderer,
	}
}

// Channel returns the channel.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelEmail
}

// Send mails the alert to every email subscriber in the unit's provinces.
func (s *Sender) Send(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (distribution.Result, error) {
	if !s.transport.Enabled() {
		return distribution.Result{}, fmt.Errorf("%w: email", distribution.ErrChannelDisabled)
	}

	subs, err := s.subscribers.ListSubscribers(ctx, domain.SubscriberKindEmail, unit.Config.Provinces)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("list email subscribers: %w", err)
	}

	msg, err := s.renderer.Render(distribution.MessageEmail, alert, unit.Config.Provinces)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("render email: %w", err)
	}

	recipients := make([]string, 0, len(subs))
	for _, sub := range subs {
		recipients = append(recipients, sub.Address)
	}

	sent, failed := s.transport.SendBatch(ctx, msg.Subject, msg.Body, recipients)

	slog.Info("email distribution finished",
		"alert_id", alert.ID,
		"unit_id", unit.ID,
		"recipients", len(recipients),
		"sent", sent,
		"failed", failed,
	)

	return distribution.BulkResult(sent, failed)
}
