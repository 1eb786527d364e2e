// Package partner delivers alerts to partner organizations as in-app notifications.
package partner

import (
	"context"
	"fmt"

	"github.com/bissquit/amber-relay/internal/catalog"
	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
)

// Store reads partners and writes their notifications.
type Store interface {
	GetPartner(ctx context.Context, id string) (*domain.Partner, error)
	CreatePartnerNotification(ctx context.Context, n *domain.PartnerNotification) error
}

// Sender writes a directed notification for the unit's partner.
type Sender struct {
	store    Store
	renderer *distribution.Renderer
}

// NewSender creates a new partner sender.
func NewSender(store Store, renderer *distribution.Renderer) *Sender {
	return &Sender{store: store, renderer: renderer}
}

// Channel returns the channel.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelPartner
}

// Send notifies the partner identified by the unit's target.
func (s *Sender) Send(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (distribution.Result, error) {
	p, err := s.store.GetPartner(ctx, unit.TargetID)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("get partner %s: %w", unit.TargetID, err)
	}
	if !p.IsActive {
		return distribution.Result{}, fmt.Errorf("%w: %s", catalog.ErrPartnerInactive, p.Name)
	}

	msg, err := s.renderer.Render(distribution.MessagePartner, alert, unit.Config.Provinces)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("render partner notification: %w", err)
	}

	n := &domain.PartnerNotification{
		PartnerID: p.ID,
		AlertID:   alert.ID,
		Title:     msg.Subject,
		Body:      msg.Body,
	}
	if err := s.store.CreatePartnerNotification(ctx, n); err != nil {
		return distribution.Result{}, fmt.Errorf("create partner notification: %w", err)
	}

	return distribution.Result{Sent: 1, Note: "Notification delivered to " + p.Name}, nil
}
