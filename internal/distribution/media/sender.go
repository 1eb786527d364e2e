// Package media sends press releases to media outlet contacts.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
)

// Mailer sends one message to one address.
type Mailer interface {
	Enabled() bool
	Send(ctx context.Context, subject, body, to string) error
}

// Sender mails a press-style release to the unit's contact address.
type Sender struct {
	mailer   Mailer
	renderer *distribution.Renderer
}

// NewSender creates a new media outlet sender.
func NewSender(mailer Mailer, renderer *distribution.Renderer) *Sender {
	return &Sender{mailer: mailer, renderer: renderer}
}

// Channel returns the channel.
func (s *Sender) Channel() domain.Channel {
	return domain.ChannelMediaOutlet
}

// Send mails the press release.
func (s *Sender) Send(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (distribution.Result, error) {
	if !s.mailer.Enabled() {
		return distribution.Result{}, fmt.Errorf("%w: media_outlet", distribution.ErrChannelDisabled)
	}
	if unit.TargetContact == "" {
		return distribution.Result{}, errors.New("media contact has no email address")
	}

	msg, err := s.renderer.Render(distribution.MessagePress, alert, unit.Config.Provinces)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("render press release: %w", err)
	}

	if err := s.mailer.Send(ctx, msg.Subject, msg.Body, unit.TargetContact); err != nil {
		return distribution.Result{}, fmt.Errorf("send press release to %s: %w", unit.TargetName, err)
	}

	return distribution.Result{Sent: 1, Note: "Press release sent to " + unit.TargetName}, nil
}
