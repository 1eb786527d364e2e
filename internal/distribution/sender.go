package distribution

import (
	"context"
	"fmt"

	"github.com/bissquit/amber-relay/internal/domain"
)

// Sender delivers one distribution unit on one channel.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (Result, error)
}

// Result summarizes a successful send.
type Result struct {
	Sent   int
	Failed int
	Note   string
}

// BulkResult builds a Result for a subscriber fan-out.
// It fails only when nobody accepted the message but somebody was attempted.
func BulkResult(sent, failed int) (Result, error) {
	res := Result{
		Sent:   sent,
		Failed: failed,
		Note:   fmt.Sprintf("Delivered to %d recipients, %d failed", sent, failed),
	}
	if sent == 0 && failed > 0 {
		return res, fmt.Errorf("%w: %d failed", ErrNoRecipients, failed)
	}
	return res, nil
}

// ApprovalSender handles regulated broadcast systems, which require a human
// to release each message.
type ApprovalSender struct{}

// Channel returns the channel.
func (ApprovalSender) Channel() domain.Channel {
	return domain.ChannelRegulatedBroadcast
}

// Send never transmits; it always asks for approval.
func (ApprovalSender) Send(_ context.Context, unit *domain.DistributionUnit, _ *domain.Alert) (Result, error) {
	return Result{}, fmt.Errorf("%w: %s", ErrApprovalRequired, unit.Config.System)
}
