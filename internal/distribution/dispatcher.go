package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bissquit/amber-relay/internal/domain"
)

// Dispatcher routes a unit to the sender of its channel.
type Dispatcher struct {
	senders map[domain.Channel]Sender
}

// NewDispatcher creates a new dispatcher. The regulated broadcast channel is
// always served by ApprovalSender regardless of the senders passed in.
func NewDispatcher(senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.Channel]Sender)
	for _, s := range senders {
		if s.Channel() == domain.ChannelRegulatedBroadcast {
			slog.Warn("ignoring sender for regulated broadcast channel")
			continue
		}
		senderMap[s.Channel()] = s
	}
	senderMap[domain.ChannelRegulatedBroadcast] = ApprovalSender{}

	return &Dispatcher{senders: senderMap}
}

// Send delivers the unit with the sender registered for its channel.
func (d *Dispatcher) Send(ctx context.Context, unit *domain.DistributionUnit, alert *domain.Alert) (Result, error) {
	sender, ok := d.senders[unit.Channel]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoSender, unit.Channel)
	}
	return sender.Send(ctx, unit, alert)
}

// Channels returns the channels that have a sender.
func (d *Dispatcher) Channels() []domain.Channel {
	channels := make([]domain.Channel, 0, len(d.senders))
	for c := range d.senders {
		channels = append(channels, c)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}
