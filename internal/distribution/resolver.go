package distribution

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/google/uuid"
)

// Directory provides the targets a distribution can reach.
type Directory interface {
	ListPartners(ctx context.Context) ([]domain.Partner, error)
	ListMediaContacts(ctx context.Context) ([]domain.MediaContact, error)
	ListSocialAccounts(ctx context.Context) ([]domain.SocialAccount, error)
}

// ResolveInput selects channels and narrows their targets.
// Empty Provinces means no geographic restriction.
type ResolveInput struct {
	Channels         []domain.Channel
	Provinces        []string
	PartnerIDs       []string
	MediaIDs         []string
	RegulatedSystems []domain.RegulatedSystem
}

var regulatedSystemNames = map[domain.RegulatedSystem]string{
	domain.RegulatedSystemWEA:          "Wireless Emergency Alerts",
	domain.RegulatedSystemEAS:          "Emergency Alert System",
	domain.RegulatedSystemHighwaySigns: "Highway Message Signs",
}

var broadcastTargets = map[domain.Channel]struct{ id, name string }{
	domain.ChannelEmail: {"email_subscribers", "Email Subscribers"},
	domain.ChannelSMS:   {"sms_subscribers", "SMS Subscribers"},
	domain.ChannelPush:  {"push_subscribers", "Push Subscribers"},
}

// Resolver expands a distribution request into pending units.
type Resolver struct {
	dir        Directory
	maxRetries int
	now        func() time.Time
}

// NewResolver creates a new resolver.
func NewResolver(dir Directory, maxRetries int) *Resolver {
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	return &Resolver{
		dir:        dir,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Resolve returns one pending unit per eligible (channel, target) pair.
// A channel with no eligible targets contributes no units.
func (r *Resolver) Resolve(ctx context.Context, alert *domain.Alert, in ResolveInput) ([]*domain.DistributionUnit, error) {
	channels, err := normalizeChannels(in.Channels)
	if err != nil {
		return nil, err
	}
	for _, s := range in.RegulatedSystems {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSystem, s)
		}
	}

	now := r.now().UTC()
	units := make([]*domain.DistributionUnit, 0)

	for _, channel := range channels {
		var resolved []*domain.DistributionUnit

		switch channel {
		case domain.ChannelPartner:
			resolved, err = r.partnerUnits(ctx, alert, in)
		case domain.ChannelMediaOutlet:
			resolved, err = r.mediaUnits(ctx, alert, in)
		case domain.ChannelSocialMedia:
			resolved, err = r.socialUnits(ctx, alert, in)
		case domain.ChannelWebhook:
			resolved, err = r.webhookUnits(ctx, alert, in)
		case domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush:
			target := broadcastTargets[channel]
			resolved = []*domain.DistributionUnit{
				r.newUnit(alert, channel, target.id, target.name, "", domain.ChannelConfig{Provinces: in.Provinces}),
			}
		case domain.ChannelRegulatedBroadcast:
			resolved = r.regulatedUnits(alert, in)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s targets: %w", channel, err)
		}

		units = append(units, resolved...)
	}

	for _, u := range units {
		u.CreatedAt = now
		u.UpdatedAt = now
	}

	return units, nil
}

func (r *Resolver) partnerUnits(ctx context.Context, alert *domain.Alert, in ResolveInput) ([]*domain.DistributionUnit, error) {
	partners, err := r.dir.ListPartners(ctx)
	if err != nil {
		return nil, err
	}

	units := make([]*domain.DistributionUnit, 0)
	for i := range partners {
		p := &partners[i]
		if !p.IsActive {
			continue
		}
		if len(in.PartnerIDs) > 0 {
			if !slices.Contains(in.PartnerIDs, p.ID) {
				continue
			}
		} else if len(in.Provinces) > 0 && !p.CoversAny(in.Provinces) {
			continue
		}
		units = append(units, r.newUnit(alert, domain.ChannelPartner, p.ID, p.Name, p.Email,
			domain.ChannelConfig{Provinces: in.Provinces}))
	}
	return units, nil
}

func (r *Resolver) mediaUnits(ctx context.Context, alert *domain.Alert, in ResolveInput) ([]*domain.DistributionUnit, error) {
	contacts, err := r.dir.ListMediaContacts(ctx)
	if err != nil {
		return nil, err
	}

	units := make([]*domain.DistributionUnit, 0)
	for i := range contacts {
		m := &contacts[i]
		if !m.IsActive || !m.ReceiveAlerts {
			continue
		}
		if len(in.MediaIDs) > 0 && !slices.Contains(in.MediaIDs, m.ID) {
			continue
		}
		if len(in.Provinces) > 0 && !m.CoversAny(in.Provinces) {
			continue
		}
		units = append(units, r.newUnit(alert, domain.ChannelMediaOutlet, m.ID, m.OutletName, m.Email,
			domain.ChannelConfig{Provinces: in.Provinces}))
	}
	return units, nil
}

func (r *Resolver) socialUnits(ctx context.Context, alert *domain.Alert, in ResolveInput) ([]*domain.DistributionUnit, error) {
	accounts, err := r.dir.ListSocialAccounts(ctx)
	if err != nil {
		return nil, err
	}

	units := make([]*domain.DistributionUnit, 0)
	for i := range accounts {
		a := &accounts[i]
		if !a.IsActive || !a.IsConnected || !a.AutoPost {
			continue
		}
		units = append(units, r.newUnit(alert, domain.ChannelSocialMedia, a.ID, a.Platform+" "+a.Handle, a.Handle,
			domain.ChannelConfig{Provinces: in.Provinces, Platform: a.Platform}))
	}
	return units, nil
}

func (r *Resolver) webhookUnits(ctx context.Context, alert *domain.Alert, in ResolveInput) ([]*domain.DistributionUnit, error) {
	partners, err := r.dir.ListPartners(ctx)
	if err != nil {
		return nil, err
	}

	units := make([]*domain.DistributionUnit, 0)
	for i := range partners {
		p := &partners[i]
		if !p.IsActive || !p.APIAccess || p.WebhookURL == "" {
			continue
		}
		if len(in.PartnerIDs) > 0 && !slices.Contains(in.PartnerIDs, p.ID) {
			continue
		}
		units = append(units, r.newUnit(alert, domain.ChannelWebhook, p.ID, p.Name, p.WebhookURL, domain.ChannelConfig{}))
	}
	return units, nil
}

func (r *Resolver) regulatedUnits(alert *domain.Alert, in ResolveInput) []*domain.DistributionUnit {
	systems := in.RegulatedSystems
	if len(systems) == 0 {
		systems = domain.AllRegulatedSystems
	}

	units := make([]*domain.DistributionUnit, 0, len(systems))
	seen := make(map[domain.RegulatedSystem]bool, len(systems))
	for _, s := range systems {
		if seen[s] {
			continue
		}
		seen[s] = true
		units = append(units, r.newUnit(alert, domain.ChannelRegulatedBroadcast, string(s), regulatedSystemNames[s], "",
			domain.ChannelConfig{Provinces: in.Provinces, System: s, RequiresApproval: true}))
	}
	return units
}

func (r *Resolver) newUnit(alert *domain.Alert, channel domain.Channel, targetID, name, contact string, cfg domain.ChannelConfig) *domain.DistributionUnit {
	return &domain.DistributionUnit{
		ID:            uuid.NewString(),
		AlertID:       alert.ID,
		Channel:       channel,
		TargetID:      targetID,
		TargetName:    name,
		TargetContact: contact,
		Config:        cfg,
		Status:        domain.DistributionStatusPending,
		MaxRetries:    r.maxRetries,
	}
}

// normalizeChannels validates channels and drops duplicates, keeping order.
func normalizeChannels(channels []domain.Channel) ([]domain.Channel, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}

	out := make([]domain.Channel, 0, len(channels))
	seen := make(map[domain.Channel]bool, len(channels))
	for _, c := range channels {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
