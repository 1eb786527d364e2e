package distribution_test

import (
	"context"
	"sync"
	"time"

	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/distribution/memory"
	"github.com/bissquit/amber-relay/internal/domain"
)

type fakeCatalog struct {
	alerts   map[string]*domain.Alert
	partners []domain.Partner
	media    []domain.MediaContact
	social   []domain.SocialAccount
}

func (f *fakeCatalog) GetAlert(_ context.Context, id string) (*domain.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, distribution.ErrAlertNotFound
	}
	return a, nil
}

func (f *fakeCatalog) ListPartners(context.Context) ([]domain.Partner, error) {
	return f.partners, nil
}

func (f *fakeCatalog) ListMediaContacts(context.Context) ([]domain.MediaContact, error) {
	return f.media, nil
}

func (f *fakeCatalog) ListSocialAccounts(context.Context) ([]domain.SocialAccount, error) {
	return f.social, nil
}

// stubSender counts calls per target and fails for targets in failFor.
type stubSender struct {
	channel domain.Channel

	mu      sync.Mutex
	calls   map[string]int
	failFor map[string]bool
	failAll bool
}

func newStubSender(channel domain.Channel) *stubSender {
	return &stubSender{
		channel: channel,
		calls:   make(map[string]int),
		failFor: make(map[string]bool),
	}
}

func (s *stubSender) Channel() domain.Channel { return s.channel }

func (s *stubSender) Send(_ context.Context, unit *domain.DistributionUnit, _ *domain.Alert) (distribution.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[unit.TargetID]++
	if s.failAll || s.failFor[unit.TargetID] {
		return distribution.Result{}, errTargetDown
	}
	return distribution.Result{Sent: 1, Note: "ok " + unit.TargetName}, nil
}

func (s *stubSender) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	store     *memory.Store
	catalog   *fakeCatalog
	clock     *testClock
	processor *distribution.Processor
	service   *distribution.Service
	webhook   *stubSender
	email     *stubSender
	partner   *stubSender
}

var t0 = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

func activeAlert() *domain.Alert {
	return &domain.Alert{
		ID:              "alert-1",
		AlertNumber:     "ON-2026-001",
		Type:            domain.AlertTypeAmber,
		Status:          domain.AlertStatusActive,
		Person:          domain.PersonDescriptor{Name: "Maya Singh", Age: 7},
		Location:        domain.LocationDescriptor{City: "Toronto", Province: "ON"},
		Contact:         domain.ContactInfo{Agency: "Toronto Police", Phone: "416-555-0100"},
		TargetProvinces: []string{"ON"},
		DefaultChannels: []domain.Channel{domain.ChannelPartner, domain.ChannelEmail},
	}
}

func newEnv() *env {
	cat := &fakeCatalog{
		alerts: map[string]*domain.Alert{"alert-1": activeAlert()},
		partners: []domain.Partner{
			{ID: "p1", Name: "Transit Authority", Email: "ops@transit.example", Provinces: []string{"ON"}, IsActive: true, APIAccess: true, WebhookURL: "https://transit.example/hook"},
			{ID: "p2", Name: "Highway Patrol", Email: "desk@patrol.example", Provinces: []string{"ON", "QC"}, IsActive: true, APIAccess: true, WebhookURL: "https://patrol.example/hook"},
			{ID: "p3", Name: "Radio Network", Email: "news@radio.example", Provinces: []string{"BC"}, IsActive: true},
		},
	}

	store := memory.NewStore()
	clock := &testClock{now: t0}

	webhook := newStubSender(domain.ChannelWebhook)
	email := newStubSender(domain.ChannelEmail)
	partner := newStubSender(domain.ChannelPartner)
	dispatcher := distribution.NewDispatcher(webhook, email, partner)

	auditor := distribution.NewAuditor(store)
	processor := distribution.NewProcessor(distribution.ProcessorConfig{
		BatchSize:      50,
		Concurrency:    4,
		RetryBaseDelay: time.Minute,
		StaleAfter:     15 * time.Minute,
	}, store, cat, dispatcher, auditor)
	processor.SetClock(clock.Now)

	resolver := distribution.NewResolver(cat, domain.DefaultMaxRetries)
	service := distribution.NewService(store, cat, resolver, auditor, processor, nil)

	return &env{
		store:     store,
		catalog:   cat,
		clock:     clock,
		processor: processor,
		service:   service,
		webhook:   webhook,
		email:     email,
		partner:   partner,
	}
}

func eventsOfType(events []*domain.AuditEvent, t domain.AuditEventType) []*domain.AuditEvent {
	out := make([]*domain.AuditEvent, 0)
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
