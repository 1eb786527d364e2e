package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/amber-relay/internal/catalog"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePartners struct {
	partners map[string]*domain.Partner
}

func (f *fakePartners) GetPartner(_ context.Context, id string) (*domain.Partner, error) {
	p, ok := f.partners[id]
	if !ok {
		return nil, errors.New("partner not found")
	}
	return p, nil
}

type fakeLog struct {
	mu         sync.Mutex
	deliveries []*domain.WebhookDelivery
}

func (f *fakeLog) RecordWebhookDelivery(_ context.Context, d *domain.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	return nil
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testAlert() *domain.Alert {
	issued := fixedNow.Add(-time.Hour)
	return &domain.Alert{
		ID:          "alert-1",
		CaseID:      "case-9",
		AlertNumber: "ON-2026-001",
		Type:        domain.AlertTypeAmber,
		Status:      domain.AlertStatusActive,
		Message:     "Child abducted from park",
		Person:      domain.PersonDescriptor{Name: "Maya Singh", Age: 7},
		Location:    domain.LocationDescriptor{City: "Toronto", Province: "ON"},
		Contact:     domain.ContactInfo{Agency: "Toronto Police", Phone: "416-555-0100"},
		IssuedAt:    &issued,
	}
}

func testUnit(url string) *domain.DistributionUnit {
	return &domain.DistributionUnit{
		ID:            "unit-1",
		AlertID:       "alert-1",
		Channel:       domain.ChannelWebhook,
		TargetID:      "p1",
		TargetName:    "Transit Authority",
		TargetContact: url,
	}
}

func newTestSender(partner *domain.Partner) (*Sender, *fakeLog) {
	log := &fakeLog{}
	s := NewSender(Config{Timeout: 2 * time.Second}, &fakePartners{partners: map[string]*domain.Partner{partner.ID: partner}}, log)
	s.now = func() time.Time { return fixedNow }
	return s, log
}

func TestSender_Send_SignsPayload(t *testing.T) {
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	partner := &domain.Partner{ID: "p1", Name: "Transit Authority", IsActive: true, WebhookSecret: "s3cret"}
	s, log := newTestSender(partner)

	res, err := s.Send(context.Background(), testUnit(server.URL), testAlert())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, "Webhook delivered (HTTP 202)", res.Note)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, EventAmberAlert, gotHeaders.Get(HeaderEvent))
	assert.Equal(t, "2026-03-14T09:30:00Z", gotHeaders.Get(HeaderTimestamp))
	assert.Equal(t, "ON-2026-001", gotHeaders.Get(HeaderAlertNumber))
	assert.Equal(t, Sign(gotBody, "s3cret"), gotHeaders.Get(HeaderSignature))
	assert.True(t, Verify(gotBody, "s3cret", gotHeaders.Get(HeaderSignature)))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "amber_alert", payload["event"])
	assert.Equal(t, "ON-2026-001", payload["alert_number"])
	alert := payload["alert"].(map[string]any)
	assert.Equal(t, "case-9", alert["case_id"])
	assert.Equal(t, "amber", alert["alert_type"])
	assert.Equal(t, "2026-03-14T08:30:00Z", alert["issued_at"])
	assert.Nil(t, alert["vehicle"])
	assert.Nil(t, alert["suspect"])

	require.Len(t, log.deliveries, 1)
	d := log.deliveries[0]
	assert.True(t, d.Success)
	assert.Equal(t, http.StatusAccepted, d.StatusCode)
	assert.Equal(t, "unit-1", d.UnitID)
	assert.Equal(t, "p1", d.PartnerID)
	assert.Empty(t, d.ErrorMessage)
}

func TestSender_Send_NoSecretNoSignature(t *testing.T) {
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get(HeaderSignature)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, _ := newTestSender(&domain.Partner{ID: "p1", IsActive: true})

	_, err := s.Send(context.Background(), testUnit(server.URL), testAlert())

	require.NoError(t, err)
	assert.Empty(t, signature)
}

func TestSender_Send_Non2xxRecordsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	s, log := newTestSender(&domain.Partner{ID: "p1", IsActive: true, WebhookSecret: "x"})

	_, err := s.Send(context.Background(), testUnit(server.URL), testAlert())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance")

	require.Len(t, log.deliveries, 1)
	assert.False(t, log.deliveries[0].Success)
	assert.Equal(t, http.StatusServiceUnavailable, log.deliveries[0].StatusCode)
	assert.NotEmpty(t, log.deliveries[0].ErrorMessage)
}

func TestSender_Send_InactivePartner(t *testing.T) {
	s, log := newTestSender(&domain.Partner{ID: "p1", Name: "Old Partner"})

	_, err := s.Send(context.Background(), testUnit("http://127.0.0.1:1/hook"), testAlert())

	assert.ErrorIs(t, err, catalog.ErrPartnerInactive)
	require.Len(t, log.deliveries, 1)
	assert.False(t, log.deliveries[0].Success)
	assert.Zero(t, log.deliveries[0].StatusCode)
}

func TestSender_Send_Unreachable(t *testing.T) {
	s, log := newTestSender(&domain.Partner{ID: "p1", IsActive: true})

	_, err := s.Send(context.Background(), testUnit("http://127.0.0.1:1/hook"), testAlert())

	require.Error(t, err)
	require.Len(t, log.deliveries, 1)
	assert.False(t, log.deliveries[0].Success)
}

func TestSign_Deterministic(t *testing.T) {
	body := []byte(`{"event":"amber_alert"}`)

	first := Sign(body, "key")
	second := Sign(body, "key")

	assert.Equal(t, first, second)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, first)
	assert.NotEqual(t, first, Sign(body, "other"))
	assert.False(t, Verify(body, "other", first))
}
