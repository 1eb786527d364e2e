package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bissquit/amber-relay/internal/distribution"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	subscribers []domain.Subscriber
}

func (f *fakeDirectory) ListSubscribers(_ context.Context, _ domain.SubscriberKind, _ []string) ([]domain.Subscriber, error) {
	return f.subscribers, nil
}

func devices(n int) *fakeDirectory {
	dir := &fakeDirectory{}
	for i := 0; i < n; i++ {
		dir.subscribers = append(dir.subscribers, domain.Subscriber{Kind: domain.SubscriberKindPush, Address: fmt.Sprintf("token-%d", i)})
	}
	return dir
}

func testAlert() *domain.Alert {
	return &domain.Alert{
		ID:          "alert-1",
		AlertNumber: "BC-2026-003",
		Type:        domain.AlertTypeMissingPerson,
		Status:      domain.AlertStatusActive,
		Person:      domain.PersonDescriptor{Name: "Alex Kim", PhotoURL: "https://example.com/photo.jpg"},
		Location:    domain.LocationDescriptor{City: "Victoria", Province: "BC"},
		Contact:     domain.ContactInfo{Agency: "Victoria Police", Phone: "250-555-0123"},
	}
}

func testUnit() *domain.DistributionUnit {
	return &domain.DistributionUnit{ID: "unit-1", AlertID: "alert-1", Channel: domain.ChannelPush}
}

func newTestSender(t *testing.T, url string, batchSize int, dir *fakeDirectory) *Sender {
	t.Helper()
	renderer, err := distribution.NewRenderer()
	require.NoError(t, err)

	s, err := NewSender(Config{Enabled: true, GatewayURL: url, BatchSize: batchSize}, dir, renderer)
	require.NoError(t, err)
	return s
}

func TestNewSender_Defaults(t *testing.T) {
	s, err := NewSender(Config{}, &fakeDirectory{}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, s.config.BatchSize)
	assert.Equal(t, defaultTimeout, s.config.Timeout)

	_, err = NewSender(Config{Enabled: true}, &fakeDirectory{}, nil)
	assert.Error(t, err)
}

func TestSender_Send_Batches(t *testing.T) {
	var batches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)

		var req multicastRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.Tokens), 2)
		assert.Equal(t, "Missing Person Alert", req.Notification.Title)
		assert.Equal(t, "https://example.com/photo.jpg", req.Notification.Image)
		assert.Equal(t, "BC-2026-003", req.Notification.Data["alert_number"])

		batches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(multicastResponse{Success: len(req.Tokens), Failure: 0})
	}))
	defer server.Close()

	s := newTestSender(t, server.URL, 2, devices(5))
	res, err := s.Send(context.Background(), testUnit(), testAlert())

	require.NoError(t, err)
	assert.Equal(t, 5, res.Sent)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, int32(3), batches.Load())
}

func TestSender_Send_GatewayCounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(multicastResponse{Success: 3, Failure: 1})
	}))
	defer server.Close()

	s := newTestSender(t, server.URL, 10, devices(4))
	res, err := s.Send(context.Background(), testUnit(), testAlert())

	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 1, res.Failed)
}

func TestSender_Send_FailedBatchCountsAllTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newTestSender(t, server.URL, 10, devices(4))
	res, err := s.Send(context.Background(), testUnit(), testAlert())

	require.Error(t, err)
	assert.ErrorIs(t, err, distribution.ErrNoRecipients)
	assert.Equal(t, 4, res.Failed)
}

func TestSender_Send_Disabled(t *testing.T) {
	s, err := NewSender(Config{}, devices(1), nil)
	require.NoError(t, err)

	_, err = s.Send(context.Background(), testUnit(), testAlert())
	assert.ErrorIs(t, err, distribution.ErrChannelDisabled)
}
