package rediscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	calls       int
	subscribers []domain.Subscriber
	err         error
}

func (m *mockDirectory) ListSubscribers(_ context.Context, _ domain.SubscriberKind, _ []string) ([]domain.Subscriber, error) {
	m.calls++
	return m.subscribers, m.err
}

// unreachableClient points at a closed port so every command fails fast.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestCacheKey_OrderIndependent(t *testing.T) {
	a := cacheKey(domain.SubscriberKindEmail, []string{"ON", "BC"})
	b := cacheKey(domain.SubscriberKindEmail, []string{"BC", "ON"})

	assert.Equal(t, a, b)
	assert.Equal(t, "amber-relay:subscribers:email:BC,ON", a)
}

func TestCacheKey_AllProvinces(t *testing.T) {
	assert.Equal(t, "amber-relay:subscribers:sms:*", cacheKey(domain.SubscriberKindSMS, nil))
}

func TestCacheKey_DoesNotMutateInput(t *testing.T) {
	provinces := []string{"QC", "AB"}
	_ = cacheKey(domain.SubscriberKindPush, provinces)

	assert.Equal(t, []string{"QC", "AB"}, provinces)
}

func TestSubscriberCache_FallsBackWhenRedisUnavailable(t *testing.T) {
	client := unreachableClient()
	defer func() { _ = client.Close() }()

	dir := &mockDirectory{subscribers: []domain.Subscriber{
		{ID: "s1", Kind: domain.SubscriberKindEmail, Address: "a@example.com", Province: "ON"},
	}}
	cache := NewSubscriberCache(dir, client, time.Second)

	got, err := cache.ListSubscribers(context.Background(), domain.SubscriberKindEmail, []string{"ON"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, dir.calls)
}

func TestSubscriberCache_PropagatesDirectoryError(t *testing.T) {
	client := unreachableClient()
	defer func() { _ = client.Close() }()

	dir := &mockDirectory{err: errors.New("db down")}
	cache := NewSubscriberCache(dir, client, time.Second)

	_, err := cache.ListSubscribers(context.Background(), domain.SubscriberKindSMS, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestNewSubscriberCache_DefaultTTL(t *testing.T) {
	cache := NewSubscriberCache(&mockDirectory{}, nil, 0)
	assert.Equal(t, defaultTTL, cache.ttl)
}
