//go:build integration

package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/bissquit/amber-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberCache_Redis(t *testing.T) {
	ctx := context.Background()

	container, err := testutil.NewRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	client := NewClient(Config{Addr: container.Addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	dir := &mockDirectory{subscribers: []domain.Subscriber{
		{ID: "s1", Kind: domain.SubscriberKindSMS, Address: "+14165550001", Province: "ON"},
		{ID: "s2", Kind: domain.SubscriberKindSMS, Address: "+14165550002", Province: "QC"},
	}}
	cache := NewSubscriberCache(dir, client, time.Second)

	first, err := cache.ListSubscribers(ctx, domain.SubscriberKindSMS, []string{"QC", "ON"})
	require.NoError(t, err)
	second, err := cache.ListSubscribers(ctx, domain.SubscriberKindSMS, []string{"ON", "QC"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, dir.calls, "second lookup is served from redis")

	ttl, err := client.TTL(ctx, cacheKey(domain.SubscriberKindSMS, []string{"ON", "QC"})).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.Eventually(t, func() bool {
		_, err := cache.ListSubscribers(ctx, domain.SubscriberKindSMS, []string{"ON", "QC"})
		return err == nil && dir.calls == 2
	}, 5*time.Second, 200*time.Millisecond, "entry expires after ttl")
}
