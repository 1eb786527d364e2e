// Package rediscache caches subscriber pools in Redis for a short TTL.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bissquit/amber-relay/internal/catalog"
	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/go-redis/redis/v8"
)

const (
	defaultTTL = 30 * time.Second
	keyPrefix  = "amber-relay:subscribers"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient creates a Redis client from config.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// SubscriberCache wraps a SubscriberDirectory with a read-through Redis cache.
// Cache failures never fail a lookup; the directory is queried instead.
type SubscriberCache struct {
	next   catalog.SubscriberDirectory
	client *redis.Client
	ttl    time.Duration
}

// NewSubscriberCache creates a new subscriber cache.
func NewSubscriberCache(next catalog.SubscriberDirectory, client *redis.Client, ttl time.Duration) *SubscriberCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &SubscriberCache{
		next:   next,
		client: client,
		ttl:    ttl,
	}
}

// ListSubscribers returns subscribers from cache or the underlying directory.
func (c *SubscriberCache) ListSubscribers(ctx context.Context, kind domain.SubscriberKind, provinces []string) ([]domain.Subscriber, error) {
	key := cacheKey(kind, provinces)

	cached, err := c.get(ctx, key)
	switch {
	case err == nil:
		return cached, nil
	case errors.Is(err, redis.Nil):
	default:
		slog.Warn("subscriber cache read failed", "key", key, "error", err)
	}

	subscribers, err := c.next.ListSubscribers(ctx, kind, provinces)
	if err != nil {
		return nil, err
	}

	if err := c.set(ctx, key, subscribers); err != nil {
		slog.Warn("subscriber cache write failed", "key", key, "error", err)
	}

	return subscribers, nil
}

func (c *SubscriberCache) get(ctx context.Context, key string) ([]domain.Subscriber, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var subscribers []domain.Subscriber
	if err := json.Unmarshal(val, &subscribers); err != nil {
		return nil, fmt.Errorf("decode cached subscribers: %w", err)
	}
	return subscribers, nil
}

func (c *SubscriberCache) set(ctx context.Context, key string, subscribers []domain.Subscriber) error {
	data, err := json.Marshal(subscribers)
	if err != nil {
		return fmt.Errorf("encode subscribers: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// cacheKey builds a key independent of province order.
func cacheKey(kind domain.SubscriberKind, provinces []string) string {
	sorted := append([]string(nil), provinces...)
	sort.Strings(sorted)
	scope := strings.Join(sorted, ",")
	if scope == "" {
		scope = "*"
	}
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kind, scope)
}
