// Package cache provides short-lived caching for webhook idempotency and
// shipping quote snapshots.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// WebhookKey builds the idempotency key for an external webhook event.
func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}

// ShippingQuoteKey builds the cache key for a resolved shipping quote set.
func ShippingQuoteKey(country string, subtotalCents int64, weightGrams int) string {
	return fmt.Sprintf("shipping:%s:%d:%d", country, subtotalCents, weightGrams)
}
