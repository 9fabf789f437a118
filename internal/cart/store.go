package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Carts outlive a single visit but not abandoned browsers.
const storeTTL = 30 * 24 * time.Hour

// schemaVersion guards persisted carts across deployments: a payload written
// by an incompatible line shape is discarded instead of crashing on load.
const schemaVersion = 1

type persistedCart struct {
	SchemaVersion int    `json:"schema_version"`
	Lines         []Line `json:"lines"`
}

// Store persists the full cart line list keyed by cart ID. Every mutation
// writes the whole cart; reload restores it verbatim.
type Store interface {
	Load(ctx context.Context, cartID string) (*Cart, error)
	Save(ctx context.Context, cartID string, c *Cart) error
	Delete(ctx context.Context, cartID string) error
	Close() error
}

type StoreConfig struct {
	Provider              string
	RedisConnectionString string
}

func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cart store provider: %s", cfg.Provider)
	}
}

func encodeCart(c *Cart) ([]byte, error) {
	payload := persistedCart{
		SchemaVersion: schemaVersion,
		Lines:         c.Lines,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart: %w", err)
	}
	return encoded, nil
}

// decodeCart returns an empty cart for undecodable or version-mismatched
// payloads rather than an error: a stale cart is recoverable, a blocked
// storefront is not.
func decodeCart(raw []byte) *Cart {
	var payload persistedCart
	if err := json.Unmarshal(raw, &payload); err != nil {
		return &Cart{}
	}
	if payload.SchemaVersion != schemaVersion {
		return &Cart{}
	}
	return &Cart{Lines: payload.Lines}
}
