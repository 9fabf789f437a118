package cart

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory cart store for single-instance deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string]*memoryEntry
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts: make(map[string]*memoryEntry),
	}
}

func (s *MemoryStore) Load(_ context.Context, cartID string) (*Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.carts[cartID]
	if !ok || time.Now().After(entry.expiresAt) {
		return &Cart{}, nil
	}

	return decodeCart(entry.payload), nil
}

func (s *MemoryStore) Save(_ context.Context, cartID string, c *Cart) error {
	payload, err := encodeCart(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupExpiredLocked(time.Now())

	s.carts[cartID] = &memoryEntry{
		payload:   payload,
		expiresAt: time.Now().Add(storeTTL),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, cartID)
	return nil
}

func (s *MemoryStore) cleanupExpiredLocked(now time.Time) {
	for key, entry := range s.carts {
		if now.After(entry.expiresAt) {
			delete(s.carts, key)
		}
	}
}

func (s *MemoryStore) Close() error {
	return nil
}
