// Package storage provides the key-value persistence used for client-side
// durable state: the signed-in identity blob and the notification bundle.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrMissingKey indicates an empty storage key.
var ErrMissingKey = errors.New("storage: key is required")

// KV is the durable key-value contract consumed by components that persist
// local state. Implementations must treat missing keys as (value="", ok=false)
// rather than errors.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
}

// MemoryStore is an in-memory KV used in tests and as a fallback when no
// durable path is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the stored value for key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrMissingKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

// Set stores value under key, replacing any previous value.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrMissingKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Clear removes key. Clearing an absent key is a no-op.
func (s *MemoryStore) Clear(_ context.Context, key string) error {
	if key == "" {
		return ErrMissingKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
