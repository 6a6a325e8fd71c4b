package credential

import (
	"context"
	"strings"
	"sync"
)

// KeySource yields the API key used at call time.
type KeySource interface {
	APIKey() string
}

// KeyStore holds the process-wide active API key. Every session reads the
// same key. It is safe for concurrent use.
type KeyStore struct {
	mu  sync.RWMutex
	key string
}

// Compile-time check that KeyStore implements KeySource.
var _ KeySource = (*KeyStore)(nil)

// NewKeyStore creates a KeyStore seeded with key (may be empty).
func NewKeyStore(key string) *KeyStore {
	return &KeyStore{key: strings.TrimSpace(key)}
}

// APIKey returns the active key, or "" when none is set.
func (s *KeyStore) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// Set replaces the active key.
func (s *KeyStore) Set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = strings.TrimSpace(key)
}

// IsUsable reports whether a key is set.
func (s *KeyStore) IsUsable(_ context.Context) (bool, error) {
	return s.APIKey() != "", nil
}
