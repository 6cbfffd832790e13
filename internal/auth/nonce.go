package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
)

// MemoryNonceStore is the in-process nonce cache used when Redis is not
// configured. Entries expire lazily when taken.
type MemoryNonceStore struct {
	mu      sync.Mutex
	entries map[string]nonceEntry
}

type nonceEntry struct {
	nonce     string
	expiresAt time.Time
}

var _ domain.NonceCache = (*MemoryNonceStore)(nil)

// NewMemoryNonceStore returns an empty in-process nonce cache.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{entries: make(map[string]nonceEntry)}
}

// Put stores the nonce for address, replacing any pending one.
func (s *MemoryNonceStore) Put(_ context.Context, address, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[strings.ToLower(address)] = nonceEntry{
		nonce:     nonce,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Take removes and returns the pending nonce for address. A nonce can be
// taken once; expired or absent entries report ErrNonceNotFound.
func (s *MemoryNonceStore) Take(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(address)
	entry, ok := s.entries[key]
	if !ok {
		return "", domain.ErrNonceNotFound
	}
	delete(s.entries, key)
	if time.Now().After(entry.expiresAt) {
		return "", domain.ErrNonceNotFound
	}
	return entry.nonce, nil
}
