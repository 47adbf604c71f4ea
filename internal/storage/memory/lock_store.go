package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"solana-pool-sniper/internal/storage"
)

// LockStore is an in-memory implementation of storage.LockStore.
type LockStore struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

type lockEntry struct {
	token   string
	expires time.Time
}

var _ storage.LockStore = (*LockStore)(nil)

// NewLockStore creates a new in-memory lock store.
func NewLockStore() *LockStore {
	return &LockStore{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

// Acquire takes the lock for ttl. Expired locks are taken over.
func (s *LockStore) Acquire(_ context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if held, ok := s.locks[key]; ok && now.Before(held.expires) {
		return "", storage.ErrLockHeld
	}

	token := uuid.NewString()
	s.locks[key] = lockEntry{token: token, expires: now.Add(ttl)}
	return token, nil
}

// Release frees the lock if token still owns it.
func (s *LockStore) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.locks[key]; ok && held.token == token {
		delete(s.locks, key)
	}
	return nil
}
