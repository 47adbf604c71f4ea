package memory

import (
	"context"
	"sync"

	"solana-pool-sniper/internal/storage"
)

// PoolWatermarkStore is an in-memory implementation of storage.PoolWatermarkStore.
type PoolWatermarkStore struct {
	mu         sync.Mutex
	watermarks map[string]uint32
}

var _ storage.PoolWatermarkStore = (*PoolWatermarkStore)(nil)

// NewPoolWatermarkStore creates a new in-memory watermark store.
func NewPoolWatermarkStore() *PoolWatermarkStore {
	return &PoolWatermarkStore{
		watermarks: make(map[string]uint32),
	}
}

// Advance moves the mint's watermark to version if version is strictly newer.
func (s *PoolWatermarkStore) Advance(_ context.Context, mint string, version uint32) (bool, error) {
	if mint == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.watermarks[mint]; ok && version <= current {
		return false, nil
	}
	s.watermarks[mint] = version
	return true, nil
}

// Get returns the mint's watermark.
func (s *PoolWatermarkStore) Get(_ context.Context, mint string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.watermarks[mint]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return v, nil
}
