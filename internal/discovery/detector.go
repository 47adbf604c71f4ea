package discovery

import (
	"context"
	"sync"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/storage"
)

// PoolStateTracker admits pool states in strictly increasing LastUpdateTime
// order per mint. Redeliveries and out-of-order states are dropped.
type PoolStateTracker struct {
	store storage.PoolWatermarkStore

	mu   sync.Mutex
	seen map[string]uint32 // local cache of accepted watermarks
}

// NewPoolStateTracker creates a tracker backed by store.
func NewPoolStateTracker(store storage.PoolWatermarkStore) *PoolStateTracker {
	return &PoolStateTracker{
		store: store,
		seen:  make(map[string]uint32),
	}
}

// Accept reports whether state is newer than any previously accepted state for its mint.
// The store's compare-and-set decides; the cache only short-circuits known stale states.
func (t *PoolStateTracker) Accept(ctx context.Context, state domain.PoolState) (bool, error) {
	t.mu.Lock()
	last, ok := t.seen[state.TokenMint]
	t.mu.Unlock()
	if ok && state.LastUpdateTime <= last {
		return false, nil
	}

	advanced, err := t.store.Advance(ctx, state.TokenMint, state.LastUpdateTime)
	if err != nil {
		return false, err
	}
	if !advanced {
		return false, nil
	}

	t.mu.Lock()
	if state.LastUpdateTime > t.seen[state.TokenMint] {
		t.seen[state.TokenMint] = state.LastUpdateTime
	}
	t.mu.Unlock()
	return true, nil
}

// Reset clears the in-memory cache.
// Useful when the backing store is shared and may have moved on.
func (t *PoolStateTracker) Reset() {
	t.mu.Lock()
	t.seen = make(map[string]uint32)
	t.mu.Unlock()
}
