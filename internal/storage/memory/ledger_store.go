package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
// Writes made inside Atomically are staged and applied only when fn succeeds.
type LedgerStore struct {
	mu         sync.RWMutex
	positions  map[string]*domain.PortfolioPosition     // keyed by user|token
	logs       map[string][]*domain.TransactionLogEntry // keyed by user|token
	entryIDs   map[string]struct{}
	requestIDs map[string]struct{}

	// FailAppend, when set, is returned by every AppendLog.
	FailAppend error
	// FailUpsert, when set, is returned by every UpsertPosition.
	FailUpsert error
}

var _ storage.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		positions:  make(map[string]*domain.PortfolioPosition),
		logs:       make(map[string][]*domain.TransactionLogEntry),
		entryIDs:   make(map[string]struct{}),
		requestIDs: make(map[string]struct{}),
	}
}

func ledgerKey(userID, token string) string {
	return userID + "|" + token
}

// Atomically runs fn against a staging transaction and commits on success.
func (s *LedgerStore) Atomically(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	tx := &ledgerTx{
		store:     s,
		positions: make(map[string]*domain.PortfolioPosition),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *LedgerStore) commit(tx *ledgerTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check uniqueness against anything committed since staging.
	for _, e := range tx.entries {
		if _, ok := s.entryIDs[e.EntryID]; ok {
			return storage.ErrDuplicateKey
		}
		if e.RequestID != "" {
			if _, ok := s.requestIDs[e.RequestID]; ok {
				return storage.ErrDuplicateKey
			}
		}
	}

	for key, p := range tx.positions {
		cp := *p
		s.positions[key] = &cp
	}
	for _, e := range tx.entries {
		cp := *e
		key := ledgerKey(e.UserID, e.Token)
		s.logs[key] = append(s.logs[key], &cp)
		s.entryIDs[e.EntryID] = struct{}{}
		if e.RequestID != "" {
			s.requestIDs[e.RequestID] = struct{}{}
		}
	}
	return nil
}

// GetPosition returns a committed position.
func (s *LedgerStore) GetPosition(_ context.Context, userID, token string) (*domain.PortfolioPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[ledgerKey(userID, token)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPositions returns all committed positions for a user, ordered by token.
func (s *LedgerStore) ListPositions(_ context.Context, userID string) ([]*domain.PortfolioPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PortfolioPosition
	for _, p := range s.positions {
		if p.UserID == userID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Token < result[j].Token })
	return result, nil
}

// History returns committed log entries for (user, token) in sequence order.
func (s *LedgerStore) History(_ context.Context, userID, token string) ([]*domain.TransactionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.logs[ledgerKey(userID, token)]
	result := make([]*domain.TransactionLogEntry, len(entries))
	for i, e := range entries {
		cp := *e
		result[i] = &cp
	}
	return result, nil
}

// ledgerTx stages writes for one Atomically call.
type ledgerTx struct {
	store     *LedgerStore
	positions map[string]*domain.PortfolioPosition
	entries   []*domain.TransactionLogEntry
}

func (tx *ledgerTx) GetPosition(ctx context.Context, userID, token string) (*domain.PortfolioPosition, error) {
	if p, ok := tx.positions[ledgerKey(userID, token)]; ok {
		cp := *p
		return &cp, nil
	}
	return tx.store.GetPosition(ctx, userID, token)
}

func (tx *ledgerTx) UpsertPosition(_ context.Context, p *domain.PortfolioPosition) error {
	if p == nil || p.UserID == "" || p.Token == "" {
		return storage.ErrInvalidInput
	}
	if tx.store.FailUpsert != nil {
		return tx.store.FailUpsert
	}
	cp := *p
	tx.positions[ledgerKey(p.UserID, p.Token)] = &cp
	return nil
}

func (tx *ledgerTx) LastSequence(_ context.Context, userID, token string) (int64, error) {
	var last int64
	for _, e := range tx.entries {
		if e.UserID == userID && e.Token == token && e.Sequence > last {
			last = e.Sequence
		}
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, e := range tx.store.logs[ledgerKey(userID, token)] {
		if e.Sequence > last {
			last = e.Sequence
		}
	}
	return last, nil
}

func (tx *ledgerTx) AppendLog(_ context.Context, e *domain.TransactionLogEntry) error {
	if e == nil || e.EntryID == "" {
		return storage.ErrInvalidInput
	}
	if tx.store.FailAppend != nil {
		return tx.store.FailAppend
	}

	for _, staged := range tx.entries {
		if staged.EntryID == e.EntryID || (e.RequestID != "" && staged.RequestID == e.RequestID) {
			return storage.ErrDuplicateKey
		}
	}

	tx.store.mu.RLock()
	_, dupEntry := tx.store.entryIDs[e.EntryID]
	_, dupRequest := tx.store.requestIDs[e.RequestID]
	tx.store.mu.RUnlock()
	if dupEntry || (e.RequestID != "" && dupRequest) {
		return storage.ErrDuplicateKey
	}

	cp := *e
	tx.entries = append(tx.entries, &cp)
	return nil
}
