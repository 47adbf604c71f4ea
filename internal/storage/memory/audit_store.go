package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/storage"
)

// AuditStore is an in-memory implementation of storage.AuditStore.
type AuditStore struct {
	mu         sync.RWMutex
	verdicts   []*domain.VerdictRecord
	executions []*domain.ExecutionRecord
	execKeys   map[string]struct{} // request_id|outcome
}

var _ storage.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{
		execKeys: make(map[string]struct{}),
	}
}

// InsertVerdict appends a verdict record.
func (s *AuditStore) InsertVerdict(_ context.Context, r *domain.VerdictRecord) error {
	if r == nil || r.Verdict.TokenMint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.Verdict.Reasons = append([]domain.ReasonCode(nil), r.Verdict.Reasons...)
	s.verdicts = append(s.verdicts, &cp)
	return nil
}

// InsertExecution appends an execution record.
func (s *AuditStore) InsertExecution(_ context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.Result.RequestID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Result.RequestID + "|" + string(r.Result.Outcome)
	if _, exists := s.execKeys[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.execKeys[key] = struct{}{}

	cp := *r
	s.executions = append(s.executions, &cp)
	return nil
}

// GetVerdictsByMint returns verdicts for a mint ordered by RecordedAt ASC.
func (s *AuditStore) GetVerdictsByMint(_ context.Context, mint string) ([]*domain.VerdictRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VerdictRecord
	for _, r := range s.verdicts {
		if r.Verdict.TokenMint == mint {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].RecordedAt.Before(result[j].RecordedAt) })
	return result, nil
}

// GetExecutionsByMint returns execution records for a mint ordered by RecordedAt ASC.
func (s *AuditStore) GetExecutionsByMint(_ context.Context, mint string) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionRecord
	for _, r := range s.executions {
		if r.Result.TokenMint == mint {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].RecordedAt.Before(result[j].RecordedAt) })
	return result, nil
}
