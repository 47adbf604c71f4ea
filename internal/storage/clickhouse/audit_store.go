package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/storage"
)

// AuditStore implements storage.AuditStore using ClickHouse.
type AuditStore struct {
	conn *Conn
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(conn *Conn) *AuditStore {
	return &AuditStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AuditStore = (*AuditStore)(nil)

// InsertVerdict appends a verdict record. Per-criterion detail is not persisted.
func (s *AuditStore) InsertVerdict(ctx context.Context, r *domain.VerdictRecord) error {
	if r == nil || r.Verdict.TokenMint == "" {
		return storage.ErrInvalidInput
	}

	reasons := make([]string, len(r.Verdict.Reasons))
	for i, reason := range r.Verdict.Reasons {
		reasons[i] = string(reason)
	}

	query := `
		INSERT INTO verdicts (
			verdict_id, token_mint, pool_account, observed_at_slot, last_update_time,
			decision, reasons, holders_count, liquidity_lamports, token_decimals,
			evaluated_at, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	start := time.Now()
	err := s.conn.Exec(ctx, query,
		r.VerdictID, r.Verdict.TokenMint, r.PoolAccount, r.ObservedAtSlot, r.Verdict.LastUpdateTime,
		string(r.Verdict.Decision), reasons,
		r.Verdict.Metrics.HoldersCount, r.Verdict.Metrics.TotalLiquidityLamports, r.Verdict.Metrics.TokenDecimals,
		r.Verdict.EvaluatedAt, r.RecordedAt,
	)
	observe("insert_verdict", start, err)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// InsertExecution appends an execution record.
// Returns ErrDuplicateKey if a record for the same RequestID and Outcome exists.
func (s *AuditStore) InsertExecution(ctx context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.Result.RequestID == "" {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would collapse the row later; the audit trail wants a rejection now.
	exists, err := s.executionExists(ctx, r.Result.TokenMint, r.Result.RequestID, r.Result.Outcome)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO executions (
			request_id, user_id, token_mint, side, outcome, failure_kind,
			detail, signature, executed_price, amount, attempts, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res := r.Result
	start := time.Now()
	err = s.conn.Exec(ctx, query,
		res.RequestID, r.UserID, res.TokenMint, string(res.Side), string(res.Outcome), string(res.FailureKind),
		res.Detail, res.Signature, res.ExecutedPrice, res.Amount, uint32(res.Attempts), r.RecordedAt,
	)
	observe("insert_execution", start, err)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (s *AuditStore) executionExists(ctx context.Context, mint, requestID string, outcome domain.Outcome) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count() FROM executions WHERE token_mint = ? AND request_id = ? AND outcome = ?`,
		mint, requestID, string(outcome),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetVerdictsByMint returns verdicts for a mint ordered by RecordedAt ASC.
func (s *AuditStore) GetVerdictsByMint(ctx context.Context, mint string) ([]*domain.VerdictRecord, error) {
	query := `
		SELECT verdict_id, token_mint, pool_account, observed_at_slot, last_update_time,
		       decision, reasons, holders_count, liquidity_lamports, token_decimals,
		       evaluated_at, recorded_at
		FROM verdicts FINAL
		WHERE token_mint = ?
		ORDER BY recorded_at ASC, verdict_id ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, mint)
	observe("get_verdicts", start, err)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	var result []*domain.VerdictRecord
	for rows.Next() {
		var (
			r        domain.VerdictRecord
			decision string
			reasons  []string
		)
		if err := rows.Scan(
			&r.VerdictID, &r.Verdict.TokenMint, &r.PoolAccount, &r.ObservedAtSlot, &r.Verdict.LastUpdateTime,
			&decision, &reasons,
			&r.Verdict.Metrics.HoldersCount, &r.Verdict.Metrics.TotalLiquidityLamports, &r.Verdict.Metrics.TokenDecimals,
			&r.Verdict.EvaluatedAt, &r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		r.Verdict.Decision = domain.Decision(decision)
		for _, reason := range reasons {
			r.Verdict.Reasons = append(r.Verdict.Reasons, domain.ReasonCode(reason))
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return result, nil
}

// GetExecutionsByMint returns execution records for a mint ordered by RecordedAt ASC.
func (s *AuditStore) GetExecutionsByMint(ctx context.Context, mint string) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT request_id, user_id, token_mint, side, outcome, failure_kind,
		       detail, signature, executed_price, amount, attempts, recorded_at
		FROM executions FINAL
		WHERE token_mint = ?
		ORDER BY recorded_at ASC, request_id ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, mint)
	observe("get_executions", start, err)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var result []*domain.ExecutionRecord
	for rows.Next() {
		var (
			r                          domain.ExecutionRecord
			side, outcome, failureKind string
			attempts                   uint32
		)
		if err := rows.Scan(
			&r.Result.RequestID, &r.UserID, &r.Result.TokenMint, &side, &outcome, &failureKind,
			&r.Result.Detail, &r.Result.Signature, &r.Result.ExecutedPrice, &r.Result.Amount, &attempts, &r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		r.Result.Side = domain.Side(side)
		r.Result.Outcome = domain.Outcome(outcome)
		r.Result.FailureKind = domain.FailureKind(failureKind)
		r.Result.Attempts = int(attempts)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return result, nil
}
