package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// Each Atomically call is one database transaction.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// Atomically runs fn in a transaction and commits when it returns nil.
func (s *LedgerStore) Atomically(ctx context.Context, fn func(tx storage.LedgerTx) error) (err error) {
	start := time.Now()
	defer func() { observe("ledger_tx", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const positionColumns = `user_id, token, quantity::text, average_price::text, last_updated`

// GetPosition returns a committed position. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetPosition(ctx context.Context, userID, token string) (*domain.PortfolioPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM portfolio_positions WHERE user_id = $1 AND token = $2`

	start := time.Now()
	p, err := scanPosition(s.pool.QueryRow(ctx, query, userID, token))
	observe("get_position", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// ListPositions returns all positions for a user, ordered by token.
func (s *LedgerStore) ListPositions(ctx context.Context, userID string) ([]*domain.PortfolioPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM portfolio_positions WHERE user_id = $1 ORDER BY token ASC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var result []*domain.PortfolioPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return result, nil
}

// History returns log entries for (user, token), ordered by sequence ASC.
func (s *LedgerStore) History(ctx context.Context, userID, token string) ([]*domain.TransactionLogEntry, error) {
	query := `
		SELECT entry_id, user_id, token, side, amount::text, executed_price::text,
		       signature, COALESCE(request_id, ''), sequence, recorded_at
		FROM transaction_log
		WHERE user_id = $1 AND token = $2
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, userID, token)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransactionLogEntry
	for rows.Next() {
		var (
			e             domain.TransactionLogEntry
			side          string
			amount, price string
		)
		if err := rows.Scan(&e.EntryID, &e.UserID, &e.Token, &side, &amount, &price,
			&e.Signature, &e.RequestID, &e.Sequence, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Side = domain.Side(side)
		if e.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		if e.ExecutedPrice, err = parseDecimal("executed_price", price); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return result, nil
}

// ledgerTx is the LedgerTx view of one pgx transaction.
type ledgerTx struct {
	tx pgx.Tx
}

// GetPosition takes a transaction-scoped advisory lock on (user, token) before
// reading, so a first write for a pair serializes across processes even
// though there is no row yet for FOR UPDATE to lock.
func (t *ledgerTx) GetPosition(ctx context.Context, userID, token string) (*domain.PortfolioPosition, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '|' || $2))`, userID, token); err != nil {
		return nil, fmt.Errorf("lock position: %w", err)
	}

	query := `SELECT ` + positionColumns + ` FROM portfolio_positions WHERE user_id = $1 AND token = $2 FOR UPDATE`
	p, err := scanPosition(t.tx.QueryRow(ctx, query, userID, token))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (t *ledgerTx) UpsertPosition(ctx context.Context, p *domain.PortfolioPosition) error {
	query := `
		INSERT INTO portfolio_positions (user_id, token, quantity, average_price, last_updated)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		ON CONFLICT (user_id, token) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			last_updated = EXCLUDED.last_updated
	`
	_, err := t.tx.Exec(ctx, query, p.UserID, p.Token, p.Quantity.String(), p.AveragePrice.String(), p.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (t *ledgerTx) LastSequence(ctx context.Context, userID, token string) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM transaction_log WHERE user_id = $1 AND token = $2`,
		userID, token,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last sequence: %w", err)
	}
	return seq, nil
}

func (t *ledgerTx) AppendLog(ctx context.Context, e *domain.TransactionLogEntry) error {
	query := `
		INSERT INTO transaction_log (
			entry_id, user_id, token, side, amount, executed_price,
			signature, request_id, sequence, recorded_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, NULLIF($8, ''), $9, $10)
	`
	_, err := t.tx.Exec(ctx, query,
		e.EntryID, e.UserID, e.Token, string(e.Side), e.Amount.String(), e.ExecutedPrice.String(),
		e.Signature, e.RequestID, e.Sequence, e.RecordedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func scanPosition(row pgx.Row) (*domain.PortfolioPosition, error) {
	var (
		p             domain.PortfolioPosition
		quantity, avg string
	)
	if err := row.Scan(&p.UserID, &p.Token, &quantity, &avg, &p.LastUpdated); err != nil {
		return nil, err
	}
	var err error
	if p.Quantity, err = parseDecimal("quantity", quantity); err != nil {
		return nil, err
	}
	if p.AveragePrice, err = parseDecimal("average_price", avg); err != nil {
		return nil, err
	}
	return &p, nil
}
