package storage

import (
	"context"
	"time"

	"solana-pool-sniper/internal/domain"
)

// LedgerStore persists portfolio positions and the transaction log.
type LedgerStore interface {
	// Atomically runs fn in one unit of work. Every write made through tx is
	// committed together when fn returns nil, and none are when it returns an error.
	Atomically(ctx context.Context, fn func(tx LedgerTx) error) error

	// GetPosition returns a committed position. Returns ErrNotFound if not exists.
	GetPosition(ctx context.Context, userID, token string) (*domain.PortfolioPosition, error)

	// ListPositions returns all positions for a user, ordered by token.
	ListPositions(ctx context.Context, userID string) ([]*domain.PortfolioPosition, error)

	// History returns log entries for (user, token), ordered by Sequence ASC.
	History(ctx context.Context, userID, token string) ([]*domain.TransactionLogEntry, error)
}

// LedgerTx is the view of the ledger inside Atomically.
// Reads observe writes made earlier in the same unit.
type LedgerTx interface {
	// GetPosition returns the position, locking it for the rest of the unit.
	// Returns ErrNotFound if not exists.
	GetPosition(ctx context.Context, userID, token string) (*domain.PortfolioPosition, error)

	// UpsertPosition creates or replaces the position.
	UpsertPosition(ctx context.Context, p *domain.PortfolioPosition) error

	// LastSequence returns the highest log Sequence for (user, token), 0 if none.
	LastSequence(ctx context.Context, userID, token string) (int64, error)

	// AppendLog adds an entry. Returns ErrDuplicateKey if EntryID or RequestID exists.
	AppendLog(ctx context.Context, e *domain.TransactionLogEntry) error
}

// WalletStore is the keyed registry of user wallets.
type WalletStore interface {
	// Insert adds a wallet. Returns ErrDuplicateKey if the user already has one.
	Insert(ctx context.Context, w *domain.Wallet) error

	// GetByUser returns the user's wallet. Returns ErrNotFound if not exists.
	GetByUser(ctx context.Context, userID string) (*domain.Wallet, error)

	// List returns all wallets ordered by user ID.
	List(ctx context.Context) ([]*domain.Wallet, error)
}

// AuditStore is the append-only trail of verdicts and execution results.
type AuditStore interface {
	// InsertVerdict appends a verdict record.
	InsertVerdict(ctx context.Context, r *domain.VerdictRecord) error

	// InsertExecution appends an execution record.
	// Returns ErrDuplicateKey if a record for the same RequestID and Outcome exists.
	InsertExecution(ctx context.Context, r *domain.ExecutionRecord) error

	// GetVerdictsByMint returns verdicts for a mint ordered by RecordedAt ASC.
	GetVerdictsByMint(ctx context.Context, mint string) ([]*domain.VerdictRecord, error)

	// GetExecutionsByMint returns execution records for a mint ordered by RecordedAt ASC.
	GetExecutionsByMint(ctx context.Context, mint string) ([]*domain.ExecutionRecord, error)
}

// LockStore provides expiring exclusive locks keyed by string.
type LockStore interface {
	// Acquire takes the lock for ttl and returns an owner token.
	// Returns ErrLockHeld if another owner holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Release frees the lock if token still owns it.
	Release(ctx context.Context, key, token string) error
}
