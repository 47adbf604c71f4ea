package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Insert adds a wallet. Returns ErrDuplicateKey if the user or key is already registered.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) error {
	if w == nil || w.UserID == "" || w.PublicKey == "" {
		return storage.ErrInvalidInput
	}
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (user_id, public_key, label, created_at) VALUES ($1, $2, $3, $4)`,
		w.UserID, w.PublicKey, w.Label, createdAt,
	)
	observe("insert_wallet", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUser returns the user's wallet. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByUser(ctx context.Context, userID string) (*domain.Wallet, error) {
	var w domain.Wallet
	start := time.Now()
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, public_key, label, created_at FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&w.UserID, &w.PublicKey, &w.Label, &w.CreatedAt)
	observe("get_wallet", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

// List returns all wallets ordered by user ID.
func (s *WalletStore) List(ctx context.Context) ([]*domain.Wallet, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, public_key, label, created_at FROM wallets ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var result []*domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.UserID, &w.PublicKey, &w.Label, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		result = append(result, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return result, nil
}
