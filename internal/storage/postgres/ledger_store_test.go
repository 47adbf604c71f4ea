package postgres

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/ledger"
	"solana-pool-sniper/internal/storage"
)

func TestLedgerStore_AtomicallyCommitsAndReads(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := store.Atomically(ctx, func(tx storage.LedgerTx) error {
		_, err := tx.GetPosition(ctx, "user1", "MintA")
		require.ErrorIs(t, err, storage.ErrNotFound)

		seq, err := tx.LastSequence(ctx, "user1", "MintA")
		require.NoError(t, err)
		require.Equal(t, int64(0), seq)

		require.NoError(t, tx.UpsertPosition(ctx, &domain.PortfolioPosition{
			UserID:       "user1",
			Token:        "MintA",
			Quantity:     decimal.RequireFromString("10.5"),
			AveragePrice: decimal.RequireFromString("0.002"),
			LastUpdated:  now,
		}))
		return tx.AppendLog(ctx, &domain.TransactionLogEntry{
			EntryID:       "e1",
			UserID:        "user1",
			Token:         "MintA",
			Side:          domain.SideBuy,
			Amount:        decimal.RequireFromString("10.5"),
			ExecutedPrice: decimal.RequireFromString("0.002"),
			Signature:     "sig1",
			RequestID:     "req1",
			Sequence:      1,
			RecordedAt:    now,
		})
	})
	require.NoError(t, err)

	pos, err := store.GetPosition(ctx, "user1", "MintA")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(decimal.RequireFromString("10.5")), "quantity %s", pos.Quantity)
	assert.True(t, pos.AveragePrice.Equal(decimal.RequireFromString("0.002")), "avg %s", pos.AveragePrice)

	history, err := store.History(ctx, "user1", "MintA")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "req1", history[0].RequestID)
	assert.Equal(t, domain.SideBuy, history[0].Side)
	assert.Equal(t, int64(1), history[0].Sequence)
}

func TestLedgerStore_RollbackOnError(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerStore(pool)
	boom := errors.New("boom")

	err := store.Atomically(ctx, func(tx storage.LedgerTx) error {
		require.NoError(t, tx.UpsertPosition(ctx, &domain.PortfolioPosition{
			UserID:      "user1",
			Token:       "MintB",
			Quantity:    decimal.NewFromInt(5),
			LastUpdated: time.Now(),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetPosition(ctx, "user1", "MintB")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedgerStore_DuplicateRequestID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerStore(pool)

	appendEntry := func(entryID string, seq int64) error {
		return store.Atomically(ctx, func(tx storage.LedgerTx) error {
			return tx.AppendLog(ctx, &domain.TransactionLogEntry{
				EntryID:       entryID,
				UserID:        "user1",
				Token:         "MintC",
				Side:          domain.SideBuy,
				Amount:        decimal.NewFromInt(1),
				ExecutedPrice: decimal.NewFromInt(1),
				RequestID:     "same-request",
				Sequence:      seq,
				RecordedAt:    time.Now(),
			})
		})
	}

	require.NoError(t, appendEntry("e1", 1))
	assert.ErrorIs(t, appendEntry("e2", 2), storage.ErrDuplicateKey)
}

// TestLedgerStore_ConcurrentLedgersSerialize runs two ledgers, as two processes
// would, against one database and checks no write is lost.
func TestLedgerStore_ConcurrentLedgersSerialize(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)
	ledgers := []*ledger.Ledger{
		ledger.New(NewLedgerStore(pool), ledger.Options{Logger: logger}),
		ledger.New(NewLedgerStore(pool), ledger.Options{Logger: logger}),
	}

	const perLedger = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*perLedger)
	for _, l := range ledgers {
		for i := 0; i < perLedger; i++ {
			wg.Add(1)
			go func(l *ledger.Ledger) {
				defer wg.Done()
				_, err := l.Record(ctx, ledger.Entry{
					UserID:        "user1",
					Token:         "MintD",
					Side:          domain.SideBuy,
					Amount:        decimal.NewFromInt(1),
					ExecutedPrice: decimal.NewFromInt(2),
				})
				errs <- err
			}(l)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	pos, err := ledgers[0].Position(ctx, "user1", "MintD")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(2*perLedger)), "quantity %s", pos.Quantity)

	history, err := ledgers[0].History(ctx, "user1", "MintD")
	require.NoError(t, err)
	require.Len(t, history, 2*perLedger)
	for i, e := range history {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestLedgerStore_ListPositionsOrdered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerStore(pool)

	for _, token := range []string{"MintZ", "MintA", "MintM"} {
		token := token
		require.NoError(t, store.Atomically(ctx, func(tx storage.LedgerTx) error {
			return tx.UpsertPosition(ctx, &domain.PortfolioPosition{
				UserID:      "user1",
				Token:       token,
				Quantity:    decimal.NewFromInt(1),
				LastUpdated: time.Now(),
			})
		}))
	}

	positions, err := store.ListPositions(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, positions, 3)
	assert.Equal(t, "MintA", positions[0].Token)
	assert.Equal(t, "MintM", positions[1].Token)
	assert.Equal(t, "MintZ", positions[2].Token)
}
