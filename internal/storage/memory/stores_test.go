package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/storage"
)

func TestPoolWatermarkStore_Advance(t *testing.T) {
	store := NewPoolWatermarkStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "mint"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	steps := []struct {
		version uint32
		want    bool
	}{
		{100, true},
		{100, false},
		{99, false},
		{101, true},
	}
	for _, s := range steps {
		got, err := store.Advance(ctx, "mint", s.version)
		if err != nil {
			t.Fatalf("Advance(%d): %v", s.version, err)
		}
		if got != s.want {
			t.Errorf("Advance(%d) = %v, want %v", s.version, got, s.want)
		}
	}

	v, _ := store.Get(ctx, "mint")
	if v != 101 {
		t.Errorf("expected watermark 101, got %d", v)
	}
}

func TestPoolWatermarkStore_ConcurrentSingleWinner(t *testing.T) {
	store := NewPoolWatermarkStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := store.Advance(ctx, "mint", 7)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

func TestWalletStore_InsertAndGet(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	w := &domain.Wallet{UserID: "u1", PublicKey: "pk1", CreatedAt: time.Now()}
	if err := store.Insert(ctx, w); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, w); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if got.PublicKey != "pk1" {
		t.Errorf("PublicKey mismatch: %s", got.PublicKey)
	}

	if _, err := store.GetByUser(ctx, "u2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditStore_ExecutionDedup(t *testing.T) {
	store := NewAuditStore()
	ctx := context.Background()

	rec := &domain.ExecutionRecord{
		Result: domain.TradeExecutionResult{RequestID: "r1", TokenMint: "m", Outcome: domain.OutcomeConfirmed},
	}
	if err := store.InsertExecution(ctx, rec); err != nil {
		t.Fatalf("InsertExecution failed: %v", err)
	}
	if err := store.InsertExecution(ctx, rec); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetExecutionsByMint(ctx, "m")
	if len(got) != 1 {
		t.Errorf("expected 1 execution, got %d", len(got))
	}
}

func TestLockStore_AcquireRelease(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	token, err := store.Acquire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := store.Acquire(ctx, "k", time.Minute); !errors.Is(err, storage.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	// wrong token does not release
	_ = store.Release(ctx, "k", "not-the-owner")
	if _, err := store.Acquire(ctx, "k", time.Minute); !errors.Is(err, storage.ErrLockHeld) {
		t.Fatalf("expected lock still held, got %v", err)
	}

	_ = store.Release(ctx, "k", token)
	if _, err := store.Acquire(ctx, "k", time.Minute); err != nil {
		t.Errorf("expected acquire after release, got %v", err)
	}
}

func TestLockStore_ExpiredLockTakenOver(t *testing.T) {
	store := NewLockStore()
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := store.Acquire(ctx, "k", time.Second); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := store.Acquire(ctx, "k", time.Second); err != nil {
		t.Errorf("expected expired lock to be taken over, got %v", err)
	}
}
