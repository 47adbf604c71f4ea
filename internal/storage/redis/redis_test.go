package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-pool-sniper/internal/storage"
)

// setupTestRedis starts a Redis container and returns a connected client.
func setupTestRedis(t *testing.T) (*Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, err)

	cleanup := func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	}
	return client, cleanup
}

func TestLockStore_ExclusiveUntilReleased(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	locks := NewLockStore(client)

	token, err := locks.Acquire(ctx, "flight:MintA", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = locks.Acquire(ctx, "flight:MintA", time.Minute)
	assert.ErrorIs(t, err, storage.ErrLockHeld)

	// A stale token must not free someone else's lock.
	require.NoError(t, locks.Release(ctx, "flight:MintA", "not-the-owner"))
	_, err = locks.Acquire(ctx, "flight:MintA", time.Minute)
	assert.ErrorIs(t, err, storage.ErrLockHeld)

	require.NoError(t, locks.Release(ctx, "flight:MintA", token))
	_, err = locks.Acquire(ctx, "flight:MintA", time.Minute)
	assert.NoError(t, err)
}

func TestLockStore_Expires(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	locks := NewLockStore(client)

	_, err := locks.Acquire(ctx, "flight:MintB", 50*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := locks.Acquire(ctx, "flight:MintB", time.Minute)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLockStore_OneWinnerUnderContention(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	locks := NewLockStore(client)

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locks.Acquire(ctx, "flight:MintC", time.Minute); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestPoolWatermarkStore_AdvanceIsMonotonic(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPoolWatermarkStore(client)

	_, err := store.Get(ctx, "MintA")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	steps := []struct {
		version uint32
		moved   bool
	}{
		{100, true},
		{100, false},
		{99, false},
		{101, true},
		{4_000_000_000, true},
	}
	for _, s := range steps {
		moved, err := store.Advance(ctx, "MintA", s.version)
		require.NoError(t, err)
		assert.Equal(t, s.moved, moved, "version %d", s.version)
	}

	got, err := store.Get(ctx, "MintA")
	require.NoError(t, err)
	assert.Equal(t, uint32(4_000_000_000), got)

	_, err = store.Advance(ctx, "", 1)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
