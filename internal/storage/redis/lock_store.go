package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"solana-pool-sniper/internal/storage"
)

// unlockLua deletes a lock key only if it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockStore implements storage.LockStore with SET NX PX and a token-checked unlock.
type LockStore struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// Compile-time interface check.
var _ storage.LockStore = (*LockStore)(nil)

// NewLockStore creates a LockStore backed by c.
func NewLockStore(c *Client) *LockStore {
	return &LockStore{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire takes the lock for ttl. Returns storage.ErrLockHeld if another owner holds it.
func (s *LockStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidInput
	}
	token := uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", storage.ErrLockHeld
	}
	return token, nil
}

// Release frees the lock if token still owns it. Releasing a lock that
// expired or changed hands is a no-op.
func (s *LockStore) Release(ctx context.Context, key, token string) error {
	if err := s.unlockSc.Run(ctx, s.rdb, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("redis: release lock %s: %w", key, err)
	}
	return nil
}
