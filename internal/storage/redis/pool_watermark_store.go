package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"solana-pool-sniper/internal/storage"
)

// advanceLua sets KEYS[1] to ARGV[1] iff the stored value is absent or smaller.
// Returns 1 when the watermark moved.
const advanceLua = `
local current = redis.call('GET', KEYS[1])
if current == false or tonumber(current) < tonumber(ARGV[1]) then
    redis.call('SET', KEYS[1], ARGV[1])
    return 1
end
return 0
`

// PoolWatermarkStore implements storage.PoolWatermarkStore with an atomic
// compare-and-set script. Every sniper process sharing the Redis sees the same watermarks.
type PoolWatermarkStore struct {
	rdb       *redis.Client
	advanceSc *redis.Script
}

// Compile-time interface check.
var _ storage.PoolWatermarkStore = (*PoolWatermarkStore)(nil)

// NewPoolWatermarkStore creates a PoolWatermarkStore backed by c.
func NewPoolWatermarkStore(c *Client) *PoolWatermarkStore {
	return &PoolWatermarkStore{
		rdb:       c.Underlying(),
		advanceSc: redis.NewScript(advanceLua),
	}
}

func watermarkKey(mint string) string {
	return "watermark:" + mint
}

// Advance stores version for mint iff it is strictly greater than the current one.
func (s *PoolWatermarkStore) Advance(ctx context.Context, mint string, version uint32) (bool, error) {
	if mint == "" {
		return false, storage.ErrInvalidInput
	}
	moved, err := s.advanceSc.Run(ctx, s.rdb, []string{watermarkKey(mint)}, version).Int()
	if err != nil {
		return false, fmt.Errorf("redis: advance watermark %s: %w", mint, err)
	}
	return moved == 1, nil
}

// Get returns the current watermark. Returns ErrNotFound if none recorded.
func (s *PoolWatermarkStore) Get(ctx context.Context, mint string) (uint32, error) {
	raw, err := s.rdb.Get(ctx, watermarkKey(mint)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get watermark %s: %w", mint, err)
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("redis: parse watermark %s: %w", mint, err)
	}
	return uint32(v), nil
}
