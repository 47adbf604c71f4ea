package storage

import "context"

// PoolWatermarkStore records, per token mint, the LastUpdateTime of the newest
// accepted pool state. It enables restarts without reprocessing pool versions.
type PoolWatermarkStore interface {
	// Advance stores version for mint iff it is strictly greater than the current one.
	// Returns true when the watermark moved. Must be atomic per mint.
	Advance(ctx context.Context, mint string, version uint32) (bool, error)

	// Get returns the current watermark. Returns ErrNotFound if none recorded.
	Get(ctx context.Context, mint string) (uint32, error)
}
