package decision

import "time"

// Default admission thresholds.
const (
	DefaultMinHolders          = 10
	DefaultMinimumLiquiditySOL = 10
	DefaultMaxTokenDecimals    = 9
	DefaultNewPoolWindow       = time.Hour
)

// lamportsPerSOL mirrors solana.LamportsPerSOL without importing the client package.
const lamportsPerSOL = 1_000_000_000

// Policy holds the admission thresholds. Treat as immutable once built.
type Policy struct {
	MinHolders          uint32
	MinimumLiquiditySOL float64
	MaxTokenDecimals    uint8
	NewPoolWindow       time.Duration
}

// DefaultPolicy returns the default admission thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinHolders:          DefaultMinHolders,
		MinimumLiquiditySOL: DefaultMinimumLiquiditySOL,
		MaxTokenDecimals:    DefaultMaxTokenDecimals,
		NewPoolWindow:       DefaultNewPoolWindow,
	}
}

// MinimumLiquidityLamports is the liquidity threshold in lamports.
func (p Policy) MinimumLiquidityLamports() uint64 {
	return uint64(p.MinimumLiquiditySOL * lamportsPerSOL)
}
