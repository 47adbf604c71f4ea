package domain

import "time"

// PoolAccountEvent is a raw account-change notification for a liquidity pool.
type PoolAccountEvent struct {
	AccountID           string    // pool account address (base58)
	Payload             []byte    // raw account data
	ObservedAtSlot      int64     // slot from notification context
	ObservedAtWallClock time.Time // local receive time
}

// PoolState is the decoded state of a pool account.
// Versioned per TokenMint by LastUpdateTime.
type PoolState struct {
	TokenMint        string // base58, guaranteed on-curve by the decoder
	BaseTokenAmount  uint64 // raw units
	QuoteTokenAmount uint64 // raw units
	LPSupply         uint64
	LastUpdateTime   uint32 // unix seconds
}

// MarketMetrics are on-chain facts about a token used for admission.
type MarketMetrics struct {
	HoldersCount           uint32
	TotalLiquidityLamports uint64
	TokenDecimals          uint8
}
