package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioPosition is a user's holding of one token.
// Quantity and AveragePrice are never negative.
type PortfolioPosition struct {
	UserID       string
	Token        string
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
	LastUpdated  time.Time
}

// TransactionLogEntry is an immutable record of one settled trade.
type TransactionLogEntry struct {
	EntryID       string
	UserID        string
	Token         string
	Side          Side
	Amount        decimal.Decimal
	ExecutedPrice decimal.Decimal
	Signature     string
	RequestID     string
	Sequence      int64 // per (user, token), 1-based, write order
	RecordedAt    time.Time
}

// LedgerReceipt is returned by a successful ledger write.
type LedgerReceipt struct {
	Entry    TransactionLogEntry
	Position PortfolioPosition
}
