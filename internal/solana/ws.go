package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeProgram subscribes to account changes for accounts owned by a program.
	SubscribeProgram(ctx context.Context, filter ProgramFilter) (<-chan AccountNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// ProgramFilter defines subscription filter for programSubscribe.
type ProgramFilter struct {
	// ProgramID is the owning program.
	ProgramID string
	// Filters narrows the subscription (dataSize, memcmp).
	Filters []AccountFilter
	// Commitment defaults to "confirmed".
	Commitment string
}

// AccountNotification represents a programNotification message.
type AccountNotification struct {
	Pubkey  string
	Slot    int64
	Account AccountInfo
}
