package ingestion

import (
	"context"

	"solana-pool-sniper/internal/domain"
)

// PoolEventSource streams raw pool account notifications.
type PoolEventSource interface {
	// Subscribe returns a channel of events. It is closed when ctx is done or the feed ends.
	Subscribe(ctx context.Context) (<-chan *domain.PoolAccountEvent, error)
}

// Handler processes one pool event.
type Handler interface {
	Handle(ctx context.Context, event *domain.PoolAccountEvent)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event *domain.PoolAccountEvent)

func (f HandlerFunc) Handle(ctx context.Context, event *domain.PoolAccountEvent) {
	f(ctx, event)
}
