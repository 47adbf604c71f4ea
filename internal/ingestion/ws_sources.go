package ingestion

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/observability"
	"solana-pool-sniper/internal/solana"
)

// WSPoolEventSource provides real-time pool account changes via programSubscribe.
type WSPoolEventSource struct {
	ws         solana.WSClient
	programID  string
	filters    []solana.AccountFilter
	commitment string
	bufferSize int
	now        func() time.Time
	logger     *log.Logger
}

// WSPoolSourceOptions configures WSPoolEventSource.
type WSPoolSourceOptions struct {
	ProgramID  string
	Filters    []solana.AccountFilter
	Commitment string
	BufferSize int // default 256
	Now        func() time.Time
	Logger     *log.Logger
}

// NewWSPoolEventSource creates a WebSocket-backed pool event source.
func NewWSPoolEventSource(ws solana.WSClient, opts WSPoolSourceOptions) *WSPoolEventSource {
	if opts.ProgramID == "" {
		opts.ProgramID = solana.RaydiumAMMProgramID
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &WSPoolEventSource{
		ws:         ws,
		programID:  opts.ProgramID,
		filters:    opts.Filters,
		commitment: opts.Commitment,
		bufferSize: opts.BufferSize,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// Subscribe returns a channel of pool events from the live subscription.
// The channel is closed when the context is cancelled or the subscription ends.
func (s *WSPoolEventSource) Subscribe(ctx context.Context) (<-chan *domain.PoolAccountEvent, error) {
	notifs, err := s.ws.SubscribeProgram(ctx, solana.ProgramFilter{
		ProgramID:  s.programID,
		Filters:    s.filters,
		Commitment: s.commitment,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("[ws-pool] Subscribed to program: %s", s.programID)

	eventsCh := make(chan *domain.PoolAccountEvent, s.bufferSize)

	go func() {
		defer close(eventsCh)
		for {
			select {
			case <-ctx.Done():
				return
			case notif, ok := <-notifs:
				if !ok {
					s.logger.Println("[ws-pool] notification channel closed")
					return
				}
				event, ok := s.toEvent(notif)
				if !ok {
					continue
				}
				select {
				case eventsCh <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventsCh, nil
}

func (s *WSPoolEventSource) toEvent(n solana.AccountNotification) (*domain.PoolAccountEvent, bool) {
	payload, err := base64.StdEncoding.DecodeString(n.Account.Data)
	if err != nil {
		s.logger.Printf("[ws-pool] SKIP: bad account data for %s at slot %d: %v", n.Pubkey, n.Slot, err)
		observability.RecordEventDropped("bad_encoding")
		return nil, false
	}
	return &domain.PoolAccountEvent{
		AccountID:           n.Pubkey,
		Payload:             payload,
		ObservedAtSlot:      n.Slot,
		ObservedAtWallClock: s.now(),
	}, true
}
