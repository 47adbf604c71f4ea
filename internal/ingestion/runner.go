package ingestion

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/observability"
)

// ErrSourceClosed is returned by Run when the event source ends before ctx.
var ErrSourceClosed = errors.New("pool event source closed")

// Runner reads pool events and dispatches each to the handler on its own
// goroutine. At most Concurrency handlers run at once; an event that cannot
// get a slot within DispatchTimeout is dropped.
type Runner struct {
	source          PoolEventSource
	handler         Handler
	sem             *semaphore.Weighted
	dispatchTimeout time.Duration
	eventTimeout    time.Duration
	logger          *log.Logger

	wg sync.WaitGroup
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source          PoolEventSource
	Handler         Handler
	Concurrency     int           // Default: 16
	DispatchTimeout time.Duration // Default: 2s - max wait for a free handler slot
	EventTimeout    time.Duration // Default: 2m - per-event processing deadline
	Logger          *log.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 2 * time.Second
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Runner{
		source:          opts.Source,
		handler:         opts.Handler,
		sem:             semaphore.NewWeighted(int64(opts.Concurrency)),
		dispatchTimeout: opts.DispatchTimeout,
		eventTimeout:    opts.EventTimeout,
		logger:          opts.Logger,
	}
}

// Run consumes events until ctx is cancelled or the source closes.
// In-flight handlers are waited for before returning.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Println("Starting ingestion runner...")

	events, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	defer r.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Runner stopping...")
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Println("Pool events channel closed")
				return ErrSourceClosed
			}
			observability.RecordEventReceived(event.ObservedAtSlot)
			r.dispatch(ctx, event)
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, event *domain.PoolAccountEvent) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
	err := r.sem.Acquire(acquireCtx, 1)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Printf("[runner] DROP: no handler slot for %s (slot=%d) within %s", event.AccountID, event.ObservedAtSlot, r.dispatchTimeout)
			observability.RecordEventDropped("backpressure")
		}
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)

		hctx, cancel := context.WithTimeout(ctx, r.eventTimeout)
		defer cancel()
		r.handler.Handle(hctx, event)
	}()
}
