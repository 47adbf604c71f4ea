package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/storage"
)

// Ledger errors.
var (
	// ErrOversell is returned when a sell would take the position below zero.
	ErrOversell = errors.New("oversell")

	// ErrInvalidEntry is returned for non-positive amounts or negative prices.
	ErrInvalidEntry = errors.New("invalid ledger entry")

	// ErrPersistence wraps store failures.
	ErrPersistence = errors.New("ledger persistence failed")
)

// Entry is one settled trade to record.
type Entry struct {
	UserID        string
	Token         string
	Side          domain.Side
	Amount        decimal.Decimal
	ExecutedPrice decimal.Decimal
	Signature     string
	RequestID     string
}

// Options configures a Ledger.
type Options struct {
	Logger *log.Logger
	Now    func() time.Time
	NewID  func() string
}

// Ledger owns portfolio positions and the transaction log.
// Writes for one (user, token) are serialized; different keys proceed independently.
type Ledger struct {
	store  storage.LedgerStore
	locks  *keyedMutex
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a ledger over store.
func New(store storage.LedgerStore, opts Options) *Ledger {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Ledger{
		store:  store,
		locks:  newKeyedMutex(),
		logger: opts.Logger,
		now:    opts.Now,
		newID:  opts.NewID,
	}
}

// Record applies a settled trade to the position and appends it to the log as one unit.
//
// Buy:  avg' = (avg × qty + price × amount) / (qty + amount), qty' = qty + amount.
// Sell: qty' = qty − amount, avg unchanged; ErrOversell if qty' < 0.
func (l *Ledger) Record(ctx context.Context, e Entry) (domain.LedgerReceipt, error) {
	if err := validate(e); err != nil {
		return domain.LedgerReceipt{}, err
	}

	unlock := l.locks.Lock(e.UserID + "|" + e.Token)
	defer unlock()

	var receipt domain.LedgerReceipt
	err := l.store.Atomically(ctx, func(tx storage.LedgerTx) error {
		current, err := tx.GetPosition(ctx, e.UserID, e.Token)
		if errors.Is(err, storage.ErrNotFound) {
			current = &domain.PortfolioPosition{
				UserID:       e.UserID,
				Token:        e.Token,
				Quantity:     decimal.Zero,
				AveragePrice: decimal.Zero,
			}
		} else if err != nil {
			return fmt.Errorf("%w: get position: %v", ErrPersistence, err)
		}

		next, err := apply(*current, e)
		if err != nil {
			return err
		}
		now := l.now().UTC()
		next.LastUpdated = now

		seq, err := tx.LastSequence(ctx, e.UserID, e.Token)
		if err != nil {
			return fmt.Errorf("%w: last sequence: %v", ErrPersistence, err)
		}

		entry := domain.TransactionLogEntry{
			EntryID:       l.newID(),
			UserID:        e.UserID,
			Token:         e.Token,
			Side:          e.Side,
			Amount:        e.Amount,
			ExecutedPrice: e.ExecutedPrice,
			Signature:     e.Signature,
			RequestID:     e.RequestID,
			Sequence:      seq + 1,
			RecordedAt:    now,
		}

		if err := tx.UpsertPosition(ctx, &next); err != nil {
			return fmt.Errorf("%w: upsert position: %w", ErrPersistence, err)
		}
		if err := tx.AppendLog(ctx, &entry); err != nil {
			return fmt.Errorf("%w: append log: %w", ErrPersistence, err)
		}

		receipt = domain.LedgerReceipt{Entry: entry, Position: next}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOversell) {
			return domain.LedgerReceipt{}, err
		}
		l.logger.Printf("[ledger] record %s %s/%s failed: %v", e.Side, e.UserID, e.Token, err)
		if !errors.Is(err, ErrPersistence) {
			err = fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return domain.LedgerReceipt{}, err
	}

	return receipt, nil
}

func validate(e Entry) error {
	if e.UserID == "" || e.Token == "" {
		return fmt.Errorf("%w: user and token required", ErrInvalidEntry)
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: amount %s must be positive", ErrInvalidEntry, e.Amount)
	}
	if e.ExecutedPrice.IsNegative() {
		return fmt.Errorf("%w: price %s must not be negative", ErrInvalidEntry, e.ExecutedPrice)
	}
	if e.Side != domain.SideBuy && e.Side != domain.SideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidEntry, e.Side)
	}
	return nil
}

// apply computes the next position. It does not mutate current.
func apply(current domain.PortfolioPosition, e Entry) (domain.PortfolioPosition, error) {
	next := current
	switch e.Side {
	case domain.SideBuy:
		qty := current.Quantity.Add(e.Amount)
		cost := current.AveragePrice.Mul(current.Quantity).Add(e.ExecutedPrice.Mul(e.Amount))
		next.Quantity = qty
		next.AveragePrice = cost.Div(qty)
	case domain.SideSell:
		qty := current.Quantity.Sub(e.Amount)
		if qty.IsNegative() {
			return current, fmt.Errorf("%w: hold %s, selling %s", ErrOversell, current.Quantity, e.Amount)
		}
		next.Quantity = qty
	}
	return next, nil
}

// Position returns the committed position, or a zero position if none exists.
func (l *Ledger) Position(ctx context.Context, userID, token string) (domain.PortfolioPosition, error) {
	p, err := l.store.GetPosition(ctx, userID, token)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.PortfolioPosition{UserID: userID, Token: token}, nil
	}
	if err != nil {
		return domain.PortfolioPosition{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return *p, nil
}

// Positions returns all positions for a user.
func (l *Ledger) Positions(ctx context.Context, userID string) ([]*domain.PortfolioPosition, error) {
	return l.store.ListPositions(ctx, userID)
}

// History returns the log for (user, token) in write order.
func (l *Ledger) History(ctx context.Context, userID, token string) ([]*domain.TransactionLogEntry, error) {
	return l.store.History(ctx, userID, token)
}
