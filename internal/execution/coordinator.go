// Package execution turns admitted trade intents into settled, recorded trades.
//
// The Coordinator owns one Flight per token mint. A flight moves through
//
//	Idle → Evaluating → Admitted → Guarding → [AwaitingConfirmation] → Executing → {Confirmed, Failed} → Idle
//
// and at most one non-Idle flight exists per mint at a time.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/ledger"
	"solana-pool-sniper/internal/risk"
	"solana-pool-sniper/internal/solana"
	"solana-pool-sniper/internal/storage"
)

// Coordinator errors.
var (
	// ErrAlreadyInFlight is returned by Begin when the mint already has an active flight.
	ErrAlreadyInFlight = errors.New("trade already in flight for mint")

	// ErrInvalidTransition is returned when a flight is moved to a state not reachable from its current one.
	ErrInvalidTransition = errors.New("invalid flight transition")

	// ErrNoPendingConfirmation is returned by Confirm and Reject for unknown request IDs.
	ErrNoPendingConfirmation = errors.New("no trade awaiting confirmation")
)

// State is a flight's position in the execution lifecycle.
type State string

const (
	StateIdle                 State = "IDLE"
	StateEvaluating           State = "EVALUATING"
	StateAdmitted             State = "ADMITTED"
	StateGuarding             State = "GUARDING"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateExecuting            State = "EXECUTING"
	StateConfirmed            State = "CONFIRMED"
	StateFailed               State = "FAILED"
)

var transitions = map[State][]State{
	StateIdle:                 {StateEvaluating},
	StateEvaluating:           {StateAdmitted, StateIdle},
	StateAdmitted:             {StateGuarding, StateIdle},
	StateGuarding:             {StateAwaitingConfirmation, StateExecuting, StateFailed},
	StateAwaitingConfirmation: {StateExecuting, StateFailed},
	StateExecuting:            {StateConfirmed, StateFailed},
	StateConfirmed:            {StateIdle},
	StateFailed:               {StateIdle},
}

// CanTransition reports whether from → to is a valid move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BalanceReader reads wallet balances fresh from chain.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint string) (*solana.TokenAmount, error)
}

// PriceSource returns a validated price quote.
type PriceSource interface {
	Fetch(ctx context.Context, token string) (domain.PriceQuote, error)
}

// Recorder writes settled trades to the portfolio ledger.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) (domain.LedgerReceipt, error)
}

// Alerter is told about trades that settled but could not be recorded.
type Alerter interface {
	Reconcile(ctx context.Context, userID string, res domain.TradeExecutionResult, cause error) error
}

// Config holds the execution policy.
type Config struct {
	MaxRetries          int
	BackoffBase         time.Duration
	Timeout             time.Duration // total budget for backend attempts and backoff
	ReserveFloorSOL     float64
	ConfirmationTimeout time.Duration
	LockTTL             time.Duration // distributed flight lock lifetime
}

// DefaultConfig returns the default execution policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          3,
		BackoffBase:         500 * time.Millisecond,
		Timeout:             30 * time.Second,
		ReserveFloorSOL:     0.1,
		ConfirmationTimeout: 60 * time.Second,
		LockTTL:             2 * time.Minute,
	}
}

// Deps are the coordinator's collaborators.
type Deps struct {
	Backend  Backend
	Balances BalanceReader
	Prices   PriceSource
	Ledger   Recorder
	Wallets  storage.WalletStore
}

// Options configures optional coordinator behavior.
type Options struct {
	Logger *log.Logger
	// Locks, when set, extends the in-flight check across processes.
	Locks storage.LockStore
	Audit storage.AuditStore
	Alert Alerter
	Now   func() time.Time
}

// Coordinator runs trade flights, one per mint at a time.
type Coordinator struct {
	deps   Deps
	cfg    Config
	logger *log.Logger
	locks  storage.LockStore
	audit  storage.AuditStore
	alert  Alerter
	now    func() time.Time

	mu      sync.Mutex
	flights map[string]*Flight
	pending map[string]chan bool // requestID → confirm(true)/reject(false)
}

// NewCoordinator creates a coordinator.
func NewCoordinator(deps Deps, cfg Config, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Timeout + cfg.ConfirmationTimeout + time.Minute
	}
	return &Coordinator{
		deps:    deps,
		cfg:     cfg,
		logger:  opts.Logger,
		locks:   opts.Locks,
		audit:   opts.Audit,
		alert:   opts.Alert,
		now:     opts.Now,
		flights: make(map[string]*Flight),
		pending: make(map[string]chan bool),
	}
}

// Flight is one pass of a mint through the execution lifecycle.
type Flight struct {
	ID   string
	Mint string
	Side domain.Side

	c         *Coordinator
	lockToken string

	mu    sync.Mutex
	state State
	ended bool
}

// State returns the flight's current state.
func (f *Flight) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Advance moves the flight to the next state.
func (f *Flight) Advance(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ended {
		return fmt.Errorf("%w: flight %s already ended", ErrInvalidTransition, f.ID)
	}
	if !CanTransition(f.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.state, to)
	}
	f.state = to
	return nil
}

// End returns the flight to Idle and frees the mint. It is safe to call more than once.
func (f *Flight) End(ctx context.Context) {
	f.mu.Lock()
	if f.ended {
		f.mu.Unlock()
		return
	}
	f.ended = true
	f.state = StateIdle
	f.mu.Unlock()

	f.c.release(ctx, f)
}

// Begin opens a flight for mint in Evaluating.
// Returns ErrAlreadyInFlight if the mint has an active flight here or, with a lock store, anywhere.
func (c *Coordinator) Begin(ctx context.Context, mint string, side domain.Side) (*Flight, error) {
	f := &Flight{ID: uuid.NewString(), Mint: mint, Side: side, c: c, state: StateEvaluating}

	c.mu.Lock()
	if _, busy := c.flights[mint]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInFlight, mint)
	}
	c.flights[mint] = f
	c.mu.Unlock()

	if c.locks != nil {
		token, err := c.locks.Acquire(ctx, lockKey(mint), c.cfg.LockTTL)
		if err != nil {
			c.mu.Lock()
			delete(c.flights, mint)
			c.mu.Unlock()
			if errors.Is(err, storage.ErrLockHeld) {
				return nil, fmt.Errorf("%w: %s", ErrAlreadyInFlight, mint)
			}
			return nil, fmt.Errorf("acquire flight lock: %w", err)
		}
		f.lockToken = token
	}
	return f, nil
}

func (c *Coordinator) release(ctx context.Context, f *Flight) {
	c.mu.Lock()
	if c.flights[f.Mint] == f {
		delete(c.flights, f.Mint)
	}
	c.mu.Unlock()

	if c.locks != nil && f.lockToken != "" {
		// The caller's context may already be done; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.locks.Release(rctx, lockKey(f.Mint), f.lockToken); err != nil {
			c.logger.Printf("[execution] release lock for %s: %v", f.Mint, err)
		}
	}
}

func lockKey(mint string) string {
	return "sniper:flight:" + mint
}

// InFlight reports whether mint has an active flight in this process.
func (c *Coordinator) InFlight(mint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.flights[mint]
	return ok
}

// Submit runs a complete flight for intent: Begin, admit, Execute, End.
// A mint that already has a flight yields Failed(AlreadyInFlight) without side effects.
func (c *Coordinator) Submit(ctx context.Context, intent domain.TradeIntent) domain.TradeExecutionResult {
	f, err := c.Begin(ctx, intent.TokenMint, intent.Side)
	if err != nil {
		kind := domain.FailureBackend
		if errors.Is(err, ErrAlreadyInFlight) {
			kind = domain.FailureAlreadyInFlight
		}
		return failed(intent, kind, err, 0)
	}
	defer f.End(ctx)

	if err := f.Advance(StateAdmitted); err != nil {
		return failed(intent, domain.FailureCancelled, err, 0)
	}
	return c.Execute(ctx, f, intent)
}

// Execute guards, optionally waits for confirmation, submits with retries and
// records the fill. The flight must be Admitted. It does not End the flight.
func (c *Coordinator) Execute(ctx context.Context, f *Flight, intent domain.TradeIntent) domain.TradeExecutionResult {
	if intent.TokenMint != f.Mint {
		return failed(intent, domain.FailureCancelled, fmt.Errorf("intent mint %s does not match flight %s", intent.TokenMint, f.Mint), 0)
	}
	if err := f.Advance(StateGuarding); err != nil {
		return failed(intent, domain.FailureCancelled, err, 0)
	}

	res := c.run(ctx, f, intent)

	final := StateFailed
	if res.Confirmed() {
		final = StateConfirmed
	}
	if err := f.Advance(final); err != nil {
		c.logger.Printf("[execution] flight %s: %v", f.ID, err)
	}
	c.auditResult(detach(ctx), intent.UserID, res)
	return res
}

// settleTimeout bounds bookkeeping that runs after a transaction was sent.
const settleTimeout = 10 * time.Second

// detach returns a context for post-send bookkeeping. It ignores the
// caller's cancellation so a landed trade is still recorded and reported.
func detach(ctx context.Context) context.Context {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	context.AfterFunc(dctx, cancel)
	return dctx
}

func (c *Coordinator) run(ctx context.Context, f *Flight, intent domain.TradeIntent) domain.TradeExecutionResult {
	wallet, err := c.deps.Wallets.GetByUser(ctx, intent.UserID)
	if err != nil {
		return failed(intent, domain.FailureBackend, fmt.Errorf("wallet for %s: %w", intent.UserID, err), 0)
	}

	approved, res, ok := c.guard(ctx, wallet.PublicKey, intent)
	if !ok {
		return res
	}

	if intent.RequireConfirmation {
		if err := f.Advance(StateAwaitingConfirmation); err != nil {
			return failed(intent, domain.FailureCancelled, err, 0)
		}
		if kind, err := c.awaitConfirmation(ctx, intent.RequestID); err != nil {
			return failed(intent, kind, err, 0)
		}
	}

	if err := f.Advance(StateExecuting); err != nil {
		return failed(intent, domain.FailureCancelled, err, 0)
	}

	order := Order{Intent: intent, Payer: wallet.PublicKey, ExpectedPrice: approved.EffectivePrice}
	fill, attempts, err := c.submitWithRetry(ctx, order)
	if err != nil {
		res := failed(intent, KindOf(err), err, attempts)
		res.Signature = signatureOf(err)
		if res.Signature != "" {
			// Sent but never seen to settle or fail.
			c.reconcile(ctx, intent.UserID, res, err)
		}
		return res
	}

	res = domain.TradeExecutionResult{
		RequestID:     intent.RequestID,
		TokenMint:     intent.TokenMint,
		Side:          intent.Side,
		Outcome:       domain.OutcomeConfirmed,
		Signature:     fill.Signature,
		ExecutedPrice: fill.ExecutedPrice,
		Amount:        fill.Amount,
		Attempts:      attempts,
	}

	settle := detach(ctx)
	_, err = c.deps.Ledger.Record(settle, ledger.Entry{
		UserID:        intent.UserID,
		Token:         intent.TokenMint,
		Side:          intent.Side,
		Amount:        decimal.NewFromFloat(fill.Amount),
		ExecutedPrice: decimal.NewFromFloat(fill.ExecutedPrice),
		Signature:     fill.Signature,
		RequestID:     intent.RequestID,
	})
	if err != nil {
		res.Outcome = domain.OutcomeFailed
		res.FailureKind = domain.FailureLedgerUnreconciled
		res.Detail = err.Error()
		c.reconcile(settle, intent.UserID, res, err)
	}
	return res
}

func (c *Coordinator) reconcile(ctx context.Context, userID string, res domain.TradeExecutionResult, cause error) {
	if c.alert == nil {
		return
	}
	if err := c.alert.Reconcile(detach(ctx), userID, res, cause); err != nil {
		c.logger.Printf("[execution] reconciliation alert for %s failed: %v", res.Signature, err)
	}
}

// guard reads balance and price fresh and applies the risk checks.
func (c *Coordinator) guard(ctx context.Context, payer string, intent domain.TradeIntent) (risk.Result, domain.TradeExecutionResult, bool) {
	quote, err := c.deps.Prices.Fetch(ctx, intent.OracleKey())
	if err != nil {
		return risk.Result{}, failed(intent, domain.FailureOracle, err, 0), false
	}

	lamports, err := c.deps.Balances.GetBalance(ctx, payer)
	if err != nil {
		return risk.Result{}, failed(intent, domain.FailureNetwork, fmt.Errorf("read balance: %w", err), 0), false
	}

	tokenBalance := -1.0
	if intent.Side == domain.SideSell {
		held, err := c.deps.Balances.GetTokenBalance(ctx, payer, intent.TokenMint)
		if err != nil {
			return risk.Result{}, failed(intent, domain.FailureNetwork, fmt.Errorf("read token balance: %w", err), 0), false
		}
		tokenBalance = held.UIAmount
	}

	result := risk.Check(risk.Input{
		Intent:        intent,
		WalletBalance: float64(lamports) / solana.LamportsPerSOL,
		Quote:         quote,
		ReserveFloor:  c.cfg.ReserveFloorSOL,
		TokenBalance:  tokenBalance,
	})
	if !result.Approved {
		return result, failed(intent, domain.FailureRejectedByGuard, result.Err, 0), false
	}
	return result, domain.TradeExecutionResult{}, true
}

func (c *Coordinator) awaitConfirmation(ctx context.Context, requestID string) (domain.FailureKind, error) {
	ch := make(chan bool, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(c.cfg.ConfirmationTimeout)
	defer timer.Stop()

	select {
	case ok := <-ch:
		if !ok {
			return domain.FailureConfirmationRejected, errors.New("rejected by user")
		}
		return domain.FailureNone, nil
	case <-timer.C:
		return domain.FailureConfirmationExpired, fmt.Errorf("no confirmation within %s", c.cfg.ConfirmationTimeout)
	case <-ctx.Done():
		return domain.FailureCancelled, ctx.Err()
	}
}

// Confirm releases a trade parked in AwaitingConfirmation.
func (c *Coordinator) Confirm(requestID string) error {
	return c.decide(requestID, true)
}

// Reject fails a trade parked in AwaitingConfirmation.
func (c *Coordinator) Reject(requestID string) error {
	return c.decide(requestID, false)
}

func (c *Coordinator) decide(requestID string, ok bool) error {
	c.mu.Lock()
	ch, exists := c.pending[requestID]
	if exists {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNoPendingConfirmation, requestID)
	}
	ch <- ok
	return nil
}

// Pending returns the request IDs awaiting confirmation.
func (c *Coordinator) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}

// submitWithRetry retries retryable failures up to MaxRetries times with
// exponential backoff, all within the Timeout budget. The budget is the only
// deadline an attempt sees: caller cancellation stops further retries but
// never interrupts an attempt already running. A failure that carries a
// signature was sent and is never retried.
func (c *Coordinator) submitWithRetry(ctx context.Context, order Order) (Fill, int, error) {
	budget, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	attempts := 0
	for {
		fill, err := c.deps.Backend.Submit(budget, order)
		attempts++
		if err == nil {
			return fill, attempts, nil
		}

		kind := KindOf(err)
		if budget.Err() != nil && (kind.Retryable() || kind == domain.FailureTimeout || kind == domain.FailureCancelled) {
			return Fill{}, attempts, budgetErr(budget, err)
		}
		if !kind.Retryable() || signatureOf(err) != "" || attempts > c.cfg.MaxRetries {
			return Fill{}, attempts, err
		}

		timer := time.NewTimer(backoff(c.cfg.BackoffBase, attempts-1))
		select {
		case <-budget.Done():
			timer.Stop()
			return Fill{}, attempts, budgetErr(budget, err)
		case <-ctx.Done():
			timer.Stop()
			return Fill{}, attempts, &Error{Kind: domain.FailureCancelled, Err: fmt.Errorf("%w (last: %v)", ctx.Err(), err)}
		case <-timer.C:
		}
	}
}

// backoff is the wait before retrying failed attempt n (zero-based):
// base × 2^n, so the first retry waits base.
func backoff(base time.Duration, n int) time.Duration {
	return base << n
}

// budgetErr reports the retry budget running out as Timeout.
func budgetErr(budget context.Context, last error) error {
	return &Error{Kind: domain.FailureTimeout, Signature: signatureOf(last), Err: fmt.Errorf("retry budget exhausted: %w (last: %v)", budget.Err(), last)}
}

func (c *Coordinator) auditResult(ctx context.Context, userID string, res domain.TradeExecutionResult) {
	if c.audit == nil {
		return
	}
	err := c.audit.InsertExecution(ctx, &domain.ExecutionRecord{
		Result:     res,
		UserID:     userID,
		RecordedAt: c.now().UTC(),
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		c.logger.Printf("[execution] audit %s: %v", res.RequestID, err)
	}
}

func failed(intent domain.TradeIntent, kind domain.FailureKind, err error, attempts int) domain.TradeExecutionResult {
	res := domain.TradeExecutionResult{
		RequestID:   intent.RequestID,
		TokenMint:   intent.TokenMint,
		Side:        intent.Side,
		Outcome:     domain.OutcomeFailed,
		FailureKind: kind,
		Amount:      intent.Amount,
		Attempts:    attempts,
	}
	if err != nil {
		res.Detail = err.Error()
	}
	return res
}
