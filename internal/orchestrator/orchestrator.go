// Package orchestrator runs the per-event sniper pipeline.
// It coordinates: decode → track → evaluate → guard → execute → record
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"solana-pool-sniper/internal/discovery"
	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/execution"
	"solana-pool-sniper/internal/idhash"
	"solana-pool-sniper/internal/ingestion"
	"solana-pool-sniper/internal/market"
	"solana-pool-sniper/internal/observability"
	"solana-pool-sniper/internal/oracle"
	"solana-pool-sniper/internal/storage"
)

// Kind is where and how processing of one notification ended.
type Kind string

const (
	KindDecodeFailed Kind = "DECODE_FAILED"
	KindStale        Kind = "STALE"
	KindBusy         Kind = "BUSY"
	KindMarketFailed Kind = "MARKET_FAILED"
	KindOracleFailed Kind = "ORACLE_FAILED"
	KindRejected     Kind = "REJECTED"
	KindDryRun       Kind = "DRY_RUN"
	KindExecuted     Kind = "EXECUTED"
	KindError        Kind = "ERROR"
)

// Outcome is the terminal handling of one pool notification.
type Outcome struct {
	Kind        Kind
	PoolAccount string
	Mint        string
	Verdict     *domain.EligibilityVerdict
	Intent      *domain.TradeIntent
	Result      *domain.TradeExecutionResult
	Err         error
}

// Message renders the outcome for a user.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindDecodeFailed:
		return fmt.Sprintf("Ignored update for pool %s: account data could not be decoded", o.PoolAccount)
	case KindStale:
		return fmt.Sprintf("Ignored stale update for %s", o.Mint)
	case KindBusy:
		return fmt.Sprintf("A trade for %s is already in progress", o.Mint)
	case KindMarketFailed:
		return fmt.Sprintf("Could not read market data for %s", o.Mint)
	case KindOracleFailed:
		return fmt.Sprintf("No usable price for %s: %s", o.Mint, oracleMessage(o.Err))
	case KindRejected:
		return fmt.Sprintf("%s is not eligible: %s", o.Mint, joinReasons(o.Verdict))
	case KindDryRun:
		return fmt.Sprintf("%s is eligible; dry run, would buy %g at up to %g SOL", o.Mint, o.Intent.Amount, o.Intent.PriceCeiling)
	case KindExecuted:
		return executionMessage(o.Result)
	}
	if o.Err != nil {
		return fmt.Sprintf("Could not process %s: %v", o.Mint, o.Err)
	}
	return fmt.Sprintf("Could not process %s", o.Mint)
}

func joinReasons(v *domain.EligibilityVerdict) string {
	if v == nil {
		return "unknown"
	}
	parts := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

func oracleMessage(err error) string {
	switch {
	case errors.Is(err, oracle.ErrNoFeedConfigured):
		return "no price feed configured"
	case errors.Is(err, oracle.ErrLowConfidence):
		return "price confidence too wide"
	case errors.Is(err, oracle.ErrZeroPrice):
		return "feed reports no price"
	}
	return "price feed unavailable"
}

func executionMessage(r *domain.TradeExecutionResult) string {
	if r == nil {
		return "Trade finished without a result"
	}
	verb := "Bought"
	if r.Side == domain.SideSell {
		verb = "Sold"
	}
	switch r.FailureKind {
	case domain.FailureNone:
		return fmt.Sprintf("%s %g %s at %g SOL (tx %s)", verb, r.Amount, r.TokenMint, r.ExecutedPrice, r.Signature)
	case domain.FailureRejectedByGuard:
		return fmt.Sprintf("Trade for %s blocked: %s", r.TokenMint, r.Detail)
	case domain.FailureTimeout:
		if r.Signature != "" {
			return fmt.Sprintf("Trade for %s was sent (tx %s) but did not confirm in time; flagged for reconciliation", r.TokenMint, r.Signature)
		}
		return fmt.Sprintf("Trade for %s timed out", r.TokenMint)
	case domain.FailureInsufficientFundsOnChain:
		return fmt.Sprintf("Trade for %s failed: insufficient funds on chain", r.TokenMint)
	case domain.FailureSimulationFailed:
		return fmt.Sprintf("Trade for %s failed in simulation", r.TokenMint)
	case domain.FailureInvalidInstruction:
		return fmt.Sprintf("Trade for %s failed: swap could not be built", r.TokenMint)
	case domain.FailurePriceImpactTooHigh:
		return fmt.Sprintf("Trade for %s skipped: price impact too high", r.TokenMint)
	case domain.FailureNetwork, domain.FailureBackend:
		return fmt.Sprintf("Trade for %s failed after %d attempts", r.TokenMint, r.Attempts)
	case domain.FailureOracle:
		return fmt.Sprintf("Trade for %s failed: no usable price", r.TokenMint)
	case domain.FailureLedgerUnreconciled:
		return fmt.Sprintf("Trade for %s settled (tx %s) but the portfolio was not updated; flagged for reconciliation", r.TokenMint, r.Signature)
	case domain.FailureConfirmationExpired:
		return fmt.Sprintf("Trade for %s expired waiting for confirmation", r.TokenMint)
	case domain.FailureConfirmationRejected:
		return fmt.Sprintf("Trade for %s was declined", r.TokenMint)
	case domain.FailureCancelled:
		return fmt.Sprintf("Trade for %s was cancelled", r.TokenMint)
	case domain.FailureAlreadyInFlight:
		return fmt.Sprintf("A trade for %s is already in progress", r.TokenMint)
	}
	return fmt.Sprintf("Trade for %s failed: %s", r.TokenMint, r.FailureKind)
}

// PriceSource returns validated oracle quotes.
type PriceSource interface {
	Fetch(ctx context.Context, token string) (domain.PriceQuote, error)
}

// Orchestrator coordinates the per-event pipeline.
// Flow: decode → tracker → market metrics → evaluator → oracle → coordinator
type Orchestrator struct {
	tracker     *discovery.PoolStateTracker
	market      market.Source
	prices      PriceSource
	evaluator   Evaluator
	coordinator *execution.Coordinator
	audit       storage.AuditStore

	userID              string
	tradeAmountSOL      float64
	maxPriceImpact      float64
	requireConfirmation bool
	dryRun              bool

	logger  *log.Logger
	verbose bool
	now     func() time.Time
}

// Evaluator admits or rejects a pool state. Implemented by decision.Evaluator.
type Evaluator interface {
	Evaluate(state domain.PoolState, metrics domain.MarketMetrics) domain.EligibilityVerdict
}

// Options for creating Orchestrator.
type Options struct {
	// Required collaborators
	Tracker     *discovery.PoolStateTracker
	Market      market.Source
	Prices      PriceSource
	Evaluator   Evaluator
	Coordinator *execution.Coordinator

	// Optional: verdict audit log
	Audit storage.AuditStore

	// Trading parameters
	UserID              string
	TradeAmountSOL      float64
	MaxPriceImpact      float64 // ceiling = price × (1 + MaxPriceImpact)
	RequireConfirmation bool
	DryRun              bool // evaluate but never submit

	Logger  *log.Logger
	Verbose bool
	Now     func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		tracker:             opts.Tracker,
		market:              opts.Market,
		prices:              opts.Prices,
		evaluator:           opts.Evaluator,
		coordinator:         opts.Coordinator,
		audit:               opts.Audit,
		userID:              opts.UserID,
		tradeAmountSOL:      opts.TradeAmountSOL,
		maxPriceImpact:      opts.MaxPriceImpact,
		requireConfirmation: opts.RequireConfirmation,
		dryRun:              opts.DryRun,
		logger:              opts.Logger,
		verbose:             opts.Verbose,
		now:                 opts.Now,
	}
}

var _ ingestion.Handler = (*Orchestrator)(nil)

// Handle processes one notification and reports its outcome.
// It is the single place where pipeline outcomes are logged and counted.
func (o *Orchestrator) Handle(ctx context.Context, event *domain.PoolAccountEvent) {
	start := time.Now()
	out := o.Process(ctx, event)
	o.report(out)
	observability.ObserveStage("total", start)
	observability.RecordEventProcessed(o.now())
}

// Process runs the pipeline for one notification without logging.
func (o *Orchestrator) Process(ctx context.Context, event *domain.PoolAccountEvent) Outcome {
	out := Outcome{PoolAccount: event.AccountID}

	state, err := discovery.DecodePoolState(event.Payload)
	if err != nil {
		out.Kind, out.Err = KindDecodeFailed, err
		return out
	}
	out.Mint = state.TokenMint

	accepted, err := o.tracker.Accept(ctx, state)
	if err != nil {
		out.Kind, out.Err = KindError, fmt.Errorf("track pool state: %w", err)
		return out
	}
	if !accepted {
		out.Kind = KindStale
		return out
	}

	flight, err := o.coordinator.Begin(ctx, state.TokenMint, domain.SideBuy)
	if err != nil {
		if errors.Is(err, execution.ErrAlreadyInFlight) {
			out.Kind = KindBusy
		} else {
			out.Kind = KindError
		}
		out.Err = err
		return out
	}
	defer flight.End(ctx)

	stage := time.Now()
	metrics, err := o.market.Metrics(ctx, state.TokenMint)
	observability.ObserveStage("market", stage)
	if err != nil {
		out.Kind, out.Err = KindMarketFailed, err
		return out
	}

	verdict := o.evaluator.Evaluate(state, metrics)
	out.Verdict = &verdict
	o.auditVerdict(ctx, event, verdict)

	if !verdict.Admitted() {
		out.Kind = KindRejected
		return out
	}

	stage = time.Now()
	quote, err := o.prices.Fetch(ctx, state.TokenMint)
	observability.ObserveStage("oracle", stage)
	if err != nil {
		out.Kind, out.Err = KindOracleFailed, err
		return out
	}

	intent, err := o.buildIntent(state, metrics, quote)
	if err != nil {
		out.Kind, out.Err = KindError, err
		return out
	}
	out.Intent = &intent

	if o.dryRun {
		out.Kind = KindDryRun
		return out
	}

	if err := flight.Advance(execution.StateAdmitted); err != nil {
		out.Kind, out.Err = KindError, err
		return out
	}

	stage = time.Now()
	res := o.coordinator.Execute(ctx, flight, intent)
	observability.ObserveStage("execute", stage)
	out.Kind = KindExecuted
	out.Result = &res
	return out
}

// buildIntent sizes a buy of TradeAmountSOL at the quoted price.
func (o *Orchestrator) buildIntent(state domain.PoolState, metrics domain.MarketMetrics, quote domain.PriceQuote) (domain.TradeIntent, error) {
	if !(quote.Price > 0) {
		return domain.TradeIntent{}, fmt.Errorf("%w: price %v", oracle.ErrZeroPrice, quote.Price)
	}
	requestID := idhash.ComputeRequestID(o.userID, state.TokenMint, domain.SideBuy, state.LastUpdateTime)
	amount := o.tradeAmountSOL / quote.Price
	ceiling := quote.Price * (1 + o.maxPriceImpact)

	intent, err := domain.NewTradeIntent(requestID, o.userID, state.TokenMint, domain.SideBuy, amount, ceiling)
	if err != nil {
		return domain.TradeIntent{}, err
	}
	intent.TokenDecimals = metrics.TokenDecimals
	intent.PriceSymbol = quote.Token
	intent.RequireConfirmation = o.requireConfirmation
	return intent, nil
}

func (o *Orchestrator) auditVerdict(ctx context.Context, event *domain.PoolAccountEvent, v domain.EligibilityVerdict) {
	if o.audit == nil {
		return
	}
	rec := &domain.VerdictRecord{
		VerdictID:      idhash.ComputeVerdictID(event.AccountID, v.TokenMint, v.LastUpdateTime, event.ObservedAtSlot),
		Verdict:        v,
		PoolAccount:    event.AccountID,
		ObservedAtSlot: event.ObservedAtSlot,
		RecordedAt:     o.now(),
	}
	if err := o.audit.InsertVerdict(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		o.logger.Printf("[orchestrator] audit verdict %s: %v", v.TokenMint, err)
	}
}

// report logs the outcome and records its metrics.
func (o *Orchestrator) report(out Outcome) {
	if out.Verdict != nil {
		reasons := make([]string, len(out.Verdict.Reasons))
		for i, r := range out.Verdict.Reasons {
			reasons[i] = string(r)
		}
		observability.RecordVerdict(string(out.Verdict.Decision), reasons)
	}

	switch out.Kind {
	case KindDecodeFailed:
		observability.RecordDecodeError(decodeErrorType(out.Err))
		o.logger.Printf("[orchestrator] SKIP pool=%s: %v", out.PoolAccount, out.Err)
		return
	case KindStale:
		observability.RecordStaleUpdate()
		o.log("SKIP %s: stale", out.Mint)
		return
	case KindBusy:
		observability.RecordFlightSkipped()
		o.log("SKIP %s: in flight", out.Mint)
		return
	case KindOracleFailed:
		observability.RecordOracleError(oracleErrorType(out.Err))
	case KindExecuted:
		r := out.Result
		observability.RecordExecution(string(r.Side), string(r.Outcome), string(r.FailureKind), r.Attempts)
		switch r.FailureKind {
		case domain.FailureNone:
			observability.RecordLedgerWrite(nil)
		case domain.FailureRejectedByGuard:
			observability.RecordGuardReject(guardReason(r.Detail))
		case domain.FailureLedgerUnreconciled:
			observability.RecordLedgerWrite(errors.New(r.Detail))
			observability.RecordReconciliation()
		}
	}

	if out.Err != nil {
		o.logger.Printf("[orchestrator] %s %s: %s (%v)", out.Kind, out.Mint, out.Message(), out.Err)
		return
	}
	o.logger.Printf("[orchestrator] %s %s: %s", out.Kind, out.Mint, out.Message())
}

// log prints only in verbose mode.
func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		o.logger.Printf("[orchestrator] "+format, args...)
	}
}

func decodeErrorType(err error) string {
	switch {
	case errors.Is(err, discovery.ErrTooShort):
		return "too_short"
	case errors.Is(err, discovery.ErrInvalidMint):
		return "invalid_mint"
	}
	return "other"
}

func oracleErrorType(err error) string {
	switch {
	case errors.Is(err, oracle.ErrNoFeedConfigured):
		return "no_feed"
	case errors.Is(err, oracle.ErrFeedUnavailable):
		return "unavailable"
	case errors.Is(err, oracle.ErrLowConfidence):
		return "low_confidence"
	case errors.Is(err, oracle.ErrZeroPrice):
		return "zero_price"
	}
	return "other"
}

// guardReason reduces a guard detail such as "insufficient balance: need ..." to a label.
func guardReason(detail string) string {
	reason, _, _ := strings.Cut(detail, ":")
	return strings.ReplaceAll(strings.TrimSpace(reason), " ", "_")
}
