package domain

import (
	"errors"
	"fmt"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ErrInvalidIntent is returned when a trade intent fails construction checks.
var ErrInvalidIntent = errors.New("invalid trade intent")

// TradeIntent is an admitted request to trade a token for a user.
type TradeIntent struct {
	RequestID    string
	UserID       string
	TokenMint    string
	Side         Side
	Amount       float64 // token units, > 0
	PriceCeiling float64 // Buy only: maximum acceptable price
	PriceFloor   float64 // Sell only: minimum acceptable price

	TokenDecimals       uint8  // needed to size the on-chain swap
	PriceSymbol         string // oracle lookup key, defaults to TokenMint
	RequireConfirmation bool   // park in AwaitingConfirmation before submitting
}

// NewTradeIntent validates and builds a TradeIntent.
// The limit is interpreted as a ceiling for buys and a floor for sells.
func NewTradeIntent(requestID, userID, mint string, side Side, amount, limit float64) (TradeIntent, error) {
	if requestID == "" || userID == "" || mint == "" {
		return TradeIntent{}, fmt.Errorf("%w: request, user and mint are required", ErrInvalidIntent)
	}
	if !(amount > 0) {
		return TradeIntent{}, fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidIntent, amount)
	}
	in := TradeIntent{
		RequestID: requestID,
		UserID:    userID,
		TokenMint: mint,
		Side:      side,
		Amount:    amount,
	}
	switch side {
	case SideBuy:
		in.PriceCeiling = limit
	case SideSell:
		in.PriceFloor = limit
	default:
		return TradeIntent{}, fmt.Errorf("%w: unknown side %q", ErrInvalidIntent, side)
	}
	return in, nil
}

// OracleKey returns the key used to look up the token's price feed.
func (t TradeIntent) OracleKey() string {
	if t.PriceSymbol != "" {
		return t.PriceSymbol
	}
	return t.TokenMint
}

// Outcome is the terminal state of an execution.
type Outcome string

const (
	OutcomeConfirmed Outcome = "CONFIRMED"
	OutcomeFailed    Outcome = "FAILED"
)

// FailureKind classifies a failed execution.
type FailureKind string

const (
	FailureNone                     FailureKind = ""
	FailureRejectedByGuard          FailureKind = "REJECTED_BY_GUARD"
	FailureTimeout                  FailureKind = "TIMEOUT"
	FailureInsufficientFundsOnChain FailureKind = "INSUFFICIENT_FUNDS_ON_CHAIN"
	FailureSimulationFailed         FailureKind = "SIMULATION_FAILED"
	FailureInvalidInstruction       FailureKind = "INVALID_INSTRUCTION"
	FailurePriceImpactTooHigh       FailureKind = "PRICE_IMPACT_TOO_HIGH"
	FailureNetwork                  FailureKind = "NETWORK"
	FailureBackend                  FailureKind = "BACKEND"
	FailureOracle                   FailureKind = "ORACLE"
	FailureLedgerUnreconciled       FailureKind = "LEDGER_UNRECONCILED"
	FailureConfirmationExpired      FailureKind = "CONFIRMATION_EXPIRED"
	FailureConfirmationRejected     FailureKind = "CONFIRMATION_REJECTED"
	FailureCancelled                FailureKind = "CANCELLED"
	FailureAlreadyInFlight          FailureKind = "ALREADY_IN_FLIGHT"
)

// Retryable reports whether a backend failure of this kind may be retried.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureNetwork, FailureBackend:
		return true
	}
	return false
}

// TradeExecutionResult is the terminal result of one intent.
type TradeExecutionResult struct {
	RequestID     string
	TokenMint     string
	Side          Side
	Outcome       Outcome
	FailureKind   FailureKind
	Detail        string  // guard reason or backend message
	Signature     string  // set on Confirmed, and on any failure after the transaction was sent
	ExecutedPrice float64 // set on Confirmed
	Amount        float64
	Attempts      int
}

// Confirmed reports whether the trade settled and was recorded.
func (r TradeExecutionResult) Confirmed() bool {
	return r.Outcome == OutcomeConfirmed
}
