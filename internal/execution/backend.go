package execution

import (
	"context"
	"errors"
	"fmt"

	"solana-pool-sniper/internal/domain"
)

// Order is an approved intent handed to a backend.
type Order struct {
	Intent        domain.TradeIntent
	Payer         string  // wallet public key paying for and signing the swap
	ExpectedPrice float64 // guard's effective price, SOL per token
}

// Fill is a settled swap.
type Fill struct {
	Signature     string
	ExecutedPrice float64 // SOL per token
	Amount        float64 // token units actually bought or sold
}

// Backend submits an order on chain and waits for it to settle.
// Failures are returned as *Error so the coordinator can decide on retries.
type Backend interface {
	Submit(ctx context.Context, order Order) (Fill, error)
}

// Error is a classified backend failure.
type Error struct {
	Kind      domain.FailureKind
	Signature string // set when the transaction was sent before failing
	Err       error
}

func (e *Error) Error() string {
	if e.Signature != "" {
		return fmt.Sprintf("%s (signature %s): %v", e.Kind, e.Signature, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fail wraps err with a failure kind.
func Fail(kind domain.FailureKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf classifies err. Unclassified errors are FailureBackend.
func KindOf(err error) domain.FailureKind {
	var be *Error
	switch {
	case err == nil:
		return domain.FailureNone
	case errors.As(err, &be):
		return be.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	case errors.Is(err, context.Canceled):
		return domain.FailureCancelled
	}
	return domain.FailureBackend
}

func signatureOf(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Signature
	}
	return ""
}
