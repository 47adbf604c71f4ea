package risk

import (
	"errors"
	"fmt"

	"solana-pool-sniper/internal/domain"
)

// Guard rejections. All are final business outcomes and never retried.
var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrPriceExceedsCeiling      = errors.New("price exceeds ceiling")
	ErrPriceBelowFloor          = errors.New("price below floor")
	ErrInsufficientTokenBalance = errors.New("insufficient token balance")
)

// Result is the outcome of a guard check. Err is nil when approved.
type Result struct {
	Approved       bool
	EffectivePrice float64
	Err            error
}

func reject(err error, format string, args ...interface{}) Result {
	return Result{Err: fmt.Errorf("%w: "+format, append([]interface{}{err}, args...)...)}
}

// Input is everything a check needs, read fresh by the caller.
type Input struct {
	Intent        domain.TradeIntent
	WalletBalance float64 // SOL
	Quote         domain.PriceQuote
	ReserveFloor  float64 // SOL kept untouched in the wallet
	// TokenBalance is the held token amount for sells. Negative means unknown and skips the check.
	TokenBalance float64
}

// Check applies balance and price limits to an intent. Pure.
//
// Buy: balance − reserve must cover amount × price, and price must not exceed the ceiling.
// A ceiling ≤ 0 means no ceiling.
// Sell: price must not fall below the floor, and the held token balance must cover amount.
func Check(in Input) Result {
	price := in.Quote.Price

	switch in.Intent.Side {
	case domain.SideBuy:
		cost := in.Intent.Amount * price
		available := in.WalletBalance - in.ReserveFloor
		if available < cost {
			return reject(ErrInsufficientBalance, "need %g SOL, have %g after %g reserve", cost, available, in.ReserveFloor)
		}
		if in.Intent.PriceCeiling > 0 && price > in.Intent.PriceCeiling {
			return reject(ErrPriceExceedsCeiling, "%g > %g", price, in.Intent.PriceCeiling)
		}

	case domain.SideSell:
		if price < in.Intent.PriceFloor {
			return reject(ErrPriceBelowFloor, "%g < %g", price, in.Intent.PriceFloor)
		}
		if in.TokenBalance >= 0 && in.TokenBalance < in.Intent.Amount {
			return reject(ErrInsufficientTokenBalance, "need %g, have %g", in.Intent.Amount, in.TokenBalance)
		}

	default:
		return reject(domain.ErrInvalidIntent, "unknown side %q", in.Intent.Side)
	}

	return Result{Approved: true, EffectivePrice: price}
}
