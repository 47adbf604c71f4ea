package oracle

import (
	"context"
	"fmt"

	"solana-pool-sniper/internal/domain"
)

// PriceSource returns a validated USD quote for a token.
type PriceSource interface {
	Fetch(ctx context.Context, token string) (domain.PriceQuote, error)
}

// SOLQuoter turns USD quotes into SOL per token by dividing through the
// SOL/USD feed. Trade sizing, guard limits and the ledger are all in SOL.
type SOLQuoter struct {
	usd                PriceSource
	maxConfidenceRatio float64
}

// NewSOLQuoter wraps a USD price source. A ratio of zero uses domain.MaxConfidenceRatio.
func NewSOLQuoter(usd PriceSource, maxConfidenceRatio float64) *SOLQuoter {
	if maxConfidenceRatio <= 0 {
		maxConfidenceRatio = domain.MaxConfidenceRatio
	}
	return &SOLQuoter{usd: usd, maxConfidenceRatio: maxConfidenceRatio}
}

// Fetch returns token's price in SOL. Confidence combines both legs'
// relative widths and must stay within the ratio.
func (q *SOLQuoter) Fetch(ctx context.Context, token string) (domain.PriceQuote, error) {
	quote, err := q.usd.Fetch(ctx, token)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if quote.Token == SOLSymbol {
		return domain.PriceQuote{Token: SOLSymbol, Price: 1, SourceTimestamp: quote.SourceTimestamp}, nil
	}

	sol, err := q.usd.Fetch(ctx, SOLSymbol)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("SOL/USD: %w", err)
	}

	price := quote.Price / sol.Price
	conf := price * (quote.Confidence/quote.Price + sol.Confidence/sol.Price)
	if conf > price*q.maxConfidenceRatio {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s in SOL: conf %g exceeds %g of price %g", ErrLowConfidence, quote.Token, conf, q.maxConfidenceRatio, price)
	}

	ts := quote.SourceTimestamp
	if sol.SourceTimestamp.Before(ts) {
		ts = sol.SourceTimestamp
	}
	return domain.PriceQuote{
		Token:           quote.Token,
		Price:           price,
		Confidence:      conf,
		SourceTimestamp: ts,
	}, nil
}
