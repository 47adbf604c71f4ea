package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/solana"
)

// Oracle errors.
var (
	ErrNoFeedConfigured = errors.New("no price feed configured")
	ErrFeedUnavailable  = errors.New("price feed unavailable")
	ErrLowConfidence    = errors.New("price confidence too wide")
	ErrZeroPrice        = errors.New("price is zero or negative")
)

// SOLSymbol is the feed key of the SOL/USD price, the denominator for SOL quotes.
const SOLSymbol = "SOL"

// Default Pyth mainnet price accounts, keyed by symbol. Prices are in USD.
var DefaultFeeds = map[string]string{
	SOLSymbol: "H6ARHf6YXhGYeQfUzQNGk6rDNnLBQKrenN712K4AQJEG",
	"USDC":    "Gnt27xtC473ZT2Mw5u8wZ68Z3gULkSTb5DuxJy7eJotD",
	"RAY":     "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
}

// DefaultMintSymbols maps mainnet mints to their DefaultFeeds symbol.
var DefaultMintSymbols = map[string]string{
	solana.WrappedSOLMint:                          SOLSymbol,
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R": "RAY",
}

// AccountReader is the subset of solana.RPCClient the adapter needs.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// Adapter fetches and validates Pyth prices. It does not retry; give it an
// RPC client built without retries.
type Adapter struct {
	rpc                AccountReader
	feeds              map[string]string
	mints              map[string]string
	maxConfidenceRatio float64
}

// AdapterOption configures Adapter.
type AdapterOption func(*Adapter)

// WithMintSymbols lets Fetch accept a mint address and resolve it to its feed symbol.
func WithMintSymbols(mints map[string]string) AdapterOption {
	return func(a *Adapter) {
		for k, v := range mints {
			a.mints[k] = v
		}
	}
}

// NewAdapter creates an adapter over a symbol → price-account mapping.
// A ratio of zero uses domain.MaxConfidenceRatio.
func NewAdapter(rpc AccountReader, feeds map[string]string, maxConfidenceRatio float64, opts ...AdapterOption) *Adapter {
	if maxConfidenceRatio <= 0 {
		maxConfidenceRatio = domain.MaxConfidenceRatio
	}
	a := &Adapter{
		rpc:                rpc,
		feeds:              make(map[string]string, len(feeds)),
		mints:              make(map[string]string),
		maxConfidenceRatio: maxConfidenceRatio,
	}
	for k, v := range feeds {
		a.feeds[k] = v
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewRPCAdapter creates an adapter with its own RPC client. The client makes
// exactly one request per read; retry policy belongs to the caller.
func NewRPCAdapter(endpoint string, feeds map[string]string, maxConfidenceRatio float64, opts ...AdapterOption) *Adapter {
	rpc := solana.NewHTTPClient(endpoint, solana.WithMaxRetries(0), solana.WithTimeout(10*time.Second))
	return NewAdapter(rpc, feeds, maxConfidenceRatio, opts...)
}

// Symbol resolves token, a feed symbol or a mapped mint, to its feed symbol.
func (a *Adapter) Symbol(token string) (string, bool) {
	if _, ok := a.feeds[token]; ok {
		return token, true
	}
	sym, ok := a.mints[token]
	if !ok {
		return "", false
	}
	_, ok = a.feeds[sym]
	return sym, ok
}

// HasFeed reports whether token has a configured feed.
func (a *Adapter) HasFeed(token string) bool {
	_, ok := a.Symbol(token)
	return ok
}

// Fetch reads the token's price account and returns a validated quote.
// The quote's Token is the feed symbol.
func (a *Adapter) Fetch(ctx context.Context, token string) (domain.PriceQuote, error) {
	sym, ok := a.Symbol(token)
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s", ErrNoFeedConfigured, token)
	}
	token = sym
	feed := a.feeds[sym]

	info, err := a.rpc.GetAccountInfo(ctx, feed)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s: %v", ErrFeedUnavailable, token, err)
	}
	if info == nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s: account %s not found", ErrFeedUnavailable, token, feed)
	}

	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s: %v", ErrFeedUnavailable, token, err)
	}
	p, err := ParsePythPrice(data)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s: %v", ErrFeedUnavailable, token, err)
	}

	if p.Price <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s", ErrZeroPrice, token)
	}
	if p.Confidence > p.Price*a.maxConfidenceRatio {
		return domain.PriceQuote{}, fmt.Errorf("%w: %s: conf %g exceeds %g of price %g", ErrLowConfidence, token, p.Confidence, a.maxConfidenceRatio, p.Price)
	}

	return domain.PriceQuote{
		Token:           token,
		Price:           p.Price,
		Confidence:      p.Confidence,
		SourceTimestamp: p.Timestamp,
	}, nil
}
