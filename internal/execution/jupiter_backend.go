package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/jupiter"
	"solana-pool-sniper/internal/solana"
)

// SwapAPI is the subset of jupiter.Client the backend needs.
type SwapAPI interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
	SwapTransaction(ctx context.Context, quote *jupiter.Quote, userPublicKey string) (string, error)
}

// ChainRPC is the subset of solana.RPCClient the backend needs.
type ChainRPC interface {
	SimulateTransaction(ctx context.Context, txBase64 string) (*solana.SimulationResult, error)
	SendTransaction(ctx context.Context, txBase64 string) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error)
}

// JupiterOptions configures JupiterBackend.
type JupiterOptions struct {
	SlippageBps    int
	MaxPriceImpact float64 // fraction; routes above it fail with PriceImpactTooHigh
	PollInterval   time.Duration
	Logger         *log.Logger
}

// JupiterBackend swaps through the Jupiter aggregator and settles on Solana.
// Each Submit is one attempt: quote, build, sign, simulate, send, confirm.
type JupiterBackend struct {
	api    SwapAPI
	rpc    ChainRPC
	signer *solana.Keypair
	opts   JupiterOptions
}

var _ Backend = (*JupiterBackend)(nil)

// NewJupiterBackend creates a backend that signs with signer.
func NewJupiterBackend(api SwapAPI, rpc ChainRPC, signer *solana.Keypair, opts JupiterOptions) *JupiterBackend {
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = 100
	}
	if opts.MaxPriceImpact <= 0 {
		opts.MaxPriceImpact = 0.05
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &JupiterBackend{api: api, rpc: rpc, signer: signer, opts: opts}
}

// Submit executes one swap attempt for order.
func (b *JupiterBackend) Submit(ctx context.Context, order Order) (Fill, error) {
	req, err := b.quoteRequest(order)
	if err != nil {
		return Fill{}, err
	}

	quote, err := b.api.Quote(ctx, req)
	if err != nil {
		return Fill{}, classifySwapAPI(err)
	}
	if quote.PriceImpactPct > b.opts.MaxPriceImpact {
		return Fill{}, Fail(domain.FailurePriceImpactTooHigh,
			fmt.Errorf("route impact %.4f exceeds %.4f", quote.PriceImpactPct, b.opts.MaxPriceImpact))
	}

	unsigned, err := b.api.SwapTransaction(ctx, quote, order.Payer)
	if err != nil {
		return Fill{}, classifySwapAPI(err)
	}

	signed, sig, err := solana.SignSerializedTransaction(unsigned, b.signer)
	if err != nil {
		return Fill{}, Fail(domain.FailureInvalidInstruction, err)
	}

	sim, err := b.rpc.SimulateTransaction(ctx, signed)
	if err != nil {
		return Fill{}, classifyRPC(err)
	}
	if sim.Failed() {
		kind := domain.FailureSimulationFailed
		if isInsufficientFunds(fmt.Sprint(sim.Err), sim.Logs) {
			kind = domain.FailureInsufficientFundsOnChain
		}
		return Fill{}, Fail(kind, fmt.Errorf("simulation: %v", sim.Err))
	}

	sent, err := b.rpc.SendTransaction(ctx, signed)
	if err != nil {
		if err := b.recoverSend(ctx, sig, err); err != nil {
			return Fill{}, err
		}
		return fillFrom(order, quote, sig), nil
	}
	if sent != "" && sent != sig {
		b.opts.Logger.Printf("[jupiter] node returned signature %s, expected %s", sent, sig)
		sig = sent
	}

	if err := b.awaitConfirmation(ctx, sig); err != nil {
		return Fill{}, err
	}

	return fillFrom(order, quote, sig), nil
}

// recoverSend handles a failed send of the transaction signed as sig. A node
// error means it was refused. Anything else may have reached the cluster, so
// the status is checked: a known signature is awaited, an unknown one fails
// as Timeout carrying sig and must not be signed again.
func (b *JupiterBackend) recoverSend(ctx context.Context, sig string, sendErr error) error {
	var rpcErr *solana.RPCError
	if errors.As(sendErr, &rpcErr) {
		return classifyRPC(sendErr)
	}

	statuses, err := b.rpc.GetSignatureStatuses(ctx, []string{sig})
	if err == nil && len(statuses) > 0 && statuses[0] != nil {
		b.opts.Logger.Printf("[jupiter] send of %s failed (%v) but the cluster has it", sig, sendErr)
		return b.awaitConfirmation(ctx, sig)
	}

	kind := domain.FailureTimeout
	if errors.Is(sendErr, context.Canceled) {
		kind = domain.FailureCancelled
	}
	return &Error{Kind: kind, Signature: sig, Err: fmt.Errorf("send outcome unknown: %w", sendErr)}
}

// quoteRequest sizes the swap. Buys spend amount × expected price in SOL;
// sells spend the token amount in raw units.
func (b *JupiterBackend) quoteRequest(order Order) (jupiter.QuoteRequest, error) {
	in := order.Intent
	req := jupiter.QuoteRequest{SlippageBps: b.opts.SlippageBps}

	switch in.Side {
	case domain.SideBuy:
		req.InputMint = solana.WrappedSOLMint
		req.OutputMint = in.TokenMint
		req.Amount = uint64(math.Round(in.Amount * order.ExpectedPrice * solana.LamportsPerSOL))
	case domain.SideSell:
		req.InputMint = in.TokenMint
		req.OutputMint = solana.WrappedSOLMint
		req.Amount = uint64(math.Round(in.Amount * math.Pow10(int(in.TokenDecimals))))
	default:
		return req, Fail(domain.FailureInvalidInstruction, fmt.Errorf("unknown side %q", in.Side))
	}
	if req.Amount == 0 {
		return req, Fail(domain.FailureInvalidInstruction, errors.New("swap amount rounds to zero"))
	}
	return req, nil
}

func (b *JupiterBackend) awaitConfirmation(ctx context.Context, sig string) error {
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		statuses, err := b.rpc.GetSignatureStatuses(ctx, []string{sig})
		if err != nil {
			b.opts.Logger.Printf("[jupiter] status poll for %s failed: %v", sig, err)
		} else if len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				kind := domain.FailureInvalidInstruction
				if isInsufficientFunds(fmt.Sprint(st.Err), nil) {
					kind = domain.FailureInsufficientFundsOnChain
				}
				return &Error{Kind: kind, Signature: sig, Err: fmt.Errorf("transaction failed: %v", st.Err)}
			}
			if st.Landed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			kind := domain.FailureTimeout
			if errors.Is(ctx.Err(), context.Canceled) {
				kind = domain.FailureCancelled
			}
			return &Error{Kind: kind, Signature: sig, Err: fmt.Errorf("awaiting confirmation: %w", ctx.Err())}
		case <-ticker.C:
		}
	}
}

// fillFrom derives the executed price and amount from the quoted route.
func fillFrom(order Order, q *jupiter.Quote, sig string) Fill {
	scale := math.Pow10(int(order.Intent.TokenDecimals))
	f := Fill{Signature: sig, ExecutedPrice: order.ExpectedPrice, Amount: order.Intent.Amount}

	switch order.Intent.Side {
	case domain.SideBuy:
		sol := float64(q.InAmount) / solana.LamportsPerSOL
		tokens := float64(q.OutAmount) / scale
		if tokens > 0 {
			f.Amount = tokens
			f.ExecutedPrice = sol / tokens
		}
	case domain.SideSell:
		sol := float64(q.OutAmount) / solana.LamportsPerSOL
		tokens := float64(q.InAmount) / scale
		if tokens > 0 {
			f.Amount = tokens
			f.ExecutedPrice = sol / tokens
		}
	}
	return f
}

func classifySwapAPI(err error) error {
	var apiErr *jupiter.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Retryable() {
			return Fail(domain.FailureBackend, err)
		}
		return Fail(domain.FailureInvalidInstruction, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	}
	return Fail(domain.FailureNetwork, err)
}

func classifyRPC(err error) error {
	var rpcErr *solana.RPCError
	switch {
	case errors.As(err, &rpcErr):
		msg := rpcErr.Message + " " + string(rpcErr.Data)
		switch {
		case isInsufficientFunds(msg, nil):
			return Fail(domain.FailureInsufficientFundsOnChain, err)
		case strings.Contains(msg, "InstructionError"), strings.Contains(strings.ToLower(msg), "invalid instruction"):
			return Fail(domain.FailureInvalidInstruction, err)
		}
		return Fail(domain.FailureBackend, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	}
	return Fail(domain.FailureNetwork, err)
}

func isInsufficientFunds(msg string, logs []string) bool {
	if containsInsufficient(msg) {
		return true
	}
	for _, l := range logs {
		if containsInsufficient(l) {
			return true
		}
	}
	return false
}

func containsInsufficient(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "insufficient funds") ||
		strings.Contains(s, "insufficientfunds") ||
		strings.Contains(s, "insufficient lamports")
}
