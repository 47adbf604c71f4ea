package execution

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"math"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/jupiter"
	"solana-pool-sniper/internal/solana"
	"solana-pool-sniper/internal/solana/stub"
)

type fakeSwapAPI struct {
	quote         *jupiter.Quote
	quoteErr      error
	swapErr       error
	lastReq       jupiter.QuoteRequest
	payerOverride string // build the transaction for this payer instead
}

func (f *fakeSwapAPI) Quote(_ context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error) {
	f.lastReq = req
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

// SwapTransaction returns an unsigned transaction paid for by user. It is
// deterministic, so signing it twice yields the same signature.
func (f *fakeSwapAPI) SwapTransaction(_ context.Context, _ *jupiter.Quote, user string) (string, error) {
	if f.swapErr != nil {
		return "", f.swapErr
	}
	if f.payerOverride != "" {
		user = f.payerOverride
	}
	payer, err := solanago.PublicKeyFromBase58(user)
	if err != nil {
		return "", err
	}
	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{system.NewTransferInstruction(1, payer, payer).Build()},
		solanago.Hash{9},
		solanago.TransactionPayer(payer),
	)
	if err != nil {
		return "", err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func testSigner() *solana.Keypair {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	kp, _ := solana.NewKeypair(ed25519.NewKeyFromSeed(seed))
	return kp
}

func newTestBackend(t *testing.T, api SwapAPI, rpc ChainRPC) *JupiterBackend {
	t.Helper()
	return NewJupiterBackend(api, rpc, testSigner(), JupiterOptions{
		PollInterval: time.Millisecond,
		Logger:       log.New(io.Discard, "", 0),
	})
}

func buyOrder() Order {
	return Order{
		Intent: domain.TradeIntent{
			RequestID:     "req",
			UserID:        "user1",
			TokenMint:     "MintAAA",
			Side:          domain.SideBuy,
			Amount:        50,
			TokenDecimals: 6,
		},
		Payer:         testSigner().PublicKey(),
		ExpectedPrice: 0.01,
	}
}

func goodQuote() *jupiter.Quote {
	return &jupiter.Quote{InAmount: 500_000_000, OutAmount: 50_000_000, PriceImpactPct: 0.01}
}

func TestJupiterBackend_BuySettles(t *testing.T) {
	api := &fakeSwapAPI{quote: goodQuote()}
	rpc := stub.NewRPCClient()
	rpc.Statuses["sig1"] = &solana.SignatureStatus{ConfirmationStatus: "confirmed"}

	fill, err := newTestBackend(t, api, rpc).Submit(context.Background(), buyOrder())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if api.lastReq.InputMint != solana.WrappedSOLMint || api.lastReq.OutputMint != "MintAAA" {
		t.Errorf("unexpected route: %+v", api.lastReq)
	}
	if api.lastReq.Amount != 500_000_000 || api.lastReq.SlippageBps != 100 {
		t.Errorf("unexpected sizing: %+v", api.lastReq)
	}
	if fill.Signature != "sig1" || fill.Amount != 50 || math.Abs(fill.ExecutedPrice-0.01) > 1e-12 {
		t.Errorf("unexpected fill: %+v", fill)
	}
	if rpc.CallCount("simulateTransaction") != 1 || len(rpc.Sent) != 1 {
		t.Errorf("expected one simulate and one send")
	}

	tx, err := solanago.TransactionFromBase64(rpc.Sent[0])
	if err != nil {
		t.Fatalf("decode sent transaction: %v", err)
	}
	if len(tx.Signatures) != 1 || tx.Signatures[0] == (solanago.Signature{}) {
		t.Error("sent transaction does not carry a signature")
	}
}

func TestJupiterBackend_SellSizesInTokenUnits(t *testing.T) {
	api := &fakeSwapAPI{quote: &jupiter.Quote{InAmount: 2_500_000, OutAmount: 30_000_000}}
	rpc := stub.NewRPCClient()
	rpc.Statuses["sig1"] = &solana.SignatureStatus{ConfirmationStatus: "finalized"}

	order := buyOrder()
	order.Intent.Side = domain.SideSell
	order.Intent.Amount = 2.5

	fill, err := newTestBackend(t, api, rpc).Submit(context.Background(), order)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if api.lastReq.InputMint != "MintAAA" || api.lastReq.Amount != 2_500_000 {
		t.Errorf("unexpected sell request: %+v", api.lastReq)
	}
	if math.Abs(fill.ExecutedPrice-0.012) > 1e-12 {
		t.Errorf("executed price = %v, want 0.012", fill.ExecutedPrice)
	}
}

func TestJupiterBackend_FailureClassification(t *testing.T) {
	tests := []struct {
		name  string
		setup func(api *fakeSwapAPI, rpc *stub.RPCClient)
		want  domain.FailureKind
	}{
		{
			name:  "price impact",
			setup: func(api *fakeSwapAPI, _ *stub.RPCClient) { api.quote.PriceImpactPct = 0.2 },
			want:  domain.FailurePriceImpactTooHigh,
		},
		{
			name: "no route",
			setup: func(api *fakeSwapAPI, _ *stub.RPCClient) {
				api.quoteErr = &jupiter.APIError{Status: 400, ErrorCode: "COULD_NOT_FIND_ANY_ROUTE"}
			},
			want: domain.FailureInvalidInstruction,
		},
		{
			name:  "swap api 503",
			setup: func(api *fakeSwapAPI, _ *stub.RPCClient) { api.swapErr = &jupiter.APIError{Status: 503} },
			want:  domain.FailureBackend,
		},
		{
			name:  "swap api unreachable",
			setup: func(api *fakeSwapAPI, _ *stub.RPCClient) { api.quoteErr = errors.New("dial tcp: connection refused") },
			want:  domain.FailureNetwork,
		},
		{
			name: "simulation error",
			setup: func(_ *fakeSwapAPI, rpc *stub.RPCClient) {
				rpc.Simulation = &solana.SimulationResult{Err: map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}}
			},
			want: domain.FailureSimulationFailed,
		},
		{
			name: "simulation insufficient funds",
			setup: func(_ *fakeSwapAPI, rpc *stub.RPCClient) {
				rpc.Simulation = &solana.SimulationResult{
					Err:  map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 1}}},
					Logs: []string{"Program log: Error: insufficient funds"},
				}
			},
			want: domain.FailureInsufficientFundsOnChain,
		},
		{
			name: "send rpc insufficient funds",
			setup: func(_ *fakeSwapAPI, rpc *stub.RPCClient) {
				rpc.SendErr = &solana.RPCError{Code: -32002, Message: "Transaction simulation failed: Attempt to debit an account but found no record of a prior credit. insufficient funds for fee"}
			},
			want: domain.FailureInsufficientFundsOnChain,
		},
		{
			name: "send rpc blockhash",
			setup: func(_ *fakeSwapAPI, rpc *stub.RPCClient) {
				rpc.SendErr = &solana.RPCError{Code: -32002, Message: "Blockhash not found"}
			},
			want: domain.FailureBackend,
		},
		{
			name:  "send transport, outcome unknown",
			setup: func(_ *fakeSwapAPI, rpc *stub.RPCClient) { rpc.SendErr = errors.New("max retries exceeded") },
			want:  domain.FailureTimeout,
		},
		{
			name: "wallet is not the fee payer",
			setup: func(api *fakeSwapAPI, _ *stub.RPCClient) {
				api.payerOverride = solanago.NewWallet().PublicKey().String()
			},
			want: domain.FailureInvalidInstruction,
		},
		{
			name: "landed with error",
			setup: func(_ *fakeSwapAPI, rpc *stub.RPCClient) {
				rpc.Statuses["sig1"] = &solana.SignatureStatus{
					ConfirmationStatus: "confirmed",
					Err:                map[string]interface{}{"InstructionError": []interface{}{1, "InvalidAccountData"}},
				}
			},
			want: domain.FailureInvalidInstruction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeSwapAPI{quote: goodQuote()}
			rpc := stub.NewRPCClient()
			rpc.Statuses["sig1"] = &solana.SignatureStatus{ConfirmationStatus: "confirmed"}
			tt.setup(api, rpc)

			_, err := newTestBackend(t, api, rpc).Submit(context.Background(), buyOrder())
			if got := KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestJupiterBackend_ConfirmationTimeoutKeepsSignature(t *testing.T) {
	api := &fakeSwapAPI{quote: goodQuote()}
	rpc := stub.NewRPCClient() // no status: never lands

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestBackend(t, api, rpc).Submit(ctx, buyOrder())

	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if be.Kind != domain.FailureTimeout || be.Signature != "sig1" {
		t.Errorf("got kind=%s signature=%q", be.Kind, be.Signature)
	}
}

func TestJupiterBackend_SendTransportErrorIsNeverResigned(t *testing.T) {
	api := &fakeSwapAPI{quote: goodQuote()}
	rpc := stub.NewRPCClient()
	rpc.SendErr = errors.New("connection reset by peer")

	_, err := newTestBackend(t, api, rpc).Submit(context.Background(), buyOrder())

	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if be.Kind != domain.FailureTimeout || be.Signature == "" {
		t.Errorf("got kind=%s signature=%q, want TIMEOUT with the local signature", be.Kind, be.Signature)
	}
	if be.Kind.Retryable() {
		t.Error("an unknown send outcome must not be retryable")
	}
	if rpc.CallCount("getSignatureStatuses") != 1 {
		t.Errorf("expected one status check, got %d", rpc.CallCount("getSignatureStatuses"))
	}
}

func TestJupiterBackend_SendTransportErrorButLanded(t *testing.T) {
	api := &fakeSwapAPI{quote: goodQuote()}
	unsigned, err := api.SwapTransaction(context.Background(), nil, testSigner().PublicKey())
	if err != nil {
		t.Fatalf("SwapTransaction: %v", err)
	}
	_, sig, err := solana.SignSerializedTransaction(unsigned, testSigner())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rpc := stub.NewRPCClient()
	rpc.SendErr = errors.New("EOF")
	rpc.Statuses[sig] = &solana.SignatureStatus{ConfirmationStatus: "confirmed"}

	fill, err := newTestBackend(t, api, rpc).Submit(context.Background(), buyOrder())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if fill.Signature != sig {
		t.Errorf("fill signature = %s, want %s", fill.Signature, sig)
	}
}

func TestJupiterBackend_ZeroSizedOrder(t *testing.T) {
	order := buyOrder()
	order.ExpectedPrice = 0

	_, err := newTestBackend(t, &fakeSwapAPI{quote: goodQuote()}, stub.NewRPCClient()).Submit(context.Background(), order)
	if KindOf(err) != domain.FailureInvalidInstruction {
		t.Errorf("expected invalid instruction, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != domain.FailureNone {
		t.Error("nil should be FailureNone")
	}
	if KindOf(context.DeadlineExceeded) != domain.FailureTimeout {
		t.Error("deadline should be FailureTimeout")
	}
	if KindOf(context.Canceled) != domain.FailureCancelled {
		t.Error("cancel should be FailureCancelled")
	}
	if KindOf(errors.New("x")) != domain.FailureBackend {
		t.Error("unclassified should be FailureBackend")
	}
}
