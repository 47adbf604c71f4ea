package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"solana-pool-sniper/internal/solana"
	"solana-pool-sniper/internal/solana/stub"
)

func setFeed(rpc *stub.RPCClient, address string, data []byte) {
	rpc.Accounts[address] = &solana.AccountInfo{Data: base64.StdEncoding.EncodeToString(data)}
}

func TestParsePythPrice(t *testing.T) {
	data := EncodePythPrice(15012345678, 1234567, -8, 1700000000)

	p, err := ParsePythPrice(data)
	if err != nil {
		t.Fatalf("ParsePythPrice: %v", err)
	}
	if math.Abs(p.Price-150.12345678) > 1e-9 {
		t.Errorf("price: got %v", p.Price)
	}
	if math.Abs(p.Confidence-0.01234567) > 1e-12 {
		t.Errorf("confidence: got %v", p.Confidence)
	}
	if p.Timestamp.Unix() != 1700000000 {
		t.Errorf("timestamp: got %v", p.Timestamp)
	}
	if p.Status != PythStatusTrading {
		t.Errorf("status: got %d", p.Status)
	}
}

func TestParsePythPrice_Malformed(t *testing.T) {
	if _, err := ParsePythPrice(make([]byte, 10)); !errors.Is(err, ErrMalformedPriceAccount) {
		t.Errorf("short: expected ErrMalformedPriceAccount, got %v", err)
	}
	if _, err := ParsePythPrice(make([]byte, 300)); !errors.Is(err, ErrMalformedPriceAccount) {
		t.Errorf("bad magic: expected ErrMalformedPriceAccount, got %v", err)
	}
}

func TestAdapter_Fetch(t *testing.T) {
	rpc := stub.NewRPCClient()
	setFeed(rpc, "feedSOL", EncodePythPrice(15000000000, 5000000, -8, 1700000000))
	adapter := NewAdapter(rpc, map[string]string{"SOL": "feedSOL"}, 0)

	q, err := adapter.Fetch(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if math.Abs(q.Price-150) > 1e-9 || q.Token != "SOL" {
		t.Errorf("unexpected quote: %+v", q)
	}
	if !q.Valid() {
		t.Error("quote should be valid")
	}
}

func TestAdapter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		setup   func(rpc *stub.RPCClient)
		wantErr error
	}{
		{
			name:    "no feed",
			token:   "BONK",
			wantErr: ErrNoFeedConfigured,
		},
		{
			name:    "account missing",
			token:   "SOL",
			wantErr: ErrFeedUnavailable,
		},
		{
			name:  "rpc error",
			token: "SOL",
			setup: func(rpc *stub.RPCClient) {
				rpc.Err = errors.New("connection refused")
			},
			wantErr: ErrFeedUnavailable,
		},
		{
			name:  "not a price account",
			token: "SOL",
			setup: func(rpc *stub.RPCClient) {
				setFeed(rpc, "feedSOL", make([]byte, 300))
			},
			wantErr: ErrFeedUnavailable,
		},
		{
			name:  "zero price",
			token: "SOL",
			setup: func(rpc *stub.RPCClient) {
				setFeed(rpc, "feedSOL", EncodePythPrice(0, 0, -8, 1))
			},
			wantErr: ErrZeroPrice,
		},
		{
			name:  "negative price",
			token: "SOL",
			setup: func(rpc *stub.RPCClient) {
				setFeed(rpc, "feedSOL", EncodePythPrice(-5, 0, 0, 1))
			},
			wantErr: ErrZeroPrice,
		},
		{
			// conf 2 > 100 × 0.01
			name:  "low confidence",
			token: "SOL",
			setup: func(rpc *stub.RPCClient) {
				setFeed(rpc, "feedSOL", EncodePythPrice(100, 2, 0, 1))
			},
			wantErr: ErrLowConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := stub.NewRPCClient()
			if tt.setup != nil {
				tt.setup(rpc)
			}
			adapter := NewAdapter(rpc, map[string]string{"SOL": "feedSOL"}, 0)

			_, err := adapter.Fetch(context.Background(), tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAdapter_ConfidenceBoundaryInclusive(t *testing.T) {
	rpc := stub.NewRPCClient()
	// conf exactly 1% of price is accepted
	setFeed(rpc, "feedSOL", EncodePythPrice(100, 1, 0, 1))
	adapter := NewAdapter(rpc, map[string]string{"SOL": "feedSOL"}, 0)

	if _, err := adapter.Fetch(context.Background(), "SOL"); err != nil {
		t.Errorf("expected boundary confidence to pass, got %v", err)
	}
}

func TestAdapter_SingleReadNoRetry(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Err = errors.New("timeout")
	adapter := NewAdapter(rpc, DefaultFeeds, 0)

	_, _ = adapter.Fetch(context.Background(), "SOL")
	if n := rpc.CallCount("getAccountInfo"); n != 1 {
		t.Errorf("expected exactly 1 read, got %d", n)
	}
}

func TestRPCAdapter_OneRequestPerFetch(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := NewRPCAdapter(server.URL, DefaultFeeds, 0)

	_, err := adapter.Fetch(context.Background(), SOLSymbol)
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Errorf("expected ErrFeedUnavailable, got %v", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("expected 1 getAccountInfo request, got %d", n)
	}
}

func TestAdapter_ResolvesMintToSymbol(t *testing.T) {
	rpc := stub.NewRPCClient()
	setFeed(rpc, DefaultFeeds[SOLSymbol], EncodePythPrice(15000000000, 5000000, -8, 1700000000))
	adapter := NewAdapter(rpc, DefaultFeeds, 0, WithMintSymbols(DefaultMintSymbols))

	q, err := adapter.Fetch(context.Background(), solana.WrappedSOLMint)
	if err != nil {
		t.Fatalf("Fetch by mint: %v", err)
	}
	if q.Token != SOLSymbol {
		t.Errorf("quote token = %q, want %q", q.Token, SOLSymbol)
	}
	if !adapter.HasFeed(solana.WrappedSOLMint) || !adapter.HasFeed(SOLSymbol) {
		t.Error("mint and symbol should both resolve")
	}

	// A mapped mint whose symbol has no feed is still unconfigured.
	adapter = NewAdapter(rpc, DefaultFeeds, 0, WithMintSymbols(map[string]string{"MintX": "BONK"}))
	if _, err := adapter.Fetch(context.Background(), "MintX"); !errors.Is(err, ErrNoFeedConfigured) {
		t.Errorf("expected ErrNoFeedConfigured, got %v", err)
	}
}

func TestSOLQuoter_Fetch(t *testing.T) {
	rpc := stub.NewRPCClient()
	setFeed(rpc, "feedSOL", EncodePythPrice(100, 0, 0, 1700000100))   // $100
	setFeed(rpc, "feedTKN", EncodePythPrice(50, 0, -2, 1700000000))   // $0.50
	setFeed(rpc, "feedWIDE", EncodePythPrice(100, 1, -2, 1700000000)) // $1.00 ± 1%
	usd := NewAdapter(rpc, map[string]string{"SOL": "feedSOL", "TKN": "feedTKN", "WIDE": "feedWIDE"}, 0,
		WithMintSymbols(map[string]string{"MintTKN": "TKN"}))
	quoter := NewSOLQuoter(usd, 0)
	ctx := context.Background()

	q, err := quoter.Fetch(ctx, "MintTKN")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if math.Abs(q.Price-0.005) > 1e-12 || q.Token != "TKN" {
		t.Errorf("unexpected quote: %+v", q)
	}
	if q.SourceTimestamp.Unix() != 1700000000 {
		t.Errorf("timestamp should be the older leg, got %v", q.SourceTimestamp)
	}

	sol, err := quoter.Fetch(ctx, SOLSymbol)
	if err != nil {
		t.Fatalf("Fetch SOL: %v", err)
	}
	if sol.Price != 1 || rpc.CallCount("getAccountInfo") != 3 {
		t.Errorf("SOL in SOL: price=%v reads=%d", sol.Price, rpc.CallCount("getAccountInfo"))
	}

	// WIDE passes on its own but not once SOL's leg is added.
	setFeed(rpc, "feedSOL", EncodePythPrice(100, 1, 0, 1700000100))
	if _, err := quoter.Fetch(ctx, "WIDE"); !errors.Is(err, ErrLowConfidence) {
		t.Errorf("expected ErrLowConfidence for combined width, got %v", err)
	}
}

func TestSOLQuoter_PropagatesLegErrors(t *testing.T) {
	rpc := stub.NewRPCClient()
	setFeed(rpc, "feedTKN", EncodePythPrice(50, 0, -2, 1))
	quoter := NewSOLQuoter(NewAdapter(rpc, map[string]string{"TKN": "feedTKN", "SOL": "feedSOL"}, 0), 0)

	if _, err := quoter.Fetch(context.Background(), "TKN"); !errors.Is(err, ErrFeedUnavailable) {
		t.Errorf("missing SOL leg: expected ErrFeedUnavailable, got %v", err)
	}
	if _, err := quoter.Fetch(context.Background(), "BONK"); !errors.Is(err, ErrNoFeedConfigured) {
		t.Errorf("expected ErrNoFeedConfigured, got %v", err)
	}
}
