package market

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"solana-pool-sniper/internal/discovery"
	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/solana"
)

// RaydiumPoolAccountSize is the data size of a Raydium pool account.
const RaydiumPoolAccountSize = 324

// Source derives MarketMetrics for a mint from chain state.
type Source interface {
	Metrics(ctx context.Context, mint string) (domain.MarketMetrics, error)
}

// RPCSource reads holders, decimals and pooled liquidity over RPC.
type RPCSource struct {
	rpc       solana.RPCClient
	programID string
	logger    *log.Logger
}

// NewRPCSource creates a metrics source scanning pools of programID.
func NewRPCSource(rpc solana.RPCClient, programID string, logger *log.Logger) *RPCSource {
	if programID == "" {
		programID = solana.RaydiumAMMProgramID
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RPCSource{rpc: rpc, programID: programID, logger: logger}
}

// Metrics fetches the three inputs concurrently. Any failure fails the whole read.
func (s *RPCSource) Metrics(ctx context.Context, mint string) (domain.MarketMetrics, error) {
	var (
		holders   uint32
		decimals  uint8
		liquidity uint64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		accounts, err := s.rpc.GetTokenLargestAccounts(gctx, mint)
		if err != nil {
			return fmt.Errorf("largest accounts: %w", err)
		}
		holders = uint32(len(accounts))
		return nil
	})

	g.Go(func() error {
		supply, err := s.rpc.GetTokenSupply(gctx, mint)
		if err != nil {
			return fmt.Errorf("token supply: %w", err)
		}
		decimals = supply.Decimals
		return nil
	})

	g.Go(func() error {
		total, err := s.poolLiquidity(gctx, mint)
		if err != nil {
			return fmt.Errorf("pool liquidity: %w", err)
		}
		liquidity = total
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.MarketMetrics{}, err
	}

	return domain.MarketMetrics{
		HoldersCount:           holders,
		TotalLiquidityLamports: liquidity,
		TokenDecimals:          decimals,
	}, nil
}

// poolLiquidity sums BaseTokenAmount over every pool whose mint matches.
// Undecodable pool accounts are skipped.
func (s *RPCSource) poolLiquidity(ctx context.Context, mint string) (uint64, error) {
	pools, err := s.rpc.GetProgramAccounts(ctx, s.programID, []solana.AccountFilter{
		{DataSize: RaydiumPoolAccountSize},
		{Memcmp: &solana.MemcmpFilter{Offset: 0, Bytes: mint}},
	})
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, p := range pools {
		data, err := base64.StdEncoding.DecodeString(p.Account.Data)
		if err != nil {
			s.logger.Printf("[market] skip pool %s: %v", p.Pubkey, err)
			continue
		}
		state, err := discovery.DecodePoolState(data)
		if err != nil {
			s.logger.Printf("[market] skip pool %s: %v", p.Pubkey, err)
			continue
		}
		if state.TokenMint != mint {
			continue
		}
		total += state.BaseTokenAmount
	}
	return total, nil
}
