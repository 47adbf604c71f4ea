package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"solana-pool-sniper/internal/config"
	"solana-pool-sniper/internal/decision"
	"solana-pool-sniper/internal/discovery"
	"solana-pool-sniper/internal/domain"
	"solana-pool-sniper/internal/execution"
	"solana-pool-sniper/internal/ingestion"
	"solana-pool-sniper/internal/jupiter"
	"solana-pool-sniper/internal/ledger"
	"solana-pool-sniper/internal/market"
	"solana-pool-sniper/internal/notify"
	"solana-pool-sniper/internal/oracle"
	"solana-pool-sniper/internal/orchestrator"
	"solana-pool-sniper/internal/solana"
	"solana-pool-sniper/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	var (
		dryRun    bool
		noMigrate bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch pool accounts and trade admitted pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Trading.DryRun = true
			}
			return run(cfg, !noMigrate)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate pools but never submit trades")
	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "Skip schema migrations on startup")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSigner(cfg config.WalletConfig) (*solana.Keypair, error) {
	switch {
	case cfg.Keypair != "":
		return solana.ParseKeypair(cfg.Keypair)
	case cfg.KeypairPath != "":
		return solana.LoadKeypair(cfg.KeypairPath)
	default:
		return nil, errors.New("wallet: set keypair_path or SNIPER_WALLET_KEYPAIR")
	}
}

func run(cfg *config.Config, migrate bool) error {
	logger := log.New(os.Stdout, "[sniper] ", log.LstdFlags|log.Lshortfile)

	signer, err := loadSigner(cfg.Wallet)
	if err != nil {
		return err
	}
	logger.Printf("Wallet %s for user %s", signer.PublicKey(), cfg.Wallet.UserID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg.Storage, migrate, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := registerWallet(ctx, st.wallets, cfg.Wallet, signer); err != nil {
		return err
	}

	senders := []notify.Sender{notify.NewLogSender(log.New(os.Stdout, "[alert] ", log.LstdFlags))}
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	notifier := notify.NewNotifier(log.New(os.Stdout, "[notify] ", log.LstdFlags), senders...)

	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL)
	// Price reads get their own client: a stale retry is worse than a failure.
	usd := oracle.NewRPCAdapter(cfg.Solana.RPCURL, cfg.Oracle.Feeds, cfg.Oracle.MaxConfidenceRatio, oracle.WithMintSymbols(cfg.Oracle.Mints))
	prices := oracle.NewSOLQuoter(usd, cfg.Oracle.MaxConfidenceRatio)

	backend := execution.NewJupiterBackend(jupiter.NewClient(cfg.Jupiter.BaseURL), rpc, signer, execution.JupiterOptions{
		SlippageBps:    cfg.Jupiter.SlippageBps,
		MaxPriceImpact: cfg.Jupiter.MaxPriceImpact,
		Logger:         log.New(os.Stdout, "[jupiter] ", log.LstdFlags),
	})

	book := ledger.New(st.ledger, ledger.Options{Logger: log.New(os.Stdout, "[ledger] ", log.LstdFlags)})

	coordinator := execution.NewCoordinator(execution.Deps{
		Backend:  backend,
		Balances: rpc,
		Prices:   prices,
		Ledger:   book,
		Wallets:  st.wallets,
	}, cfg.ExecutionConfig(), execution.Options{
		Logger: log.New(os.Stdout, "[execution] ", log.LstdFlags),
		Locks:  st.locks,
		Audit:  st.audit,
		Alert:  notifier,
	})

	orch := orchestrator.New(orchestrator.Options{
		Tracker:             discovery.NewPoolStateTracker(st.watermarks),
		Market:              market.NewRPCSource(rpc, cfg.Solana.RaydiumProgramID, log.New(os.Stdout, "[market] ", log.LstdFlags)),
		Prices:              prices,
		Evaluator:           decision.NewEvaluator(cfg.DecisionPolicy(), time.Now),
		Coordinator:         coordinator,
		Audit:               st.audit,
		UserID:              cfg.Wallet.UserID,
		TradeAmountSOL:      cfg.Trading.TradeAmountSOL,
		MaxPriceImpact:      cfg.Jupiter.MaxPriceImpact,
		RequireConfirmation: cfg.Trading.RequireConfirmation,
		DryRun:              cfg.Trading.DryRun,
		Logger:              log.New(os.Stdout, "", log.LstdFlags),
		Verbose:             verbose,
	})

	ws, err := solana.NewWSClient(ctx, cfg.Solana.WSURL, nil)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source: ingestion.NewWSPoolEventSource(ws, ingestion.WSPoolSourceOptions{
			ProgramID:  cfg.Solana.RaydiumProgramID,
			Filters:    []solana.AccountFilter{{DataSize: market.RaydiumPoolAccountSize}},
			Commitment: cfg.Solana.Commitment,
			Logger:     log.New(os.Stdout, "[ingestion] ", log.LstdFlags),
		}),
		Handler:         orch,
		Concurrency:     cfg.Ingestion.Concurrency,
		DispatchTimeout: cfg.Ingestion.DispatchTimeout.Duration,
		EventTimeout:    cfg.Ingestion.EventTimeout.Duration,
		Logger:          log.New(os.Stdout, "[ingestion] ", log.LstdFlags),
	})

	done := make(chan struct{})
	defer close(done)
	go handleSignals(logger, cancel, done)

	servers := []*http.Server{{Addr: cfg.Server.MetricsAddr, Handler: newMetricsMux()}}
	if cfg.Server.ConfirmAddr != "" {
		servers = append(servers, &http.Server{Addr: cfg.Server.ConfirmAddr, Handler: newConfirmMux(coordinator, cfg.Server.ConfirmToken)})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Printf("Starting HTTP server on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		mode := "live"
		if cfg.Trading.DryRun {
			mode = "dry-run"
		}
		logger.Printf("Watching program %s (%s)", cfg.Solana.RaydiumProgramID, mode)
		return runner.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Println("Shutdown complete")
	return nil
}

// registerWallet adds the configured wallet to the registry. An existing
// entry must carry the same public key.
func registerWallet(ctx context.Context, wallets storage.WalletStore, cfg config.WalletConfig, signer *solana.Keypair) error {
	err := wallets.Insert(ctx, &domain.Wallet{
		UserID:    cfg.UserID,
		PublicKey: signer.PublicKey(),
		Label:     cfg.Label,
		CreatedAt: time.Now().UTC(),
	})
	if err == nil || !errors.Is(err, storage.ErrDuplicateKey) {
		return err
	}

	existing, err := wallets.GetByUser(ctx, cfg.UserID)
	if err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	if existing.PublicKey != signer.PublicKey() {
		return fmt.Errorf("wallet: user %s is registered to %s, keypair is %s", cfg.UserID, existing.PublicKey, signer.PublicKey())
	}
	return nil
}

// handleSignals cancels on the first SIGINT/SIGTERM and exits on a second
// signal or when shutdown exceeds shutdownTimeout.
func handleSignals(logger *log.Logger, cancel context.CancelFunc, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	case <-done:
		return
	}

	select {
	case sig := <-sigCh:
		logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
		os.Exit(1)
	case <-time.After(shutdownTimeout):
		logger.Printf("Graceful shutdown timed out after %s, forcing exit", shutdownTimeout)
		os.Exit(1)
	case <-done:
	}
}
