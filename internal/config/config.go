// Package config loads the sniper's configuration from defaults, a TOML
// file, a .env file and SNIPER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"solana-pool-sniper/internal/decision"
	"solana-pool-sniper/internal/execution"
	"solana-pool-sniper/internal/oracle"
	"solana-pool-sniper/internal/solana"
)

// Config is the complete, validated process configuration.
type Config struct {
	Solana    SolanaConfig    `toml:"solana"`
	Jupiter   JupiterConfig   `toml:"jupiter"`
	Wallet    WalletConfig    `toml:"wallet"`
	Policy    PolicyConfig    `toml:"policy"`
	Oracle    OracleConfig    `toml:"oracle"`
	Trading   TradingConfig   `toml:"trading"`
	Ingestion IngestionConfig `toml:"ingestion"`
	Storage   StorageConfig   `toml:"storage"`
	Notify    NotifyConfig    `toml:"notify"`
	Server    ServerConfig    `toml:"server"`
}

// SolanaConfig holds RPC and WebSocket endpoints.
type SolanaConfig struct {
	RPCURL           string `toml:"rpc_url"`
	WSURL            string `toml:"ws_url"`
	RaydiumProgramID string `toml:"raydium_program_id"`
	Commitment       string `toml:"commitment"`
}

// JupiterConfig holds swap aggregator settings.
type JupiterConfig struct {
	BaseURL        string  `toml:"base_url"`
	SlippageBps    int     `toml:"slippage_bps"`
	MaxPriceImpact float64 `toml:"max_price_impact"`
}

// WalletConfig identifies the trading user and their signing key.
// The key itself is never read from TOML; set SNIPER_WALLET_KEYPAIR or keypair_path.
type WalletConfig struct {
	UserID      string `toml:"user_id"`
	Label       string `toml:"label"`
	KeypairPath string `toml:"keypair_path"`
	Keypair     string `toml:"-"`
}

// PolicyConfig holds the admission thresholds.
type PolicyConfig struct {
	MinHolders          uint32   `toml:"min_holders"`
	MinimumLiquiditySOL float64  `toml:"minimum_liquidity_sol"`
	MaxTokenDecimals    uint8    `toml:"max_token_decimals"`
	NewPoolWindow       duration `toml:"new_pool_window"`
}

// OracleConfig holds price feed settings. Feeds maps a symbol to its Pyth
// USD price account and Mints maps a token mint to its symbol. Prices are
// converted to SOL per token through the SOL feed.
type OracleConfig struct {
	MaxConfidenceRatio float64           `toml:"max_confidence_ratio"`
	Feeds              map[string]string `toml:"feeds"`
	Mints              map[string]string `toml:"mints"`
}

// TradingConfig holds sizing and execution policy.
type TradingConfig struct {
	TradeAmountSOL      float64  `toml:"trade_amount_sol"`
	ReserveFloorSOL     float64  `toml:"reserve_floor_sol"`
	MaxRetries          int      `toml:"max_retries"`
	Timeout             duration `toml:"timeout"`
	BackoffBase         duration `toml:"backoff_base"`
	RequireConfirmation bool     `toml:"require_confirmation"`
	ConfirmationTimeout duration `toml:"confirmation_timeout"`
	DryRun              bool     `toml:"dry_run"`
}

// IngestionConfig bounds notification dispatch.
type IngestionConfig struct {
	Concurrency     int      `toml:"concurrency"`
	DispatchTimeout duration `toml:"dispatch_timeout"`
	EventTimeout    duration `toml:"event_timeout"`
}

// StorageConfig selects persistence backends. Empty DSNs fall back to in-memory stores.
type StorageConfig struct {
	PostgresDSN   string `toml:"postgres_dsn"`
	ClickHouseDSN string `toml:"clickhouse_dsn"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
}

// ServerConfig holds the metrics/health listener and the confirmation
// listener. ConfirmToken is required unless ConfirmAddr is loopback.
type ServerConfig struct {
	MetricsAddr  string `toml:"metrics_addr"`
	ConfirmAddr  string `toml:"confirm_addr"`
	ConfirmToken string `toml:"-"`
}

// duration decodes TOML strings like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	feeds := make(map[string]string, len(oracle.DefaultFeeds))
	for k, v := range oracle.DefaultFeeds {
		feeds[k] = v
	}
	mints := make(map[string]string, len(oracle.DefaultMintSymbols))
	for k, v := range oracle.DefaultMintSymbols {
		mints[k] = v
	}
	return Config{
		Solana: SolanaConfig{
			RPCURL:           "https://api.mainnet-beta.solana.com",
			WSURL:            "wss://api.mainnet-beta.solana.com",
			RaydiumProgramID: solana.RaydiumAMMProgramID,
			Commitment:       "confirmed",
		},
		Jupiter: JupiterConfig{
			BaseURL:        "https://quote-api.jup.ag/v6",
			SlippageBps:    100,
			MaxPriceImpact: 0.05,
		},
		Wallet: WalletConfig{
			Label: "default",
		},
		Policy: PolicyConfig{
			MinHolders:          10,
			MinimumLiquiditySOL: 10,
			MaxTokenDecimals:    9,
			NewPoolWindow:       duration{time.Hour},
		},
		Oracle: OracleConfig{
			MaxConfidenceRatio: 0.01,
			Feeds:              feeds,
			Mints:              mints,
		},
		Trading: TradingConfig{
			TradeAmountSOL:      0.5,
			ReserveFloorSOL:     0.1,
			MaxRetries:          3,
			Timeout:             duration{30 * time.Second},
			BackoffBase:         duration{500 * time.Millisecond},
			ConfirmationTimeout: duration{time.Minute},
		},
		Ingestion: IngestionConfig{
			Concurrency:     16,
			DispatchTimeout: duration{2 * time.Second},
			EventTimeout:    duration{2 * time.Minute},
		},
		Server: ServerConfig{
			MetricsAddr: ":9090",
			ConfirmAddr: "127.0.0.1:9091",
		},
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if c.Solana.WSURL == "" {
		errs = append(errs, "solana: ws_url must not be empty")
	}
	if _, err := solana.DecodePublicKey(c.Solana.RaydiumProgramID); err != nil {
		errs = append(errs, fmt.Sprintf("solana: raydium_program_id: %v", err))
	}

	if c.Jupiter.BaseURL == "" {
		errs = append(errs, "jupiter: base_url must not be empty")
	}
	if c.Jupiter.SlippageBps <= 0 || c.Jupiter.SlippageBps > 10000 {
		errs = append(errs, fmt.Sprintf("jupiter: slippage_bps must be 1-10000, got %d", c.Jupiter.SlippageBps))
	}
	if c.Jupiter.MaxPriceImpact <= 0 || c.Jupiter.MaxPriceImpact >= 1 {
		errs = append(errs, fmt.Sprintf("jupiter: max_price_impact must be in (0, 1), got %v", c.Jupiter.MaxPriceImpact))
	}

	if c.Wallet.UserID == "" {
		errs = append(errs, "wallet: user_id must not be empty")
	}

	if c.Policy.MinimumLiquiditySOL < 0 {
		errs = append(errs, "policy: minimum_liquidity_sol must be >= 0")
	}
	if c.Policy.NewPoolWindow.Duration <= 0 {
		errs = append(errs, "policy: new_pool_window must be positive")
	}

	if c.Oracle.MaxConfidenceRatio <= 0 {
		errs = append(errs, "oracle: max_confidence_ratio must be positive")
	}
	for token, feed := range c.Oracle.Feeds {
		if _, err := solana.DecodePublicKey(feed); err != nil {
			errs = append(errs, fmt.Sprintf("oracle: feed for %s: %v", token, err))
		}
	}
	if _, ok := c.Oracle.Feeds[oracle.SOLSymbol]; !ok {
		errs = append(errs, fmt.Sprintf("oracle: feeds must include %s to quote prices in SOL", oracle.SOLSymbol))
	}
	for mint, symbol := range c.Oracle.Mints {
		if _, err := solana.DecodePublicKey(mint); err != nil {
			errs = append(errs, fmt.Sprintf("oracle: mint %s: %v", mint, err))
		}
		if _, ok := c.Oracle.Feeds[symbol]; !ok {
			errs = append(errs, fmt.Sprintf("oracle: mint %s maps to %s, which has no feed", mint, symbol))
		}
	}

	if c.Trading.TradeAmountSOL <= 0 {
		errs = append(errs, "trading: trade_amount_sol must be positive")
	}
	if c.Trading.ReserveFloorSOL < 0 {
		errs = append(errs, "trading: reserve_floor_sol must be >= 0")
	}
	if c.Trading.MaxRetries < 0 {
		errs = append(errs, "trading: max_retries must be >= 0")
	}
	if c.Trading.Timeout.Duration <= 0 {
		errs = append(errs, "trading: timeout must be positive")
	}
	if c.Trading.BackoffBase.Duration <= 0 {
		errs = append(errs, "trading: backoff_base must be positive")
	}
	if c.Trading.RequireConfirmation && c.Trading.ConfirmationTimeout.Duration <= 0 {
		errs = append(errs, "trading: confirmation_timeout must be positive when require_confirmation is set")
	}

	if c.Ingestion.Concurrency < 1 {
		errs = append(errs, "ingestion: concurrency must be >= 1")
	}
	if c.Ingestion.DispatchTimeout.Duration <= 0 {
		errs = append(errs, "ingestion: dispatch_timeout must be positive")
	}
	// An event must outlive a parked confirmation and the whole retry budget.
	if need := c.Trading.Timeout.Duration + c.Trading.ConfirmationTimeout.Duration; c.Ingestion.EventTimeout.Duration < need {
		errs = append(errs, fmt.Sprintf("ingestion: event_timeout %v must be at least trading timeout + confirmation_timeout (%v)", c.Ingestion.EventTimeout.Duration, need))
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if c.Server.ConfirmAddr != "" && c.Server.ConfirmToken == "" && !isLoopback(c.Server.ConfirmAddr) {
		errs = append(errs, fmt.Sprintf("server: confirm_addr %s is not loopback; set SNIPER_SERVER_CONFIRM_TOKEN", c.Server.ConfirmAddr))
	}

	if len(errs) > 0 {
		return errors.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// isLoopback reports whether addr binds only to a loopback interface.
// An empty host binds every interface.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// DecisionPolicy returns the admission thresholds.
func (c *Config) DecisionPolicy() decision.Policy {
	return decision.Policy{
		MinHolders:          c.Policy.MinHolders,
		MinimumLiquiditySOL: c.Policy.MinimumLiquiditySOL,
		MaxTokenDecimals:    c.Policy.MaxTokenDecimals,
		NewPoolWindow:       c.Policy.NewPoolWindow.Duration,
	}
}

// ExecutionConfig returns the coordinator policy.
func (c *Config) ExecutionConfig() execution.Config {
	cfg := execution.DefaultConfig()
	cfg.MaxRetries = c.Trading.MaxRetries
	cfg.BackoffBase = c.Trading.BackoffBase.Duration
	cfg.Timeout = c.Trading.Timeout.Duration
	cfg.ReserveFloorSOL = c.Trading.ReserveFloorSOL
	cfg.ConfirmationTimeout = c.Trading.ConfirmationTimeout.Duration
	return cfg
}
