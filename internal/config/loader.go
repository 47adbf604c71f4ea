package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (optional) onto Defaults, loads .env if
// present and applies SNIPER_* overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Solana.RPCURL, "SNIPER_SOLANA_RPC_URL")
	setStr(&cfg.Solana.WSURL, "SNIPER_SOLANA_WS_URL")
	setStr(&cfg.Solana.RaydiumProgramID, "SNIPER_SOLANA_RAYDIUM_PROGRAM_ID")
	setStr(&cfg.Solana.Commitment, "SNIPER_SOLANA_COMMITMENT")

	setStr(&cfg.Jupiter.BaseURL, "SNIPER_JUPITER_BASE_URL")
	setInt(&cfg.Jupiter.SlippageBps, "SNIPER_JUPITER_SLIPPAGE_BPS")
	setFloat64(&cfg.Jupiter.MaxPriceImpact, "SNIPER_JUPITER_MAX_PRICE_IMPACT")

	setStr(&cfg.Wallet.UserID, "SNIPER_WALLET_USER_ID")
	setStr(&cfg.Wallet.Label, "SNIPER_WALLET_LABEL")
	setStr(&cfg.Wallet.KeypairPath, "SNIPER_WALLET_KEYPAIR_PATH")
	setStr(&cfg.Wallet.Keypair, "SNIPER_WALLET_KEYPAIR")

	setUint32(&cfg.Policy.MinHolders, "SNIPER_POLICY_MIN_HOLDERS")
	setFloat64(&cfg.Policy.MinimumLiquiditySOL, "SNIPER_POLICY_MINIMUM_LIQUIDITY_SOL")
	setUint8(&cfg.Policy.MaxTokenDecimals, "SNIPER_POLICY_MAX_TOKEN_DECIMALS")
	setDuration(&cfg.Policy.NewPoolWindow, "SNIPER_POLICY_NEW_POOL_WINDOW")

	setFloat64(&cfg.Oracle.MaxConfidenceRatio, "SNIPER_ORACLE_MAX_CONFIDENCE_RATIO")

	setFloat64(&cfg.Trading.TradeAmountSOL, "SNIPER_TRADING_TRADE_AMOUNT_SOL")
	setFloat64(&cfg.Trading.ReserveFloorSOL, "SNIPER_TRADING_RESERVE_FLOOR_SOL")
	setInt(&cfg.Trading.MaxRetries, "SNIPER_TRADING_MAX_RETRIES")
	setDuration(&cfg.Trading.Timeout, "SNIPER_TRADING_TIMEOUT")
	setDuration(&cfg.Trading.BackoffBase, "SNIPER_TRADING_BACKOFF_BASE")
	setBool(&cfg.Trading.RequireConfirmation, "SNIPER_TRADING_REQUIRE_CONFIRMATION")
	setDuration(&cfg.Trading.ConfirmationTimeout, "SNIPER_TRADING_CONFIRMATION_TIMEOUT")
	setBool(&cfg.Trading.DryRun, "SNIPER_TRADING_DRY_RUN")

	setInt(&cfg.Ingestion.Concurrency, "SNIPER_INGESTION_CONCURRENCY")
	setDuration(&cfg.Ingestion.DispatchTimeout, "SNIPER_INGESTION_DISPATCH_TIMEOUT")
	setDuration(&cfg.Ingestion.EventTimeout, "SNIPER_INGESTION_EVENT_TIMEOUT")

	setStr(&cfg.Storage.PostgresDSN, "SNIPER_STORAGE_POSTGRES_DSN")
	setStr(&cfg.Storage.ClickHouseDSN, "SNIPER_STORAGE_CLICKHOUSE_DSN")
	setStr(&cfg.Storage.RedisAddr, "SNIPER_STORAGE_REDIS_ADDR")
	setStr(&cfg.Storage.RedisPassword, "SNIPER_STORAGE_REDIS_PASSWORD")
	setInt(&cfg.Storage.RedisDB, "SNIPER_STORAGE_REDIS_DB")

	setStr(&cfg.Notify.TelegramToken, "SNIPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPER_NOTIFY_TELEGRAM_CHAT_ID")

	setStr(&cfg.Server.MetricsAddr, "SNIPER_SERVER_METRICS_ADDR")
	setStr(&cfg.Server.ConfirmAddr, "SNIPER_SERVER_CONFIRM_ADDR")
	setStr(&cfg.Server.ConfirmToken, "SNIPER_SERVER_CONFIRM_TOKEN")
}

// Each setter only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setUint8(dst *uint8, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			*dst = uint8(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
