package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.UserID = "user1"
	return cfg
}

func TestDefaults_MatchTradingConstants(t *testing.T) {
	cfg := Defaults()

	if cfg.Policy.MinHolders != 10 || cfg.Policy.MinimumLiquiditySOL != 10 || cfg.Policy.MaxTokenDecimals != 9 {
		t.Errorf("unexpected policy defaults: %+v", cfg.Policy)
	}
	if cfg.Policy.NewPoolWindow.Duration != time.Hour {
		t.Errorf("new pool window = %s", cfg.Policy.NewPoolWindow)
	}
	if cfg.Trading.MaxRetries != 3 || cfg.Trading.Timeout.Duration != 30*time.Second || cfg.Trading.BackoffBase.Duration != 500*time.Millisecond {
		t.Errorf("unexpected retry defaults: %+v", cfg.Trading)
	}
	if cfg.Jupiter.SlippageBps != 100 || cfg.Jupiter.MaxPriceImpact != 0.05 {
		t.Errorf("unexpected jupiter defaults: %+v", cfg.Jupiter)
	}
	if len(cfg.Oracle.Feeds) != 3 {
		t.Errorf("expected 3 default feeds, got %d", len(cfg.Oracle.Feeds))
	}
	if cfg.Oracle.Mints["So11111111111111111111111111111111111111112"] != "SOL" {
		t.Errorf("wrapped SOL mint not mapped: %v", cfg.Oracle.Mints)
	}
	if cfg.Ingestion.EventTimeout.Duration < cfg.Trading.Timeout.Duration+cfg.Trading.ConfirmationTimeout.Duration {
		t.Errorf("event timeout %s cannot cover a parked confirmation and the retry budget", cfg.Ingestion.EventTimeout)
	}
	if cfg.Server.ConfirmAddr != "127.0.0.1:9091" {
		t.Errorf("confirmation listener must default to loopback, got %q", cfg.Server.ConfirmAddr)
	}
}

func TestDefaults_DoNotShareOracleMaps(t *testing.T) {
	a := Defaults()
	a.Oracle.Mints["H6ARHf6YXhGYeQfUzQNGk6rDNnLBQKrenN712K4AQJEG"] = "BONK"
	if _, ok := Defaults().Oracle.Mints["H6ARHf6YXhGYeQfUzQNGk6rDNnLBQKrenN712K4AQJEG"]; ok {
		t.Error("Defaults leaked a mutation of the mint map")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing user", func(c *Config) { c.Wallet.UserID = "" }, "wallet: user_id"},
		{"bad slippage", func(c *Config) { c.Jupiter.SlippageBps = 0 }, "slippage_bps"},
		{"bad impact", func(c *Config) { c.Jupiter.MaxPriceImpact = 1.5 }, "max_price_impact"},
		{"bad feed", func(c *Config) { c.Oracle.Feeds["BONK"] = "not-a-key" }, "feed for BONK"},
		{"zero trade amount", func(c *Config) { c.Trading.TradeAmountSOL = 0 }, "trade_amount_sol"},
		{"zero concurrency", func(c *Config) { c.Ingestion.Concurrency = 0 }, "concurrency"},
		{"half telegram", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_token"},
		{"bad program", func(c *Config) { c.Solana.RaydiumProgramID = "abc" }, "raydium_program_id"},
		{"no SOL feed", func(c *Config) { delete(c.Oracle.Feeds, "SOL") }, "feeds must include SOL"},
		{"bad mint", func(c *Config) { c.Oracle.Mints["xyz"] = "SOL" }, "mint xyz"},
		{"mint without feed", func(c *Config) { c.Oracle.Mints["H6ARHf6YXhGYeQfUzQNGk6rDNnLBQKrenN712K4AQJEG"] = "BONK" }, "has no feed"},
		{"event shorter than trade", func(c *Config) { c.Ingestion.EventTimeout = duration{45 * time.Second} }, "event_timeout"},
		{"public confirm without token", func(c *Config) { c.Server.ConfirmAddr = ":9091" }, "confirm_addr"},
		{"public confirm with token", func(c *Config) {
			c.Server.ConfirmAddr = "0.0.0.0:9091"
			c.Server.ConfirmToken = "secret"
		}, ""},
		{"localhost confirm", func(c *Config) { c.Server.ConfirmAddr = "localhost:9091" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.UserID = ""
	cfg.Trading.TradeAmountSOL = -1

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "user_id") || !strings.Contains(err.Error(), "trade_amount_sol") {
		t.Fatalf("expected both errors, got %v", err)
	}
}

func TestLoad_TOMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sniper.toml")
	content := `
[wallet]
user_id = "alice"

[policy]
min_holders = 25
new_pool_window = "30m"

[trading]
trade_amount_sol = 1.25
timeout = "10s"

[oracle.feeds]
BONK = "H6ARHf6YXhGYeQfUzQNGk6rDNnLBQKrenN712K4AQJEG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SNIPER_TRADING_MAX_RETRIES", "5")
	t.Setenv("SNIPER_POLICY_MIN_HOLDERS", "30")
	t.Setenv("SNIPER_SERVER_CONFIRM_TOKEN", "tok")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Wallet.UserID != "alice" {
		t.Errorf("user = %q", cfg.Wallet.UserID)
	}
	if cfg.Policy.MinHolders != 30 {
		t.Errorf("env override not applied: min_holders = %d", cfg.Policy.MinHolders)
	}
	if cfg.Policy.NewPoolWindow.Duration != 30*time.Minute {
		t.Errorf("new_pool_window = %s", cfg.Policy.NewPoolWindow)
	}
	if cfg.Trading.TradeAmountSOL != 1.25 || cfg.Trading.Timeout.Duration != 10*time.Second || cfg.Trading.MaxRetries != 5 {
		t.Errorf("unexpected trading: %+v", cfg.Trading)
	}
	if cfg.Trading.ReserveFloorSOL != 0.1 {
		t.Errorf("defaults not kept: reserve = %v", cfg.Trading.ReserveFloorSOL)
	}
	if cfg.Server.ConfirmToken != "tok" {
		t.Errorf("confirm token = %q", cfg.Server.ConfirmToken)
	}
	if cfg.Oracle.Feeds["BONK"] == "" || cfg.Oracle.Feeds["SOL"] == "" {
		t.Errorf("feeds not merged: %v", cfg.Oracle.Feeds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConversions(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.MaxRetries = 2
	cfg.Policy.MinHolders = 7

	if p := cfg.DecisionPolicy(); p.MinHolders != 7 || p.NewPoolWindow != time.Hour {
		t.Errorf("policy = %+v", p)
	}
	if e := cfg.ExecutionConfig(); e.MaxRetries != 2 || e.ReserveFloorSOL != 0.1 {
		t.Errorf("execution = %+v", e)
	}
}
