package main

import (
	"context"
	"fmt"
	"log"

	"solana-pool-sniper/internal/config"
	"solana-pool-sniper/internal/storage"
	chstore "solana-pool-sniper/internal/storage/clickhouse"
	"solana-pool-sniper/internal/storage/memory"
	"solana-pool-sniper/internal/storage/migrations"
	pgstore "solana-pool-sniper/internal/storage/postgres"
	redisstore "solana-pool-sniper/internal/storage/redis"
)

// stores holds the persistence backends selected by config.
// Each backend falls back to memory when its address is empty.
type stores struct {
	ledger     storage.LedgerStore
	wallets    storage.WalletStore
	audit      storage.AuditStore
	locks      storage.LockStore // nil without Redis
	watermarks storage.PoolWatermarkStore

	closers []func()
}

// Close releases every opened connection in reverse order.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the configured backends. When migrate is set the
// Postgres and ClickHouse schemas are applied before use.
func openStores(ctx context.Context, cfg config.StorageConfig, migrate bool, logger *log.Logger) (*stores, error) {
	s := &stores{
		ledger:     memory.NewLedgerStore(),
		wallets:    memory.NewWalletStore(),
		audit:      memory.NewAuditStore(),
		watermarks: memory.NewPoolWatermarkStore(),
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)

		if migrate {
			if _, err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
				s.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		s.ledger = pgstore.NewLedgerStore(pool)
		s.wallets = pgstore.NewWalletStore(pool)
		logger.Println("Ledger and wallets: postgres")
	}

	if cfg.ClickHouseDSN != "" {
		var (
			conn *chstore.Conn
			err  error
		)
		if migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN, logger)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.audit = chstore.NewAuditStore(conn)
		logger.Println("Audit trail: clickhouse")
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.New(ctx, redisstore.ClientConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.locks = redisstore.NewLockStore(client)
		s.watermarks = redisstore.NewPoolWatermarkStore(client)
		logger.Println("Flight locks and watermarks: redis")
	}

	return s, nil
}
