package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"solana-pool-sniper/internal/config"
	"solana-pool-sniper/internal/discovery"
	"solana-pool-sniper/internal/ledger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres and ClickHouse schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.PostgresDSN == "" && cfg.Storage.ClickHouseDSN == "" {
				return errors.New("migrate: neither postgres_dsn nor clickhouse_dsn is set")
			}

			logger := log.New(os.Stdout, "[migrate] ", log.LstdFlags)
			storageCfg := cfg.Storage
			storageCfg.RedisAddr = ""
			st, err := openStores(cmd.Context(), storageCfg, true, logger)
			if err != nil {
				return err
			}
			st.Close()
			logger.Println("Migrations complete")
			return nil
		},
	}
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <base64-account-data>",
		Short: "Decode a Raydium pool account payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decodePayload(cmd.OutOrStdout(), args[0])
		},
	}
}

func decodePayload(w io.Writer, encoded string) error {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}
	state, err := discovery.DecodePoolState(payload)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "token_mint\t%s\n", state.TokenMint)
	fmt.Fprintf(tw, "base_token_amount\t%d\n", state.BaseTokenAmount)
	fmt.Fprintf(tw, "quote_token_amount\t%d\n", state.QuoteTokenAmount)
	fmt.Fprintf(tw, "lp_supply\t%d\n", state.LPSupply)
	fmt.Fprintf(tw, "last_update_time\t%d\n", state.LastUpdateTime)
	return tw.Flush()
}

func positionsCmd() *cobra.Command {
	var showHistory bool
	cmd := &cobra.Command{
		Use:   "positions [user-id]",
		Short: "Print a user's positions from the ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			userID := cfg.Wallet.UserID
			if len(args) > 0 {
				userID = args[0]
			}
			if userID == "" {
				return errors.New("positions: user id required")
			}

			logger := log.New(io.Discard, "", 0)
			storageCfg := cfg.Storage
			storageCfg.RedisAddr = ""
			storageCfg.ClickHouseDSN = ""
			st, err := openStores(cmd.Context(), storageCfg, false, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			book := ledger.New(st.ledger, ledger.Options{Logger: logger})
			return printPositions(cmd.Context(), cmd.OutOrStdout(), book, userID, showHistory)
		},
	}
	cmd.Flags().BoolVar(&showHistory, "history", false, "Also print each position's transaction log")
	return cmd
}

func printPositions(ctx context.Context, w io.Writer, book *ledger.Ledger, userID string, showHistory bool) error {
	positions, err := book.Positions(ctx, userID)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	if len(positions) == 0 {
		fmt.Fprintf(w, "No positions for %s\n", userID)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tQUANTITY\tAVG PRICE\tUPDATED")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Token, p.Quantity, p.AveragePrice, p.LastUpdated.UTC().Format("2006-01-02 15:04:05"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !showHistory {
		return nil
	}
	for _, p := range positions {
		entries, err := book.History(ctx, userID, p.Token)
		if err != nil {
			return fmt.Errorf("history %s: %w", p.Token, err)
		}
		fmt.Fprintf(w, "\n%s\n", p.Token)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tSIDE\tAMOUNT\tPRICE\tSIGNATURE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Sequence, e.Side, e.Amount, e.ExecutedPrice, e.Signature)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
