// Package main runs the pool sniper: it watches Raydium pool accounts,
// admits new pools against the policy and buys through Jupiter.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sniper",
		Short: "Solana liquidity pool sniper",
		Long: `sniper subscribes to Raydium pool account changes, evaluates each new
pool against the admission policy and executes buys through Jupiter.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config (defaults plus SNIPER_* env when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log stale and skipped pool updates")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(decodeCmd())
	rootCmd.AddCommand(positionsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
