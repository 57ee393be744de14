package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "bridge-indexer",
		Short: "Cross-chain token bridge indexer (EVM, Algorand, Solana, Tron)",
		Long: `bridge-indexer follows bridge contracts and custody addresses on EVM,
Algorand, Solana and Tron networks. Each configured cursor pages through one
address, classifies every transaction as a deposit, release, refund or plain
transfer of a registered token, and stores the result with its cross-chain
routing. Records stay pending until the chain's confirmation depth is reached.

Start with "bridge-indexer init" to write a sample config, check it with
"validate", then index with "run". "state" shows cursor positions and
"export" writes indexed transactions as CSV or JSON.`,
	}
)

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to config file")

	rootCmd.AddCommand(
		versionCmd,
		initCmd,
		validateCmd,
		runCmd,
		stateCmd,
		exportCmd,
	)
}

// Execute runs the root command tree.
func Execute(ctx context.Context) error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
