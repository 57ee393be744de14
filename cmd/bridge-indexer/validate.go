package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/bridge-indexer/internal/config"
	"github.com/devblac/bridge-indexer/internal/engine"
	"github.com/devblac/bridge-indexer/internal/health"
	"github.com/devblac/bridge-indexer/internal/logging"
)

const pingTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and ping every network connector",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d, %d networks, %d cursors)\n", cfg.Version, len(cfg.Networks), len(cfg.Cursors))

		comp, err := engine.Build(cmd.Context(), cfg, logging.NewWithLevel("error"), nil)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		defer comp.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
		defer cancel()

		failures := 0
		for _, res := range health.NewRPCChecker(comp.Pingers).Each(ctx) {
			net, _ := comp.Networks.Get(res.Network)
			if res.Err != nil {
				failures++
				fmt.Fprintf(out, "- network %s (%s): ERROR %v\n", res.Network, net.Kind, res.Err)
				continue
			}
			fmt.Fprintf(out, "- network %s (%s): OK\n", res.Network, net.Kind)
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d network(s) failed connectivity", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}
