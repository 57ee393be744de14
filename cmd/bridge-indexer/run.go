package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/bridge-indexer/internal/config"
	"github.com/devblac/bridge-indexer/internal/engine"
	"github.com/devblac/bridge-indexer/internal/health"
	"github.com/devblac/bridge-indexer/internal/logging"
	"github.com/devblac/bridge-indexer/internal/metrics"
	"github.com/devblac/bridge-indexer/internal/sink"
	"github.com/devblac/bridge-indexer/internal/storage"
)

var (
	flagOnce   bool
	flagDryRun bool
	flagHTTP   string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Poll every cursor once and exit")
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Store records but do not send to sinks")
	runCmd.Flags().StringVar(&flagHTTP, "http", "", "Health/metrics HTTP address, overrides global.http_addr (\"off\" disables)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll bridge addresses and route records to sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logging.NewWithLevel(cfg.Global.LogLevel)

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		mtr := metrics.Init()
		comp, err := engine.Build(ctx, cfg, log, mtr)
		if err != nil {
			return fmt.Errorf("build pollers: %w", err)
		}
		defer comp.Close()

		seeds, err := cfg.Seeds(comp.Networks)
		if err != nil {
			return err
		}

		sinks := map[string]sink.Sender{}
		for _, s := range cfg.Sinks {
			sender, err := sink.FromConfig(ctx, s)
			if err != nil {
				return fmt.Errorf("sink %s: %w", s.ID, err)
			}
			sinks[s.ID] = sender
			if c, ok := sender.(io.Closer); ok {
				defer c.Close()
			}
		}

		addr := cfg.Global.HTTPAddr
		if flagHTTP != "" {
			addr = flagHTTP
		}
		if addr != "off" && !flagOnce {
			rpcChecker := health.NewRPCChecker(comp.Pingers)
			srv := health.Serve(addr, health.Checker{
				DBPing:  store.Ping,
				RPCPing: rpcChecker.Ping,
				Cursors: func(ctx context.Context) (any, error) { return store.ListCursors(ctx) },
			})
			log.Info("http enabled", "addr", addr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, srv)
			}()
		}

		runner, err := engine.NewRunner(store, cfg.Routes, seeds, comp.PollerSet(), sinks, engine.Options{
			DryRun:  flagDryRun,
			Logger:  log,
			Metrics: mtr,
		})
		if err != nil {
			return err
		}

		log.Info("starting", "cursors", len(seeds), "networks", len(comp.Pollers),
			"interval", cfg.Global.PollInterval, "dry_run", flagDryRun)
		if flagOnce {
			sum, err := runner.RunOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d records, %d new, %d delivered\n",
				sum.RunID, sum.Records, sum.Fresh, sum.Delivered)
			return err
		}
		return runner.Run(ctx, cfg.Global.PollInterval)
	},
}
