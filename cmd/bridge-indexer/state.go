package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devblac/bridge-indexer/internal/config"
	"github.com/devblac/bridge-indexer/internal/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show persisted cursors",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		rows, err := store.ListCursors(cmd.Context())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no cursors persisted yet")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CURSOR\tBLOCK\tSTATE\tUPDATED")
		for _, r := range rows {
			state := "at-head"
			if r.Paging {
				state = "paging"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Key, r.Block, state, r.UpdatedAt.UTC().Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}
