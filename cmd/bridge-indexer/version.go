package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devblac/bridge-indexer/internal/model"
)

var (
	version = "dev"
	commit  = "none"
	date    = ""
)

var versionNetworks bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the built-in network directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "bridge-indexer %s", version)
		if commit != "" && commit != "none" {
			fmt.Fprintf(out, " commit %s", commit)
		}
		if date != "" {
			fmt.Fprintf(out, " built %s", date)
		}
		fmt.Fprintln(out)
		if !versionNetworks {
			return nil
		}
		for _, n := range model.DefaultNetworks() {
			fmt.Fprintf(out, "  %-10s %-9s bridge id %d\n", n.Name, n.Kind, n.BridgeID)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionNetworks, "networks", false, "List the built-in networks and their bridge chain ids")
}

