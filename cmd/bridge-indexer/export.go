package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/bridge-indexer/internal/config"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/storage"
)

var (
	exportFormat  string
	exportNetwork string
	exportSince   string
	exportOut     string
	exportLimit   int
)

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format: json|csv")
	exportCmd.Flags().StringVar(&exportNetwork, "network", "", "Only records of this network")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "Only records at or after this time (RFC3339 or a duration like 24h)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "Output file, - for stdout")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum records to export (0 = all)")
}

var exportCmd = &cobra.Command{
	Use:       "export records|cursors",
	Short:     "Export stored records or cursors as json or csv",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"records", "cursors"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "json" && exportFormat != "csv" {
			return fmt.Errorf("unsupported format %q", exportFormat)
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		switch args[0] {
		case "cursors":
			rows, err := store.ListCursors(cmd.Context())
			if err != nil {
				return err
			}
			return writeCursors(out, exportFormat, rows)
		default:
			since, err := parseSince(exportSince, time.Now())
			if err != nil {
				return err
			}
			recs, err := store.ListRecords(cmd.Context(), storage.RecordQuery{
				Network: exportNetwork,
				Since:   since,
				Limit:   exportLimit,
			})
			if err != nil {
				return err
			}
			return writeRecords(out, exportFormat, recs)
		}
	},
}

func parseSince(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC3339 or a duration", v)
	}
	return t, nil
}

var recordHeader = []string{
	"network", "bridge_type", "txn_type", "chain_status", "txn_id", "txn_id_hashed",
	"block", "timestamp", "address", "token_symbol", "amount", "destination",
}

func writeRecords(w io.Writer, format string, recs []model.PartialBridgeTxn) error {
	if format == "json" {
		return writeJSONLines(w, recs)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(recordHeader); err != nil {
		return err
	}
	for _, r := range recs {
		symbol := r.TokenSymbol
		if symbol == "" {
			symbol = strings.Join(r.TokenSymbols, "|")
		}
		var dest string
		if r.Routing != nil {
			dest = r.Routing.Network + ":" + r.Routing.Address
		}
		if err := cw.Write([]string{
			r.Network, string(r.BridgeType), string(r.TxnType), string(r.ChainStatus), r.TxnID, r.TxnIDHashed,
			strconv.FormatUint(r.Block, 10), r.Timestamp.UTC().Format(time.RFC3339), r.Address, symbol,
			r.Amount.String(), dest,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeCursors(w io.Writer, format string, rows []storage.CursorRow) error {
	if format == "json" {
		return writeJSONLines(w, rows)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"key", "network", "bridge_type", "address", "block", "paging", "updated_at"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Key, r.Network, r.BridgeType, r.Address, strconv.FormatUint(r.Block, 10),
			strconv.FormatBool(r.Paging), r.UpdatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSONLines[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}
