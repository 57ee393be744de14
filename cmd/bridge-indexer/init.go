package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

const sampleConfig = `version: 1
global:
  db_path: ./bridge-indexer.db
  log_level: info
  http_addr: ":9090"
  poll_interval: 15s
  retry_attempts: 5
  retry_backoff: 500ms

networks:
  - name: ethereum
    kind: evm
    rpc_url: ${ETH_RPC_URL}
    block_span: 2000
    bridges:
      legacy:
        deposit: "0x0000000000000000000000000000000000000001"
        release: "0x0000000000000000000000000000000000000002"
        contract: "0x0000000000000000000000000000000000000003"
  - name: algorand
    kind: algorand
    algod_url: ${ALGOD_URL}
    indexer_url: ${ALGO_INDEXER_URL}
    bridges:
      legacy:
        deposit: ${ALGO_DEPOSIT_ADDRESS}
        release: ${ALGO_RELEASE_ADDRESS}
  - name: tron
    kind: tron
    api_url: https://api.trongrid.io
    api_key: ${TRON_API_KEY}
    bridges:
      legacy:
        deposit: ${TRON_DEPOSIT_ADDRESS}
        release: ${TRON_RELEASE_ADDRESS}

tokens:
  ethereum:
    - symbol: USDC
      address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
      decimals: 6
  tron:
    - symbol: USDT
      address: TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t
      decimals: 6

cursors:
  - network: ethereum
    bridge_type: legacy
    address: "0x0000000000000000000000000000000000000001"
  - network: algorand
    bridge_type: legacy
    address: ${ALGO_DEPOSIT_ADDRESS}
  - network: tron
    bridge_type: legacy
    address: ${TRON_DEPOSIT_ADDRESS}
    filter:
      types: [deposit]

sinks:
  - id: ops-slack
    type: slack
    webhook_url: ${SLACK_WEBHOOK_URL}

routes:
  - id: large-deposits
    bridge_types: [legacy]
    where:
      - txn_type == Deposit
      - amount >= 10000
    sinks: [ops-slack]
    dedupe:
      key: "txn_id_hashed:txn_type"
      ttl: 24h
    rate_limit:
      capacity: 10
      per_second: 0.5
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgPath); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.WriteFile(cfgPath, []byte(sampleConfig), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", cfgPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s; set the ${...} variables in the environment or a .env file next to it\n", cfgPath)
		return nil
	},
}
