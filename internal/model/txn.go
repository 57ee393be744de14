package model

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BridgeType names a bridge generation. The generation of an address is
// configuration, not something inferred from chain data.
type BridgeType string

const (
	BridgeLegacy BridgeType = "legacy"
	BridgeCircle BridgeType = "circle"
	BridgeV2     BridgeType = "v2"
)

// ParseBridgeType normalises a configured bridge generation.
func ParseBridgeType(s string) (BridgeType, error) {
	switch b := BridgeType(strings.ToLower(strings.TrimSpace(s))); b {
	case BridgeLegacy, BridgeCircle, BridgeV2:
		return b, nil
	default:
		return "", fmt.Errorf("%w: unsupported bridge type %q", ErrConfig, s)
	}
}

// TxnType classifies one physical transaction.
type TxnType string

const (
	TxnDeposit     TxnType = "Deposit"
	TxnRelease     TxnType = "Release"
	TxnRefund      TxnType = "Refund"
	TxnTransfer    TxnType = "Transfer"
	TxnFeeTransfer TxnType = "FeeTransfer"
	TxnFinalize    TxnType = "Finalize"
	TxnError       TxnType = "Error"
	TxnUnknown     TxnType = "Unknown"
	TxnBadRouting  TxnType = "BadRouting"
)

// ChainStatus is what the ledger itself says about a transaction.
type ChainStatus string

const (
	StatusPending   ChainStatus = "Pending"
	StatusCompleted ChainStatus = "Completed"
	StatusFailed    ChainStatus = "Failed"
)

// PartialBridgeTxn is the canonical record every parser emits. It describes
// one leg of a transfer; legs are correlated downstream through TxnIDHashed.
type PartialBridgeTxn struct {
	TxnID         string          `json:"txn_id"`
	TxnIDHashed   string          `json:"txn_id_hashed"`
	TxnType       TxnType         `json:"txn_type"`
	ChainStatus   ChainStatus     `json:"chain_status"`
	Network       string          `json:"network"`
	BridgeType    BridgeType      `json:"bridge_type"`
	Block         uint64          `json:"block"`
	Timestamp     time.Time       `json:"timestamp"`
	Confirmations uint64          `json:"confirmations"`
	GasPaid       *big.Int        `json:"gas_paid,omitempty"`
	Address       string          `json:"address"`
	TokenSymbol   string          `json:"token_symbol,omitempty"`
	TokenSymbols  []string        `json:"token_symbols,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Units         *big.Int        `json:"units,omitempty"`
	Routing       *Routing        `json:"routing,omitempty"`
	Routing2      *Routing2       `json:"routing2,omitempty"`
	Referral      string          `json:"referral,omitempty"`
	Protocol      string          `json:"protocol,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// Settled reports whether the record describes a transfer the chain accepted
// and the indexer understood. Error, Unknown and BadRouting never settle.
func (t PartialBridgeTxn) Settled() bool {
	if t.ChainStatus != StatusCompleted {
		return false
	}
	switch t.TxnType {
	case TxnError, TxnUnknown, TxnBadRouting:
		return false
	}
	return true
}

// SetStatus derives the chain status from confirmations unless the chain
// already rejected the transaction.
func (t *PartialBridgeTxn) SetStatus(failed bool, required uint64) {
	switch {
	case failed:
		t.ChainStatus = StatusFailed
	case t.Confirmations >= required:
		t.ChainStatus = StatusCompleted
	default:
		t.ChainStatus = StatusPending
	}
}

// Fields flattens the record for predicates and templates.
func (t PartialBridgeTxn) Fields() map[string]any {
	out := map[string]any{
		"txn_id":        t.TxnID,
		"txn_id_hashed": t.TxnIDHashed,
		"txn_type":      string(t.TxnType),
		"chain_status":  string(t.ChainStatus),
		"network":       t.Network,
		"bridge_type":   string(t.BridgeType),
		"block":         t.Block,
		"timestamp":     t.Timestamp.Unix(),
		"confirmations": t.Confirmations,
		"address":       t.Address,
		"token":         t.TokenSymbol,
		"amount":        t.Amount.String(),
	}
	if t.Units != nil {
		out["units"] = t.Units.String()
	}
	if t.Referral != "" {
		out["referral"] = t.Referral
	}
	if t.Protocol != "" {
		out["protocol"] = t.Protocol
	}
	switch {
	case t.Routing != nil:
		out["from_network"] = t.Routing.From.Network
		out["from_address"] = t.Routing.From.Address
		out["to_network"] = t.Routing.To.Network
		out["to_address"] = t.Routing.To.Address
	case t.Routing2 != nil:
		out["from_network"] = t.Routing2.From.Network
		out["from_address"] = t.Routing2.From.Address
		out["to_network"] = t.Routing2.To.Network
		out["to_address"] = t.Routing2.To.Address
	}
	return out
}
