package source

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/devblac/bridge-indexer/internal/codec"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
)

// Movement is a token transfer seen on chain.
type Movement struct {
	From string
	To   string
	// Refund is set when the transaction also carries a refund signal.
	Refund bool
}

// Classify places a token movement relative to the bridge roles. A deposit
// here only means "into the deposit address"; parsers downgrade it to
// Transfer when no routing metadata came with it.
func Classify(kind model.ChainKind, r model.Roles, m Movement) model.TxnType {
	switch {
	case kind.SameAddress(m.To, r.FeeReceiver):
		return model.TxnFeeTransfer
	case kind.SameAddress(m.To, r.Deposit):
		return model.TxnDeposit
	case kind.SameAddress(m.From, r.Release):
		return model.TxnRelease
	case kind.SameAddress(m.From, r.Deposit):
		if m.Refund {
			return model.TxnRefund
		}
		return model.TxnTransfer
	}
	return model.TxnUnknown
}

// CheckVault enforces the counterparty rule of a vault token. On a deposit
// the counterparty is where the tokens went; on a release or refund it is
// where they came from. Incoming vaults mint and burn, so the counterparty
// must be the zero address; outgoing vaults must show the vault itself.
func CheckVault(kind model.ChainKind, tok registry.ChainToken, txnType model.TxnType, m Movement) error {
	var counterparty string
	switch txnType {
	case model.TxnDeposit:
		counterparty = m.To
	case model.TxnRelease, model.TxnRefund:
		counterparty = m.From
	default:
		return nil
	}
	switch tok.VaultType {
	case registry.VaultIncoming:
		if !codec.IsZeroAddress(kind, counterparty) {
			return fmt.Errorf("%w: %s on incoming vault %s has counterparty %s", model.ErrVaultCounterparty, txnType, tok.Symbol, counterparty)
		}
	case registry.VaultOutgoing:
		if !kind.SameAddress(counterparty, tok.VaultAddress) {
			return fmt.Errorf("%w: %s on outgoing vault %s has counterparty %s, want %s", model.ErrVaultCounterparty, txnType, tok.Symbol, counterparty, tok.VaultAddress)
		}
	}
	return nil
}

// CheckMinimum rejects deposits smaller than the token minimum.
func CheckMinimum(txnType model.TxnType, symbol string, min, amount decimal.Decimal) error {
	if txnType != model.TxnDeposit || min.IsZero() {
		return nil
	}
	if amount.LessThan(min) {
		return fmt.Errorf("%w: %s %s under %s", model.ErrBelowMinimum, amount, symbol, min)
	}
	return nil
}

// Destination decodes the routing target of a deposit. A false result means
// the payload names no known network or an address that network cannot
// hold; parsers record that as BadRouting.
func Destination(nets *model.Networks, chainID uint16, neutral []byte) (model.Network, string, bool) {
	net, ok := nets.ByBridgeID(chainID)
	if !ok {
		return model.Network{}, "", false
	}
	addr, err := codec.DeserializeAddress(net.Kind, neutral)
	if err != nil || codec.IsZeroAddress(net.Kind, addr) {
		return net, "", false
	}
	return net, addr, true
}

// NoteDestination validates a destination named in a deposit note.
func NoteDestination(nets *model.Networks, note model.DepositNote) (model.Network, string, bool) {
	net, ok := nets.Get(note.Network)
	if !ok {
		return model.Network{}, "", false
	}
	if _, err := codec.SerializeAddress(net.Kind, note.Address); err != nil {
		return net, "", false
	}
	return net, note.Address, true
}
