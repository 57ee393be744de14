package algorand

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
)

// NativeAsset is the token reference of ALGO payments.
const NativeAsset = "0"

// transfer is one value movement inside a transaction group entry.
type transfer struct {
	ref    string
	from   string
	to     string
	amount uint64
	note   []byte
}

// transfers flattens a transaction and its inner transactions depth first.
// Zero-amount movements are opt-ins and are skipped.
func transfers(tx models.Transaction) []transfer {
	var out []transfer
	var walk func(tx models.Transaction)
	walk = func(tx models.Transaction) {
		switch tx.Type {
		case string(types.AssetTransferTx):
			x := tx.AssetTransferTransaction
			from := tx.Sender
			if x.Sender != "" {
				from = x.Sender
			}
			if x.Amount > 0 {
				out = append(out, transfer{ref: strconv.FormatUint(x.AssetId, 10), from: from, to: x.Receiver, amount: x.Amount, note: tx.Note})
			}
		case string(types.PaymentTx):
			x := tx.PaymentTransaction
			if x.Amount > 0 {
				out = append(out, transfer{ref: NativeAsset, from: tx.Sender, to: x.Receiver, amount: x.Amount, note: tx.Note})
			}
		}
		for _, inner := range tx.InnerTxns {
			walk(inner)
		}
	}
	walk(tx)
	return out
}

// NoteParser reads legacy and circle bridge transactions: transfers to or
// from the bridge addresses, routed by a deposit note.
type NoteParser struct {
	client Client
	tokens *registry.Tokens
}

// NewNoteParser builds a note parser.
func NewNoteParser(client Client, tokens *registry.Tokens) (*NoteParser, error) {
	if tokens == nil {
		return nil, fmt.Errorf("%w: legacy token registry is required", model.ErrConfig)
	}
	return &NoteParser{client: client, tokens: tokens}, nil
}

// Process implements source.Parser.
func (p *NoteParser) Process(ctx context.Context, t source.Target, it source.Item) (model.PartialBridgeTxn, error) {
	tx, ok := it.Raw.(models.Transaction)
	if !ok || tx.Id == "" {
		var err error
		if tx, err = p.client.Transaction(ctx, it.ID); err != nil {
			return model.PartialBridgeTxn{}, err
		}
	}
	rec, err := source.NewRecord(t, tx.Id, tx.ConfirmedRound, time.Unix(int64(tx.RoundTime), 0))
	if err != nil {
		return model.PartialBridgeTxn{}, err
	}
	rec.GasPaid = new(big.Int).SetUint64(tx.Fee)
	if err := p.classify(t, tx, &rec); err != nil {
		return model.PartialBridgeTxn{}, err
	}
	// The indexer only lists transactions the chain accepted.
	source.Finish(t, &rec, false)
	return rec, nil
}

func (p *NoteParser) classify(t source.Target, tx models.Transaction, rec *model.PartialBridgeTxn) error {
	for _, x := range transfers(tx) {
		note := x.note
		if len(note) == 0 {
			note = tx.Note
		}
		// A payout from the deposit address naming the deposit it returns
		// is a refund.
		hint, _ := DecodeNote(note)
		m := source.Movement{From: x.from, To: x.to, Refund: hint.DepositTxn != ""}
		typ := source.Classify(model.KindAlgorand, t.Roles, m)
		if typ == model.TxnUnknown {
			continue
		}
		err := p.apply(t, typ, x, note, rec)
		if errors.Is(err, model.ErrMalformed) {
			rec.TxnType = model.TxnError
			rec.Reason = err.Error()
			return nil
		}
		return err
	}
	return nil
}

func (p *NoteParser) apply(t source.Target, typ model.TxnType, x transfer, rawNote []byte, rec *model.PartialBridgeTxn) error {
	tok, err := p.tokens.GetFromAddress(t.Network.Name, x.ref)
	if err != nil {
		return err
	}
	units := new(big.Int).SetUint64(x.amount)
	decimals := tok.Decimals
	rec.TokenSymbol = tok.Symbol
	rec.Units = units
	rec.Amount = model.FromBaseUnits(units, decimals)
	from := model.RoutingPoint{Network: t.Network.Name, Address: x.from, Symbol: tok.Symbol, BaseUnits: &decimals}
	to := model.RoutingPoint{Network: t.Network.Name, Address: x.to, Symbol: tok.Symbol, BaseUnits: &decimals}

	note, err := DecodeNote(rawNote)
	if err != nil {
		return err
	}
	rec.Referral = note.Referral
	rec.Protocol = note.Protocol

	if typ == model.TxnDeposit && !note.Empty() {
		if err := source.CheckMinimum(typ, tok.Symbol, tok.Minimum(), rec.Amount); err != nil {
			return err
		}
		from.TxnSignature, from.TxnSignatureHashed = rec.TxnID, rec.TxnIDHashed
		destNet, destAddr, ok := source.NoteDestination(t.Networks, note)
		if !ok {
			rec.TxnType = model.TxnBadRouting
			rec.Reason = fmt.Sprintf("note destination %q on %q is not routable", note.Address, note.Network)
			return nil
		}
		destSym := tok.Symbol
		if dt, err := p.tokens.GetToken(destNet.Name, tok.Symbol); err == nil {
			destSym = dt.Symbol
		}
		rec.TxnType = typ
		rec.Routing = model.NewRouting(from, model.RoutingPoint{Network: destNet.Name, Address: destAddr, Symbol: destSym}, units, decimals)
		return nil
	}

	// Without a note a deposit names no destination.
	if typ == model.TxnDeposit {
		typ = model.TxnTransfer
	}
	to.TxnSignature, to.TxnSignatureHashed = rec.TxnID, rec.TxnIDHashed
	if typ == model.TxnRelease || typ == model.TxnRefund {
		from = model.RoutingPoint{Network: note.Network, TxnSignature: note.DepositTxn}
		if typ == model.TxnRefund && from.Network == "" {
			from.Network = t.Network.Name
		}
	}
	rec.TxnType = typ
	rec.Routing = model.NewRouting(from, to, units, decimals)
	return nil
}

// Deps are what the Algorand parsers need.
type Deps struct {
	Client Client
	Tokens *registry.Tokens
}

// Register installs the note parser for the legacy and circle bridges.
func Register(table source.Table, d Deps) error {
	if d.Tokens == nil {
		return nil
	}
	p, err := NewNoteParser(d.Client, d.Tokens)
	if err != nil {
		return err
	}
	table.Register(model.KindAlgorand, p, model.BridgeLegacy, model.BridgeCircle)
	return nil
}
