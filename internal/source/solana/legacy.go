package solana

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
)

// LegacyParser reads legacy and circle bridge transactions. The bridge
// instruction names the direction and routing; the token comes from the
// mint whose balance moved for the cursor address.
type LegacyParser struct {
	client Client
	tokens *registry.Tokens
}

// NewLegacyParser builds a legacy bridge parser.
func NewLegacyParser(client Client, tokens *registry.Tokens) (*LegacyParser, error) {
	if tokens == nil {
		return nil, fmt.Errorf("%w: legacy token registry is required", model.ErrConfig)
	}
	return &LegacyParser{client: client, tokens: tokens}, nil
}

// Process implements source.Parser.
func (p *LegacyParser) Process(ctx context.Context, t source.Target, it source.Item) (model.PartialBridgeTxn, error) {
	tx, err := p.client.Transaction(ctx, it.ID)
	if err != nil {
		return model.PartialBridgeTxn{}, err
	}
	rec, err := source.NewRecord(t, it.ID, tx.Slot, tx.Time())
	if err != nil {
		return model.PartialBridgeTxn{}, err
	}
	if tx.Meta != nil {
		rec.GasPaid = new(big.Int).SetUint64(tx.Meta.Fee)
	}
	if tx.Failed() {
		rec.Reason = fmt.Sprintf("transaction failed: %v", tx.Meta.Err)
	} else if err := p.classify(t, tx, &rec); err != nil {
		if !errors.Is(err, model.ErrMalformed) {
			return model.PartialBridgeTxn{}, err
		}
		rec.TxnType = model.TxnError
		rec.Reason = err.Error()
	}
	source.Finish(t, &rec, tx.Failed())
	return rec, nil
}

// moved finds the first registered token whose balance changed for owner.
// Mints are tried before native SOL, since account rent moves lamports in
// token transfers too.
func (p *LegacyParser) moved(network string, tx *Transaction, owner string) (registry.Token, Delta, bool) {
	var native []registry.Token
	for _, tok := range p.tokens.List(network) {
		if tok.Address == NativeMint {
			native = append(native, tok)
			continue
		}
		if d := BalanceDelta(tx, owner, tok.Address); d.Change.Sign() != 0 {
			return tok, d, true
		}
	}
	for _, tok := range native {
		if d := BalanceDelta(tx, owner, NativeMint); d.Change.Sign() != 0 {
			return tok, d, true
		}
	}
	return registry.Token{}, Delta{}, false
}

func (p *LegacyParser) classify(t source.Target, tx *Transaction, rec *model.PartialBridgeTxn) error {
	var ins *LegacyInstruction
	if t.Roles.Program != "" {
		for _, data := range programInstructions(tx, t.Roles.Program) {
			got, ok, err := DecodeLegacyInstruction(data)
			if err != nil {
				return err
			}
			if ok {
				ins = &got
				break
			}
		}
	}

	tok, delta, ok := p.moved(t.Network.Name, tx, t.Address)
	if !ok {
		if ins == nil {
			return nil
		}
		return fmt.Errorf("%w: no registered mint moved for %s", model.ErrTokenUnresolved, t.Address)
	}
	decimals := tok.Decimals
	rec.TokenSymbol = tok.Symbol
	self := model.RoutingPoint{Network: t.Network.Name, Address: t.Address, Symbol: tok.Symbol, BaseUnits: &decimals}
	other := model.RoutingPoint{Network: t.Network.Name, Address: delta.Counterparty, Symbol: tok.Symbol, BaseUnits: &decimals}
	if ins == nil {
		return p.transfer(t, tok, delta, self, other, rec)
	}

	units := new(big.Int).SetUint64(ins.Amount)
	rec.Units = units
	rec.Amount = model.FromBaseUnits(units, decimals)
	switch ins.Tag {
	case TagDeposit:
		if err := source.CheckMinimum(model.TxnDeposit, tok.Symbol, tok.Minimum(), rec.Amount); err != nil {
			return err
		}
		sender := other
		if sender.Address == "" {
			sender.Address = feePayer(tx)
		}
		sender.TxnSignature, sender.TxnSignatureHashed = rec.TxnID, rec.TxnIDHashed
		destNet, destAddr, ok := source.Destination(t.Networks, ins.Chain, ins.Ref[:])
		if !ok {
			rec.TxnType = model.TxnBadRouting
			rec.Reason = fmt.Sprintf("destination chain %d address %x is not routable", ins.Chain, ins.Ref)
			return nil
		}
		destSym := tok.Symbol
		if dt, err := p.tokens.GetToken(destNet.Name, tok.Symbol); err == nil {
			destSym = dt.Symbol
		}
		rec.TxnType = model.TxnDeposit
		rec.Routing = model.NewRouting(sender, model.RoutingPoint{Network: destNet.Name, Address: destAddr, Symbol: destSym}, units, decimals)
	case TagRelease, TagRefund:
		origin := model.RoutingPoint{Network: t.Network.Name, TxnSignatureHashed: "0x" + hex.EncodeToString(ins.Ref[:])}
		rec.TxnType = model.TxnRefund
		if ins.Tag == TagRelease {
			rec.TxnType = model.TxnRelease
			origin.Network = ""
			if n, ok := t.Networks.ByBridgeID(ins.Chain); ok {
				origin.Network = n.Name
			}
		}
		recipient := other
		recipient.TxnSignature, recipient.TxnSignatureHashed = rec.TxnID, rec.TxnIDHashed
		rec.Routing = model.NewRouting(origin, recipient, units, decimals)
	}
	return nil
}

// transfer classifies a plain token movement of the cursor address. There
// is no routing metadata, so a movement into the deposit address is a
// Transfer.
func (p *LegacyParser) transfer(t source.Target, tok registry.Token, d Delta, self, other model.RoutingPoint, rec *model.PartialBridgeTxn) error {
	from, to := other, self
	if d.Change.Sign() < 0 {
		from, to = self, other
	}
	typ := source.Classify(model.KindSolana, t.Roles, source.Movement{From: from.Address, To: to.Address})
	if typ == model.TxnUnknown {
		return nil
	}
	if typ == model.TxnDeposit {
		typ = model.TxnTransfer
	}
	units := new(big.Int).Abs(d.Change)
	to.TxnSignature, to.TxnSignatureHashed = rec.TxnID, rec.TxnIDHashed
	rec.TxnType = typ
	rec.Units = units
	rec.Amount = model.FromBaseUnits(units, tok.Decimals)
	rec.Routing = model.NewRouting(from, to, units, tok.Decimals)
	return nil
}

func feePayer(tx *Transaction) string {
	if keys := tx.Transaction.Message.AccountKeys; len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// neutral renders a 32-byte key in base58, or "" for the zero key.
func neutral(b [32]byte) string {
	if b == ([32]byte{}) {
		return ""
	}
	return base58.Encode(b[:])
}
