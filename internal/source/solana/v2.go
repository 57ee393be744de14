package solana

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
)

// V2Parser reads vault bridge transactions from program events.
type V2Parser struct {
	client Client
	assets *registry.Assets
}

// NewV2Parser builds a vault bridge parser.
func NewV2Parser(client Client, assets *registry.Assets) (*V2Parser, error) {
	if assets == nil {
		return nil, fmt.Errorf("%w: asset registry is required for v2 bridges", model.ErrConfig)
	}
	return &V2Parser{client: client, assets: assets}, nil
}

// Process implements source.Parser.
func (p *V2Parser) Process(ctx context.Context, t source.Target, it source.Item) (model.PartialBridgeTxn, error) {
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

func (p *V2Parser) classify(t source.Target, tx *Transaction, rec *model.PartialBridgeTxn) error {
	if t.Roles.Program != "" && tx.Meta != nil {
		payloads, err := programData(tx.Meta.LogMessages, t.Roles.Program)
		if err != nil {
			return err
		}
		for _, data := range payloads {
			ev, ok, err := DecodeEvent(data)
			if err != nil {
				return err
			}
			if ok {
				return p.event(t, tx, ev, rec)
			}
		}
	}
	return p.transfer(t, tx, rec)
}

func (p *V2Parser) event(t source.Target, tx *Transaction, ev Event, rec *model.PartialBridgeTxn) error {
	tok, err := p.assets.ByVaultID(t.Network.Name, ev.VaultID)
	if err != nil {
		return err
	}
	base, err := p.assets.Parent(tok)
	if err != nil {
		return err
	}
	amount := new(big.Int).SetUint64(ev.Amount)
	rec.TokenSymbol = base.AssetSymbol
	rec.TokenSymbols = []string{tok.Symbol}
	rec.Units = amount
	rec.Amount = model.FromBaseUnits(amount, tok.Decimals)
	self := model.Routing2Point{
		Network:            t.Network.Name,
		Symbol:             tok.Symbol,
		BaseUnits:          tok.Decimals,
		TxnSignature:       rec.TxnID,
		TxnSignatureHashed: rec.TxnIDHashed,
	}
	flowFrom, flowTo := "", ""
	if tok.Address != "" {
		flowFrom, flowTo = MintFlow(tx, tok.Address)
	}
	flow := source.Movement{From: flowFrom, To: flowTo}

	switch ev.Name {
	case EventDeposit:
		if err := p.checkVault(tok, model.TxnDeposit, flow); err != nil {
			return err
		}
		if err := source.CheckMinimum(model.TxnDeposit, tok.Symbol, tok.Minimum(), rec.Amount); err != nil {
			return err
		}
		self.Address = neutral(ev.Sender)
		if self.Address == "" {
			self.Address = feePayer(tx)
		}
		destNet, destAddr, ok := source.Destination(t.Networks, ev.Chain, ev.Address[:])
		if !ok {
			rec.TxnType = model.TxnBadRouting
			rec.Reason = fmt.Sprintf("destination chain %d address %x is not routable", ev.Chain, ev.Address)
			return nil
		}
		destTok, err := p.assets.Child(base, destNet.Name)
		if err != nil {
			rec.TxnType = model.TxnBadRouting
			rec.Reason = err.Error()
			return nil
		}
		rec.TxnType = model.TxnDeposit
		rec.TokenSymbols = append(rec.TokenSymbols, destTok.Symbol)
		rec.Routing2 = model.NewRouting2(self, model.Routing2Point{
			Network:   destNet.Name,
			Address:   destAddr,
			Symbol:    destTok.Symbol,
			BaseUnits: destTok.Decimals,
		}, amount)

	case EventRelease, EventRefund:
		typ := model.TxnRefund
		origin := model.Routing2Point{Network: t.Network.Name, Symbol: tok.Symbol, BaseUnits: tok.Decimals}
		if ev.Name == EventRelease {
			typ = model.TxnRelease
			origin.Network = ""
			if srcNet, ok := t.Networks.ByBridgeID(ev.Chain); ok {
				origin.Network = srcNet.Name
				if srcTok, err := p.assets.Child(base, srcNet.Name); err == nil {
					origin.Symbol = srcTok.Symbol
					origin.BaseUnits = srcTok.Decimals
				}
			}
		}
		if err := p.checkVault(tok, typ, flow); err != nil {
			return err
		}
		self.Address = neutral(ev.Address)
		rec.TxnType = typ
		rec.Routing2 = model.NewRouting2(origin, self, model.Rescale(amount, tok.Decimals, origin.BaseUnits))
		rec.Routing2.To.Units = new(big.Int).Set(amount)

	case EventFinalize:
		rec.TxnType = model.TxnFinalize
	}
	return nil
}

// checkVault applies the vault counterparty rule to the mint flow. Native
// SOL vaults have no mint and are skipped.
func (p *V2Parser) checkVault(tok registry.ChainToken, typ model.TxnType, flow source.Movement) error {
	if tok.Address == "" || tok.VaultType == "" {
		return nil
	}
	return source.CheckVault(model.KindSolana, tok, typ, flow)
}

// transfer classifies a plain movement of a registered mint, or of native
// SOL when no mint moved, for the cursor address.
func (p *V2Parser) transfer(t source.Target, tx *Transaction, rec *model.PartialBridgeTxn) error {
	var mints, native []registry.ChainToken
	for _, base := range p.assets.Bases() {
		for _, tok := range base.Chains {
			if !strings.EqualFold(tok.Chain, t.Network.Name) {
				continue
			}
			if tok.Address == NativeMint {
				native = append(native, tok)
			} else {
				mints = append(mints, tok)
			}
		}
	}
	for _, tok := range append(mints, native...) {
		d := BalanceDelta(tx, t.Address, tok.Address)
		if d.Change.Sign() == 0 {
			continue
		}
		m := source.Movement{From: d.Counterparty, To: t.Address}
		if d.Change.Sign() < 0 {
			m = source.Movement{From: t.Address, To: d.Counterparty}
		}
		typ := source.Classify(model.KindSolana, t.Roles, m)
		if typ == model.TxnUnknown {
			return nil
		}
		if typ == model.TxnDeposit {
			typ = model.TxnTransfer
		}
		units := new(big.Int).Abs(d.Change)
		rec.TxnType = typ
		rec.TokenSymbol = tok.Symbol
		rec.Units = units
		rec.Amount = model.FromBaseUnits(units, tok.Decimals)
		rec.Routing2 = model.NewRouting2(
			model.Routing2Point{Network: t.Network.Name, Address: m.From, Symbol: tok.Symbol, BaseUnits: tok.Decimals},
			model.Routing2Point{Network: t.Network.Name, Address: m.To, Symbol: tok.Symbol, BaseUnits: tok.Decimals, TxnSignature: rec.TxnID, TxnSignatureHashed: rec.TxnIDHashed},
			units,
		)
		return nil
	}
	return nil
}
