package evm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
)

// LegacyParser reads legacy and circle bridge receipts. Tokens resolve by
// the emitting contract through the legacy registry.
type LegacyParser struct {
	client Client
	tokens *registry.Tokens
	events *Events
}

// NewLegacyParser builds a legacy bridge parser.
func NewLegacyParser(client Client, tokens *registry.Tokens) (*LegacyParser, error) {
	events, err := LegacyEvents()
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: legacy token registry is required", model.ErrConfig)
	}
	return &LegacyParser{client: client, tokens: tokens, events: events}, nil
}

// Process implements source.Parser.
func (p *LegacyParser) Process(ctx context.Context, t source.Target, it source.Item) (model.PartialBridgeTxn, error) {
	rd, err := loadReceipt(ctx, p.client, it.ID)
	if err != nil {
		return model.PartialBridgeTxn{}, err
	}
	rec, err := source.NewRecord(t, it.ID, rd.block, rd.time)
	if err != nil {
		return model.PartialBridgeTxn{}, err
	}
	rec.GasPaid = rd.gas
	if err := p.classify(t, rd, &rec); err != nil {
		return model.PartialBridgeTxn{}, err
	}
	source.Finish(t, &rec, rd.failed)
	return rec, nil
}

func (p *LegacyParser) classify(t source.Target, rd receiptData, rec *model.PartialBridgeTxn) error {
	if rd.failed {
		rec.Reason = "transaction reverted"
		return nil
	}
	bridge, transfers, err := scanLogs(p.events, t.Network.Kind, t.Roles.Contract, rd.logs)
	if err == nil && bridge != nil {
		err = p.bridgeEvent(t, bridge, rec)
	} else if err == nil {
		err = legacyTransfers(p.tokens, t, transfers, rec)
	}
	if errors.Is(err, model.ErrMalformed) {
		malformed(rec, err)
		return nil
	}
	return err
}

func (p *LegacyParser) bridgeEvent(t source.Target, ev *bridgeLog, rec *model.PartialBridgeTxn) error {
	kind := t.Network.Kind
	tokenAddr, err := ArgAddress(ev.Args, "token")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	amount, err := ArgBigInt(ev.Args, "amount")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	tok, err := p.tokens.GetFromAddress(t.Network.Name, NativeAddress(kind, tokenAddr))
	if err != nil {
		return err
	}
	rec.TokenSymbol = tok.Symbol
	rec.Units = amount
	rec.Amount = model.FromBaseUnits(amount, tok.Decimals)
	decimals := tok.Decimals
	self := model.RoutingPoint{
		Network:            t.Network.Name,
		Symbol:             tok.Symbol,
		BaseUnits:          &decimals,
		TxnSignature:       rec.TxnID,
		TxnSignatureHashed: rec.TxnIDHashed,
	}

	switch ev.Name {
	case EventDeposit:
		sender, err := ArgAddress(ev.Args, "sender")
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrMalformed, err)
		}
		chainID, err := ArgUint16(ev.Args, "destinationChainId")
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrMalformed, err)
		}
		dest, err := ArgBytes32(ev.Args, "destinationAddress")
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrMalformed, err)
		}
		if err := source.CheckMinimum(model.TxnDeposit, tok.Symbol, tok.Minimum(), rec.Amount); err != nil {
			return err
		}
		self.Address = NativeAddress(kind, sender)
		destNet, destAddr, ok := source.Destination(t.Networks, chainID, dest[:])
		if !ok {
			rec.TxnType = model.TxnBadRouting
			rec.Reason = fmt.Sprintf("destination chain %d address %x is not routable", chainID, dest)
			return nil
		}
		destSym := tok.Symbol
		if dt, err := p.tokens.GetToken(destNet.Name, tok.Symbol); err == nil {
			destSym = dt.Symbol
		}
		rec.TxnType = model.TxnDeposit
		rec.Routing = model.NewRouting(self, model.RoutingPoint{Network: destNet.Name, Address: destAddr, Symbol: destSym}, amount, tok.Decimals)
	case EventRelease, EventRefund:
		recipient, err := ArgAddress(ev.Args, "recipient")
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrMalformed, err)
		}
		key := "sourceTxnHash"
		rec.TxnType = model.TxnRelease
		if ev.Name == EventRefund {
			key = "depositTxnHash"
			rec.TxnType = model.TxnRefund
		}
		origin, err := ArgBytes32(ev.Args, key)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrMalformed, err)
		}
		self.Address = NativeAddress(kind, recipient)
		rec.Routing = model.NewRouting(model.RoutingPoint{TxnSignature: common.Hash(origin).Hex()}, self, amount, tok.Decimals)
	}
	return nil
}

// legacyTransfers classifies plain token movements against the bridge
// roles. A transfer into the deposit address carries no routing metadata
// here, so it is a Transfer, not a Deposit.
func legacyTransfers(tokens *registry.Tokens, t source.Target, transfers []Transfer, rec *model.PartialBridgeTxn) error {
	kind := t.Network.Kind
	for _, tl := range transfers {
		m := tl.Movement(kind)
		typ := source.Classify(kind, t.Roles, m)
		if typ == model.TxnUnknown {
			continue
		}
		if typ == model.TxnDeposit {
			typ = model.TxnTransfer
		}
		tok, err := tokens.GetFromAddress(t.Network.Name, NativeAddress(kind, tl.Token))
		if err != nil {
			return err
		}
		decimals := tok.Decimals
		rec.TxnType = typ
		rec.TokenSymbol = tok.Symbol
		rec.Units = tl.Value
		rec.Amount = model.FromBaseUnits(tl.Value, tok.Decimals)
		rec.Routing = model.NewRouting(
			model.RoutingPoint{Network: t.Network.Name, Address: m.From, Symbol: tok.Symbol, BaseUnits: &decimals},
			model.RoutingPoint{Network: t.Network.Name, Address: m.To, Symbol: tok.Symbol, BaseUnits: &decimals, TxnSignature: rec.TxnID, TxnSignatureHashed: rec.TxnIDHashed},
			tl.Value, tok.Decimals,
		)
		return nil
	}
	return nil
}
