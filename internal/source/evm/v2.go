package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
)

// V2Rules interprets vault bridge logs. Tron shares them, so they work on
// Log values rather than receipts.
type V2Rules struct {
	assets *registry.Assets
	events *Events
}

// NewV2Rules binds the vault bridge ABI to an asset registry.
func NewV2Rules(assets *registry.Assets) (*V2Rules, error) {
	if assets == nil {
		return nil, fmt.Errorf("%w: asset registry is required for v2 bridges", model.ErrConfig)
	}
	events, err := V2Events()
	if err != nil {
		return nil, err
	}
	return &V2Rules{assets: assets, events: events}, nil
}

// Apply fills rec from the logs of one transaction. Malformed bridge
// payloads become Error records; registry and vault violations are
// returned as errors.
func (r *V2Rules) Apply(t source.Target, logs []Log, rec *model.PartialBridgeTxn) error {
	bridge, transfers, err := scanLogs(r.events, t.Network.Kind, t.Roles.Contract, logs)
	if err == nil && bridge != nil {
		err = r.bridgeEvent(t, bridge, transfers, rec)
	} else if err == nil {
		err = r.transfers(t, transfers, rec)
	}
	if errors.Is(err, model.ErrMalformed) {
		malformed(rec, err)
		return nil
	}
	return err
}

func (r *V2Rules) bridgeEvent(t source.Target, ev *bridgeLog, transfers []Transfer, rec *model.PartialBridgeTxn) error {
	kind := t.Network.Kind
	vaultID, err := ArgUint64(ev.Args, "vaultId")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	amount, err := ArgBigInt(ev.Args, "amount")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	tok, err := r.assets.ByVaultID(t.Network.Name, vaultID)
	if err != nil {
		return err
	}
	base, err := r.assets.Parent(tok)
	if err != nil {
		return err
	}
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
		self.Address = NativeAddress(kind, sender)
		if err := r.checkVault(kind, tok, model.TxnDeposit, transfers, func(tl Transfer) bool { return tl.From == sender }); err != nil {
			return err
		}
		if err := source.CheckMinimum(model.TxnDeposit, tok.Symbol, tok.Minimum(), rec.Amount); err != nil {
			return err
		}
		destNet, destAddr, ok := source.Destination(t.Networks, chainID, dest[:])
		if !ok {
			rec.TxnType = model.TxnBadRouting
			rec.Reason = fmt.Sprintf("destination chain %d address %x is not routable", chainID, dest)
			return nil
		}
		destTok, err := r.assets.Child(base, destNet.Name)
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
		recipient, err := ArgAddress(ev.Args, "recipient")
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrMalformed, err)
		}
		self.Address = NativeAddress(kind, recipient)
		origin := model.Routing2Point{Network: t.Network.Name, Symbol: tok.Symbol, BaseUnits: tok.Decimals}
		typ := model.TxnRefund
		hashKey := "depositTxnHash"
		if ev.Name == EventRelease {
			typ = model.TxnRelease
			hashKey = "sourceTxnHash"
			srcID, err := ArgUint16(ev.Args, "sourceChainId")
			if err != nil {
				return fmt.Errorf("%w: %v", model.ErrMalformed, err)
			}
			if srcNet, ok := t.Networks.ByBridgeID(srcID); ok {
				origin.Network = srcNet.Name
				if srcTok, err := r.assets.Child(base, srcNet.Name); err == nil {
					origin.Symbol = srcTok.Symbol
					origin.BaseUnits = srcTok.Decimals
				}
			} else {
				origin.Network = ""
			}
		}
		originHash, err := ArgBytes32(ev.Args, hashKey)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrMalformed, err)
		}
		origin.TxnSignature = common.Hash(originHash).Hex()
		if err := r.checkVault(kind, tok, typ, transfers, func(tl Transfer) bool { return tl.To == recipient }); err != nil {
			return err
		}
		rec.TxnType = typ
		rec.Routing2 = model.NewRouting2(origin, self, model.Rescale(amount, tok.Decimals, origin.BaseUnits))
		rec.Routing2.To.Units = new(big.Int).Set(amount)
	}
	return nil
}

// checkVault finds the token transfer paired with a bridge event and checks
// its counterparty. Native coin vaults emit no transfer and are skipped.
func (r *V2Rules) checkVault(kind model.ChainKind, tok registry.ChainToken, typ model.TxnType, transfers []Transfer, match func(Transfer) bool) error {
	if tok.Address == "" || tok.VaultType == "" {
		return nil
	}
	for _, tl := range transfers {
		if !kind.SameAddress(NativeAddress(kind, tl.Token), tok.Address) || !match(tl) {
			continue
		}
		return source.CheckVault(kind, tok, typ, tl.Movement(kind))
	}
	return fmt.Errorf("%w: no %s transfer paired with %s", model.ErrVaultCounterparty, tok.Symbol, typ)
}

func (r *V2Rules) transfers(t source.Target, transfers []Transfer, rec *model.PartialBridgeTxn) error {
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
		tok, err := r.assets.ByAddress(t.Network.Name, NativeAddress(kind, tl.Token))
		if err != nil {
			return err
		}
		rec.TxnType = typ
		rec.TokenSymbol = tok.Symbol
		rec.Units = tl.Value
		rec.Amount = model.FromBaseUnits(tl.Value, tok.Decimals)
		rec.Routing2 = model.NewRouting2(
			model.Routing2Point{Network: t.Network.Name, Address: m.From, Symbol: tok.Symbol, BaseUnits: tok.Decimals},
			model.Routing2Point{Network: t.Network.Name, Address: m.To, Symbol: tok.Symbol, BaseUnits: tok.Decimals, TxnSignature: rec.TxnID, TxnSignatureHashed: rec.TxnIDHashed},
			tl.Value,
		)
		return nil
	}
	return nil
}

// V2Parser reads vault bridge receipts.
type V2Parser struct {
	client Client
	rules  *V2Rules
}

// NewV2Parser builds a vault bridge parser.
func NewV2Parser(client Client, assets *registry.Assets) (*V2Parser, error) {
	rules, err := NewV2Rules(assets)
	if err != nil {
		return nil, err
	}
	return &V2Parser{client: client, rules: rules}, nil
}

// Process implements source.Parser.
func (p *V2Parser) Process(ctx context.Context, t source.Target, it source.Item) (model.PartialBridgeTxn, error) {
	rd, err := loadReceipt(ctx, p.client, it.ID)
	if err != nil {
		return model.PartialBridgeTxn{}, err
	}
	rec, err := source.NewRecord(t, it.ID, rd.block, rd.time)
	if err != nil {
		return model.PartialBridgeTxn{}, err
	}
	rec.GasPaid = rd.gas
	if rd.failed {
		rec.Reason = "transaction reverted"
	} else if err := p.rules.Apply(t, rd.logs, &rec); err != nil {
		return model.PartialBridgeTxn{}, err
	}
	source.Finish(t, &rec, rd.failed)
	return rec, nil
}

// Deps are what the EVM parsers need.
type Deps struct {
	Client Client
	Tokens *registry.Tokens
	Assets *registry.Assets
}

// Register installs the EVM parsers for the bridge generations the
// registries support. A generation without a parser fails its polls with a
// configuration error.
func Register(table source.Table, d Deps) error {
	if d.Tokens != nil {
		legacy, err := NewLegacyParser(d.Client, d.Tokens)
		if err != nil {
			return err
		}
		table.Register(model.KindEVM, legacy, model.BridgeLegacy, model.BridgeCircle)
	}
	if d.Assets != nil {
		v2, err := NewV2Parser(d.Client, d.Assets)
		if err != nil {
			return err
		}
		table.Register(model.KindEVM, v2, model.BridgeV2)
	}
	return nil
}
