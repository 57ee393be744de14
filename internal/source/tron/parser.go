package tron

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
	"github.com/devblac/bridge-indexer/internal/source/evm"
)

// DecodeMemo reads the deposit note carried in raw_data.data. Free text
// memos carry no routing; a JSON memo that does not decode is malformed.
func DecodeMemo(raw []byte) (model.DepositNote, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return model.DepositNote{}, nil
	}
	n, err := model.ParseDepositNote(raw)
	if err != nil {
		return model.DepositNote{}, fmt.Errorf("%w: memo: %v", model.ErrMalformed, err)
	}
	return n, nil
}

// ToLogs converts TronGrid event logs to the EVM log shape the bridge ABI
// decoders read.
func ToLogs(in []EventLog) ([]evm.Log, error) {
	out := make([]evm.Log, 0, len(in))
	for i, lg := range in {
		a := lg.Address
		if len(a) == 42 {
			a = a[2:]
		}
		addr, err := hex.DecodeString(a)
		if err == nil && len(addr) != common.AddressLength {
			err = fmt.Errorf("address %q", lg.Address)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: log %d: %v", model.ErrMalformed, i, err)
		}
		topics := make([]common.Hash, 0, len(lg.Topics))
		for _, t := range lg.Topics {
			raw, err := hex.DecodeString(strings.TrimPrefix(t, "0x"))
			if err != nil || len(raw) != common.HashLength {
				return nil, fmt.Errorf("%w: log %d: topic %q", model.ErrMalformed, i, t)
			}
			topics = append(topics, common.BytesToHash(raw))
		}
		data, err := hex.DecodeString(strings.TrimPrefix(lg.Data, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: log %d: data: %v", model.ErrMalformed, i, err)
		}
		out = append(out, evm.Log{Address: common.BytesToAddress(addr), Topics: topics, Data: data, Index: uint(i)})
	}
	return out, nil
}

type txnData struct {
	block  uint64
	time   time.Time
	fee    *big.Int
	failed bool
	reason string
	logs   []evm.Log
	// logErr is set when the logs do not decode; the record becomes Error.
	logErr error
	memo   []byte
}

func load(ctx context.Context, client Client, id string) (txnData, error) {
	info, err := client.TransactionInfo(ctx, id)
	if err != nil {
		return txnData{}, err
	}
	d := txnData{
		block:  info.BlockNumber,
		time:   time.UnixMilli(int64(info.BlockTimeStamp)).UTC(),
		fee:    new(big.Int).SetUint64(info.Fee),
		failed: info.Failed(),
	}
	if d.failed {
		d.reason = "transaction reverted"
		if msg, err := hex.DecodeString(info.ResMessage); err == nil && len(msg) > 0 {
			d.reason += ": " + string(msg)
		}
		return d, nil
	}
	d.logs, d.logErr = ToLogs(info.Log)
	tx, err := client.Transaction(ctx, id)
	if err != nil {
		return txnData{}, err
	}
	if tx.RawData.Data != "" {
		memo, err := hex.DecodeString(tx.RawData.Data)
		if err != nil {
			d.logErr = errors.Join(d.logErr, fmt.Errorf("%w: memo hex: %v", model.ErrMalformed, err))
		}
		d.memo = memo
	}
	return d, nil
}

func process(ctx context.Context, client Client, t source.Target, it source.Item, classify func(source.Target, txnData, *model.PartialBridgeTxn) error) (model.PartialBridgeTxn, error) {
	d, err := load(ctx, client, it.ID)
	if err != nil {
		return model.PartialBridgeTxn{}, err
	}
	rec, err := source.NewRecord(t, it.ID, d.block, d.time)
	if err != nil {
		return model.PartialBridgeTxn{}, err
	}
	rec.GasPaid = d.fee
	switch {
	case d.failed:
		rec.Reason = d.reason
	case d.logErr != nil:
		rec.TxnType = model.TxnError
		rec.Reason = d.logErr.Error()
	default:
		if err := classify(t, d, &rec); err != nil {
			return model.PartialBridgeTxn{}, err
		}
	}
	source.Finish(t, &rec, d.failed)
	return rec, nil
}

// LegacyParser reads legacy and circle bridge transactions: TRC-20
// transfers to or from the bridge addresses, routed by the memo.
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
	return process(ctx, p.client, t, it, p.classify)
}

func (p *LegacyParser) classify(t source.Target, d txnData, rec *model.PartialBridgeTxn) error {
	transfers, err := evm.Transfers(d.logs)
	if err != nil {
		return err
	}
	// A payout from the deposit address naming the deposit it returns is
	// a refund.
	hint, _ := DecodeMemo(d.memo)
	for _, tl := range transfers {
		m := tl.Movement(model.KindTron)
		m.Refund = hint.DepositTxn != ""
		typ := source.Classify(model.KindTron, t.Roles, m)
		if typ == model.TxnUnknown {
			continue
		}
		err := p.apply(t, typ, tl, m, d.memo, rec)
		if errors.Is(err, model.ErrMalformed) {
			rec.TxnType = model.TxnError
			rec.Reason = err.Error()
			return nil
		}
		return err
	}
	return nil
}

func (p *LegacyParser) apply(t source.Target, typ model.TxnType, tl evm.Transfer, m source.Movement, memo []byte, rec *model.PartialBridgeTxn) error {
	tok, err := p.tokens.GetFromAddress(t.Network.Name, evm.NativeAddress(model.KindTron, tl.Token))
	if err != nil {
		return err
	}
	decimals := tok.Decimals
	rec.TokenSymbol = tok.Symbol
	rec.Units = new(big.Int).Set(tl.Value)
	rec.Amount = model.FromBaseUnits(tl.Value, decimals)
	from := model.RoutingPoint{Network: t.Network.Name, Address: m.From, Symbol: tok.Symbol, BaseUnits: &decimals}
	to := model.RoutingPoint{Network: t.Network.Name, Address: m.To, Symbol: tok.Symbol, BaseUnits: &decimals}

	note, err := DecodeMemo(memo)
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
			rec.Reason = fmt.Sprintf("memo destination %q on %q is not routable", note.Address, note.Network)
			return nil
		}
		destSym := tok.Symbol
		if dt, err := p.tokens.GetToken(destNet.Name, tok.Symbol); err == nil {
			destSym = dt.Symbol
		}
		rec.TxnType = typ
		rec.Routing = model.NewRouting(from, model.RoutingPoint{Network: destNet.Name, Address: destAddr, Symbol: destSym}, tl.Value, decimals)
		return nil
	}

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
	rec.Routing = model.NewRouting(from, to, tl.Value, decimals)
	return nil
}

// V2Parser reads vault bridge transactions with the EVM vault bridge rules.
type V2Parser struct {
	client Client
	rules  *evm.V2Rules
}

// NewV2Parser builds a vault bridge parser.
func NewV2Parser(client Client, assets *registry.Assets) (*V2Parser, error) {
	rules, err := evm.NewV2Rules(assets)
	if err != nil {
		return nil, err
	}
	return &V2Parser{client: client, rules: rules}, nil
}

// Process implements source.Parser.
func (p *V2Parser) Process(ctx context.Context, t source.Target, it source.Item) (model.PartialBridgeTxn, error) {
	return process(ctx, p.client, t, it, func(t source.Target, d txnData, rec *model.PartialBridgeTxn) error {
		return p.rules.Apply(t, d.logs, rec)
	})
}
