package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/devblac/bridge-indexer/internal/codec"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/source"
)

// Log is the part of an EVM-style log the bridge rules read. Tron event
// logs convert to it as well.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
	Index   uint
}

func fromReceipt(r *types.Receipt) []Log {
	out := make([]Log, 0, len(r.Logs))
	for _, lg := range r.Logs {
		if lg == nil || lg.Removed {
			continue
		}
		out = append(out, Log{Address: lg.Address, Topics: lg.Topics, Data: lg.Data, Index: lg.Index})
	}
	return out
}

type receiptData struct {
	logs   []Log
	block  uint64
	time   time.Time
	gas    *big.Int
	failed bool
}

func loadReceipt(ctx context.Context, client Client, id string) (receiptData, error) {
	raw := common.FromHex(id)
	if len(raw) != common.HashLength {
		return receiptData{}, fmt.Errorf("%w: evm transaction hash %q", model.ErrMalformed, id)
	}
	hash := common.BytesToHash(raw)
	r, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		return receiptData{}, fmt.Errorf("receipt %s: %w", id, err)
	}
	if r == nil || r.BlockNumber == nil {
		return receiptData{}, source.Transport(errors.New("receipt " + id + " not available"))
	}
	tx, _, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return receiptData{}, fmt.Errorf("transaction %s: %w", id, err)
	}
	block := r.BlockNumber.Uint64()
	ts, err := client.BlockTime(ctx, block)
	if err != nil {
		return receiptData{}, err
	}
	return receiptData{
		logs:   fromReceipt(r),
		block:  block,
		time:   ts,
		gas:    gasPaid(r, tx),
		failed: r.Status == types.ReceiptStatusFailed,
	}, nil
}

// gasPaid is gasUsed times the effective price. Chains without EIP-1559
// receipts report no effective price, so the legacy gas price of the
// transaction is used instead.
func gasPaid(r *types.Receipt, tx *types.Transaction) *big.Int {
	price := r.EffectiveGasPrice
	if price == nil || price.Sign() == 0 {
		if tx == nil {
			return nil
		}
		price = tx.GasPrice()
	}
	if price == nil {
		return nil
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), price)
}

// Transfer is a decoded ERC-20 or TRC-20 Transfer log.
type Transfer struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

// bridgeLog is the first bridge event of a receipt.
type bridgeLog struct {
	Name string
	Args map[string]any
}

// scanLogs splits logs into the first bridge event emitted by contract (any
// emitter when contract is empty) and the ERC-20 transfers. A bridge event
// that matches by topic but fails to decode is returned as an error.
func scanLogs(events *Events, kind model.ChainKind, contract string, logs []Log) (*bridgeLog, []Transfer, error) {
	var bridge *bridgeLog
	var transfers []Transfer
	for _, lg := range logs {
		name, args, ok, err := events.Decode(lg.Topics, lg.Data)
		if !ok {
			continue
		}
		if name == EventTransfer {
			if err != nil {
				// ERC-721 transfers share topic0 but index the token id.
				continue
			}
			tl, terr := toTransfer(lg.Address, args)
			if terr == nil {
				transfers = append(transfers, tl)
			}
			continue
		}
		if contract != "" && !kind.SameAddress(NativeAddress(kind, lg.Address), contract) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformed, err)
		}
		if bridge == nil {
			bridge = &bridgeLog{Name: name, Args: args}
		}
	}
	return bridge, transfers, nil
}

func toTransfer(token common.Address, args map[string]any) (Transfer, error) {
	from, err := ArgAddress(args, "from")
	if err != nil {
		return Transfer{}, err
	}
	to, err := ArgAddress(args, "to")
	if err != nil {
		return Transfer{}, err
	}
	value, err := ArgBigInt(args, "value")
	if err != nil {
		return Transfer{}, err
	}
	return Transfer{Token: token, From: from, To: to, Value: value}, nil
}

// NativeAddress renders a 20-byte address for an EVM-style chain.
func NativeAddress(kind model.ChainKind, a common.Address) string {
	if kind == model.KindTron {
		s, err := codec.DeserializeAddress(model.KindTron, a.Bytes())
		if err == nil {
			return s
		}
	}
	return a.Hex()
}

// Movement renders the transfer in the chain's native address form.
func (t Transfer) Movement(kind model.ChainKind) source.Movement {
	return source.Movement{From: NativeAddress(kind, t.From), To: NativeAddress(kind, t.To)}
}

func malformed(rec *model.PartialBridgeTxn, err error) {
	rec.TxnType = model.TxnError
	rec.Reason = err.Error()
}

// Transfers decodes every token Transfer among logs, whoever emitted it.
func Transfers(logs []Log) ([]Transfer, error) {
	events, err := LegacyEvents()
	if err != nil {
		return nil, err
	}
	var transfers []Transfer
	for _, lg := range logs {
		name, args, ok, derr := events.Decode(lg.Topics, lg.Data)
		if !ok || name != EventTransfer || derr != nil {
			continue
		}
		if tl, terr := toTransfer(lg.Address, args); terr == nil {
			transfers = append(transfers, tl)
		}
	}
	return transfers, nil
}
