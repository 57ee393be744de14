package evm

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/source"
)

// DefaultBlockSpan bounds one log query window.
const DefaultBlockSpan = 2000

// Pager lists the transactions touching an address in ascending block
// windows: logs the address emits and ERC-20 transfers to or from it.
// Blocks are never split across pages.
type Pager struct {
	client Client
	span   uint64
}

// NewPager builds a block window pager.
func NewPager(client Client, span uint64) *Pager {
	if span == 0 {
		span = DefaultBlockSpan
	}
	return &Pager{client: client, span: span}
}

// Page implements source.Pager.
func (p *Pager) Page(ctx context.Context, c cursor.Cursor) (source.Page, error) {
	if !common.IsHexAddress(c.Address) {
		return source.Page{}, fmt.Errorf("%w: invalid evm address %q", model.ErrConfig, c.Address)
	}
	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		return source.Page{}, err
	}
	from, err := nextBlock(c, head)
	if err != nil {
		return source.Page{}, err
	}
	if from > head {
		return source.Page{Head: head}, nil
	}
	to := from + p.span - 1
	if to > head {
		to = head
	}

	addr := common.HexToAddress(c.Address)
	addrTopic := common.BytesToHash(addr.Bytes())
	transfer, err := LegacyEvents()
	if err != nil {
		return source.Page{}, err
	}
	transferTopic := transfer.Topic(EventTransfer)
	queries := []ethereum.FilterQuery{
		{Addresses: []common.Address{addr}},
		{Topics: [][]common.Hash{{transferTopic}, {addrTopic}}},
		{Topics: [][]common.Hash{{transferTopic}, nil, {addrTopic}}},
	}

	var logs []types.Log
	for _, q := range queries {
		q.FromBlock = new(big.Int).SetUint64(from)
		q.ToBlock = new(big.Int).SetUint64(to)
		got, err := p.client.FilterLogs(ctx, q)
		if err != nil {
			return source.Page{}, err
		}
		logs = append(logs, got...)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	page := source.Page{Head: head, MaxBlock: to, Scanned: to}
	seen := map[common.Hash]struct{}{}
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		if _, dup := seen[lg.TxHash]; dup {
			continue
		}
		if c.Limit > 0 && len(page.Items) >= c.Limit && lg.BlockNumber != page.Items[len(page.Items)-1].Block {
			// Page is full; resume from the next block.
			page.MaxBlock = page.Items[len(page.Items)-1].Block
			page.Scanned = 0
			break
		}
		seen[lg.TxHash] = struct{}{}
		page.Items = append(page.Items, source.Item{ID: lg.TxHash.Hex(), Block: lg.BlockNumber})
	}
	return page, nil
}

func nextBlock(c cursor.Cursor, head uint64) (uint64, error) {
	if p, ok := c.Paging(); ok {
		return p.Batch.Position.Block + 1, nil
	}
	if end := c.End(); end != nil {
		return end.Block + 1, nil
	}
	return source.StartHeight(c.Start, head)
}
