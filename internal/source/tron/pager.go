package tron

import (
	"context"
	"fmt"
	"time"

	"github.com/devblac/bridge-indexer/internal/codec"
	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
)

// Pager walks TRC-20 transfers of an address oldest first. Positions are
// block timestamps in milliseconds; a fresh walk starts one millisecond
// after the committed timestamp, since a block's transfers are listed
// together. An open batch continues from its fingerprint.
type Pager struct {
	client Client
	now    func() time.Time
}

// NewPager builds a transfer pager.
func NewPager(client Client) *Pager {
	return &Pager{client: client, now: time.Now}
}

// Page implements source.Pager.
func (p *Pager) Page(ctx context.Context, c cursor.Cursor) (source.Page, error) {
	if c.Order != cursor.Ascending {
		return source.Page{}, fmt.Errorf("%w: tron cursor %s must walk ascending", model.ErrConfig, c.Key())
	}
	if _, err := codec.SerializeAddress(model.KindTron, c.Address); err != nil {
		return source.Page{}, fmt.Errorf("%w: %v", model.ErrConfig, err)
	}
	head, err := p.client.NowBlock(ctx)
	if err != nil {
		return source.Page{}, err
	}

	q := TransferQuery{Address: c.Address, Limit: c.Limit}
	if end := c.End(); end != nil {
		q.MinTimestamp = end.Block + 1
	} else {
		now := head.Timestamp
		if now == 0 {
			now = uint64(p.now().UnixMilli())
		}
		if q.MinTimestamp, err = source.StartHeight(c.Start, now); err != nil {
			return source.Page{}, err
		}
	}
	if paging, ok := c.Paging(); ok {
		q.Fingerprint = paging.Batch.Position.Token
	}

	list, err := p.client.Transfers(ctx, q)
	if err != nil {
		return source.Page{}, err
	}
	page := source.Page{Head: head.Number, Token: list.Fingerprint}
	for _, tr := range list.Transfers {
		page.Items = append(page.Items, source.Item{
			ID:    tr.TransactionID,
			Block: tr.BlockTimestamp,
			Time:  time.UnixMilli(int64(tr.BlockTimestamp)).UTC(),
		})
		page.MaxBlock = max(page.MaxBlock, tr.BlockTimestamp)
	}
	return page, nil
}

// Deps are what the Tron parsers need.
type Deps struct {
	Client Client
	Tokens *registry.Tokens
	Assets *registry.Assets
}

// Register installs the Tron parsers for the bridge generations the
// registries support.
func Register(table source.Table, d Deps) error {
	if d.Tokens != nil {
		legacy, err := NewLegacyParser(d.Client, d.Tokens)
		if err != nil {
			return err
		}
		table.Register(model.KindTron, legacy, model.BridgeLegacy, model.BridgeCircle)
	}
	if d.Assets != nil {
		v2, err := NewV2Parser(d.Client, d.Assets)
		if err != nil {
			return err
		}
		table.Register(model.KindTron, v2, model.BridgeV2)
	}
	return nil
}
