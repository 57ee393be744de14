package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/registry"
	"github.com/devblac/bridge-indexer/internal/source"
)

// Pager walks signatures of an address newest first. A fresh walk goes
// back to the committed signature, or to Start when nothing is committed;
// an open batch continues before its oldest signature.
type Pager struct {
	client Client
}

// NewPager builds a signature pager.
func NewPager(client Client) *Pager {
	return &Pager{client: client}
}

// Page implements source.Pager.
func (p *Pager) Page(ctx context.Context, c cursor.Cursor) (source.Page, error) {
	if c.Order != cursor.Descending {
		return source.Page{}, fmt.Errorf("%w: solana cursor %s must walk descending", model.ErrConfig, c.Key())
	}
	if raw := base58.Decode(c.Address); len(raw) != 32 {
		return source.Page{}, fmt.Errorf("%w: invalid solana address %q", model.ErrConfig, c.Address)
	}
	slot, err := p.client.Slot(ctx)
	if err != nil {
		return source.Page{}, err
	}

	q := SignatureQuery{Address: c.Address, Limit: c.Limit}
	if end := c.End(); end != nil {
		q.Until = end.Txn
	} else {
		q.Until = c.Start
	}
	if paging, ok := c.Paging(); ok {
		q.Before = paging.Batch.Position.Txn
	}

	sigs, err := p.client.Signatures(ctx, q)
	if err != nil {
		return source.Page{}, err
	}
	page := source.Page{Head: slot}
	for _, s := range sigs {
		it := source.Item{ID: s.Signature, Block: s.Slot}
		if s.BlockTime != nil {
			it.Time = time.Unix(*s.BlockTime, 0).UTC()
		}
		page.Items = append(page.Items, it)
		page.MaxBlock = max(page.MaxBlock, s.Slot)
	}
	if page.Head < page.MaxBlock {
		page.Head = page.MaxBlock
	}
	return page, nil
}

// Deps are what the Solana parsers need.
type Deps struct {
	Client Client
	Tokens *registry.Tokens
	Assets *registry.Assets
}

// Register installs the Solana parsers for the bridge generations the
// registries support.
func Register(table source.Table, d Deps) error {
	if d.Tokens != nil {
		legacy, err := NewLegacyParser(d.Client, d.Tokens)
		if err != nil {
			return err
		}
		table.Register(model.KindSolana, legacy, model.BridgeLegacy, model.BridgeCircle)
	}
	if d.Assets != nil {
		v2, err := NewV2Parser(d.Client, d.Assets)
		if err != nil {
			return err
		}
		table.Register(model.KindSolana, v2, model.BridgeV2)
	}
	return nil
}
