package algorand

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/source"
)

// Pager walks indexer results for an address from the round after the
// cursor end, following next tokens while a batch is open.
type Pager struct {
	client Client
}

// NewPager builds an indexer pager.
func NewPager(client Client) *Pager {
	return &Pager{client: client}
}

// Page implements source.Pager.
func (p *Pager) Page(ctx context.Context, c cursor.Cursor) (source.Page, error) {
	if _, err := types.DecodeAddress(c.Address); err != nil {
		return source.Page{}, fmt.Errorf("%w: invalid algorand address %q: %v", model.ErrConfig, c.Address, err)
	}
	head, err := p.client.Head(ctx)
	if err != nil {
		return source.Page{}, err
	}

	q := Query{Address: c.Address}
	if c.Limit > 0 {
		q.Limit = uint64(c.Limit)
	}
	paging, open := c.Paging()
	switch end := c.End(); {
	case end != nil:
		q.MinRound = end.Block + 1
	case !open:
		q.MinRound, err = source.StartHeight(c.Start, head)
		if err != nil {
			return source.Page{}, err
		}
	}
	if open {
		q.Next = paging.Batch.Position.Token
	}

	resp, err := p.client.Search(ctx, q)
	if err != nil {
		return source.Page{}, err
	}
	txns := append([]models.Transaction(nil), resp.Transactions...)
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].ConfirmedRound < txns[j].ConfirmedRound })

	page := source.Page{Token: resp.NextToken, Head: max(head, resp.CurrentRound)}
	for _, tx := range txns {
		page.Items = append(page.Items, source.Item{
			ID:    tx.Id,
			Block: tx.ConfirmedRound,
			Time:  time.Unix(int64(tx.RoundTime), 0).UTC(),
			Raw:   tx,
		})
		page.MaxBlock = max(page.MaxBlock, tx.ConfirmedRound)
	}
	return page, nil
}
