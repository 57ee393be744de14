// Package cursor tracks resumable progress over the activity of one bridge
// address.
package cursor

import (
	"github.com/devblac/bridge-indexer/internal/model"
)

// Order is the direction a chain lists activity in.
type Order string

const (
	// Ascending walkers (block windows, rounds, timestamps) list oldest first.
	Ascending Order = "asc"
	// Descending walkers (Solana signatures) list newest first.
	Descending Order = "desc"
)

// OrderOf returns the listing order of a chain kind.
func OrderOf(kind model.ChainKind) Order {
	if kind == model.KindSolana {
		return Descending
	}
	return Ascending
}

// Position is a point in a chain's activity walk.
type Position struct {
	Txn   string `json:"txn,omitempty"`
	Block uint64 `json:"block,omitempty"`
	// Token is an opaque continuation handle returned by the chain API.
	Token string `json:"token,omitempty"`
}

// Batch is a provisional window spanning one or more full pages.
type Batch struct {
	IDs      []string `json:"txns"`
	Position Position `json:"position"`
}

// State is either AtHead or Paging.
type State interface {
	state()
}

// AtHead means the walk reached the chain head. End is the last committed
// position and is nil until the first commit.
type AtHead struct {
	End *Position
}

// Paging means the last page was full and more data is reachable from
// Batch.Position.
type Paging struct {
	Beginning Position
	Batch     Batch
	// End is the commit the walk started from, kept so descending walkers
	// know where to stop.
	End *Position
}

func (AtHead) state() {}
func (Paging) state() {}

// Filter optionally restricts which records a cursor returns.
type Filter struct {
	Types    []model.TxnType     `json:"types,omitempty" yaml:"types"`
	Statuses []model.ChainStatus `json:"statuses,omitempty" yaml:"statuses"`
}

// Cursor is the progress marker of one (network, bridge type, address).
type Cursor struct {
	Network string
	Bridge  model.BridgeType
	Address string
	Limit   int
	Order   Order
	Filter  *Filter
	// Start is the chain specific first position used before any commit.
	Start string
	State State
	// LastBatchTxns are the ids of the most recently completed batch.
	LastBatchTxns []string
}

// New returns a cursor that has never committed. It walks in Ascending
// order; use ForNetwork when the chain may page newest first.
func New(network string, bridge model.BridgeType, address string, limit int) Cursor {
	return Cursor{
		Network: network,
		Bridge:  bridge,
		Address: address,
		Limit:   limit,
		Order:   Ascending,
		State:   AtHead{},
	}
}

// ForNetwork is New with the walk order of the network's chain kind.
func ForNetwork(net model.Network, bridge model.BridgeType, address string, limit int) Cursor {
	c := New(net.Name, bridge, address, limit)
	c.Order = OrderOf(net.Kind)
	return c
}

// Key identifies the cursor for storage and logging.
func (c Cursor) Key() string {
	return c.Network + "/" + string(c.Bridge) + "/" + c.Address
}

// End returns the committed position, if any.
func (c Cursor) End() *Position {
	switch s := c.State.(type) {
	case AtHead:
		return s.End
	case Paging:
		return s.End
	}
	return nil
}

// Paging reports the open batch, if any.
func (c Cursor) Paging() (Paging, bool) {
	p, ok := c.State.(Paging)
	return p, ok
}

// Advance folds one page of raw ids into the cursor. maxBlock is the
// furthest block the page covers and token the continuation handle for the
// next page. A page holding at least Limit ids is full and opens or extends
// a batch; a shorter page completes the walk.
func Advance(c Cursor, ids []string, maxBlock uint64, token string) Cursor {
	next := c.clone()
	switch {
	case len(ids) == 0:
		if p, ok := c.State.(Paging); ok {
			next.complete(p)
		}
	case c.Limit > 0 && len(ids) >= c.Limit:
		next.State = next.extend(ids, maxBlock, token)
	default:
		if _, ok := c.State.(Paging); ok {
			next.complete(next.extend(ids, maxBlock, token))
			break
		}
		head := ids[len(ids)-1]
		if c.Order == Descending {
			head = ids[0]
		}
		block := maxBlock
		if end := c.End(); end != nil && end.Block > block {
			block = end.Block
		}
		next.State = AtHead{End: &Position{Txn: head, Block: block, Token: token}}
		next.LastBatchTxns = nil
	}
	return next
}

// Checkpoint records that the walk scanned up to block without finding
// activity. Only block-window walkers need it; it never moves backwards and
// leaves an open batch alone.
func Checkpoint(c Cursor, block uint64) Cursor {
	s, ok := c.State.(AtHead)
	if !ok {
		return c
	}
	next := c.clone()
	end := Position{}
	if s.End != nil {
		end = *s.End
	}
	if block <= end.Block && s.End != nil {
		return c
	}
	end.Block = block
	end.Token = ""
	next.State = AtHead{End: &end}
	return next
}

// Seen returns ids that must be skipped when dispatching the next page.
func Seen(c Cursor) map[string]struct{} {
	out := make(map[string]struct{}, len(c.LastBatchTxns))
	for _, id := range c.LastBatchTxns {
		out[id] = struct{}{}
	}
	if p, ok := c.State.(Paging); ok {
		for _, id := range p.Batch.IDs {
			out[id] = struct{}{}
		}
	}
	return out
}

// Accept reports whether a record passes the cursor's optional filter.
func Accept(c Cursor, rec model.PartialBridgeTxn) bool {
	f := c.Filter
	if f == nil {
		return true
	}
	if len(f.Types) > 0 && !contains(f.Types, rec.TxnType) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, rec.ChainStatus) {
		return false
	}
	return true
}

// Apply drops records the cursor filter rejects.
func Apply(c Cursor, recs []model.PartialBridgeTxn) []model.PartialBridgeTxn {
	if c.Filter == nil {
		return recs
	}
	out := recs[:0:0]
	for _, r := range recs {
		if Accept(c, r) {
			out = append(out, r)
		}
	}
	return out
}

func (c *Cursor) extend(ids []string, maxBlock uint64, token string) Paging {
	last := Position{Txn: ids[len(ids)-1], Block: maxBlock, Token: token}
	if p, ok := c.State.(Paging); ok {
		p.Batch.IDs = append(append([]string(nil), p.Batch.IDs...), ids...)
		if last.Block < p.Batch.Position.Block {
			last.Block = p.Batch.Position.Block
		}
		p.Batch.Position = last
		return p
	}
	return Paging{
		Beginning: Position{Txn: ids[0], Block: maxBlock},
		Batch:     Batch{IDs: append([]string(nil), ids...), Position: last},
		End:       c.End(),
	}
}

// complete commits a batch. Descending walkers commit the newest id, which
// is where the batch began; ascending walkers commit the furthest position.
func (c *Cursor) complete(p Paging) {
	end := p.Batch.Position
	if c.Order == Descending {
		end = p.Beginning
		end.Token = ""
	}
	if p.Batch.Position.Block > end.Block {
		end.Block = p.Batch.Position.Block
	}
	if p.End != nil && p.End.Block > end.Block {
		end.Block = p.End.Block
	}
	c.State = AtHead{End: &end}
	c.LastBatchTxns = append([]string(nil), p.Batch.IDs...)
}

func (c Cursor) clone() Cursor {
	next := c
	next.LastBatchTxns = append([]string(nil), c.LastBatchTxns...)
	if next.State == nil {
		next.State = AtHead{}
	}
	if next.Order == "" {
		next.Order = Ascending
	}
	return next
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
