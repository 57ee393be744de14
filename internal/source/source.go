// Package source turns chain activity into canonical bridge records. Each
// chain package supplies a Pager and one Parser per bridge generation; the
// Poller drives them over a cursor.
package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devblac/bridge-indexer/internal/codec"
	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
)

// ErrTransport marks connector failures worth retrying.
var ErrTransport = errors.New("transport error")

// Transport wraps a connector error so the poller retries it.
func Transport(err error) error {
	if err == nil || errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// Item is one entry of a chain activity listing.
type Item struct {
	ID    string
	Block uint64
	Time  time.Time
	// Raw holds whatever the pager already fetched, so parsers can skip a
	// round trip. It may be nil.
	Raw any
}

// Page is one bounded listing of an address's activity.
type Page struct {
	Items []Item
	// MaxBlock is the furthest block or slot the page covers.
	MaxBlock uint64
	// Token continues the listing on the next call.
	Token string
	// Head is the chain head observed while paging, for confirmations.
	Head uint64
	// Scanned is set by block-window pagers to the last block examined,
	// which may be past MaxBlock when the window held no activity.
	Scanned uint64
}

// IDs returns the raw ids of the page in listing order.
func (p Page) IDs() []string {
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.ID
	}
	return out
}

// Pager lists activity for a cursor, after its committed or batch position.
type Pager interface {
	Page(ctx context.Context, c cursor.Cursor) (Page, error)
}

// Reconnector re-establishes a connector between retry attempts.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Target is what a parser needs to know about the cursor it serves.
type Target struct {
	Network  model.Network
	Networks *model.Networks
	Bridge   model.BridgeType
	Address  string
	Roles    model.Roles
	Head     uint64
}

// Parser turns one activity item into a canonical record. Unrecognised data
// yields an Unknown or Error record, not an error. Errors wrapping
// model.ErrConfig abort the poll; errors wrapping ErrTransport are retried;
// anything else drops the item.
type Parser interface {
	Process(ctx context.Context, t Target, item Item) (model.PartialBridgeTxn, error)
}

// Key selects a parser.
type Key struct {
	Kind   model.ChainKind
	Bridge model.BridgeType
}

// Table maps (chain kind, bridge generation) to its parser.
type Table map[Key]Parser

// Register adds a parser for one or more bridge generations.
func (t Table) Register(kind model.ChainKind, p Parser, bridges ...model.BridgeType) {
	for _, b := range bridges {
		t[Key{Kind: kind, Bridge: b}] = p
	}
}

// Lookup returns the parser for a chain kind and bridge generation.
func (t Table) Lookup(kind model.ChainKind, bridge model.BridgeType) (Parser, error) {
	p, ok := t[Key{Kind: kind, Bridge: bridge}]
	if !ok {
		return nil, fmt.Errorf("%w: no %s parser for %s", model.ErrConfig, bridge, kind)
	}
	return p, nil
}

// NewRecord seeds a record with the fields every parser fills the same way.
func NewRecord(t Target, txnID string, block uint64, ts time.Time) (model.PartialBridgeTxn, error) {
	hashed, err := codec.HashedTransactionID(t.Network.Name, t.Network.Kind, txnID)
	if err != nil {
		return model.PartialBridgeTxn{}, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	rec := model.PartialBridgeTxn{
		TxnID:       txnID,
		TxnIDHashed: hashed,
		TxnType:     model.TxnUnknown,
		Network:     t.Network.Name,
		BridgeType:  t.Bridge,
		Block:       block,
		Timestamp:   ts.UTC(),
		Address:     t.Address,
	}
	if t.Head >= block && block > 0 {
		rec.Confirmations = t.Head - block
	}
	return rec, nil
}

// Finish sets the chain status from the receipt outcome and confirmations.
func Finish(t Target, rec *model.PartialBridgeTxn, failed bool) {
	rec.SetStatus(failed, t.Network.Confirmations)
}

// StartHeight resolves a configured start position against the chain head.
// It accepts a block or round number, "latest", or "latest-N".
func StartHeight(start string, head uint64) (uint64, error) {
	start = strings.TrimSpace(start)
	if start == "" || start == "0" {
		return 0, nil
	}
	if start == "latest" {
		return head, nil
	}
	if strings.HasPrefix(start, "latest-") {
		n, err := strconv.ParseUint(strings.TrimPrefix(start, "latest-"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: parse start %q: %v", model.ErrConfig, start, err)
		}
		if n > head {
			return 0, nil
		}
		return head - n, nil
	}
	n, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse start %q: %v", model.ErrConfig, start, err)
	}
	return n, nil
}
