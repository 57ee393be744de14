package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
)

// Observer receives poll outcomes; metrics implement it.
type Observer interface {
	ObservePoll(network string, records int, err error)
	ObserveParseFailure(network string)
	ObserveRetry(network string)
}

// Result is what one poll returns. Callers must persist Cursor before the
// next poll of the same address.
type Result struct {
	Cursor  cursor.Cursor
	Records []model.PartialBridgeTxn
}

// PollerConfig wires one network's poller.
type PollerConfig struct {
	Network  model.Network
	Networks *model.Networks
	Pager    Pager
	Parsers  Table
	Roles    model.RoleBook
	// Conn is reconnected between retry attempts; optional.
	Conn     Reconnector
	Retry    RetryPolicy
	FanOut   int
	Logger   *slog.Logger
	Observer Observer
}

// Poller enumerates bridge activity on one network. A cursor must be owned
// by one Poll call at a time; different cursors may be polled concurrently.
type Poller struct {
	cfg PollerConfig
	log *slog.Logger
}

// NewPoller validates the wiring of a network poller.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Pager == nil {
		return nil, fmt.Errorf("%w: network %s has no pager", model.ErrConfig, cfg.Network.Name)
	}
	if len(cfg.Parsers) == 0 {
		return nil, fmt.Errorf("%w: network %s has no parsers", model.ErrConfig, cfg.Network.Name)
	}
	if cfg.Networks == nil {
		return nil, fmt.Errorf("%w: network directory is required", model.ErrConfig)
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetry
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Poller{cfg: cfg, log: log.With("network", cfg.Network.Name)}, nil
}

// Network returns the network this poller serves.
func (p *Poller) Network() model.Network {
	return p.cfg.Network
}

// Poll fetches one page after the cursor, parses the unseen items, and
// returns the advanced cursor with the records that pass its filter. On
// error the input cursor is still the one to resume from.
func (p *Poller) Poll(ctx context.Context, c cursor.Cursor) (Result, error) {
	recs, next, err := p.poll(ctx, c)
	if p.cfg.Observer != nil {
		p.cfg.Observer.ObservePoll(p.cfg.Network.Name, len(recs), err)
	}
	if err != nil {
		return Result{Cursor: c}, err
	}
	return Result{Cursor: next, Records: recs}, nil
}

func (p *Poller) poll(ctx context.Context, c cursor.Cursor) ([]model.PartialBridgeTxn, cursor.Cursor, error) {
	if !strings.EqualFold(c.Network, p.cfg.Network.Name) {
		return nil, c, fmt.Errorf("%w: cursor for %s polled on %s", model.ErrConfig, c.Network, p.cfg.Network.Name)
	}
	parser, err := p.cfg.Parsers.Lookup(p.cfg.Network.Kind, c.Bridge)
	if err != nil {
		return nil, c, err
	}
	roles, err := p.cfg.Roles.Lookup(p.cfg.Network.Name, c.Bridge)
	if err != nil {
		return nil, c, err
	}

	var page Page
	err = Retry(ctx, p.cfg.Retry, p.cfg.Conn, p.log, p.onRetry, func(ctx context.Context) error {
		var perr error
		page, perr = p.cfg.Pager.Page(ctx, c)
		return perr
	})
	if err != nil {
		return nil, c, fmt.Errorf("page %s: %w", c.Key(), err)
	}

	target := Target{
		Network:  p.cfg.Network,
		Networks: p.cfg.Networks,
		Bridge:   c.Bridge,
		Address:  c.Address,
		Roles:    roles,
		Head:     page.Head,
	}

	seen := cursor.Seen(c)
	fresh := make([]Item, 0, len(page.Items))
	for _, it := range page.Items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		fresh = append(fresh, it)
	}

	parsed := make([]*model.PartialBridgeTxn, len(fresh))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FanOut)
	for i, it := range fresh {
		i, it := i, it
		g.Go(func() error {
			rec, err := p.process(gctx, parser, target, it)
			switch {
			case err == nil:
				parsed[i] = &rec
				return nil
			case errors.Is(err, model.ErrConfig), errors.Is(err, ErrRetriesExhausted),
				errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return fmt.Errorf("item %s: %w", it.ID, err)
			default:
				p.log.Warn("dropping bridge item",
					"bridge_type", c.Bridge, "address", c.Address, "txn", it.ID, "error", err)
				if p.cfg.Observer != nil {
					p.cfg.Observer.ObserveParseFailure(p.cfg.Network.Name)
				}
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, c, err
	}

	recs := make([]model.PartialBridgeTxn, 0, len(parsed))
	for _, r := range parsed {
		if r != nil {
			recs = append(recs, *r)
		}
	}
	recs = cursor.Apply(c, recs)

	next := cursor.Advance(c, page.IDs(), page.MaxBlock, page.Token)
	if page.Scanned > 0 {
		next = cursor.Checkpoint(next, page.Scanned)
	}
	p.log.Debug("polled", "address", c.Address, "bridge_type", c.Bridge,
		"items", len(page.Items), "fresh", len(fresh), "records", len(recs))
	return recs, next, nil
}

func (p *Poller) process(ctx context.Context, parser Parser, t Target, it Item) (model.PartialBridgeTxn, error) {
	var rec model.PartialBridgeTxn
	err := Retry(ctx, p.cfg.Retry, p.cfg.Conn, p.log, p.onRetry, func(ctx context.Context) error {
		var perr error
		rec, perr = parser.Process(ctx, t, it)
		if perr != nil && !errors.Is(perr, ErrTransport) {
			return Permanent(perr)
		}
		return perr
	})
	return rec, err
}

func (p *Poller) onRetry() {
	if p.cfg.Observer != nil {
		p.cfg.Observer.ObserveRetry(p.cfg.Network.Name)
	}
}

// PollAll polls every cursor once and concatenates the records. Cursors are
// independent, so they run concurrently up to the fan-out limit. Returned
// results follow the input order; a failed cursor comes back unchanged and
// its error is joined into the returned error.
func (p *Poller) PollAll(ctx context.Context, cursors []cursor.Cursor) ([]Result, []model.PartialBridgeTxn, error) {
	results := make([]Result, len(cursors))
	errs := make([]error, len(cursors))
	var g errgroup.Group
	g.SetLimit(p.cfg.FanOut)
	for i, c := range cursors {
		i, c := i, c
		g.Go(func() error {
			res, err := p.Poll(ctx, c)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("cursor %s: %w", c.Key(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var all []model.PartialBridgeTxn
	for _, r := range results {
		all = append(all, r.Records...)
	}
	return results, all, errors.Join(errs...)
}
