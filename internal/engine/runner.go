package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/devblac/bridge-indexer/internal/config"
	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/metrics"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/sink"
	"github.com/devblac/bridge-indexer/internal/source"
	"github.com/devblac/bridge-indexer/internal/storage"
)

// Poller polls every cursor of one network; *source.Poller implements it.
type Poller interface {
	PollAll(ctx context.Context, cursors []cursor.Cursor) ([]source.Result, []model.PartialBridgeTxn, error)
}

// Options tune a Runner.
type Options struct {
	DryRun  bool
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Runner polls all cursors, persists records with their cursors, and routes
// fresh records to sinks.
type Runner struct {
	store   *storage.Store
	pollers map[string]Poller
	seeds   []cursor.Cursor
	sinks   map[string]sink.Sender
	routes  []*routeExec
	metrics *metrics.Metrics
	log     *slog.Logger
	dryRun  bool
	nowFunc func() time.Time
	newID   func() string
}

type routeExec struct {
	route    config.Route
	networks map[string]struct{}
	bridges  map[string]struct{}
	preds    []Predicate
	ttl      time.Duration
	bucket   *TokenBucket
}

// Summary describes one pass.
type Summary struct {
	RunID     string
	Records   int
	Fresh     int
	Delivered int
}

// NewRunner builds a runner. Every seed cursor needs a poller for its
// network.
func NewRunner(store *storage.Store, routes []config.Route, seeds []cursor.Cursor, pollers map[string]Poller, sinks map[string]sink.Sender, opts Options) (*Runner, error) {
	for _, s := range seeds {
		if _, ok := pollers[s.Network]; !ok {
			return nil, fmt.Errorf("%w: cursor %s has no poller", model.ErrConfig, s.Key())
		}
	}

	execs := make([]*routeExec, 0, len(routes))
	for _, r := range routes {
		preds, err := CompilePredicates(r.Where)
		if err != nil {
			return nil, fmt.Errorf("route %s predicates: %w", r.ID, err)
		}
		var ttl time.Duration
		if r.Dedupe != nil && r.Dedupe.TTL != "" {
			if d, err := time.ParseDuration(r.Dedupe.TTL); err == nil {
				ttl = d
			}
		}
		exec := &routeExec{
			route:    r,
			networks: lowerSet(r.Networks),
			bridges:  lowerSet(r.BridgeTypes),
			preds:    preds,
			ttl:      ttl,
		}
		if r.RateLimit != nil {
			exec.bucket = NewTokenBucket(r.RateLimit.Capacity, r.RateLimit.PerSecond)
		}
		execs = append(execs, exec)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		store:   store,
		pollers: pollers,
		seeds:   seeds,
		sinks:   sinks,
		routes:  execs,
		metrics: opts.Metrics,
		log:     log,
		dryRun:  opts.DryRun,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}, nil
}

// Run polls every interval until ctx is done. Failed passes are logged and
// retried on the next tick.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("poll pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce polls every cursor once. Cursors of a failed poll stay where they
// were; the other cursors still commit.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: r.newID()}
	log := r.log.With("run_id", sum.RunID)

	byNetwork, err := r.load(ctx)
	if err != nil {
		return sum, err
	}

	var (
		mu      sync.Mutex
		results []source.Result
		errs    []error
		g       errgroup.Group
	)
	for network, cursors := range byNetwork {
		network, cursors := network, cursors
		g.Go(func() error {
			res, _, err := r.pollers[network].PollAll(ctx, cursors)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res...)
			if err != nil {
				errs = append(errs, fmt.Errorf("network %s: %w", network, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Cursor.Key() < results[j].Cursor.Key() })

	var fresh []model.PartialBridgeTxn
	for _, res := range results {
		sum.Records += len(res.Records)
		stored, err := r.store.Commit(ctx, res.Cursor, res.Records)
		if err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", res.Cursor.Key(), err))
			continue
		}
		if end := res.Cursor.End(); end != nil {
			r.metrics.CursorAt(res.Cursor.Key(), end.Block)
		}
		r.metrics.Records(stored)
		fresh = append(fresh, stored...)
	}
	sum.Fresh = len(fresh)

	delivered, err := r.route(ctx, log, fresh)
	sum.Delivered = delivered
	if err != nil {
		errs = append(errs, err)
	}
	log.Info("poll pass done", "records", sum.Records, "fresh", sum.Fresh, "delivered", sum.Delivered)
	return sum, errors.Join(errs...)
}

// load returns each seed's persisted state, grouped by network. Limit,
// filter, order and start always come from the seed.
func (r *Runner) load(ctx context.Context) (map[string][]cursor.Cursor, error) {
	out := map[string][]cursor.Cursor{}
	for _, seed := range r.seeds {
		c, ok, err := r.store.GetCursor(ctx, seed.Key())
		if err != nil {
			return nil, err
		}
		if ok {
			c.Limit, c.Filter, c.Order, c.Start = seed.Limit, seed.Filter, seed.Order, seed.Start
		} else {
			c = seed
		}
		out[c.Network] = append(out[c.Network], c)
	}
	return out, nil
}

type delivery struct {
	routeID string
	payload sink.Payload
}

func (r *Runner) route(ctx context.Context, log *slog.Logger, recs []model.PartialBridgeTxn) (int, error) {
	pending := map[string][]delivery{}
	for _, rec := range recs {
		fields := rec.Fields()
		for _, exec := range r.routes {
			if !exec.selects(rec) {
				continue
			}
			pass, err := allPredicates(exec.preds, fields)
			if err != nil || !pass {
				continue
			}
			if exec.route.Dedupe != nil {
				key := exec.route.ID + ":" + buildDedupeKey(exec.route.Dedupe.Key, fields)
				now := r.nowFunc()
				isDup, err := r.store.IsDuplicate(ctx, key, now)
				if err != nil {
					return 0, err
				}
				if isDup {
					r.metrics.Dropped("dedupe")
					continue
				}
				exp := now.Add(exec.ttl)
				if exec.ttl == 0 {
					exp = now.Add(24 * time.Hour)
				}
				if err := r.store.MarkDedupe(ctx, key, exp); err != nil {
					return 0, err
				}
			}
			if exec.bucket != nil && !exec.bucket.Allow(r.nowFunc()) {
				r.metrics.Dropped("rate_limit")
				log.Warn("route rate limited", "route", exec.route.ID, "txn", rec.TxnID)
				continue
			}
			if r.dryRun {
				log.Info("route matched (dry-run)", "route", exec.route.ID, "txn", rec.TxnID,
					"txn_type", rec.TxnType, "network", rec.Network)
				continue
			}
			p := sink.Payload{RouteID: exec.route.ID, RecordKey: storage.RecordKey(rec), Record: rec}
			for _, sinkID := range exec.route.Sinks {
				pending[sinkID] = append(pending[sinkID], delivery{routeID: exec.route.ID, payload: p})
			}
		}
	}

	sinkIDs := make([]string, 0, len(pending))
	for id := range pending {
		sinkIDs = append(sinkIDs, id)
	}
	sort.Strings(sinkIDs)

	var (
		delivered int
		errs      []error
	)
	for _, sinkID := range sinkIDs {
		s := r.sinks[sinkID]
		if s == nil {
			continue
		}
		batch := pending[sinkID]
		payloads := make([]sink.Payload, len(batch))
		for i, d := range batch {
			payloads[i] = d.payload
		}
		err := sink.Deliver(ctx, s, payloads)
		r.metrics.Delivered(sinkID, err)
		status, reason := "sent", ""
		if err != nil {
			status, reason = "failed", err.Error()
			errs = append(errs, fmt.Errorf("sink %s: %w", sinkID, err))
			log.Error("sink delivery failed", "sink", sinkID, "records", len(batch), "error", err)
		} else {
			delivered += len(batch)
		}
		for _, d := range batch {
			if err := r.store.InsertDelivery(ctx, storage.Delivery{
				ID:        r.newID(),
				RecordKey: d.payload.RecordKey,
				RouteID:   d.routeID,
				SinkID:    sinkID,
				Status:    status,
				Error:     reason,
				CreatedAt: r.nowFunc(),
			}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return delivered, errors.Join(errs...)
}

func (e *routeExec) selects(rec model.PartialBridgeTxn) bool {
	if len(e.networks) > 0 {
		if _, ok := e.networks[strings.ToLower(rec.Network)]; !ok {
			return false
		}
	}
	if len(e.bridges) > 0 {
		if _, ok := e.bridges[strings.ToLower(string(rec.BridgeType))]; !ok {
			return false
		}
	}
	return true
}

func allPredicates(preds []Predicate, fields map[string]any) (bool, error) {
	for _, p := range preds {
		ok, err := p(fields)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// buildDedupeKey replaces every ':'-separated field name of pattern with the
// record's value; unknown names stay literal.
func buildDedupeKey(pattern string, fields map[string]any) string {
	if pattern == "" {
		pattern = "txn_id_hashed:txn_type"
	}
	parts := strings.Split(pattern, ":")
	for i, p := range parts {
		if v, ok := fields[strings.TrimSpace(p)]; ok {
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, ":")
}

func lowerSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return out
}
