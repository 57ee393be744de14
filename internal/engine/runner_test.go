package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devblac/bridge-indexer/internal/config"
	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
	"github.com/devblac/bridge-indexer/internal/sink"
	"github.com/devblac/bridge-indexer/internal/source"
	"github.com/devblac/bridge-indexer/internal/storage"
)

type fakeSink struct {
	mu    sync.Mutex
	count int
	err   error
}

func (f *fakeSink) Send(ctx context.Context, payload sink.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.count++
	return nil
}

// fakePoller returns one page of records per call and advances each cursor
// past them.
type fakePoller struct {
	mu    sync.Mutex
	pages [][]model.PartialBridgeTxn
	seen  []cursor.Cursor
	err   error
}

func (f *fakePoller) PollAll(_ context.Context, cursors []cursor.Cursor) ([]source.Result, []model.PartialBridgeTxn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, cursors...)
	if f.err != nil {
		out := make([]source.Result, len(cursors))
		for i, c := range cursors {
			out[i] = source.Result{Cursor: c}
		}
		return out, nil, f.err
	}
	var page []model.PartialBridgeTxn
	if len(f.pages) > 0 {
		page, f.pages = f.pages[0], f.pages[1:]
	}
	out := make([]source.Result, len(cursors))
	var all []model.PartialBridgeTxn
	for i, c := range cursors {
		ids := make([]string, len(page))
		var maxBlock uint64
		for j, r := range page {
			ids[j] = r.TxnID
			maxBlock = max(maxBlock, r.Block)
		}
		out[i] = source.Result{Cursor: cursor.Advance(c, ids, maxBlock, ""), Records: page}
		all = append(all, page...)
	}
	return out, all, nil
}

func rec(id string, typ model.TxnType, amount string, block uint64) model.PartialBridgeTxn {
	return model.PartialBridgeTxn{
		TxnID:       id,
		TxnIDHashed: "0x" + id,
		TxnType:     typ,
		ChainStatus: model.StatusCompleted,
		Network:     "tron",
		BridgeType:  model.BridgeLegacy,
		Block:       block,
		Timestamp:   time.Unix(int64(1700000000+block), 0).UTC(),
		Address:     "TDeposit",
		TokenSymbol: "USDT",
		Amount:      decimal.RequireFromString(amount),
	}
}

func newTestRunner(t *testing.T, store *storage.Store, poller Poller, routes []config.Route, sinks map[string]sink.Sender, dryRun bool) *Runner {
	t.Helper()
	seed := cursor.New("tron", model.BridgeLegacy, "TDeposit", 100)
	runner, err := NewRunner(store, routes, []cursor.Cursor{seed}, map[string]Poller{"tron": poller}, sinks, Options{DryRun: dryRun})
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	n := 0
	runner.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }
	return runner
}

// Simple integration: ensure predicates + dedupe + dry-run behave.
func TestRunnerPredicatesAndDryRun(t *testing.T) {
	store := newTestStore(t)
	route := config.Route{
		ID:    "big",
		Where: []string{"amount > 10"},
		Sinks: []string{"s1"},
		Dedupe: &config.Dedupe{
			Key: "txn_id",
			TTL: "1h",
		},
	}
	s := &fakeSink{}
	poller := &fakePoller{pages: [][]model.PartialBridgeTxn{
		{rec("a", model.TxnDeposit, "20", 5), rec("b", model.TxnDeposit, "5", 6)},
	}}
	runner := newTestRunner(t, store, poller, []config.Route{route}, map[string]sink.Sender{"s1": s}, true)

	sum, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Fresh != 2 || s.count != 0 { // dry-run should skip sends
		t.Fatalf("expected no sends in dry-run, got %d (fresh %d)", s.count, sum.Fresh)
	}

	// now run non-dry and ensure dedupe prevents duplicate
	runner.dryRun = false
	recs := []model.PartialBridgeTxn{rec("c", model.TxnDeposit, "30", 7)}
	if _, err := runner.route(context.Background(), runner.log, recs); err != nil {
		t.Fatalf("route: %v", err)
	}
	if s.count != 1 {
		t.Fatalf("expected 1 send, got %d", s.count)
	}
	recs[0].TxnType = model.TxnFeeTransfer
	if _, err := runner.route(context.Background(), runner.log, recs); err != nil {
		t.Fatalf("route dup: %v", err)
	}
	if s.count != 1 {
		t.Fatalf("expected dedupe to skip duplicate send")
	}
}

func TestRunnerPersistsCursorAndRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := &fakeSink{}
	poller := &fakePoller{pages: [][]model.PartialBridgeTxn{
		{rec("a", model.TxnDeposit, "20", 5)},
		{rec("a", model.TxnDeposit, "20", 5), rec("b", model.TxnRelease, "7", 9)},
	}}
	route := config.Route{ID: "all", Sinks: []string{"s1"}}
	runner := newTestRunner(t, store, poller, []config.Route{route}, map[string]sink.Sender{"s1": s}, false)

	if _, err := runner.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Records != 2 || sum.Fresh != 1 {
		t.Fatalf("second run summary: %+v", sum)
	}
	if s.count != 2 {
		t.Fatalf("sends = %d, want each record once", s.count)
	}

	// The second poll resumed from the persisted cursor.
	if end := poller.seen[1].End(); end == nil || end.Block != 5 {
		t.Fatalf("second poll did not resume: %+v", poller.seen[1].State)
	}
	stored, err := store.ListRecords(ctx, storage.RecordQuery{})
	if err != nil || len(stored) != 2 {
		t.Fatalf("stored records = %d err=%v", len(stored), err)
	}
}

func TestRunnerRoutesBySelectors(t *testing.T) {
	store := newTestStore(t)
	tronSink, solSink := &fakeSink{}, &fakeSink{}
	routes := []config.Route{
		{ID: "tron", Networks: []string{"TRON"}, Sinks: []string{"tron"}},
		{ID: "sol", Networks: []string{"solana"}, Sinks: []string{"sol"}},
		{ID: "v2", BridgeTypes: []string{"v2"}, Sinks: []string{"sol"}},
	}
	runner := newTestRunner(t, store, &fakePoller{}, routes,
		map[string]sink.Sender{"tron": tronSink, "sol": solSink}, false)

	if _, err := runner.route(context.Background(), runner.log, []model.PartialBridgeTxn{rec("a", model.TxnDeposit, "1", 1)}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if tronSink.count != 1 || solSink.count != 0 {
		t.Fatalf("sends tron=%d sol=%d", tronSink.count, solSink.count)
	}
}

func TestRunnerRateLimit(t *testing.T) {
	store := newTestStore(t)
	s := &fakeSink{}
	routes := []config.Route{{
		ID:        "limited",
		Sinks:     []string{"s1"},
		RateLimit: &config.RateLimit{Capacity: 1, PerSecond: 0.001},
	}}
	runner := newTestRunner(t, store, &fakePoller{}, routes, map[string]sink.Sender{"s1": s}, false)
	now := time.Now()
	runner.nowFunc = func() time.Time { return now }

	recs := []model.PartialBridgeTxn{rec("a", model.TxnDeposit, "1", 1), rec("b", model.TxnDeposit, "1", 2)}
	if _, err := runner.route(context.Background(), runner.log, recs); err != nil {
		t.Fatalf("route: %v", err)
	}
	if s.count != 1 {
		t.Fatalf("sends = %d, want 1", s.count)
	}
}

func TestRunnerSinkFailureIsRecorded(t *testing.T) {
	store := newTestStore(t)
	s := &fakeSink{err: errors.New("boom")}
	routes := []config.Route{{ID: "all", Sinks: []string{"s1"}}}
	runner := newTestRunner(t, store, &fakePoller{}, routes, map[string]sink.Sender{"s1": s}, false)

	delivered, err := runner.route(context.Background(), runner.log, []model.PartialBridgeTxn{rec("a", model.TxnDeposit, "1", 1)})
	if err == nil || delivered != 0 {
		t.Fatalf("expected sink failure, delivered=%d err=%v", delivered, err)
	}
}

func TestRunnerKeepsCursorOnPollError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	poller := &fakePoller{err: fmt.Errorf("page: %w", source.ErrRetriesExhausted)}
	runner := newTestRunner(t, store, poller, nil, nil, false)

	if _, err := runner.RunOnce(ctx); !errors.Is(err, source.ErrRetriesExhausted) {
		t.Fatalf("expected poll error, got %v", err)
	}
	c, ok, err := store.GetCursor(ctx, "tron/legacy/TDeposit")
	if err != nil || !ok {
		t.Fatalf("cursor not stored: ok=%v err=%v", ok, err)
	}
	if c.End() != nil {
		t.Fatalf("cursor moved despite poll error: %+v", c.State)
	}
}

func TestNewRunnerRequiresPoller(t *testing.T) {
	store := newTestStore(t)
	seed := cursor.New("solana", model.BridgeV2, "Vault", 10)
	if _, err := NewRunner(store, nil, []cursor.Cursor{seed}, map[string]Poller{}, nil, Options{}); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	runner := newTestRunner(t, store, &fakePoller{}, nil, nil, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, 10*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(t.TempDir() + "/db.sqlite")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
