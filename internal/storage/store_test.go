package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(id string, typ model.TxnType, ts time.Time) model.PartialBridgeTxn {
	return model.PartialBridgeTxn{
		TxnID:       id,
		TxnIDHashed: "0x" + id,
		TxnType:     typ,
		ChainStatus: model.StatusCompleted,
		Network:     "tron",
		BridgeType:  model.BridgeLegacy,
		Block:       50,
		Timestamp:   ts,
		Address:     "TDeposit",
		TokenSymbol: "USDT",
		Amount:      decimal.RequireFromString("12.5"),
	}
}

func TestCursorSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := cursor.New("tron", model.BridgeLegacy, "TDeposit", 2)
	c = cursor.Advance(c, []string{"a", "b"}, 10, "fp1")
	if err := store.SaveCursor(ctx, c); err != nil {
		t.Fatalf("save cursor: %v", err)
	}
	got, ok, err := store.GetCursor(ctx, c.Key())
	if err != nil || !ok {
		t.Fatalf("get cursor failed err=%v ok=%v", err, ok)
	}
	p, paging := got.Paging()
	if !paging || p.Batch.Position.Token != "fp1" || len(p.Batch.IDs) != 2 {
		t.Fatalf("batch not restored: %+v", got.State)
	}

	c = cursor.Advance(c, []string{"c"}, 12, "")
	if err := store.SaveCursor(ctx, c); err != nil {
		t.Fatalf("save cursor update: %v", err)
	}
	rows, err := store.ListCursors(ctx)
	if err != nil {
		t.Fatalf("list cursors: %v", err)
	}
	if len(rows) != 1 || rows[0].Paging || rows[0].Block != 12 {
		t.Fatalf("cursor not updated: %+v", rows)
	}

	if _, ok, err := store.GetCursor(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing cursor: ok=%v err=%v", ok, err)
	}
}

func TestCommitStoresRecordsOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	c := cursor.New("tron", model.BridgeLegacy, "TDeposit", 10)
	recs := []model.PartialBridgeTxn{
		record("a1", model.TxnDeposit, now),
		record("a2", model.TxnRelease, now.Add(time.Second)),
	}
	fresh, err := store.Commit(ctx, cursor.Advance(c, []string{"a1", "a2"}, 5, ""), recs)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("fresh = %d, want 2", len(fresh))
	}

	// Same leg again plus a second leg of the same transaction.
	again := []model.PartialBridgeTxn{recs[0], record("a1", model.TxnFeeTransfer, now)}
	fresh, err = store.Commit(ctx, c, again)
	if err != nil {
		t.Fatalf("commit again: %v", err)
	}
	if len(fresh) != 1 || fresh[0].TxnType != model.TxnFeeTransfer {
		t.Fatalf("unexpected fresh records: %+v", fresh)
	}

	all, err := store.ListRecords(ctx, RecordQuery{Network: "tron"})
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("records = %d, want 3", len(all))
	}
	if !all[0].Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("amount not restored: %s", all[0].Amount)
	}

	deposits, err := store.ListRecords(ctx, RecordQuery{TxnType: model.TxnDeposit})
	if err != nil || len(deposits) != 1 {
		t.Fatalf("deposits = %d err=%v", len(deposits), err)
	}
}

func TestCommitRollsBackOnBadRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := cursor.New("tron", model.BridgeLegacy, "TDeposit", 10)
	bad := record("x", model.TxnDeposit, time.Now())
	bad.TxnIDHashed = ""
	if _, err := store.Commit(ctx, c, []model.PartialBridgeTxn{bad}); err == nil {
		t.Fatalf("expected bad record to fail")
	}
	if _, ok, _ := store.GetCursor(ctx, c.Key()); ok {
		t.Fatalf("cursor saved despite failed commit")
	}
}

func TestDedupeTTL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.MarkDedupe(ctx, "k1", now.Add(1*time.Second)); err != nil {
		t.Fatalf("mark dedupe: %v", err)
	}
	dup, err := store.IsDuplicate(ctx, "k1", now)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if !dup {
		t.Fatalf("expected duplicate before expiry")
	}

	later := now.Add(2 * time.Second)
	dup, err = store.IsDuplicate(ctx, "k1", later)
	if err != nil {
		t.Fatalf("is duplicate later: %v", err)
	}
	if dup {
		t.Fatalf("expected non-duplicate after expiry")
	}
}

func TestExactlyOnceDelivery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := Delivery{
		ID:        "d1",
		RecordKey: "tron/0xa1/Deposit",
		RouteID:   "big",
		SinkID:    "hook",
		Status:    "sent",
		CreatedAt: time.Now(),
	}
	if err := store.InsertDelivery(ctx, d); err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	d.ID = "d2"
	if err := store.InsertDelivery(ctx, d); err == nil {
		t.Fatalf("expected duplicate delivery insert to fail")
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
