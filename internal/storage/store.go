package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/devblac/bridge-indexer/internal/cursor"
	"github.com/devblac/bridge-indexer/internal/model"
)

// Store wraps SQLite-backed persistence for cursors, records, deliveries,
// and dedupe.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS cursors (
  cursor_key  TEXT PRIMARY KEY,
  network     TEXT NOT NULL,
  bridge_type TEXT NOT NULL,
  address     TEXT NOT NULL,
  block       INTEGER NOT NULL DEFAULT 0,
  paging      INTEGER NOT NULL DEFAULT 0,
  state_json  TEXT NOT NULL,
  updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS records (
  record_key    TEXT PRIMARY KEY,
  network       TEXT NOT NULL,
  bridge_type   TEXT NOT NULL,
  txn_id        TEXT NOT NULL,
  txn_id_hashed TEXT NOT NULL,
  txn_type      TEXT NOT NULL,
  chain_status  TEXT NOT NULL,
  block         INTEGER NOT NULL,
  txn_time      TIMESTAMP NOT NULL,
  payload_json  TEXT NOT NULL,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS records_by_hash ON records (txn_id_hashed);
CREATE INDEX IF NOT EXISTS records_by_network ON records (network, block);

CREATE TABLE IF NOT EXISTS deliveries (
  id          TEXT NOT NULL,
  record_key  TEXT NOT NULL,
  route_id    TEXT NOT NULL,
  sink_id     TEXT NOT NULL,
  status      TEXT NOT NULL,
  error       TEXT,
  created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(record_key, route_id, sink_id)
);

CREATE TABLE IF NOT EXISTS dedupe (
  key         TEXT PRIMARY KEY,
  expires_at  TIMESTAMP NOT NULL
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// RecordKey identifies one leg: a transaction may yield one record per
// type on a network.
func RecordKey(rec model.PartialBridgeTxn) string {
	return rec.Network + "/" + rec.TxnIDHashed + "/" + string(rec.TxnType)
}

// SaveCursor persists the full cursor state.
func (s *Store) SaveCursor(ctx context.Context, c cursor.Cursor) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return upsertCursor(ctx, tx, c)
	})
}

func upsertCursor(ctx context.Context, tx *sql.Tx, c cursor.Cursor) error {
	if c.Network == "" || c.Address == "" {
		return errors.New("cursor network and address required")
	}
	state, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	var block uint64
	if end := c.End(); end != nil {
		block = end.Block
	}
	_, paging := c.Paging()
	_, err = tx.ExecContext(ctx, `
INSERT INTO cursors (cursor_key, network, bridge_type, address, block, paging, state_json, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(cursor_key) DO UPDATE SET
  block=excluded.block,
  paging=excluded.paging,
  state_json=excluded.state_json,
  updated_at=CURRENT_TIMESTAMP;
`, c.Key(), c.Network, string(c.Bridge), c.Address, block, paging, string(state))
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// GetCursor retrieves a persisted cursor by key.
func (s *Store) GetCursor(ctx context.Context, key string) (c cursor.Cursor, ok bool, err error) {
	var state string
	row := s.db.QueryRowContext(ctx, `
SELECT state_json FROM cursors WHERE cursor_key = ?;
`, key)
	switch err = row.Scan(&state); err {
	case nil:
	case sql.ErrNoRows:
		return cursor.Cursor{}, false, nil
	default:
		return cursor.Cursor{}, false, fmt.Errorf("get cursor: %w", err)
	}
	if err := json.Unmarshal([]byte(state), &c); err != nil {
		return cursor.Cursor{}, false, fmt.Errorf("decode cursor %s: %w", key, err)
	}
	return c, true, nil
}

// CursorRow is a persisted cursor summary.
type CursorRow struct {
	Key        string          `json:"key"`
	Network    string          `json:"network"`
	BridgeType string          `json:"bridge_type"`
	Address    string          `json:"address"`
	Block      uint64          `json:"block"`
	Paging     bool            `json:"paging"`
	State      json.RawMessage `json:"state"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ListCursors returns every persisted cursor ordered by key.
func (s *Store) ListCursors(ctx context.Context) ([]CursorRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT cursor_key, network, bridge_type, address, block, paging, state_json, updated_at
FROM cursors ORDER BY cursor_key;
`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var out []CursorRow
	for rows.Next() {
		var (
			r     CursorRow
			state string
		)
		if err := rows.Scan(&r.Key, &r.Network, &r.BridgeType, &r.Address, &r.Block, &r.Paging, &state, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		r.State = json.RawMessage(state)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Commit stores the records of one poll together with the cursor that
// follows them, and returns the records not stored before. The primary key
// enforces exactly-once insertion per leg.
func (s *Store) Commit(ctx context.Context, c cursor.Cursor, recs []model.PartialBridgeTxn) ([]model.PartialBridgeTxn, error) {
	var fresh []model.PartialBridgeTxn
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		fresh = fresh[:0]
		for _, rec := range recs {
			inserted, err := insertRecord(ctx, tx, rec)
			if err != nil {
				return err
			}
			if inserted {
				fresh = append(fresh, rec)
			}
		}
		return upsertCursor(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec model.PartialBridgeTxn) (bool, error) {
	if rec.Network == "" || rec.TxnIDHashed == "" {
		return false, errors.New("record network and txn_id_hashed required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode record: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO records (record_key, network, bridge_type, txn_id, txn_id_hashed, txn_type, chain_status, block, txn_time, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(record_key) DO NOTHING;
`, RecordKey(rec), rec.Network, string(rec.BridgeType), rec.TxnID, rec.TxnIDHashed,
		string(rec.TxnType), string(rec.ChainStatus), rec.Block, rec.Timestamp.UTC(), string(payload))
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return n == 1, nil
}

// RecordQuery narrows ListRecords. Zero values select everything.
type RecordQuery struct {
	Network string
	TxnType model.TxnType
	Since   time.Time
	Limit   int
}

// ListRecords returns stored records oldest first.
func (s *Store) ListRecords(ctx context.Context, q RecordQuery) ([]model.PartialBridgeTxn, error) {
	query := `SELECT payload_json FROM records WHERE 1=1`
	var args []any
	if q.Network != "" {
		query += ` AND network = ?`
		args = append(args, q.Network)
	}
	if q.TxnType != "" {
		query += ` AND txn_type = ?`
		args = append(args, string(q.TxnType))
	}
	if !q.Since.IsZero() {
		query += ` AND txn_time >= ?`
		args = append(args, q.Since.UTC())
	}
	query += ` ORDER BY txn_time, record_key`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []model.PartialBridgeTxn
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec model.PartialBridgeTxn
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkDedupe sets or refreshes a dedupe key until expiresAt.
func (s *Store) MarkDedupe(ctx context.Context, key string, expiresAt time.Time) error {
	if key == "" {
		return errors.New("key required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dedupe (key, expires_at)
VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET expires_at=excluded.expires_at;
`, key, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("mark dedupe: %w", err)
	}
	return nil
}

// IsDuplicate returns true if the key exists and is not expired; expired entries are pruned.
func (s *Store) IsDuplicate(ctx context.Context, key string, now time.Time) (bool, error) {
	if key == "" {
		return false, errors.New("key required")
	}

	var expires time.Time
	err := s.db.QueryRowContext(ctx, `
SELECT expires_at FROM dedupe WHERE key = ?;
`, key).Scan(&expires)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check dedupe: %w", err)
	}

	if expires.After(now.UTC()) {
		return true, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM dedupe WHERE key = ?;`, key); err != nil {
		return false, fmt.Errorf("prune dedupe: %w", err)
	}
	return false, nil
}

// Delivery represents a sink delivery record.
type Delivery struct {
	ID        string
	RecordKey string
	RouteID   string
	SinkID    string
	Status    string
	Error     string
	CreatedAt time.Time
}

// InsertDelivery records a sink delivery attempt; the primary key enforces
// exactly-once per record, route and sink.
func (s *Store) InsertDelivery(ctx context.Context, d Delivery) error {
	if d.ID == "" || d.RecordKey == "" || d.SinkID == "" || d.Status == "" {
		return errors.New("id, record_key, sink_id, and status are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries (id, record_key, route_id, sink_id, status, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, d.ID, d.RecordKey, d.RouteID, d.SinkID, d.Status, nullString(d.Error), nullTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
