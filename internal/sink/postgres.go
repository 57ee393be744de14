package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresSender upserts records into a table keyed by record key, so
// replays are harmless.
type PostgresSender struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSender connects and creates the table when missing.
func NewPostgresSender(ctx context.Context, dsn, table string) (*PostgresSender, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresSender{pool: pool, table: table}
	if _, err := pool.Exec(ctx, createSQL(table)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	return s, nil
}

func createSQL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			record_key    TEXT PRIMARY KEY,
			route_id      TEXT NOT NULL,
			network       TEXT NOT NULL,
			txn_id        TEXT NOT NULL,
			txn_id_hashed TEXT NOT NULL,
			txn_type      TEXT NOT NULL,
			chain_status  TEXT NOT NULL,
			block         BIGINT NOT NULL,
			txn_time      TIMESTAMPTZ NOT NULL,
			token         TEXT,
			amount        NUMERIC,
			record        JSONB NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table)
}

func upsertSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (
			record_key, route_id, network, txn_id, txn_id_hashed, txn_type, chain_status, block, txn_time, token, amount, record, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (record_key)
		DO UPDATE SET
			chain_status = EXCLUDED.chain_status,
			record = EXCLUDED.record,
			updated_at = now()
	`, table)
}

func upsertArgs(p Payload) ([]any, error) {
	rec := p.Record
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return []any{
		p.RecordKey,
		p.RouteID,
		rec.Network,
		rec.TxnID,
		rec.TxnIDHashed,
		string(rec.TxnType),
		string(rec.ChainStatus),
		int64(rec.Block),
		rec.Timestamp,
		rec.TokenSymbol,
		rec.Amount.String(),
		doc,
	}, nil
}

func (s *PostgresSender) Send(ctx context.Context, payload Payload) error {
	return s.SendBatch(ctx, []Payload{payload})
}

// SendBatch upserts payloads in one round trip.
func (s *PostgresSender) SendBatch(ctx context.Context, payloads []Payload) error {
	if len(payloads) == 0 {
		return nil
	}
	query := upsertSQL(s.table)
	batch := &pgx.Batch{}
	for _, p := range payloads {
		args, err := upsertArgs(p)
		if err != nil {
			return err
		}
		batch.Queue(query, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range payloads {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the pool.
func (s *PostgresSender) Close() error {
	s.pool.Close()
	return nil
}
