package exportlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS export_log (
    id          UUID PRIMARY KEY,
    format      TEXT NOT NULL,
    filename    TEXT NOT NULL,
    mime_type   TEXT NOT NULL,
    bytes       INTEGER NOT NULL,
    sections    INTEGER NOT NULL,
    word_count  INTEGER NOT NULL,
    provider_id TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_export_log_created_at ON export_log (created_at);`

const pgInsert = `INSERT INTO export_log
    (id, format, filename, mime_type, bytes, sections, word_count, provider_id, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const pgList = `SELECT id::text, format, filename, mime_type, bytes,
    sections, word_count, provider_id, created_at
    FROM export_log ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`

// pgConn is the subset of *pgxpool.Pool the recorder uses.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// NewPool opens and pings a pgx connection pool.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// PGRecorder writes entries to Postgres.
type PGRecorder struct {
	db pgConn
}

func NewPGRecorder(db pgConn) *PGRecorder {
	return &PGRecorder{db: db}
}

func (r *PGRecorder) Record(ctx context.Context, e Entry) error {
	e = e.withDefaults()
	_, err := r.db.Exec(ctx, pgInsert,
		e.ID, e.Format, e.Filename, e.MimeType, e.Bytes,
		e.Sections, e.WordCount, e.ProviderID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("exportlog: insert: %w", err)
	}
	return nil
}

func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("exportlog: create schema: %w", err)
	}
	return nil
}

// List returns one page of entries, newest first, and the total count.
func (r *PGRecorder) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM export_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("exportlog: count: %w", err)
	}

	rows, err := r.db.Query(ctx, pgList, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("exportlog: query: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Format, &e.Filename, &e.MimeType, &e.Bytes,
			&e.Sections, &e.WordCount, &e.ProviderID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("exportlog: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *PGRecorder) Ping(ctx context.Context) error { return r.db.Ping(ctx) }

func (r *PGRecorder) Backend() string { return "postgres" }

func (r *PGRecorder) Close() error {
	r.db.Close()
	return nil
}
