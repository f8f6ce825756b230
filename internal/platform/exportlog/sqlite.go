package exportlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS export_log (
    id          TEXT PRIMARY KEY,
    format      TEXT NOT NULL,
    filename    TEXT NOT NULL,
    mime_type   TEXT NOT NULL,
    bytes       INTEGER NOT NULL,
    sections    INTEGER NOT NULL,
    word_count  INTEGER NOT NULL,
    provider_id TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_export_log_created_at ON export_log (created_at);`

// sqliteTime has a fixed width so text ordering matches time ordering.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteInsert = `INSERT INTO export_log
    (id, format, filename, mime_type, bytes, sections, word_count, provider_id, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLRecorder writes entries to SQLite through database/sql.
type SQLRecorder struct {
	db *sql.DB
}

// OpenSQLite opens the database at path. ":memory:" keeps everything in
// a single in-process connection.
func OpenSQLite(ctx context.Context, path string) (*SQLRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("exportlog: sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("exportlog: open sqlite: %w", err)
	}
	// each new connection to :memory: would see an empty database
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("exportlog: ping sqlite: %w", err)
	}
	return &SQLRecorder{db: db}, nil
}

func (r *SQLRecorder) Record(ctx context.Context, e Entry) error {
	e = e.withDefaults()
	_, err := r.db.ExecContext(ctx, sqliteInsert,
		e.ID, e.Format, e.Filename, e.MimeType, e.Bytes,
		e.Sections, e.WordCount, e.ProviderID, e.CreatedAt.Format(sqliteTime))
	if err != nil {
		return fmt.Errorf("exportlog: insert: %w", err)
	}
	return nil
}

func (r *SQLRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("exportlog: create schema: %w", err)
	}
	return nil
}

// List returns one page of entries, newest first, and the total count.
func (r *SQLRecorder) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM export_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("exportlog: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, format, filename, mime_type, bytes,
        sections, word_count, provider_id, created_at
        FROM export_log ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("exportlog: query: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.ID, &e.Format, &e.Filename, &e.MimeType, &e.Bytes,
			&e.Sections, &e.WordCount, &e.ProviderID, &created); err != nil {
			return nil, 0, fmt.Errorf("exportlog: scan: %w", err)
		}
		if e.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
			return nil, 0, fmt.Errorf("exportlog: created_at %q: %w", created, err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *SQLRecorder) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *SQLRecorder) Backend() string { return "sqlite" }

func (r *SQLRecorder) Close() error { return r.db.Close() }
