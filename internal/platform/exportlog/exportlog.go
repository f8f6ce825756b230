// Package exportlog records metadata about produced exports. Note content
// is never stored.
package exportlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one export event.
type Entry struct {
	ID         string    `json:"id"`
	Format     string    `json:"format"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mimeType"`
	Bytes      int       `json:"bytes"`
	Sections   int       `json:"sections"`
	WordCount  int       `json:"wordCount"`
	ProviderID string    `json:"providerId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// withDefaults fills ID and CreatedAt when the caller left them empty.
func (e Entry) withDefaults() Entry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e
}

// Recorder stores export entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	EnsureSchema(ctx context.Context) error
	// List returns one page of entries, newest first, and the total count.
	List(ctx context.Context, limit, offset int) ([]Entry, int, error)
	Ping(ctx context.Context) error
	Backend() string
	Close() error
}

// Options tunes the Postgres pool.
type Options struct {
	MaxConns int32
	MinConns int32
}

// Open picks a Recorder by URL scheme. An empty URL disables recording.
//
//	postgres://... or postgresql://...  Postgres via pgx
//	sqlite:path or sqlite://path        SQLite file, sqlite::memory: for tests
func Open(ctx context.Context, url string, opts Options) (Recorder, error) {
	switch {
	case url == "":
		return NopRecorder{}, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		pool, err := NewPool(ctx, url, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		return NewPGRecorder(pool), nil
	case strings.HasPrefix(url, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite:"), "//")
		return OpenSQLite(ctx, path)
	}
	return nil, fmt.Errorf("exportlog: unsupported url scheme in %q", redact(url))
}

// redact drops everything before the host so credentials do not reach logs.
func redact(url string) string {
	if i := strings.Index(url, "@"); i >= 0 {
		if j := strings.Index(url, "://"); j >= 0 && j < i {
			return url[:j+3] + "***" + url[i:]
		}
	}
	return url
}

// NopRecorder discards entries.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }
func (NopRecorder) EnsureSchema(context.Context) error  { return nil }
func (NopRecorder) List(context.Context, int, int) ([]Entry, int, error) {
	return []Entry{}, 0, nil
}
func (NopRecorder) Ping(context.Context) error { return nil }
func (NopRecorder) Backend() string            { return "none" }
func (NopRecorder) Close() error               { return nil }
