// Package catalog keeps a SQLite index of saved episodes so captures can be
// listed without opening every episode file.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gwillem/graspcap/pkg/record"
)

// timeFormat keeps all nine fraction digits so saved_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id          TEXT PRIMARY KEY,
	object_type TEXT NOT NULL,
	action_tag  TEXT NOT NULL,
	object      TEXT NOT NULL,
	path        TEXT NOT NULL,
	frames      INTEGER NOT NULL,
	saved_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS episodes_type_tag ON episodes (object_type, action_tag, saved_at);
`

// Entry is one saved episode.
type Entry struct {
	ID         string
	ObjectType string
	ActionTag  string
	Object     string
	Path       string
	Frames     int
	SavedAt    time.Time
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	ObjectType string
	ActionTag  string
	Limit      int
}

// Catalog is a SQLite-backed episode index.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog at path.
func Open(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Add inserts or replaces an entry.
func (c *Catalog) Add(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("entry id is required")
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO episodes (id, object_type, action_tag, object, path, frames, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ObjectType, e.ActionTag, e.Object, e.Path, e.Frames, e.SavedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert episode %s: %w", e.ID, err)
	}
	return nil
}

// Index records a saved episode. It satisfies record.Indexer.
func (c *Catalog) Index(ctx context.Context, ep *record.Episode, path string) error {
	return c.Add(ctx, Entry{
		ID:         ep.ID,
		ObjectType: ep.ObjectType,
		ActionTag:  ep.ActionTag,
		Object:     ep.Object,
		Path:       path,
		Frames:     len(ep.Frames),
	})
}

// List returns entries newest first.
func (c *Catalog) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT id, object_type, action_tag, object, path, frames, saved_at FROM episodes`
	var (
		where []string
		args  []any
	)
	if f.ObjectType != "" {
		where = append(where, "object_type = ?")
		args = append(args, f.ObjectType)
	}
	if f.ActionTag != "" {
		where = append(where, "action_tag = ?")
		args = append(args, f.ActionTag)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY saved_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			savedAt string
		)
		if err := rows.Scan(&e.ID, &e.ObjectType, &e.ActionTag, &e.Object, &e.Path, &e.Frames, &savedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if e.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
			return nil, fmt.Errorf("parse saved_at %q: %w", savedAt, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of episodes for a type and tag. Empty strings
// match everything.
func (c *Catalog) Count(ctx context.Context, objectType, actionTag string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM episodes WHERE (? = '' OR object_type = ?) AND (? = '' OR action_tag = ?)`,
		objectType, objectType, actionTag, actionTag).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

var _ record.Indexer = (*Catalog)(nil)
