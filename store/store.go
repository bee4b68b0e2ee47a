// Package store maintains an optional SQLite index of captured evidence,
// one row per record, so audits can query across runs without walking the
// output tree.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/feedguardian/evidencer/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS evidence (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL,
	slug         TEXT NOT NULL,
	captured_at  INTEGER NOT NULL,
	title        TEXT,
	price        TEXT,
	availability TEXT,
	error_count  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_evidence_url ON evidence(url, captured_at);
`

// DB wraps the evidence index database.
type DB struct {
	pool *sql.DB
}

// Open opens (creating if needed) the index at path.
func Open(path string) (*DB, error) {
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	pool.SetMaxOpenConns(1) // sqlite typically wants 1 writer
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := pool.ExecContext(ctx, schema); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("init evidence index schema: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Insert adds one captured record to the index.
func (d *DB) Insert(ctx context.Context, slug string, rec *models.EvidenceRecord) error {
	_, err := d.pool.ExecContext(ctx, `
		INSERT INTO evidence (url, slug, captured_at, title, price, availability, error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.URL, slug, rec.Ts,
		nullable(rec.Title),
		nullable(rec.VisiblePrice),
		availabilityValue(rec.VisibleAvailability),
		len(rec.Errors),
	)
	return err
}

// CountForURL reports how many captures the index holds for a URL.
func (d *DB) CountForURL(ctx context.Context, url string) (int, error) {
	var n int
	err := d.pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evidence WHERE url = ?`, url).Scan(&n)
	return n, err
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	if d == nil || d.pool == nil {
		return nil
	}
	return d.pool.Close()
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func availabilityValue(a *models.Availability) any {
	if a == nil {
		return nil
	}
	return string(*a)
}
