// ABOUTME: SQLite-backed persistence for media assets and sequence snapshots
// ABOUTME: One database file holds the asset blob table and the snapshot table
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors for lookups of unknown IDs
var (
	ErrAssetNotFound    = errors.New("asset not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	codec       TEXT NOT NULL,
	tone_hz     REAL NOT NULL DEFAULT 0,
	seconds     REAL NOT NULL DEFAULT 0,
	sample_rate INTEGER NOT NULL DEFAULT 0,
	channels    INTEGER NOT NULL DEFAULT 0,
	created_at  REAL NOT NULL,
	data        BLOB
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at REAL NOT NULL,
	data       BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
`

// Store wraps the SQLite database holding assets and snapshots
type Store struct {
	db *sql.DB
}

// Open opens the store database at path, creating it and its schema on
// first use
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// timeFromUnix converts a REAL unix timestamp column to time.Time
func timeFromUnix(sec float64) time.Time {
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*1e9))
}

// unixSeconds converts a time.Time to the REAL column representation
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
