// ABOUTME: Snapshot operations for serialized sequence documents
// ABOUTME: Saves are immutable rows; LoadLatestSnapshot serves session restore
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotInfo describes a stored snapshot without its payload
type SnapshotInfo struct {
	ID        string
	Name      string
	Size      int64
	CreatedAt time.Time
}

// SaveSnapshot stores a serialized sequence under a fresh ID and returns it
func (s *Store) SaveSnapshot(ctx context.Context, name string, data []byte) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, name, created_at, data) VALUES (?, ?, ?, ?)`,
		id, name, unixSeconds(time.Now()), data)
	if err != nil {
		return "", fmt.Errorf("save snapshot %q: %w", name, err)
	}
	return id, nil
}

// LoadSnapshot returns the payload of the snapshot with the given ID
func (s *Store) LoadSnapshot(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return data, nil
}

// LoadLatestSnapshot returns the name and payload of the newest snapshot
func (s *Store) LoadLatestSnapshot(ctx context.Context) (string, []byte, error) {
	var name string
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT name, data FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT 1`).
		Scan(&name, &data)
	if err == sql.ErrNoRows {
		return "", nil, ErrSnapshotNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	return name, data, nil
}

// ListSnapshots returns metadata for every stored snapshot, newest first
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, LENGTH(data), created_at
		FROM snapshots ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var createdAt float64
		if err := rows.Scan(&info.ID, &info.Name, &info.Size, &createdAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.CreatedAt = timeFromUnix(createdAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteSnapshot removes a snapshot by ID
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("snapshot %s: %w", id, ErrSnapshotNotFound)
	}
	return nil
}

// PruneSnapshots deletes all but the newest keep snapshots. Autosave uses
// this to bound database growth.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
