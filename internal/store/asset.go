// ABOUTME: Asset blob operations: put, get, list, delete
// ABOUTME: Assets round-trip as media.Asset; listings omit the payload
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Previz-Studio/previz-go/internal/media"
)

// AssetInfo describes a stored asset without its payload
type AssetInfo struct {
	ID        string
	Name      string
	Codec     string
	Seconds   float64
	Size      int64
	CreatedAt time.Time
}

// PutAsset inserts or replaces an asset. The payload is a.Data.
func (s *Store) PutAsset(ctx context.Context, a media.Asset) error {
	if a.ID == "" {
		return fmt.Errorf("asset has no ID")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO assets
			(id, name, codec, tone_hz, seconds, sample_rate, channels, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Codec, a.ToneHz, a.Seconds, a.SampleRate, a.Channels,
		unixSeconds(time.Now()), a.Data)
	if err != nil {
		return fmt.Errorf("put asset %s: %w", a.ID, err)
	}
	return nil
}

// GetAsset loads an asset and its payload by ID
func (s *Store) GetAsset(ctx context.Context, id string) (media.Asset, error) {
	var a media.Asset
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, codec, tone_hz, seconds, sample_rate, channels, data
		FROM assets WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Codec, &a.ToneHz, &a.Seconds, &a.SampleRate, &a.Channels, &a.Data)
	if err == sql.ErrNoRows {
		return media.Asset{}, fmt.Errorf("asset %s: %w", id, ErrAssetNotFound)
	}
	if err != nil {
		return media.Asset{}, fmt.Errorf("get asset %s: %w", id, err)
	}
	return a, nil
}

// DeleteAsset removes an asset by ID
func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete asset %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("asset %s: %w", id, ErrAssetNotFound)
	}
	return nil
}

// ListAssets returns metadata for every stored asset, newest first
func (s *Store) ListAssets(ctx context.Context) ([]AssetInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, codec, seconds, COALESCE(LENGTH(data), 0), created_at
		FROM assets ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var infos []AssetInfo
	for rows.Next() {
		var info AssetInfo
		var createdAt float64
		if err := rows.Scan(&info.ID, &info.Name, &info.Codec, &info.Seconds, &info.Size, &createdAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		info.CreatedAt = timeFromUnix(createdAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
