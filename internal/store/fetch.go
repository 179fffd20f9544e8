// ABOUTME: Remote media importer, content addressed into the asset store
// ABOUTME: URLs hash to stable asset IDs so refetching hits the cache
package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/Previz-Studio/previz-go/internal/media"
)

// codecByExt maps downloadable file extensions to runtime codecs
var codecByExt = map[string]string{
	".mp3":  "mp3",
	".flac": "flac",
}

// Fetcher imports remote media files into the asset store
type Fetcher struct {
	store  *Store
	client *http.Client
}

// NewFetcher creates a fetcher writing into the given store
func NewFetcher(s *Store) *Fetcher {
	return &Fetcher{store: s, client: &http.Client{}}
}

// AssetIDForURL returns the content-addressed asset ID for a URL
func AssetIDForURL(url string) string {
	hash := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x", hash[:8])
}

// Fetch downloads a media file and stores it as an asset. A URL already in
// the store returns the cached asset without touching the network.
func (f *Fetcher) Fetch(ctx context.Context, url string) (media.Asset, error) {
	if url == "" {
		return media.Asset{}, fmt.Errorf("empty media URL")
	}

	id := AssetIDForURL(url)
	a, err := f.store.GetAsset(ctx, id)
	if err == nil {
		log.Printf("Media cache hit: %s (%s)", a.Name, id)
		return a, nil
	}
	if !errors.Is(err, ErrAssetNotFound) {
		return media.Asset{}, err
	}

	codec, ok := codecByExt[extensionOf(url)]
	if !ok {
		return media.Asset{}, fmt.Errorf("unsupported media format %q", extensionOf(url))
	}

	log.Printf("Downloading media: %s", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return media.Asset{}, fmt.Errorf("build media request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return media.Asset{}, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return media.Asset{}, fmt.Errorf("media download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return media.Asset{}, fmt.Errorf("read media body: %w", err)
	}

	a = media.Asset{
		ID:    id,
		Name:  nameOf(url),
		Codec: codec,
		Data:  data,
	}
	if err := f.store.PutAsset(ctx, a); err != nil {
		return media.Asset{}, err
	}

	log.Printf("Media stored: %s (%s, %d bytes)", a.Name, id, len(data))
	return a, nil
}

// extensionOf extracts the lowercased file extension, ignoring any query
func extensionOf(url string) string {
	url = strings.Split(url, "?")[0]
	return strings.ToLower(filepath.Ext(url))
}

// nameOf extracts a display name from the URL path
func nameOf(url string) string {
	url = strings.Split(url, "?")[0]
	return filepath.Base(url)
}
