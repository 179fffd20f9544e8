// ABOUTME: Store-backed asset resolution for timeline elements
// ABOUTME: Maps asset IDs, media URLs, and procedural tones to playable assets
package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Previz-Studio/previz-go/internal/media"
	"github.com/Previz-Studio/previz-go/internal/timeline"
)

// Resolver turns timeline elements into playable assets. Asset IDs are
// looked up in the store, http(s) asset references are fetched and cached,
// and procedural elements synthesize tones locally. Elements with no
// content reference resolve to silence so they still track the clock.
//
// A nil store degrades asset references to silence instead of failing,
// so a previewer without persistence still plays the timeline.
type Resolver struct {
	store   *Store
	fetcher *Fetcher
}

// NewResolver creates a resolver over the given store. s may be nil.
func NewResolver(s *Store) *Resolver {
	r := &Resolver{store: s}
	if s != nil {
		r.fetcher = NewFetcher(s)
	}
	return r
}

// Resolve maps one element to the asset its playback handle should open
func (r *Resolver) Resolve(ctx context.Context, el *timeline.Element) (media.Asset, error) {
	switch {
	case el.Kind == timeline.KindProcedural:
		hz := el.ToneHz
		if hz <= 0 {
			hz = 440
		}
		return media.Asset{
			ID:     fmt.Sprintf("tone-%g", hz),
			Name:   el.Name,
			Codec:  "tone",
			ToneHz: hz,
		}, nil

	case strings.HasPrefix(el.AssetID, "http://"), strings.HasPrefix(el.AssetID, "https://"):
		if r.fetcher == nil {
			log.Printf("Warning: no media store, playing %s silent", el.AssetID)
			return r.silence(el), nil
		}
		return r.fetcher.Fetch(ctx, el.AssetID)

	case el.AssetID != "":
		if r.store == nil {
			log.Printf("Warning: no media store, playing asset %s silent", el.AssetID)
			return r.silence(el), nil
		}
		return r.store.GetAsset(ctx, el.AssetID)

	default:
		return r.silence(el), nil
	}
}

func (r *Resolver) silence(el *timeline.Element) media.Asset {
	return media.Asset{
		ID:    "silence-" + el.ID,
		Name:  el.Name,
		Codec: "silence",
	}
}
