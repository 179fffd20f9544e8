// ABOUTME: Tests for the remote media fetcher
// ABOUTME: Covers download, content-addressed caching, and error handling
package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchStoresAsset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fake mp3 data"))
	}))
	defer server.Close()

	s := openTestStore(t)
	f := NewFetcher(s)
	ctx := context.Background()
	url := server.URL + "/clip.mp3"

	a, err := f.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if a.Codec != "mp3" {
		t.Errorf("got codec %q, want mp3", a.Codec)
	}
	if a.Name != "clip.mp3" {
		t.Errorf("got name %q, want clip.mp3", a.Name)
	}
	if string(a.Data) != "fake mp3 data" {
		t.Errorf("got payload %q", a.Data)
	}

	stored, err := s.GetAsset(ctx, AssetIDForURL(url))
	if err != nil {
		t.Fatalf("fetched asset not in store: %v", err)
	}
	if string(stored.Data) != "fake mp3 data" {
		t.Errorf("stored payload mismatch: %q", stored.Data)
	}
}

func TestFetchUsesCache(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fake mp3 data"))
	}))
	defer server.Close()

	s := openTestStore(t)
	f := NewFetcher(s)
	ctx := context.Background()
	url := server.URL + "/clip.mp3"

	first, err := f.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if requestCount != 1 {
		t.Errorf("expected 1 request, got %d", requestCount)
	}

	second, err := f.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if requestCount != 1 {
		t.Errorf("expected cached fetch to not hit server, but got %d requests", requestCount)
	}
	if first.ID != second.ID {
		t.Errorf("expected same asset ID, got %s and %s", first.ID, second.ID)
	}
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := openTestStore(t)
	f := NewFetcher(s)

	_, err := f.Fetch(context.Background(), server.URL+"/clip.mp3")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected error to mention 404, got: %v", err)
	}
}

func TestFetchEmptyURL(t *testing.T) {
	s := openTestStore(t)
	f := NewFetcher(s)

	if _, err := f.Fetch(context.Background(), ""); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestFetchUnsupportedFormat(t *testing.T) {
	s := openTestStore(t)
	f := NewFetcher(s)

	_, err := f.Fetch(context.Background(), "http://example.com/image.png")
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported format error, got: %v", err)
	}
}

func TestExtensionOf(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"http://example.com/clip.mp3", ".mp3"},
		{"http://example.com/clip.FLAC", ".flac"},
		{"http://example.com/clip.mp3?token=abc", ".mp3"},
		{"http://example.com/path/to/clip.flac", ".flac"},
		{"http://example.com/clip", ""},
	}

	for _, tt := range tests {
		result := extensionOf(tt.url)
		if result != tt.expected {
			t.Errorf("extensionOf(%q) = %q, expected %q", tt.url, result, tt.expected)
		}
	}
}

func TestAssetIDForURLIsStable(t *testing.T) {
	a := AssetIDForURL("http://example.com/clip.mp3")
	b := AssetIDForURL("http://example.com/clip.mp3")
	c := AssetIDForURL("http://example.com/other.mp3")

	if a != b {
		t.Errorf("expected stable IDs, got %s and %s", a, b)
	}
	if a == c {
		t.Error("expected different URLs to produce different IDs")
	}
	if len(a) != 16 {
		t.Errorf("got ID length %d, want 16", len(a))
	}
}
