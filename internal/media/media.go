// ABOUTME: Media runtime interfaces for playback handles and audio routes
// ABOUTME: The engine drives these; decode and device output live behind them
package media

import (
	"context"
	"errors"
)

// Sentinel errors callers branch on
var (
	ErrRouteDetached      = errors.New("audio route detached")
	ErrCaptureUnavailable = errors.New("capability unavailable")
	ErrHandleClosed       = errors.New("media handle closed")
)

// Handle is an independent media playback unit. One handle exists per
// timeline element with media content. All methods are safe for use from
// the engine tick goroutine; implementations synchronize internally.
type Handle interface {
	Play() error
	Pause() error
	// SeekTo jumps to the given media-local time in seconds
	SeekTo(sec float64) error
	// SetRate changes playback speed; r must be > 0
	SetRate(r float64) error
	// CurrentTime reports the current media-local position in seconds
	CurrentTime() float64
	// Playing reports whether the handle is currently advancing
	Playing() bool
	// Duration reports total media length in seconds (0 = unbounded)
	Duration() float64
	// Ready reports whether the handle can seek and play right now.
	// The synchronizer skips handles that are not ready.
	Ready() bool
	// AudioRoute returns this handle's routing primitive. Repeated calls
	// return the same route.
	AudioRoute() (Route, error)
	// SetVolume drives the handle's native volume control, the fallback
	// for elements whose route could not be attached. Routed handles are
	// driven through their Route instead.
	SetVolume(v float64) error
	Close() error
}

// Route is the per-element audio routing primitive: gain plus an optional
// high-pass/low-pass filter pair. Implementations keep audio flowing on
// partial failure; only structural problems return errors.
type Route interface {
	SetGain(gain float64) error
	// SetFilters configures the filter pair. highPassHz <= 0 disables the
	// high-pass; lowPassHz >= 20000 disables the low-pass.
	SetFilters(highPassHz, lowPassHz float64) error
	Detach() error
}

// Asset is the resolved content a handle plays. Data holds the encoded
// bytes for file-backed codecs; procedural assets carry parameters only.
type Asset struct {
	ID      string
	Name    string
	Codec   string // "mp3", "flac", "pcm", "tone", "silence"
	Data    []byte
	ToneHz  float64 // for tone assets
	Seconds float64 // known duration, 0 if derivable from Data

	// PCM layout for codec "pcm"
	SampleRate int
	Channels   int
}

// Opener resolves an asset into a playback handle
type Opener interface {
	Open(ctx context.Context, asset Asset) (Handle, error)
}
