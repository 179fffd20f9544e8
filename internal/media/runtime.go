// ABOUTME: Media runtime owning the audio device and all open handles
// ABOUTME: Falls back to clocked handles when no device is available
package media

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/google/uuid"
)

// RuntimeConfig configures the media runtime
type RuntimeConfig struct {
	SampleRate   int
	Channels     int
	EnableDevice bool
	Debug        bool
}

// Runtime opens assets into playback handles. With a working audio
// device, audio-bearing assets play through it; otherwise every handle is
// a clocked stub and the preview runs silent.
type Runtime struct {
	cfg RuntimeConfig

	mu      sync.Mutex
	handles map[string]Handle
	mixer   *Mixer

	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
}

// NewRuntime creates a runtime. The audio device is opened lazily on the
// first audio-bearing Open.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	return &Runtime{
		cfg:     cfg,
		handles: make(map[string]Handle),
	}
}

// Open resolves an asset into a playback handle
func (rt *Runtime) Open(ctx context.Context, asset Asset) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.New().String()

	if asset.Codec == "" || asset.Codec == "silence" {
		h := newTimeHandle(id, rt, asset.Seconds)
		rt.register(id, h)
		return h, nil
	}

	src, err := NewClipSource(asset)
	if err != nil {
		return nil, fmt.Errorf("open asset %s: %w", asset.ID, err)
	}

	otoCtx := rt.device()
	if otoCtx == nil {
		// Headless: keep the timing behavior, drop the audio
		duration := src.Duration()
		src.Close()
		h := newTimeHandle(id, rt, duration)
		rt.register(id, h)
		return h, nil
	}

	h := newClipHandle(id, rt, src, otoCtx)
	rt.register(id, h)

	if rt.cfg.Debug {
		log.Printf("[DEBUG] Opened asset %s (%s) as handle %s", asset.ID, asset.Codec, id)
	}
	return h, nil
}

// device returns the oto context, or nil when the runtime is headless
func (rt *Runtime) device() *oto.Context {
	if !rt.cfg.EnableDevice {
		return nil
	}

	rt.otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   rt.cfg.SampleRate,
			ChannelCount: rt.cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		otoCtx, readyChan, err := oto.NewContext(op)
		if err != nil {
			rt.otoErr = err
			log.Printf("Warning: audio device unavailable, running silent: %v", err)
			return
		}
		<-readyChan
		rt.otoCtx = otoCtx
		log.Printf("Audio device ready: %dHz, %d channels", rt.cfg.SampleRate, rt.cfg.Channels)
	})

	return rt.otoCtx
}

func (rt *Runtime) register(id string, h Handle) {
	rt.mu.Lock()
	rt.handles[id] = h
	rt.mu.Unlock()
}

func (rt *Runtime) forget(id string) {
	rt.mu.Lock()
	delete(rt.handles, id)
	rt.mu.Unlock()
}

// Format reports the device sample rate and channel count
func (rt *Runtime) Format() (sampleRate, channels int) {
	return rt.cfg.SampleRate, rt.cfg.Channels
}

// OpenHandles reports how many handles are currently open
func (rt *Runtime) OpenHandles() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.handles)
}

func (rt *Runtime) activeMixer() *Mixer {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.mixer
}

// MixTap starts the monitor mix and returns a tap on it. Without an
// audio device there is no mix to capture and the request hard-fails
// with ErrCaptureUnavailable.
func (rt *Runtime) MixTap() (*Tap, error) {
	if rt.device() == nil {
		return nil, ErrCaptureUnavailable
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.mixer == nil {
		rt.mixer = newMixer(rt.cfg.SampleRate, rt.cfg.Channels)
	}
	return rt.mixer.tap(), nil
}

// CloseTap stops the monitor mix once no taps remain
func (rt *Runtime) CloseTap(t *Tap) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.mixer == nil {
		return
	}
	if rt.mixer.untap(t) == 0 {
		rt.mixer.stop()
		rt.mixer = nil
	}
}

// Close shuts down every open handle
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	open := make([]Handle, 0, len(rt.handles))
	for _, h := range rt.handles {
		open = append(open, h)
	}
	mixer := rt.mixer
	rt.mixer = nil
	rt.mu.Unlock()

	if mixer != nil {
		mixer.stop()
	}
	for _, h := range open {
		if err := h.Close(); err != nil {
			log.Printf("Warning: closing handle: %v", err)
		}
	}
	return nil
}
