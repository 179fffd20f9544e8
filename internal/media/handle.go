// ABOUTME: Playback handle implementations: device-backed clips and clocked stubs
// ABOUTME: Handles report media-local time and expose one audio route each
package media

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Leveler is implemented by handles that can report a momentary output
// level in 0..1. Used for ducking triggers and meters.
type Leveler interface {
	Level() float64
}

// clipHandle plays a decoded clip through the audio device. Media time is
// derived from the source frames the device has pulled, so it tracks what
// the user actually hears.
type clipHandle struct {
	mu      sync.Mutex
	id      string
	rt      *Runtime
	src     ClipSource
	rs      *rateSource
	chain   *processChain
	route   *clipRoute
	player  *oto.Player
	rate    float64
	playing bool
	closed  bool
}

func newClipHandle(id string, rt *Runtime, src ClipSource, otoCtx *oto.Context) *clipHandle {
	chain := newProcessChain(rt.cfg.SampleRate, rt.cfg.Channels)
	h := &clipHandle{
		id:    id,
		rt:    rt,
		src:   src,
		rs:    newRateSource(src, rt.cfg.SampleRate, rt.cfg.Channels),
		chain: chain,
		route: newClipRoute(chain),
		rate:  1.0,
	}
	h.player = otoCtx.NewPlayer(&handleReader{h: h})
	return h
}

// handleReader is the pull path the device drives: rate conversion, then
// the route's processing chain, then the capture tee.
type handleReader struct {
	h *clipHandle
}

func (r *handleReader) Read(p []byte) (int, error) {
	h := r.h

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, io.EOF
	}

	samples := make([]int16, len(p)/2)
	n, _ := h.rs.Read(samples)
	// Pad with silence so the device never starves; a later seek can
	// rewind an exhausted source.
	for i := n; i < len(samples); i++ {
		samples[i] = 0
	}
	h.chain.process(samples)
	h.mu.Unlock()

	if mx := h.rt.activeMixer(); mx != nil {
		mx.feed(h.id, samples)
	}

	for i, s := range samples {
		p[i*2] = byte(s)
		p[i*2+1] = byte(s >> 8)
	}
	return len(samples) * 2, nil
}

func (h *clipHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if !h.playing {
		h.playing = true
		h.player.Play()
	}
	return nil
}

func (h *clipHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if h.playing {
		h.playing = false
		h.player.Pause()
	}
	return nil
}

func (h *clipHandle) SeekTo(sec float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if err := h.rs.SeekSec(sec); err != nil {
		return fmt.Errorf("seek handle: %w", err)
	}
	return nil
}

func (h *clipHandle) SetRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("invalid playback rate %f", rate)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.rate = rate
	h.rs.SetPlayRate(rate)
	return nil
}

func (h *clipHandle) CurrentTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rs.MediaTime()
}

func (h *clipHandle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *clipHandle) Duration() float64 {
	return h.src.Duration()
}

func (h *clipHandle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

func (h *clipHandle) AudioRoute() (Route, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	return h.route, nil
}

func (h *clipHandle) SetVolume(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.chain.setGain(v)
	return nil
}

func (h *clipHandle) Level() float64 {
	h.mu.Lock()
	playing := h.playing
	h.mu.Unlock()
	if !playing {
		return 0
	}
	return h.chain.currentLevel()
}

func (h *clipHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.playing = false
	h.mu.Unlock()

	h.player.Close()
	h.rt.forget(h.id)
	return h.src.Close()
}

// timeHandle is a clocked stub for elements with no audio device path:
// images, text, and any media opened while the runtime runs headless.
// Position advances on a wall-clock anchor, so sync behaves identically
// with or without a device.
type timeHandle struct {
	mu       sync.Mutex
	id       string
	rt       *Runtime
	duration float64
	rate     float64
	playing  bool
	anchor   float64
	anchorAt time.Time
	chain    *processChain
	route    *clipRoute
	closed   bool
}

func newTimeHandle(id string, rt *Runtime, duration float64) *timeHandle {
	chain := newProcessChain(rt.cfg.SampleRate, rt.cfg.Channels)
	return &timeHandle{
		id:       id,
		rt:       rt,
		duration: duration,
		rate:     1.0,
		chain:    chain,
		route:    newClipRoute(chain),
	}
}

func (h *timeHandle) position() float64 {
	pos := h.anchor
	if h.playing {
		pos += time.Since(h.anchorAt).Seconds() * h.rate
	}
	if pos < 0 {
		pos = 0
	}
	if h.duration > 0 && pos > h.duration {
		pos = h.duration
	}
	return pos
}

func (h *timeHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if !h.playing {
		h.anchor = h.position()
		h.anchorAt = time.Now()
		h.playing = true
	}
	return nil
}

func (h *timeHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if h.playing {
		h.anchor = h.position()
		h.playing = false
	}
	return nil
}

func (h *timeHandle) SeekTo(sec float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if sec < 0 {
		sec = 0
	}
	h.anchor = sec
	h.anchorAt = time.Now()
	return nil
}

func (h *timeHandle) SetRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("invalid playback rate %f", rate)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.anchor = h.position()
	h.anchorAt = time.Now()
	h.rate = rate
	return nil
}

func (h *timeHandle) CurrentTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position()
}

func (h *timeHandle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *timeHandle) Duration() float64 { return h.duration }

func (h *timeHandle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

func (h *timeHandle) AudioRoute() (Route, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	return h.route, nil
}

func (h *timeHandle) SetVolume(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.chain.setGain(v)
	return nil
}

// Level estimates output level from the configured gain; a clocked stub
// has no real signal to measure.
func (h *timeHandle) Level() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playing {
		return 0
	}
	return h.chain.currentGain()
}

func (h *timeHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.playing = false
	h.mu.Unlock()

	h.rt.forget(h.id)
	return nil
}
