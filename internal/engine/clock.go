// ABOUTME: Playback transport clock with anchored position math
// ABOUTME: Position derives from a wall-clock anchor, so ticks never accumulate drift
package engine

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Clock owns the authoritative timeline position and play state. Position
// is computed from an anchor (timeline seconds plus the wall time of the
// last transport change), not from per-tick increments, so a long session
// stays exact no matter how unevenly ticks arrive.
//
// All transport mutations re-anchor at the current position first, which
// makes position continuous across play, pause, seek, rate, and loop
// changes.
type Clock struct {
	mu       sync.Mutex
	playing  bool
	rate     float64
	anchor   float64
	anchorAt time.Time

	loopSet   bool
	loopStart float64
	loopEnd   float64

	started time.Time
	now     func() time.Time
}

// NewClock creates a paused clock at position 0 with rate 1
func NewClock() *Clock {
	now := time.Now
	return &Clock{
		rate:     1.0,
		anchorAt: now(),
		started:  now(),
		now:      now,
	}
}

// position computes the current timeline position. Caller holds mu.
//
// The loop region captures playback that reaches the loop end from
// inside; a position anchored at or past the end runs free, so seeking
// beyond the loop escapes it while leaving it armed.
func (c *Clock) position(at time.Time) float64 {
	pos := c.anchor
	if c.playing {
		pos += at.Sub(c.anchorAt).Seconds() * c.rate
	}
	if c.loopSet && c.anchor < c.loopEnd && pos >= c.loopEnd {
		pos = c.loopStart + math.Mod(pos-c.loopStart, c.loopEnd-c.loopStart)
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// reanchor folds the current position into the anchor. Caller holds mu.
func (c *Clock) reanchor(at time.Time) {
	c.anchor = c.position(at)
	c.anchorAt = at
}

// Now returns the current timeline position in seconds
func (c *Clock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position(c.now())
}

// Play starts the transport. No-op when already playing.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.anchorAt = c.now()
	c.playing = true
}

// Pause stops the transport, freezing position. No-op when paused.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.reanchor(c.now())
	c.playing = false
}

// Playing reports the transport state
func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Seek jumps to the given position, clamped to 0. Play state is kept:
// a seek while playing keeps playing from the new position.
func (c *Clock) Seek(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < 0 {
		t = 0
	}
	c.anchor = t
	c.anchorAt = c.now()
}

// Rate returns the transport rate
func (c *Clock) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetRate changes the transport speed; r must be positive. Position is
// continuous across the change.
func (c *Clock) SetRate(r float64) error {
	if r <= 0 {
		return fmt.Errorf("invalid transport rate %f", r)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchor(c.now())
	c.rate = r
	return nil
}

// SetLoop arms a loop region [start, end). Playback that reaches end
// from inside wraps back to start.
func (c *Clock) SetLoop(start, end float64) error {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return fmt.Errorf("loop end %.3f not after start %.3f", end, start)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchor(c.now())
	c.loopSet = true
	c.loopStart = start
	c.loopEnd = end
	return nil
}

// ClearLoop disarms the loop region, keeping position continuous
func (c *Clock) ClearLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchor(c.now())
	c.loopSet = false
	c.loopStart = 0
	c.loopEnd = 0
}

// Loop returns the armed loop region, if any
func (c *Clock) Loop() (start, end float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopStart, c.loopEnd, c.loopSet
}

// Micros returns microseconds since the clock was created. This is the
// engine's monotonic reference for remote time sync; it never pauses and
// is unrelated to the timeline position.
func (c *Clock) Micros() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.started).Microseconds()
}
