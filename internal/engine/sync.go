// ABOUTME: Per-tick reconciliation of media handles against the timeline clock
// ABOUTME: A hysteresis band around the target keeps seeks rare while media drifts
package engine

import (
	"math"
	"sync"

	"github.com/Previz-Studio/previz-go/internal/media"
	"github.com/Previz-Studio/previz-go/internal/timeline"
)

// DefaultSyncTolerance is the hysteresis band in seconds. Media naturally
// drifts against the timeline between ticks; drift inside the band is left
// alone and only drift beyond it forces a hard seek, so playback is never
// interrupted by corrections it does not need.
const DefaultSyncTolerance = 0.3

// Synchronizer reconciles each media handle's position, rate, and play
// state against the timeline clock once per tick. All commands it issues
// are fire-and-forget; the handle converges on its own time and the
// hysteresis band absorbs the lag.
type Synchronizer struct {
	tolerance float64

	mu    sync.Mutex
	stats SyncStats
	drift map[string]float64
}

// SyncStats counts reconciliation outcomes
type SyncStats struct {
	Ticks       int64
	Corrections int64
	NotReady    int64
	Errors      int64
}

// NewSynchronizer creates a synchronizer with the given hysteresis band
// in seconds; zero or negative selects the default.
func NewSynchronizer(tolerance float64) *Synchronizer {
	if tolerance <= 0 {
		tolerance = DefaultSyncTolerance
	}
	return &Synchronizer{
		tolerance: tolerance,
		drift:     make(map[string]float64),
	}
}

// Tolerance returns the hysteresis band in seconds
func (s *Synchronizer) Tolerance() float64 { return s.tolerance }

// ReconcileAll reconciles every handle in the map against its element.
// Handles whose element is gone from the sequence are left untouched;
// the engine closes those separately.
func (s *Synchronizer) ReconcileAll(seq *timeline.Sequence, handles map[string]media.Handle, t float64, playing bool, clockRate float64) {
	for id, h := range handles {
		el := seq.ElementByID(id)
		if el == nil {
			continue
		}
		s.Reconcile(el, h, t, playing, clockRate)
	}
	s.mu.Lock()
	s.stats.Ticks++
	s.mu.Unlock()
}

// Reconcile drives one handle toward the timeline position t.
//
// An element outside its active window only gets paused; its position is
// left wherever it stopped, since the next activation seeks anyway. An
// unready handle is skipped entirely, so a buffering source never takes a
// seek storm. Otherwise the handle's rate is reapplied every tick, a seek
// is issued only when drift exceeds the hysteresis band, and play/pause
// is propagated only on mismatch.
func (s *Synchronizer) Reconcile(el *timeline.Element, h media.Handle, t float64, playing bool, clockRate float64) {
	if el.Hidden || !el.ActiveAt(t) {
		if h.Playing() {
			s.note(h.Pause())
		}
		return
	}

	if !h.Ready() {
		s.mu.Lock()
		s.stats.NotReady++
		s.mu.Unlock()
		return
	}

	rate := el.Rate
	if rate <= 0 {
		rate = 1.0
	}
	s.note(h.SetRate(rate * clockRate))

	want := el.LocalMediaTime(t)
	drift := math.Abs(h.CurrentTime() - want)
	if drift > s.tolerance {
		s.note(h.SeekTo(want))
		s.mu.Lock()
		s.stats.Corrections++
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.drift[el.ID] = drift
	s.mu.Unlock()

	if playing && !h.Playing() {
		s.note(h.Play())
	} else if !playing && h.Playing() {
		s.note(h.Pause())
	}
}

// note counts a fire-and-forget command failure
func (s *Synchronizer) note(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}

// Stats returns a copy of the reconciliation counters
func (s *Synchronizer) Stats() SyncStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// LastDrift reports the most recent observed drift for an element
func (s *Synchronizer) LastDrift(elementID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drift[elementID]
	return d, ok
}

// Forget drops per-element reconciliation state, e.g. after removal
func (s *Synchronizer) Forget(elementID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drift, elementID)
}
