// ABOUTME: Monitor mixer summing handle output into fixed 20ms frames
// ABOUTME: Feeds capture taps; frames are dropped rather than block playback
package media

import (
	"sync"
	"time"
)

const mixFrameMs = 20

// Tap is one subscriber to the monitor mix
type Tap struct {
	Frames chan []int16
}

// Mixer collects post-route samples from playing handles and emits summed
// frames on a fixed cadence. Handles feed asynchronously from the device
// pull path; alignment is best-effort, which is fine for a monitor
// stream.
type Mixer struct {
	mu           sync.Mutex
	pending      map[string][]int16
	taps         []*Tap
	frameSamples int
	done         chan struct{}
	stopOnce     sync.Once
}

func newMixer(sampleRate, channels int) *Mixer {
	m := &Mixer{
		pending:      make(map[string][]int16),
		frameSamples: sampleRate * mixFrameMs / 1000 * channels,
		done:         make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mixer) run() {
	ticker := time.NewTicker(mixFrameMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.emit()
		case <-m.done:
			return
		}
	}
}

// feed queues samples from one handle. Backlog beyond half a second is
// discarded so a stalled tap cannot grow memory.
func (m *Mixer) feed(id string, samples []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := append(m.pending[id], samples...)
	if max := m.frameSamples * 25; len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	m.pending[id] = buf
}

// emit sums one frame across all feeding handles and fans it out
func (m *Mixer) emit() {
	m.mu.Lock()
	frame := make([]int16, m.frameSamples)
	for id, buf := range m.pending {
		n := len(buf)
		if n > m.frameSamples {
			n = m.frameSamples
		}
		for i := 0; i < n; i++ {
			v := int32(frame[i]) + int32(buf[i])
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			frame[i] = int16(v)
		}
		m.pending[id] = buf[n:]
	}
	taps := make([]*Tap, len(m.taps))
	copy(taps, m.taps)
	m.mu.Unlock()

	for _, t := range taps {
		select {
		case t.Frames <- frame:
		default:
			// Slow consumer; drop the frame
		}
	}
}

func (m *Mixer) tap() *Tap {
	t := &Tap{Frames: make(chan []int16, 8)}
	m.mu.Lock()
	m.taps = append(m.taps, t)
	m.mu.Unlock()
	return t
}

// untap removes a tap and reports how many remain
func (m *Mixer) untap(t *Tap) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.taps {
		if existing == t {
			m.taps = append(m.taps[:i], m.taps[i+1:]...)
			break
		}
	}
	return len(m.taps)
}

func (m *Mixer) stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
}
