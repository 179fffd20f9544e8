// ABOUTME: Per-route sample processing: gain plus biquad high/low-pass filters
// ABOUTME: Filter coefficients follow the RBJ audio EQ cookbook
package media

import (
	"fmt"
	"math"
	"sync"
)

// filterBypassHz is the low-pass cutoff at and above which the filter is
// a no-op, and 0 plays the same role for the high-pass.
const filterBypassHz = 20000.0

const defaultQ = 0.7071

// biquad is a direct-form-1 second-order filter section
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	x1, x2     float64
	y1, y2     float64
}

func newLowPass(cutoffHz, sampleRate float64) *biquad {
	w := 2 * math.Pi * cutoffHz / sampleRate
	sinw, cosw := math.Sin(w), math.Cos(w)
	alpha := sinw / (2 * defaultQ)

	a0 := 1 + alpha
	return &biquad{
		b0: (1 - cosw) / 2 / a0,
		b1: (1 - cosw) / a0,
		b2: (1 - cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func newHighPass(cutoffHz, sampleRate float64) *biquad {
	w := 2 * math.Pi * cutoffHz / sampleRate
	sinw, cosw := math.Sin(w), math.Cos(w)
	alpha := sinw / (2 * defaultQ)

	a0 := 1 + alpha
	return &biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// processChain applies gain and the configured filter pair to interleaved
// int16 samples. One chain exists per handle; the route mutates it, the
// playback path calls process.
type processChain struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	gain       float64
	highPass   []*biquad // one per channel, nil when bypassed
	lowPass    []*biquad
	level      float64 // post-gain momentary level, 0..1
}

func newProcessChain(sampleRate, channels int) *processChain {
	return &processChain{
		sampleRate: sampleRate,
		channels:   channels,
		gain:       1.0,
	}
}

func (c *processChain) setGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	c.mu.Lock()
	c.gain = gain
	c.mu.Unlock()
}

// configureFilters validates and installs the filter pair. The chain is
// left untouched when the parameters are unusable.
func (c *processChain) configureFilters(highPassHz, lowPassHz float64) error {
	if math.IsNaN(highPassHz) || math.IsNaN(lowPassHz) {
		return fmt.Errorf("filter cutoff is NaN")
	}
	if highPassHz < 0 || lowPassHz <= 0 {
		return fmt.Errorf("filter cutoff out of range: high-pass %f, low-pass %f", highPassHz, lowPassHz)
	}
	if lowPassHz < filterBypassHz && highPassHz >= lowPassHz {
		return fmt.Errorf("high-pass %f above low-pass %f", highPassHz, lowPassHz)
	}
	nyquist := float64(c.sampleRate) / 2
	if highPassHz >= nyquist {
		return fmt.Errorf("high-pass %f at or above nyquist %f", highPassHz, nyquist)
	}

	var hp, lp []*biquad
	if highPassHz > 0 {
		hp = make([]*biquad, c.channels)
		for i := range hp {
			hp[i] = newHighPass(highPassHz, float64(c.sampleRate))
		}
	}
	if lowPassHz < filterBypassHz {
		cutoff := lowPassHz
		if cutoff >= nyquist {
			cutoff = nyquist * 0.99
		}
		lp = make([]*biquad, c.channels)
		for i := range lp {
			lp[i] = newLowPass(cutoff, float64(c.sampleRate))
		}
	}

	c.mu.Lock()
	c.highPass = hp
	c.lowPass = lp
	c.mu.Unlock()
	return nil
}

// reset drops filters and returns the chain to unity gain
func (c *processChain) reset() {
	c.mu.Lock()
	c.gain = 1.0
	c.highPass = nil
	c.lowPass = nil
	c.level = 0
	c.mu.Unlock()
}

// process applies the chain to samples in place and records the momentary
// output level
func (c *processChain) process(samples []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sum float64
	for i := range samples {
		ch := i % c.channels
		v := float64(samples[i])

		if c.highPass != nil {
			v = c.highPass[ch].process(v)
		}
		if c.lowPass != nil {
			v = c.lowPass[ch].process(v)
		}
		v *= c.gain

		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		samples[i] = int16(v)
		sum += math.Abs(v)
	}

	if len(samples) > 0 {
		c.level = sum / float64(len(samples)) / 32768.0
	}
}

// currentLevel returns the last block's post-gain level, 0..1
func (c *processChain) currentLevel() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

func (c *processChain) currentGain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}
