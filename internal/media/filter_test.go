// ABOUTME: Tests for the per-route processing chain
// ABOUTME: Covers gain, clamping, filter validation, and biquad behavior
package media

import (
	"math"
	"testing"
)

func constantBlock(value int16, n int) []int16 {
	block := make([]int16, n)
	for i := range block {
		block[i] = value
	}
	return block
}

func TestChainGain(t *testing.T) {
	chain := newProcessChain(48000, 2)
	chain.setGain(0.5)

	block := constantBlock(1000, 64)
	chain.process(block)

	for i, v := range block {
		if v != 500 {
			t.Fatalf("sample %d: expected 500, got %d", i, v)
		}
	}
}

func TestChainUnityIsTransparent(t *testing.T) {
	chain := newProcessChain(48000, 2)

	block := []int16{-32768, -1, 0, 1, 12345, 32767}
	want := append([]int16(nil), block...)
	chain.process(block)

	for i := range block {
		if block[i] != want[i] {
			t.Errorf("sample %d changed: %d -> %d", i, want[i], block[i])
		}
	}
}

func TestChainNegativeGainClamped(t *testing.T) {
	chain := newProcessChain(48000, 2)
	chain.setGain(-3)

	block := constantBlock(1000, 8)
	chain.process(block)
	if block[0] != 0 {
		t.Errorf("expected silence with clamped gain, got %d", block[0])
	}
}

func TestChainClampsOverflow(t *testing.T) {
	chain := newProcessChain(48000, 2)
	chain.setGain(4)

	block := constantBlock(20000, 8)
	chain.process(block)
	for i, v := range block {
		if v != 32767 {
			t.Fatalf("sample %d: expected clamp to 32767, got %d", i, v)
		}
	}
}

func TestChainLevelTracksOutput(t *testing.T) {
	chain := newProcessChain(48000, 2)

	chain.process(constantBlock(16384, 64))
	level := chain.currentLevel()
	if math.Abs(level-0.5) > 0.01 {
		t.Errorf("expected level near 0.5, got %f", level)
	}

	chain.process(constantBlock(0, 64))
	if got := chain.currentLevel(); got != 0 {
		t.Errorf("expected level 0 for silence, got %f", got)
	}
}

func TestConfigureFiltersRejectsBadCutoffs(t *testing.T) {
	chain := newProcessChain(48000, 2)

	cases := []struct {
		name     string
		highPass float64
		lowPass  float64
	}{
		{"nan high-pass", math.NaN(), 20000},
		{"nan low-pass", 0, math.NaN()},
		{"negative high-pass", -10, 20000},
		{"zero low-pass", 0, 0},
		{"inverted band", 5000, 200},
		{"high-pass at nyquist", 24000, 20000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := chain.configureFilters(tc.highPass, tc.lowPass); err == nil {
				t.Errorf("expected error for high-pass %f low-pass %f", tc.highPass, tc.lowPass)
			}
		})
	}
}

func TestConfigureFiltersBypassDefaults(t *testing.T) {
	chain := newProcessChain(48000, 2)
	if err := chain.configureFilters(0, filterBypassHz); err != nil {
		t.Fatalf("default cutoffs should configure cleanly: %v", err)
	}

	// Bypass must be bit-transparent
	block := []int16{100, -200, 300, -400}
	want := append([]int16(nil), block...)
	chain.process(block)
	for i := range block {
		if block[i] != want[i] {
			t.Errorf("sample %d changed under bypass: %d -> %d", i, want[i], block[i])
		}
	}
}

func TestHighPassBlocksDC(t *testing.T) {
	chain := newProcessChain(48000, 2)
	if err := chain.configureFilters(1000, filterBypassHz); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	// Feed a constant signal until the filter settles
	var last float64
	for i := 0; i < 20; i++ {
		chain.process(constantBlock(8000, 1024))
		last = chain.currentLevel()
	}
	if last > 0.01 {
		t.Errorf("high-pass should remove DC, level still %f", last)
	}
}

func TestLowPassPassesDC(t *testing.T) {
	chain := newProcessChain(48000, 2)
	if err := chain.configureFilters(0, 500); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	var last float64
	for i := 0; i < 20; i++ {
		chain.process(constantBlock(8000, 1024))
		last = chain.currentLevel()
	}
	want := 8000.0 / 32768.0
	if math.Abs(last-want) > 0.02 {
		t.Errorf("low-pass should pass DC, level %f, want near %f", last, want)
	}
}

func TestChainReset(t *testing.T) {
	chain := newProcessChain(48000, 2)
	chain.setGain(0.25)
	if err := chain.configureFilters(200, 8000); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	chain.reset()
	if got := chain.currentGain(); got != 1.0 {
		t.Errorf("expected unity gain after reset, got %f", got)
	}

	block := constantBlock(1000, 16)
	chain.process(block)
	if block[0] != 1000 {
		t.Errorf("expected pass-through after reset, got %d", block[0])
	}
}
