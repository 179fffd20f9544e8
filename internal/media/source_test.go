// ABOUTME: Tests for PCM clip sources
// ABOUTME: Covers tone generation determinism, raw PCM reads, and seeking
package media

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
)

func TestToneSourceDeterministic(t *testing.T) {
	a := NewToneSource(440, 0)
	b := NewToneSource(440, 0)

	bufA := make([]int16, 256)
	bufB := make([]int16, 256)
	a.Read(bufA)
	b.Read(bufB)

	for i := range bufA {
		if bufA[i] != bufB[i] {
			t.Fatalf("sample %d differs: %d vs %d", i, bufA[i], bufB[i])
		}
	}
}

func TestToneSourceWaveform(t *testing.T) {
	s := NewToneSource(440, 0)

	buf := make([]int16, 96)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 96 {
		t.Fatalf("expected 96 samples, got %d", n)
	}

	// First frame is sin(0) on both channels
	if buf[0] != 0 || buf[1] != 0 {
		t.Errorf("expected silence at t=0, got %d/%d", buf[0], buf[1])
	}

	// Stereo duplication
	for i := 0; i < n; i += 2 {
		if buf[i] != buf[i+1] {
			t.Fatalf("frame %d: channels differ", i/2)
		}
	}

	// Second frame matches the generator formula
	want := int16(math.Sin(2*math.Pi*440/toneSampleRate) * 32767.0 * toneAmplitude)
	if buf[2] != want {
		t.Errorf("expected sample %d, got %d", want, buf[2])
	}
}

func TestToneSourceBoundedDuration(t *testing.T) {
	s := NewToneSource(440, 0.001) // 48 frames

	buf := make([]int16, 200)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 96 {
		t.Errorf("expected 96 samples for 1ms clip, got %d", n)
	}

	if _, err := s.Read(buf); err != io.EOF {
		t.Errorf("expected EOF after clip end, got %v", err)
	}
}

func TestToneSourceSeek(t *testing.T) {
	s := NewToneSource(440, 0)
	first := make([]int16, 64)
	s.Read(first)

	if err := s.Seek(0); err != nil {
		t.Fatalf("seek failed: %v", err)
	}

	again := make([]int16, 64)
	s.Read(again)
	for i := range first {
		if first[i] != again[i] {
			t.Fatal("seek to start did not reset the generator")
		}
	}
}

func pcmAsset(frames int, sampleRate, channels int) Asset {
	data := make([]byte, frames*channels*2)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(data[(f*channels+ch)*2:], uint16(int16(f)))
		}
	}
	return Asset{ID: "pcm-test", Codec: "pcm", Data: data, SampleRate: sampleRate, Channels: channels}
}

func TestPCMSourceRead(t *testing.T) {
	src, err := NewClipSource(pcmAsset(10, 48000, 2))
	if err != nil {
		t.Fatalf("failed to create source: %v", err)
	}

	buf := make([]int16, 8)
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 8 {
		t.Fatalf("expected 8 samples, got %d", n)
	}
	if buf[0] != 0 || buf[2] != 1 || buf[4] != 2 {
		t.Errorf("unexpected frame values: %v", buf)
	}
}

func TestPCMSourceEOF(t *testing.T) {
	src, _ := NewClipSource(pcmAsset(4, 48000, 2))

	buf := make([]int16, 100)
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if n != 8 {
		t.Errorf("expected 8 samples, got %d", n)
	}

	if _, err := src.Read(buf); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestPCMSourceSeekAndDuration(t *testing.T) {
	src, _ := NewClipSource(pcmAsset(4800, 48000, 2))

	if got := src.Duration(); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("expected duration 0.1s, got %f", got)
	}

	if err := src.Seek(0.05); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	buf := make([]int16, 2)
	src.Read(buf)
	if buf[0] != 2400 {
		t.Errorf("expected frame 2400 after seek, got %d", buf[0])
	}
}

func TestPCMSourceRequiresLayout(t *testing.T) {
	_, err := NewClipSource(Asset{ID: "bad", Codec: "pcm", Data: []byte{0, 0}})
	if err == nil {
		t.Error("expected error for pcm asset without sample rate")
	}
}

func TestUnsupportedCodec(t *testing.T) {
	_, err := NewClipSource(Asset{ID: "x", Codec: "wavpack"})
	if err == nil {
		t.Error("expected error for unsupported codec")
	}
}
