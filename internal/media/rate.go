// ABOUTME: Rate-converting reader bridging clip sources to the device rate
// ABOUTME: Linear interpolation handles both resampling and playback speed
package media

import (
	"fmt"
	"io"
)

const rateChunkFrames = 1024

// rateSource pulls frames from a ClipSource and produces frames at the
// device rate, scaled by the playback rate. It also tracks how far into
// the source playback has advanced, which is the handle's media time.
//
// Callers synchronize externally; the owning handle holds its own mutex
// around every call.
type rateSource struct {
	src        ClipSource
	deviceRate int
	channels   int

	ratio float64 // source frames consumed per output frame
	pos   float64 // fractional source frames pending before next output

	prev []int16 // source frame at position n-1
	next []int16 // source frame at position n

	chunk    []int16
	chunkLen int
	chunkOff int

	srcFrames int64 // whole source frames consumed since the last seek
	seekBase  float64
	eof       bool
	primed    bool
}

func newRateSource(src ClipSource, deviceRate, channels int) *rateSource {
	rs := &rateSource{
		src:        src,
		deviceRate: deviceRate,
		channels:   channels,
		prev:       make([]int16, channels),
		next:       make([]int16, channels),
		chunk:      make([]int16, rateChunkFrames*channels),
	}
	rs.setRatio(1.0)
	return rs
}

func (rs *rateSource) setRatio(playRate float64) {
	rs.ratio = float64(rs.src.SampleRate()) * playRate / float64(rs.deviceRate)
}

// SetPlayRate changes playback speed without disturbing position
func (rs *rateSource) SetPlayRate(playRate float64) {
	rs.setRatio(playRate)
}

// MediaTime reports the source position in seconds
func (rs *rateSource) MediaTime() float64 {
	return rs.seekBase + float64(rs.srcFrames)/float64(rs.src.SampleRate())
}

// SeekSec repositions the source and resets interpolation state
func (rs *rateSource) SeekSec(sec float64) error {
	if sec < 0 {
		sec = 0
	}
	if err := rs.src.Seek(sec); err != nil {
		return err
	}
	rs.seekBase = sec
	rs.srcFrames = 0
	rs.pos = 0
	rs.chunkLen = 0
	rs.chunkOff = 0
	rs.eof = false
	rs.primed = false
	for i := range rs.prev {
		rs.prev[i] = 0
		rs.next[i] = 0
	}
	return nil
}

// advance consumes one source frame into next, shifting next into prev.
// Returns false at end of source.
func (rs *rateSource) advance() (bool, error) {
	if rs.chunkOff >= rs.chunkLen {
		if rs.eof {
			return false, nil
		}
		n, err := rs.src.Read(rs.chunk)
		if err != nil && err != io.EOF {
			return false, fmt.Errorf("read source: %w", err)
		}
		if err == io.EOF {
			rs.eof = true
		}
		rs.chunkLen = n - n%rs.channels
		rs.chunkOff = 0
		if rs.chunkLen == 0 {
			return false, nil
		}
	}

	copy(rs.prev, rs.next)
	copy(rs.next, rs.chunk[rs.chunkOff:rs.chunkOff+rs.channels])
	rs.chunkOff += rs.channels
	rs.srcFrames++
	return true, nil
}

// Read produces interleaved device-rate frames. Returns the number of
// samples written; the remainder of out is untouched when the source
// runs out.
func (rs *rateSource) Read(out []int16) (int, error) {
	frames := len(out) / rs.channels
	written := 0

	if !rs.primed {
		ok, err := rs.advance()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, io.EOF
		}
		copy(rs.prev, rs.next)
		rs.primed = true
	}

	for i := 0; i < frames; i++ {
		rs.pos += rs.ratio
		for rs.pos >= 1.0 {
			ok, err := rs.advance()
			if err != nil {
				return written, err
			}
			if !ok {
				if written == 0 {
					return 0, io.EOF
				}
				return written, nil
			}
			rs.pos -= 1.0
		}

		for ch := 0; ch < rs.channels; ch++ {
			a := float64(rs.prev[ch])
			b := float64(rs.next[ch])
			out[i*rs.channels+ch] = int16(a + (b-a)*rs.pos)
		}
		written += rs.channels
	}

	return written, nil
}
