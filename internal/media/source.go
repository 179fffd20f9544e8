// ABOUTME: PCM clip sources decoding MP3, FLAC, raw PCM, and generated tones
// ABOUTME: Sources read interleaved int16 samples and support sample-accurate seeks
package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// ClipSource provides interleaved int16 PCM for one asset
type ClipSource interface {
	// Read fills samples and returns the number of samples written.
	// io.EOF signals the end of the clip.
	Read(samples []int16) (int, error)
	SampleRate() int
	Channels() int
	// Duration returns the clip length in seconds, 0 if unbounded
	Duration() float64
	// Seek jumps to the given position in seconds
	Seek(sec float64) error
	Close() error
}

// NewClipSource builds a source for the asset's codec
func NewClipSource(asset Asset) (ClipSource, error) {
	switch asset.Codec {
	case "mp3":
		return newMP3Source(asset.Data)
	case "flac":
		return newFLACSource(asset.Data)
	case "pcm":
		return newPCMSource(asset)
	case "tone":
		return NewToneSource(asset.ToneHz, asset.Seconds), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", asset.Codec)
	}
}

// mp3Source decodes MP3 from in-memory bytes
type mp3Source struct {
	decoder    *mp3.Decoder
	sampleRate int
}

func newMP3Source(data []byte) (*mp3Source, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &mp3Source{
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
	}, nil
}

func (s *mp3Source) Read(samples []int16) (int, error) {
	buf := make([]byte, len(samples)*2)
	n, err := io.ReadFull(s.decoder, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		return 0, err
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
	if numSamples > 0 {
		return numSamples, nil
	}
	return 0, err
}

func (s *mp3Source) SampleRate() int { return s.sampleRate }

// go-mp3 always outputs stereo
func (s *mp3Source) Channels() int { return 2 }

func (s *mp3Source) Duration() float64 {
	// Length is total decoded bytes: 2 channels x 2 bytes per sample
	return float64(s.decoder.Length()) / 4.0 / float64(s.sampleRate)
}

func (s *mp3Source) Seek(sec float64) error {
	if sec < 0 {
		sec = 0
	}
	offset := int64(sec*float64(s.sampleRate)) * 4
	if _, err := s.decoder.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("mp3 seek: %w", err)
	}
	return nil
}

func (s *mp3Source) Close() error { return nil }

// flacSource decodes FLAC from in-memory bytes
type flacSource struct {
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	totalSec   float64

	// leftover samples from a partially consumed frame
	pending []int16
}

func newFLACSource(data []byte) (*flacSource, error) {
	stream, err := flac.NewSeek(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	src := &flacSource{
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
	}
	if info.NSamples > 0 {
		src.totalSec = float64(info.NSamples) / float64(info.SampleRate)
	}
	return src, nil
}

func (s *flacSource) Read(samples []int16) (int, error) {
	written := 0

	for written < len(samples) {
		if len(s.pending) > 0 {
			n := copy(samples[written:], s.pending)
			s.pending = s.pending[n:]
			written += n
			continue
		}

		frame, err := s.stream.ParseNext()
		if err != nil {
			if written > 0 {
				return written, nil
			}
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("flac frame: %w", err)
		}

		block := int(frame.BlockSize)
		decoded := make([]int16, 0, block*s.channels)
		for i := 0; i < block; i++ {
			for ch := 0; ch < s.channels; ch++ {
				decoded = append(decoded, s.toInt16(frame.Subframes[ch].Samples[i]))
			}
		}
		s.pending = decoded
	}

	return written, nil
}

// toInt16 scales a FLAC sample of the stream's bit depth to int16
func (s *flacSource) toInt16(sample int32) int16 {
	shift := s.bitDepth - 16
	if shift > 0 {
		return int16(sample >> shift)
	}
	if shift < 0 {
		return int16(sample << -shift)
	}
	return int16(sample)
}

func (s *flacSource) SampleRate() int   { return s.sampleRate }
func (s *flacSource) Channels() int     { return s.channels }
func (s *flacSource) Duration() float64 { return s.totalSec }

func (s *flacSource) Seek(sec float64) error {
	if sec < 0 {
		sec = 0
	}
	s.pending = nil
	if _, err := s.stream.Seek(uint64(sec * float64(s.sampleRate))); err != nil {
		return fmt.Errorf("flac seek: %w", err)
	}
	return nil
}

func (s *flacSource) Close() error { return nil }

// pcmSource reads raw little-endian int16 PCM from memory
type pcmSource struct {
	data       []byte
	offset     int
	sampleRate int
	channels   int
}

func newPCMSource(asset Asset) (*pcmSource, error) {
	if asset.SampleRate <= 0 || asset.Channels <= 0 {
		return nil, fmt.Errorf("pcm asset %s missing sample rate or channels", asset.ID)
	}
	return &pcmSource{
		data:       asset.Data,
		sampleRate: asset.SampleRate,
		channels:   asset.Channels,
	}, nil
}

func (s *pcmSource) Read(samples []int16) (int, error) {
	remaining := (len(s.data) - s.offset) / 2
	if remaining <= 0 {
		return 0, io.EOF
	}
	n := len(samples)
	if n > remaining {
		n = remaining
	}
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(s.data[s.offset+i*2:]))
	}
	s.offset += n * 2
	return n, nil
}

func (s *pcmSource) SampleRate() int { return s.sampleRate }
func (s *pcmSource) Channels() int   { return s.channels }

func (s *pcmSource) Duration() float64 {
	return float64(len(s.data)/2/s.channels) / float64(s.sampleRate)
}

func (s *pcmSource) Seek(sec float64) error {
	if sec < 0 {
		sec = 0
	}
	frame := int(sec * float64(s.sampleRate))
	s.offset = frame * s.channels * 2
	if s.offset > len(s.data) {
		s.offset = len(s.data)
	}
	return nil
}

func (s *pcmSource) Close() error { return nil }

// ToneSource generates a stereo sine wave, the playback content for
// procedural elements. A zero duration means the tone never ends.
type ToneSource struct {
	mu          sync.Mutex
	frequency   float64
	seconds     float64
	sampleIndex uint64
}

const (
	toneSampleRate = 48000
	toneChannels   = 2
	toneAmplitude  = 0.5
)

// NewToneSource creates a sine generator at the given frequency
func NewToneSource(frequencyHz, seconds float64) *ToneSource {
	if frequencyHz <= 0 {
		frequencyHz = 440.0
	}
	return &ToneSource{frequency: frequencyHz, seconds: seconds}
}

func (s *ToneSource) Read(samples []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(samples) / toneChannels
	totalFrames := uint64(0)
	if s.seconds > 0 {
		totalFrames = uint64(s.seconds * toneSampleRate)
	}

	written := 0
	for i := 0; i < frames; i++ {
		frame := s.sampleIndex + uint64(i)
		if totalFrames > 0 && frame >= totalFrames {
			break
		}
		t := float64(frame) / toneSampleRate
		v := int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * toneAmplitude)
		samples[i*toneChannels] = v
		samples[i*toneChannels+1] = v
		written += toneChannels
	}

	s.sampleIndex += uint64(written / toneChannels)
	if written == 0 {
		return 0, io.EOF
	}
	return written, nil
}

func (s *ToneSource) SampleRate() int   { return toneSampleRate }
func (s *ToneSource) Channels() int     { return toneChannels }
func (s *ToneSource) Duration() float64 { return s.seconds }

func (s *ToneSource) Seek(sec float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec < 0 {
		sec = 0
	}
	s.sampleIndex = uint64(sec * toneSampleRate)
	return nil
}

func (s *ToneSource) Close() error { return nil }
