// ABOUTME: Opus encode/decode for the monitor capture stream
// ABOUTME: Wraps libopus; 20ms frames at the device rate
package media

import (
	"fmt"
	"log"

	"gopkg.in/hraban/opus.v2"
)

// OpusEncoder encodes PCM monitor frames to Opus packets
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int // samples per channel per frame
}

// NewOpusEncoder creates an encoder. frameSize is samples per channel,
// e.g. 960 for 20ms at 48kHz.
func NewOpusEncoder(sampleRate, channels, frameSize int) (*OpusEncoder, error) {
	encoder, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	bitrate := 64000 * channels
	if err := encoder.SetBitrate(bitrate); err != nil {
		log.Printf("Warning: failed to set opus bitrate: %v", err)
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  frameSize,
	}, nil
}

// Encode converts one interleaved PCM frame to an Opus packet
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != e.frameSize*e.channels {
		return nil, fmt.Errorf("expected %d samples, got %d", e.frameSize*e.channels, len(pcm))
	}

	// Opus packets never exceed 4000 bytes
	output := make([]byte, 4000)
	n, err := e.encoder.Encode(pcm, output)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}
	return output[:n], nil
}

// FrameSamples returns the interleaved sample count per frame
func (e *OpusEncoder) FrameSamples() int {
	return e.frameSize * e.channels
}

// OpusStreamDecoder decodes monitor packets back to PCM, used by remote
// clients listening to the capture stream
type OpusStreamDecoder struct {
	decoder  *opus.Decoder
	channels int
}

// NewOpusStreamDecoder creates a decoder for the monitor stream
func NewOpusStreamDecoder(sampleRate, channels int) (*OpusStreamDecoder, error) {
	decoder, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &OpusStreamDecoder{decoder: decoder, channels: channels}, nil
}

// Decode converts one Opus packet to interleaved PCM
func (d *OpusStreamDecoder) Decode(packet []byte) ([]int16, error) {
	// 5760 samples per channel is the maximum opus frame
	pcm := make([]int16, 5760*d.channels)
	n, err := d.decoder.Decode(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}
	return pcm[:n*d.channels], nil
}
