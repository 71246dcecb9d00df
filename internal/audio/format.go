// Package audio opens narration files as decoded PCM streams and provides the
// probing and checksum passes the aligner runs over them.
package audio

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Format describes interleaved little-endian signed PCM.
type Format struct {
	SampleRate    int `json:"sample_rate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultFormat is the PCM layout handed to recognizers.
var DefaultFormat = Format{SampleRate: 44100, Channels: 1, BitsPerSample: 16}

// Validate checks that the format can be produced by the decoders in this package.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bit depth %d (only 16-bit PCM)", f.BitsPerSample)
	}
	return nil
}

// FrameSize returns the bytes per sample frame across all channels.
func (f Format) FrameSize() int {
	return f.Channels * f.BitsPerSample / 8
}

// BytesPerSecond returns the PCM byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// Duration converts a PCM byte count to playback time.
func (f Format) Duration(n int64) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n * int64(time.Second) / int64(bps))
}

// Bytes converts playback time to a frame-aligned PCM byte count.
func (f Format) Bytes(d time.Duration) int64 {
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return frames * int64(f.FrameSize())
}

// Source is one audio file decoded to raw PCM.
type Source interface {
	io.Reader
	Format() Format
	// Duration is the playback length of the whole file.
	Duration() time.Duration
	// Position is the playback offset of the next byte Read returns.
	Position() time.Duration
	// Seek repositions the stream and returns the offset it landed on.
	// Sources that cannot honor the request land on zero.
	Seek(ctx context.Context, offset time.Duration) (time.Duration, error)
	Close() error
}

// Opener opens audio files as decoded sources.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}
