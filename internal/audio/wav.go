package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WAVOpener reads PCM WAV files that already match the target format, without
// spawning a decoder.
type WAVOpener struct {
	format Format
}

// NewWAVOpener returns an opener accepting WAV files in format.
func NewWAVOpener(format Format) *WAVOpener {
	return &WAVOpener{format: format}
}

type wavHeader struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Open parses the RIFF header and positions the source at the first sample.
func (o *WAVOpener) Open(_ context.Context, path string) (Source, error) {
	f, err := os.Open(path) //#nosec G304 -- audio paths are supplied by the caller
	if err != nil {
		return nil, err
	}

	hdr, dataOffset, dataSize, err := readWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, unsupported(path, err)
	}

	got := Format{SampleRate: int(hdr.SampleRate), Channels: int(hdr.NumChannels), BitsPerSample: int(hdr.BitsPerSample)}
	if hdr.AudioFormat != 1 || got != o.format {
		f.Close()
		return nil, unsupported(path, fmt.Errorf("wav is %+v (format %d), want PCM %+v", got, hdr.AudioFormat, o.format))
	}

	if _, err := f.Seek(dataOffset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	return &wavSource{
		file:       f,
		format:     o.format,
		dataOffset: dataOffset,
		dataSize:   dataSize,
	}, nil
}

// readWAVHeader walks the RIFF chunks until it has seen both "fmt " and "data".
func readWAVHeader(r io.Reader) (hdr wavHeader, dataOffset, dataSize int64, err error) {
	var riff [12]byte
	if _, err = io.ReadFull(r, riff[:]); err != nil {
		return hdr, 0, 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return hdr, 0, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	offset := int64(12)
	haveFmt := false
	for {
		var chunk [8]byte
		if _, err = io.ReadFull(r, chunk[:]); err != nil {
			return hdr, 0, 0, fmt.Errorf("missing data chunk: %w", err)
		}
		offset += 8
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return hdr, 0, 0, fmt.Errorf("fmt chunk too short")
			}
			if err = binary.Read(r, binary.LittleEndian, &hdr); err != nil {
				return hdr, 0, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			if _, err = io.CopyN(io.Discard, r, size-16+size%2); err != nil {
				return hdr, 0, 0, err
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return hdr, 0, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			return hdr, offset, size, nil
		default:
			if _, err = io.CopyN(io.Discard, r, size+size%2); err != nil {
				return hdr, 0, 0, err
			}
		}
		offset += size + size%2
	}
}

type wavSource struct {
	file       *os.File
	format     Format
	dataOffset int64
	dataSize   int64
	pos        int64 // bytes consumed from the data chunk
}

func (s *wavSource) Read(p []byte) (int, error) {
	remaining := s.dataSize - s.pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := s.file.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *wavSource) Format() Format {
	return s.format
}

func (s *wavSource) Duration() time.Duration {
	return s.format.Duration(s.dataSize)
}

func (s *wavSource) Position() time.Duration {
	return s.format.Duration(s.pos)
}

func (s *wavSource) Seek(_ context.Context, offset time.Duration) (time.Duration, error) {
	target := s.format.Bytes(offset)
	if offset < 0 || target >= s.dataSize {
		target = 0
	}
	if _, err := s.file.Seek(s.dataOffset+target, io.SeekStart); err != nil {
		return 0, err
	}
	s.pos = target
	return s.format.Duration(target), nil
}

func (s *wavSource) Close() error {
	return s.file.Close()
}

// ExtensionOpener dispatches to an opener by file extension.
type ExtensionOpener struct {
	byExt    map[string]Opener
	fallback Opener
}

// NewExtensionOpener returns an opener using fallback for unregistered extensions.
// A nil fallback rejects them as unsupported.
func NewExtensionOpener(fallback Opener) *ExtensionOpener {
	return &ExtensionOpener{byExt: make(map[string]Opener), fallback: fallback}
}

// Register routes files ending in ext (for example ".wav") to o.
func (e *ExtensionOpener) Register(ext string, o Opener) *ExtensionOpener {
	e.byExt[strings.ToLower(ext)] = o
	return e
}

// Open implements Opener.
func (e *ExtensionOpener) Open(ctx context.Context, path string) (Source, error) {
	if o, ok := e.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return o.Open(ctx, path)
	}
	if e.fallback == nil {
		return nil, unsupported(path, fmt.Errorf("no decoder for %s files", filepath.Ext(path)))
	}
	return e.fallback.Open(ctx, path)
}

var (
	_ Opener = (*WAVOpener)(nil)
	_ Opener = (*ExtensionOpener)(nil)
)
