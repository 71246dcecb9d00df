package audio

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/simonhull/audiometa"
)

// Metadata is what the aligner needs to know about an audio file before decoding it.
type Metadata struct {
	Path       string
	Container  string
	Codec      string
	Duration   time.Duration
	SampleRate int
	Channels   int
}

// Prober reads container metadata. The native audiometa parser supplies the
// container and duration; ffprobe, when installed, adds the codec and stream
// layout and covers containers audiometa does not understand.
type Prober struct {
	ffprobePath string
	logger      *slog.Logger
}

// NewProber creates a prober. An empty ffprobePath disables the ffprobe fallback.
func NewProber(ffprobePath string, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{ffprobePath: ffprobePath, logger: logger}
}

// FindFFprobe resolves the ffprobe binary, returning "" when it is not installed.
func FindFFprobe(configured string) string {
	if configured != "" {
		return configured
	}
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		return ""
	}
	return path
}

// Probe returns metadata for path. Files neither parser can read are reported
// as unsupported audio.
func (p *Prober) Probe(ctx context.Context, path string) (*Metadata, error) {
	meta := &Metadata{Path: path}

	nativeErr := p.probeNative(ctx, path, meta)
	if nativeErr == nil && meta.Duration > 0 && meta.Codec != "" {
		return meta, nil
	}

	if p.ffprobePath == "" {
		if nativeErr != nil {
			return nil, unsupported(path, nativeErr)
		}
		if meta.Duration <= 0 {
			return nil, unsupported(path, fmt.Errorf("unknown duration"))
		}
		return meta, nil
	}

	if err := p.probeFFprobe(ctx, path, meta); err != nil {
		if nativeErr != nil {
			p.logger.Debug("native probe failed", slog.String("path", path), slog.Any("error", nativeErr))
		}
		return nil, unsupported(path, err)
	}
	if meta.Duration <= 0 {
		return nil, unsupported(path, fmt.Errorf("unknown duration"))
	}
	return meta, nil
}

func (p *Prober) probeNative(ctx context.Context, path string, meta *Metadata) error {
	file, err := audiometa.OpenContext(ctx, path)
	if err != nil {
		return err
	}
	defer file.Close() //nolint:errcheck // read-only handle

	meta.Container = file.Format.String()
	meta.Duration = file.Audio.Duration
	return nil
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

func (p *Prober) probeFFprobe(ctx context.Context, path string, meta *Metadata) error {
	cmd := exec.CommandContext(ctx, p.ffprobePath, //nolint:gosec // ffprobe path is from config or exec.LookPath
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffprobe failed: %w", err)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if out.Format.FormatName != "" && meta.Container == "" {
		meta.Container = strings.Split(out.Format.FormatName, ",")[0]
	}
	if out.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			meta.Duration = time.Duration(secs * float64(time.Second))
		}
	}

	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		meta.Codec = s.CodecName
		meta.Channels = s.Channels
		if sr, err := strconv.Atoi(s.SampleRate); err == nil {
			meta.SampleRate = sr
		}
		return nil
	}
	return fmt.Errorf("no audio stream")
}
