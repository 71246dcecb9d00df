package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FFmpegOpener decodes any container ffmpeg understands into PCM.
type FFmpegOpener struct {
	ffmpegPath string
	prober     *Prober
	format     Format
	logger     *slog.Logger

	decodersOnce sync.Once
	decoders     string
}

// NewFFmpegOpener locates ffmpeg (unless a path is given) and returns an opener
// producing the given PCM format.
func NewFFmpegOpener(ffmpegPath string, prober *Prober, format Format, logger *slog.Logger) (*FFmpegOpener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if ffmpegPath == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
		ffmpegPath = path
	}
	logger.Info("using ffmpeg", slog.String("path", ffmpegPath))
	return &FFmpegOpener{
		ffmpegPath: ffmpegPath,
		prober:     prober,
		format:     format,
		logger:     logger,
	}, nil
}

// Open probes path and starts decoding it from the beginning.
func (o *FFmpegOpener) Open(ctx context.Context, path string) (Source, error) {
	meta, err := o.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if meta.Codec != "" && !o.canDecode(ctx, meta.Codec) {
		return nil, unsupported(path, fmt.Errorf("no decoder for codec %s", meta.Codec))
	}

	src := &ffmpegSource{
		opener:   o,
		path:     path,
		duration: meta.Duration,
	}
	if err := src.start(ctx, 0); err != nil {
		return nil, err
	}
	return src, nil
}

// canDecode checks the ffmpeg decoder list for codec.
func (o *FFmpegOpener) canDecode(ctx context.Context, codec string) bool {
	o.decodersOnce.Do(func() {
		cmd := exec.CommandContext(ctx, o.ffmpegPath, "-hide_banner", "-decoders") //nolint:gosec // ffmpegPath is validated at construction
		output, err := cmd.Output()
		if err != nil {
			o.logger.Warn("could not check ffmpeg decoders", slog.Any("error", err))
			return
		}
		o.decoders = string(output)
	})
	if o.decoders == "" {
		// Optimistically assume it can decode - the decode itself will fail if not.
		return true
	}

	// ffprobe reports "ac-4" but the decoder is named "ac4".
	normalized := strings.ReplaceAll(strings.ToLower(codec), "-", "")
	return strings.Contains(o.decoders, " "+normalized+" ")
}

func (o *FFmpegOpener) args(path string, offset time.Duration) []string {
	args := []string{"-hide_banner", "-nostdin", "-v", "error"}
	if offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64))
	}
	return append(args,
		"-i", path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(o.format.Channels),
		"-ar", strconv.Itoa(o.format.SampleRate),
		"pipe:1",
	)
}

// ffmpegSource streams one ffmpeg decode process. Seeking restarts the process
// at the new offset.
type ffmpegSource struct {
	opener   *FFmpegOpener
	path     string
	duration time.Duration

	cancel context.CancelFunc
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer

	base time.Duration // offset the current process started at
	read int64         // PCM bytes read from the current process
}

func (s *ffmpegSource) start(ctx context.Context, offset time.Duration) error {
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, s.opener.ffmpegPath, s.opener.args(s.path, offset)...) //nolint:gosec // ffmpegPath is validated at construction
	s.stderr.Reset()
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cancel = cancel
	s.cmd = cmd
	s.stdout = stdout
	s.base = offset
	s.read = 0
	return nil
}

func (s *ffmpegSource) stop() {
	if s.cmd == nil {
		return
	}
	s.cancel()
	_ = s.cmd.Wait()
	s.cmd = nil
}

func (s *ffmpegSource) Read(p []byte) (int, error) {
	if s.cmd == nil {
		return 0, io.EOF
	}
	n, err := s.stdout.Read(p)
	s.read += int64(n)
	if errors.Is(err, io.EOF) {
		waitErr := s.cmd.Wait()
		s.cmd = nil
		s.cancel()
		if waitErr != nil {
			msg := strings.TrimSpace(s.stderr.String())
			if s.read == 0 {
				return n, unsupported(s.path, fmt.Errorf("%w: %s", waitErr, msg))
			}
			return n, fmt.Errorf("ffmpeg decode %s: %w: %s", s.path, waitErr, msg)
		}
		return n, io.EOF
	}
	return n, err
}

func (s *ffmpegSource) Format() Format {
	return s.opener.format
}

func (s *ffmpegSource) Duration() time.Duration {
	return s.duration
}

func (s *ffmpegSource) Position() time.Duration {
	return s.base + s.opener.format.Duration(s.read)
}

func (s *ffmpegSource) Seek(ctx context.Context, offset time.Duration) (time.Duration, error) {
	if offset < 0 || offset >= s.duration {
		offset = 0
	}
	s.stop()
	if err := s.start(ctx, offset); err != nil {
		return 0, err
	}
	return offset, nil
}

func (s *ffmpegSource) Close() error {
	s.stop()
	return nil
}

var _ Opener = (*FFmpegOpener)(nil)
