package recognition

import (
	"bufio"
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Placeholders expanded in ExecConfig.Args.
const (
	argGrammar    = "{grammar}"
	argSampleRate = "{sample_rate}"
	argChannels   = "{channels}"
	argSession    = "{session}"
)

// ExecConfig configures an external recognizer process.
type ExecConfig struct {
	// Command is the recognizer executable, resolved through PATH.
	Command string
	// Args may reference {grammar}, {sample_rate}, {channels} and {session}.
	// When {grammar} is not referenced, "--grammar <file>" is appended.
	Args []string
	// TempDir holds per-session grammar files (default: os.TempDir()).
	TempDir string
}

// ExecRecognizer runs one recognizer process per session. The process reads
// raw PCM on stdin and writes one JSON object per utterance on stdout:
//
//	{"text": "It was a dark night.", "start": 12.34, "end": 14.1, "confidence": 0.93}
//
// Grammar phrases are passed one per line in a temporary file.
type ExecRecognizer struct {
	command string
	args    []string
	tempDir string
	logger  *slog.Logger
}

// NewExecRecognizer resolves the recognizer command and returns a recognizer using it.
func NewExecRecognizer(cfg ExecConfig, logger *slog.Logger) (*ExecRecognizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("recognizer command is required")
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("recognizer %q not found: %w", cfg.Command, err)
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	logger.Info("using recognizer", slog.String("path", path))
	return &ExecRecognizer{
		command: path,
		args:    cfg.Args,
		tempDir: tempDir,
		logger:  logger,
	}, nil
}

type utterance struct {
	Text       string          `json:"text"`
	Start      decimal.Decimal `json:"start"`
	End        decimal.Decimal `json:"end"`
	Confidence float64         `json:"confidence"`
}

// parseUtterance decodes one output line. Lines without text yield no event.
func parseUtterance(line string) (Event, bool, error) {
	var u utterance
	if err := json.Unmarshal([]byte(line), &u); err != nil {
		return Event{}, false, err
	}
	if strings.TrimSpace(u.Text) == "" {
		return Event{}, false, nil
	}
	return Event{
		Text:       u.Text,
		Position:   seconds(u.Start),
		Duration:   seconds(u.End.Sub(u.Start)),
		Confidence: u.Confidence,
	}, true, nil
}

// Recognize starts the recognizer process for one session.
func (r *ExecRecognizer) Recognize(ctx context.Context, req Request) (<-chan Event, error) {
	grammarPath, err := r.writeGrammar(req.Grammars)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, r.command, r.expandArgs(req, grammarPath)...) //nolint:gosec // command is resolved at construction
	cmd.Stdin = req.Audio

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = os.Remove(grammarPath)
		return nil, fmt.Errorf("recognizer stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = os.Remove(grammarPath)
		return nil, fmt.Errorf("recognizer stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = os.Remove(grammarPath)
		return nil, fmt.Errorf("start recognizer: %w", err)
	}

	logger := r.logger.With(slog.String("session", req.SessionID))
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("recognizer", slog.String("line", scanner.Text()))
		}
	}()

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		defer os.Remove(grammarPath) //nolint:errcheck // temp file

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			ev, ok, err := parseUtterance(line)
			if err != nil {
				logger.Warn("skipping malformed recognizer output", slog.String("line", line), slog.Any("error", err))
				continue
			}
			if !ok {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		<-stderrDone
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			select {
			case events <- Event{Err: fmt.Errorf("recognizer exited: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

func (r *ExecRecognizer) writeGrammar(phrases []string) (string, error) {
	f, err := os.CreateTemp(r.tempDir, "grammar-*.txt")
	if err != nil {
		return "", fmt.Errorf("create grammar file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, p := range phrases {
		_, _ = w.WriteString(strings.ReplaceAll(p, "\n", " "))
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write grammar file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close grammar file: %w", err)
	}
	return f.Name(), nil
}

func (r *ExecRecognizer) expandArgs(req Request, grammarPath string) []string {
	replacer := strings.NewReplacer(
		argGrammar, grammarPath,
		argSampleRate, strconv.Itoa(req.Format.SampleRate),
		argChannels, strconv.Itoa(req.Format.Channels),
		argSession, req.SessionID,
	)
	args := make([]string, 0, len(r.args)+2)
	sawGrammar := false
	for _, a := range r.args {
		if strings.Contains(a, argGrammar) {
			sawGrammar = true
		}
		args = append(args, replacer.Replace(a))
	}
	if !sawGrammar {
		args = append(args, "--grammar", grammarPath)
	}
	return args
}

func seconds(d decimal.Decimal) time.Duration {
	if d.IsNegative() {
		return 0
	}
	return time.Duration(d.Mul(decimal.NewFromInt(int64(time.Second))).IntPart())
}

var _ Recognizer = (*ExecRecognizer)(nil)
