// Command align aligns one book request file without running the server and
// writes the resulting timing set as JSON.
//
// Usage:
//
//	align [flags] book.json
package main

import (
	"context"
	"encoding/json/v2"
	"encoding/json/jsontext"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/listenupapp/listenup-align/internal/align"
	"github.com/listenupapp/listenup-align/internal/audio"
	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/di/providers"
	"github.com/listenupapp/listenup-align/internal/domain"
	"github.com/listenupapp/listenup-align/internal/logger"
	"github.com/listenupapp/listenup-align/internal/service"
	"github.com/listenupapp/listenup-align/internal/store/sqlite"
	"github.com/listenupapp/listenup-align/internal/validation"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "align: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	mode           string
	out            string
	save           bool
	probe          bool
	recognizer     string
	recognizerArgs string
	minSentences   int
	dataPath       string
	logLevel       string
}

func run(args []string) error {
	var f flags
	fs := flag.NewFlagSet("align", flag.ContinueOnError)
	fs.StringVar(&f.mode, "mode", "", "recognition or estimation (default: recognition when a recognizer is set)")
	fs.StringVar(&f.out, "out", "", "Write the timing set here instead of stdout")
	fs.BoolVar(&f.save, "save", false, "Store the timing set in the data path's timing database")
	fs.BoolVar(&f.probe, "probe", false, "Print audio metadata and detected structure, then exit")
	fs.StringVar(&f.recognizer, "recognizer", "", "Speech recognizer executable")
	fs.StringVar(&f.recognizerArgs, "recognizer-args", "", "Recognizer arguments")
	fs.IntVar(&f.minSentences, "min-sentences", 0, "Minimum sentences for a chapter to be aligned")
	fs.StringVar(&f.dataPath, "data-path", "", "Base path of the timing database used by -save")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: align [flags] book.json")
	}

	cfg, err := config.Load(f.configArgs())
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{
		Writer:      os.Stderr,
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	})

	req, err := service.ReadRequest(fs.Arg(0))
	if err != nil {
		return err
	}
	if f.mode != "" {
		req.Mode = domain.AlignmentMode(f.mode)
	}
	if err := validation.New().Validate(*req); err != nil {
		return err
	}
	book := req.Book

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord, err := providers.NewAligner(cfg, log)
	if err != nil {
		return err
	}

	if f.probe {
		return probe(ctx, cfg, log, coord, book)
	}

	if book.Checksum == "" {
		log.Info("Hashing audio files", "files", len(book.AudioFiles))
		sums, err := audio.ChecksumAll(ctx, book.AudioPaths())
		if err != nil {
			return err
		}
		for i, sum := range sums {
			book.AudioFiles[i].Checksum = sum
		}
		book.Checksum = audio.CombineChecksums(sums)
	}

	mode := req.Mode
	if mode == "" {
		mode = domain.AlignmentModeEstimation
		if coord.CanRecognize() {
			mode = domain.AlignmentModeRecognition
		}
	}

	opts := align.RunOptions{
		OnProgress: func(p align.Progress) {
			log.Info("Progress",
				slog.String("phase", string(p.Phase)),
				slog.Int("percent", p.Percent),
				slog.Int("done", p.Done),
				slog.Int("units", p.Units))
		},
	}

	var res *align.Result
	switch mode {
	case domain.AlignmentModeRecognition:
		if !coord.CanRecognize() {
			return errors.New("recognition mode needs -recognizer")
		}
		res, err = coord.RunRecognition(ctx, book, opts)
	default:
		res, err = coord.RunEstimation(ctx, book, opts)
	}
	if err != nil {
		return err
	}
	if res.Timing == nil {
		return errors.New("alignment did not complete")
	}

	log.Info("Alignment finished",
		slog.String("book", book.Title),
		slog.String("structure", string(res.Structure)),
		slog.String("mode", string(mode)),
		slog.Int("success_rate", res.SuccessRate),
		slog.Float64("chars_per_second", res.CharsPerSecond))

	if f.save {
		if err := save(ctx, cfg, log, res.Timing); err != nil {
			return err
		}
	}
	return write(f.out, res.Timing)
}

// configArgs forwards the flags shared with the server to config.Load.
func (f flags) configArgs() []string {
	var args []string
	add := func(name, value string) {
		if value != "" {
			args = append(args, "-"+name, value)
		}
	}
	add("recognizer", f.recognizer)
	add("recognizer-args", f.recognizerArgs)
	add("data-path", f.dataPath)
	add("log-level", f.logLevel)
	if f.minSentences > 0 {
		add("min-sentences", strconv.Itoa(f.minSentences))
	}
	return args
}

func probe(ctx context.Context, cfg *config.Config, log *logger.Logger, coord *align.Coordinator, book *domain.Book) error {
	prober := audio.NewProber(audio.FindFFprobe(cfg.Audio.FFprobePath), log.Component("probe"))
	for i, file := range book.AudioFiles {
		meta, err := prober.Probe(ctx, file.Path)
		if err != nil {
			return err
		}
		fmt.Printf("[%d] %s\n", i, meta.Path)
		fmt.Printf("    Container: %s  Codec: %s\n", meta.Container, meta.Codec)
		fmt.Printf("    Duration: %s  Rate: %d Hz  Channels: %d\n", meta.Duration, meta.SampleRate, meta.Channels)
	}

	det := coord.DetectStructure(book)
	fmt.Printf("\nStructure: %s (%d of %d chapters matched a file)\n", det.Structure, det.Matches, len(book.Chapters))
	for i, ch := range book.Chapters {
		if i == 10 {
			fmt.Printf("  ... and %d more chapters\n", len(book.Chapters)-10)
			break
		}
		file := "-"
		if i < len(det.ChapterFiles) && det.ChapterFiles[i] != domain.UnknownFile {
			file = strconv.Itoa(det.ChapterFiles[i])
		}
		fmt.Printf("  [%d] %s (%d sentences, file %s)\n", i, ch.Title, len(ch.Sentences), file)
	}
	return nil
}

func save(ctx context.Context, cfg *config.Config, log *logger.Logger, t *domain.Timing) error {
	if err := os.MkdirAll(cfg.Data.BasePath, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := sqlite.Open(cfg.Data.TimingsPath(), log.Component("timings"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveTiming(ctx, t); err != nil {
		return err
	}
	log.Info("Timing saved", "path", cfg.Data.TimingsPath(), "checksum", t.BookChecksum)
	return nil
}

func write(path string, t *domain.Timing) error {
	var w io.Writer = os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	if err := json.MarshalWrite(w, t, jsontext.WithIndent("  ")); err != nil {
		return fmt.Errorf("encode timing: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
