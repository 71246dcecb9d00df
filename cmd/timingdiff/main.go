// Command timingdiff inspects the timing database: it lists stored timing
// sets, prints one, or compares two runs of the same book.
//
// Usage:
//
//	timingdiff [-data-path dir] list
//	timingdiff [-data-path dir] show <checksum>
//	timingdiff [-data-path dir] compare <checksum-a> <checksum-b>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/listenupapp/listenup-align/internal/chapters"
	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/domain"
	"github.com/listenupapp/listenup-align/internal/logger"
	"github.com/listenupapp/listenup-align/internal/store/sqlite"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("timingdiff", flag.ContinueOnError)
	dataPath := fs.String("data-path", "", "Base path holding timings.db (default: DATA_PATH)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfgArgs []string
	if *dataPath != "" {
		cfgArgs = []string{"-data-path", *dataPath}
	}
	cfg, err := config.Load(cfgArgs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	quiet := logger.New(logger.Config{Writer: io.Discard, Level: logger.ParseLevel("error")})
	db, err := sqlite.Open(cfg.Data.TimingsPath(), quiet.Component("timings"))
	if err != nil {
		return fmt.Errorf("open timing database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	switch cmd := fs.Arg(0); {
	case cmd == "list" && fs.NArg() == 1:
		return list(ctx, w, db)
	case cmd == "show" && fs.NArg() == 2:
		return show(ctx, w, db, fs.Arg(1))
	case cmd == "compare" && fs.NArg() == 3:
		return compare(ctx, w, db, fs.Arg(1), fs.Arg(2))
	default:
		return errors.New("usage: timingdiff [-data-path dir] list | show <checksum> | compare <a> <b>")
	}
}

func list(ctx context.Context, w io.Writer, db *sqlite.Store) error {
	fmt.Fprint(w, "=== Stored Timing Sets ===\n\n")

	count := 0
	for s, err := range db.ListTimings(ctx) {
		if err != nil {
			return err
		}
		count++
		fmt.Fprintf(w, "%s  %s\n", s.BookChecksum, s.Title)
		if s.Author != "" {
			fmt.Fprintf(w, "  Author: %s\n", s.Author)
		}
		fmt.Fprintf(w, "  Structure: %s  Mode: %s  Success: %d%%\n", s.Structure, s.Mode, s.SuccessRate)
		fmt.Fprintf(w, "  Completed: %s\n", s.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "\nTotal: %d\n", count)
	return nil
}

func show(ctx context.Context, w io.Writer, db *sqlite.Store, checksum string) error {
	t, err := db.GetTiming(ctx, checksum)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Book: %s\n", t.Title)
	fmt.Fprintf(w, "  Checksum: %s\n", t.BookChecksum)
	fmt.Fprintf(w, "  Structure: %s  Mode: %s  Success: %d%%\n", t.Structure, t.Mode, t.SuccessRate)
	fmt.Fprintf(w, "  Audio Files: %d\n", len(t.AudioFiles))
	for i, f := range t.AudioFiles {
		fmt.Fprintf(w, "    [%d] %s (%s)\n", i, f.Path, f.Duration)
	}
	fmt.Fprintf(w, "  Chapters: %d\n", len(t.Chapters))
	for _, ch := range t.Chapters {
		fmt.Fprintf(w, "    [%d] %s: %d sentences, %d%%%s\n",
			ch.Index, ch.Title, len(ch.Sentences), ch.SuccessRate, chapterSpan(ch))
	}
	return nil
}

func chapterSpan(ch domain.ChapterTiming) string {
	if len(ch.Sentences) == 0 {
		return ""
	}
	first := ch.Sentences[0]
	last := ch.Sentences[len(ch.Sentences)-1]
	return fmt.Sprintf(" (file %d %s - file %d %s)",
		first.FileIndex, first.Position.Round(time.Millisecond),
		last.FileIndex, (last.Position + last.Duration).Round(time.Millisecond))
}

func compare(ctx context.Context, w io.Writer, db *sqlite.Store, a, b string) error {
	ta, err := db.GetTiming(ctx, a)
	if err != nil {
		return fmt.Errorf("load %s: %w", a, err)
	}
	tb, err := db.GetTiming(ctx, b)
	if err != nil {
		return fmt.Errorf("load %s: %w", b, err)
	}

	diff, err := chapters.Compare(ta, tb)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "=== %s vs %s ===\n\n", ta.Mode, tb.Mode)
	for _, cd := range diff.Chapters {
		fmt.Fprintf(w, "[%d] %s  average %s  median %s\n",
			cd.Index, cd.Title, cd.Average.Round(time.Millisecond), cd.Median.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "\nBook: average %s  median %s\n",
		diff.Average.Round(time.Millisecond), diff.Median.Round(time.Millisecond))
	return nil
}
