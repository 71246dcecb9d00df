// Package align runs alignment jobs: it detects how a book's narration is
// laid out, drives one recognition session per chapter or audio window, and
// reconciles the results, or falls back to pure character-rate estimation.
package align

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-align/internal/audio"
	"github.com/listenupapp/listenup-align/internal/chapters"
	"github.com/listenupapp/listenup-align/internal/domain"
	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
	"github.com/listenupapp/listenup-align/internal/estimate"
	"github.com/listenupapp/listenup-align/internal/metrics"
	"github.com/listenupapp/listenup-align/internal/recognition"
	"github.com/listenupapp/listenup-align/internal/reconcile"
)

// Coordinator aligns books. It holds no per-run state and may run several
// books at once, but never the same Book twice concurrently.
type Coordinator struct {
	opener      audio.Opener
	recognizer  recognition.Recognizer
	checkpoints CheckpointSink
	metrics     *metrics.Metrics
	logger      *slog.Logger
	opts        Options
}

// NewCoordinator creates a coordinator. recognizer may be nil, in which case
// only estimation runs are possible.
func NewCoordinator(opener audio.Opener, recognizer recognition.Recognizer, opts Options, logger *slog.Logger, options ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		opener:     opener,
		recognizer: recognizer,
		logger:     logger,
		opts:       opts,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// CanRecognize reports whether a recognizer is configured.
func (c *Coordinator) CanRecognize() bool {
	return c.recognizer != nil
}

// DetectStructure matches chapter titles to audio file names and tags every
// sentence of a matched chapter with its file.
func (c *Coordinator) DetectStructure(book *domain.Book) chapters.Detection {
	return chapters.DetectBook(book)
}

// RunRecognition aligns book with the speech recognizer. Sentence positions
// are written into book. When ctx is cancelled, the chapter in flight is
// discarded, chapters completed before it keep their positions, and the
// partial result is returned together with ctx.Err().
func (c *Coordinator) RunRecognition(ctx context.Context, book *domain.Book, opts RunOptions) (*Result, error) {
	if c.recognizer == nil {
		return nil, domainerrors.Validation("no recognizer is configured")
	}
	r, err := c.begin(ctx, book, opts)
	if err != nil {
		return nil, err
	}

	units := r.units()
	total := 0
	for _, u := range units {
		total += len(u.chapter.Sentences)
	}
	r.reconciler = reconcile.New(book, r.structure, r.estimator, total,
		reconcile.WithTolerances(c.opts.Tolerances),
		reconcile.WithProgress(r.progress.SetPercent),
	)
	r.progress.SetPhase(PhaseRecognizing, len(units))

	for i, u := range units {
		if err := ctx.Err(); err != nil {
			return r.cancelled(err)
		}
		if r.structure.IsChapter() {
			r.estimator.SetRate(r.estimator.ChapterRate(u.chapter))
		} else {
			u = r.window(u)
		}

		r.progress.StartUnit(u.index)
		if err := r.session(ctx, u); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return r.cancelled(err)
			}
			r.logger.Error("recognition session failed", "chapter", u.index, "error", err)
			return nil, err
		}
		r.progress.FinishUnit()
		r.checkpoint(ctx, i+1, len(units))
	}

	return r.finish(ctx, domain.AlignmentModeRecognition, r.reconciler.SuccessRate())
}

// RunEstimation places every sentence by character rate alone.
func (c *Coordinator) RunEstimation(ctx context.Context, book *domain.Book, opts RunOptions) (*Result, error) {
	r, err := c.begin(ctx, book, opts)
	if err != nil {
		return nil, err
	}

	units := r.units()
	total := 0
	for _, u := range units {
		total += len(u.chapter.Sentences)
	}
	r.progress.SetPhase(PhaseEstimating, len(units))

	res, err := r.estimator.EstimateBook(ctx, c.opts.MinSentences, func(done int) {
		r.progress.SetPercent(percentOf(done, total))
	})
	if err != nil {
		return r.cancelled(err)
	}
	r.logger.Info("estimation complete", "sentences", res.Sentences, "chars_per_second", res.Rate)
	if len(units) > 0 {
		r.checkpoint(ctx, len(units), len(units))
	}

	return r.finish(ctx, domain.AlignmentModeEstimation, 0)
}

// run is the state of one alignment of one book.
type run struct {
	c          *Coordinator
	book       *domain.Book
	jobID      string
	structure  domain.Structure
	rate       float64
	estimator  *estimate.Engine
	reconciler *reconcile.Reconciler
	gate       *recognition.Gate
	progress   *progressTracker
	logger     *slog.Logger
}

func (c *Coordinator) begin(ctx context.Context, book *domain.Book, opts RunOptions) (*run, error) {
	if len(book.AudioFiles) == 0 {
		return nil, domainerrors.Validation("book has no audio files")
	}

	r := &run{
		c:        c,
		book:     book,
		jobID:    opts.JobID,
		gate:     recognition.NewGate(),
		progress: newProgressTracker(opts.OnProgress, c.opts.ProgressInterval),
		logger:   c.logger.With("book", book.Title, "job_id", opts.JobID),
	}
	r.progress.SetPhase(PhaseDetecting, 0)

	book.Prepare()
	book.ResetPositions()
	if err := r.probeDurations(ctx); err != nil {
		return nil, err
	}

	detection := c.DetectStructure(book)
	r.structure = detection.Structure
	r.estimator = estimate.New(book, r.structure)
	r.rate = r.estimator.GlobalRate(c.opts.MinSentences)
	r.estimator.SetRate(r.rate)

	r.logger.Info("structure detected",
		"structure", r.structure,
		"chapters", len(book.Chapters),
		"audio_files", len(book.AudioFiles),
		"matches", detection.Matches,
		"chars_per_second", r.rate,
	)
	return r, nil
}

// probeDurations fills in audio file durations the caller did not supply.
func (r *run) probeDurations(ctx context.Context) error {
	for i := range r.book.AudioFiles {
		f := &r.book.AudioFiles[i]
		if f.Duration > 0 {
			continue
		}
		if r.c.opener == nil {
			return domainerrors.UnsupportedAudiof("duration of %s is unknown and no decoder is configured", f.Path)
		}
		src, err := r.c.opener.Open(ctx, f.Path)
		if err != nil {
			return err
		}
		f.Duration = src.Duration()
		_ = src.Close()
	}
	return nil
}

// units lists the chapters the run will process, in document order.
func (r *run) units() []unit {
	var units []unit
	for i, ch := range r.book.Chapters {
		if !ch.Eligible(r.c.opts.MinSentences) {
			continue
		}
		u := unit{chapter: ch, index: i}
		if r.structure.IsChapter() {
			idx := ch.FileIndex()
			if idx == domain.UnknownFile {
				continue
			}
			u.fileIndex = idx
			u.base = r.book.DurationBefore(idx)
			u.single = true
		}
		units = append(units, u)
	}
	return units
}

// window places a non-chapter unit on the timeline: it starts SkipBack before
// the end of the previous chapter and spans WindowLength of audio.
func (r *run) window(u unit) unit {
	var skip time.Duration
	if prev := r.reconciler.Previous(); prev != nil {
		if end, ok := prev.LastEnd(); ok {
			skip = max(end-r.c.opts.SkipBack, 0)
		}
	}
	u.fileIndex = max(r.book.FileIndexAt(skip), 0)
	u.base = skip
	u.offset = skip - r.book.DurationBefore(u.fileIndex)
	u.window = r.c.opts.WindowLength
	return u
}

// checkpoint saves the chapters completed so far every CheckpointEvery units.
func (r *run) checkpoint(ctx context.Context, done, total int) {
	every := r.c.opts.CheckpointEvery
	if r.c.checkpoints == nil || every <= 0 || (done%every != 0 && done != total) {
		return
	}

	cp := &domain.Checkpoint{
		BookChecksum: r.book.Checksum,
		JobID:        r.jobID,
		Structure:    r.structure,
		Progress:     r.progress.Get().Percent,
		UpdatedAt:    time.Now().UTC(),
	}
	for i, ch := range r.book.Chapters {
		if ch.Eligible(r.c.opts.MinSentences) && ch.ValidCount() > 0 {
			cp.Chapters = append(cp.Chapters, domain.SnapshotChapter(ch, i))
		}
	}
	if err := r.c.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		r.logger.Warn("failed to save checkpoint", "chapters", len(cp.Chapters), "error", err)
	}
}

// finish hashes the audio files and snapshots the timing set.
func (r *run) finish(ctx context.Context, mode domain.AlignmentMode, successRate int) (*Result, error) {
	r.progress.SetPhase(PhaseHashing, len(r.book.AudioFiles))

	start := time.Now()
	sums, err := audio.ChecksumAll(ctx, r.book.AudioPaths())
	if err != nil {
		if ctx.Err() != nil {
			return r.cancelled(ctx.Err())
		}
		return nil, domainerrors.Recognition(err, "failed to checksum audio files")
	}
	for i, sum := range sums {
		r.book.AudioFiles[i].Checksum = sum
	}
	if r.book.Checksum == "" {
		r.book.Checksum = audio.CombineChecksums(sums)
	}
	r.logger.Debug("audio checksums computed", "files", len(sums), "duration", time.Since(start))

	r.book.SuccessRate = successRate
	res := &Result{
		Structure:      r.structure,
		SuccessRate:    successRate,
		CharsPerSecond: r.rate,
		Timing:         domain.NewTiming(r.book, r.structure, mode, r.rate, r.c.opts.MinSentences),
	}

	r.progress.SetPercent(100)
	r.progress.SetPhase(PhaseDone, 0)
	r.logger.Info("alignment complete", "mode", mode, "structure", r.structure, "success_rate", successRate)
	return res, nil
}

// cancelled reports a cancelled run. Completed chapters keep their positions.
func (r *run) cancelled(err error) (*Result, error) {
	res := &Result{Structure: r.structure, CharsPerSecond: r.rate}
	if r.reconciler != nil {
		res.SuccessRate = r.reconciler.SuccessRate()
	}
	r.logger.Info("alignment cancelled", "progress", r.progress.Get().Percent)
	return res, err
}

func percentOf(n, total int) int {
	if total <= 0 {
		return 0
	}
	return min(100*n/total, 100)
}
