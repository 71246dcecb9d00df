package align

import (
	"context"
	"time"

	"github.com/listenupapp/listenup-align/internal/audio"
	"github.com/listenupapp/listenup-align/internal/domain"
	"github.com/listenupapp/listenup-align/internal/metrics"
	"github.com/listenupapp/listenup-align/internal/reconcile"
	"github.com/listenupapp/listenup-align/internal/stream"
)

// Options tunes an alignment run.
type Options struct {
	// MinSentences is the sentence count below which a chapter is skipped.
	MinSentences int
	// WindowLength bounds the audio streamed per session when chapters do not
	// map onto files.
	WindowLength time.Duration
	// SkipBack is how far before the previous chapter's end a window starts.
	SkipBack time.Duration
	// Tolerances are the anchor acceptance windows of the correction pass.
	Tolerances reconcile.Tolerances
	// ChunkSize is the read size of the audio feeder.
	ChunkSize int
	// BridgeCapacity is the buffer size between feeder and recognizer.
	BridgeCapacity int
	// PollInterval is how often blocked bridge calls check for cancellation.
	PollInterval time.Duration
	// CheckpointEvery is the number of completed chapters between checkpoints.
	// Zero disables checkpoints.
	CheckpointEvery int
	// ProgressInterval throttles progress callbacks.
	ProgressInterval time.Duration
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		MinSentences:     domain.MinSentences,
		WindowLength:     3 * time.Hour,
		SkipBack:         10 * time.Minute,
		Tolerances:       reconcile.DefaultTolerances(),
		ChunkSize:        1 << 20,
		BridgeCapacity:   stream.DefaultCapacity,
		PollInterval:     stream.DefaultPollInterval,
		CheckpointEvery:  1,
		ProgressInterval: 250 * time.Millisecond,
	}
}

// CheckpointSink durably records the chapters a run has completed so far.
type CheckpointSink interface {
	SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCheckpoints sets the sink that receives progress checkpoints.
func WithCheckpoints(sink CheckpointSink) Option {
	return func(c *Coordinator) { c.checkpoints = sink }
}

// WithMetrics sets the metrics sessions are recorded to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithOpener replaces the audio opener.
func WithOpener(o audio.Opener) Option {
	return func(c *Coordinator) { c.opener = o }
}

// RunOptions carries per-run inputs.
type RunOptions struct {
	// JobID tags checkpoints written during the run.
	JobID string
	// OnProgress receives progress updates. It is called synchronously and
	// must not block.
	OnProgress func(Progress)
}

// Result summarizes a finished run.
type Result struct {
	Structure   domain.Structure
	SuccessRate int
	// CharsPerSecond is the book-wide narration rate.
	CharsPerSecond float64
	// Timing is the snapshot to persist. It is nil when the run did not complete.
	Timing *domain.Timing
}
