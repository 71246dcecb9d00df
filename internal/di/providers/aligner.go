package providers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-align/internal/align"
	"github.com/listenupapp/listenup-align/internal/audio"
	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/logger"
	"github.com/listenupapp/listenup-align/internal/metrics"
	"github.com/listenupapp/listenup-align/internal/reconcile"
	"github.com/listenupapp/listenup-align/internal/recognition"
)

// MetricsHandle pairs the instruments with the registry serving them.
type MetricsHandle struct {
	*metrics.Metrics
	Registry *prometheus.Registry
}

// ProvideMetrics provides the Prometheus instruments on a private registry
// that also carries the Go runtime and process collectors.
func ProvideMetrics(i do.Injector) (*MetricsHandle, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &MetricsHandle{Metrics: metrics.New(reg), Registry: reg}, nil
}

// ProvideAligner provides the alignment coordinator, checkpointing to the job store.
func ProvideAligner(i do.Injector) (*align.Coordinator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	jobs := do.MustInvoke[*JobStoreHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)

	return NewAligner(cfg, log, align.WithCheckpoints(jobs.Store), align.WithMetrics(m.Metrics))
}

// NewAligner builds a coordinator from configuration. WAV files are decoded
// natively and everything else through ffmpeg when it is installed. Without a
// configured recognizer only estimation mode is available.
func NewAligner(cfg *config.Config, log *logger.Logger, options ...align.Option) (*align.Coordinator, error) {
	format := audio.DefaultFormat
	format.SampleRate = cfg.Audio.SampleRate

	var fallback audio.Opener
	prober := audio.NewProber(audio.FindFFprobe(cfg.Audio.FFprobePath), log.Component("probe"))
	ffmpeg, err := audio.NewFFmpegOpener(cfg.Audio.FFmpegPath, prober, format, log.Component("ffmpeg"))
	if err != nil {
		log.Warn("ffmpeg unavailable, only WAV audio can be decoded", "error", err)
	} else {
		fallback = ffmpeg
	}
	opener := audio.NewExtensionOpener(fallback).Register(".wav", audio.NewWAVOpener(format))

	var recognizer recognition.Recognizer
	if cfg.Recognizer.Enabled {
		rec, err := recognition.NewExecRecognizer(recognition.ExecConfig{
			Command: cfg.Recognizer.Command,
			Args:    cfg.Recognizer.Args,
		}, log.Component("recognizer"))
		if err != nil {
			return nil, err
		}
		recognizer = rec
		log.Info("Recognition enabled", "command", cfg.Recognizer.Command)
	} else {
		log.Info("No recognizer configured, alignments use estimation")
	}

	return align.NewCoordinator(opener, recognizer, AlignOptions(cfg.Align), log.Component("align"), options...), nil
}

// AlignOptions maps the align config section onto coordinator options.
func AlignOptions(c config.AlignConfig) align.Options {
	opts := align.DefaultOptions()
	opts.MinSentences = c.MinSentences
	opts.WindowLength = c.WindowLength
	opts.SkipBack = c.SkipBack
	opts.Tolerances = reconcile.Tolerances{
		Estimate: c.EstimateTolerance,
		Chain:    c.ChainTolerance,
	}
	opts.ChunkSize = c.ChunkSize
	opts.BridgeCapacity = c.BridgeCapacity
	opts.PollInterval = c.PollInterval
	opts.CheckpointEvery = c.CheckpointEvery
	return opts
}
