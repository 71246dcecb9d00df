package align

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/listenupapp/listenup-align/internal/audio"
	"github.com/listenupapp/listenup-align/internal/domain"
	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
	"github.com/listenupapp/listenup-align/internal/recognition"
	"github.com/listenupapp/listenup-align/internal/stream"
)

// unit is the audio one recognition session listens to and the chapter whose
// sentences it listens for.
type unit struct {
	chapter *domain.Chapter
	index   int // chapter index in the book

	fileIndex int           // first audio file streamed
	offset    time.Duration // seek offset inside that file
	base      time.Duration // book timeline position of the first streamed byte
	window    time.Duration // audio to stream; zero means to the end
	single    bool          // stream fileIndex only
}

// session streams one unit through a fresh bridge and recognizer and
// reconciles the result. Nothing outlives the call: the recognizer, the
// bridge and every audio source are released before it returns.
func (r *run) session(ctx context.Context, u unit) error {
	start := time.Now()
	sessionID := uuid.NewString()
	logger := r.logger.With("session_id", sessionID, "chapter", u.index)

	src, base, err := r.openFirst(ctx, u)
	if err != nil {
		return err
	}
	if err := src.Format().Validate(); err != nil {
		_ = src.Close()
		return domainerrors.UnsupportedAudiof("the recognizer does not support one or more of these audio files (%s)",
			r.book.AudioFiles[u.fileIndex].Name()).WithCause(err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridge := stream.NewBridge(sessionCtx, r.c.opts.BridgeCapacity, stream.WithPollInterval(r.c.opts.PollInterval))
	defer bridge.Close()

	r.reconciler.Begin(u.chapter, base)
	events, err := r.c.recognizer.Recognize(sessionCtx, recognition.Request{
		SessionID: sessionID,
		Audio:     bridge,
		Format:    src.Format(),
		Grammars:  u.chapter.GrammarPhrases(),
	})
	if err != nil {
		_ = src.Close()
		r.reconciler.Abort()
		return domainerrors.Recognition(err, "failed to start recognizer")
	}

	logger.Info("recognition session started",
		"file_index", u.fileIndex,
		"base", base,
		"window", u.window,
		"sentences", len(u.chapter.Sentences),
		"chars_per_second", r.estimator.Rate(),
	)

	fed := make(chan error, 1)
	go func() {
		fed <- r.feed(sessionCtx, bridge, src, u)
	}()

	var (
		recErr   error
		received int
		consumed = make(chan struct{})
	)
	go func() {
		defer close(consumed)
		defer r.gate.Set()
		for ev := range events {
			if ev.Err != nil {
				recErr = ev.Err
				continue
			}
			received++
			r.c.metrics.RecordUtterance()
			if n := r.reconciler.Map(ev); n == 0 {
				logger.Debug("utterance matched no sentence", "text", ev.Text, "position", ev.Position)
			}
		}
	}()

	waitErr := r.gate.Wait(ctx)
	if waitErr != nil {
		cancel()
	}
	<-consumed
	r.gate.Reset()
	cancel()
	feedErr := <-fed

	switch {
	case ctx.Err() != nil:
		r.reconciler.Abort()
		logger.Info("recognition session cancelled", "utterances", received)
		return ctx.Err()
	case recErr != nil:
		r.reconciler.Abort()
		return domainerrors.Recognition(recErr, "recognizer failed")
	case feedErr != nil && !errors.Is(feedErr, context.Canceled) && !errors.Is(feedErr, stream.ErrClosed):
		r.reconciler.Abort()
		return feedErr
	}

	r.reconciler.Correct()
	r.reconciler.Commit()

	elapsed := time.Since(start)
	r.c.metrics.RecordSession(string(r.structure), elapsed.Seconds())
	logger.Info("recognition session finished",
		"utterances", received,
		"success_rate", u.chapter.SuccessRate,
		"duration", elapsed,
	)
	return nil
}

// openFirst opens the unit's first file and seeks to its offset. It returns
// the source and the timeline position of its first byte. A source that
// cannot seek lands on zero, so streaming starts at the beginning of that file.
func (r *run) openFirst(ctx context.Context, u unit) (audio.Source, time.Duration, error) {
	path := r.book.AudioFiles[u.fileIndex].Path
	src, err := r.c.opener.Open(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	if u.offset <= 0 {
		return src, u.base, nil
	}

	landed, err := src.Seek(ctx, u.offset)
	if err != nil {
		_ = src.Close()
		return nil, 0, err
	}
	fileStart := r.book.DurationBefore(u.fileIndex)
	if landed == 0 {
		r.logger.Warn("seek landed at zero, streaming from the start of the file",
			"file", path, "offset", u.offset)
	}
	return src, fileStart + landed, nil
}

// feed copies decoded PCM into the bridge until the unit's audio is
// exhausted, then ends the stream. It owns and closes every source.
func (r *run) feed(ctx context.Context, b *stream.Bridge, first audio.Source, u unit) error {
	defer b.EndOfStream()

	format := first.Format()
	budget := int64(math.MaxInt64)
	if u.window > 0 {
		budget = format.Bytes(u.window)
	}
	buf := make([]byte, r.c.opts.ChunkSize)

	src := first
	for i := u.fileIndex; ; {
		err := r.copySource(ctx, b, src, buf, &budget)
		_ = src.Close()
		if err != nil {
			return err
		}

		i++
		if u.single || budget <= 0 || i >= len(r.book.AudioFiles) {
			return nil
		}
		if src, err = r.c.opener.Open(ctx, r.book.AudioFiles[i].Path); err != nil {
			return err
		}
		if src.Format() != format {
			_ = src.Close()
			return domainerrors.UnsupportedAudiof("the recognizer does not support one or more of these audio files (%s)",
				r.book.AudioFiles[i].Name())
		}
	}
}

func (r *run) copySource(ctx context.Context, b *stream.Bridge, src audio.Source, buf []byte, budget *int64) error {
	for *budget > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := buf
		if int64(len(chunk)) > *budget {
			chunk = chunk[:*budget]
		}

		n, err := src.Read(chunk)
		if n > 0 {
			if _, werr := b.Write(chunk[:n]); werr != nil {
				return werr
			}
			*budget -= int64(n)
			r.c.metrics.AddBridgeBytes(n)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
