package align

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-align/internal/audio"
	"github.com/listenupapp/listenup-align/internal/domain"
	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
	"github.com/listenupapp/listenup-align/internal/recognition"
)

var testFormat = audio.Format{SampleRate: 100, Channels: 1, BitsPerSample: 16}

// silentOpener opens every path as silence of the configured duration.
type silentOpener struct {
	mu        sync.Mutex
	durations map[string]time.Duration
	noSeek    bool
	fail      map[string]error
	seeks     []time.Duration
	opened    int
}

func (o *silentOpener) Open(_ context.Context, path string) (audio.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.fail[path]; err != nil {
		return nil, err
	}
	d, ok := o.durations[path]
	if !ok {
		return nil, domainerrors.UnsupportedAudiof("unknown file %s", path)
	}
	o.opened++
	return &silentSource{opener: o, size: testFormat.Bytes(d), duration: d}, nil
}

func (o *silentOpener) recordSeek(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seeks = append(o.seeks, d)
}

func (o *silentOpener) seekOffsets() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.seeks...)
}

type silentSource struct {
	opener   *silentOpener
	size     int64
	pos      int64
	duration time.Duration
}

func (s *silentSource) Read(p []byte) (int, error) {
	if s.pos >= s.size {
		return 0, io.EOF
	}
	n := int(min(int64(len(p)), s.size-s.pos))
	clear(p[:n])
	s.pos += int64(n)
	return n, nil
}

func (s *silentSource) Format() audio.Format { return testFormat }
func (s *silentSource) Duration() time.Duration { return s.duration }
func (s *silentSource) Position() time.Duration { return testFormat.Duration(s.pos) }
func (s *silentSource) Close() error { return nil }
func (s *silentSource) Seek(_ context.Context, offset time.Duration) (time.Duration, error) {
	s.opener.recordSeek(offset)
	if s.opener.noSeek || offset < 0 || offset >= s.duration {
		s.pos = 0
		return 0, nil
	}
	s.pos = testFormat.Bytes(offset)
	return testFormat.Duration(s.pos), nil
}

// utterance is a scripted recognizer hit relative to the session audio.
type utterance struct {
	text     string
	position time.Duration
}

// scriptedRecognizer drains the session audio, then replays the events the
// script returns for that session.
type scriptedRecognizer struct {
	mu       sync.Mutex
	requests []recognition.Request
	heard    []int64
	script   func(session int, req recognition.Request) ([]utterance, error)
	// block, when set for a session, holds it open until ctx is cancelled.
	block   map[int]chan struct{}
	started chan int
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, req recognition.Request) (<-chan recognition.Event, error) {
	r.mu.Lock()
	session := len(r.requests)
	r.requests = append(r.requests, req)
	r.heard = append(r.heard, 0)
	blocked := r.block[session]
	r.mu.Unlock()

	if r.started != nil {
		r.started <- session
	}

	events := make(chan recognition.Event)
	go func() {
		defer close(events)
		if blocked != nil {
			close(blocked)
			<-ctx.Done()
			return
		}

		n, _ := io.Copy(io.Discard, req.Audio)
		r.mu.Lock()
		r.heard[session] = n
		r.mu.Unlock()

		hits, err := r.script(session, req)
		for _, h := range hits {
			select {
			case events <- recognition.Event{Text: h.text, Position: h.position, Duration: 9 * time.Second}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case events <- recognition.Event{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return events, nil
}

func (r *scriptedRecognizer) bytesHeard(session int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.heard[session]
}

// everyPhrase recognizes each grammar phrase ten seconds apart, starting at start.
func everyPhrase(start time.Duration) func(int, recognition.Request) ([]utterance, error) {
	return func(_ int, req recognition.Request) ([]utterance, error) {
		hits := make([]utterance, len(req.Grammars))
		for i, g := range req.Grammars {
			hits[i] = utterance{text: g, position: start + time.Duration(i)*10*time.Second}
		}
		return hits, nil
	}
}

type memCheckpoints struct {
	mu    sync.Mutex
	saved []*domain.Checkpoint
}

func (m *memCheckpoints) SaveCheckpoint(_ context.Context, cp *domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, cp)
	return nil
}

func (m *memCheckpoints) all() []*domain.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Checkpoint(nil), m.saved...)
}

// newBook builds a book whose audio files exist on disk (for checksums) and
// are served as silence by the returned opener.
func newBook(t *testing.T, titles []string, sentences int, files map[string]time.Duration, order []string) (*domain.Book, *silentOpener) {
	t.Helper()
	dir := t.TempDir()
	opener := &silentOpener{durations: map[string]time.Duration{}}

	book := &domain.Book{Title: "Test Book"}
	for i, name := range order {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("audio %d", i)), 0o600))
		opener.durations[path] = files[name]
		book.AudioFiles = append(book.AudioFiles, domain.AudioFile{Path: path})
	}
	for c, title := range titles {
		ch := &domain.Chapter{Title: title}
		for s := range sentences {
			ch.Sentences = append(ch.Sentences, &domain.Sentence{
				Original: fmt.Sprintf("Chapter %d has sentence %d in a quiet story.", c, s),
			})
		}
		book.Chapters = append(book.Chapters, ch)
	}
	return book, opener
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ChunkSize = 1024
	opts.BridgeCapacity = 4096
	opts.PollInterval = 5 * time.Millisecond
	opts.ProgressInterval = 0
	return opts
}
