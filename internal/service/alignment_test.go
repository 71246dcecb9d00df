package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-align/internal/align"
	"github.com/listenupapp/listenup-align/internal/chapters"
	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/domain"
	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
	"github.com/listenupapp/listenup-align/internal/search"
	"github.com/listenupapp/listenup-align/internal/sse"
	"github.com/listenupapp/listenup-align/internal/store"
	"github.com/listenupapp/listenup-align/internal/store/sqlite"
)

type testEnv struct {
	svc     *AlignmentService
	jobs    *store.Store
	timings *sqlite.Store
	events  *sse.Client
	dir     string
}

func newTestEnv(t *testing.T, aligner Aligner) *testEnv {
	t.Helper()
	dir := t.TempDir()

	jobs, err := store.New(filepath.Join(dir, "badger"), nil)
	require.NoError(t, err)
	timings, err := sqlite.Open(filepath.Join(dir, "timings.db"), nil)
	require.NoError(t, err)
	timings.SetCheckpointReader(jobs)
	index, err := search.NewSearchIndex(search.Options{DataPath: dir})
	require.NoError(t, err)

	manager := sse.NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)
	client, err := manager.Connect("")
	require.NoError(t, err)

	svc := NewAlignmentService(jobs, timings, index, manager, aligner, nil, config.AlignConfig{MinSentences: 2}, nil)

	t.Cleanup(func() {
		_ = svc.Shutdown()
		cancel()
		_ = index.Close()
		_ = timings.Close()
		_ = jobs.Close()
	})
	return &testEnv{svc: svc, jobs: jobs, timings: timings, events: client, dir: dir}
}

// writeBook creates a one-file book whose audio file exists on disk.
func (e *testEnv) writeBook(t *testing.T, name string) *domain.Book {
	t.Helper()
	path := filepath.Join(e.dir, name+".mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio of "+name), 0o644))

	book := &domain.Book{
		Title:      name,
		AudioFiles: []domain.AudioFile{{Path: path, Duration: 30 * time.Second}},
	}
	for c := range 2 {
		ch := &domain.Chapter{Title: fmt.Sprintf("Chapter %d", c+1)}
		for s := range 3 {
			ch.Sentences = append(ch.Sentences, domain.NewSentence(fmt.Sprintf("The whale surfaced near sentence %d of chapter %d.", s+1, c+1)))
		}
		book.Chapters = append(book.Chapters, ch)
	}
	return book
}

func (e *testEnv) waitForEvent(t *testing.T, eventType sse.EventType) sse.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-e.events.EventChan:
			if ev.Type == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event received", eventType)
		}
	}
}

func estimationAligner() *align.Coordinator {
	opts := align.DefaultOptions()
	opts.MinSentences = 2
	opts.ProgressInterval = 0
	return align.NewCoordinator(nil, nil, opts, nil)
}

// blockingAligner runs until its context is cancelled.
type blockingAligner struct {
	started chan string
}

func newBlockingAligner() *blockingAligner {
	return &blockingAligner{started: make(chan string, 4)}
}

func (b *blockingAligner) CanRecognize() bool { return true }

func (b *blockingAligner) RunRecognition(ctx context.Context, book *domain.Book, opts align.RunOptions) (*align.Result, error) {
	return b.RunEstimation(ctx, book, opts)
}

func (b *blockingAligner) RunEstimation(ctx context.Context, _ *domain.Book, opts align.RunOptions) (*align.Result, error) {
	opts.OnProgress(align.Progress{Phase: align.PhaseRecognizing, Percent: 40})
	b.started <- opts.JobID
	<-ctx.Done()
	return &align.Result{SuccessRate: 40}, ctx.Err()
}

func TestAlignmentService_EstimationCompletes(t *testing.T) {
	env := newTestEnv(t, estimationAligner())
	ctx := context.Background()
	book := env.writeBook(t, "moby")

	job, err := env.svc.Start(ctx, StartRequest{Book: book})
	require.NoError(t, err)
	assert.Equal(t, domain.AlignmentModeEstimation, job.Mode, "estimation is the default without a recognizer")
	assert.NotEmpty(t, job.BookChecksum)

	done, err := env.svc.Wait(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AlignmentStatusCompleted, done.Status, done.Error)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 0, env.svc.RunningCount())

	ev := env.waitForEvent(t, sse.EventAlignmentCompleted)
	assert.Equal(t, job.ID, ev.Data.(sse.JobEventData).Job.ID)

	timing, err := env.svc.Timing(ctx, job.BookChecksum)
	require.NoError(t, err)
	assert.Len(t, timing.Chapters, 2)
	assert.Equal(t, domain.AlignmentModeEstimation, timing.Mode)

	res, err := env.svc.Search(ctx, search.SearchParams{Query: "whale surfaced", Book: job.BookChecksum, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), res.Total)

	has, err := env.jobs.HasCheckpoint(ctx, job.BookChecksum)
	require.NoError(t, err)
	assert.False(t, has, "completed runs leave no checkpoint")

	again := env.writeBook(t, "moby")
	status, err := env.svc.Status(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, domain.TimingStatusNormal, status.Status)
	assert.True(t, again.Chapters[1].Sentences[0].First().IsSet())
}

func TestAlignmentService_StatusDetectsReplacedAudio(t *testing.T) {
	env := newTestEnv(t, estimationAligner())
	ctx := context.Background()

	job, err := env.svc.Start(ctx, StartRequest{Book: env.writeBook(t, "moby")})
	require.NoError(t, err)
	done, err := env.svc.Wait(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AlignmentStatusCompleted, done.Status, done.Error)

	again := env.writeBook(t, "moby")
	require.NoError(t, os.WriteFile(again.AudioFiles[0].Path, []byte("a different narration"), 0o644))
	again.Checksum = job.BookChecksum

	status, err := env.svc.Status(ctx, again)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrReconciliation))
	require.NotNil(t, status)
	assert.Equal(t, domain.TimingStatusCorrupt, status.Status)
	require.NotEmpty(t, status.Mismatches)
	assert.Equal(t, chapters.ReasonAudioChanged, status.Mismatches[0].Reason)
	assert.Equal(t, job.BookChecksum, again.Checksum, "a supplied checksum is kept")
	assert.False(t, again.Chapters[0].Sentences[0].First().IsSet(), "stale positions are not applied")
}

func TestAlignmentService_RecognitionUnavailable(t *testing.T) {
	env := newTestEnv(t, estimationAligner())

	_, err := env.svc.Start(context.Background(), StartRequest{
		Book: env.writeBook(t, "moby"),
		Mode: domain.AlignmentModeRecognition,
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestAlignmentService_RejectsInvalidBooks(t *testing.T) {
	env := newTestEnv(t, estimationAligner())
	ctx := context.Background()

	_, err := env.svc.Start(ctx, StartRequest{})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	book := env.writeBook(t, "moby")
	book.AudioFiles[0].Path = filepath.Join(env.dir, "gone.mp3")
	_, err = env.svc.Start(ctx, StartRequest{Book: book})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
	assert.Contains(t, err.Error(), "audio files not found")
}

func TestAlignmentService_OneJobPerBook(t *testing.T) {
	aligner := newBlockingAligner()
	env := newTestEnv(t, aligner)
	ctx := context.Background()

	first, err := env.svc.Start(ctx, StartRequest{Book: env.writeBook(t, "moby")})
	require.NoError(t, err)
	<-aligner.started

	_, err = env.svc.Start(ctx, StartRequest{Book: env.writeBook(t, "moby")})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrConflict))

	running, err := env.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlignmentStatusRunning, running.Status)
	assert.Equal(t, 40, running.Progress, "live progress is overlaid")

	cancelled, err := env.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlignmentStatusCancelled, cancelled.Status)
	assert.Equal(t, 40, cancelled.SuccessRate)
	env.waitForEvent(t, sse.EventAlignmentCancelled)

	_, err = env.svc.Cancel(ctx, first.ID)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrConflict), "finished jobs cannot be cancelled")

	second, err := env.svc.Start(ctx, StartRequest{Book: env.writeBook(t, "moby")})
	require.NoError(t, err)
	<-aligner.started
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAlignmentService_ShutdownFailsRunningJobs(t *testing.T) {
	aligner := newBlockingAligner()
	env := newTestEnv(t, aligner)
	ctx := context.Background()

	job, err := env.svc.Start(ctx, StartRequest{Book: env.writeBook(t, "moby")})
	require.NoError(t, err)
	<-aligner.started

	require.NoError(t, env.svc.Shutdown())

	stored, err := env.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlignmentStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "shutdown")

	_, err = env.svc.Start(ctx, StartRequest{Book: env.writeBook(t, "other")})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrConflict))
}

func TestAlignmentService_List(t *testing.T) {
	env := newTestEnv(t, estimationAligner())
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"moby", "typee"} {
		job, err := env.svc.Start(ctx, StartRequest{Book: env.writeBook(t, name)})
		require.NoError(t, err)
		_, err = env.svc.Wait(ctx, job.ID)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	all, err := env.svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ids[1], all[0].ID, "newest first")

	completed, err := env.svc.List(ctx, ListFilter{Status: domain.AlignmentStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	byBook, err := env.svc.List(ctx, ListFilter{Book: all[0].BookChecksum, Status: domain.AlignmentStatusFailed})
	require.NoError(t, err)
	assert.Empty(t, byBook)
}

func TestAlignmentService_Compare(t *testing.T) {
	env := newTestEnv(t, estimationAligner())
	ctx := context.Background()

	timing := func(checksum string, shift time.Duration) *domain.Timing {
		return &domain.Timing{
			BookChecksum: checksum,
			Title:        checksum,
			Structure:    domain.StructureSingleFile,
			Mode:         domain.AlignmentModeEstimation,
			AudioFiles:   []domain.AudioFile{{Path: "/a.mp3", Duration: time.Minute}},
			Chapters: []domain.ChapterTiming{{
				Title: "One",
				Sentences: []domain.AudioPosition{
					{Position: time.Second + shift, Duration: time.Second},
					{Position: 3*time.Second + shift, Duration: time.Second},
				},
			}},
			CompletedAt: time.Now(),
		}
	}
	require.NoError(t, env.timings.SaveTiming(ctx, timing("aa", 0)))
	require.NoError(t, env.timings.SaveTiming(ctx, timing("bb", 2*time.Second)))

	diff, err := env.svc.Compare(ctx, "aa", "bb")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, diff.Average)

	_, err = env.svc.Compare(ctx, "aa", "missing")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))

	require.NoError(t, env.svc.DeleteTiming(ctx, "bb"))
	_, err = env.svc.Timing(ctx, "bb")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
}

func TestAlignmentService_SubmitFile(t *testing.T) {
	env := newTestEnv(t, estimationAligner())
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "typee.mp3"), []byte("typee audio"), 0o644))
	request := `{
		"mode": "estimation",
		"book": {
			"title": "Typee",
			"audio_files": [{"path": "typee.mp3", "duration": 20000000000}],
			"chapters": [{"title": "One", "sentences": [{"text": "Six months at sea."}, {"text": "Yes, six months."}]}]
		}
	}`
	path := filepath.Join(env.dir, "typee.book.json")
	require.NoError(t, os.WriteFile(path, []byte(request), 0o644))

	req, err := ReadRequest(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.dir, "typee.mp3"), req.Book.AudioFiles[0].Path)
	assert.Equal(t, 20*time.Second, req.Book.AudioFiles[0].Duration)

	require.NoError(t, env.svc.SubmitFile(ctx, path))
	ev := env.waitForEvent(t, sse.EventAlignmentCompleted)
	assert.Equal(t, "Typee", ev.Data.(sse.JobEventData).Job.Title)

	bad := filepath.Join(env.dir, "bad.book.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	err = env.svc.SubmitFile(ctx, bad)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}
