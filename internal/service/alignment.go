package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/listenupapp/listenup-align/internal/align"
	"github.com/listenupapp/listenup-align/internal/audio"
	"github.com/listenupapp/listenup-align/internal/chapters"
	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/domain"
	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
	"github.com/listenupapp/listenup-align/internal/id"
	"github.com/listenupapp/listenup-align/internal/metrics"
	"github.com/listenupapp/listenup-align/internal/search"
	"github.com/listenupapp/listenup-align/internal/sse"
	"github.com/listenupapp/listenup-align/internal/store"
	"github.com/listenupapp/listenup-align/internal/store/sqlite"
	"github.com/listenupapp/listenup-align/internal/validation"
)

// Aligner runs alignments. *align.Coordinator implements it.
type Aligner interface {
	CanRecognize() bool
	RunRecognition(ctx context.Context, book *domain.Book, opts align.RunOptions) (*align.Result, error)
	RunEstimation(ctx context.Context, book *domain.Book, opts align.RunOptions) (*align.Result, error)
}

// StartRequest asks for one book to be aligned.
type StartRequest struct {
	Book *domain.Book         `json:"book" validate:"required"`
	Mode domain.AlignmentMode `json:"mode,omitempty" validate:"omitempty,oneof=recognition estimation"`
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	Book   string
	Status domain.AlignmentStatus
}

// runningJob is the in-process handle of a job that has a goroutine.
type runningJob struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	progress align.Progress
}

func (rj *runningJob) setProgress(p align.Progress) {
	rj.mu.Lock()
	rj.progress = p
	rj.mu.Unlock()
}

func (rj *runningJob) getProgress() align.Progress {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	return rj.progress
}

// AlignmentService starts, tracks and cancels alignment jobs and serves the
// timing sets they produce.
type AlignmentService struct {
	jobs      *store.Store
	timings   *sqlite.Store
	index     *search.SearchIndex
	emitter   *sse.Manager
	aligner   Aligner
	metrics   *metrics.Metrics
	validator *validation.Validator
	logger    *slog.Logger
	config    config.AlignConfig

	// running holds at most one job per book checksum.
	running *SyncMap[string, *runningJob]

	ctx    context.Context //nolint:containedctx // Parent of every job context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAlignmentService creates the service. index and m may be nil.
func NewAlignmentService(
	jobs *store.Store,
	timings *sqlite.Store,
	index *search.SearchIndex,
	emitter *sse.Manager,
	aligner Aligner,
	m *metrics.Metrics,
	cfg config.AlignConfig,
	logger *slog.Logger,
) *AlignmentService {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AlignmentService{
		jobs:      jobs,
		timings:   timings,
		index:     index,
		emitter:   emitter,
		aligner:   aligner,
		metrics:   m,
		validator: validation.New(),
		logger:    logger,
		config:    cfg,
		running:   NewSyncMap[string, *runningJob](),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Recover marks jobs left running by a previous process as failed.
func (s *AlignmentService) Recover(ctx context.Context) error {
	if _, err := s.jobs.FailInterruptedJobs(ctx); err != nil {
		return fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return nil
}

// Start validates req, identifies the book by its audio checksums and runs the
// alignment on its own goroutine. Only one job per book may run at a time.
func (s *AlignmentService) Start(ctx context.Context, req StartRequest) (*domain.AlignmentJob, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if s.ctx.Err() != nil {
		return nil, domainerrors.Conflict("service is shutting down")
	}

	mode := req.Mode
	if mode == "" {
		mode = s.defaultMode()
	}
	if mode == domain.AlignmentModeRecognition && !s.aligner.CanRecognize() {
		return nil, domainerrors.Validation("recognition is not available on this server, use estimation mode")
	}

	book := req.Book
	if err := s.identify(ctx, book); err != nil {
		return nil, err
	}

	jobID, err := id.NewJobID()
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to generate job id")
	}
	job := &domain.AlignmentJob{
		ID:           jobID,
		BookChecksum: book.Checksum,
		Title:        book.Title,
		Mode:         mode,
		Status:       domain.AlignmentStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	jobCtx, cancel := context.WithCancel(s.ctx)
	rj := &runningJob{jobID: jobID, cancel: cancel, done: make(chan struct{})}
	if existing, loaded := s.running.LoadOrStore(book.Checksum, rj); loaded {
		cancel()
		return nil, domainerrors.Conflictf("book %q is already being aligned by job %s", book.Title, existing.jobID)
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		s.release(book.Checksum, rj)
		cancel()
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("alignment job started",
		slog.String("job_id", job.ID),
		slog.String("book", book.Title),
		slog.String("checksum", book.Checksum),
		slog.String("mode", string(mode)),
	)

	snapshot := *job
	s.wg.Add(1)
	go s.run(jobCtx, rj, job, book)
	return &snapshot, nil
}

// Cancel stops a running job and waits until it has recorded its final state.
func (s *AlignmentService) Cancel(ctx context.Context, jobID string) (*domain.AlignmentJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsActive() {
		return nil, domainerrors.Conflictf("job %s is already %s", jobID, job.Status)
	}

	rj, ok := s.running.Load(job.BookChecksum)
	if !ok || rj.jobID != jobID {
		return nil, domainerrors.Conflictf("job %s is not running in this process", jobID)
	}
	rj.cancel()

	select {
	case <-rj.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.jobs.GetJob(ctx, jobID)
}

// Wait blocks until jobID is no longer running and returns its stored state.
func (s *AlignmentService) Wait(ctx context.Context, jobID string) (*domain.AlignmentJob, error) {
	for _, rj := range s.running.All() {
		if rj.jobID != jobID {
			continue
		}
		select {
		case <-rj.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		break
	}
	return s.jobs.GetJob(ctx, jobID)
}

// Get returns a job, with live progress when it is running.
func (s *AlignmentService) Get(ctx context.Context, jobID string) (*domain.AlignmentJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.overlayProgress(job)
	return job, nil
}

// List returns jobs matching filter, newest first.
func (s *AlignmentService) List(ctx context.Context, filter ListFilter) ([]*domain.AlignmentJob, error) {
	var (
		jobs []*domain.AlignmentJob
		err  error
	)
	switch {
	case filter.Book != "":
		jobs, err = s.jobs.ListJobsByBook(ctx, filter.Book)
	case filter.Status != "":
		jobs, err = s.jobs.ListJobsByStatus(ctx, filter.Status)
	default:
		for job, iterErr := range s.jobs.ListJobs(ctx) {
			if iterErr != nil {
				return nil, iterErr
			}
			jobs = append(jobs, job)
		}
	}
	if err != nil {
		return nil, err
	}

	jobs = slices.DeleteFunc(jobs, func(j *domain.AlignmentJob) bool {
		return filter.Status != "" && j.Status != filter.Status
	})
	slices.SortFunc(jobs, func(a, b *domain.AlignmentJob) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	for _, j := range jobs {
		s.overlayProgress(j)
	}
	return jobs, nil
}

// Status reports what is stored for book and, when the stored timing set still
// fits, writes its positions into book.
func (s *AlignmentService) Status(ctx context.Context, book *domain.Book) (*sqlite.LoadResult, error) {
	if err := s.validator.Validate(StartRequest{Book: book}); err != nil {
		return nil, err
	}
	book.Prepare()
	if err := checkAudioExists(book); err != nil {
		return nil, err
	}
	if err := hashAudio(ctx, book); err != nil {
		return nil, err
	}
	return s.timings.LoadExisting(ctx, book, s.config.MinSentences)
}

// StoredStatus reports what is stored under checksum without a book to check
// it against. Only the audio paths of a stored timing set are verified.
func (s *AlignmentService) StoredStatus(ctx context.Context, checksum string) (*sqlite.LoadResult, error) {
	t, err := s.timings.GetTiming(ctx, checksum)
	if errors.Is(err, store.ErrNotFound) {
		cp, err := s.jobs.GetCheckpoint(ctx, checksum)
		if errors.Is(err, store.ErrNotFound) {
			return &sqlite.LoadResult{Status: domain.TimingStatusNone}, nil
		}
		if err != nil {
			return nil, err
		}
		return &sqlite.LoadResult{Status: domain.TimingStatusProgress, Checkpoint: cp}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &sqlite.LoadResult{Status: domain.TimingStatusNormal, Timing: t}
	for _, f := range t.AudioFiles {
		if _, err := os.Stat(f.Path); err != nil {
			res.Missing = append(res.Missing, f.Path)
		}
	}
	if len(res.Missing) > 0 {
		res.Status = domain.TimingStatusMissingAudio
	}
	return res, nil
}

// Timing returns the stored timing set of a book.
func (s *AlignmentService) Timing(ctx context.Context, checksum string) (*domain.Timing, error) {
	return s.timings.GetTiming(ctx, checksum)
}

// DeleteTiming removes a book's timing set, checkpoint and search documents.
func (s *AlignmentService) DeleteTiming(ctx context.Context, checksum string) error {
	if rj, ok := s.running.Load(checksum); ok {
		return domainerrors.Conflictf("book is being aligned by job %s", rj.jobID)
	}
	if err := s.timings.DeleteTiming(ctx, checksum); err != nil {
		return err
	}
	if err := s.jobs.DeleteCheckpoint(ctx, checksum); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteBook(ctx, checksum); err != nil {
			s.logger.Warn("failed to remove book from search index",
				slog.String("checksum", checksum), slog.String("error", err.Error()))
		}
	}
	return nil
}

// Compare diffs the stored timing sets of two books, b relative to a.
func (s *AlignmentService) Compare(ctx context.Context, a, b string) (*chapters.Diff, error) {
	ta, err := s.timings.GetTiming(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("timing %s: %w", a, err)
	}
	tb, err := s.timings.GetTiming(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("timing %s: %w", b, err)
	}
	return chapters.Compare(ta, tb)
}

// Search finds aligned sentences by text.
func (s *AlignmentService) Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error) {
	if s.index == nil {
		return nil, domainerrors.Validation("search is not enabled")
	}
	if params.Query == "" {
		return nil, domainerrors.Validation("query is required")
	}
	return s.index.Search(ctx, params)
}

// CanRecognize reports whether recognition mode is available.
func (s *AlignmentService) CanRecognize() bool {
	return s.aligner.CanRecognize()
}

// RunningCount returns the number of jobs currently running.
func (s *AlignmentService) RunningCount() int {
	return s.running.Len()
}

// Shutdown cancels every running job and waits for them to finish.
func (s *AlignmentService) Shutdown() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *AlignmentService) defaultMode() domain.AlignmentMode {
	if s.aligner.CanRecognize() {
		return domain.AlignmentModeRecognition
	}
	return domain.AlignmentModeEstimation
}

// identify makes sure book.Checksum is set, hashing the audio files when the
// caller did not supply it.
func (s *AlignmentService) identify(ctx context.Context, book *domain.Book) error {
	if err := checkAudioExists(book); err != nil {
		return err
	}
	if book.Checksum != "" {
		return nil
	}
	return hashAudio(ctx, book)
}

func checkAudioExists(book *domain.Book) error {
	var missing []string
	for _, f := range book.AudioFiles {
		if _, err := os.Stat(f.Path); err != nil {
			missing = append(missing, f.Path)
		}
	}
	if len(missing) > 0 {
		return domainerrors.ValidationWithDetails("audio files not found", map[string][]string{"missing": missing})
	}
	return nil
}

// hashAudio replaces the per-file checksums of book with fresh ones. The book
// checksum is derived from them only when the caller did not supply it, so a
// known book keeps its identity while replaced files still show up as changed.
func hashAudio(ctx context.Context, book *domain.Book) error {
	sums, err := audio.ChecksumAll(ctx, book.AudioPaths())
	if err != nil {
		return domainerrors.Recognition(err, "failed to checksum audio files")
	}
	for i, sum := range sums {
		book.AudioFiles[i].Checksum = sum
	}
	if book.Checksum == "" {
		book.Checksum = audio.CombineChecksums(sums)
	}
	return nil
}

func (s *AlignmentService) overlayProgress(job *domain.AlignmentJob) {
	if !job.IsActive() {
		return
	}
	if rj, ok := s.running.Load(job.BookChecksum); ok && rj.jobID == job.ID {
		job.SetProgress(rj.getProgress().Percent)
	}
}

func (s *AlignmentService) release(checksum string, rj *runningJob) {
	s.running.CompareAndDelete(checksum, func(v *runningJob) bool { return v == rj })
}

// run executes one job to completion. It owns job.
func (s *AlignmentService) run(ctx context.Context, rj *runningJob, job *domain.AlignmentJob, book *domain.Book) {
	defer s.wg.Done()
	defer close(rj.done)
	defer rj.cancel()

	logger := s.logger.With(slog.String("job_id", job.ID), slog.String("book", job.Title))
	// Final writes must land even though ctx is cancelled.
	persistCtx := context.WithoutCancel(ctx)

	job.MarkRunning()
	if err := s.jobs.UpdateJob(persistCtx, job); err != nil {
		logger.Error("failed to mark job running", slog.String("error", err.Error()))
	}
	s.metrics.JobStarted()

	opts := align.RunOptions{
		JobID: job.ID,
		OnProgress: func(p align.Progress) {
			rj.setProgress(p)
			s.emit(sse.NewProgressEvent(sse.ProgressEventData{
				JobID:        job.ID,
				BookChecksum: job.BookChecksum,
				Phase:        string(p.Phase),
				Progress:     p.Percent,
				Chapter:      p.Chapter,
				Units:        p.Units,
				Done:         p.Done,
			}))
		},
	}

	var (
		res *align.Result
		err error
	)
	if job.Mode == domain.AlignmentModeRecognition {
		res, err = s.aligner.RunRecognition(ctx, book, opts)
	} else {
		res, err = s.aligner.RunEstimation(ctx, book, opts)
	}
	if err == nil {
		err = s.complete(persistCtx, book, res)
	}

	job.SetProgress(rj.getProgress().Percent)
	switch {
	case err == nil:
		job.MarkCompleted(res.Structure, res.SuccessRate)
		s.metrics.RecordSuccessRate(res.SuccessRate)
		logger.Info("alignment job completed",
			slog.String("structure", string(res.Structure)),
			slog.Int("success_rate", res.SuccessRate))
	case errors.Is(err, context.Canceled) && s.ctx.Err() != nil:
		job.MarkFailed("interrupted by server shutdown")
		logger.Warn("alignment job interrupted by shutdown", slog.Int("progress", job.Progress))
	case errors.Is(err, context.Canceled):
		job.MarkCancelled()
		if res != nil {
			job.SuccessRate = res.SuccessRate
		}
		logger.Info("alignment job cancelled", slog.Int("progress", job.Progress))
	default:
		job.MarkFailed(err.Error())
		logger.Error("alignment job failed", slog.String("error", err.Error()))
	}

	if err := s.jobs.UpdateJob(persistCtx, job); err != nil {
		logger.Error("failed to save job state", slog.String("error", err.Error()))
	}
	s.metrics.JobFinished(string(job.Mode), string(job.Status))
	s.release(job.BookChecksum, rj)

	if event, ok := sse.NewJobEvent(job); ok {
		s.emit(event)
	}
}

// complete persists a finished timing set and indexes its sentences.
func (s *AlignmentService) complete(ctx context.Context, book *domain.Book, res *align.Result) error {
	if res == nil || res.Timing == nil {
		return domainerrors.Internal("alignment finished without a timing set")
	}
	if err := s.timings.SaveTiming(ctx, res.Timing); err != nil {
		return fmt.Errorf("save timing: %w", err)
	}
	if err := s.jobs.DeleteCheckpoint(ctx, res.Timing.BookChecksum); err != nil {
		s.logger.Warn("failed to delete checkpoint",
			slog.String("checksum", res.Timing.BookChecksum), slog.String("error", err.Error()))
	}
	if s.index != nil {
		if err := s.index.IndexTiming(ctx, book, res.Timing); err != nil {
			s.logger.Warn("failed to index sentences",
				slog.String("checksum", res.Timing.BookChecksum), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *AlignmentService) emit(event sse.Event) {
	if s.emitter != nil {
		s.emitter.Emit(event)
	}
}
