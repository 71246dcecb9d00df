// Package reconcile turns raw recognizer hits into validated sentence
// positions. Hits are collected per chapter as candidates, then a correction
// pass anchors each sentence between its validated neighbors and estimates
// whatever recognition could not place.
package reconcile

import (
	"math"
	"sync"
	"time"

	"github.com/listenupapp/listenup-align/internal/domain"
	"github.com/listenupapp/listenup-align/internal/estimate"
	"github.com/listenupapp/listenup-align/internal/normalize"
	"github.com/listenupapp/listenup-align/internal/recognition"
)

const (
	// Upper bound for the last sentence of a chapter, past the previous anchor's end.
	lastSentenceGrace = time.Minute
	// Upper bound when no forward anchor exists, past the previous anchor's start.
	missingNextGrace = 5 * time.Minute
)

// Tolerances are the half-widths of the windows a forward anchor must fall in.
type Tolerances struct {
	// Estimate is the window around the character-rate estimate.
	Estimate time.Duration
	// Chain is the window around the end of the sentence being corrected.
	Chain time.Duration
}

// DefaultTolerances returns the standard acceptance windows.
func DefaultTolerances() Tolerances {
	return Tolerances{Estimate: 90 * time.Second, Chain: 45 * time.Second}
}

// Reconciler owns the sentence positions of one alignment run. Chapters are
// processed one at a time: Begin, any number of Map calls, then Correct and
// Commit, or Abort on cancellation.
type Reconciler struct {
	mu sync.Mutex

	book      *domain.Book
	structure domain.Structure
	estimator *estimate.Engine
	tol       Tolerances

	chapter   *domain.Chapter
	previous  *domain.Chapter
	fileIndex int
	base      time.Duration
	keys      []string
	matched   []bool

	done      int
	totalDone int
	total     int
	validated int
	progress  int

	onProgress func(percent int)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTolerances overrides the anchor acceptance windows.
func WithTolerances(t Tolerances) Option {
	return func(r *Reconciler) { r.tol = t }
}

// WithProgress registers a callback receiving run progress in percent.
// It is called from whichever goroutine calls Map or Commit.
func WithProgress(fn func(percent int)) Option {
	return func(r *Reconciler) { r.onProgress = fn }
}

// New returns a reconciler for book. totalSentences is the number of
// sentences the run will process and scales progress.
func New(book *domain.Book, structure domain.Structure, estimator *estimate.Engine, totalSentences int, opts ...Option) *Reconciler {
	r := &Reconciler{
		book:      book,
		structure: structure,
		estimator: estimator,
		tol:       DefaultTolerances(),
		total:     totalSentences,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin makes ch the current chapter. base is the book timeline offset of
// the first byte of audio the recognizer will hear.
func (r *Reconciler) Begin(ch *domain.Chapter, base time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chapter = ch
	r.fileIndex = ch.FileIndex()
	r.base = base
	r.done = 0
	r.keys = make([]string, len(ch.Sentences))
	r.matched = make([]bool, len(ch.Sentences))
	for i, s := range ch.Sentences {
		if s.HasGrammar() {
			r.keys[i] = normalize.MatchKey(s.Text)
		}
	}
}

// Map records ev as a candidate for every sentence of the current chapter
// whose text it matches. It returns the number of sentences matched.
func (r *Reconciler) Map(ev recognition.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.chapter == nil || ev.Err != nil {
		return 0
	}
	key := normalize.MatchKey(ev.Text)
	if key == "" {
		return 0
	}

	pos := ev.Position + r.base
	fileIndex := r.fileIndex
	if !r.structure.IsChapter() {
		fileIndex = r.book.FileIndexAt(pos)
	}

	n := 0
	for i, s := range r.chapter.Sentences {
		if r.keys[i] != key {
			continue
		}
		s.AddCandidate(domain.AudioPosition{FileIndex: fileIndex, Position: pos, Duration: ev.Duration})
		if !r.matched[i] {
			r.matched[i] = true
			r.done++
		}
		n++
	}
	if n > 0 {
		r.report()
	}
	return n
}

// Correct validates the candidates of the current chapter against their
// neighbors, computes the chapter success rate and fills the gaps.
func (r *Reconciler) Correct() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := r.chapter
	if ch == nil || len(ch.Sentences) == 0 {
		return
	}

	var offset time.Duration
	last := len(ch.Sentences) - 1
	for i, s := range ch.Sentences {
		prev := r.previousAnchor(i)

		closest := s.ClosestPosition(prev.Position)
		if closest.IsEmpty() {
			closest.FileIndex = s.First().FileIndex
		}

		var next domain.AudioPosition
		if i < last {
			next = r.nextAnchor(i, prev, closest, &offset)
		} else {
			next.Position = prev.End() + lastSentenceGrace
		}
		if next.Position == 0 {
			next.Position = prev.Position + missingNextGrace
		}

		if closest.Position < prev.End() || closest.Position > next.Position {
			closest.Clear()
		}
		s.Resolve(closest)
	}

	valid := ch.ValidCount()
	ch.SuccessRate = percent(valid, len(ch.Sentences))
	r.validated += valid

	r.fillGaps(ch)
}

// Commit closes the current chapter. It becomes the anchor for the next one.
func (r *Reconciler) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.chapter == nil {
		return
	}
	r.totalDone += len(r.chapter.Sentences)
	r.done = 0
	r.previous = r.chapter
	r.chapter = nil
	r.book.SuccessRate = percent(r.validated, r.total)
	r.report()
}

// Abort drops every candidate of the current chapter. Committed chapters
// are left untouched.
func (r *Reconciler) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.chapter == nil {
		return
	}
	for _, s := range r.chapter.Sentences {
		s.Reset()
	}
	if r.structure.IsChapter() {
		r.chapter.AssignFile(r.fileIndex)
	}
	r.done = 0
	r.chapter = nil
}

// Previous returns the last committed chapter, or nil.
func (r *Reconciler) Previous() *domain.Chapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previous
}

// Progress returns the run progress in percent.
func (r *Reconciler) Progress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// SuccessRate returns the share of processed sentences that were validated,
// in percent of every sentence in the run.
func (r *Reconciler) SuccessRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return percent(r.validated, r.total)
}

// previousAnchor returns the closest validated position before sentence i,
// falling back to the end of the previous chapter.
func (r *Reconciler) previousAnchor(i int) domain.AudioPosition {
	for j := i - 1; j >= 0; j-- {
		if p := r.chapter.Sentences[j].First(); p.IsSet() {
			return p
		}
	}
	if r.previous != nil {
		if s := r.previous.LastSentenceWithValues(); s != nil {
			return s.First()
		}
	}
	return domain.AudioPosition{}
}

// nextAnchor looks forward for the first candidate that agrees with either the
// character-rate estimate or the end of closest. When none agrees, the last
// candidate seen is used. offset is moved to the accepted anchor.
func (r *Reconciler) nextAnchor(i int, prev, closest domain.AudioPosition, offset *time.Duration) domain.AudioPosition {
	var (
		fallback    domain.AudioPosition
		fallbackEst time.Duration
	)
	chain := closest.End()
	for j := i + 1; j < len(r.chapter.Sentences); j++ {
		cand := r.chapter.Sentences[j].ClosestPosition(prev.Position)
		if !cand.IsSet() {
			continue
		}
		est := r.estimator.Position(r.chapter, j, *offset, r.previous)
		if within(cand.Position, est, r.tol.Estimate) || (chain != 0 && within(cand.Position, chain, r.tol.Chain)) {
			*offset = cand.Position - est
			return cand
		}
		fallback, fallbackEst = cand, est
	}
	if fallback.IsSet() {
		*offset = fallback.Position - fallbackEst
	}
	return fallback
}

func (r *Reconciler) fillGaps(ch *domain.Chapter) {
	first := ch.Sentences[0].First()
	if first.Duration == 0 {
		if first.Position == 0 {
			first.Position = r.estimator.Position(ch, 0, 0, r.previous)
		}
		first.Duration = r.estimator.Duration(ch.Sentences[0])
		if !r.structure.IsChapter() {
			first.FileIndex = r.book.FileIndexAt(first.Position)
		}
		ch.Sentences[0].SetFirst(first)
	}

	for i := 1; i < len(ch.Sentences); i++ {
		cur := ch.Sentences[i].First()
		prev := ch.Sentences[i-1].First()
		if cur.Position != 0 || prev.Duration == 0 {
			continue
		}

		cur.Position = prev.End()
		cur.Duration = r.gapDuration(ch, i, cur.Position)
		if !r.structure.IsChapter() {
			cur.FileIndex = r.book.FileIndexAt(cur.Position)
		}
		ch.Sentences[i].SetFirst(cur)
	}
}

// gapDuration returns the length of an unplaced sentence i starting at pos.
// A placed successor bounds it: directly when adjacent, otherwise as a cap on
// the character-rate estimate.
func (r *Reconciler) gapDuration(ch *domain.Chapter, i int, pos time.Duration) time.Duration {
	d := r.estimator.Duration(ch.Sentences[i])
	for j := i + 1; j < len(ch.Sentences); j++ {
		next := ch.Sentences[j].First().Position
		if next == 0 {
			continue
		}
		if j == i+1 {
			return max(next-pos, 0)
		}
		return max(min(d, next-pos), 0)
	}
	return d
}

// report publishes progress. Callers hold mu.
func (r *Reconciler) report() {
	p := min(percent(r.done+r.totalDone, r.total), 100)
	if p <= r.progress {
		return
	}
	r.progress = p
	if r.onProgress != nil {
		r.onProgress(p)
	}
}

// within reports whether v lies strictly inside center ± tol.
func within(v, center, tol time.Duration) bool {
	return v > center-tol && v < center+tol
}

func percent(n, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(n) / float64(total)))
}
