package align

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Phase is a stage of an alignment run.
type Phase string

const (
	PhaseDetecting   Phase = "detecting"
	PhaseRecognizing Phase = "recognizing"
	PhaseEstimating  Phase = "estimating"
	PhaseHashing     Phase = "hashing"
	PhaseDone        Phase = "done"
)

// Progress is a snapshot of a running alignment.
type Progress struct {
	Phase Phase `json:"phase"`
	// Percent of the run's sentences processed, 0-100. Never decreases.
	Percent int `json:"percent"`
	// Chapter is the book index of the chapter being processed, or -1.
	Chapter int `json:"chapter"`
	// Units is the number of sessions or chapters the run will process.
	Units int `json:"units"`
	// Done is the number of those already finished.
	Done int `json:"done"`
}

// progressTracker tracks and reports run progress. Percent updates are rate
// limited; phase and unit changes are always delivered.
type progressTracker struct {
	callback func(Progress)
	limiter  *rate.Limiter
	progress Progress
	mu       sync.Mutex
}

func newProgressTracker(callback func(Progress), interval time.Duration) *progressTracker {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &progressTracker{
		callback: callback,
		limiter:  rate.NewLimiter(limit, 1),
		progress: Progress{Phase: PhaseDetecting, Chapter: -1},
	}
}

func (p *progressTracker) SetPhase(phase Phase, units int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Phase = phase
	p.progress.Units = units
	p.progress.Done = 0
	p.notify(true)
}

func (p *progressTracker) StartUnit(chapter int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Chapter = chapter
	p.notify(true)
}

func (p *progressTracker) FinishUnit() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Done++
	p.notify(true)
}

func (p *progressTracker) SetPercent(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if percent <= p.progress.Percent {
		return
	}
	p.progress.Percent = min(percent, 100)
	p.notify(p.progress.Percent == 100)
}

func (p *progressTracker) Get() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// notify delivers the current snapshot. Callers hold mu, so deliveries are
// ordered.
func (p *progressTracker) notify(force bool) {
	if p.callback == nil {
		return
	}
	if p.limiter.Allow() || force {
		p.callback(p.progress)
	}
}
