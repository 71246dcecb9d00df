// Package estimate places sentences on the audio timeline proportionally to
// their character counts. It is the fallback when no recognizer runs and the
// gap filler for sentences recognition could not place.
package estimate

import (
	"context"
	"time"

	"github.com/listenupapp/listenup-align/internal/domain"
)

// CharsPerSecond returns the narration rate of chars spoken over d, or zero
// when d is not positive.
func CharsPerSecond(chars int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(chars) / d.Seconds()
}

// Engine turns character counts into timeline positions at a given rate.
// The rate is per chapter for chapter-structured books and global otherwise.
type Engine struct {
	book      *domain.Book
	structure domain.Structure
	rate      float64
}

// New returns an engine for book laid out as structure.
func New(book *domain.Book, structure domain.Structure) *Engine {
	return &Engine{book: book, structure: structure}
}

// SetRate sets the characters-per-second rate used by subsequent estimates.
func (e *Engine) SetRate(cps float64) {
	e.rate = cps
}

// Rate returns the current characters-per-second rate.
func (e *Engine) Rate() float64 {
	return e.rate
}

// ChapterRate returns the rate of a chapter spoken over its own audio file.
func (e *Engine) ChapterRate(ch *domain.Chapter) float64 {
	idx := ch.FileIndex()
	if idx < 0 || idx >= len(e.book.AudioFiles) {
		return 0
	}
	return CharsPerSecond(ch.CharCount(), e.book.AudioFiles[idx].Duration)
}

// GlobalRate returns the rate of every eligible chapter spoken over the whole book.
func (e *Engine) GlobalRate(minSentences int) float64 {
	return CharsPerSecond(e.book.EligibleChars(minSentences), e.book.TotalDuration())
}

// Duration estimates how long s takes to narrate.
func (e *Engine) Duration(s *domain.Sentence) time.Duration {
	return e.seconds(float64(s.CharCount))
}

// Position estimates where sentence index of ch starts on the book timeline.
// offset is a correction learned from recognized anchors in the same chapter.
// previous is the last chapter already placed, or nil.
func (e *Engine) Position(ch *domain.Chapter, index int, offset time.Duration, previous *domain.Chapter) time.Duration {
	pos := e.seconds(float64(ch.CharsBefore(index))) + offset
	if e.structure.IsChapter() {
		if idx := ch.FileIndex(); idx > 0 {
			pos += e.book.DurationBefore(idx)
		}
		return pos
	}
	if previous != nil {
		if end, ok := previous.LastEnd(); ok {
			pos += end
		}
	}
	return pos
}

// FileIndex resolves the audio file for a position estimated in ch.
func (e *Engine) FileIndex(ch *domain.Chapter, pos time.Duration) int {
	if e.structure.IsChapter() {
		return ch.FileIndex()
	}
	return e.book.FileIndexAt(pos)
}

// EstimateChapter places every sentence of ch, discarding any candidates.
func (e *Engine) EstimateChapter(ch *domain.Chapter, previous *domain.Chapter) {
	for i, s := range ch.Sentences {
		pos := e.Position(ch, i, 0, previous)
		s.Resolve(domain.AudioPosition{
			FileIndex: e.FileIndex(ch, pos),
			Position:  pos,
			Duration:  e.Duration(s),
		})
	}
}

// Result summarizes an estimation run.
type Result struct {
	// Rate is the book-wide characters-per-second rate.
	Rate float64
	// Sentences is the number of sentences placed.
	Sentences int
}

// EstimateBook places every eligible chapter in document order. For
// chapter-structured books, chapters without a matched file are skipped.
// onChapter is called after each chapter with the running sentence count.
func (e *Engine) EstimateBook(ctx context.Context, minSentences int, onChapter func(done int)) (Result, error) {
	res := Result{Rate: e.GlobalRate(minSentences)}
	e.SetRate(res.Rate)

	var previous *domain.Chapter
	for _, ch := range e.book.Chapters {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !ch.Eligible(minSentences) {
			continue
		}
		if e.structure.IsChapter() {
			if ch.FileIndex() == domain.UnknownFile {
				continue
			}
			e.SetRate(e.ChapterRate(ch))
		}

		e.EstimateChapter(ch, previous)
		res.Sentences += len(ch.Sentences)
		if onChapter != nil {
			onChapter(res.Sentences)
		}
		previous = ch
	}
	return res, nil
}

func (e *Engine) seconds(chars float64) time.Duration {
	if e.rate <= 0 {
		return 0
	}
	return time.Duration(chars / e.rate * float64(time.Second))
}
