package sqlite

import (
	"context"
	"errors"
	"os"

	"github.com/listenupapp/listenup-align/internal/chapters"
	"github.com/listenupapp/listenup-align/internal/domain"
	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
	"github.com/listenupapp/listenup-align/internal/store"
)

// LoadResult is what LoadExisting found for a book.
type LoadResult struct {
	Status     domain.TimingStatus `json:"status"`
	Timing     *domain.Timing      `json:"timing,omitempty"`
	Checkpoint *domain.Checkpoint  `json:"checkpoint,omitempty"`
	Missing    []string            `json:"missing_audio,omitempty"`
	Mismatches []chapters.Mismatch `json:"mismatches,omitempty"`
}

// LoadExisting looks up stored positions for book and, when they still fit,
// writes them into its sentences.
//
// Audio checksums already present on book.AudioFiles are compared against the
// stored ones. A corrupt result is returned together with a RECONCILIATION
// error whose details list the mismatches.
func (s *Store) LoadExisting(ctx context.Context, book *domain.Book, minSentences int) (*LoadResult, error) {
	if book.Checksum == "" {
		return nil, domainerrors.Validation("book checksum is required to look up timings")
	}

	t, err := s.GetTiming(ctx, book.Checksum)
	if errors.Is(err, store.ErrNotFound) {
		return s.loadCheckpoint(ctx, book)
	}
	if err != nil {
		return nil, err
	}

	res := &LoadResult{Timing: t}
	for _, f := range t.AudioFiles {
		if _, err := os.Stat(f.Path); err != nil {
			res.Missing = append(res.Missing, f.Path)
		}
	}
	if len(res.Missing) > 0 {
		res.Status = domain.TimingStatusMissingAudio
		return res, nil
	}

	res.Mismatches = chapters.CheckLayout(book, t, minSentences)
	if sums, ok := audioChecksums(book); ok {
		res.Mismatches = append(res.Mismatches, chapters.CheckAudio(t, sums)...)
	}
	if len(res.Mismatches) > 0 {
		return corrupt(res)
	}

	if err := t.Apply(book); err != nil {
		res.Mismatches = []chapters.Mismatch{{Chapter: -1, Reason: chapters.ReasonSentenceCount}}
		return corrupt(res)
	}
	res.Status = domain.TimingStatusNormal
	return res, nil
}

func (s *Store) loadCheckpoint(ctx context.Context, book *domain.Book) (*LoadResult, error) {
	none := &LoadResult{Status: domain.TimingStatusNone}
	if s.checkpoints == nil {
		return none, nil
	}

	cp, err := s.checkpoints.GetCheckpoint(ctx, book.Checksum)
	if errors.Is(err, store.ErrNotFound) {
		return none, nil
	}
	if err != nil {
		return nil, err
	}

	res := &LoadResult{Status: domain.TimingStatusProgress, Checkpoint: cp}
	for _, ct := range cp.Chapters {
		if err := ct.Apply(book); err != nil {
			res.Mismatches = append(res.Mismatches, chapters.Mismatch{
				Chapter:  ct.Index,
				Title:    ct.Title,
				Reason:   chapters.ReasonSentenceCount,
				Expected: len(ct.Sentences),
			})
		}
	}
	if len(res.Mismatches) > 0 {
		return corrupt(res)
	}
	return res, nil
}

func corrupt(res *LoadResult) (*LoadResult, error) {
	res.Status = domain.TimingStatusCorrupt
	return res, domainerrors.Reconciliation("stored timings do not match this book", res.Mismatches)
}

// audioChecksums returns the book's file checksums when every file has one.
func audioChecksums(book *domain.Book) ([]string, bool) {
	if len(book.AudioFiles) == 0 {
		return nil, false
	}
	sums := make([]string, len(book.AudioFiles))
	for i, f := range book.AudioFiles {
		if f.Checksum == "" {
			return nil, false
		}
		sums[i] = f.Checksum
	}
	return sums, true
}
