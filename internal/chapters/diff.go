package chapters

import (
	"slices"
	"time"

	"github.com/listenupapp/listenup-align/internal/domain"
	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
)

// Compare returns the per-sentence differences b - a between two timing sets
// of the same book. Sets with different layouts cannot be compared and yield
// a reconciliation error listing the mismatches.
func Compare(a, b *domain.Timing) (*Diff, error) {
	if mismatches := compareLayout(a, b); len(mismatches) > 0 {
		return nil, domainerrors.Reconciliation("timing sets have different layouts", mismatches)
	}

	diff := &Diff{Chapters: make([]ChapterDiff, len(a.Chapters))}
	var all []time.Duration
	for c := range a.Chapters {
		ca, cb := a.Chapters[c], b.Chapters[c]
		cd := ChapterDiff{
			Index:     ca.Index,
			Title:     ca.Title,
			Sentences: make([]SentenceDelta, len(ca.Sentences)),
		}
		positions := make([]time.Duration, len(ca.Sentences))
		for i := range ca.Sentences {
			pa, pb := ca.Sentences[i], cb.Sentences[i]
			cd.Sentences[i] = SentenceDelta{
				Sentence:  i,
				FileIndex: pb.FileIndex - pa.FileIndex,
				Position:  pb.Position - pa.Position,
				Duration:  pb.Duration - pa.Duration,
			}
			positions[i] = cd.Sentences[i].Position
		}
		cd.Average = Average(positions)
		cd.Median = Median(positions)
		diff.Chapters[c] = cd
		all = append(all, positions...)
	}
	diff.Average = Average(all)
	diff.Median = Median(all)
	return diff, nil
}

func compareLayout(a, b *domain.Timing) []Mismatch {
	if len(a.Chapters) != len(b.Chapters) {
		return []Mismatch{{Chapter: -1, Reason: ReasonChapterCount, Expected: len(a.Chapters), Actual: len(b.Chapters)}}
	}
	var out []Mismatch
	for i := range a.Chapters {
		ca, cb := a.Chapters[i], b.Chapters[i]
		if ca.Index != cb.Index {
			out = append(out, Mismatch{Chapter: i, Title: ca.Title, Reason: ReasonChapterIndex, Expected: ca.Index, Actual: cb.Index})
			continue
		}
		if len(ca.Sentences) != len(cb.Sentences) {
			out = append(out, Mismatch{Chapter: ca.Index, Title: ca.Title, Reason: ReasonSentenceCount, Expected: len(ca.Sentences), Actual: len(cb.Sentences)})
		}
	}
	return out
}

// CheckLayout reports how a stored timing set disagrees with book: missing or
// extra eligible chapters, sentence count changes, or a different number of
// audio files. An empty result means the timings can be applied.
func CheckLayout(book *domain.Book, t *domain.Timing, minSentences int) []Mismatch {
	var out []Mismatch
	if len(book.AudioFiles) != len(t.AudioFiles) {
		out = append(out, Mismatch{Chapter: -1, Reason: ReasonAudioCount, Expected: len(t.AudioFiles), Actual: len(book.AudioFiles)})
	}

	chapters, indexes := book.EligibleChapters(minSentences)
	if len(chapters) != len(t.Chapters) {
		return append(out, Mismatch{Chapter: -1, Reason: ReasonChapterCount, Expected: len(t.Chapters), Actual: len(chapters)})
	}
	for i, ct := range t.Chapters {
		if ct.Index != indexes[i] {
			out = append(out, Mismatch{Chapter: indexes[i], Title: chapters[i].Title, Reason: ReasonChapterIndex, Expected: ct.Index, Actual: indexes[i]})
			continue
		}
		if len(ct.Sentences) != len(chapters[i].Sentences) {
			out = append(out, Mismatch{Chapter: ct.Index, Title: ct.Title, Reason: ReasonSentenceCount, Expected: len(ct.Sentences), Actual: len(chapters[i].Sentences)})
		}
	}
	return out
}

// CheckAudio reports stored audio files whose checksum differs from the
// freshly computed one. Empty stored checksums are not compared.
func CheckAudio(t *domain.Timing, checksums []string) []Mismatch {
	var out []Mismatch
	for i, f := range t.AudioFiles {
		if i >= len(checksums) || f.Checksum == "" {
			continue
		}
		if f.Checksum != checksums[i] {
			out = append(out, Mismatch{Chapter: -1, Title: f.Path, Reason: ReasonAudioChanged, Expected: i, Actual: i})
		}
	}
	return out
}

// Average returns the arithmetic mean of values, or zero for none.
func Average(values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range values {
		sum += v
	}
	return sum / time.Duration(len(values))
}

// Median returns the middle value of values, averaging the two middle values
// for even counts, or zero for none.
func Median(values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
