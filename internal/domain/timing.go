package domain

import (
	"fmt"
	"time"
)

// TimingStatus describes what LoadExisting found for a book.
type TimingStatus string

const (
	TimingStatusNone         TimingStatus = "none"          // nothing stored
	TimingStatusNormal       TimingStatus = "normal"        // stored timings match the book
	TimingStatusMissingAudio TimingStatus = "missing_audio" // stored audio paths no longer exist
	TimingStatusCorrupt      TimingStatus = "corrupt"       // layout or audio changed since the timings were made
	TimingStatusProgress     TimingStatus = "progress"      // only an interrupted run's checkpoint exists
)

// Timing is the persisted result of an alignment run.
// Only eligible chapters are recorded.
type Timing struct {
	BookChecksum     string          `json:"book_checksum"`
	Title            string          `json:"title"`
	Author           string          `json:"author,omitempty"`
	Structure        Structure       `json:"structure"`
	Mode             AlignmentMode   `json:"mode"`
	SuccessRate      int             `json:"success_rate"`
	CharsPerSecond   float64         `json:"chars_per_second"`
	CurrentFileIndex int             `json:"current_file_index"`
	AudioFiles       []AudioFile     `json:"audio_files"`
	Chapters         []ChapterTiming `json:"chapters"`
	CompletedAt      time.Time       `json:"completed_at"`
}

// ChapterTiming holds the authoritative positions of one chapter.
type ChapterTiming struct {
	Index       int             `json:"index"` // position of the chapter in the book
	Title       string          `json:"title"`
	SuccessRate int             `json:"success_rate"`
	Sentences   []AudioPosition `json:"sentences"`
}

// NewTiming snapshots the positions of every eligible chapter of book.
func NewTiming(book *Book, structure Structure, mode AlignmentMode, charsPerSecond float64, minSentences int) *Timing {
	t := &Timing{
		BookChecksum:     book.Checksum,
		Title:            book.Title,
		Author:           book.Author,
		Structure:        structure,
		Mode:             mode,
		SuccessRate:      book.SuccessRate,
		CharsPerSecond:   charsPerSecond,
		CurrentFileIndex: 0,
		AudioFiles:       append([]AudioFile(nil), book.AudioFiles...),
		CompletedAt:      time.Now().UTC(),
	}
	chapters, indexes := book.EligibleChapters(minSentences)
	for i, ch := range chapters {
		t.Chapters = append(t.Chapters, SnapshotChapter(ch, indexes[i]))
	}
	return t
}

// SnapshotChapter copies the authoritative positions of ch.
func SnapshotChapter(ch *Chapter, index int) ChapterTiming {
	ct := ChapterTiming{
		Index:       index,
		Title:       ch.Title,
		SuccessRate: ch.SuccessRate,
		Sentences:   make([]AudioPosition, len(ch.Sentences)),
	}
	for i, s := range ch.Sentences {
		ct.Sentences[i] = s.First()
	}
	return ct
}

// Apply writes stored chapter timings back into book. The layouts must
// already have been checked to match.
func (ct ChapterTiming) Apply(book *Book) error {
	if ct.Index < 0 || ct.Index >= len(book.Chapters) {
		return fmt.Errorf("chapter %d out of range", ct.Index)
	}
	ch := book.Chapters[ct.Index]
	if len(ch.Sentences) != len(ct.Sentences) {
		return fmt.Errorf("chapter %d has %d sentences, timing has %d", ct.Index, len(ch.Sentences), len(ct.Sentences))
	}
	ch.SuccessRate = ct.SuccessRate
	for i, p := range ct.Sentences {
		ch.Sentences[i].Resolve(p)
	}
	return nil
}

// Apply writes every stored chapter timing back into book.
func (t *Timing) Apply(book *Book) error {
	for _, ct := range t.Chapters {
		if err := ct.Apply(book); err != nil {
			return err
		}
	}
	book.SuccessRate = t.SuccessRate
	for i := range book.AudioFiles {
		if i < len(t.AudioFiles) && book.AudioFiles[i].Checksum == "" {
			book.AudioFiles[i].Checksum = t.AudioFiles[i].Checksum
		}
	}
	return nil
}

// Checkpoint records the chapters an unfinished alignment run has completed.
type Checkpoint struct {
	BookChecksum string          `json:"book_checksum"`
	JobID        string          `json:"job_id"`
	Structure    Structure       `json:"structure"`
	Progress     int             `json:"progress"`
	Chapters     []ChapterTiming `json:"chapters"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
