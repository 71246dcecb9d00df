// Package chapters matches book chapters to audio files and compares timing
// sets produced for the same book.
package chapters

import (
	"time"

	"github.com/listenupapp/listenup-align/internal/domain"
)

// Detection is the result of matching chapter titles to audio file names.
type Detection struct {
	Structure domain.Structure `json:"structure"`
	// ChapterFiles holds, per chapter, the matched file index or domain.UnknownFile.
	ChapterFiles []int `json:"chapter_files"`
	Matches      int   `json:"matches"`
}

// SentenceDelta is the difference b - a for one sentence.
type SentenceDelta struct {
	Sentence  int           `json:"sentence"`
	FileIndex int           `json:"file_index"`
	Position  time.Duration `json:"position,format:nano"`
	Duration  time.Duration `json:"duration,format:nano"`
}

// ChapterDiff holds the sentence deltas of one chapter.
type ChapterDiff struct {
	Index     int             `json:"index"`
	Title     string          `json:"title"`
	Sentences []SentenceDelta `json:"sentences"`
	Average   time.Duration   `json:"average,format:nano"`
	Median    time.Duration   `json:"median,format:nano"`
}

// Diff compares two timing sets of the same book.
type Diff struct {
	Chapters []ChapterDiff `json:"chapters"`
	Average  time.Duration `json:"average,format:nano"`
	Median   time.Duration `json:"median,format:nano"`
}

// Mismatch describes one way a stored timing set disagrees with a book layout.
type Mismatch struct {
	Chapter  int    `json:"chapter"`
	Title    string `json:"title,omitempty"`
	Reason   string `json:"reason"`
	Expected int    `json:"expected"`
	Actual   int    `json:"actual"`
}

// Mismatch reasons.
const (
	ReasonChapterCount  = "chapter_count"
	ReasonSentenceCount = "sentence_count"
	ReasonChapterIndex  = "chapter_index"
	ReasonAudioCount    = "audio_count"
	ReasonAudioChanged  = "audio_changed"
)
