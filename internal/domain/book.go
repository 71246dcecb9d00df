// Package domain contains the entities shared by the alignment engine, its
// stores and its API: the book text model, audio positions, structures,
// alignment jobs and persisted timing sets.
package domain

import (
	"path/filepath"
	"time"
)

// Book is the text model of an audiobook together with its narration files.
// It is produced by a text extraction collaborator and mutated in place by the
// aligner, which writes sentence positions.
type Book struct {
	Title       string      `json:"title" validate:"required,max=1000"`
	Author      string      `json:"author,omitempty" validate:"max=1000"`
	Checksum    string      `json:"checksum,omitempty" validate:"omitempty,hexadecimal"`
	AudioFiles  []AudioFile `json:"audio_files" validate:"required,min=1,dive"`
	Chapters    []*Chapter  `json:"chapters" validate:"required,min=1,dive,required"`
	SuccessRate int         `json:"success_rate"`
}

// AudioFile is one narration file. The aligner only reads it.
type AudioFile struct {
	Path     string        `json:"path" validate:"required"`
	Duration time.Duration `json:"duration,omitempty,format:nano" validate:"gte=0"`
	Checksum string        `json:"checksum,omitempty" validate:"omitempty,hexadecimal"`
}

// Name returns the file's base name without its extension.
func (f AudioFile) Name() string {
	base := filepath.Base(f.Path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// Prepare derives computed sentence fields for the whole book.
func (b *Book) Prepare() {
	for _, ch := range b.Chapters {
		for _, s := range ch.Sentences {
			s.Prepare()
		}
	}
}

// ResetPositions clears every sentence position and chapter rate so an
// alignment can start from scratch.
func (b *Book) ResetPositions() {
	b.SuccessRate = 0
	for _, ch := range b.Chapters {
		ch.SuccessRate = 0
		for _, s := range ch.Sentences {
			s.Reset()
		}
	}
}

// AudioPaths returns the audio file paths in order.
func (b *Book) AudioPaths() []string {
	paths := make([]string, len(b.AudioFiles))
	for i, f := range b.AudioFiles {
		paths[i] = f.Path
	}
	return paths
}

// TotalDuration returns the length of the whole book timeline.
func (b *Book) TotalDuration() time.Duration {
	return b.DurationBefore(len(b.AudioFiles))
}

// DurationBefore returns the combined length of the audio files preceding index.
func (b *Book) DurationBefore(index int) time.Duration {
	var total time.Duration
	for i := 0; i < index && i < len(b.AudioFiles); i++ {
		total += b.AudioFiles[i].Duration
	}
	return total
}

// FileIndexAt returns the audio file containing the given book timeline offset.
// Offsets past the end resolve to the last file.
func (b *Book) FileIndexAt(pos time.Duration) int {
	if len(b.AudioFiles) == 0 {
		return UnknownFile
	}
	remaining := pos
	for i, f := range b.AudioFiles {
		remaining -= f.Duration
		if remaining < 0 {
			return i
		}
	}
	return len(b.AudioFiles) - 1
}

// LocalOffset converts a book timeline position into an offset inside its own file.
func (b *Book) LocalOffset(p AudioPosition) time.Duration {
	if p.FileIndex <= 0 {
		return p.Position
	}
	return p.Position - b.DurationBefore(p.FileIndex)
}

// EligibleChapters returns the chapters with at least minSentences sentences,
// with their indexes in the book.
func (b *Book) EligibleChapters(minSentences int) (chapters []*Chapter, indexes []int) {
	for i, ch := range b.Chapters {
		if ch.Eligible(minSentences) {
			chapters = append(chapters, ch)
			indexes = append(indexes, i)
		}
	}
	return chapters, indexes
}

// EligibleSentences counts the sentences that take part in alignment.
func (b *Book) EligibleSentences(minSentences int) int {
	n := 0
	for _, ch := range b.Chapters {
		if ch.Eligible(minSentences) {
			n += len(ch.Sentences)
		}
	}
	return n
}

// EligibleChars sums the weight of every chapter that takes part in alignment.
func (b *Book) EligibleChars(minSentences int) int {
	n := 0
	for _, ch := range b.Chapters {
		if ch.Eligible(minSentences) {
			n += ch.CharCount()
		}
	}
	return n
}
