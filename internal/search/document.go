// Package search indexes aligned sentences with Bleve so a phrase can be
// looked up to the place in the audio where it is narrated.
package search

import (
	"fmt"
	"time"

	"github.com/listenupapp/listenup-align/internal/domain"
)

// SentenceDocument is one aligned sentence in the index.
type SentenceDocument struct {
	ID           string `json:"id"`   // <book>/<chapter>/<sentence>
	Book         string `json:"book"` // book checksum
	BookTitle    string `json:"book_title"`
	Chapter      int    `json:"chapter"`
	ChapterTitle string `json:"chapter_title"`
	Sentence     int    `json:"sentence"`
	Text         string `json:"text"`

	FileIndex int   `json:"file_index"`
	Position  int64 `json:"position"` // Milliseconds on the book timeline
	Duration  int64 `json:"duration"` // Milliseconds
}

// DocumentID builds the ID of a sentence document.
func DocumentID(book string, chapter, sentence int) string {
	return fmt.Sprintf("%s/%d/%d", book, chapter, sentence)
}

// ToMap converts the document to a map for Bleve indexing.
// The keys match the field names in the index mapping.
func (d *SentenceDocument) ToMap() map[string]any {
	return map[string]any{
		"id":            d.ID,
		"book":          d.Book,
		"book_title":    d.BookTitle,
		"chapter":       float64(d.Chapter),
		"chapter_title": d.ChapterTitle,
		"sentence":      float64(d.Sentence),
		"text":          d.Text,
		"file_index":    float64(d.FileIndex),
		"position":      float64(d.Position),
		"duration":      float64(d.Duration),
	}
}

// DocumentsFromTiming builds a document for every placed sentence of t,
// taking the text from book. Sentences without a position are skipped.
func DocumentsFromTiming(book *domain.Book, t *domain.Timing) []*SentenceDocument {
	var docs []*SentenceDocument
	for _, ct := range t.Chapters {
		if ct.Index < 0 || ct.Index >= len(book.Chapters) {
			continue
		}
		ch := book.Chapters[ct.Index]
		for i, p := range ct.Sentences {
			if i >= len(ch.Sentences) || p.IsEmpty() {
				continue
			}
			docs = append(docs, &SentenceDocument{
				ID:           DocumentID(t.BookChecksum, ct.Index, i),
				Book:         t.BookChecksum,
				BookTitle:    t.Title,
				Chapter:      ct.Index,
				ChapterTitle: ct.Title,
				Sentence:     i,
				Text:         ch.Sentences[i].Text,
				FileIndex:    p.FileIndex,
				Position:     p.Position.Milliseconds(),
				Duration:     p.Duration.Milliseconds(),
			})
		}
	}
	return docs
}

// millis converts a stored millisecond count back to a duration.
func millis(ms float64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
