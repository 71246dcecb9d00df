package domain

import "time"

// MinSentences is the default number of sentences a chapter needs before it is aligned.
// Shorter chapters (title pages, dedications) are skipped.
const MinSentences = 20

// Chapter is an ordered run of sentences sharing a title.
type Chapter struct {
	Title       string      `json:"title"`
	Sentences   []*Sentence `json:"sentences" validate:"dive,required"`
	SuccessRate int         `json:"success_rate"`
}

// Eligible reports whether the chapter has enough sentences to be aligned.
func (c *Chapter) Eligible(minSentences int) bool {
	return len(c.Sentences) >= minSentences
}

// CharCount returns the total spoken-length weight of the chapter.
func (c *Chapter) CharCount() int {
	return c.CharsBefore(len(c.Sentences))
}

// CharsBefore returns the weight of the sentences preceding index.
func (c *Chapter) CharsBefore(index int) int {
	total := 0
	for i := 0; i < index && i < len(c.Sentences); i++ {
		total += c.Sentences[i].CharCount
	}
	return total
}

// FileIndex returns the audio file assigned to the chapter, or UnknownFile.
func (c *Chapter) FileIndex() int {
	if len(c.Sentences) == 0 {
		return UnknownFile
	}
	return c.Sentences[0].First().FileIndex
}

// AssignFile tags every sentence of the chapter with an audio file.
func (c *Chapter) AssignFile(index int) {
	for _, s := range c.Sentences {
		s.SetFileIndex(index)
	}
}

// LastSentenceWithValues returns the last sentence with a positive position, or nil.
func (c *Chapter) LastSentenceWithValues() *Sentence {
	for i := len(c.Sentences) - 1; i >= 0; i-- {
		if c.Sentences[i].First().Position > 0 {
			return c.Sentences[i]
		}
	}
	return nil
}

// LastEnd returns where the chapter's last placed sentence finishes, and false
// when nothing in the chapter has been placed.
func (c *Chapter) LastEnd() (time.Duration, bool) {
	s := c.LastSentenceWithValues()
	if s == nil {
		return 0, false
	}
	return s.First().End(), true
}

// ValidCount returns how many sentences have both a position and a duration.
func (c *Chapter) ValidCount() int {
	n := 0
	for _, s := range c.Sentences {
		if s.First().IsSet() {
			n++
		}
	}
	return n
}

// GrammarPhrases returns the recognizer phrases for every sentence that has one.
func (c *Chapter) GrammarPhrases() []string {
	phrases := make([]string, 0, len(c.Sentences))
	for _, s := range c.Sentences {
		if s.HasGrammar() {
			phrases = append(phrases, s.Grammar)
		}
	}
	return phrases
}
