package domain

import (
	"time"

	"github.com/listenupapp/listenup-align/internal/normalize"
)

// Sentence is one unit of text to be located in the audio.
// Positions holds recognition candidates; index 0 is authoritative.
type Sentence struct {
	Text      string          `json:"text" validate:"required"`
	Original  string          `json:"original,omitempty"`
	Grammar   string          `json:"grammar,omitempty"`
	CharCount int             `json:"char_count"`
	Positions []AudioPosition `json:"positions,omitempty"`
}

// NewSentence builds a sentence from raw text, deriving every computed field.
func NewSentence(text string) *Sentence {
	s := &Sentence{Original: text}
	s.Prepare()
	return s
}

// Prepare fills derived fields the text provider left empty and makes sure the
// sentence owns at least one position slot. Short or letterless text never
// carries a grammar.
func (s *Sentence) Prepare() {
	if s.Text == "" {
		s.Text = normalize.Text(s.Original)
	} else {
		s.Text = normalize.Text(s.Text)
	}
	if s.CharCount <= 0 {
		s.CharCount = normalize.CharCount(s.Text)
	}
	// A provider grammar is kept only for text the recognizer can be offered.
	switch grammar := normalize.Grammar(s.Text); {
	case grammar == "":
		s.Grammar = ""
	case s.Grammar == "":
		s.Grammar = grammar
	}
	if len(s.Positions) == 0 {
		s.Positions = []AudioPosition{NewAudioPosition()}
	}
}

// HasGrammar reports whether the sentence was offered to the recognizer.
func (s *Sentence) HasGrammar() bool {
	return s.Grammar != ""
}

// First returns the authoritative position.
func (s *Sentence) First() AudioPosition {
	if len(s.Positions) == 0 {
		return NewAudioPosition()
	}
	return s.Positions[0]
}

// SetFirst replaces the authoritative position.
func (s *Sentence) SetFirst(p AudioPosition) {
	if len(s.Positions) == 0 {
		s.Positions = []AudioPosition{p}
		return
	}
	s.Positions[0] = p
}

// Resolve keeps p as the only position, discarding other candidates.
func (s *Sentence) Resolve(p AudioPosition) {
	s.Positions = append(s.Positions[:0], p)
}

// AddCandidate records a recognition hit. The first hit fills the empty slot;
// later hits are appended for the correction pass to choose from.
func (s *Sentence) AddCandidate(p AudioPosition) {
	if len(s.Positions) == 1 && s.Positions[0].IsEmpty() {
		s.Positions[0] = p
		return
	}
	s.Positions = append(s.Positions, p)
}

// ClosestPosition returns the first candidate starting at or after the given
// offset, or an unset position when there is none.
func (s *Sentence) ClosestPosition(after time.Duration) AudioPosition {
	for _, p := range s.Positions {
		if p.Position >= after {
			return p
		}
	}
	return AudioPosition{}
}

// SetFileIndex tags the authoritative position with an audio file.
func (s *Sentence) SetFileIndex(index int) {
	if len(s.Positions) == 0 {
		s.Positions = []AudioPosition{NewAudioPosition()}
	}
	s.Positions[0].FileIndex = index
}

// Reset drops every candidate and leaves a single unset position.
func (s *Sentence) Reset() {
	s.Positions = append(s.Positions[:0], NewAudioPosition())
}
