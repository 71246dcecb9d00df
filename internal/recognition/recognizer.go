// Package recognition defines the speech recognition capability the aligner
// drives, the gate it waits on, and an implementation backed by an external
// recognizer process.
package recognition

import (
	"context"
	"io"
	"time"

	"github.com/listenupapp/listenup-align/internal/audio"
)

// Event is one recognized utterance. Position is measured from the first byte
// of the audio handed to the session.
type Event struct {
	Text       string
	Position   time.Duration
	Duration   time.Duration
	Confidence float64
	// Err is set on the final event of a session that failed.
	Err error
}

// Request configures one recognition session.
type Request struct {
	SessionID string
	Audio     io.Reader
	Format    audio.Format
	// Grammars are the exact phrases the recognizer should listen for.
	Grammars []string
}

// Recognizer turns a PCM stream into utterance events.
//
// The returned channel is closed once the audio reader is exhausted, which is
// the session's completion signal. Implementations must also close it promptly
// when ctx is cancelled. Sessions are single use; a new one is started for
// every unit of work so no grammar state carries over.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (<-chan Event, error)
}
