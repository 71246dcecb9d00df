package domain

import "time"

// UnknownFile marks an AudioPosition whose audio file has not been resolved.
const UnknownFile = -1

// AudioPosition locates a span of narration on the book timeline, which is every
// audio file of the book played back to back. FileIndex names the file the span
// starts in.
//
// A zero Position and Duration mean "unset". Zero is also a legitimate offset
// (the very start of the book), so callers use IsEmpty/IsSet and the surrounding
// sentences rather than comparing fields directly. The zero encoding is kept
// because persisted timing sets depend on it.
type AudioPosition struct {
	FileIndex int           `json:"file_index"`
	Position  time.Duration `json:"position,format:nano"`
	Duration  time.Duration `json:"duration,format:nano"`
}

// NewAudioPosition returns an unset position with an unknown file.
func NewAudioPosition() AudioPosition {
	return AudioPosition{FileIndex: UnknownFile}
}

// End returns the offset where the span finishes.
func (p AudioPosition) End() time.Duration {
	return p.Position + p.Duration
}

// IsSet reports whether both position and duration carry a value.
func (p AudioPosition) IsSet() bool {
	return p.Position != 0 && p.Duration != 0
}

// IsEmpty reports whether neither position nor duration carry a value.
func (p AudioPosition) IsEmpty() bool {
	return p.Position == 0 && p.Duration == 0
}

// Clear resets position and duration, keeping the file index.
func (p *AudioPosition) Clear() {
	p.Position = 0
	p.Duration = 0
}
