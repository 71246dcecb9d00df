// Package sse streams alignment job events to HTTP clients as Server-Sent Events.
package sse

import (
	"time"

	"github.com/listenupapp/listenup-align/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventAlignmentProgress reports a running job's phase and percentage.
	EventAlignmentProgress EventType = "alignment.progress"
	// EventAlignmentCompleted reports a job that stored its timing set.
	EventAlignmentCompleted EventType = "alignment.completed"
	// EventAlignmentFailed reports a job that stopped with an error.
	EventAlignmentFailed EventType = "alignment.failed"
	// EventAlignmentCancelled reports a job stopped on request.
	EventAlignmentCancelled EventType = "alignment.cancelled"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Book limits delivery to clients watching this checksum (not sent to client).
	Book string `json:"-"`
}

// ProgressEventData is the payload of alignment.progress.
type ProgressEventData struct {
	JobID        string `json:"job_id"`
	BookChecksum string `json:"book_checksum"`
	Phase        string `json:"phase"`
	Progress     int    `json:"progress"`
	Chapter      int    `json:"chapter"`
	Units        int    `json:"units"`
	Done         int    `json:"done"`
}

// JobEventData is the payload of the final job events.
type JobEventData struct {
	Job *domain.AlignmentJob `json:"job"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewProgressEvent creates an alignment.progress event.
func NewProgressEvent(data ProgressEventData) Event {
	return Event{
		Type:      EventAlignmentProgress,
		Data:      data,
		Book:      data.BookChecksum,
		Timestamp: time.Now(),
	}
}

// NewJobEvent creates the event matching a finished job's status.
// Jobs that are still active produce no event.
func NewJobEvent(job *domain.AlignmentJob) (Event, bool) {
	var t EventType
	switch job.Status {
	case domain.AlignmentStatusCompleted:
		t = EventAlignmentCompleted
	case domain.AlignmentStatusFailed:
		t = EventAlignmentFailed
	case domain.AlignmentStatusCancelled:
		t = EventAlignmentCancelled
	default:
		return Event{}, false
	}
	snapshot := *job
	return Event{
		Type:      t,
		Data:      JobEventData{Job: &snapshot},
		Book:      job.BookChecksum,
		Timestamp: time.Now(),
	}, true
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: time.Now()},
		Timestamp: time.Now(),
	}
}
