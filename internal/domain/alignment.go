package domain

import "time"

// AlignmentStatus represents the state of an alignment job.
type AlignmentStatus string

const (
	AlignmentStatusPending   AlignmentStatus = "pending"
	AlignmentStatusRunning   AlignmentStatus = "running"
	AlignmentStatusCompleted AlignmentStatus = "completed"
	AlignmentStatusFailed    AlignmentStatus = "failed"
	AlignmentStatusCancelled AlignmentStatus = "cancelled"
)

// AlignmentMode selects how sentence timings are produced.
type AlignmentMode string

const (
	AlignmentModeRecognition AlignmentMode = "recognition" // speech recognition with estimation gap fill
	AlignmentModeEstimation  AlignmentMode = "estimation"  // character rate only
)

// Valid reports whether m is a known mode.
func (m AlignmentMode) Valid() bool {
	return m == AlignmentModeRecognition || m == AlignmentModeEstimation
}

// AlignmentJob tracks one alignment run of one book.
type AlignmentJob struct {
	ID           string          `json:"id"`
	BookChecksum string          `json:"book_checksum"`
	Title        string          `json:"title"`
	Mode         AlignmentMode   `json:"mode"`
	Structure    Structure       `json:"structure,omitempty"`
	Status       AlignmentStatus `json:"status"`
	Progress     int             `json:"progress"` // 0-100
	SuccessRate  int             `json:"success_rate"`
	Error        string          `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsActive reports whether the job has not reached a final state.
func (j *AlignmentJob) IsActive() bool {
	return j.Status == AlignmentStatusPending || j.Status == AlignmentStatusRunning
}

// MarkRunning transitions the job to running state.
func (j *AlignmentJob) MarkRunning() {
	j.Status = AlignmentStatusRunning
	now := time.Now()
	j.StartedAt = &now
	j.Progress = 0
}

// MarkCompleted transitions the job to completed state.
func (j *AlignmentJob) MarkCompleted(structure Structure, successRate int) {
	j.Status = AlignmentStatusCompleted
	j.Structure = structure
	j.SuccessRate = successRate
	j.Progress = 100
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed state with an error message.
func (j *AlignmentJob) MarkFailed(err string) {
	j.Status = AlignmentStatusFailed
	j.Error = err
	now := time.Now()
	j.CompletedAt = &now
}

// MarkCancelled transitions the job to cancelled state.
func (j *AlignmentJob) MarkCancelled() {
	j.Status = AlignmentStatusCancelled
	now := time.Now()
	j.CompletedAt = &now
}

// SetProgress updates the job's progress percentage. Progress never moves backwards.
func (j *AlignmentJob) SetProgress(percent int) {
	if percent > 100 {
		percent = 100
	}
	if percent < j.Progress {
		return
	}
	j.Progress = percent
}
