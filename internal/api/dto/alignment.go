package dto

import (
	"time"

	"github.com/listenupapp/listenup-align/internal/domain"
)

// BookRequest is the text model and audio of one book.
type BookRequest struct {
	Title      string             `json:"title" minLength:"1" maxLength:"1000" doc:"Book title"`
	Author     string             `json:"author,omitempty" maxLength:"1000" doc:"Book author"`
	Checksum   string             `json:"checksum,omitempty" doc:"Known book checksum; computed from the audio when omitted"`
	AudioFiles []AudioFileRequest `json:"audio_files" minItems:"1" doc:"Audio files in playback order"`
	Chapters   []ChapterRequest   `json:"chapters" minItems:"1" doc:"Chapters in reading order"`
}

// AudioFileRequest names one audio file of a book.
type AudioFileRequest struct {
	Path       string `json:"path" minLength:"1" doc:"Absolute path on the server"`
	DurationMs int64  `json:"duration_ms,omitempty" minimum:"0" doc:"Duration in ms; probed when omitted"`
	Checksum   string `json:"checksum,omitempty" doc:"Known file checksum"`
}

// ChapterRequest is one chapter of the text model.
type ChapterRequest struct {
	Title     string            `json:"title,omitempty" doc:"Chapter title"`
	Sentences []SentenceRequest `json:"sentences" doc:"Sentences in reading order"`
}

// SentenceRequest is one sentence of the text model.
type SentenceRequest struct {
	Text      string `json:"text" minLength:"1" doc:"Sentence text"`
	Grammar   string `json:"grammar,omitempty" doc:"Recognition grammar; derived from text when omitted"`
	CharCount int    `json:"char_count,omitempty" minimum:"0" doc:"Spoken character count; derived from text when omitted"`
}

// ToDomain builds the domain book described by r.
func (r BookRequest) ToDomain() *domain.Book {
	book := &domain.Book{
		Title:      r.Title,
		Author:     r.Author,
		Checksum:   r.Checksum,
		AudioFiles: make([]domain.AudioFile, len(r.AudioFiles)),
		Chapters:   make([]*domain.Chapter, len(r.Chapters)),
	}
	for i, f := range r.AudioFiles {
		book.AudioFiles[i] = domain.AudioFile{
			Path:     f.Path,
			Duration: FromMillis(f.DurationMs),
			Checksum: f.Checksum,
		}
	}
	for i, ch := range r.Chapters {
		chapter := &domain.Chapter{Title: ch.Title, Sentences: make([]*domain.Sentence, len(ch.Sentences))}
		for j, s := range ch.Sentences {
			chapter.Sentences[j] = &domain.Sentence{
				Text:      s.Text,
				Original:  s.Text,
				Grammar:   s.Grammar,
				CharCount: s.CharCount,
			}
		}
		book.Chapters[i] = chapter
	}
	return book
}

// StartAlignmentRequest submits a book for alignment.
type StartAlignmentRequest struct {
	Book BookRequest `json:"book" doc:"Book to align"`
	Mode string      `json:"mode,omitempty" enum:"recognition,estimation" doc:"Alignment mode; recognition when available, otherwise estimation"`
}

// JobResponse describes one alignment job.
type JobResponse struct {
	ID           string     `json:"id" doc:"Job ID"`
	BookChecksum string     `json:"book_checksum" doc:"Checksum of the book being aligned"`
	Title        string     `json:"title" doc:"Book title"`
	Mode         string     `json:"mode" doc:"recognition or estimation"`
	Structure    string     `json:"structure,omitempty" doc:"Detected chapter/audio structure"`
	Status       string     `json:"status" doc:"pending, running, completed, failed or cancelled"`
	Progress     int        `json:"progress" doc:"Progress percentage (0-100)"`
	SuccessRate  int        `json:"success_rate" doc:"Share of sentences located by recognition (0-100)"`
	Error        string     `json:"error,omitempty" doc:"Failure reason"`
	CreatedAt    time.Time  `json:"created_at" doc:"When the job was submitted"`
	StartedAt    *time.Time `json:"started_at,omitempty" doc:"When the job started running"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" doc:"When the job reached a final state"`
}

// NewJobResponse converts a domain job.
func NewJobResponse(j *domain.AlignmentJob) JobResponse {
	return JobResponse{
		ID:           j.ID,
		BookChecksum: j.BookChecksum,
		Title:        j.Title,
		Mode:         string(j.Mode),
		Structure:    string(j.Structure),
		Status:       string(j.Status),
		Progress:     j.Progress,
		SuccessRate:  j.SuccessRate,
		Error:        j.Error,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// NewJobResponses converts a list of domain jobs.
func NewJobResponses(jobs []*domain.AlignmentJob) []JobResponse {
	out := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = NewJobResponse(j)
	}
	return out
}
