package dto

import (
	"time"

	"github.com/listenupapp/listenup-align/internal/chapters"
	"github.com/listenupapp/listenup-align/internal/domain"
	"github.com/listenupapp/listenup-align/internal/search"
	"github.com/listenupapp/listenup-align/internal/store/sqlite"
)

// PositionResponse locates one sentence in the audio.
type PositionResponse struct {
	FileIndex  int   `json:"file_index" doc:"Audio file the sentence starts in (-1 when unknown)"`
	PositionMs int64 `json:"position_ms" doc:"Offset on the book timeline in ms"`
	DurationMs int64 `json:"duration_ms" doc:"Narration length in ms"`
}

// NewPositionResponse converts a domain position.
func NewPositionResponse(p domain.AudioPosition) PositionResponse {
	return PositionResponse{
		FileIndex:  p.FileIndex,
		PositionMs: Millis(p.Position),
		DurationMs: Millis(p.Duration),
	}
}

// ChapterTimingResponse holds the positions of one chapter.
type ChapterTimingResponse struct {
	Index       int                `json:"index" doc:"Chapter index in the book"`
	Title       string             `json:"title" doc:"Chapter title"`
	SuccessRate int                `json:"success_rate" doc:"Share of sentences located by recognition (0-100)"`
	Sentences   []PositionResponse `json:"sentences" doc:"One position per sentence"`
}

// AudioFileResponse describes one aligned audio file.
type AudioFileResponse struct {
	Path       string `json:"path" doc:"Audio file path"`
	DurationMs int64  `json:"duration_ms" doc:"Duration in ms"`
	Checksum   string `json:"checksum,omitempty" doc:"File checksum"`
}

// TimingResponse is a stored timing set.
type TimingResponse struct {
	BookChecksum   string                  `json:"book_checksum" doc:"Book checksum"`
	Title          string                  `json:"title" doc:"Book title"`
	Author         string                  `json:"author,omitempty" doc:"Book author"`
	Structure      string                  `json:"structure" doc:"Chapter/audio structure"`
	Mode           string                  `json:"mode" doc:"Mode that produced the timings"`
	SuccessRate    int                     `json:"success_rate" doc:"Share of sentences located by recognition (0-100)"`
	CharsPerSecond float64                 `json:"chars_per_second" doc:"Narration rate used for estimates"`
	AudioFiles     []AudioFileResponse     `json:"audio_files" doc:"Audio files in playback order"`
	Chapters       []ChapterTimingResponse `json:"chapters" doc:"Eligible chapters"`
	CompletedAt    time.Time               `json:"completed_at" doc:"When the alignment finished"`
}

// NewTimingResponse converts a domain timing set.
func NewTimingResponse(t *domain.Timing) TimingResponse {
	resp := TimingResponse{
		BookChecksum:   t.BookChecksum,
		Title:          t.Title,
		Author:         t.Author,
		Structure:      string(t.Structure),
		Mode:           string(t.Mode),
		SuccessRate:    t.SuccessRate,
		CharsPerSecond: t.CharsPerSecond,
		AudioFiles:     make([]AudioFileResponse, len(t.AudioFiles)),
		Chapters:       newChapterTimings(t.Chapters),
		CompletedAt:    t.CompletedAt,
	}
	for i, f := range t.AudioFiles {
		resp.AudioFiles[i] = AudioFileResponse{Path: f.Path, DurationMs: Millis(f.Duration), Checksum: f.Checksum}
	}
	return resp
}

func newChapterTimings(in []domain.ChapterTiming) []ChapterTimingResponse {
	out := make([]ChapterTimingResponse, len(in))
	for i, ct := range in {
		out[i] = ChapterTimingResponse{
			Index:       ct.Index,
			Title:       ct.Title,
			SuccessRate: ct.SuccessRate,
			Sentences:   make([]PositionResponse, len(ct.Sentences)),
		}
		for j, p := range ct.Sentences {
			out[i].Sentences[j] = NewPositionResponse(p)
		}
	}
	return out
}

// CheckpointResponse is the saved state of an interrupted run.
type CheckpointResponse struct {
	JobID     string                  `json:"job_id" doc:"Job that wrote the checkpoint"`
	Structure string                  `json:"structure" doc:"Chapter/audio structure"`
	Progress  int                     `json:"progress" doc:"Progress percentage when saved"`
	Chapters  []ChapterTimingResponse `json:"chapters" doc:"Completed chapters"`
	UpdatedAt time.Time               `json:"updated_at" doc:"When the checkpoint was saved"`
}

// TimingStatusResponse reports what is stored for a book.
type TimingStatusResponse struct {
	Status     string              `json:"status" doc:"none, normal, missing_audio, corrupt or progress"`
	Timing     *TimingResponse     `json:"timing,omitempty" doc:"Stored timing set"`
	Checkpoint *CheckpointResponse `json:"checkpoint,omitempty" doc:"Checkpoint of an interrupted run"`
	Missing    []string            `json:"missing_audio,omitempty" doc:"Stored audio paths that no longer exist"`
	Mismatches []chapters.Mismatch `json:"mismatches,omitempty" doc:"Ways the stored timings disagree with the book"`
}

// NewTimingStatusResponse converts a load result.
func NewTimingStatusResponse(res *sqlite.LoadResult) TimingStatusResponse {
	resp := TimingStatusResponse{
		Status:     string(res.Status),
		Missing:    res.Missing,
		Mismatches: res.Mismatches,
	}
	if res.Timing != nil {
		t := NewTimingResponse(res.Timing)
		resp.Timing = &t
	}
	if cp := res.Checkpoint; cp != nil {
		resp.Checkpoint = &CheckpointResponse{
			JobID:     cp.JobID,
			Structure: string(cp.Structure),
			Progress:  cp.Progress,
			Chapters:  newChapterTimings(cp.Chapters),
			UpdatedAt: cp.UpdatedAt,
		}
	}
	return resp
}

// CompareRequest names the two timing sets to compare.
type CompareRequest struct {
	A string `json:"a" minLength:"1" doc:"Checksum of the reference timing set"`
	B string `json:"b" minLength:"1" doc:"Checksum of the timing set compared against it"`
}

// SentenceDeltaResponse is the difference b - a for one sentence.
type SentenceDeltaResponse struct {
	Sentence   int   `json:"sentence" doc:"Sentence index in the chapter"`
	FileIndex  int   `json:"file_index" doc:"File index delta"`
	PositionMs int64 `json:"position_ms" doc:"Position delta in ms"`
	DurationMs int64 `json:"duration_ms" doc:"Duration delta in ms"`
}

// ChapterDiffResponse holds the deltas of one chapter.
type ChapterDiffResponse struct {
	Index     int                     `json:"index" doc:"Chapter index in the book"`
	Title     string                  `json:"title" doc:"Chapter title"`
	Sentences []SentenceDeltaResponse `json:"sentences" doc:"Per-sentence deltas"`
	AverageMs int64                   `json:"average_ms" doc:"Average position delta in ms"`
	MedianMs  int64                   `json:"median_ms" doc:"Median position delta in ms"`
}

// DiffResponse compares two timing sets.
type DiffResponse struct {
	Chapters  []ChapterDiffResponse `json:"chapters" doc:"Per-chapter deltas"`
	AverageMs int64                 `json:"average_ms" doc:"Average position delta in ms"`
	MedianMs  int64                 `json:"median_ms" doc:"Median position delta in ms"`
}

// NewDiffResponse converts a timing comparison.
func NewDiffResponse(d *chapters.Diff) DiffResponse {
	resp := DiffResponse{
		Chapters:  make([]ChapterDiffResponse, len(d.Chapters)),
		AverageMs: Millis(d.Average),
		MedianMs:  Millis(d.Median),
	}
	for i, ch := range d.Chapters {
		cd := ChapterDiffResponse{
			Index:     ch.Index,
			Title:     ch.Title,
			Sentences: make([]SentenceDeltaResponse, len(ch.Sentences)),
			AverageMs: Millis(ch.Average),
			MedianMs:  Millis(ch.Median),
		}
		for j, s := range ch.Sentences {
			cd.Sentences[j] = SentenceDeltaResponse{
				Sentence:   s.Sentence,
				FileIndex:  s.FileIndex,
				PositionMs: Millis(s.Position),
				DurationMs: Millis(s.Duration),
			}
		}
		resp.Chapters[i] = cd
	}
	return resp
}

// SearchHitResponse is one sentence matching a search.
type SearchHitResponse struct {
	ID           string  `json:"id" doc:"Document ID"`
	Score        float64 `json:"score" doc:"Relevance score"`
	Book         string  `json:"book" doc:"Book checksum"`
	BookTitle    string  `json:"book_title,omitempty" doc:"Book title"`
	Chapter      int     `json:"chapter" doc:"Chapter index"`
	ChapterTitle string  `json:"chapter_title,omitempty" doc:"Chapter title"`
	Sentence     int     `json:"sentence" doc:"Sentence index in the chapter"`
	Text         string  `json:"text" doc:"Sentence text"`
	FileIndex    int     `json:"file_index" doc:"Audio file the sentence starts in"`
	PositionMs   int64   `json:"position_ms" doc:"Offset on the book timeline in ms"`
	DurationMs   int64   `json:"duration_ms" doc:"Narration length in ms"`
	Highlight    string  `json:"highlight,omitempty" doc:"Text with matches marked"`
}

// SearchResponse holds the matching sentences.
type SearchResponse struct {
	Query  string              `json:"query" doc:"Query as received"`
	Total  uint64              `json:"total" doc:"Total number of matches"`
	TookMs int64               `json:"took_ms" doc:"Search time in ms"`
	Hits   []SearchHitResponse `json:"hits" doc:"Matches on this page"`
}

// NewSearchResponse converts a search result.
func NewSearchResponse(res *search.SearchResult) SearchResponse {
	resp := SearchResponse{
		Query:  res.Query,
		Total:  res.Total,
		TookMs: res.TookMs,
		Hits:   make([]SearchHitResponse, len(res.Hits)),
	}
	for i, h := range res.Hits {
		resp.Hits[i] = SearchHitResponse{
			ID:           h.ID,
			Score:        h.Score,
			Book:         h.Book,
			BookTitle:    h.BookTitle,
			Chapter:      h.Chapter,
			ChapterTitle: h.ChapterTitle,
			Sentence:     h.Sentence,
			Text:         h.Text,
			FileIndex:    h.FileIndex,
			PositionMs:   Millis(h.Position),
			DurationMs:   Millis(h.Duration),
			Highlight:    h.Highlight,
		}
	}
	return resp
}
