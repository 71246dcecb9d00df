package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/listenupapp/listenup-align/internal/domain"
	"github.com/listenupapp/listenup-align/internal/store"
)

// TimingSummary is one row of ListTimings.
type TimingSummary struct {
	BookChecksum string               `json:"book_checksum"`
	Title        string               `json:"title"`
	Author       string               `json:"author,omitempty"`
	Structure    domain.Structure     `json:"structure"`
	Mode         domain.AlignmentMode `json:"mode"`
	SuccessRate  int                  `json:"success_rate"`
	CompletedAt  time.Time            `json:"completed_at"`
}

// SaveTiming replaces the stored timing set of t.BookChecksum in one transaction.
func (s *Store) SaveTiming(ctx context.Context, t *domain.Timing) error {
	if t.BookChecksum == "" {
		return fmt.Errorf("save timing: empty book checksum")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM timings WHERE book_checksum = ?`, t.BookChecksum); err != nil {
		return fmt.Errorf("delete previous timing: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO timings (
			book_checksum, title, author, structure, mode,
			success_rate, chars_per_second, current_file_index, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.BookChecksum,
		t.Title,
		t.Author,
		string(t.Structure),
		string(t.Mode),
		t.SuccessRate,
		t.CharsPerSecond,
		t.CurrentFileIndex,
		formatTime(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert timing: %w", err)
	}

	fileStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO timing_audio_files (book_checksum, file_index, path, duration_ns, checksum)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audio file insert: %w", err)
	}
	defer fileStmt.Close()

	for i, f := range t.AudioFiles {
		if _, err := fileStmt.ExecContext(ctx, t.BookChecksum, i, f.Path, int64(f.Duration), f.Checksum); err != nil {
			return fmt.Errorf("insert audio file %d: %w", i, err)
		}
	}

	chapterStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO timing_chapters (book_checksum, chapter_index, title, success_rate)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chapter insert: %w", err)
	}
	defer chapterStmt.Close()

	sentenceStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO timing_sentences (
			book_checksum, chapter_index, sentence_index, file_index, position_ns, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sentence insert: %w", err)
	}
	defer sentenceStmt.Close()

	for _, ch := range t.Chapters {
		if _, err := chapterStmt.ExecContext(ctx, t.BookChecksum, ch.Index, ch.Title, ch.SuccessRate); err != nil {
			return fmt.Errorf("insert chapter %d: %w", ch.Index, err)
		}
		for i, p := range ch.Sentences {
			if _, err := sentenceStmt.ExecContext(ctx,
				t.BookChecksum, ch.Index, i, p.FileIndex, int64(p.Position), int64(p.Duration),
			); err != nil {
				return fmt.Errorf("insert sentence %d/%d: %w", ch.Index, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit timing: %w", err)
	}

	s.logger.Debug("timing saved",
		"checksum", t.BookChecksum,
		"chapters", len(t.Chapters),
		"success_rate", t.SuccessRate,
	)
	return nil
}

// GetTiming loads the stored timing set of a book.
// Returns store.ErrNotFound if none is stored.
func (s *Store) GetTiming(ctx context.Context, checksum string) (*domain.Timing, error) {
	var (
		t           domain.Timing
		structure   string
		mode        string
		completedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT book_checksum, title, author, structure, mode,
			success_rate, chars_per_second, current_file_index, completed_at
		FROM timings WHERE book_checksum = ?`, checksum).Scan(
		&t.BookChecksum,
		&t.Title,
		&t.Author,
		&structure,
		&mode,
		&t.SuccessRate,
		&t.CharsPerSecond,
		&t.CurrentFileIndex,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get timing: %w", err)
	}
	t.Structure = domain.Structure(structure)
	t.Mode = domain.AlignmentMode(mode)
	if t.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	if t.AudioFiles, err = s.audioFiles(ctx, checksum); err != nil {
		return nil, err
	}
	if t.Chapters, err = s.chapterTimings(ctx, checksum); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) audioFiles(ctx context.Context, checksum string) ([]domain.AudioFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, duration_ns, checksum FROM timing_audio_files
		WHERE book_checksum = ? ORDER BY file_index`, checksum)
	if err != nil {
		return nil, fmt.Errorf("query audio files: %w", err)
	}
	defer rows.Close()

	var files []domain.AudioFile
	for rows.Next() {
		var (
			f   domain.AudioFile
			dur int64
		)
		if err := rows.Scan(&f.Path, &dur, &f.Checksum); err != nil {
			return nil, fmt.Errorf("scan audio file: %w", err)
		}
		f.Duration = time.Duration(dur)
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *Store) chapterTimings(ctx context.Context, checksum string) ([]domain.ChapterTiming, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chapter_index, title, success_rate FROM timing_chapters
		WHERE book_checksum = ? ORDER BY chapter_index`, checksum)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}

	var chapters []domain.ChapterTiming
	byIndex := make(map[int]int)
	for rows.Next() {
		var ct domain.ChapterTiming
		if err := rows.Scan(&ct.Index, &ct.Title, &ct.SuccessRate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		byIndex[ct.Index] = len(chapters)
		chapters = append(chapters, ct)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT chapter_index, file_index, position_ns, duration_ns FROM timing_sentences
		WHERE book_checksum = ? ORDER BY chapter_index, sentence_index`, checksum)
	if err != nil {
		return nil, fmt.Errorf("query sentences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chapter  int
			p        domain.AudioPosition
			pos, dur int64
		)
		if err := rows.Scan(&chapter, &p.FileIndex, &pos, &dur); err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		p.Position = time.Duration(pos)
		p.Duration = time.Duration(dur)
		ci := byIndex[chapter]
		chapters[ci].Sentences = append(chapters[ci].Sentences, p)
	}
	return chapters, rows.Err()
}

// DeleteTiming removes a book's timing set. Deleting a missing set is not an error.
func (s *Store) DeleteTiming(ctx context.Context, checksum string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timings WHERE book_checksum = ?`, checksum); err != nil {
		return fmt.Errorf("delete timing: %w", err)
	}
	return nil
}

// ListTimings returns an iterator over all stored timing sets, most recent first.
func (s *Store) ListTimings(ctx context.Context) iter.Seq2[*TimingSummary, error] {
	return func(yield func(*TimingSummary, error) bool) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT book_checksum, title, author, structure, mode, success_rate, completed_at
			FROM timings ORDER BY completed_at DESC`)
		if err != nil {
			yield(nil, fmt.Errorf("query timings: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				ts          TimingSummary
				structure   string
				mode        string
				completedAt string
			)
			if err := rows.Scan(&ts.BookChecksum, &ts.Title, &ts.Author, &structure, &mode, &ts.SuccessRate, &completedAt); err != nil {
				yield(nil, fmt.Errorf("scan timing: %w", err))
				return
			}
			ts.Structure = domain.Structure(structure)
			ts.Mode = domain.AlignmentMode(mode)
			if ts.CompletedAt, err = parseTime(completedAt); err != nil {
				yield(nil, fmt.Errorf("parse completed_at: %w", err))
				return
			}
			if !yield(&ts, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}
