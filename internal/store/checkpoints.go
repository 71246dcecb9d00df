package store

import (
	"context"
	"errors"
	"time"

	"github.com/listenupapp/listenup-align/internal/domain"
	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
)

// SaveCheckpoint stores cp as the only checkpoint of its book, replacing any
// earlier one.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	if cp.BookChecksum == "" {
		return domainerrors.Validation("checkpoint requires a book checksum")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}

	// A job index left by another book's checkpoint would conflict.
	if cp.JobID != "" {
		if other, err := s.Checkpoints.GetByIndex(ctx, "job", cp.JobID); err == nil && other.BookChecksum != cp.BookChecksum {
			if err := s.Checkpoints.Delete(ctx, other.BookChecksum); err != nil {
				return err
			}
		}
	}
	return s.Checkpoints.Put(ctx, cp.BookChecksum, cp)
}

// GetCheckpoint returns the checkpoint of a book.
// Returns ErrNotFound when the book has none.
func (s *Store) GetCheckpoint(ctx context.Context, checksum string) (*domain.Checkpoint, error) {
	return s.Checkpoints.Get(ctx, checksum)
}

// GetCheckpointByJob returns the checkpoint written by a job.
func (s *Store) GetCheckpointByJob(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	return s.Checkpoints.GetByIndex(ctx, "job", jobID)
}

// DeleteCheckpoint removes a book's checkpoint. Missing checkpoints are ignored.
func (s *Store) DeleteCheckpoint(ctx context.Context, checksum string) error {
	return s.Checkpoints.Delete(ctx, checksum)
}

// HasCheckpoint reports whether a book has an unfinished run recorded.
func (s *Store) HasCheckpoint(ctx context.Context, checksum string) (bool, error) {
	_, err := s.GetCheckpoint(ctx, checksum)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
