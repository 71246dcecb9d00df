package store

import (
	"cmp"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/listenup-align/internal/domain"
)

const (
	jobPrefix        = "job:"
	checkpointPrefix = "checkpoint:"
)

// CreateJob stores a new alignment job.
// Returns ErrAlreadyExists if a job with this ID already exists.
func (s *Store) CreateJob(ctx context.Context, job *domain.AlignmentJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal alignment job: %w", err)
	}

	key := buildKey(jobPrefix, job.ID)
	defer releaseKey(key)

	return s.db.Update(func(txn *badger.Txn) error {
		found, err := exists(txn, key)
		if err != nil {
			return fmt.Errorf("check existing: %w", err)
		}
		if found {
			return ErrAlreadyExists
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set job: %w", err)
		}
		return setJobIndexes(txn, job)
	})
}

// GetJob retrieves an alignment job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.AlignmentJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := buildKey(jobPrefix, id)
	defer releaseKey(key)

	var job domain.AlignmentJob
	if err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, key, &job)
	}); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob replaces an existing job, moving its status index.
func (s *Store) UpdateJob(ctx context.Context, job *domain.AlignmentJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal alignment job: %w", err)
	}

	key := []byte(jobPrefix + job.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		var old domain.AlignmentJob
		if err := get(txn, key, &old); err != nil {
			return err
		}
		if err := deleteJobIndexes(txn, &old); err != nil {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set job: %w", err)
		}
		return setJobIndexes(txn, job)
	})
}

// DeleteJob deletes a job by ID. Deleting a missing job is not an error.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(jobPrefix + id)
	return s.db.Update(func(txn *badger.Txn) error {
		var job domain.AlignmentJob
		err := get(txn, key, &job)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := deleteJobIndexes(txn, &job); err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// ListJobsByBook returns all jobs for a book checksum, newest first.
func (s *Store) ListJobsByBook(ctx context.Context, checksum string) ([]*domain.AlignmentJob, error) {
	return s.listJobsByIndex(ctx, "book", checksum)
}

// ListJobsByStatus returns all jobs with the given status, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status domain.AlignmentStatus) ([]*domain.AlignmentJob, error) {
	return s.listJobsByIndex(ctx, "status", string(status))
}

func (s *Store) listJobsByIndex(ctx context.Context, name, value string) ([]*domain.AlignmentJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	indexPrefix := []byte(jobPrefix + "idx:" + name + ":" + value + ":")
	var jobs []*domain.AlignmentJob

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = indexPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			jobID := strings.TrimPrefix(string(it.Item().Key()), string(indexPrefix))

			var job domain.AlignmentJob
			err := get(txn, []byte(jobPrefix+jobID), &job)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			jobs = append(jobs, &job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(jobs)
	return jobs, nil
}

// ListJobs returns an iterator over all alignment jobs in key order.
func (s *Store) ListJobs(ctx context.Context) iter.Seq2[*domain.AlignmentJob, error] {
	return func(yield func(*domain.AlignmentJob, error) bool) {
		_ = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(jobPrefix)

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return err
				}

				// Skip index keys
				if strings.HasPrefix(string(it.Item().Key()), jobPrefix+"idx:") {
					continue
				}

				var job domain.AlignmentJob
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &job)
				}); err != nil {
					yield(nil, err)
					return err
				}
				if !yield(&job, nil) {
					return nil
				}
			}
			return nil
		})
	}
}

// FailInterruptedJobs marks jobs left pending or running by a previous
// process as failed. Returns the number of jobs updated.
func (s *Store) FailInterruptedJobs(ctx context.Context) (int, error) {
	count := 0
	for _, status := range []domain.AlignmentStatus{domain.AlignmentStatusPending, domain.AlignmentStatusRunning} {
		jobs, err := s.ListJobsByStatus(ctx, status)
		if err != nil {
			return count, err
		}
		for _, job := range jobs {
			job.MarkFailed("interrupted by server shutdown")
			if err := s.UpdateJob(ctx, job); err != nil {
				return count, err
			}
			count++
		}
	}
	if count > 0 && s.logger != nil {
		s.logger.Info("marked interrupted alignment jobs as failed", "count", count)
	}
	return count, nil
}

func setJobIndexes(txn *badger.Txn, job *domain.AlignmentJob) error {
	for _, idx := range jobIndexKeys(job) {
		if err := txn.Set(idx, []byte(job.ID)); err != nil {
			return fmt.Errorf("set job index: %w", err)
		}
	}
	return nil
}

func deleteJobIndexes(txn *badger.Txn, job *domain.AlignmentJob) error {
	for _, idx := range jobIndexKeys(job) {
		if err := txn.Delete(idx); err != nil {
			return fmt.Errorf("delete job index: %w", err)
		}
	}
	return nil
}

// jobIndexKeys returns non-unique index keys. The job ID is part of the key
// so several jobs can share a book or status.
func jobIndexKeys(job *domain.AlignmentJob) [][]byte {
	return [][]byte{
		[]byte(jobPrefix + "idx:book:" + job.BookChecksum + ":" + job.ID),
		[]byte(jobPrefix + "idx:status:" + string(job.Status) + ":" + job.ID),
	}
}

func sortNewestFirst(jobs []*domain.AlignmentJob) {
	slices.SortFunc(jobs, func(a, b *domain.AlignmentJob) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
