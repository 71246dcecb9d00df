package service

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
)

// ReadRequest decodes a book request file. Relative audio paths are resolved
// against the file's directory.
func ReadRequest(path string) (*StartRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	var req StartRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeValidation, "invalid request file %s", filepath.Base(path))
	}
	if req.Book != nil {
		dir := filepath.Dir(path)
		for i, f := range req.Book.AudioFiles {
			if f.Path != "" && !filepath.IsAbs(f.Path) {
				req.Book.AudioFiles[i].Path = filepath.Join(dir, f.Path)
			}
		}
	}
	return &req, nil
}

// SubmitFile starts a job for a request file dropped into the inbox.
func (s *AlignmentService) SubmitFile(ctx context.Context, path string) error {
	req, err := ReadRequest(path)
	if err != nil {
		return err
	}
	job, err := s.Start(ctx, *req)
	if err != nil {
		return err
	}
	s.logger.Info("inbox request submitted",
		slog.String("file", filepath.Base(path)),
		slog.String("job_id", job.ID))
	return nil
}
