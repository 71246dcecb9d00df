package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// RequestSuffix marks alignment request files in the inbox.
const RequestSuffix = ".book.json"

// Handler submits one request file. It must not keep the path after returning.
type Handler func(ctx context.Context, path string) error

// Inbox turns request files dropped into a directory into alignment jobs.
// Handled files move to .done, rejected ones to .failed, both hidden from the watcher.
type Inbox struct {
	dir     string
	handle  Handler
	watcher *Watcher
	logger  *slog.Logger
}

// NewInbox creates an inbox over dir, creating the directory if needed.
func NewInbox(dir string, handle Handler, logger *slog.Logger, opts Options) (*Inbox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	opts.Suffix = RequestSuffix

	w, err := New(logger, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(dir); err != nil {
		_ = w.Stop()
		return nil, err
	}
	return &Inbox{dir: dir, handle: handle, watcher: w, logger: logger.With("inbox", dir)}, nil
}

// Run submits requests already waiting in the inbox, then every request that
// settles afterwards, until ctx is done.
func (in *Inbox) Run(ctx context.Context) error {
	existing, err := filepath.Glob(filepath.Join(in.dir, "*"+RequestSuffix))
	if err != nil {
		return fmt.Errorf("list inbox: %w", err)
	}

	go func() {
		if err := in.watcher.Start(ctx); err != nil {
			in.logger.Error("inbox watcher stopped", "error", err)
		}
	}()

	for _, path := range existing {
		in.process(ctx, path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-in.watcher.Events():
			if ev.Type == EventSettled {
				in.process(ctx, ev.Path)
			}
		case err := <-in.watcher.Errors():
			in.logger.Warn("inbox watch error", "error", err)
		}
	}
}

func (in *Inbox) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return
	}

	target := ".done"
	if err := in.handle(ctx, path); err != nil {
		if ctx.Err() != nil {
			return
		}
		in.logger.Warn("skipping invalid inbox request", "path", path, "error", err)
		target = ".failed"
	} else {
		in.logger.Info("inbox request submitted", "path", path)
	}

	if err := move(path, filepath.Join(in.dir, target)); err != nil {
		in.logger.Error("failed to move inbox request", "path", path, "error", err)
	}
}

// move renames path into dir, replacing a file of the same name.
func move(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}

// Shutdown stops watching the inbox.
func (in *Inbox) Shutdown() error {
	return in.watcher.Stop()
}

// IsRequest reports whether name looks like an inbox request file.
func IsRequest(name string) bool {
	return strings.HasSuffix(name, RequestSuffix) && !strings.HasPrefix(filepath.Base(name), ".")
}
