package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/logger"
	"github.com/listenupapp/listenup-align/internal/search"
	"github.com/listenupapp/listenup-align/internal/sse"
	"github.com/listenupapp/listenup-align/internal/store"
	"github.com/listenupapp/listenup-align/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Component("sse"))

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{Manager: manager, cancel: cancel}, nil
}

// JobStoreHandle wraps the Badger job store with shutdown capability.
type JobStoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *JobStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideJobStore provides the Badger store of jobs and checkpoints.
func ProvideJobStore(i do.Injector) (*JobStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	path := cfg.Data.JobsPath()
	db, err := store.New(path, log.Component("jobs"))
	if err != nil {
		return nil, err
	}

	log.Info("Job store initialized", "path", path)
	return &JobStoreHandle{Store: db}, nil
}

// TimingStoreHandle wraps the SQLite timing store with shutdown capability.
type TimingStoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *TimingStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideTimingStore provides the SQLite store of timing sets. Interrupted
// runs are looked up in the job store.
func ProvideTimingStore(i do.Injector) (*TimingStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	jobs := do.MustInvoke[*JobStoreHandle](i)

	if err := os.MkdirAll(cfg.Data.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := cfg.Data.TimingsPath()
	db, err := sqlite.Open(path, log.Component("timings"))
	if err != nil {
		return nil, err
	}
	db.SetCheckpointReader(jobs.Store)

	log.Info("Timing store initialized", "path", path)
	return &TimingStoreHandle{Store: db}, nil
}

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve sentence index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: cfg.Data.SearchPath(),
		Logger:   log.Component("search"),
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{SearchIndex: index}, nil
}
