package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-align/internal/align"
	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/logger"
	"github.com/listenupapp/listenup-align/internal/service"
	"github.com/listenupapp/listenup-align/internal/watcher"
)

// ProvideAlignmentService provides the alignment job service. Jobs left
// running by a previous process are marked failed before it accepts work.
// The service shuts down through its own Shutdown, failing running jobs.
func ProvideAlignmentService(i do.Injector) (*service.AlignmentService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	jobs := do.MustInvoke[*JobStoreHandle](i)
	timings := do.MustInvoke[*TimingStoreHandle](i)
	index := do.MustInvoke[*SearchIndexHandle](i)
	events := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)
	aligner := do.MustInvoke[*align.Coordinator](i)

	svc := service.NewAlignmentService(
		jobs.Store,
		timings.Store,
		index.SearchIndex,
		events.Manager,
		aligner,
		m.Metrics,
		cfg.Align,
		log.Component("alignment"),
	)
	if err := svc.Recover(context.Background()); err != nil {
		return nil, fmt.Errorf("recover jobs: %w", err)
	}
	return svc, nil
}

// InboxHandle wraps the request inbox with shutdown capability.
type InboxHandle struct {
	*watcher.Inbox
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *InboxHandle) Shutdown() error {
	if h.Inbox == nil {
		return nil
	}
	h.cancel()
	return h.Inbox.Shutdown()
}

// ProvideInbox provides the request inbox watcher. A disabled inbox yields an
// empty handle.
func ProvideInbox(i do.Injector) (*InboxHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	svc := do.MustInvoke[*service.AlignmentService](i)

	if !cfg.Inbox.Enabled {
		log.Info("Inbox disabled by configuration")
		return &InboxHandle{}, nil
	}

	inbox, err := watcher.NewInbox(cfg.Inbox.Path, svc.SubmitFile, log.Component("inbox"), watcher.Options{IgnoreHidden: true})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := inbox.Run(ctx); err != nil {
			log.Error("Inbox stopped", "error", err)
		}
	}()

	log.Info("Inbox watching", "path", cfg.Inbox.Path)
	return &InboxHandle{Inbox: inbox, cancel: cancel}, nil
}
