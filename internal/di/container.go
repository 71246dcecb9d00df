// Package di provides dependency injection configuration for the alignment server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-align/internal/align"
	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/di/providers"
	"github.com/listenupapp/listenup-align/internal/logger"
	"github.com/listenupapp/listenup-align/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideJobStore)
	do.Provide(injector, providers.ProvideTimingStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Alignment
	do.Provide(injector, providers.ProvideAligner)
	do.Provide(injector, providers.ProvideAlignmentService)

	// Workers
	do.Provide(injector, providers.ProvideInbox)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. Invoking the leaves is enough to build
// the graph; the rest are listed so failures surface in a predictable order.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	steps := []func() error{
		invoke[*providers.MetricsHandle](injector),
		invoke[*providers.SSEManagerHandle](injector),
		invoke[*providers.JobStoreHandle](injector),
		invoke[*providers.TimingStoreHandle](injector),
		invoke[*providers.SearchIndexHandle](injector),
		invoke[*align.Coordinator](injector),
		invoke[*service.AlignmentService](injector),
		invoke[*providers.InboxHandle](injector),
		invoke[*providers.HTTPServerHandle](injector),
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](injector do.Injector) func() error {
	return func() error {
		_, err := do.Invoke[T](injector)
		return err
	}
}
