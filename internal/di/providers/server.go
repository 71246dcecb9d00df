package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-align/internal/api"
	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/logger"
	"github.com/listenupapp/listenup-align/internal/ratelimit"
	"github.com/listenupapp/listenup-align/internal/service"
)

// Version is reported in the OpenAPI document.
var Version = "dev"

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	limiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	defer h.limiter.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts it in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	jobs := do.MustInvoke[*JobStoreHandle](i)
	timings := do.MustInvoke[*TimingStoreHandle](i)
	index := do.MustInvoke[*SearchIndexHandle](i)
	events := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*MetricsHandle](i)
	alignment := do.MustInvoke[*service.AlignmentService](i)

	limiter := ratelimit.PerMinute(float64(cfg.RateLimit.JobsPerMinute), cfg.RateLimit.Burst)

	handler := api.NewServer(&api.Services{
		Alignment: alignment,
		Jobs:      jobs.Store,
		Timings:   timings.Store,
		Search:    index.SearchIndex,
		Events:    events.Manager,
		Metrics:   m.Metrics,
		Gatherer:  m.Registry,
		Limiter:   limiter,
	}, api.Options{
		Version:     Version,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, log.Component("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, limiter: limiter}, nil
}
