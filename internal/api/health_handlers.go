package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status      string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components  map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
	Recognition bool                       `json:"recognition" doc:"Whether recognition mode is available"`
	RunningJobs int                        `json:"running_jobs" doc:"Alignment jobs currently running"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"jobs":    s.checkJobStore(),
		"timings": s.checkTimingStore(ctx),
		"search":  s.checkSearchIndex(),
		"sse":     s.checkSSEManager(),
	}

	overall := statusHealthy
	for _, c := range components {
		switch {
		case c.Status == statusUnhealthy:
			overall = statusUnhealthy
		case c.Status == statusDegraded && overall == statusHealthy:
			overall = statusDegraded
		}
	}

	resp := HealthResponse{Status: overall, Components: components}
	if a := s.services.Alignment; a != nil {
		resp.Recognition = a.CanRecognize()
		resp.RunningJobs = a.RunningCount()
	}
	return &HealthOutput{Body: resp}, nil
}

// checkJobStore verifies Badger is readable.
func (s *Server) checkJobStore() ComponentHealth {
	if s.services.Jobs == nil {
		return ComponentHealth{Status: statusDegraded, Message: "job store not configured"}
	}
	start := time.Now()
	err := s.services.Jobs.Ping()
	return pingHealth(err, time.Since(start), "job store read failed")
}

// checkTimingStore verifies SQLite answers.
func (s *Server) checkTimingStore(ctx context.Context) ComponentHealth {
	if s.services.Timings == nil {
		return ComponentHealth{Status: statusDegraded, Message: "timing store not configured"}
	}
	start := time.Now()
	err := s.services.Timings.Ping(ctx)
	return pingHealth(err, time.Since(start), "timing store unreachable")
}

func pingHealth(err error, latency time.Duration, failure string) ComponentHealth {
	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: latency.String(), Message: failure}
	}
	return ComponentHealth{Status: statusHealthy, Latency: latency.String()}
}

// checkSearchIndex verifies the Bleve index is accessible. Search is optional,
// so a missing index only degrades the service.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services.Search == nil {
		return ComponentHealth{Status: statusDegraded, Message: "search index not configured"}
	}

	start := time.Now()
	docCount, err := s.services.Search.DocumentCount()
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: latency.String(), Message: "search index unreachable"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Latency: latency.String(),
		Message: fmt.Sprintf("%d sentences indexed", docCount),
	}
}

// checkSSEManager reports the event stream state.
func (s *Server) checkSSEManager() ComponentHealth {
	if s.services.Events == nil {
		return ComponentHealth{Status: statusDegraded, Message: "SSE manager not configured"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Message: formatSSEStatus(s.services.Events.ClientCount(), s.services.Events.ActiveJobs()),
	}
}

func formatSSEStatus(clients, jobs int) string {
	var msg string
	switch clients {
	case 0:
		msg = "no connected clients"
	case 1:
		msg = "1 connected client"
	default:
		msg = fmt.Sprintf("%d connected clients", clients)
	}
	if jobs > 0 {
		msg += fmt.Sprintf(", %d jobs streaming progress", jobs)
	}
	return msg
}
