package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-align/internal/align"
	"github.com/listenupapp/listenup-align/internal/api/dto"
	"github.com/listenupapp/listenup-align/internal/config"
	"github.com/listenupapp/listenup-align/internal/domain"
	"github.com/listenupapp/listenup-align/internal/metrics"
	"github.com/listenupapp/listenup-align/internal/ratelimit"
	"github.com/listenupapp/listenup-align/internal/search"
	"github.com/listenupapp/listenup-align/internal/service"
	"github.com/listenupapp/listenup-align/internal/sse"
	"github.com/listenupapp/listenup-align/internal/store"
	"github.com/listenupapp/listenup-align/internal/store/sqlite"
)

// testServer wraps the API server for testing.
type testServer struct {
	*Server
	api humatest.TestAPI
	svc *service.AlignmentService
	dir string
}

// setupTestServer creates a server backed by real stores and an
// estimation-only aligner. burst limits job submissions per client.
func setupTestServer(t *testing.T, burst int) *testServer {
	t.Helper()
	dir := t.TempDir()

	jobs, err := store.New(filepath.Join(dir, "jobs"), nil)
	require.NoError(t, err)
	timings, err := sqlite.Open(filepath.Join(dir, "timings.db"), nil)
	require.NoError(t, err)
	timings.SetCheckpointReader(jobs)
	index, err := search.NewSearchIndex(search.Options{DataPath: filepath.Join(dir, "search")})
	require.NoError(t, err)

	manager := sse.NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	opts := align.DefaultOptions()
	opts.MinSentences = 2
	aligner := align.NewCoordinator(nil, nil, opts, nil, align.WithMetrics(m))

	svc := service.NewAlignmentService(jobs, timings, index, manager, aligner, m, config.AlignConfig{MinSentences: 2}, nil)
	limiter := ratelimit.PerMinute(60, burst)

	srv := NewServer(&Services{
		Alignment: svc,
		Jobs:      jobs,
		Timings:   timings,
		Search:    index,
		Events:    manager,
		Metrics:   m,
		Gatherer:  registry,
		Limiter:   limiter,
	}, Options{}, nil)

	t.Cleanup(func() {
		_ = svc.Shutdown()
		limiter.Stop()
		cancel()
		_ = index.Close()
		_ = timings.Close()
		_ = jobs.Close()
	})

	return &testServer{Server: srv, api: humatest.Wrap(t, srv.api), svc: svc, dir: dir}
}

// bookRequest builds a two-chapter book whose audio file exists on disk.
func (ts *testServer) bookRequest(t *testing.T, name string) dto.BookRequest {
	t.Helper()
	path := filepath.Join(ts.dir, name+".mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio of "+name), 0o644))

	req := dto.BookRequest{
		Title:      name,
		AudioFiles: []dto.AudioFileRequest{{Path: path, DurationMs: 30_000}},
	}
	for c := range 2 {
		ch := dto.ChapterRequest{Title: fmt.Sprintf("Chapter %d", c+1)}
		for s := range 3 {
			ch.Sentences = append(ch.Sentences, dto.SentenceRequest{
				Text: fmt.Sprintf("Call me Ishmael, said sentence %d of chapter %d.", s+1, c+1),
			})
		}
		req.Chapters = append(req.Chapters, ch)
	}
	return req
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, 5)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	health := decode[HealthResponse](t, resp.Body.Bytes())
	assert.Equal(t, statusHealthy, health.Status)
	assert.False(t, health.Recognition)
	for _, name := range []string{"jobs", "timings", "search", "sse"} {
		assert.Equal(t, statusHealthy, health.Components[name].Status, name)
	}
}

func TestAlignmentLifecycle(t *testing.T) {
	ts := setupTestServer(t, 5)
	ctx := context.Background()

	resp := ts.api.Post("/api/v1/alignments", dto.StartAlignmentRequest{Book: ts.bookRequest(t, "moby")})
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())
	job := decode[dto.JobResponse](t, resp.Body.Bytes())
	assert.Equal(t, string(domain.AlignmentModeEstimation), job.Mode)
	require.NotEmpty(t, job.BookChecksum)

	done, err := ts.svc.Wait(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AlignmentStatusCompleted, done.Status, done.Error)

	resp = ts.api.Get("/api/v1/alignments/" + job.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	got := decode[dto.JobResponse](t, resp.Body.Bytes())
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 100, got.Progress)

	resp = ts.api.Get("/api/v1/alignments?status=completed")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[dto.ListResponse[dto.JobResponse]](t, resp.Body.Bytes())
	assert.Equal(t, 1, list.Total)

	resp = ts.api.Get("/api/v1/timings/" + job.BookChecksum)
	require.Equal(t, http.StatusOK, resp.Code)
	timing := decode[dto.TimingResponse](t, resp.Body.Bytes())
	require.Len(t, timing.Chapters, 2)
	assert.Equal(t, int64(30_000), timing.AudioFiles[0].DurationMs)
	last := timing.Chapters[1].Sentences[2]
	assert.Positive(t, last.PositionMs)
	assert.Positive(t, last.DurationMs)

	resp = ts.api.Get("/api/v1/timings/" + job.BookChecksum + "/status")
	require.Equal(t, http.StatusOK, resp.Code)
	status := decode[dto.TimingStatusResponse](t, resp.Body.Bytes())
	assert.Equal(t, string(domain.TimingStatusNormal), status.Status)

	resp = ts.api.Post("/api/v1/timings/status", map[string]any{"book": ts.bookRequest(t, "moby")})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	status = decode[dto.TimingStatusResponse](t, resp.Body.Bytes())
	assert.Equal(t, string(domain.TimingStatusNormal), status.Status)

	resp = ts.api.Get("/api/v1/search?q=Ishmael&book=" + job.BookChecksum + "&sort=position")
	require.Equal(t, http.StatusOK, resp.Code)
	found := decode[dto.SearchResponse](t, resp.Body.Bytes())
	assert.Equal(t, uint64(6), found.Total)

	resp = ts.api.Post("/api/v1/timings/compare", dto.CompareRequest{A: job.BookChecksum, B: job.BookChecksum})
	require.Equal(t, http.StatusOK, resp.Code)
	diff := decode[dto.DiffResponse](t, resp.Body.Bytes())
	assert.Len(t, diff.Chapters, 2)
	assert.Zero(t, diff.AverageMs)

	resp = ts.api.Delete("/api/v1/timings/" + job.BookChecksum)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Get("/api/v1/timings/" + job.BookChecksum)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Get("/api/v1/timings/" + job.BookChecksum + "/status")
	require.Equal(t, http.StatusOK, resp.Code)
	status = decode[dto.TimingStatusResponse](t, resp.Body.Bytes())
	assert.Equal(t, string(domain.TimingStatusNone), status.Status)
}

func TestStartAlignment_Errors(t *testing.T) {
	ts := setupTestServer(t, 10)

	missing := ts.bookRequest(t, "moby")
	missing.AudioFiles[0].Path = filepath.Join(ts.dir, "gone.mp3")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "audio missing",
			body:   dto.StartAlignmentRequest{Book: missing},
			status: http.StatusBadRequest,
			code:   "VALIDATION",
		},
		{
			name:   "recognition unavailable",
			body:   dto.StartAlignmentRequest{Book: ts.bookRequest(t, "dick"), Mode: "recognition"},
			status: http.StatusBadRequest,
			code:   "VALIDATION",
		},
		{
			name:   "unknown mode",
			body:   map[string]any{"book": ts.bookRequest(t, "dick"), "mode": "guess"},
			status: http.StatusUnprocessableEntity,
			code:   "VALIDATION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Post("/api/v1/alignments", tt.body)
			require.Equal(t, tt.status, resp.Code, resp.Body.String())
			apiErr := decode[APIError](t, resp.Body.Bytes())
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestAlignmentNotFound(t *testing.T) {
	ts := setupTestServer(t, 5)

	resp := ts.api.Get("/api/v1/alignments/align-missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Delete("/api/v1/alignments/align-missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Post("/api/v1/timings/compare", dto.CompareRequest{A: "aa", B: "bb"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestStartAlignment_RateLimited(t *testing.T) {
	ts := setupTestServer(t, 1)
	body := dto.StartAlignmentRequest{Book: ts.bookRequest(t, "moby")}

	resp := ts.api.Post("/api/v1/alignments", "X-Forwarded-For: 10.0.0.1", body)
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	resp = ts.api.Post("/api/v1/alignments", "X-Forwarded-For: 10.0.0.1", body)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	apiErr := decode[APIError](t, resp.Body.Bytes())
	assert.Equal(t, "RATE_LIMITED", apiErr.Code)

	// Another client has its own bucket; the book itself is busy or done.
	resp = ts.api.Post("/api/v1/alignments", "X-Forwarded-For: 10.0.0.2", body)
	assert.NotEqual(t, http.StatusTooManyRequests, resp.Code)
}

func TestSearch_RequiresQuery(t *testing.T) {
	ts := setupTestServer(t, 5)

	resp := ts.api.Get("/api/v1/search")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decode[APIError](t, resp.Body.Bytes()).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, 5)
	ts.api.Get("/health")

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `align_http_requests_total{method="GET",route="/health",status_code="200"} 1`)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:5000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "10.0.0.1:5000", "203.0.113.9"},
		{"remote addr", nil, "192.0.2.1:4242", "192.0.2.1"},
		{"remote addr without port", nil, "192.0.2.1", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			ctx := humachi.NewContext(&huma.Operation{}, r, httptest.NewRecorder())
			assert.Equal(t, tt.want, getClientIP(ctx))
		})
	}
}
