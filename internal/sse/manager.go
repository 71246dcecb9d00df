package sse

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/listenupapp/listenup-align/internal/id"
)

const (
	eventQueueSize  = 1000
	clientQueueSize = 100
)

// Client represents a connected SSE client.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	// Book restricts delivery to one book checksum. Empty means all books.
	Book string
}

func (c *Client) wants(event Event) bool {
	return c.Book == "" || event.Book == "" || c.Book == event.Book
}

// offer delivers without blocking and reports whether the client kept up.
func (c *Client) offer(event Event) bool {
	select {
	case c.EventChan <- event:
		return true
	default:
		return false
	}
}

// Manager fans job events out to connected clients. It remembers the last
// progress event of every running job so clients that connect mid-run see
// where each alignment stands without waiting for the next update.
type Manager struct {
	logger    *slog.Logger
	events    chan Event
	heartbeat time.Duration
	wg        sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*Client
	latest  map[string]Event // job ID -> last alignment.progress

	closeMu sync.RWMutex
	closed  bool
}

// NewManager creates a new SSE Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:    logger,
		events:    make(chan Event, eventQueueSize),
		heartbeat: 30 * time.Second,
		clients:   make(map[string]*Client),
		latest:    make(map[string]Event),
	}
}

// Start runs the broadcast loop until ctx is done or the queue is closed.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("SSE manager starting")

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-m.events:
			if !ok {
				return
			}
			m.broadcast(event)
		case <-ticker.C:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers the ones already queued and
// disconnects every client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.events)
	m.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for event := range m.events {
			m.broadcast(event)
		}
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("SSE event drain timed out, pending events lost")
	}

	m.wg.Wait()
	m.closeAllClients()
	m.logger.Info("SSE manager shut down")
	return nil
}

// broadcast records job state and delivers event to every interested client.
func (m *Manager) broadcast(event Event) {
	m.track(event)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var delivered, dropped int
	for _, client := range m.clients {
		if !client.wants(event) {
			continue
		}
		if client.offer(event) {
			delivered++
			continue
		}
		dropped++
		m.logger.Warn("dropped event for slow client",
			slog.String("client_id", client.ID),
			slog.String("event_type", string(event.Type)))
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event broadcast",
			slog.String("event_type", string(event.Type)),
			slog.String("book", event.Book),
			slog.Int("delivered", delivered),
			slog.Int("dropped", dropped))
	}
}

// track keeps the progress snapshot table current. A final job event
// retires the job's snapshot.
func (m *Manager) track(event Event) {
	switch data := event.Data.(type) {
	case ProgressEventData:
		m.mu.Lock()
		m.latest[data.JobID] = event
		m.mu.Unlock()
	case JobEventData:
		if data.Job == nil {
			return
		}
		m.mu.Lock()
		delete(m.latest, data.Job.ID)
		m.mu.Unlock()
	}
}

// Connect registers a client interested in book (empty = all books) and
// queues the current progress of the running jobs it would receive.
func (m *Manager) Connect(book string) (*Client, error) {
	clientID, err := id.Generate(id.PrefixClient)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		Book:        book,
		EventChan:   make(chan Event, clientQueueSize),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.clients[clientID] = client
	total := len(m.clients)
	replayed := 0
	for event := range maps.Values(m.latest) {
		if client.wants(event) && client.offer(event) {
			replayed++
		}
	}
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("book", book),
		slog.Int("replayed", replayed),
		slog.Int("total_clients", total))
	return client, nil
}

// Disconnect removes a client and closes its channels. Unknown IDs are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	total := len(m.clients)
	m.mu.Unlock()
	if !ok {
		return
	}

	close(client.Done)
	close(client.EventChan)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Int("total_clients", total))
}

// Emit queues an event for broadcasting. Events emitted after Shutdown, or
// while the queue is full, are dropped.
func (m *Manager) Emit(event Event) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.events <- event:
	default:
		m.logger.Error("SSE event queue full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// ActiveJobs returns the number of jobs with a progress snapshot.
func (m *Manager) ActiveJobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.latest)
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		close(client.Done)
		close(client.EventChan)
	}
	clear(m.clients)
}
