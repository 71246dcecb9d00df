package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-align/internal/domain"
)

func TestManager_FiltersByBook(t *testing.T) {
	m := NewManager(nil)

	all, err := m.Connect("")
	require.NoError(t, err)
	one, err := m.Connect("book-a")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.broadcast(NewProgressEvent(ProgressEventData{JobID: "j", BookChecksum: "book-b", Progress: 10}))
	m.broadcast(NewProgressEvent(ProgressEventData{JobID: "j", BookChecksum: "book-a", Progress: 20}))

	assert.Len(t, all.EventChan, 2)
	require.Len(t, one.EventChan, 1)
	ev := <-one.EventChan
	assert.Equal(t, 20, ev.Data.(ProgressEventData).Progress)

	m.Disconnect(one.ID)
	m.Disconnect(one.ID)
	assert.Equal(t, 1, m.ClientCount())
}

func TestManager_ReplaysProgressToLateClients(t *testing.T) {
	m := NewManager(nil)

	m.broadcast(NewProgressEvent(ProgressEventData{JobID: "j1", BookChecksum: "book-a", Progress: 10}))
	m.broadcast(NewProgressEvent(ProgressEventData{JobID: "j1", BookChecksum: "book-a", Progress: 40}))
	m.broadcast(NewProgressEvent(ProgressEventData{JobID: "j2", BookChecksum: "book-b", Progress: 5}))
	assert.Equal(t, 2, m.ActiveJobs())

	late, err := m.Connect("book-a")
	require.NoError(t, err)
	require.Len(t, late.EventChan, 1)
	ev := <-late.EventChan
	assert.Equal(t, 40, ev.Data.(ProgressEventData).Progress)

	job := &domain.AlignmentJob{ID: "j1", BookChecksum: "book-a", Status: domain.AlignmentStatusRunning}
	job.MarkCancelled()
	final, ok := NewJobEvent(job)
	require.True(t, ok)
	m.broadcast(final)
	assert.Equal(t, 1, m.ActiveJobs())

	everyone, err := m.Connect("")
	require.NoError(t, err)
	require.Len(t, everyone.EventChan, 1)
	ev = <-everyone.EventChan
	assert.Equal(t, "j2", ev.Data.(ProgressEventData).JobID)
}

func TestNewJobEvent(t *testing.T) {
	job := &domain.AlignmentJob{ID: "j", BookChecksum: "b", Status: domain.AlignmentStatusRunning}
	_, ok := NewJobEvent(job)
	assert.False(t, ok, "active jobs have no final event")

	job.MarkCancelled()
	ev, ok := NewJobEvent(job)
	require.True(t, ok)
	assert.Equal(t, EventAlignmentCancelled, ev.Type)
	assert.Equal(t, "b", ev.Book)

	job.Status = domain.AlignmentStatusFailed
	assert.Equal(t, domain.AlignmentStatusCancelled, ev.Data.(JobEventData).Job.Status, "payload is a snapshot")
}

func TestManager_ShutdownDrainsAndCloses(t *testing.T) {
	m := NewManager(nil)
	client, err := m.Connect("")
	require.NoError(t, err)

	m.Emit(NewProgressEvent(ProgressEventData{JobID: "j", BookChecksum: "b", Progress: 50}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	ev, ok := <-client.EventChan
	require.True(t, ok)
	assert.Equal(t, EventAlignmentProgress, ev.Type)

	_, ok = <-client.EventChan
	assert.False(t, ok)
	assert.Zero(t, m.ClientCount())

	m.Emit(NewHeartbeatEvent()) // dropped silently after shutdown
}

func TestHandler_StreamsEvents(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	srv := httptest.NewServer(NewHandler(m, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?book=book-a")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var name string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if strings.HasPrefix(line, "event: ") {
				name = strings.TrimPrefix(line, "event: ")
			}
			if line == "" && name != "" {
				return name
			}
		}
	}

	assert.Equal(t, "connected", readEvent())

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	m.Emit(NewProgressEvent(ProgressEventData{JobID: "j", BookChecksum: "book-a", Progress: 5}))
	assert.Equal(t, string(EventAlignmentProgress), readEvent())
}
