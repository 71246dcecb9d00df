// Package stream provides the bounded byte bridge that decouples an audio
// reader goroutine from a recognizer consuming decoded PCM.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCapacity is the ring size used when none is given (32 MiB).
	DefaultCapacity = 32 << 20
	// DefaultPollInterval bounds how long a blocked call waits before
	// re-checking for cancellation.
	DefaultPollInterval = 100 * time.Millisecond
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("stream: bridge closed")

// Bridge is a fixed-capacity ring buffer with exactly one writer and one reader.
//
// Write blocks while the ring is full and Read blocks while it is empty. After
// EndOfStream, Read drains what is left and then returns io.EOF. The read and
// write cursors are monotonic byte counts, so the only coordination between the
// two sides is the pair of wake-up signals.
type Bridge struct {
	buf  []byte
	size uint64

	written atomic.Uint64 // total bytes ever written
	read    atomic.Uint64 // total bytes ever read
	eof     atomic.Bool
	closed  atomic.Bool

	dataReady  chan struct{} // "data available"
	spaceReady chan struct{} // "space available"
	closing    chan struct{}
	closeOnce  sync.Once
	done       <-chan struct{}
	poll       time.Duration
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPollInterval overrides the cancellation polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.poll = d
		}
	}
}

// NewBridge creates a bridge holding up to capacity bytes. Blocked calls give
// up when ctx is cancelled.
func NewBridge(ctx context.Context, capacity int, opts ...Option) *Bridge {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bridge{
		buf:        make([]byte, capacity),
		size:       uint64(capacity),
		dataReady:  make(chan struct{}, 1),
		spaceReady: make(chan struct{}, 1),
		closing:    make(chan struct{}),
		done:       ctx.Done(),
		poll:       DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Cap returns the ring capacity in bytes.
func (b *Bridge) Cap() int {
	return int(b.size)
}

// Len returns the number of buffered bytes not yet read.
func (b *Bridge) Len() int {
	return int(b.written.Load() - b.read.Load())
}

// Write copies all of p into the ring, blocking while it is full.
// It returns early only on Close or cancellation.
func (b *Bridge) Write(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if b.closed.Load() {
			return n, ErrClosed
		}
		w, r := b.written.Load(), b.read.Load()
		free := b.size - (w - r)
		if free == 0 {
			if err := b.wait(b.spaceReady); err != nil {
				return n, err
			}
			continue
		}
		chunk := min(uint64(len(p)-n), free)
		b.copyIn(w, p[n:n+int(chunk)])
		b.written.Add(chunk)
		n += int(chunk)
		signal(b.dataReady)
	}
	return n, nil
}

// Read fills p from the ring, blocking while it is empty. It returns fewer
// than len(p) bytes only once the end of the stream has been declared, and
// io.EOF when nothing is left.
func (b *Bridge) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) {
		w, r := b.written.Load(), b.read.Load()
		avail := w - r
		if avail == 0 {
			if b.eof.Load() || b.closed.Load() {
				break
			}
			if err := b.wait(b.dataReady); err != nil {
				return n, err
			}
			continue
		}
		chunk := min(uint64(len(p)-n), avail)
		b.copyOut(r, p[n:n+int(chunk)])
		b.read.Add(chunk)
		n += int(chunk)
		signal(b.spaceReady)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// EndOfStream declares that no more data will be written. It is idempotent.
func (b *Bridge) EndOfStream() {
	b.eof.Store(true)
	signal(b.dataReady)
}

// Close releases both wait signals. Further writes fail with ErrClosed and
// reads drain what is buffered before returning io.EOF.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.closing)
	})
	return nil
}

// wait blocks until sig fires, a poll tick passes, the bridge closes or the
// context is cancelled.
func (b *Bridge) wait(sig <-chan struct{}) error {
	timer := time.NewTimer(b.poll)
	defer timer.Stop()
	select {
	case <-sig:
	case <-timer.C:
	case <-b.closing:
	case <-b.done:
		return context.Canceled
	}
	return nil
}

func (b *Bridge) copyIn(cursor uint64, p []byte) {
	start := cursor % b.size
	c := copy(b.buf[start:], p)
	if c < len(p) {
		copy(b.buf, p[c:])
	}
}

func (b *Bridge) copyOut(cursor uint64, p []byte) {
	start := cursor % b.size
	c := copy(p, b.buf[start:])
	if c < len(p) {
		copy(p[c:], b.buf)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var (
	_ io.Reader = (*Bridge)(nil)
	_ io.Writer = (*Bridge)(nil)
	_ io.Closer = (*Bridge)(nil)
)
