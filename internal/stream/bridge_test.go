package stream

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridge_WrapAround(t *testing.T) {
	b := NewBridge(context.Background(), 4, WithPollInterval(5*time.Millisecond))

	var wg sync.WaitGroup
	writeDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := b.Write([]byte{1, 2, 3})
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
		// Only one byte of space is left, so this blocks until the reader drains.
		n, err = b.Write([]byte{4, 5, 6})
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
		close(writeDone)
		b.EndOfStream()
	}()

	select {
	case <-writeDone:
		t.Fatal("second write finished before the reader freed space")
	case <-time.After(30 * time.Millisecond):
	}

	var got []byte
	chunk := make([]byte, 2)
	for {
		n, err := b.Read(chunk)
		got = append(got, chunk[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got)
}

func TestBridge_LargeTransferKeepsOrder(t *testing.T) {
	b := NewBridge(context.Background(), 7, WithPollInterval(time.Millisecond))
	src := make([]byte, 10_000)
	for i := range src {
		src[i] = byte(i % 251)
	}

	go func() {
		for off := 0; off < len(src); off += 13 {
			end := min(off+13, len(src))
			_, _ = b.Write(src[off:end])
		}
		b.EndOfStream()
	}()

	got, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(src, got), "bytes were reordered or corrupted")
}

func TestBridge_ShortReadOnlyAtEndOfStream(t *testing.T) {
	b := NewBridge(context.Background(), 16)
	_, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	b.EndOfStream()
	b.EndOfStream() // idempotent

	buf := make([]byte, 8)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	n, err = b.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = b.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestBridge_ReadBlocksUntilData(t *testing.T) {
	b := NewBridge(context.Background(), 16, WithPollInterval(5*time.Millisecond))
	result := make(chan string, 1)
	go func() {
		buf := make([]byte, 4)
		n, _ := b.Read(buf)
		result <- string(buf[:n])
	}()

	select {
	case <-result:
		t.Fatal("read returned before any data was written")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := b.Write([]byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "data", <-result)
}

func TestBridge_CloseRejectsWrites(t *testing.T) {
	b := NewBridge(context.Background(), 8)
	_, err := b.Write([]byte("ab"))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = b.Write([]byte("c"))
	assert.ErrorIs(t, err, ErrClosed)

	got, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(got))
}

func TestBridge_CloseUnblocksWriter(t *testing.T) {
	b := NewBridge(context.Background(), 2, WithPollInterval(time.Hour))
	errc := make(chan error, 1)
	go func() {
		_, err := b.Write([]byte("abcd"))
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("writer still blocked after close")
	}
}

func TestBridge_CancellationUnblocksReader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBridge(ctx, 8, WithPollInterval(time.Hour))
	errc := make(chan error, 1)
	go func() {
		_, err := b.Read(make([]byte, 4))
		errc <- err
	}()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after cancellation")
	}
}

func TestBridge_DefaultCapacity(t *testing.T) {
	b := NewBridge(context.Background(), 0)
	assert.Equal(t, DefaultCapacity, b.Cap())
	assert.Equal(t, 0, b.Len())
}
