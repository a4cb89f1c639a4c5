package loop_test

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/ttyio/internal/testutils"
	"github.com/srg/ttyio/pkg/loop"
)

// lowLatencyOpts keeps the poll loops snappy so tests don't wait on the
// default timeout.
func lowLatencyOpts() *loop.StreamOptions {
	return &loop.StreamOptions{PollTimeoutMs: 5}
}

func TestConsoleStream_ReadFromConsole(t *testing.T) {
	console := testutils.NewTestConsole(t)

	s, err := loop.NewConsoleStream(console.SlaveFd(), true, lowLatencyOpts())
	require.NoError(t, err)
	defer s.Close()

	// Line-buffered console input: the slave sees the line once the
	// newline arrives.
	_, err = console.Master.Write([]byte("hello\n"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	var got []byte
	require.Eventually(t, func() bool {
		n, err := s.Read(buf)
		if err != nil {
			return false
		}
		got = append(got, buf[:n]...)
		return len(got) > 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Contains(t, string(got), "hello")
}

func TestConsoleStream_WriteToConsole(t *testing.T) {
	console := testutils.NewTestConsole(t)

	s, err := loop.NewConsoleStream(console.SlaveFd(), false, lowLatencyOpts())
	require.NoError(t, err)
	defer s.Close()

	received := make(chan []byte, 16)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := console.Master.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				received <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	n, err := s.Write([]byte("output"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	var got []byte
	require.Eventually(t, func() bool {
		for {
			select {
			case chunk := <-received:
				got = append(got, chunk...)
			default:
				return len(got) >= 6
			}
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, string(got), "output")

	stats := s.Stats()
	assert.EqualValues(t, 6, stats.WriteBytesTotal)
}

func TestConsoleStream_ReadCallback(t *testing.T) {
	console := testutils.NewTestConsole(t)

	s, err := loop.NewConsoleStream(console.SlaveFd(), true, lowLatencyOpts())
	require.NoError(t, err)
	defer s.Close()

	var mu sync.Mutex
	var got []byte
	s.SetReadCallback(func(data []byte) {
		mu.Lock()
		got = append(got, data...)
		mu.Unlock()
	})

	_, err = console.Master.Write([]byte("async\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Contains(t, string(got), "async")
	mu.Unlock()
}

func TestConsoleStream_NotReadable(t *testing.T) {
	console := testutils.NewTestConsole(t)

	s, err := loop.NewConsoleStream(console.SlaveFd(), false, lowLatencyOpts())
	require.NoError(t, err)
	defer s.Close()

	_, err = console.Master.Write([]byte("ignored\n"))
	require.NoError(t, err)

	// No read loop runs for a write-only stream; input never shows up.
	time.Sleep(50 * time.Millisecond)
	_, err = s.Read(make([]byte, 16))
	assert.ErrorIs(t, err, syscall.EAGAIN)
}

func TestConsoleStream_CloseIdempotent(t *testing.T) {
	console := testutils.NewTestConsole(t)

	s, err := loop.NewConsoleStream(console.SlaveFd(), true, lowLatencyOpts())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
	_, err = s.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)

	// Late callback registration after close is a no-op, not a panic.
	s.SetReadCallback(func([]byte) {})
}

func TestConsoleStream_ZeroLengthIO(t *testing.T) {
	console := testutils.NewTestConsole(t)

	s, err := loop.NewConsoleStream(console.SlaveFd(), true, lowLatencyOpts())
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Read(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Write(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
