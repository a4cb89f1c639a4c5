package loop_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/ttyio/pkg/loop"
)

func newPipeStream(t *testing.T, readable bool) *loop.ConsoleStream {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})

	fd := int(r.Fd())
	if !readable {
		fd = int(w.Fd())
	}
	s, err := loop.NewConsoleStream(fd, readable, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoop_RegisterUnregister(t *testing.T) {
	lp := loop.New(nil)
	defer lp.Close()

	s := newPipeStream(t, true)
	require.NoError(t, lp.Register(s))
	assert.Equal(t, 1, lp.Len())

	lp.Unregister(s)
	assert.Equal(t, 0, lp.Len())

	// Unregistering an unknown stream is a no-op.
	lp.Unregister(s)
	assert.Equal(t, 0, lp.Len())
}

func TestLoop_RejectsDuplicateFd(t *testing.T) {
	lp := loop.New(nil)
	defer lp.Close()

	s1 := newPipeStream(t, true)
	require.NoError(t, lp.Register(s1))

	s2, err := loop.NewConsoleStream(s1.Fd(), true, nil)
	require.NoError(t, err)
	defer s2.Close()

	err = lp.Register(s2)
	assert.ErrorIs(t, err, loop.ErrAlreadyRegistered)
	assert.Equal(t, 1, lp.Len())
}

func TestLoop_CloseShutsDownStreams(t *testing.T) {
	lp := loop.New(nil)

	s1 := newPipeStream(t, true)
	s2 := newPipeStream(t, false)
	require.NoError(t, lp.Register(s1))
	require.NoError(t, lp.Register(s2))

	require.NoError(t, lp.Close())
	assert.Equal(t, 0, lp.Len())

	_, err := s1.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
	_, err = s2.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)

	// Closed loops reject new registrations but tolerate repeated Close.
	s3 := newPipeStream(t, true)
	assert.ErrorIs(t, lp.Register(s3), loop.ErrLoopClosed)
	assert.NoError(t, lp.Close())
}

func TestLoop_UnregisteredStreamSurvivesClose(t *testing.T) {
	lp := loop.New(nil)

	s := newPipeStream(t, true)
	require.NoError(t, lp.Register(s))
	lp.Unregister(s)

	require.NoError(t, lp.Close())

	// The loop no longer owns the stream, so it stays usable.
	_, err := s.Read(make([]byte, 1))
	assert.NotErrorIs(t, err, os.ErrClosed)
}
