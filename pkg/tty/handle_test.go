package tty

import (
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/srg/ttyio/internal/testutils"
	"github.com/srg/ttyio/pkg/loop"
)

// withCountingGuards swaps the process guard registry for one whose reset
// only bumps a counter, so tests can observe guard teardown without
// touching real terminal state.
func withCountingGuards(t *testing.T) *int32 {
	t.Helper()

	var resets int32
	old := processGuards
	processGuards = newGuardRegistry(func() { atomic.AddInt32(&resets, 1) })
	t.Cleanup(func() { processGuards = old })
	return &resets
}

func newTestLoop(t *testing.T) *loop.Loop {
	t.Helper()

	lp := loop.New(nil)
	t.Cleanup(func() { _ = lp.Close() })
	return lp
}

func TestHandle_InitOnConsole(t *testing.T) {
	withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	lp := newTestLoop(t)

	h := New(lp, console.SlaveFd(), false)
	defer h.Close()

	require.NoError(t, h.Init())
	assert.Equal(t, console.SlaveFd(), h.Fd())
	assert.False(t, h.Readable())

	// Init is idempotent once it has succeeded.
	assert.NoError(t, h.Init())
	assert.Equal(t, 1, lp.Len())
}

func TestHandle_InitRejectsNonConsole(t *testing.T) {
	withCountingGuards(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	lp := newTestLoop(t)
	h := New(lp, int(r.Fd()), true)
	defer h.Close()

	err = h.Init()
	require.ErrorIs(t, err, ErrNotConsole)

	// A failed Init leaves the handle uninitialized and retryable.
	assert.ErrorIs(t, h.Init(), ErrNotConsole)
	assert.Equal(t, 0, lp.Len())
}

func TestHandle_OperationsBeforeInit(t *testing.T) {
	withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	h := New(newTestLoop(t), console.SlaveFd(), false)
	defer h.Close()

	assert.ErrorIs(t, h.Mode(ModeRaw), ErrNotInitialized)
	assert.ErrorIs(t, h.Reset(), ErrNotInitialized)

	size := h.WinSize()
	assert.Equal(t, WinSize{Width: -1, Height: -1}, size)
	assert.False(t, size.Valid())

	_, err := h.VTermState()
	assert.ErrorIs(t, err, ErrNotInitialized)

	// Best-effort setter has no error channel; before Init it is a no-op.
	h.SetVTermState(VTermUnsupported)

	_, err = h.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = h.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestHandle_ModeRawIdempotent(t *testing.T) {
	withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	h := New(newTestLoop(t), console.SlaveFd(), false)
	defer h.Close()
	require.NoError(t, h.Init())

	require.NoError(t, h.Mode(ModeRaw))
	first, err := unix.IoctlGetTermios(console.SlaveFd(), ioctlReadTermios)
	require.NoError(t, err)

	// Repeating the same mode succeeds and changes nothing.
	require.NoError(t, h.Mode(ModeRaw))
	second, err := unix.IoctlGetTermios(console.SlaveFd(), ioctlReadTermios)
	require.NoError(t, err)

	assert.Equal(t, *first, *second)
	assert.Zero(t, first.Lflag&unix.ECHO, "raw mode disables echo")
	assert.Zero(t, first.Lflag&unix.ICANON, "raw mode disables canonical input")
	assert.Zero(t, first.Lflag&unix.ISIG, "raw mode disables signal keys")
}

func TestHandle_ModeIOIsBinarySafe(t *testing.T) {
	withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	h := New(newTestLoop(t), console.SlaveFd(), false)
	defer h.Close()
	require.NoError(t, h.Init())

	require.NoError(t, h.Mode(ModeIO))
	tio, err := unix.IoctlGetTermios(console.SlaveFd(), ioctlReadTermios)
	require.NoError(t, err)

	assert.Zero(t, tio.Lflag&unix.ICANON)
	assert.Zero(t, tio.Oflag&unix.OPOST, "io mode disables output post-processing")
}

func TestHandle_ModeNormalRestores(t *testing.T) {
	withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	h := New(newTestLoop(t), console.SlaveFd(), false)
	defer h.Close()
	require.NoError(t, h.Init())

	// Normal before any change is a no-op, not a failure.
	require.NoError(t, h.Mode(ModeNormal))

	require.NoError(t, h.Mode(ModeRaw))
	require.NoError(t, h.Mode(ModeNormal))

	tio, err := unix.IoctlGetTermios(console.SlaveFd(), ioctlReadTermios)
	require.NoError(t, err)
	assert.NotZero(t, tio.Lflag&unix.ECHO, "normal mode restores echo")
	assert.NotZero(t, tio.Lflag&unix.ICANON, "normal mode restores canonical input")
}

func TestHandle_ExplicitReset(t *testing.T) {
	resets := withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	h := New(newTestLoop(t), console.SlaveFd(), false)
	defer h.Close()
	require.NoError(t, h.Init())

	require.NoError(t, h.Mode(ModeRaw))
	require.NoError(t, h.Reset())

	tio, err := unix.IoctlGetTermios(console.SlaveFd(), ioctlReadTermios)
	require.NoError(t, err)
	assert.NotZero(t, tio.Lflag&unix.ECHO)

	// The explicit reset does not consume the guard's one-shot teardown.
	assert.EqualValues(t, 0, atomic.LoadInt32(resets))
}

func TestHandle_WinSize(t *testing.T) {
	withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	console.Resize(t, 120, 40)

	h := New(newTestLoop(t), console.SlaveFd(), false)
	defer h.Close()
	require.NoError(t, h.Init())

	size := h.WinSize()
	require.True(t, size.Valid())
	assert.Equal(t, 120, size.Width)
	assert.Equal(t, 40, size.Height)

	// Fresh on each query, never cached.
	console.Resize(t, 80, 24)
	size = h.WinSize()
	assert.Equal(t, WinSize{Width: 80, Height: 24}, size)
}

func TestHandle_VTermStateQueryPolicy(t *testing.T) {
	withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	h := New(newTestLoop(t), console.SlaveFd(), false)
	defer h.Close()
	require.NoError(t, h.Init())

	// Setting is best-effort and must not fail or panic.
	h.SetVTermState(VTermSupported)
	h.SetVTermState(VTermUnsupported)

	state, err := h.VTermState()
	if err != nil {
		// Platform without a host-level query reports the typed error.
		assert.ErrorIs(t, err, ErrVTermUnsupported)
		assert.Equal(t, VTermUnsupported, state)
	}
}

func TestHandle_GuardSharedAcrossHandles(t *testing.T) {
	resets := withCountingGuards(t)

	consoleA := testutils.NewTestConsole(t)
	consoleB := testutils.NewTestConsole(t)
	lp := newTestLoop(t)

	a := New(lp, consoleA.SlaveFd(), false)
	b := New(lp, consoleB.SlaveFd(), false)
	require.NoError(t, a.Init())
	require.NoError(t, b.Init())

	require.NoError(t, a.Close())
	assert.EqualValues(t, 0, atomic.LoadInt32(resets),
		"reset must not fire while another handle is live")

	require.NoError(t, b.Close())
	assert.EqualValues(t, 1, atomic.LoadInt32(resets))
}

func TestHandle_GuardRecreatedPerGeneration(t *testing.T) {
	resets := withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	lp := newTestLoop(t)

	a := New(lp, console.SlaveFd(), false)
	require.NoError(t, a.Init())
	require.NoError(t, a.Close())
	require.EqualValues(t, 1, atomic.LoadInt32(resets))

	b := New(lp, console.SlaveFd(), false)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	assert.EqualValues(t, 2, atomic.LoadInt32(resets),
		"two disjoint handle lifetimes fire exactly two resets")
}

func TestHandle_CloseWithoutInitReleasesGuard(t *testing.T) {
	resets := withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	h := New(newTestLoop(t), console.SlaveFd(), true)

	require.NoError(t, h.Close())
	assert.EqualValues(t, 1, atomic.LoadInt32(resets))

	// Close is idempotent and must not double-release.
	require.NoError(t, h.Close())
	assert.EqualValues(t, 1, atomic.LoadInt32(resets))
}

// Mirrors the stdout scenario: bind a writable console, switch to raw,
// query the size, then tear down and observe exactly one reset firing.
func TestHandle_Scenario(t *testing.T) {
	resets := withCountingGuards(t)

	console := testutils.NewTestConsole(t)
	console.Resize(t, 80, 24)
	lp := newTestLoop(t)

	h := New(lp, console.SlaveFd(), false)
	require.NoError(t, h.Init())
	require.NoError(t, h.Mode(ModeRaw))

	size := h.WinSize()
	require.True(t, size.Valid())
	assert.GreaterOrEqual(t, size.Width, 0)
	assert.GreaterOrEqual(t, size.Height, 0)

	require.NoError(t, h.Close())
	assert.EqualValues(t, 1, atomic.LoadInt32(resets))
}
