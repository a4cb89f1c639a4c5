package tty

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/srg/ttyio/pkg/loop"
)

// Well-known console descriptors.
const (
	StdIn  = 0
	StdOut = 1
	StdErr = 2
)

// noopLogger is shared by handles constructed without a logger.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Options configures handle construction. The zero value is usable.
type Options struct {
	Logger *logrus.Logger      // optional logger (nil = no-op logger)
	Stream *loop.StreamOptions // optional stream tuning, defaults applied per field
}

// Handle is a console stream bound into an event loop. The descriptor and
// the read intent are fixed at construction and never change. Every handle
// holds a reference to the process-wide reset guard from construction until
// Close; the guard restores the terminal's original mode exactly once, when
// the last live handle goes away.
//
// Operations on a single handle follow caller invocation order and are not
// safe for concurrent use. Distinct handles are independent of each other.
type Handle struct {
	fd       int
	readable bool

	lp         *loop.Loop
	logger     *logrus.Logger
	guard      *resetGuard
	streamOpts *loop.StreamOptions

	stream *loop.ConsoleStream
	closed bool
}

// New creates a console handle for fd on the given loop. The readable flag
// states whether the caller plans to read from this stream: stdin is
// readable, stdout and stderr are not. The handle is unusable until Init
// succeeds.
func New(lp *loop.Loop, fd int, readable bool) *Handle {
	return NewWithOptions(lp, fd, readable, nil)
}

// NewWithOptions is New with explicit logger and stream tuning.
func NewWithOptions(lp *loop.Loop, fd int, readable bool, opts *Options) *Handle {
	logger := noopLogger
	var streamOpts *loop.StreamOptions
	if opts != nil {
		if opts.Logger != nil {
			logger = opts.Logger
		}
		streamOpts = opts.Stream
	}
	h := &Handle{
		fd:         fd,
		readable:   readable,
		lp:         lp,
		logger:     logger,
		guard:      processGuards.acquire(),
		streamOpts: streamOpts,
	}
	return h
}

// Fd returns the wrapped descriptor.
func (h *Handle) Fd() int { return h.fd }

// Readable reports the read intent fixed at construction.
func (h *Handle) Readable() bool { return h.readable }

// Init binds the descriptor into the loop as a console stream. It fails
// with ErrNotConsole if the descriptor is not a terminal, or with the
// loop's error if registration is rejected. A failed Init leaves the handle
// uninitialized; the caller may retry or discard it. Mode, Reset, WinSize
// and the vterm operations require a successful Init first.
func (h *Handle) Init() error {
	if h.closed {
		return ErrClosed
	}
	if h.stream != nil {
		return nil
	}
	if !isConsole(h.fd) {
		return fmt.Errorf("fd %d: %w", h.fd, ErrNotConsole)
	}

	s, err := loop.NewConsoleStream(h.fd, h.readable, h.streamOpts)
	if err != nil {
		return fmt.Errorf("bind console stream: %w", err)
	}
	if err := h.lp.Register(s); err != nil {
		_ = s.Close()
		return err
	}

	h.stream = s
	h.logger.WithFields(logrus.Fields{
		"fd":       h.fd,
		"readable": h.readable,
	}).Debug("console handle initialized")
	return nil
}

// Mode issues one terminal mode-change request for the descriptor. The
// request is all-or-nothing and idempotent: repeating the same mode is
// safe. A failed call leaves the handle fully usable.
func (h *Handle) Mode(m Mode) error {
	if h.stream == nil {
		return ErrNotInitialized
	}
	return setMode(h.fd, m)
}

// Reset restores the original settings of every descriptor whose mode was
// changed. This is the explicit, caller-requested reset; it is independent
// of the guard's one-shot teardown reset and does not consume it.
func (h *Handle) Reset() error {
	if h.stream == nil {
		return ErrNotInitialized
	}
	return resetTerminal()
}

// WinSize queries the current terminal dimensions. The result is fresh on
// every call, never cached. Failure, including calling before Init, is
// reported through the {-1, -1} sentinel; there is no separate error
// channel for this operation.
func (h *Handle) WinSize() WinSize {
	if h.stream == nil {
		return failedWinSize
	}
	w, ht, err := windowSize(h.fd)
	if err != nil {
		h.logger.WithField("fd", h.fd).WithError(err).Debug("window size query failed")
		return failedWinSize
	}
	return WinSize{Width: w, Height: ht}
}

// SetVTermState asks the console host to take over (VTermSupported) or
// hand back (VTermUnsupported) virtual terminal sequence processing. Best
// effort: on platforms without a host-level toggle, and before Init, this
// is a silent no-op.
func (h *Handle) SetVTermState(s VTermState) {
	if h.stream == nil {
		return
	}
	setVTermState(s)
}

// VTermState reports who currently processes virtual terminal sequences.
// Platforms without the underlying query return ErrVTermUnsupported.
func (h *Handle) VTermState() (VTermState, error) {
	if h.stream == nil {
		return VTermUnsupported, ErrNotInitialized
	}
	return queryVTermState()
}

// Read reads buffered input from the console stream. Non-blocking; see
// loop.ConsoleStream.Read for the exact contract.
func (h *Handle) Read(p []byte) (int, error) {
	if h.stream == nil {
		return 0, ErrNotInitialized
	}
	return h.stream.Read(p)
}

// Write queues data for the console stream. Non-blocking; see
// loop.ConsoleStream.Write for the exact contract.
func (h *Handle) Write(p []byte) (int, error) {
	if h.stream == nil {
		return 0, ErrNotInitialized
	}
	return h.stream.Write(p)
}

// SetReadCallback registers cb for asynchronous input delivery, or
// unregisters it when cb is nil. Valid only after Init.
func (h *Handle) SetReadCallback(cb loop.ReadCallback) {
	if h.stream == nil {
		return
	}
	h.stream.SetReadCallback(cb)
}

// Close releases the handle. Valid from any state, including before Init
// and after a failed Init. The guard reference is dropped either way; when
// this was the last live handle, the one-shot terminal reset fires.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	var err error
	if h.stream != nil {
		h.lp.Unregister(h.stream)
		err = h.stream.Close()
		h.stream = nil
	}

	processGuards.release(h.guard)
	h.guard = nil
	return err
}
