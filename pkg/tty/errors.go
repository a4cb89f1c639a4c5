package tty

import "errors"

// Package-level errors. All handle operations report failure to the
// immediate caller and leave the handle usable; none of these invalidate
// the handle or the reset guard.
var (
	// ErrNotConsole indicates the descriptor does not refer to a terminal
	// device and cannot be bound as a console stream.
	ErrNotConsole = errors.New("descriptor is not a console")

	// ErrNotInitialized indicates a mode, reset or vterm operation was
	// invoked before a successful Init.
	ErrNotInitialized = errors.New("handle not initialized")

	// ErrClosed indicates the handle was already closed.
	ErrClosed = errors.New("handle closed")

	// ErrVTermUnsupported indicates the platform has no virtual-terminal
	// state query. On Unix the console host always interprets sequences
	// itself and there is nothing to ask.
	ErrVTermUnsupported = errors.New("virtual terminal state is not supported on this platform")
)
