// Package tty binds OS console descriptors (stdin, stdout, stderr or any
// inherited terminal fd) into the loop's stream machinery and adds the
// console-specific operations on top: terminal mode switching, window-size
// queries and virtual-terminal state control.
//
// The package also owns the process-wide reset guard: however many console
// handles are created, the terminal is put back into its original mode
// exactly once, when the last live handle is closed.
package tty

import "fmt"

// Mode selects how the terminal driver processes input and output for a
// descriptor. There is deliberately no way to query the currently applied
// mode: the driver is the single source of truth and caching its state here
// would silently drift from reality.
type Mode int

const (
	// ModeNormal restores the descriptor's original settings, as captured
	// the first time it was switched away from them.
	ModeNormal Mode = iota

	// ModeRaw delivers input unprocessed: no echo, no line buffering, no
	// signal generation, no software flow control. Output processing is
	// left untouched.
	ModeRaw

	// ModeIO is binary-safe in both directions: ModeRaw plus output
	// post-processing disabled. Intended for passing opaque byte streams
	// through the terminal.
	ModeIO
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeRaw:
		return "raw"
	case ModeIO:
		return "io"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// VTermState reports who interprets virtual terminal sequences: the console
// host (Supported) or the application (Unsupported). Only meaningful on
// platforms whose console host can be toggled; elsewhere setting it is a
// silent no-op and querying it fails with ErrVTermUnsupported.
type VTermState int

const (
	// VTermSupported means the console processes virtual terminal
	// sequences itself.
	VTermSupported VTermState = iota

	// VTermUnsupported means sequence processing is left to the
	// application.
	VTermUnsupported
)

func (s VTermState) String() string {
	switch s {
	case VTermSupported:
		return "supported"
	case VTermUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("vtermstate(%d)", int(s))
	}
}

// WinSize holds terminal dimensions in character cells. A failed query is
// reported as {-1, -1}; that sentinel is the only failure channel for
// window-size queries.
type WinSize struct {
	Width  int
	Height int
}

// failedWinSize is the sentinel returned by every failing size query.
var failedWinSize = WinSize{Width: -1, Height: -1}

// Valid reports whether the size came from a successful query.
func (w WinSize) Valid() bool {
	return w != failedWinSize
}
