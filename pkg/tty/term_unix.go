//go:build unix

package tty

import (
	"fmt"

	"github.com/cornelk/hashmap"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// origStates records the original termios of every descriptor that was
// switched away from its defaults, keyed by fd. Both the explicit Reset
// operation and the guard's one-shot teardown walk this table and put each
// descriptor back. Entries survive a reset so that a later handle
// generation on the same fd still restores to the true original settings.
var origStates = hashmap.New[int, *unix.Termios]()

// isConsole reports whether fd refers to a terminal device.
func isConsole(fd int) bool {
	return term.IsTerminal(fd)
}

// saveOriginal snapshots fd's termios the first time its mode changes.
// Concurrent first calls race benignly: GetOrInsert keeps a single winner
// and both snapshots were taken before any mode was applied.
func saveOriginal(fd int) (*unix.Termios, error) {
	if st, ok := origStates.Get(fd); ok {
		return st, nil
	}
	tio, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
	if err != nil {
		return nil, fmt.Errorf("get termios for fd %d: %w", fd, err)
	}
	saved := *tio
	st, _ := origStates.GetOrInsert(fd, &saved)
	return st, nil
}

// setMode issues one mode-change request against fd. The request is
// all-or-nothing: TCSETS applies a full termios image, so either the whole
// mode takes effect or the ioctl fails and nothing changes.
func setMode(fd int, m Mode) error {
	switch m {
	case ModeNormal:
		st, ok := origStates.Get(fd)
		if !ok {
			// Never left normal mode, nothing to restore.
			return nil
		}
		tio := *st
		if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, &tio); err != nil {
			return fmt.Errorf("restore termios for fd %d: %w", fd, err)
		}
		return nil

	case ModeRaw, ModeIO:
		orig, err := saveOriginal(fd)
		if err != nil {
			return err
		}
		tio := *orig
		// Raw input: no break-to-SIGINT, no CR/NL translation, no parity
		// checks, no bit stripping, no flow control.
		tio.Iflag &^= unix.BRKINT | unix.ICRNL | unix.INPCK | unix.ISTRIP | unix.IXON
		// No echo, no canonical line assembly, no signal keys, no
		// extended input processing. 8-bit characters.
		tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.IEXTEN | unix.ISIG
		tio.Cflag &^= unix.CSIZE | unix.PARENB
		tio.Cflag |= unix.CS8
		if m == ModeIO {
			// Binary-safe both ways: disable output post-processing and
			// the remaining input mangling too.
			tio.Oflag &^= unix.OPOST
			tio.Iflag &^= unix.IGNBRK | unix.PARMRK | unix.INLCR | unix.IGNCR
		}
		tio.Cc[unix.VMIN] = 1
		tio.Cc[unix.VTIME] = 0
		if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, &tio); err != nil {
			return fmt.Errorf("set %s mode for fd %d: %w", m, fd, err)
		}
		return nil

	default:
		return fmt.Errorf("unknown terminal mode %d", int(m))
	}
}

// resetTerminal restores the original termios of every descriptor whose
// mode was ever changed. Used by the explicit Reset operation and by the
// guard teardown.
func resetTerminal() error {
	var firstErr error
	origStates.Range(func(fd int, st *unix.Termios) bool {
		tio := *st
		if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, &tio); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("restore termios for fd %d: %w", fd, err)
		}
		return true
	})
	return firstErr
}

// windowSize queries the terminal dimensions of fd in character cells.
func windowSize(fd int) (width, height int, err error) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, err
	}
	return int(ws.Col), int(ws.Row), nil
}

// setVTermState is a silent no-op on Unix: the terminal emulator always
// interprets virtual terminal sequences itself and there is no host-level
// toggle to flip.
func setVTermState(VTermState) {}

// queryVTermState has no Unix implementation; the chosen policy is a typed
// error rather than a fabricated answer.
func queryVTermState() (VTermState, error) {
	return VTermUnsupported, ErrVTermUnsupported
}
