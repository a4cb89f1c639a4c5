// Package testutils provides fixtures for tests that need a real terminal
// device, plus text assertion helpers for CLI output.
package testutils

import (
	"os"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// TestConsole is a PTY pair standing in for a real terminal. The slave
// side behaves like an interactive console descriptor: isatty is true,
// termios ioctls work, window size can be set from the master.
type TestConsole struct {
	Master *os.File
	Slave  *os.File
}

// NewTestConsole opens a PTY pair and registers cleanup on t. Tests use
// SlaveFd as the console descriptor under test.
func NewTestConsole(t *testing.T) *TestConsole {
	t.Helper()

	master, slave, err := pty.Open()
	require.NoError(t, err, "open pty pair")

	c := &TestConsole{Master: master, Slave: slave}
	t.Cleanup(func() {
		_ = c.Master.Close()
		_ = c.Slave.Close()
	})
	return c
}

// SlaveFd returns the terminal-side descriptor.
func (c *TestConsole) SlaveFd() int {
	return int(c.Slave.Fd())
}

// MasterFd returns the control-side descriptor.
func (c *TestConsole) MasterFd() int {
	return int(c.Master.Fd())
}

// Resize sets the terminal dimensions reported to the slave side.
func (c *TestConsole) Resize(t *testing.T, width, height int) {
	t.Helper()

	err := pty.Setsize(c.Master, &pty.Winsize{
		Cols: uint16(width),
		Rows: uint16(height),
	})
	require.NoError(t, err, "set pty size")
}
