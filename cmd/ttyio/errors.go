package main

import (
	"errors"
	"fmt"

	"github.com/srg/ttyio/pkg/tty"
)

// formatUserError maps library errors to messages a terminal user can act
// on; everything else passes through unchanged.
func formatUserError(err error) string {
	switch {
	case errors.Is(err, tty.ErrNotConsole):
		return fmt.Sprintf("%v\nThis command needs to run on an interactive terminal, "+
			"not with redirected input/output.", err)
	case errors.Is(err, tty.ErrVTermUnsupported):
		return fmt.Sprintf("%v\nOn this platform the terminal emulator always "+
			"processes virtual terminal sequences itself.", err)
	default:
		return err.Error()
	}
}
