package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/ttyio/pkg/tty"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the terminal to its original settings",
	Long: `Explicitly resets the terminal settings of every descriptor this process
switched away from its defaults.

This is the caller-requested reset path; the reset guard that fires when
the last console handle closes exists independently and is not consumed by
running this command.`,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, tty.StdOut, false)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.handle.Reset(); err != nil {
		return fmt.Errorf("reset terminal: %w", err)
	}
	return nil
}
