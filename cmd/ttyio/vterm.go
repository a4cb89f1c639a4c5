package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/ttyio/pkg/tty"
)

// vtermCmd represents the vterm command
var vtermCmd = &cobra.Command{
	Use:   "vterm [on|off]",
	Short: "Query or toggle virtual terminal sequence processing",
	Long: `Without arguments, reports who currently processes virtual terminal
sequences: the console host ("supported") or the application
("unsupported").

With "on" or "off", asks the console host to take over or hand back
sequence processing. The request is best-effort: on Unix the terminal
emulator always processes sequences itself, so setting is a no-op and the
query reports that it is unsupported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVTerm,
}

func runVTerm(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, tty.StdOut, false)
	if err != nil {
		return err
	}
	defer s.close()

	if len(args) == 1 {
		switch args[0] {
		case "on":
			s.handle.SetVTermState(tty.VTermSupported)
		case "off":
			s.handle.SetVTermState(tty.VTermUnsupported)
		default:
			return fmt.Errorf("invalid argument %q: must be \"on\" or \"off\"", args[0])
		}
		return nil
	}

	state, err := s.handle.VTermState()
	if err != nil {
		return err
	}
	fmt.Println(state)
	return nil
}
