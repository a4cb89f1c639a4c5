package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/ttyio/pkg/tty"
)

// sizeCmd represents the size command
var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Print the terminal window size",
	Long: `Queries the current terminal dimensions through the console handle.

The size is queried fresh on every call. When no terminal is attached the
query fails and the command reports it; the library signals that case with
the (-1, -1) sentinel rather than an error value.`,
	RunE: runSize,
}

func runSize(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, tty.StdOut, false)
	if err != nil {
		return err
	}
	defer s.close()

	size := s.handle.WinSize()
	if !size.Valid() {
		return fmt.Errorf("window size query failed (no terminal attached?)")
	}

	label := color.New(color.FgCyan)
	label.Print("width: ")
	fmt.Println(size.Width)
	label.Print("height: ")
	fmt.Println(size.Height)
	return nil
}
