package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/ttyio/pkg/tty"
)

// rawCmd represents the raw command
var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Switch stdin to raw mode and echo key codes",
	Long: `Puts the terminal into raw mode and prints the byte value of every key
pressed, until 'q' is typed or the process is interrupted.

On exit the terminal is restored by the handle's reset guard; no manual
cleanup is required even when the process is killed between keypresses.`,
	RunE: runRaw,
}

var rawBinary bool

func init() {
	rawCmd.Flags().BoolVar(&rawBinary, "io", false, "Use binary-safe I/O mode instead of raw mode")
}

func runRaw(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, tty.StdIn, true)
	if err != nil {
		return err
	}
	defer s.close()

	mode := tty.ModeRaw
	if rawBinary {
		mode = tty.ModeIO
	}
	if err := s.handle.Mode(mode); err != nil {
		return fmt.Errorf("set %s mode: %w", mode, err)
	}

	heading := color.New(color.FgCyan, color.Bold)
	heading.Printf("terminal in %s mode, press keys ('q' to quit)\r\n", mode)

	keys := make(chan byte, 64)
	s.handle.SetReadCallback(func(data []byte) {
		for _, b := range data {
			select {
			case keys <- b:
			default:
			}
		}
	})

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	keyColor := color.New(color.FgGreen)
	for {
		select {
		case b := <-keys:
			if b == 'q' {
				return nil
			}
			keyColor.Printf("0x%02x", b)
			fmt.Printf(" (%q)\r\n", rune(b))
		case <-interrupt:
			return nil
		}
	}
}
