package main

import (
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ttyio",
	Short: "Console handle tool",
	Long: `Command-line companion for the ttyio console handle library:

- Switch the terminal between normal, raw and binary I/O modes
- Query the terminal window size
- Inspect and toggle virtual terminal sequence processing
- Reset the terminal to its original settings

Every command binds a console descriptor through the library's event loop,
so it exercises the same handle lifecycle (including the one-shot reset
guard) that embedding applications use.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", formatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(sizeCmd)
	rootCmd.AddCommand(vtermCmd)
	rootCmd.AddCommand(resetCmd)
}
