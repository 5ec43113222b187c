package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"attnroute/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "attnroute",
	Short: "attnroute - attention router for LLM coding assistants",
	Long: `attnroute decides which project files are materialized into the
model's context window on every conversational turn: full content, a
compressed outline, or nothing. Selection is learned from telemetry,
cache-stable across turns, and bounded by a fixed character budget.

It is wired into the host assistant as a hook: JSON events arrive on
stdin, context comes back on stdout.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			return logging.Initialize(true)
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging to stderr")

	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}
