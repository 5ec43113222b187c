package main

import (
	"os"

	"github.com/spf13/cobra"

	"attnroute/internal/hook"
)

// hookCmd is the host-facing entry point: one JSON event on stdin, one JSON
// response on stdout. A non-zero exit tells the host to proceed without
// context.
var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Process one host hook event (stdin JSON -> stdout JSON)",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner := hook.NewRunner()
		return runner.Run(os.Stdin, os.Stdout)
	},
}
