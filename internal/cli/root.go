// Package cli wires the copilot's commands: the long-running server and
// a one-shot health check.
package cli

import (
	"github.com/spf13/cobra"
)

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   "copilot",
		Short: "Pressmill copilot core (tools, scheduler, health, notifications)",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())

	return rootCmd.Execute()
}
