// Package cmd contains the poping command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "poping",
	Short: "Poping - conversational AI backend",
	Long: `Poping is a multi-tenant conversational AI backend.

It persists chat transcripts in PostgreSQL and answers through a stateless
chat-completion provider, falling back to a session-based streaming provider
when the primary fails.

Running poping without a subcommand starts the HTTP API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
