// Package cmd wires Nexus's components into the nexus command-line
// program: one Coordinator per invocation, built from a config file, a
// plan file, and a repository to check worktrees out of.
package cmd

import (
	"github.com/spf13/cobra"
)

// Root flags shared by every subcommand.
var (
	flagRepo   string
	flagConfig string
)

// NewRootCommand builds the nexus CLI's root command and subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "nexus",
		Short:         "Nexus drives a task plan to completion with autonomous coding agents.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flagRepo, "repo", ".", "repository root to check worktrees and checkpoints out of")
	root.PersistentFlags().StringVar(&flagConfig, "config", "nexus.yaml", "path to Nexus's YAML config file")

	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())

	return root
}
