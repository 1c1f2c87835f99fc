// Package cli defines the inkwell-sync command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "inkwell-sync",
		Short: "Offline-first synchronization engine for Inkwell projects",
		Long: `inkwell-sync keeps a local SQLite store and the remote Inkwell backend
eventually consistent: deterministic last-write-wins merge, deletion
propagation across devices, realtime change streaming and asset transfer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (optional, env vars with INKWELL_ prefix also apply)")

	cmd.AddCommand(newRunCommand(&configPath))
	cmd.AddCommand(newSyncCommand(&configPath))
	cmd.AddCommand(newPruneCommand(&configPath))
	cmd.AddCommand(newTokenCommand())

	return cmd
}
