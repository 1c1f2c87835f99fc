package cli

import (
	"github.com/spf13/cobra"

	"github.com/inkwellhq/inkwell-sync/internal/app"
	"github.com/inkwellhq/inkwell-sync/internal/config"
)

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine: initial full sync, realtime feed and connectivity probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func newSyncCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one full reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return a.SyncOnce(cmd.Context())
		},
	}
}

func newPruneCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop deletion-ledger entries past the retention window and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return a.PruneLedgers(cmd.Context())
		},
	}
}
