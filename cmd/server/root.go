package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gallerysync/api/internal/config"
	"github.com/gallerysync/api/internal/logging"
)

// cli holds what every subcommand needs after startup
type cli struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	rt := &cli{}

	cmd := &cobra.Command{
		Use:           "gallerysync",
		Short:         "Bulk product gallery synchronization service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = logging.New(cfg.Server.Env, cfg.Server.LogLevel)
			return nil
		},
	}

	cmd.AddCommand(newServeCmd(rt))
	cmd.AddCommand(newWorkerCmd(rt))
	cmd.AddCommand(newMigrateCmd(rt))

	return cmd
}
