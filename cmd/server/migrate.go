package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Clark-Hu/freelance-hub/internal/config"
	"github.com/Clark-Hu/freelance-hub/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbURL, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return store.Migrate(dbURL, logger.Named("freelance-hub"))
		},
	}
}
