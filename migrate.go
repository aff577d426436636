package main

import (
	"github.com/billbatista/acasinha-debts/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()

		applied, err := db.Migrate(cmd.Context(), database, logger)
		if err != nil {
			return err
		}
		logger.Info("database up to date", "applied", len(applied))
		return nil
	},
}
