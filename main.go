package main

import (
	"log/slog"
	"os"

	"github.com/billbatista/acasinha-debts/config"
	"github.com/spf13/cobra"
)

var (
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "debts",
	Short: "Track money lent to and borrowed from people",
	Long: `debts keeps one ledger per counterparty and derives who owes whom
by replaying its records.

Example:
  debts migrate
  debts serve`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		loaded, err := config.Load(files...)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = config.NewLogger(cfg)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load (default is .env when present)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printErrorAndExit("command failed", err)
	}
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
