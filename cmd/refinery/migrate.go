package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/refinery/internal/store"
)

var migrateForce int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply ledger database migrations",
	Long: `Apply pending migrations to DATABASE_URL.

Examples:
  refinery migrate
  refinery migrate --force 1   # clear a dirty flag after a failed migration`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		return store.Migrate(cfg.DatabaseURL, migrateForce, slog.Default())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().IntVar(&migrateForce, "force", -1, "Force the schema to this version instead of migrating")
}
