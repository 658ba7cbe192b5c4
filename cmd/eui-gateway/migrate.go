package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply ledger schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		db, err := storage.NewDB(ctx, storage.DBConfig{
			URL:          cfg.Database.URL,
			MaxOpenConns: 2,
			MaxIdleConns: 1,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		if err := storage.RunMigrations(ctx, db, logger); err != nil {
			return err
		}

		version, dirty, err := storage.MigrationVersion(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("Ledger schema ready", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
