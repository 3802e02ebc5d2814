package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/floodwatch-fl/floodwatch/internal/db"
	"github.com/floodwatch-fl/floodwatch/internal/report"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		switch cfg.Store.Driver {
		case "postgres":
			pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
		case "sqlite":
			// The SQLite store migrates on open.
			store, err := report.NewSQLiteStore(ctx, cfg.Store.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()
		default:
			return eris.Errorf("unknown store driver %q", cfg.Store.Driver)
		}

		zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
