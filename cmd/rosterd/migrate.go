package main

import (
	"context"
	"fmt"
	"time"

	"github.com/l1jgo/roster/internal/persist"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			db, err := persist.NewDB(ctx, cfg.Database, cfg.Server.Name+"-migrate", log)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer db.Close()

			if down {
				err = persist.RollbackMigration(ctx, db.Pool)
			} else {
				err = persist.RunMigrations(ctx, db.Pool)
			}
			if err != nil {
				return fmt.Errorf("migrations: %w", err)
			}

			v, err := persist.SchemaVersion(ctx, db.Pool)
			if err != nil {
				return fmt.Errorf("schema version: %w", err)
			}
			log.Info("migrations done", zap.Int64("schema", v), zap.Bool("down", down))
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the latest migration")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rosterd %s\n", Version)
		},
	}
}
