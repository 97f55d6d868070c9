package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/pricepanel/internal/db"
	"github.com/gyeh/pricepanel/internal/exitcode"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the panel schema migrations to --panel-dsn",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().String("panel-dsn", "", "Postgres connection string of the panel database")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log := setup(cmd)
	ctx := context.Background()

	if cfg.PanelDSN == "" {
		log.Error().Msg("--panel-dsn or PRICEPANEL_PANEL_DSN is required")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.PanelDSN, "")
	if err != nil {
		fatal(log, "database connection failed", err, exitcode.SourceConnError)
	}
	defer pool.Close()

	res, err := db.ApplyMigrations(ctx, pool, log)
	if err != nil {
		fatal(log, "migration failed", err, exitcode.PublishError)
	}
	for _, name := range res.Applied {
		fmt.Printf("applied %s\n", name)
	}
	fmt.Printf("Panel schema up to date: %d applied, %d already applied\n", len(res.Applied), len(res.Skipped))
	return nil
}
