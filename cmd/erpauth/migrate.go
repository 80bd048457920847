package main

import (
	"context"
	"fmt"
	"io"

	"github.com/joho/godotenv"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/config"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/database"
)

const migrateUsage = "usage: erpauth migrate up|down|status"

// runMigrate handles "erpauth migrate <command>" without starting the service.
//
//	up      apply pending migrations
//	down    roll back the most recent migration
//	status  list applied and pending versions
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%s", migrateUsage)
	}

	_ = godotenv.Load()

	configPath, explicit := getConfigPath()
	cfg, err := config.Load(configPath, !explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // short-lived CLI connection

	switch args[0] {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	case "down":
		// Migrate first so schema_migrations exists on a fresh database.
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate command %q: %s", args[0], migrateUsage)
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	fmt.Fprintf(out, "schema version: %s\n", schemaVersion(applied))
	for _, m := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

// schemaVersion returns the latest applied version, or "none".
func schemaVersion(applied []database.MigrationRecord) string {
	if len(applied) == 0 {
		return "none"
	}
	return applied[len(applied)-1].Version
}
