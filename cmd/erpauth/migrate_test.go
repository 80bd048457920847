package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/database"
)

func migrateConfig(t *testing.T) {
	t.Helper()
	path := writeTestConfig(t, `
database:
  path: "`+filepath.Join(t.TempDir(), "migrate.db")+`"
security:
  jwt:
    secret: "test-access-secret-at-least-32-chars!"
    refresh_secret: "test-refresh-secret-at-least-32-chars"
`)
	t.Setenv(configEnvVar, path)
}

func TestRunMigrate_UpStatusDown(t *testing.T) {
	migrateConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := runMigrate(ctx, []string{"up"}, &out); err != nil {
		t.Fatalf("runMigrate(up) error = %v", err)
	}
	if !strings.Contains(out.String(), "applied  20261001_090000") {
		t.Errorf("up output = %q, want applied auth schema", out.String())
	}

	out.Reset()
	if err := runMigrate(ctx, []string{"status"}, &out); err != nil {
		t.Fatalf("runMigrate(status) error = %v", err)
	}
	if !strings.Contains(out.String(), "schema version: 20261001_090000") || strings.Contains(out.String(), "pending") {
		t.Errorf("status output = %q", out.String())
	}

	out.Reset()
	if err := runMigrate(ctx, []string{"down"}, &out); err != nil {
		t.Fatalf("runMigrate(down) error = %v", err)
	}
	if !strings.Contains(out.String(), "schema version: none") || !strings.Contains(out.String(), "pending  20261001_090000") {
		t.Errorf("down output = %q", out.String())
	}
}

func TestRunMigrate_BadUsage(t *testing.T) {
	migrateConfig(t)
	ctx := context.Background()

	if err := runMigrate(ctx, nil, &bytes.Buffer{}); err == nil {
		t.Error("runMigrate() without a command should fail")
	}
	if err := runMigrate(ctx, []string{"sideways"}, &bytes.Buffer{}); err == nil {
		t.Error("runMigrate(sideways) should fail")
	}
}

func TestSchemaVersion(t *testing.T) {
	if got := schemaVersion(nil); got != "none" {
		t.Errorf("schemaVersion(nil) = %q, want none", got)
	}
	applied := []database.MigrationRecord{{Version: "20260101_000000"}, {Version: "20261001_090000"}}
	if got := schemaVersion(applied); got != "20261001_090000" {
		t.Errorf("schemaVersion() = %q, want latest", got)
	}
}
