package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/config"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/database"
	_ "github.com/Rajatsinha05/erp-sub004/migrations" // registers the embedded schema
)

func testRepo(t *testing.T) *SQLRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Driver:      database.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLRepository(db)
}

func TestSQLRepository_CreateAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	entries := []*AuditLog{
		{Action: "login_failed", UserID: "u1", IP: "10.0.0.1", Reason: "invalid credentials", CreatedAt: base},
		{Action: "account_locked", UserID: "u1", Details: map[string]any{"unlockTime": "2026-10-01T09:30:00Z"}, CreatedAt: base.Add(time.Second)},
		{Action: "permission_denied", UserID: "u2", CompanyID: "c1", Module: "inventory", Target: "/api/v1/inventory", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Fatal("Create() did not assign an ID")
		}
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 3 || len(res.Logs) != 3 {
		t.Fatalf("List() total = %d, len = %d, want 3", res.Total, len(res.Logs))
	}
	if res.Logs[0].Action != "permission_denied" {
		t.Errorf("List()[0].Action = %q, want most recent first", res.Logs[0].Action)
	}
	if res.Limit != defaultLimit {
		t.Errorf("List() limit = %d, want %d", res.Limit, defaultLimit)
	}
	if got := res.Logs[1].Details["unlockTime"]; got != "2026-10-01T09:30:00Z" {
		t.Errorf("Details[unlockTime] = %v, want round-trip", got)
	}
	if !res.Logs[2].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", res.Logs[2].CreatedAt, base)
	}
}

func TestSQLRepository_ListFilters(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, action := range []string{"login_failed", "login_failed", "login_succeeded", "company_denied"} {
		log := &AuditLog{Action: action, UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if i == 3 {
			log.UserID = "u2"
			log.CompanyID = "c9"
		}
		if err := repo.Create(ctx, log); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{name: "action", filter: Filter{Action: "login_failed"}, want: 2},
		{name: "user", filter: Filter{UserID: "u2"}, want: 1},
		{name: "company", filter: Filter{CompanyID: "c9"}, want: 1},
		{name: "since", filter: Filter{Since: base.Add(2 * time.Minute)}, want: 2},
		{name: "no match", filter: Filter{Action: "sessions_revoked"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.want {
				t.Errorf("List() total = %d, want %d", res.Total, tt.want)
			}
		})
	}
}

func TestSQLRepository_ListPagination(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, &AuditLog{Action: "login_failed", CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	res, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 5 {
		t.Errorf("Total = %d, want 5", res.Total)
	}
	if len(res.Logs) != 1 {
		t.Errorf("len(Logs) = %d, want 1", len(res.Logs))
	}

	res, err = repo.List(ctx, Filter{Limit: 1000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit {
		t.Errorf("Limit = %d, want clamp to %d", res.Limit, maxLimit)
	}
}
