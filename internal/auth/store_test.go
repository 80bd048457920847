package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/config"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/database"
	_ "github.com/Rajatsinha05/erp-sub004/migrations" // registers the embedded schema
)

// testDB opens a migrated SQLite database in a temp dir.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Driver:      database.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "auth.db"),
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
	return db
}

func seedStore(t *testing.T) (*SQLUserStore, *SQLCompanyStore, *UserRecord) {
	t.Helper()
	ctx := context.Background()
	db := testDB(t)
	users := NewSQLUserStore(db, 5*time.Second)
	companies := NewSQLCompanyStore(db, 5*time.Second)

	for _, c := range []*Company{
		{ID: "c-1", Name: "Beta Foods", Code: "BETA", IsActive: true},
		{ID: "c-2", Name: "Alpha Mills", Code: "ALPHA", IsActive: true},
		{ID: "c-3", Name: "Closed Co", Code: "CLOSED", IsActive: false},
	} {
		if err := companies.Create(ctx, c); err != nil {
			t.Fatalf("companies.Create() error = %v", err)
		}
	}

	rec := &UserRecord{Username: "asha", Email: "asha@example.com", PasswordHash: "$argon2id$x", IsActive: true}
	if err := users.Create(ctx, rec); err != nil {
		t.Fatalf("users.Create() error = %v", err)
	}
	return users, companies, rec
}

func TestSQLUserStore_CreateAndFind(t *testing.T) {
	users, _, rec := seedStore(t)
	ctx := context.Background()

	if rec.ID == "" {
		t.Fatal("Create() should assign an id")
	}

	byID, err := users.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if byID.Username != "asha" || !byID.IsActive || byID.IsSuperAdmin {
		t.Errorf("FindByID() = %+v", byID)
	}

	for _, login := range []string{"asha", "asha@example.com"} {
		got, err := users.FindByLogin(ctx, login)
		if err != nil {
			t.Fatalf("FindByLogin(%q) error = %v", login, err)
		}
		if got.ID != rec.ID {
			t.Errorf("FindByLogin(%q).ID = %q, want %q", login, got.ID, rec.ID)
		}
	}

	if _, err := users.FindByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("FindByID(missing) error = %v, want ErrUserNotFound", err)
	}

	dup := &UserRecord{Username: "asha", Email: "other@example.com", PasswordHash: "x", IsActive: true}
	if err := users.Create(ctx, dup); !errors.Is(err, ErrUserExists) {
		t.Errorf("Create(duplicate) error = %v, want ErrUserExists", err)
	}

	n, err := users.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v; want 1", n, err)
	}
}

func TestSQLUserStore_CompanyAccess(t *testing.T) {
	users, _, rec := seedStore(t)
	ctx := context.Background()

	grants := []CompanyAccessEntry{
		{CompanyID: "c-1", Role: RoleEmployee, IsActive: true,
			Permissions: Permissions{ModuleInventory: {ActionDelete: true}}},
		{CompanyID: "c-2", Role: RoleManager, IsActive: false},
	}
	for _, g := range grants {
		if err := users.GrantCompanyAccess(ctx, rec.ID, g); err != nil {
			t.Fatalf("GrantCompanyAccess() error = %v", err)
		}
	}
	if err := users.GrantCompanyAccess(ctx, rec.ID, CompanyAccessEntry{CompanyID: "c-1", Role: "boss"}); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("GrantCompanyAccess(bad role) error = %v, want ErrInvalidRole", err)
	}

	got, err := users.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if len(got.CompanyAccess) != 2 {
		t.Fatalf("CompanyAccess = %+v, want 2 entries", got.CompanyAccess)
	}

	id := NewIdentity(got)
	entry, ok := id.ActiveAccess("c-1")
	if !ok || entry.Role != RoleEmployee || !entry.Permissions.Allows(ModuleInventory, ActionDelete) {
		t.Errorf("ActiveAccess(c-1) = %+v, %v", entry, ok)
	}
	if _, ok := id.ActiveAccess("c-2"); ok {
		t.Error("inactive membership should not be active")
	}

	// Upsert re-activates and changes role.
	if err := users.GrantCompanyAccess(ctx, rec.ID, CompanyAccessEntry{CompanyID: "c-2", Role: RoleOwner, IsActive: true}); err != nil {
		t.Fatalf("GrantCompanyAccess(upsert) error = %v", err)
	}
	got, _ = users.FindByID(ctx, rec.ID) //nolint:errcheck // checked above
	if entry, ok := NewIdentity(got).ActiveAccess("c-2"); !ok || entry.Role != RoleOwner {
		t.Errorf("after upsert ActiveAccess(c-2) = %+v, %v", entry, ok)
	}
}

func TestSQLUserStore_LockoutAndLogin(t *testing.T) {
	users, _, rec := seedStore(t)
	ctx := context.Background()

	until := time.Date(2026, 10, 1, 10, 30, 0, 0, time.UTC)
	if err := users.UpdateLockout(ctx, rec.ID, LockoutState{FailedAttempts: 5, AccountLocked: true, LockoutUntil: &until}); err != nil {
		t.Fatalf("UpdateLockout() error = %v", err)
	}
	got, err := users.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !got.Lockout.AccountLocked || got.Lockout.FailedAttempts != 5 || got.Lockout.LockoutUntil == nil || !got.Lockout.LockoutUntil.Equal(until) {
		t.Errorf("Lockout = %+v, want locked until %v", got.Lockout, until)
	}

	if err := users.UpdateLockout(ctx, rec.ID, LockoutState{}); err != nil {
		t.Fatalf("UpdateLockout(reset) error = %v", err)
	}
	got, _ = users.FindByID(ctx, rec.ID) //nolint:errcheck // checked above
	if got.Lockout.AccountLocked || got.Lockout.LockoutUntil != nil {
		t.Errorf("Lockout after reset = %+v", got.Lockout)
	}

	if err := users.UpdateLockout(ctx, "missing", LockoutState{}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateLockout(missing) error = %v, want ErrUserNotFound", err)
	}

	at := time.Date(2026, 10, 1, 11, 0, 0, 0, time.UTC)
	if err := users.RecordLogin(ctx, rec.ID, "192.168.1.20", at); err != nil {
		t.Fatalf("RecordLogin() error = %v", err)
	}
	got, _ = users.FindByID(ctx, rec.ID) //nolint:errcheck // checked above
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) || got.LastLoginIP != "192.168.1.20" {
		t.Errorf("last login = %v %q", got.LastLoginAt, got.LastLoginIP)
	}
}

func TestSQLUserStore_IncrementTokenVersion(t *testing.T) {
	users, _, rec := seedStore(t)
	ctx := context.Background()

	for want := 1; want <= 2; want++ {
		got, err := users.IncrementTokenVersion(ctx, rec.ID)
		if err != nil {
			t.Fatalf("IncrementTokenVersion() error = %v", err)
		}
		if got != want {
			t.Errorf("IncrementTokenVersion() = %d, want %d", got, want)
		}
	}
	if _, err := users.IncrementTokenVersion(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("IncrementTokenVersion(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestSQLCompanyStore(t *testing.T) {
	_, companies, _ := seedStore(t)
	ctx := context.Background()

	c, err := companies.FindByID(ctx, "c-3")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if c.IsActive || c.Code != "CLOSED" {
		t.Errorf("FindByID(c-3) = %+v", c)
	}
	if _, err := companies.FindByID(ctx, "c-9"); !errors.Is(err, ErrCompanyNotFound) {
		t.Errorf("FindByID(missing) error = %v, want ErrCompanyNotFound", err)
	}

	list, err := companies.ListByIDs(ctx, []string{"c-1", "c-2", "c-9"})
	if err != nil {
		t.Fatalf("ListByIDs() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "Alpha Mills" {
		t.Errorf("ListByIDs() = %+v, want 2 ordered by name", list)
	}

	if empty, err := companies.ListByIDs(ctx, nil); err != nil || len(empty) != 0 {
		t.Errorf("ListByIDs(nil) = %v, %v", empty, err)
	}

	if err := companies.Create(ctx, &Company{Name: "Again", Code: "BETA"}); !errors.Is(err, ErrCompanyExists) {
		t.Errorf("Create(duplicate code) error = %v, want ErrCompanyExists", err)
	}
}

func newMockStores(t *testing.T, driverName string) (*SQLUserStore, *SQLCompanyStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() }) //nolint:errcheck // test cleanup
	db := database.Wrap(sqlDB, driverName)
	return NewSQLUserStore(db, time.Second), NewSQLCompanyStore(db, time.Second), mock
}

func TestSQLUserStore_QueryFailure(t *testing.T) {
	users, _, mock := newMockStores(t, database.DriverSQLite)
	mock.ExpectQuery("SELECT id, username").WithArgs("u-1").WillReturnError(errStoreDown)

	_, err := users.FindByID(context.Background(), "u-1")
	if !errors.Is(err, errStoreDown) || errors.Is(err, ErrUserNotFound) {
		t.Errorf("FindByID() error = %v, want wrapped store error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLUserStore_PostgresPlaceholders(t *testing.T) {
	users, _, mock := newMockStores(t, database.DriverPostgres)
	mock.ExpectExec(`UPDATE users SET last_login_at = \$1, last_login_ip = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs(sqlmock.AnyArg(), "10.0.0.1", sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := users.RecordLogin(context.Background(), "u-1", "10.0.0.1", time.Now()); err != nil {
		t.Errorf("RecordLogin() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLCompanyStore_Timeout(t *testing.T) {
	_, companies, mock := newMockStores(t, database.DriverSQLite)
	companies.timeout = 20 * time.Millisecond
	mock.ExpectQuery("SELECT id, name, code, is_active FROM companies").
		WithArgs("c-1").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "is_active"}).AddRow("c-1", "A", "A", 1))

	_, err := companies.FindByID(context.Background(), "c-1")
	if err == nil || errors.Is(err, ErrCompanyNotFound) {
		t.Errorf("FindByID() error = %v, want timeout error", err)
	}
}
