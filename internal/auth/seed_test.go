package auth

import (
	"context"
	"testing"
	"time"
)

func TestSeedSuperAdmin(t *testing.T) {
	db := testDB(t)
	users := NewSQLUserStore(db, 5*time.Second)
	ctx := context.Background()

	password, err := SeedSuperAdmin(ctx, users, "superadmin", "superadmin@localhost", discardLogger())
	if err != nil {
		t.Fatalf("SeedSuperAdmin() error = %v", err)
	}
	if len(password) != 2*seedPasswordBytes {
		t.Errorf("password length = %d, want %d", len(password), 2*seedPasswordBytes)
	}

	rec, err := users.FindByLogin(ctx, "superadmin")
	if err != nil {
		t.Fatalf("FindByLogin() error = %v", err)
	}
	if !rec.IsSuperAdmin || !rec.IsActive {
		t.Errorf("seeded user = %+v, want active super admin", rec)
	}
	ok, err := VerifyPassword(password, rec.PasswordHash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword(seeded) = %v, %v", ok, err)
	}

	again, err := SeedSuperAdmin(ctx, users, "superadmin", "superadmin@localhost", discardLogger())
	if err != nil {
		t.Fatalf("second SeedSuperAdmin() error = %v", err)
	}
	if again != "" {
		t.Error("second SeedSuperAdmin() should skip when users exist")
	}
}
