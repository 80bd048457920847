package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes in the seeded password.
const seedPasswordBytes = 16

// SeedStore is the subset of SQLUserStore used for first-boot seeding.
type SeedStore interface {
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, rec *UserRecord) error
}

// SeedSuperAdmin creates a super admin when no users exist. The generated
// password is returned and logged once; it must be changed immediately.
// An empty password means seeding was skipped.
func SeedSuperAdmin(ctx context.Context, users SeedStore, username, email string, logger *slog.Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Debug("users exist, skipping super admin seed")
		return "", nil
	}

	raw := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(raw); err != nil { //nolint:govet // shadow
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(raw)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	rec := &UserRecord{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsSuperAdmin: true,
	}
	if err := users.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("creating super admin: %w", err)
	}

	logger.Warn("seeded super admin account; change the password now",
		"username", username,
		"user_id", rec.ID,
		"password", password,
	)
	return password, nil
}
