package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// UserStore is the persistence contract the auth pipeline consumes.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*UserRecord, error)
	FindByLogin(ctx context.Context, login string) (*UserRecord, error)
	RecordLogin(ctx context.Context, id, ip string, at time.Time) error
	UpdateLockout(ctx context.Context, id string, state LockoutState) error
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
}

// CompanyStore is the read contract for tenants.
type CompanyStore interface {
	FindByID(ctx context.Context, id string) (*Company, error)
	ListByIDs(ctx context.Context, ids []string) ([]Company, error)
}

// IdentityResolver loads users and applies the lockout check before any
// company or permission work happens.
type IdentityResolver struct {
	users    UserStore
	guard    *LockoutGuard
	recorder EventRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewIdentityResolver builds a resolver. recorder and logger may be nil.
func NewIdentityResolver(users UserStore, guard *LockoutGuard, recorder EventRecorder, logger *slog.Logger) *IdentityResolver {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{
		users:    users,
		guard:    guard,
		recorder: recorder,
		logger:   logger,
		now:      guard.now,
	}
}

// Load returns the active, unlocked identity for userID.
//
// Errors: ErrUserNotFoundOrInactive, *LockedError, or a wrapped store error.
func (r *IdentityResolver) Load(ctx context.Context, userID string) (*Identity, error) {
	rec, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFoundOrInactive
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return r.admit(ctx, rec)
}

// admit applies the active and lockout checks to a loaded record.
func (r *IdentityResolver) admit(ctx context.Context, rec *UserRecord) (*Identity, error) {
	if !rec.IsActive {
		return nil, ErrUserNotFoundOrInactive
	}

	state, changed, err := r.guard.Check(rec.Lockout)
	if err != nil {
		return nil, err
	}
	if changed {
		rec.Lockout = state
		r.persistUnlock(ctx, rec)
	}

	return NewIdentity(rec), nil
}

// persistUnlock writes a lazily cleared lockout. Concurrent requests may both
// write the same reset state; the write is idempotent so lost updates are
// tolerated.
func (r *IdentityResolver) persistUnlock(ctx context.Context, rec *UserRecord) {
	if err := r.users.UpdateLockout(ctx, rec.ID, rec.Lockout); err != nil {
		r.logger.Warn("clearing expired lockout failed",
			"user_id", rec.ID,
			"error", err,
		)
		return
	}
	r.logger.Info("account unlocked after lockout window", "user_id", rec.ID)
	r.recorder.Record(ctx, SecurityEvent{
		Type:     EventAccountUnlocked,
		UserID:   rec.ID,
		Username: rec.Username,
		Reason:   "lockout_expired",
		At:       r.now(),
	})
}
