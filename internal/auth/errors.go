package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the auth pipeline. The api package maps each to an
// HTTP status and a stable error code.
var (
	ErrAuthenticationRequired  = errors.New("authentication required")
	ErrTokenExpired            = errors.New("token expired")
	ErrTokenInvalid            = errors.New("invalid token")
	ErrTokenVerificationFailed = errors.New("token verification failed")
	ErrAccountLocked           = errors.New("account locked")
	ErrUserNotFoundOrInactive  = errors.New("user not found or inactive")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrCompanyContextRequired  = errors.New("company context required")
	ErrCompanyAccessDenied     = errors.New("company access denied")
	ErrCompanyNotFound         = errors.New("company not found")
	ErrAdminRequired           = errors.New("admin role required")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrCompanyValidationFailed = errors.New("company validation failed")

	// Store-level errors.
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("username or email already exists")
	ErrCompanyExists = errors.New("company code already exists")
	ErrInvalidRole   = errors.New("invalid role")
)

// LockedError is returned while an account is inside its lockout window.
// errors.Is(err, ErrAccountLocked) is true for any *LockedError.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Is matches ErrAccountLocked.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// UnlockTime extracts the unlock time from err if it is a lockout error.
func UnlockTime(err error) (time.Time, bool) {
	var locked *LockedError
	if errors.As(err, &locked) {
		return locked.Until, true
	}
	return time.Time{}, false
}
