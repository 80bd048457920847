package auth

import "time"

// Lockout defaults used when a guard is built with zero values.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// LockoutGuard evaluates the two-state failed-login machine.
//
// States are Unlocked and Locked. Unlock is lazy: a locked state is only
// cleared when Check runs at or after LockoutUntil. The guard holds no
// per-user state; callers load and persist LockoutState themselves.
type LockoutGuard struct {
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewLockoutGuard returns a guard. now may be nil.
func NewLockoutGuard(threshold int, duration time.Duration, now func() time.Time) *LockoutGuard {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	if now == nil {
		now = time.Now
	}
	return &LockoutGuard{threshold: threshold, duration: duration, now: now}
}

// Threshold returns the number of consecutive failures that locks an account.
func (g *LockoutGuard) Threshold() int {
	return g.threshold
}

// Check evaluates state at the current time.
//
// Inside the window it returns a *LockedError. At or after the window end
// it returns the reset state with changed=true; the caller persists it.
func (g *LockoutGuard) Check(state LockoutState) (next LockoutState, changed bool, err error) {
	if !state.AccountLocked {
		return state, false, nil
	}
	if state.LockoutUntil != nil && g.now().Before(*state.LockoutUntil) {
		return state, false, &LockedError{Until: *state.LockoutUntil}
	}
	return LockoutState{}, true, nil
}

// RecordFailure counts one failed authentication. lockedNow is true when
// this failure moved the account into the Locked state.
func (g *LockoutGuard) RecordFailure(state LockoutState) (next LockoutState, lockedNow bool) {
	next = state
	next.FailedAttempts++
	if !state.AccountLocked && next.FailedAttempts >= g.threshold {
		until := g.now().Add(g.duration)
		next.AccountLocked = true
		next.LockoutUntil = &until
		return next, true
	}
	return next, false
}

// RecordSuccess clears a non-zero failure counter. changed reports whether
// anything needs persisting.
func (g *LockoutGuard) RecordSuccess(state LockoutState) (next LockoutState, changed bool) {
	if state.FailedAttempts == 0 && !state.AccountLocked && state.LockoutUntil == nil {
		return state, false
	}
	return LockoutState{}, true
}
