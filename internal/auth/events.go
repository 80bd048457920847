package auth

import (
	"context"
	"time"
)

// EventType classifies a security event.
type EventType string

// Security event types.
const (
	EventLoginSucceeded   EventType = "login_succeeded"
	EventLoginFailed      EventType = "login_failed"
	EventAccountLocked    EventType = "account_locked"
	EventAccountUnlocked  EventType = "account_unlocked"
	EventPermissionDenied EventType = "permission_denied"
	EventCompanyDenied    EventType = "company_denied"
	EventTokenRefreshed   EventType = "token_refreshed"
	EventSessionsRevoked  EventType = "sessions_revoked"
	EventCompanySwitched  EventType = "company_switched"
)

// SecurityEvent describes one auth outcome worth recording.
// It never carries token or password material.
type SecurityEvent struct {
	ID        string     `json:"id"`
	Type      EventType  `json:"type"`
	UserID    string     `json:"userId,omitempty"`
	Username  string     `json:"username,omitempty"`
	CompanyID string     `json:"companyId,omitempty"`
	Role      Role       `json:"role,omitempty"`
	Module    string     `json:"module,omitempty"`
	Action    string     `json:"action,omitempty"`
	Path      string     `json:"path,omitempty"`
	IP        string     `json:"ip,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	At        time.Time  `json:"at"`
}

// EventRecorder receives security events. Implementations must not block
// the caller for long and must not fail the auth decision.
type EventRecorder interface {
	Record(ctx context.Context, ev SecurityEvent)
}

// EventRecorderFunc adapts a function to EventRecorder.
type EventRecorderFunc func(ctx context.Context, ev SecurityEvent)

// Record calls f.
func (f EventRecorderFunc) Record(ctx context.Context, ev SecurityEvent) {
	f(ctx, ev)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, SecurityEvent) {}
