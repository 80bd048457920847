package auth

import "time"

// Role names a position inside one company.
type Role string

// Built-in roles.
const (
	RoleSuperAdmin    Role = "super_admin"
	RoleOwner         Role = "owner"
	RoleManager       Role = "manager"
	RoleSupervisor    Role = "supervisor"
	RoleAccountant    Role = "accountant"
	RoleSecurityGuard Role = "security_guard"
	RoleEmployee      Role = "employee"
)

// AllRoles lists the built-in roles from most to least privileged.
var AllRoles = []Role{
	RoleSuperAdmin, RoleOwner, RoleManager, RoleSupervisor,
	RoleAccountant, RoleSecurityGuard, RoleEmployee,
}

// IsValid reports whether r is one of the built-in roles.
func (r Role) IsValid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Permissions is a per-user grant matrix: module -> action -> granted.
type Permissions map[string]map[string]bool

// Allows reports whether the matrix explicitly grants action on module.
// A nil matrix grants nothing.
func (p Permissions) Allows(module, action string) bool {
	if p == nil {
		return false
	}
	return p[module][action]
}

// CompanyAccessEntry is a user's membership in one tenant company.
type CompanyAccessEntry struct {
	CompanyID   string      `json:"companyId"`
	Role        Role        `json:"role"`
	Permissions Permissions `json:"permissions,omitempty"`
	IsActive    bool        `json:"isActive"`
	JoinedAt    time.Time   `json:"joinedAt"`
}

// Company is a tenant. Read-only to the auth pipeline.
type Company struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	IsActive bool   `json:"isActive"`
}

// LockoutState is the persisted failed-login state of one user.
type LockoutState struct {
	FailedAttempts int
	AccountLocked  bool
	LockoutUntil   *time.Time
}

// UserRecord is the stored form of a user, as returned by a UserStore.
type UserRecord struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	IsActive      bool
	IsSuperAdmin  bool
	Lockout       LockoutState
	TokenVersion  int
	LastLoginAt   *time.Time
	LastLoginIP   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompanyAccess []CompanyAccessEntry
}

// Identity is the per-request view of an authenticated user.
//
// Only active company access entries are indexed; the index is keyed by
// company id so membership checks are a single map lookup.
type Identity struct {
	ID           string
	Username     string
	Email        string
	IsActive     bool
	IsSuperAdmin bool
	TokenVersion int
	Lockout      LockoutState

	access map[string]CompanyAccessEntry
	order  []string
}

// NewIdentity builds an Identity from a stored record.
// If a company appears in more than one active entry, the first one wins.
func NewIdentity(rec *UserRecord) *Identity {
	id := &Identity{
		ID:           rec.ID,
		Username:     rec.Username,
		Email:        rec.Email,
		IsActive:     rec.IsActive,
		IsSuperAdmin: rec.IsSuperAdmin,
		TokenVersion: rec.TokenVersion,
		Lockout:      rec.Lockout,
		access:       make(map[string]CompanyAccessEntry, len(rec.CompanyAccess)),
	}
	for _, entry := range rec.CompanyAccess {
		if !entry.IsActive || entry.CompanyID == "" {
			continue
		}
		if _, dup := id.access[entry.CompanyID]; dup {
			continue
		}
		id.access[entry.CompanyID] = entry
		id.order = append(id.order, entry.CompanyID)
	}
	return id
}

// ActiveAccess returns the active access entry for companyID, if any.
func (i *Identity) ActiveAccess(companyID string) (CompanyAccessEntry, bool) {
	if i == nil || companyID == "" {
		return CompanyAccessEntry{}, false
	}
	entry, ok := i.access[companyID]
	return entry, ok
}

// ActiveAccessList returns the active entries in stored order.
func (i *Identity) ActiveAccessList() []CompanyAccessEntry {
	out := make([]CompanyAccessEntry, 0, len(i.order))
	for _, id := range i.order {
		out = append(out, i.access[id])
	}
	return out
}

// CompanyIDs returns the ids of companies the identity may act in.
func (i *Identity) CompanyIDs() []string {
	return append([]string(nil), i.order...)
}
