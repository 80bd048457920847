package auth

import (
	"fmt"
	"sort"
)

// Modules known to the role policy.
const (
	ModuleDashboard    = "dashboard"
	ModuleInventory    = "inventory"
	ModuleDispatch     = "dispatch"
	ModuleFinancial    = "financial"
	ModuleSecurityLogs = "security_logs"
	ModuleVisitors     = "visitors"
	ModuleReports      = "reports"
	ModuleHospitality  = "hospitality"
	ModuleElectricity  = "electricity"
	ModuleUsers        = "users"
	ModuleSettings     = "settings"
	ModuleCompanies    = "companies"
	ModuleAudit        = "audit"
)

// Actions known to the role policy.
const (
	ActionView    = "view"
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionApprove = "approve"
	ActionExport  = "export"
)

// AllModules lists every module.
var AllModules = []string{
	ModuleDashboard, ModuleInventory, ModuleDispatch, ModuleFinancial,
	ModuleSecurityLogs, ModuleVisitors, ModuleReports, ModuleHospitality,
	ModuleElectricity, ModuleUsers, ModuleSettings, ModuleCompanies, ModuleAudit,
}

// AllActions lists every action.
var AllActions = []string{
	ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionApprove, ActionExport,
}

// adminRoles may pass an adminOnly check.
var adminRoles = map[Role]bool{
	RoleOwner:   true,
	RoleManager: true,
}

// Policy is an immutable role -> module -> action table.
// The zero value grants nothing.
type Policy struct {
	grants map[Role]map[string]map[string]bool
}

// Allows reports whether role is granted action on module.
func (p Policy) Allows(role Role, module, action string) bool {
	return p.grants[role][module][action]
}

// Actions returns the sorted actions role holds on module.
func (p Policy) Actions(role Role, module string) []string {
	var out []string
	for action, ok := range p.grants[role][module] {
		if ok {
			out = append(out, action)
		}
	}
	sort.Strings(out)
	return out
}

// With returns a copy of p in which role's table is replaced by table.
func (p Policy) With(role Role, table map[string][]string) Policy {
	next := Policy{grants: make(map[Role]map[string]map[string]bool, len(p.grants)+1)}
	for r, modules := range p.grants {
		if r == role {
			continue
		}
		next.grants[r] = modules
	}
	next.grants[role] = buildModules(table)
	return next
}

func buildModules(table map[string][]string) map[string]map[string]bool {
	modules := make(map[string]map[string]bool, len(table))
	for module, actions := range table {
		set := make(map[string]bool, len(actions))
		for _, action := range actions {
			set[action] = true
		}
		modules[module] = set
	}
	return modules
}

func allActionsOn(modules ...string) map[string][]string {
	out := make(map[string][]string, len(modules))
	for _, m := range modules {
		out[m] = AllActions
	}
	return out
}

// DefaultPolicy returns the built-in role table.
func DefaultPolicy() Policy {
	p := Policy{}
	p = p.With(RoleSuperAdmin, allActionsOn(AllModules...))
	p = p.With(RoleOwner, allActionsOn(AllModules...))

	manager := allActionsOn(
		ModuleDashboard, ModuleInventory, ModuleDispatch, ModuleVisitors,
		ModuleHospitality, ModuleElectricity, ModuleSecurityLogs, ModuleReports,
	)
	manager[ModuleFinancial] = []string{ActionView, ActionCreate, ActionUpdate, ActionApprove, ActionExport}
	manager[ModuleUsers] = []string{ActionView, ActionCreate, ActionUpdate}
	manager[ModuleSettings] = []string{ActionView}
	manager[ModuleAudit] = []string{ActionView}
	p = p.With(RoleManager, manager)

	p = p.With(RoleSupervisor, map[string][]string{
		ModuleDashboard:    {ActionView},
		ModuleInventory:    {ActionView, ActionCreate, ActionUpdate},
		ModuleDispatch:     {ActionView, ActionCreate, ActionUpdate, ActionApprove},
		ModuleVisitors:     {ActionView, ActionCreate, ActionUpdate},
		ModuleHospitality:  {ActionView, ActionCreate, ActionUpdate},
		ModuleElectricity:  {ActionView, ActionCreate},
		ModuleSecurityLogs: {ActionView},
		ModuleReports:      {ActionView},
		ModuleUsers:        {ActionView},
	})

	p = p.With(RoleAccountant, map[string][]string{
		ModuleDashboard: {ActionView},
		ModuleFinancial: {ActionView, ActionCreate, ActionUpdate, ActionExport},
		ModuleInventory: {ActionView},
		ModuleDispatch:  {ActionView},
		ModuleReports:   {ActionView, ActionExport},
	})

	p = p.With(RoleSecurityGuard, map[string][]string{
		ModuleDashboard:    {ActionView},
		ModuleVisitors:     {ActionView, ActionCreate, ActionUpdate},
		ModuleSecurityLogs: {ActionView, ActionCreate},
		ModuleDispatch:     {ActionView},
	})

	p = p.With(RoleEmployee, map[string][]string{
		ModuleVisitors:    {ActionView, ActionCreate},
		ModuleInventory:   {ActionView},
		ModuleDispatch:    {ActionView},
		ModuleDashboard:   {ActionView},
		ModuleHospitality: {ActionView},
	})

	return p
}

// PolicyFromConfig applies per-role overrides on top of the default table.
// Each configured role replaces the default entry for that role entirely.
func PolicyFromConfig(overrides map[string]map[string][]string) (Policy, error) {
	p := DefaultPolicy()
	roles := make([]string, 0, len(overrides))
	for role := range overrides {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, name := range roles {
		role := Role(name)
		if !role.IsValid() {
			return Policy{}, fmt.Errorf("%w: %q", ErrInvalidRole, name)
		}
		p = p.With(role, overrides[name])
	}
	return p, nil
}

// AuthorizeOptions modifies a single authorization check.
type AuthorizeOptions struct {
	// AdminOnly restricts the check to owner and manager roles.
	AdminOnly bool
	// AllowSelf grants access when TargetID is the caller's own id.
	AllowSelf bool
	TargetID  string
}

// GrantBasis records which rule decided an authorization.
type GrantBasis string

// Decision bases, in evaluation order.
const (
	BasisSuperAdmin   GrantBasis = "super_admin"
	BasisSelf         GrantBasis = "self"
	BasisUserOverride GrantBasis = "user_override"
	BasisRole         GrantBasis = "role"
	BasisDenied       GrantBasis = "denied"
)

// PermissionEngine decides whether an identity may perform an action.
//
// Evaluation short-circuits in this order: super admin, adminOnly gate, allowSelf,
// per-user override, role policy, deny.
type PermissionEngine struct {
	policy Policy
}

// NewPermissionEngine returns an engine using policy.
func NewPermissionEngine(policy Policy) *PermissionEngine {
	return &PermissionEngine{policy: policy}
}

// Policy returns the engine's role table.
func (e *PermissionEngine) Policy() Policy {
	return e.policy
}

// Authorize returns the basis of the grant, or BasisDenied with
// ErrAdminRequired or ErrInsufficientPermissions.
func (e *PermissionEngine) Authorize(id *Identity, access *CompanyAccessEntry, module, action string, opts AuthorizeOptions) (GrantBasis, error) {
	if (id != nil && id.IsSuperAdmin) || (access != nil && access.Role == RoleSuperAdmin) {
		return BasisSuperAdmin, nil
	}

	// adminOnly gates; admins still need the module/action below.
	if opts.AdminOnly && (access == nil || !adminRoles[access.Role]) {
		return BasisDenied, ErrAdminRequired
	}

	if opts.AllowSelf && id != nil && opts.TargetID != "" && opts.TargetID == id.ID {
		return BasisSelf, nil
	}

	if access == nil {
		return BasisDenied, ErrInsufficientPermissions
	}

	if access.Permissions.Allows(module, action) {
		return BasisUserOverride, nil
	}

	if e.policy.Allows(access.Role, module, action) {
		return BasisRole, nil
	}

	return BasisDenied, ErrInsufficientPermissions
}
