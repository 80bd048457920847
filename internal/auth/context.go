package auth

import "context"

// AuthContext is the immutable result of the auth pipeline for one request.
// Handlers receive it through FromContext and never mutate it.
type AuthContext struct {
	identity *Identity
	company  *CompanyContext
	engine   *PermissionEngine
}

// NewAuthContext builds an AuthContext. company may be nil.
func NewAuthContext(id *Identity, company *CompanyContext, engine *PermissionEngine) *AuthContext {
	return &AuthContext{identity: id, company: company, engine: engine}
}

// Identity returns the authenticated identity.
func (a *AuthContext) Identity() *Identity { return a.identity }

// UserID returns the authenticated user's id.
func (a *AuthContext) UserID() string { return a.identity.ID }

// IsSuperAdmin reports whether the caller bypasses company checks.
func (a *AuthContext) IsSuperAdmin() bool { return a.identity.IsSuperAdmin }

// Company returns the resolved company, or nil.
func (a *AuthContext) Company() *Company {
	if a.company == nil {
		return nil
	}
	return a.company.Company
}

// CompanyID returns the resolved company id, or "".
func (a *AuthContext) CompanyID() string {
	return a.company.CompanyID()
}

// Access returns the resolved access entry. Nil for super admins and for
// requests without a company context.
func (a *AuthContext) Access() *CompanyAccessEntry {
	if a.company == nil {
		return nil
	}
	return a.company.Access
}

// Role returns the caller's role in the resolved company.
func (a *AuthContext) Role() Role {
	if access := a.Access(); access != nil {
		return access.Role
	}
	if a.identity.IsSuperAdmin {
		return RoleSuperAdmin
	}
	return ""
}

// IsImpersonating reports whether a super admin acts in a company they are
// not a member of.
func (a *AuthContext) IsImpersonating() bool {
	return a.company != nil && a.company.Impersonating
}

// HasCompany reports whether a company context was resolved.
func (a *AuthContext) HasCompany() bool {
	return a.Company() != nil
}

// Authorize runs the permission engine for this caller.
func (a *AuthContext) Authorize(module, action string, opts AuthorizeOptions) (GrantBasis, error) {
	return a.engine.Authorize(a.identity, a.Access(), module, action, opts)
}

// Can is Authorize without options, reduced to a bool.
func (a *AuthContext) Can(module, action string) bool {
	_, err := a.Authorize(module, action, AuthorizeOptions{})
	return err == nil
}

// withCompany returns a copy bound to company.
func (a *AuthContext) withCompany(company *CompanyContext) *AuthContext {
	cp := *a
	cp.company = company
	return &cp
}

type contextKey struct{}

// NewContext returns ctx carrying ac.
func NewContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext returns the AuthContext stored in ctx, if any.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(*AuthContext)
	return ac, ok && ac != nil
}
