package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CompanySelection carries the per-request inputs for tenant selection.
type CompanySelection struct {
	// Header is the X-Company-ID value, if sent.
	Header string
	// Token is the company embedded in the access token, if any.
	Token string
	// ClientIP is recorded as last-login metadata on success.
	ClientIP string
}

// Target returns the company the request asks for. The header wins over the
// token.
func (s CompanySelection) Target() string {
	if s.Header != "" {
		return s.Header
	}
	return s.Token
}

// CompanyContext is the resolved tenant for a request.
//
// For a super admin Access is nil: authorization always takes the bypass.
// Company is nil when a super admin made no selection.
type CompanyContext struct {
	Company *Company
	Access  *CompanyAccessEntry

	// Impersonating is true when a super admin acts inside a company they
	// hold no membership in.
	Impersonating bool
}

// CompanyID returns the resolved company id or "".
func (c *CompanyContext) CompanyID() string {
	if c == nil || c.Company == nil {
		return ""
	}
	return c.Company.ID
}

// CompanyContextResolver validates an identity's access to the selected tenant.
type CompanyContextResolver struct {
	companies CompanyStore
	users     UserStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewCompanyContextResolver builds a resolver. users may be nil, in which
// case last-login metadata is not recorded.
func NewCompanyContextResolver(companies CompanyStore, users UserStore, logger *slog.Logger, now func() time.Time) *CompanyContextResolver {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &CompanyContextResolver{companies: companies, users: users, logger: logger, now: now}
}

// Resolve determines the company the request operates under.
//
// Errors: ErrCompanyContextRequired, ErrCompanyAccessDenied,
// ErrCompanyNotFound, or ErrCompanyValidationFailed wrapping a store error.
func (r *CompanyContextResolver) Resolve(ctx context.Context, id *Identity, sel CompanySelection) (*CompanyContext, error) {
	target := sel.Target()

	if id.IsSuperAdmin {
		if target == "" {
			r.recordLogin(ctx, id, sel.ClientIP)
			return &CompanyContext{}, nil
		}
		company, err := r.loadCompany(ctx, target)
		if err != nil {
			return nil, err
		}
		_, member := id.ActiveAccess(target)
		r.recordLogin(ctx, id, sel.ClientIP)
		return &CompanyContext{Company: company, Impersonating: !member}, nil
	}

	if target == "" {
		return nil, ErrCompanyContextRequired
	}
	entry, ok := id.ActiveAccess(target)
	if !ok {
		return nil, ErrCompanyAccessDenied
	}
	company, err := r.loadCompany(ctx, target)
	if err != nil {
		return nil, err
	}

	r.recordLogin(ctx, id, sel.ClientIP)
	return &CompanyContext{Company: company, Access: &entry}, nil
}

func (r *CompanyContextResolver) loadCompany(ctx context.Context, companyID string) (*Company, error) {
	company, err := r.companies.FindByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrCompanyNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrCompanyValidationFailed, err)
	}
	if company == nil || !company.IsActive {
		return nil, ErrCompanyNotFound
	}
	return company, nil
}

// recordLogin updates last-login metadata. Failures are logged and ignored.
func (r *CompanyContextResolver) recordLogin(ctx context.Context, id *Identity, ip string) {
	if r.users == nil {
		return
	}
	if err := r.users.RecordLogin(ctx, id.ID, ip, r.now()); err != nil {
		r.logger.Debug("recording last login failed", "user_id", id.ID, "error", err)
	}
}
