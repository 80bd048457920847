package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DecisionObserver receives every permission decision, allowed or not.
type DecisionObserver interface {
	ObserveDecision(companyID, module, action string, basis GrantBasis, allowed bool)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Tokens    *TokenService
	Guard     *LockoutGuard
	Engine    *PermissionEngine
	Users     UserStore
	Companies CompanyStore

	// Optional.
	Recorder  EventRecorder
	Decisions DecisionObserver
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service composes token verification, identity loading, lockout,
// company resolution and permission checks into one pipeline.
//
// Thread Safety:
//   - Service holds no per-request state and is safe for concurrent use.
type Service struct {
	tokens     *TokenService
	guard      *LockoutGuard
	engine     *PermissionEngine
	users      UserStore
	companies  CompanyStore
	identities *IdentityResolver
	tenants    *CompanyContextResolver
	recorder   EventRecorder
	decisions  DecisionObserver
	logger     *slog.Logger
	now        func() time.Time
}

// NewService validates cfg and builds the pipeline.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Tokens == nil:
		return nil, errors.New("auth service: token service is required")
	case cfg.Guard == nil:
		return nil, errors.New("auth service: lockout guard is required")
	case cfg.Engine == nil:
		return nil, errors.New("auth service: permission engine is required")
	case cfg.Users == nil:
		return nil, errors.New("auth service: user store is required")
	case cfg.Companies == nil:
		return nil, errors.New("auth service: company store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		tokens:     cfg.Tokens,
		guard:      cfg.Guard,
		engine:     cfg.Engine,
		users:      cfg.Users,
		companies:  cfg.Companies,
		identities: NewIdentityResolver(cfg.Users, cfg.Guard, recorder, logger),
		tenants:    NewCompanyContextResolver(cfg.Companies, cfg.Users, logger, now),
		recorder:   recorder,
		decisions:  cfg.Decisions,
		logger:     logger,
		now:        now,
	}, nil
}

// ExpiresIn returns the configured access token lifetime string.
func (s *Service) ExpiresIn() string {
	return s.tokens.ExpiresIn()
}

// AuthRequest carries the request inputs the pipeline reads.
type AuthRequest struct {
	BearerToken   string
	CompanyHeader string
	ClientIP      string
	Path          string

	// ContextExempt skips company resolution entirely.
	ContextExempt bool
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" when the header is missing or not a bearer credential.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate runs token verification, identity load and lockout check,
// then resolves the company when one is selected by header or token.
//
// A request without any company selection proceeds with no company; routes
// that need one call RequireCompany.
func (s *Service) Authenticate(ctx context.Context, req AuthRequest) (*AuthContext, error) {
	if req.BearerToken == "" {
		return nil, ErrAuthenticationRequired
	}

	claims, err := s.tokens.VerifyAccessToken(req.BearerToken)
	if err != nil {
		return nil, err
	}

	id, err := s.identities.Load(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	ac := NewAuthContext(id, nil, s.engine)
	if req.ContextExempt {
		return ac, nil
	}

	sel := CompanySelection{Header: req.CompanyHeader, Token: claims.CompanyID, ClientIP: req.ClientIP}
	if sel.Target() == "" {
		return ac, nil
	}

	cc, err := s.tenants.Resolve(ctx, id, sel)
	if err != nil {
		s.companyDenied(ctx, id, sel.Target(), req, err)
		return nil, err
	}
	return ac.withCompany(cc), nil
}

// RequireCompany ensures ac carries a company context, resolving it from
// header when needed. A header that names a different company than the
// one already resolved is re-resolved.
func (s *Service) RequireCompany(ctx context.Context, ac *AuthContext, req AuthRequest) (*AuthContext, error) {
	if ac.HasCompany() && (req.CompanyHeader == "" || req.CompanyHeader == ac.CompanyID()) {
		return ac, nil
	}

	sel := CompanySelection{Header: req.CompanyHeader, ClientIP: req.ClientIP}
	cc, err := s.tenants.Resolve(ctx, ac.Identity(), sel)
	if err != nil {
		s.companyDenied(ctx, ac.Identity(), sel.Target(), req, err)
		return nil, err
	}
	return ac.withCompany(cc), nil
}

func (s *Service) companyDenied(ctx context.Context, id *Identity, companyID string, req AuthRequest, err error) {
	if errors.Is(err, ErrCompanyValidationFailed) {
		s.logger.Error("company validation failed",
			"user_id", id.ID,
			"company_id", companyID,
			"path", req.Path,
			"error", err,
		)
		return
	}
	s.logger.Warn("company context denied",
		"user_id", id.ID,
		"company_id", companyID,
		"path", req.Path,
		"reason", err.Error(),
	)
	s.recorder.Record(ctx, SecurityEvent{
		Type:      EventCompanyDenied,
		UserID:    id.ID,
		Username:  id.Username,
		CompanyID: companyID,
		Path:      req.Path,
		IP:        req.ClientIP,
		Reason:    err.Error(),
		At:        s.now(),
	})
}

// PermissionRequest describes one permission check.
type PermissionRequest struct {
	Module  string
	Action  string
	Options AuthorizeOptions

	Path     string
	ClientIP string
}

// Authorize runs the permission engine for ac and logs denials.
func (s *Service) Authorize(ctx context.Context, ac *AuthContext, req PermissionRequest) (GrantBasis, error) {
	basis, err := ac.Authorize(req.Module, req.Action, req.Options)
	if s.decisions != nil {
		s.decisions.ObserveDecision(ac.CompanyID(), req.Module, req.Action, basis, err == nil)
	}
	if err == nil {
		return basis, nil
	}

	s.logger.Warn("permission denied",
		"user_id", ac.UserID(),
		"role", string(ac.Role()),
		"company_id", ac.CompanyID(),
		"module", req.Module,
		"action", req.Action,
		"path", req.Path,
		"reason", err.Error(),
	)
	s.recorder.Record(ctx, SecurityEvent{
		Type:      EventPermissionDenied,
		UserID:    ac.UserID(),
		Username:  ac.Identity().Username,
		CompanyID: ac.CompanyID(),
		Role:      ac.Role(),
		Module:    req.Module,
		Action:    req.Action,
		Path:      req.Path,
		IP:        req.ClientIP,
		Reason:    err.Error(),
		At:        s.now(),
	})
	return basis, err
}

// LoginRequest is a credential login.
type LoginRequest struct {
	Login     string
	Password  string
	CompanyID string
	ClientIP  string
}

// LoginResult is a successful login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    string
	Identity     *Identity
	CompanyID    string
}

// Login verifies credentials and drives the lockout state machine.
//
// Errors: ErrInvalidCredentials, ErrUserNotFoundOrInactive, *LockedError,
// or a wrapped store error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if req.Login == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	rec, err := s.users.FindByLogin(ctx, req.Login)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.recordLoginFailure(ctx, nil, req, "unknown_user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !rec.IsActive {
		s.recordLoginFailure(ctx, rec, req, "inactive")
		return nil, ErrUserNotFoundOrInactive
	}

	state, changed, err := s.guard.Check(rec.Lockout)
	if err != nil {
		s.recordLoginFailure(ctx, rec, req, "locked")
		return nil, err
	}
	if changed {
		rec.Lockout = state
		s.identities.persistUnlock(ctx, rec)
	}

	ok, err := VerifyPassword(req.Password, rec.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password for %s: %w", rec.ID, err)
	}
	if !ok {
		return nil, s.failLogin(ctx, rec, req)
	}

	if next, changed := s.guard.RecordSuccess(rec.Lockout); changed {
		rec.Lockout = next
		if err := s.users.UpdateLockout(ctx, rec.ID, next); err != nil {
			s.logger.Warn("resetting failed attempts failed", "user_id", rec.ID, "error", err)
		}
	}
	if err := s.users.RecordLogin(ctx, rec.ID, req.ClientIP, s.now()); err != nil {
		s.logger.Debug("recording last login failed", "user_id", rec.ID, "error", err)
	}

	id := NewIdentity(rec)
	access, err := s.tokens.IssueAccessToken(id, req.CompanyID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken(id.ID, id.TokenVersion)
	if err != nil {
		return nil, err
	}

	companyID := ""
	if _, ok := id.ActiveAccess(req.CompanyID); ok {
		companyID = req.CompanyID
	}

	s.logger.Info("login succeeded", "user_id", id.ID, "company_id", companyID)
	s.recorder.Record(ctx, SecurityEvent{
		Type:      EventLoginSucceeded,
		UserID:    id.ID,
		Username:  id.Username,
		CompanyID: companyID,
		IP:        req.ClientIP,
		At:        s.now(),
	})

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.tokens.ExpiresIn(),
		Identity:     id,
		CompanyID:    companyID,
	}, nil
}

// failLogin counts a wrong password and locks the account at the threshold.
// Concurrent failures may under-count by one; that is accepted.
func (s *Service) failLogin(ctx context.Context, rec *UserRecord, req LoginRequest) error {
	next, lockedNow := s.guard.RecordFailure(rec.Lockout)
	if err := s.users.UpdateLockout(ctx, rec.ID, next); err != nil {
		s.logger.Warn("persisting failed attempt failed", "user_id", rec.ID, "error", err)
	}

	s.recordLoginFailure(ctx, rec, req, "bad_password")
	if lockedNow {
		s.logger.Warn("account locked",
			"user_id", rec.ID,
			"failed_attempts", next.FailedAttempts,
			"until", next.LockoutUntil,
		)
		s.recorder.Record(ctx, SecurityEvent{
			Type:     EventAccountLocked,
			UserID:   rec.ID,
			Username: rec.Username,
			IP:       req.ClientIP,
			Reason:   "threshold_reached",
			Until:    next.LockoutUntil,
			At:       s.now(),
		})
	}
	return ErrInvalidCredentials
}

func (s *Service) recordLoginFailure(ctx context.Context, rec *UserRecord, req LoginRequest, reason string) {
	ev := SecurityEvent{
		Type:   EventLoginFailed,
		IP:     req.ClientIP,
		Reason: reason,
		At:     s.now(),
	}
	if rec != nil {
		ev.UserID = rec.ID
		ev.Username = rec.Username
	}
	s.logger.Info("login failed", "user_id", ev.UserID, "reason", reason)
	s.recorder.Record(ctx, ev)
}

// RefreshResult is a newly issued access token.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   string
}

// Refresh exchanges a refresh token for a new access token. The new token
// carries no company; callers select one again.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*RefreshResult, error) {
	if rawRefresh == "" {
		return nil, ErrAuthenticationRequired
	}

	claims, err := s.tokens.VerifyRefreshToken(rawRefresh)
	if err != nil {
		return nil, err
	}

	id, err := s.identities.Load(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if claims.TokenVersion != id.TokenVersion {
		return nil, fmt.Errorf("%w: refresh token revoked", ErrTokenInvalid)
	}

	access, err := s.tokens.IssueAccessToken(id, "")
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, SecurityEvent{
		Type:     EventTokenRefreshed,
		UserID:   id.ID,
		Username: id.Username,
		At:       s.now(),
	})

	return &RefreshResult{AccessToken: access, ExpiresIn: s.tokens.ExpiresIn()}, nil
}

// SwitchCompany validates access to companyID and returns a token with that
// company embedded.
func (s *Service) SwitchCompany(ctx context.Context, ac *AuthContext, companyID, clientIP string) (string, *CompanyContext, error) {
	if companyID == "" {
		return "", nil, ErrCompanyContextRequired
	}

	cc, err := s.tenants.Resolve(ctx, ac.Identity(), CompanySelection{Header: companyID, ClientIP: clientIP})
	if err != nil {
		s.companyDenied(ctx, ac.Identity(), companyID, AuthRequest{ClientIP: clientIP, Path: "switch-company"}, err)
		return "", nil, err
	}

	token, err := s.tokens.IssueAccessToken(ac.Identity(), companyID)
	if err != nil {
		return "", nil, err
	}

	s.recorder.Record(ctx, SecurityEvent{
		Type:      EventCompanySwitched,
		UserID:    ac.UserID(),
		Username:  ac.Identity().Username,
		CompanyID: companyID,
		IP:        clientIP,
		At:        s.now(),
	})
	return token, cc, nil
}

// RevokeSessions bumps the caller's token version, invalidating every
// refresh token issued before. It returns the new version.
func (s *Service) RevokeSessions(ctx context.Context, ac *AuthContext) (int, error) {
	version, err := s.users.IncrementTokenVersion(ctx, ac.UserID())
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}

	s.logger.Info("sessions revoked", "user_id", ac.UserID(), "token_version", version)
	s.recorder.Record(ctx, SecurityEvent{
		Type:     EventSessionsRevoked,
		UserID:   ac.UserID(),
		Username: ac.Identity().Username,
		At:       s.now(),
	})
	return version, nil
}

// Companies returns the active companies ac may select.
func (s *Service) Companies(ctx context.Context, ac *AuthContext) ([]Company, error) {
	ids := ac.Identity().CompanyIDs()
	if len(ids) == 0 {
		return []Company{}, nil
	}

	all, err := s.companies.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("listing companies: %w", err)
	}

	out := make([]Company, 0, len(all))
	for _, c := range all {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

// User loads a user as an identity for display. Lockout is not evaluated.
func (s *Service) User(ctx context.Context, id string) (*Identity, error) {
	rec, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewIdentity(rec), nil
}
