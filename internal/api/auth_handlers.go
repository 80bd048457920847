package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Rajatsinha05/erp-sub004/internal/auth"
)

// loginRequest is the request body for POST /auth/login. Login accepts a
// username or an email; Username and Email are accepted as aliases.
type loginRequest struct {
	Login     string `json:"login"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	CompanyID string `json:"companyId"`
}

func (r loginRequest) login() string {
	switch {
	case r.Login != "":
		return r.Login
	case r.Username != "":
		return r.Username
	default:
		return r.Email
	}
}

type loginResponse struct {
	Success      bool     `json:"success"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    string   `json:"expiresIn"`
	CompanyID    string   `json:"companyId,omitempty"`
	User         userView `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
	ExpiresIn   string `json:"expiresIn"`
}

// userView is the public shape of an identity.
type userView struct {
	ID            string                    `json:"id"`
	Username      string                    `json:"username"`
	Email         string                    `json:"email"`
	IsActive      bool                      `json:"isActive"`
	IsSuperAdmin  bool                      `json:"isSuperAdmin"`
	CompanyAccess []auth.CompanyAccessEntry `json:"companyAccess"`
}

func newUserView(id *auth.Identity) userView {
	return userView{
		ID:            id.ID,
		Username:      id.Username,
		Email:         id.Email,
		IsActive:      id.IsActive,
		IsSuperAdmin:  id.IsSuperAdmin,
		CompanyAccess: id.ActiveAccessList(),
	}
}

// handleLogin authenticates credentials and returns an access and refresh
// token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.login() == "" || req.Password == "" {
		writeBadRequest(w, "login and password are required")
		return
	}

	res, err := s.auth.Login(r.Context(), auth.LoginRequest{
		Login:     req.login(),
		Password:  req.Password,
		CompanyID: req.CompanyID,
		ClientIP:  clientIP(r),
	})
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:      true,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
		CompanyID:    res.CompanyID,
		User:         newUserView(res.Identity),
	})
}

// handleRefresh exchanges a refresh token for a new access token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusUnauthorized, ErrCodeAuthenticationRequired, "Refresh token is required")
		return
	}

	res, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		// Every client-side refresh failure is a 401; the code says why.
		if status, body := classifyError(err); status < http.StatusInternalServerError {
			writeJSON(w, http.StatusUnauthorized, body)
			return
		}
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Success:     true,
		AccessToken: res.AccessToken,
		ExpiresIn:   res.ExpiresIn,
	})
}

// handleRevoke invalidates every refresh token issued to the caller.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context()) //nolint:errcheck // guaranteed by requireAuth
	version, err := s.auth.RevokeSessions(r.Context(), ac)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"tokenVersion": version,
	})
}

type meResponse struct {
	User          userView            `json:"user"`
	Company       *auth.Company       `json:"company,omitempty"`
	Role          string              `json:"role,omitempty"`
	Impersonating bool                `json:"impersonating"`
	Permissions   map[string][]string `json:"permissions,omitempty"`
}

// handleMe returns the caller and, when a company is resolved, their role
// and effective permissions in it.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context()) //nolint:errcheck // guaranteed by requireAuth

	resp := meResponse{
		User:          newUserView(ac.Identity()),
		Company:       ac.Company(),
		Role:          string(ac.Role()),
		Impersonating: ac.IsImpersonating(),
	}
	if ac.HasCompany() || ac.IsSuperAdmin() {
		resp.Permissions = effectivePermissions(ac)
	}
	writeJSON(w, http.StatusOK, resp)
}

// effectivePermissions lists every module/action the caller may perform.
func effectivePermissions(ac *auth.AuthContext) map[string][]string {
	out := make(map[string][]string)
	for _, module := range auth.AllModules {
		for _, action := range auth.AllActions {
			if ac.Can(module, action) {
				out[module] = append(out[module], action)
			}
		}
	}
	return out
}

// handleStatus reports whether the request carries a usable token. It sits
// behind optionalAuth and never fails.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        ac.UserID(),
		"companyId":     ac.CompanyID(),
		"role":          string(ac.Role()),
	})
}

type companyView struct {
	auth.Company
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt,omitzero"`
}

// handleListCompanies returns the active companies the caller may select.
func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context()) //nolint:errcheck // guaranteed by requireAuth
	companies, err := s.auth.Companies(r.Context(), ac)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	out := make([]companyView, 0, len(companies))
	for _, c := range companies {
		view := companyView{Company: c}
		if entry, ok := ac.Identity().ActiveAccess(c.ID); ok {
			view.Role = string(entry.Role)
			view.JoinedAt = entry.JoinedAt
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"companies": out,
		"count":     len(out),
	})
}

type switchCompanyRequest struct {
	CompanyID string `json:"companyId"`
}

// handleSwitchCompany issues an access token bound to the chosen company.
func (s *Server) handleSwitchCompany(w http.ResponseWriter, r *http.Request) {
	var req switchCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ac, _ := auth.FromContext(r.Context()) //nolint:errcheck // guaranteed by requireAuth
	token, cc, err := s.auth.SwitchCompany(r.Context(), ac, req.CompanyID, clientIP(r))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	role := string(auth.RoleSuperAdmin)
	if cc.Access != nil {
		role = string(cc.Access.Role)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"accessToken":   token,
		"expiresIn":     s.auth.ExpiresIn(),
		"company":       cc.Company,
		"role":          role,
		"impersonating": cc.Impersonating,
	})
}
