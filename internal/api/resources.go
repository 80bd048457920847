package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Rajatsinha05/erp-sub004/internal/audit"
	"github.com/Rajatsinha05/erp-sub004/internal/auth"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports the server and each registered component.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.checks))
	status := "ok"
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// handlePermissionCheck answers whether the caller may perform
// module/action in the resolved company. A denial is a normal 200 answer.
func (s *Server) handlePermissionCheck(w http.ResponseWriter, r *http.Request) {
	module := r.URL.Query().Get("module")
	action := r.URL.Query().Get("action")
	if module == "" || action == "" {
		writeBadRequest(w, "module and action query parameters are required")
		return
	}

	ac, _ := auth.FromContext(r.Context()) //nolint:errcheck // guaranteed by requireAuth
	basis, err := ac.Authorize(module, action, auth.AuthorizeOptions{})

	resp := map[string]any{
		"module":    module,
		"action":    action,
		"companyId": ac.CompanyID(),
		"role":      string(ac.Role()),
		"allowed":   err == nil,
		"basis":     string(basis),
	}
	if err != nil {
		_, body := classifyError(err)
		resp["reason"] = body.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetUser returns a user visible in the caller's company. Users with
// no membership in it are reported as not found unless the caller is a
// super admin.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context()) //nolint:errcheck // guaranteed by requireAuth
	id := chi.URLParam(r, "id")

	user, err := s.auth.User(r.Context(), id)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	view := newUserView(user)
	if !ac.IsSuperAdmin() && user.ID != ac.UserID() {
		entry, ok := user.ActiveAccess(ac.CompanyID())
		if !ok {
			s.writeAuthError(w, r, auth.ErrUserNotFound)
			return
		}
		// Other companies' memberships stay private to their tenants.
		view.CompanyAccess = []auth.CompanyAccessEntry{entry}
	}
	writeJSON(w, http.StatusOK, view)
}

// handleListAudit returns the security audit log for the caller's company.
// A super admin without a company sees every entry.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "audit log is not enabled")
		return
	}
	ac, _ := auth.FromContext(r.Context()) //nolint:errcheck // guaranteed by requireAuth

	q := r.URL.Query()
	filter := audit.Filter{
		Action:    q.Get("action"),
		UserID:    q.Get("userId"),
		CompanyID: ac.CompanyID(),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}
	if since := q.Get("since"); since != "" {
		t, parseErr := time.Parse(time.RFC3339, since)
		if parseErr != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = t
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
