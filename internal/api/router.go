package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rajatsinha05/erp-sub004/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.realIPMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Credential endpoints
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
		})

		r.With(s.optionalAuth).Get("/auth/status", s.handleStatus)

		// Authenticated; a company is resolved only when one is named.
		r.With(s.requireAuth).Get("/auth/me", s.handleMe)

		// Context-exempt: identity only.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuthExempt)
			r.Post("/auth/revoke", s.handleRevoke)
			r.Post("/auth/switch-company", s.handleSwitchCompany)
			r.Get("/companies", s.handleListCompanies)
		})

		// Company-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.requireCompanyContext)

			r.Get("/permissions/check", s.handlePermissionCheck)

			r.With(s.requirePermission(auth.ModuleUsers, auth.ActionView, allowSelf("id"))).
				Get("/users/{id}", s.handleGetUser)

			r.With(s.requirePermission(auth.ModuleAudit, auth.ActionView)).
				Get("/audit", s.handleListAudit)

			r.With(s.requirePermission(auth.ModuleSecurityLogs, auth.ActionView, adminOnly())).
				Post("/security/stream/ticket", s.handleStreamTicket)
		})

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/security/stream", s.handleSecurityStream)
	})

	return r
}
