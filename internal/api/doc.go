// Package api implements the HTTP REST API and WebSocket stream for the
// ERP authentication service.
//
// This package provides:
//   - Credential endpoints: login, refresh, session revocation
//   - Context endpoints: current identity, company list, company switching
//   - The auth middleware chain (RequireAuth, OptionalAuth,
//     RequireCompanyContext, RequirePermission)
//   - A security event WebSocket stream for company administrators
//   - Middleware stack (request ID, logging, recovery, CORS, rate limiting)
//
// # Error Responses
//
// Every auth failure is converted to one JSON shape:
//
//	{"error": "AccountLocked", "message": "...", "unlockTime": "2026-10-01T09:30:00Z"}
//
// with status 400, 401, 403, 404, 423 or 500. Handlers never let a pipeline
// error escape unmapped.
//
// # Security
//
// WebSocket connections authenticate with single-use tickets so bearer
// tokens never appear in URLs.
package api
