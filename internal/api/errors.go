package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Rajatsinha05/erp-sub004/internal/auth"
)

// Error is the uniform error response body.
type Error struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	UnlockTime string `json:"unlockTime,omitempty"`
}

// Error codes. Auth failures use the pipeline's kind names so clients can
// branch on them (TokenExpired means refresh, AccountLocked means wait).
const (
	ErrCodeAuthenticationRequired  = "AuthenticationRequired"
	ErrCodeTokenExpired            = "TokenExpired"
	ErrCodeInvalidToken            = "InvalidToken"
	ErrCodeTokenVerificationFailed = "TokenVerificationFailed"
	ErrCodeAccountLocked           = "AccountLocked"
	ErrCodeUserNotFoundOrInactive  = "UserNotFoundOrInactive"
	ErrCodeInvalidCredentials      = "InvalidCredentials"
	ErrCodeCompanyContextRequired  = "CompanyContextRequired"
	ErrCodeCompanyAccessDenied     = "CompanyAccessDenied"
	ErrCodeCompanyNotFound         = "CompanyNotFound"
	ErrCodeAdminRequired           = "AdminRequired"
	ErrCodeInsufficientPermissions = "InsufficientPermissions"
	ErrCodeCompanyValidationFailed = "CompanyValidationFailed"

	ErrCodeBadRequest  = "BadRequest"
	ErrCodeNotFound    = "NotFound"
	ErrCodeRateLimited = "RateLimited"
	ErrCodeInternal    = "InternalError"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// authErrors is checked in order; the first errors.Is match wins.
var authErrors = []errorMapping{
	{auth.ErrAuthenticationRequired, http.StatusUnauthorized, ErrCodeAuthenticationRequired, "Access token is required"},
	{auth.ErrTokenExpired, http.StatusUnauthorized, ErrCodeTokenExpired, "Access token has expired"},
	{auth.ErrTokenInvalid, http.StatusUnauthorized, ErrCodeInvalidToken, "Token is invalid"},
	{auth.ErrTokenVerificationFailed, http.StatusUnauthorized, ErrCodeTokenVerificationFailed, "Token verification failed"},
	{auth.ErrAccountLocked, http.StatusLocked, ErrCodeAccountLocked, "Account is temporarily locked due to too many failed login attempts"},
	{auth.ErrUserNotFoundOrInactive, http.StatusUnauthorized, ErrCodeUserNotFoundOrInactive, "User not found or inactive"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid login or password"},
	{auth.ErrCompanyContextRequired, http.StatusBadRequest, ErrCodeCompanyContextRequired, "Company context is required"},
	{auth.ErrCompanyAccessDenied, http.StatusForbidden, ErrCodeCompanyAccessDenied, "Access to this company is denied"},
	{auth.ErrCompanyNotFound, http.StatusNotFound, ErrCodeCompanyNotFound, "Company not found or inactive"},
	{auth.ErrAdminRequired, http.StatusForbidden, ErrCodeAdminRequired, "Administrator role is required"},
	{auth.ErrInsufficientPermissions, http.StatusForbidden, ErrCodeInsufficientPermissions, "Insufficient permissions for this action"},
	{auth.ErrCompanyValidationFailed, http.StatusInternalServerError, ErrCodeCompanyValidationFailed, "Company validation failed"},
	{auth.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound, "User not found"},
	{auth.ErrInvalidRole, http.StatusBadRequest, ErrCodeBadRequest, "Invalid role"},
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a uniform error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Error: code, Message: message})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// classifyError maps err to a status and response body. Unknown errors are
// 500 with a generic message; the caller logs the detail.
func classifyError(err error) (int, Error) {
	for _, m := range authErrors {
		if !errors.Is(err, m.target) {
			continue
		}
		body := Error{Error: m.code, Message: m.message}
		if until, ok := auth.UnlockTime(err); ok {
			body.UnlockTime = until.UTC().Format(time.RFC3339)
		}
		return m.status, body
	}
	return http.StatusInternalServerError, Error{Error: ErrCodeInternal, Message: "internal server error"}
}

// writeAuthError writes the mapped response for a pipeline error and logs
// unexpected ones.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classifyError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", requestIDFrom(r.Context()),
		)
	}
	writeJSON(w, status, body)
}
