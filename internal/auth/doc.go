// Package auth is the authentication, tenant-selection and authorization
// pipeline every protected ERP request passes through.
//
// The pipeline runs in a fixed order:
//
//	TokenService.VerifyAccessToken
//	  -> IdentityResolver.Load (active check, LockoutGuard.Check)
//	  -> CompanyContextResolver.Resolve (X-Company-ID header, then token)
//	  -> PermissionEngine.Authorize
//
// and produces an immutable AuthContext for handlers. A locked account never
// reaches company or permission checks.
//
// Permission resolution short-circuits: super admin, the adminOnly gate
// (rejects anyone but owner or manager), allowSelf, the per-user override matrix, the injected role
// Policy, then deny. Per-user grants can exceed the role defaults.
//
// Lockout state is persisted on the user row. Unlock is lazy: the first
// request at or after lockout_until clears it. Lockout counters and
// last-login updates are not transactionally linked across requests, so
// concurrent failures can under-count by one.
//
// Refresh tokens carry the user's token_version. Bumping the version
// (RevokeSessions) invalidates every refresh token issued before.
package auth
