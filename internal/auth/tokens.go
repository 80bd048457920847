package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenConfig configures a TokenService.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// ExpiresIn is the configured access TTL as written in config ("15m"),
	// echoed to clients in login and refresh responses.
	ExpiresIn string

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// AccessClaims are the claims carried by an access token.
// CompanyID and Role are present only when the token was minted with an
// active company context.
type AccessClaims struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CompanyID string `json:"companyId,omitempty"`
	Role      Role   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token.
type RefreshClaims struct {
	UserID       string `json:"userId"`
	TokenVersion int    `json:"tokenVersion"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 access and refresh tokens.
// Access and refresh tokens are signed with different secrets.
//
// Thread Safety:
//   - TokenService is immutable after construction and safe for concurrent use.
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenService validates cfg and returns a TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token service: both secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token service: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token service: ttls must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.ExpiresIn == "" {
		cfg.ExpiresIn = cfg.AccessTTL.String()
	}
	return &TokenService{cfg: cfg, now: now}, nil
}

// ExpiresIn returns the configured access token lifetime string.
func (s *TokenService) ExpiresIn() string {
	return s.cfg.ExpiresIn
}

// IssueAccessToken mints an access token for id. When companyID is non-empty
// and id holds an active entry for it, the company and role are embedded.
func (s *TokenService) IssueAccessToken(id *Identity, companyID string) (string, error) {
	now := s.now()
	claims := AccessClaims{
		UserID:   id.ID,
		Username: id.Username,
		Email:    id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}
	if entry, ok := id.ActiveAccess(companyID); ok {
		claims.CompanyID = entry.CompanyID
		claims.Role = entry.Role
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshToken mints a refresh token bound to tokenVersion.
func (s *TokenService) IssueRefreshToken(userID string, tokenVersion int) (string, error) {
	now := s.now()
	claims := RefreshClaims{
		UserID:       userID,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature, issuer, audience and expiry.
//
// Errors wrap exactly one of ErrTokenExpired, ErrTokenInvalid or
// ErrTokenVerificationFailed.
func (s *TokenService) VerifyAccessToken(raw string) (*AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &AccessClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, s.keyFunc(s.cfg.AccessSecret)); err != nil {
		return nil, classifyTokenError(err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}
	return claims, nil
}

// VerifyRefreshToken checks signature and expiry against the refresh secret.
// Issuer and audience are not checked.
func (s *TokenService) VerifyRefreshToken(raw string) (*RefreshClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &RefreshClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, s.keyFunc(s.cfg.RefreshSecret)); err != nil {
		return nil, classifyTokenError(err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}
	return claims, nil
}

func (s *TokenService) keyFunc(secret string) jwt.Keyfunc {
	return func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}
}

// classifyTokenError folds jwt parse errors into the three token kinds.
func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	default:
		return fmt.Errorf("%w: %w", ErrTokenVerificationFailed, err)
	}
}
