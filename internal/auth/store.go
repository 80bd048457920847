package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/database"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type userRow struct {
	ID             string         `db:"id"`
	Username       string         `db:"username"`
	Email          string         `db:"email"`
	PasswordHash   string         `db:"password_hash"`
	IsActive       int            `db:"is_active"`
	IsSuperAdmin   int            `db:"is_super_admin"`
	FailedAttempts int            `db:"failed_attempts"`
	AccountLocked  int            `db:"account_locked"`
	LockoutUntil   sql.NullString `db:"lockout_until"`
	TokenVersion   int            `db:"token_version"`
	LastLoginAt    sql.NullString `db:"last_login_at"`
	LastLoginIP    sql.NullString `db:"last_login_ip"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

const userColumns = `id, username, email, password_hash, is_active, is_super_admin,
	failed_attempts, account_locked, lockout_until, token_version,
	last_login_at, last_login_ip, created_at, updated_at`

type accessRow struct {
	UserID      string `db:"user_id"`
	CompanyID   string `db:"company_id"`
	Role        string `db:"role"`
	Permissions string `db:"permissions"`
	IsActive    int    `db:"is_active"`
	JoinedAt    string `db:"joined_at"`
}

type companyRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Code     string `db:"code"`
	IsActive int    `db:"is_active"`
}

// SQLUserStore implements UserStore on SQLite or Postgres.
type SQLUserStore struct {
	db      *database.DB
	timeout time.Duration
}

// NewSQLUserStore returns a store. timeout bounds each call; zero disables it.
func NewSQLUserStore(db *database.DB, timeout time.Duration) *SQLUserStore {
	return &SQLUserStore{db: db, timeout: timeout}
}

func (s *SQLUserStore) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, s.timeout)
}

// FindByID loads a user and all of their company access entries.
func (s *SQLUserStore) FindByID(ctx context.Context, id string) (*UserRecord, error) {
	return s.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// FindByLogin loads a user by username or email.
func (s *SQLUserStore) FindByLogin(ctx context.Context, login string) (*UserRecord, error) {
	return s.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE username = ? OR email = ?", login, login)
}

func (s *SQLUserStore) findOne(ctx context.Context, query string, args ...any) (*UserRecord, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var row userRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}

	rec, err := row.record()
	if err != nil {
		return nil, err
	}

	var access []accessRow
	err = s.db.SelectContext(ctx, &access, s.db.Rebind(
		`SELECT user_id, company_id, role, permissions, is_active, joined_at
		 FROM company_access WHERE user_id = ? ORDER BY joined_at, company_id`), rec.ID)
	if err != nil {
		return nil, fmt.Errorf("querying company access: %w", err)
	}
	for _, a := range access {
		entry, err := a.entry()
		if err != nil {
			return nil, err
		}
		rec.CompanyAccess = append(rec.CompanyAccess, entry)
	}
	return rec, nil
}

// RecordLogin stores last-login metadata.
func (s *SQLUserStore) RecordLogin(ctx context.Context, id, ip string, at time.Time) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	ts := formatTime(at)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE users SET last_login_at = ?, last_login_ip = ?, updated_at = ? WHERE id = ?`),
		ts, nullString(ip), ts, id)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	return nil
}

// UpdateLockout overwrites the lockout columns. Writing the same state twice
// is harmless.
func (s *SQLUserStore) UpdateLockout(ctx context.Context, id string, state LockoutState) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var until sql.NullString
	if state.LockoutUntil != nil {
		until = sql.NullString{String: formatTime(*state.LockoutUntil), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE users SET failed_attempts = ?, account_locked = ?, lockout_until = ?, updated_at = ? WHERE id = ?`),
		state.FailedAttempts, boolToInt(state.AccountLocked), until, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating lockout: %w", err)
	}
	return requireAffected(res, ErrUserNotFound)
}

// IncrementTokenVersion bumps token_version and returns the new value.
func (s *SQLUserStore) IncrementTokenVersion(ctx context.Context, id string) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var version int
	err := s.db.GetContext(ctx, &version, s.db.Rebind(
		`UPDATE users SET token_version = token_version + 1, updated_at = ? WHERE id = ? RETURNING token_version`),
		formatTime(time.Now()), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("incrementing token version: %w", err)
	}
	return version, nil
}

// Create inserts a user. The id is generated when empty.
func (s *SQLUserStore) Create(ctx context.Context, rec *UserRecord) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO users (id, username, email, password_hash, is_active, is_super_admin, token_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.Username, rec.Email, rec.PasswordHash,
		boolToInt(rec.IsActive), boolToInt(rec.IsSuperAdmin), rec.TokenVersion,
		formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// Count returns the number of users.
func (s *SQLUserStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// GrantCompanyAccess inserts or replaces a membership.
func (s *SQLUserStore) GrantCompanyAccess(ctx context.Context, userID string, entry CompanyAccessEntry) error {
	if !entry.Role.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, entry.Role)
	}

	ctx, cancel := s.ctx(ctx)
	defer cancel()

	perms := entry.Permissions
	if perms == nil {
		perms = Permissions{}
	}
	encoded, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}
	joined := entry.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO company_access (user_id, company_id, role, permissions, is_active, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, company_id) DO UPDATE SET
		   role = excluded.role,
		   permissions = excluded.permissions,
		   is_active = excluded.is_active`),
		userID, entry.CompanyID, string(entry.Role), string(encoded), boolToInt(entry.IsActive), formatTime(joined))
	if err != nil {
		return fmt.Errorf("granting company access: %w", err)
	}
	return nil
}

// SQLCompanyStore implements CompanyStore.
type SQLCompanyStore struct {
	db      *database.DB
	timeout time.Duration
}

// NewSQLCompanyStore returns a store. timeout bounds each call; zero disables it.
func NewSQLCompanyStore(db *database.DB, timeout time.Duration) *SQLCompanyStore {
	return &SQLCompanyStore{db: db, timeout: timeout}
}

// FindByID returns the company or ErrCompanyNotFound.
func (s *SQLCompanyStore) FindByID(ctx context.Context, id string) (*Company, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row companyRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT id, name, code, is_active FROM companies WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("querying company: %w", err)
	}
	c := row.company()
	return &c, nil
}

// ListByIDs returns the companies among ids, ordered by name.
func (s *SQLCompanyStore) ListByIDs(ctx context.Context, ids []string) ([]Company, error) {
	if len(ids) == 0 {
		return []Company{}, nil
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query, args, err := sqlx.In(`SELECT id, name, code, is_active FROM companies WHERE id IN (?) ORDER BY name`, ids)
	if err != nil {
		return nil, fmt.Errorf("building company query: %w", err)
	}

	var rows []companyRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing companies: %w", err)
	}

	out := make([]Company, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.company())
	}
	return out, nil
}

// Create inserts a company. The id is generated when empty.
func (s *SQLCompanyStore) Create(ctx context.Context, c *Company) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO companies (id, name, code, is_active, created_at) VALUES (?, ?, ?, ?, ?)`),
		c.ID, c.Name, c.Code, boolToInt(c.IsActive), formatTime(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCompanyExists
		}
		return fmt.Errorf("creating company: %w", err)
	}
	return nil
}

func (r userRow) record() (*UserRecord, error) {
	rec := &UserRecord{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive != 0,
		IsSuperAdmin: r.IsSuperAdmin != 0,
		TokenVersion: r.TokenVersion,
		LastLoginIP:  r.LastLoginIP.String,
		Lockout: LockoutState{
			FailedAttempts: r.FailedAttempts,
			AccountLocked:  r.AccountLocked != 0,
		},
	}

	var err error
	if rec.Lockout.LockoutUntil, err = parseNullTime(r.LockoutUntil); err != nil {
		return nil, fmt.Errorf("user %s lockout_until: %w", r.ID, err)
	}
	if rec.LastLoginAt, err = parseNullTime(r.LastLoginAt); err != nil {
		return nil, fmt.Errorf("user %s last_login_at: %w", r.ID, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.CreatedAt) //nolint:errcheck // display only
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, r.UpdatedAt) //nolint:errcheck // display only
	return rec, nil
}

func (r accessRow) entry() (CompanyAccessEntry, error) {
	entry := CompanyAccessEntry{
		CompanyID: r.CompanyID,
		Role:      Role(r.Role),
		IsActive:  r.IsActive != 0,
	}
	if r.Permissions != "" {
		if err := json.Unmarshal([]byte(r.Permissions), &entry.Permissions); err != nil {
			return entry, fmt.Errorf("decoding permissions for %s/%s: %w", r.UserID, r.CompanyID, err)
		}
	}
	entry.JoinedAt, _ = time.Parse(time.RFC3339Nano, r.JoinedAt) //nolint:errcheck // display only
	return entry, nil
}

func (r companyRow) company() Company {
	return Company{ID: r.ID, Name: r.Name, Code: r.Code, IsActive: r.IsActive != 0}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil //nolint:nilnil // absent timestamp
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
