package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789abcdef"
	testRefreshSecret = "refresh-secret-for-tests-0123456789abcdef"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memUserStore is an in-memory UserStore.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*UserRecord

	findErr        error
	updateErr      error
	recordLoginErr error

	lockoutWrites int
	loginWrites   int
}

func newMemUserStore(recs ...*UserRecord) *memUserStore {
	s := &memUserStore{users: make(map[string]*UserRecord)}
	for _, r := range recs {
		s.users[r.ID] = r
	}
	return s
}

func copyRecord(r *UserRecord) *UserRecord {
	cp := *r
	cp.CompanyAccess = append([]CompanyAccessEntry(nil), r.CompanyAccess...)
	if r.Lockout.LockoutUntil != nil {
		until := *r.Lockout.LockoutUntil
		cp.Lockout.LockoutUntil = &until
	}
	return &cp
}

func (s *memUserStore) FindByID(_ context.Context, id string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	r, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyRecord(r), nil
}

func (s *memUserStore) FindByLogin(_ context.Context, login string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, r := range s.users {
		if r.Username == login || r.Email == login {
			return copyRecord(r), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memUserStore) RecordLogin(_ context.Context, id, ip string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordLoginErr != nil {
		return s.recordLoginErr
	}
	r, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	r.LastLoginAt = &at
	r.LastLoginIP = ip
	s.loginWrites++
	return nil
}

func (s *memUserStore) UpdateLockout(_ context.Context, id string, state LockoutState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	r, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	r.Lockout = state
	s.lockoutWrites++
	return nil
}

func (s *memUserStore) IncrementTokenVersion(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.users[id]
	if !ok {
		return 0, ErrUserNotFound
	}
	r.TokenVersion++
	return r.TokenVersion, nil
}

func (s *memUserStore) get(id string) *UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecord(s.users[id])
}

// memCompanyStore is an in-memory CompanyStore.
type memCompanyStore struct {
	companies map[string]Company
	err       error
}

func newMemCompanyStore(cs ...Company) *memCompanyStore {
	s := &memCompanyStore{companies: make(map[string]Company)}
	for _, c := range cs {
		s.companies[c.ID] = c
	}
	return s
}

func (s *memCompanyStore) FindByID(_ context.Context, id string) (*Company, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.companies[id]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	return &c, nil
}

func (s *memCompanyStore) ListByIDs(_ context.Context, ids []string) ([]Company, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Company
	for _, id := range ids {
		if c, ok := s.companies[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// eventSpy collects recorded security events.
type eventSpy struct {
	mu     sync.Mutex
	events []SecurityEvent
}

func (s *eventSpy) Record(_ context.Context, ev SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSpy) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *eventSpy) has(t EventType) bool {
	for _, got := range s.types() {
		if got == t {
			return true
		}
	}
	return false
}

// fixture is a fully wired Service over in-memory stores.
type fixture struct {
	clock     *fakeClock
	users     *memUserStore
	companies *memCompanyStore
	events    *eventSpy
	tokens    *TokenService
	svc       *Service
}

const (
	companyA        = "company-a"
	companyB        = "company-b"
	companyInactive = "company-inactive"
	testPassword    = "s3cret-pa55word"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hash, err := HashPasswordWith(testPassword, cheapParams)
	if err != nil {
		t.Fatalf("HashPasswordWith() error = %v", err)
	}

	clock := newFakeClock()
	users := newMemUserStore(
		&UserRecord{
			ID: "u-employee", Username: "emp", Email: "emp@example.com",
			PasswordHash: hash, IsActive: true,
			CompanyAccess: []CompanyAccessEntry{
				{CompanyID: companyA, Role: RoleEmployee, IsActive: true},
				{CompanyID: companyB, Role: RoleManager, IsActive: false},
			},
		},
		&UserRecord{
			ID: "u-owner", Username: "owner", Email: "owner@example.com",
			PasswordHash: hash, IsActive: true,
			CompanyAccess: []CompanyAccessEntry{
				{CompanyID: companyA, Role: RoleOwner, IsActive: true},
				{CompanyID: companyB, Role: RoleEmployee, IsActive: true,
					Permissions: Permissions{ModuleInventory: {ActionDelete: true}}},
			},
		},
		&UserRecord{
			ID: "u-root", Username: "root", Email: "root@example.com",
			PasswordHash: hash, IsActive: true, IsSuperAdmin: true,
		},
		&UserRecord{
			ID: "u-disabled", Username: "gone", Email: "gone@example.com",
			PasswordHash: hash, IsActive: false,
		},
	)
	companies := newMemCompanyStore(
		Company{ID: companyA, Name: "Alpha Mills", Code: "ALPHA", IsActive: true},
		Company{ID: companyB, Name: "Beta Foods", Code: "BETA", IsActive: true},
		Company{ID: companyInactive, Name: "Closed Co", Code: "CLOSED", IsActive: false},
	)

	tokens, err := NewTokenService(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "erp-auth",
		Audience:      "erp-clients",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		ExpiresIn:     "15m",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	events := &eventSpy{}
	svc, err := NewService(ServiceConfig{
		Tokens:    tokens,
		Guard:     NewLockoutGuard(5, 30*time.Minute, clock.Now),
		Engine:    NewPermissionEngine(DefaultPolicy()),
		Users:     users,
		Companies: companies,
		Recorder:  events,
		Logger:    discardLogger(),
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	return &fixture{clock: clock, users: users, companies: companies, events: events, tokens: tokens, svc: svc}
}

// accessToken mints a token for a stored user.
func (f *fixture) accessToken(t *testing.T, userID, companyID string) string {
	t.Helper()
	tok, err := f.tokens.IssueAccessToken(NewIdentity(f.users.get(userID)), companyID)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	return tok
}
