package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Rajatsinha05/erp-sub004/internal/audit"
	"github.com/Rajatsinha05/erp-sub004/internal/auth"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/config"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/database"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/logging"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/metrics"
	_ "github.com/Rajatsinha05/erp-sub004/migrations" // registers the embedded schema
)

const (
	testPassword      = "S3cure-pass!"
	testAccessSecret  = "api-access-secret-0123456789abcdefghij"
	testRefreshSecret = "api-refresh-secret-0123456789abcdefghij"
)

// cheapParams keeps argon2 fast in tests.
var cheapParams = auth.PasswordParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
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

// testEnv is a server over a migrated SQLite database with:
//
//	company-a (active), company-b (active), company-off (inactive)
//	emp:  employee in company-a
//	own:  owner in company-a; employee in company-b with inventory/delete
//	root: super admin, no memberships
//	gone: inactive
type testEnv struct {
	srv      *Server
	h        http.Handler
	clock    *fakeClock
	users    *auth.SQLUserStore
	repo     *audit.SQLRepository
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	db       *database.DB
}

type envOption func(*envOptions)

type envOptions struct {
	rateLimit config.RateLimitConfig
	checks    map[string]HealthChecker
	proxies   []string
}

func withRateLimit(perMinute, burst int) envOption {
	return func(o *envOptions) {
		o.rateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute, Burst: burst}
	}
}

func withTrustedProxies(proxies ...string) envOption {
	return func(o *envOptions) {
		o.proxies = proxies
	}
}

func withCheck(name string, c HealthChecker) envOption {
	return func(o *envOptions) {
		if o.checks == nil {
			o.checks = map[string]HealthChecker{}
		}
		o.checks[name] = c
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	var o envOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	db, err := database.Open(config.DatabaseConfig{
		Driver:      database.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	users := auth.NewSQLUserStore(db, 5*time.Second)
	companies := auth.NewSQLCompanyStore(db, 5*time.Second)
	seedFixture(t, users, companies)

	clock := &fakeClock{t: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
	log := logging.Discard()

	tokens, err := auth.NewTokenService(auth.TokenConfig{
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

	m := metrics.New()
	repo := audit.NewSQLRepository(db)
	recorder := audit.NewRecorder(repo, log.Logger, 64, audit.NewCounterSink(m))

	svc, err := auth.NewService(auth.ServiceConfig{
		Tokens:    tokens,
		Guard:     auth.NewLockoutGuard(5, 30*time.Minute, clock.Now),
		Engine:    auth.NewPermissionEngine(auth.DefaultPolicy()),
		Users:     users,
		Companies: companies,
		Recorder:  recorder,
		Decisions: audit.NewDecisions(m, nil),
		Logger:    log.Logger,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0, TrustedProxies: o.proxies},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		RateLimit: o.rateLimit,
		Logger:    log,
		Auth:      svc,
		Audit:     repo,
		Metrics:   m,
		Checks:    o.checks,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	recorder.AddSink(srv.Hub())
	recorder.Start()
	t.Cleanup(recorder.Close)

	return &testEnv{
		srv:      srv,
		h:        srv.Handler(),
		clock:    clock,
		users:    users,
		repo:     repo,
		recorder: recorder,
		metrics:  m,
		db:       db,
	}
}

func seedFixture(t *testing.T, users *auth.SQLUserStore, companies *auth.SQLCompanyStore) {
	t.Helper()
	ctx := context.Background()

	for _, c := range []*auth.Company{
		{ID: "company-a", Name: "Acme Textiles", Code: "ACME", IsActive: true},
		{ID: "company-b", Name: "Bolt Logistics", Code: "BOLT", IsActive: true},
		{ID: "company-off", Name: "Closed Mills", Code: "CLOSED", IsActive: false},
	} {
		if err := companies.Create(ctx, c); err != nil {
			t.Fatalf("companies.Create(%s) error = %v", c.ID, err)
		}
	}

	hash, err := auth.HashPasswordWith(testPassword, cheapParams)
	if err != nil {
		t.Fatalf("HashPasswordWith() error = %v", err)
	}

	for _, u := range []*auth.UserRecord{
		{ID: "emp", Username: "emp", Email: "emp@acme.test", PasswordHash: hash, IsActive: true},
		{ID: "own", Username: "own", Email: "own@acme.test", PasswordHash: hash, IsActive: true},
		{ID: "root", Username: "root", Email: "root@erp.test", PasswordHash: hash, IsActive: true, IsSuperAdmin: true},
		{ID: "gone", Username: "gone", Email: "gone@acme.test", PasswordHash: hash, IsActive: false},
	} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("users.Create(%s) error = %v", u.ID, err)
		}
	}

	grants := []struct {
		user  string
		entry auth.CompanyAccessEntry
	}{
		{"emp", auth.CompanyAccessEntry{CompanyID: "company-a", Role: auth.RoleEmployee, IsActive: true}},
		{"own", auth.CompanyAccessEntry{CompanyID: "company-a", Role: auth.RoleOwner, IsActive: true}},
		{"own", auth.CompanyAccessEntry{
			CompanyID:   "company-b",
			Role:        auth.RoleEmployee,
			IsActive:    true,
			Permissions: auth.Permissions{"inventory": {"delete": true}},
		}},
	}
	for _, g := range grants {
		if err := users.GrantCompanyAccess(ctx, g.user, g.entry); err != nil {
			t.Fatalf("GrantCompanyAccess(%s) error = %v", g.user, err)
		}
	}
}

// do sends a request through the router. body may be nil, a string, or a
// value encoded as JSON.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

// login returns the login response for user, failing the test on non-200.
func (e *testEnv) login(t *testing.T, user, companyID string) loginResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"login":     user,
		"password":  testPassword,
		"companyId": companyID,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login(%s) status = %d, body = %s", user, rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decode(t, rec, &resp)
	return resp
}

func bearer(token string, companyID ...string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + token}
	if len(companyID) > 0 && companyID[0] != "" {
		h[CompanyHeader] = companyID[0]
	}
	return h
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

// expectError asserts status and error code of a uniform error response.
func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) Error {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var body Error
	decode(t, rec, &body)
	if body.Error != code {
		t.Errorf("error = %q, want %q", body.Error, code)
	}
	if body.Message == "" {
		t.Error("error response has empty message")
	}
	return body
}
