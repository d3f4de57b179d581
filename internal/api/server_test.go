package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/bulles-portal/internal/audit"
	"github.com/nerrad567/bulles-portal/internal/auth"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/config"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/database"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/influxdb"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/logging"
	"github.com/nerrad567/bulles-portal/internal/roster"
	"github.com/nerrad567/bulles-portal/migrations"
)

const (
	testAccessSecret  = "access-secret-for-api-tests-0123456789"
	testRefreshSecret = "refresh-secret-for-api-tests-0123456789"
	testAdminPassword = "admin-password-for-tests"
)

// testClock is a settable clock shared by the token service, the session
// registry and the server.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testOptions toggles optional server features.
type testOptions struct {
	revocation bool
	rateLimit  config.RateLimitConfig
	staticDir  string
	devMode    bool
	origins    []string
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	clock   *testClock
	db      *database.DB
	audit   *audit.SQLiteRepository
	tokens  *auth.TokenService
}

// fastHash keeps roster seeding quick; VerifyPassword accepts bcrypt hashes.
func fastHash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(h), err
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(t.Context(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db
}

// newTestEnv builds a server over a seeded SQLite roster with the audit
// writer running.
func newTestEnv(t *testing.T, opts testOptions) *testEnv {
	t.Helper()

	clock := newTestClock()
	db := setupTestDB(t)

	store, err := roster.NewSQLite(t.Context(), db.DB, roster.Options{
		AdminPassword: testAdminPassword,
		HashPassword:  fastHash,
	})
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}

	var revocations *auth.RevocationStore
	tokenCfg := auth.TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		Now:           clock.Now,
	}
	if opts.revocation {
		revocations = auth.NewRevocationStore(db.DB, clock.Now)
		tokenCfg.Revocations = revocations
	}
	tokens, err := auth.NewTokenService(tokenCfg, store)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:         "127.0.0.1",
			Port:         0,
			Timeouts:     config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			CORS:         config.CORSConfig{AllowedOrigins: opts.origins},
			StaticDir:    opts.staticDir,
			MaxBodyBytes: 10 << 10,
			DevMode:      opts.devMode,
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			RateLimit: opts.rateLimit,
			Audit:     config.AuditConfig{Retain: 1000},
		},
		Logger:      logging.Nop(),
		Roster:      store,
		Tokens:      tokens,
		Sessions:    auth.NewSessionRegistry(clock.Now),
		Revocations: revocations,
		AuditRepo:   auditRepo,
		DB:          db,
		Version:     "1.0.0",
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.drainAuditLog(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testEnv{
		srv:     srv,
		handler: srv.Handler(),
		clock:   clock,
		db:      db,
		audit:   auditRepo,
		tokens:  tokens,
	}
}

// do sends a request through the full middleware chain.
func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// login performs a successful login and returns the decoded result.
func (e *testEnv) login(t *testing.T, username, password string) auth.LoginResult {
	t.Helper()

	body, _ := json.Marshal(loginRequest{Username: username, Password: password}) //nolint:errcheck // plain strings
	w := e.do(t, http.MethodPost, "/api/login", string(body), "")
	if w.Code != http.StatusOK {
		t.Fatalf("login(%s) status = %d, want %d; body: %s", username, w.Code, http.StatusOK, w.Body.String())
	}

	var res auth.LoginResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	return res
}

// waitForAudit polls the activity log until an entry with action appears.
func (e *testEnv) waitForAudit(t *testing.T, action string) []audit.Entry {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err := e.audit.List(t.Context(), audit.Filter{Action: action})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(res.Entries) > 0 {
			return res.Entries
		}
		if time.Now().After(deadline) {
			t.Fatalf("no %s audit entry written", action)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal error body %q: %v", w.Body.String(), err)
	}
	return e
}

// ─── Health and Middleware Tests ───────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	w := env.do(t, http.MethodGet, "/api/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	if resp["version"] != "1.0.0" {
		t.Errorf("version = %v, want 1.0.0", resp["version"])
	}
	if ts, _ := resp["timestamp"].(string); !strings.HasPrefix(ts, "2026-03-02T08:00:00") {
		t.Errorf("timestamp = %v, want the server clock", resp["timestamp"])
	}
}

func TestRequestID_Generated(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	w := env.do(t, http.MethodGet, "/api/health", "", "")
	if len(w.Header().Get("X-Request-ID")) != 2*requestIDBytes {
		t.Errorf("X-Request-ID = %q, want %d hex chars", w.Header().Get("X-Request-ID"), 2*requestIDBytes)
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "client-id-42")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-id-42" {
		t.Errorf("X-Request-ID = %q, want client-id-42", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	w := env.do(t, http.MethodGet, "/api/health", "", "")

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}

	csp := w.Header().Get("Content-Security-Policy")
	for _, directive := range []string{
		"default-src 'self'",
		"https://cdnjs.cloudflare.com",
		"https://fonts.googleapis.com",
		"font-src 'self' https://fonts.gstatic.com",
		"img-src 'self' data: https:",
	} {
		if !strings.Contains(csp, directive) {
			t.Errorf("CSP %q missing %q", csp, directive)
		}
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should only be sent over TLS")
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, testOptions{origins: []string{"https://bulles.example"}})

	tests := []struct {
		name       string
		origin     string
		wantOrigin string
	}{
		{"allowed origin", "https://bulles.example", "https://bulles.example"},
		{"other origin", "https://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestBodySizeLimit(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	big := `{"username":"CE1-001","password":"` + strings.Repeat("x", 11<<10) + `"}`
	w := env.do(t, http.MethodPost, "/api/login", big, "")

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestMalformedJSON(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	for _, path := range []string{"/api/login", "/api/refresh"} {
		t.Run(path, func(t *testing.T) {
			w := env.do(t, http.MethodPost, path, `{"username":`, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if e := decodeError(t, w); e.Code != ErrCodeBadRequest || e.Message != "JSON mal formé" {
				t.Errorf("error = %+v, want bad_request / JSON mal formé", e)
			}
		})
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	w := env.do(t, http.MethodGet, "/api/nope", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if e := decodeError(t, w); e.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotFound)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if e := decodeError(t, w); e.Code != ErrCodeInternal || e.Detail != "" {
		t.Errorf("error = %+v, want internal_error without detail", e)
	}
}

func TestInternalError_DevModeDetail(t *testing.T) {
	tests := []struct {
		name       string
		devMode    bool
		wantDetail string
	}{
		{"production hides cause", false, ""},
		{"dev mode exposes cause", true, "disk on fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testOptions{devMode: tt.devMode})

			w := httptest.NewRecorder()
			env.srv.writeDomainError(w, errTest("disk on fire"))

			e := decodeError(t, w)
			if e.Status != http.StatusInternalServerError || e.Message != "Erreur interne du serveur" {
				t.Errorf("error = %+v", e)
			}
			if e.Detail != tt.wantDetail {
				t.Errorf("detail = %q, want %q", e.Detail, tt.wantDetail)
			}
		})
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

// ─── Static Front End Tests ────────────────────────────────────────

func TestStatic_SPAFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>portail</html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600); err != nil {
		t.Fatal(err)
	}

	env := newTestEnv(t, testOptions{staticDir: dir})

	tests := []struct {
		path     string
		wantBody string
	}{
		{"/", "<html>portail</html>"},
		{"/app.js", "console.log(1)"},
		{"/resultats/trimestre-2", "<html>portail</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, "", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if got := w.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}

	// API paths never fall back to the front end.
	if w := env.do(t, http.MethodGet, "/api/unknown", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("/api/unknown status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStatic_NoIndex(t *testing.T) {
	env := newTestEnv(t, testOptions{staticDir: t.TempDir()})

	if w := env.do(t, http.MethodGet, "/anything", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"logger", func(d *Deps) { d.Logger = nil }},
		{"roster", func(d *Deps) { d.Roster = nil }},
		{"tokens", func(d *Deps) { d.Tokens = nil }},
		{"sessions", func(d *Deps) { d.Sessions = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{
				Logger:   logging.Nop(),
				Roster:   env.srv.roster,
				Tokens:   env.tokens,
				Sessions: env.srv.sessions,
			}
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Errorf("New() without %s should fail", tt.name)
			}
		})
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	srv := env.srv

	if err := srv.HealthCheck(t.Context()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := srv.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if err := srv.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := http.Get("http://" + srv.Addr() + "/api/health"); err == nil {
		t.Error("server still accepting connections after Close")
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestRecordSessionGauge(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/write" {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			lines = append(lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer fake.Close()

	influx, err := influxdb.Connect(config.InfluxDBConfig{
		Enabled:       true,
		URL:           fake.URL,
		Org:           "bulles",
		Bucket:        "auth",
		BatchSize:     10,
		FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("influxdb.Connect() error = %v", err)
	}
	defer influx.Close() //nolint:errcheck // Test cleanup

	env := newTestEnv(t, testOptions{})
	env.srv.influx = influx
	env.login(t, "CE1-001", "fifame")
	env.login(t, "CE1-002", "emmanuel")

	env.srv.recordSessionGauge()
	influx.Flush()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		var gauge string
		for _, l := range lines {
			if strings.HasPrefix(l, "sessions ") {
				gauge = l
			}
		}
		mu.Unlock()

		if gauge != "" {
			if !strings.HasPrefix(gauge, "sessions active=2i,ws_clients=0i ") {
				t.Errorf("gauge line = %q", gauge)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no sessions point written")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
