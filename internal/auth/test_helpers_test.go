package auth

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/bulles-portal/internal/infrastructure/database"
	"github.com/nerrad567/bulles-portal/migrations"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789abcdef"
	testRefreshSecret = "refresh-secret-for-tests-0123456789abcdef"
)

// testDB opens a temp-file SQLite database with every migration applied.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
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

// sharedHash is computed once; Argon2id is deliberately slow.
var sharedHash = sync.OnceValue(func() string {
	h, err := HashPassword("test-password")
	if err != nil {
		panic(err)
	}
	return h
})

func testUser(id string, role Role) *User {
	return &User{
		ID:           id,
		Username:     id,
		PasswordHash: sharedHash(),
		FullName:     "Test " + id,
		Class:        "CE1",
		Role:         role,
	}
}

// seedTestUser inserts a test user into repo and returns it.
func seedTestUser(t *testing.T, repo UserRepository, id string, role Role) *User {
	t.Helper()

	user := testUser(id, role)
	if err := repo.Create(t.Context(), user); err != nil {
		t.Fatalf("creating test user %s: %v", id, err)
	}
	return user
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
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

// newTestTokenService builds a service over an in-memory store holding one
// student and one admin.
func newTestTokenService(t *testing.T, clock *fakeClock) (*TokenService, *MemoryUserRepository) {
	t.Helper()

	repo := NewMemoryUserRepository()
	seedTestUser(t, repo, "CE1-001", RoleStudent)
	seedTestUser(t, repo, "admin", RoleAdmin)

	cfg := TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	}
	if clock != nil {
		cfg.Now = clock.Now
	}

	svc, err := NewTokenService(cfg, repo)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return svc, repo
}
