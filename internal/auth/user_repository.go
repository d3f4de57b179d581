package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// CredentialStore resolves roster accounts. Lookups are exact and
// case-sensitive; a missing account is reported as ErrUserNotFound.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

// UserRepository is a CredentialStore that can also be seeded and counted.
type UserRepository interface {
	CredentialStore
	Create(ctx context.Context, user *User) error
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int, error)
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// prepareUser fills defaults and validates an account before it is stored.
func prepareUser(user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	if user.Username == "" {
		user.Username = user.ID
	}
	if !IsValidUsername(user.Username) {
		return fmt.Errorf("invalid username %q", user.Username)
	}
	if !IsValidRole(user.Role) {
		return fmt.Errorf("invalid role %q", user.Role)
	}
	if user.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	return nil
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new SQLite-backed user repository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts a new user account. The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if err := prepareUser(user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, full_name, class, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.FullName, user.Class,
		string(user.Role), user.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

const userColumns = "id, username, password_hash, full_name, class, role, created_at"

// FindByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// FindByUsername retrieves a user by their username.
func (r *SQLiteUserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

// List returns all users ordered by ID.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	var role, createdAt string

	err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Class, &role, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.CreatedAt, _ = time.Parse(timeLayout, createdAt) //nolint:errcheck // format is controlled
	return &u, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE or PRIMARY KEY
// constraint violation.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// MemoryUserRepository is an in-process UserRepository for the fixed roster.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byUsername map[string]*User
}

// NewMemoryUserRepository creates an empty in-memory repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       make(map[string]*User),
		byUsername: make(map[string]*User),
	}
}

// Create stores a copy of user.
func (r *MemoryUserRepository) Create(_ context.Context, user *User) error {
	if err := prepareUser(user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[user.ID]; ok {
		return ErrUsernameExists
	}
	if _, ok := r.byUsername[user.Username]; ok {
		return ErrUsernameExists
	}

	u := *user
	r.byID[u.ID] = &u
	r.byUsername[u.Username] = &u
	return nil
}

// FindByID returns a copy of the user with the given ID.
func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// FindByUsername returns a copy of the user with the given username.
func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// List returns all users ordered by ID.
func (r *MemoryUserRepository) List(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// Count returns the number of stored users.
func (r *MemoryUserRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}
