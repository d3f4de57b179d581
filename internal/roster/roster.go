// Package roster loads the fixed class list and its report cards, and
// exposes them through one repository that the API reads from.
//
// The roster is immutable once loaded. Seeding is idempotent: accounts that
// already exist keep their stored hash, and reports are upserted.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/bulles-portal/internal/auth"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/logging"
	"github.com/nerrad567/bulles-portal/internal/results"
)

// Repository is everything the API needs from the roster.
type Repository interface {
	auth.CredentialStore
	results.Finder
}

// Options configures seeding.
type Options struct {
	// AdminPassword seeds the admin account when non-empty.
	AdminPassword string

	// HashPassword overrides the password hasher; nil uses auth.HashPassword.
	HashPassword func(string) (string, error)

	Logger *logging.Logger
}

// Store joins a user repository and a results repository.
type Store struct {
	users   auth.UserRepository
	reports results.Repository
}

var _ Repository = (*Store)(nil)

// NewMemory builds an in-memory roster.
func NewMemory(ctx context.Context, opts Options) (*Store, error) {
	return newStore(ctx, auth.NewMemoryUserRepository(), results.NewMemoryRepository(), opts)
}

// NewSQLite builds a roster over a migrated SQLite database.
func NewSQLite(ctx context.Context, db *sql.DB, opts Options) (*Store, error) {
	return newStore(ctx, auth.NewSQLiteUserRepository(db), results.NewSQLiteRepository(db), opts)
}

func newStore(ctx context.Context, users auth.UserRepository, reports results.Repository, opts Options) (*Store, error) {
	s := &Store{users: users, reports: reports}
	if err := s.seed(ctx, opts); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) seed(ctx context.Context, opts Options) error {
	hash := opts.HashPassword
	if hash == nil {
		hash = auth.HashPassword
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	created := 0
	for _, p := range pupils {
		ok, err := s.ensureUser(ctx, hash, &auth.User{
			ID:       p.id,
			Username: p.id,
			FullName: p.fullName,
			Class:    ClassName,
			Role:     auth.RoleStudent,
		}, p.password)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
	}

	if opts.AdminPassword != "" {
		ok, err := s.ensureUser(ctx, hash, &auth.User{
			ID:       AdminUsername,
			Username: AdminUsername,
			FullName: "Administration",
			Role:     auth.RoleAdmin,
		}, opts.AdminPassword)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
	} else {
		logger.Info("no admin password configured, admin account not seeded")
	}

	rs := reports()
	for i := range rs {
		if err := s.reports.Save(ctx, &rs[i]); err != nil {
			return fmt.Errorf("seeding report %s: %w", rs[i].StudentID, err)
		}
	}

	logger.Info("roster loaded", "class", ClassName, "accounts_created", created, "reports", len(rs))
	return nil
}

// ensureUser creates user unless an account with the same id exists.
// It reports whether an account was created.
func (s *Store) ensureUser(ctx context.Context, hash func(string) (string, error), user *auth.User, password string) (bool, error) {
	_, err := s.users.FindByID(ctx, user.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, auth.ErrUserNotFound) {
		return false, fmt.Errorf("checking account %s: %w", user.ID, err)
	}

	user.PasswordHash, err = hash(password)
	if err != nil {
		return false, fmt.Errorf("hashing password for %s: %w", user.ID, err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		return false, fmt.Errorf("seeding account %s: %w", user.ID, err)
	}
	return true, nil
}

// FindByUsername resolves an account by its login name.
func (s *Store) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.users.FindByUsername(ctx, username)
}

// FindByID resolves an account by id.
func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.users.FindByID(ctx, id)
}

// FindResultsFor returns one student's report for a trimester.
func (s *Store) FindResultsFor(ctx context.Context, studentID string, trimester int) (*results.Report, error) {
	return s.reports.FindResultsFor(ctx, studentID, trimester)
}

// Analytics summarises the class for a trimester.
func (s *Store) Analytics(ctx context.Context, trimester, activeSessions int) (results.Analytics, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return results.Analytics{}, fmt.Errorf("listing accounts: %w", err)
	}
	students := 0
	for _, u := range users {
		if u.Role == auth.RoleStudent {
			students++
		}
	}

	rs, err := s.reports.List(ctx, trimester)
	if err != nil {
		return results.Analytics{}, fmt.Errorf("listing reports: %w", err)
	}
	return results.Summarize(rs, students, activeSessions), nil
}

// Count returns the number of accounts, staff included.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.users.Count(ctx)
}
