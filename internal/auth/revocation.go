package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RevocationStore is a SQLite denylist of logged-out session ids. Entries
// expire together with the refresh token that could otherwise revive them.
type RevocationStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRevocationStore creates a store over the revoked_sessions table.
// A nil now uses time.Now.
func NewRevocationStore(db *sql.DB, now func() time.Time) *RevocationStore {
	if now == nil {
		now = time.Now
	}
	return &RevocationStore{db: db, now: now}
}

// RevokeSession denylists sessionID until the given instant.
func (s *RevocationStore) RevokeSession(ctx context.Context, sessionID, userID string, until time.Time) error {
	if sessionID == "" {
		return errors.New("revoking session: empty session id")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO revoked_sessions (session_id, user_id, revoked_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET expires_at = excluded.expires_at`,
		sessionID, userID,
		s.now().UTC().Format(timeLayout),
		until.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// IsSessionRevoked reports whether sessionID is on the denylist and the
// entry has not yet expired.
func (s *RevocationStore) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM revoked_sessions WHERE session_id = ? AND expires_at > ?",
		sessionID, s.now().UTC().Format(timeLayout),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking revoked session: %w", err)
	}
	return true, nil
}

// DeleteExpired removes entries whose tokens can no longer be presented.
func (s *RevocationStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM revoked_sessions WHERE expires_at <= ?",
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired revocations: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}
