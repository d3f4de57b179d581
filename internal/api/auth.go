package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/bulles-portal/internal/audit"
	"github.com/nerrad567/bulles-portal/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// loginRequest is the request body for POST /api/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// refreshRequest is the request body for POST /api/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the response body for POST /api/refresh.
type refreshResponse struct {
	Token string `json:"token"`
}

// handleLogin verifies credentials and issues a token pair.
//
// Unknown usernames and wrong passwords produce byte-identical 401 responses,
// and unknown usernames still pay for one hash verification.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Usernames match exactly; nothing is trimmed or folded.
	username := req.Username
	if username == "" || req.Password == "" {
		s.writeDomainError(w, auth.ErrMissingCredentials)
		return
	}

	user, err := s.authenticate(r.Context(), username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.recordAuthEvent(r, audit.ActionLoginFailed, username, "", "", nil)
			s.influx.WriteLoginLatency(time.Since(start), false)
		} else {
			s.logger.Error("login failed", "error", err)
		}
		s.writeDomainError(w, err)
		return
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		s.logger.Error("issuing token pair failed", "user_id", user.ID, "error", err)
		s.writeInternalError(w, err)
		return
	}

	s.sessions.Track(pair.SessionID, user.ID, pair.RefreshExpiry)
	s.recordAuthEvent(r, audit.ActionLoginSuccess, user.Username, user.ID, pair.SessionID, map[string]any{
		"role": string(user.Role),
	})
	s.influx.WriteLoginLatency(time.Since(start), true)
	s.hub.NotifySession(user.ID, pair.SessionID, WSEventSessionStarted)

	writeJSON(w, http.StatusOK, auth.LoginResult{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	})
}

// authenticate resolves the user and checks the password. Both failure modes
// collapse into ErrInvalidCredentials.
func (s *Server) authenticate(ctx context.Context, username, password string) (*auth.User, error) {
	if !auth.IsValidUsername(username) {
		auth.VerifyDummy(password)
		return nil, auth.ErrInvalidCredentials
	}

	user, err := s.roster.FindByUsername(ctx, username)
	if errors.Is(err, auth.ErrUserNotFound) {
		auth.VerifyDummy(password)
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	return user, nil
}

// handleRefresh exchanges a refresh token for a new access token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeMissingToken, msgMissingRefresh)
		return
	}

	token, claims, err := s.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			s.recordAuthEvent(r, audit.ActionRefreshFailed, "", "", "", map[string]any{
				"reason": err.Error(),
			})
			writeError(w, http.StatusForbidden, ErrCodeInvalidToken, msgInvalidRefresh)
			return
		}
		s.logger.Error("token refresh failed", "error", err)
		s.writeInternalError(w, err)
		return
	}

	s.recordAuthEvent(r, audit.ActionTokenRefreshed, claims.Username, claims.Subject, claims.SessionID, nil)
	writeJSON(w, http.StatusOK, refreshResponse{Token: token})
}

// handleLogout ends the caller's session. Without a revocation store the
// tokens stay cryptographically valid until they expire; the client is
// expected to discard them.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	s.sessions.Remove(claims.SessionID)

	if s.revocations != nil {
		until := s.now().Add(s.tokens.RefreshTTL())
		if err := s.revocations.RevokeSession(r.Context(), claims.SessionID, claims.Subject, until); err != nil {
			s.logger.Error("revoking session failed", "session_id", claims.SessionID, "error", err)
			s.writeInternalError(w, err)
			return
		}
	}

	s.recordAuthEvent(r, audit.ActionLogout, claims.Username, claims.Subject, claims.SessionID, nil)
	s.hub.NotifySession(claims.Subject, claims.SessionID, WSEventSessionEnded)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msgLogoutSucceeded,
	})
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	ticket := s.tickets.issue(claims.Subject, claims.SessionID)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":    ticket,
		"expiresIn": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	now     func() time.Time
	mu      sync.Mutex
}

type ticketEntry struct {
	userID    string
	sessionID string
	expiresAt time.Time
}

func newTicketStore(now func() time.Time) *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     now,
	}
}

// issue creates a ticket bound to one user session.
func (ts *ticketStore) issue(userID, sessionID string) string {
	ticket := generateTicket()

	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{
		userID:    userID,
		sessionID: sessionID,
		expiresAt: ts.now().Add(ticketTTL),
	}
	ts.mu.Unlock()

	return ticket
}

// consume checks a ticket and removes it (single-use).
func (ts *ticketStore) consume(ticket string) (ticketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(ts.tickets, ticket)

	if !ts.now().Before(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// cleanExpired removes expired tickets and returns how many were dropped.
func (ts *ticketStore) cleanExpired() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	removed := 0
	for ticket, entry := range ts.tickets {
		if !now.Before(entry.expiresAt) {
			delete(ts.tickets, ticket)
			removed++
		}
	}
	return removed
}

func (ts *ticketStore) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tickets)
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanTicketsLoop runs cleanExpired periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
		}
	}
}
