package sessionguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/bulles-portal/internal/auth"
)

// Storage keys. Session keys exist in whichever scope holds the session;
// the lockout counters and the security log are always durable.
const (
	keyToken          = "bdj_token"
	keyRefresh        = "bdj_refresh"
	keyUser           = "bdj_user"
	keySession        = "bdj_session"
	keyFailedAttempts = "failed_attempts"
	keyLastFailed     = "last_failed_attempt"
	keyLockUntil      = "lock_until"
	keySecurityLogs   = "security_logs"
)

var sessionKeys = []string{keyToken, keyRefresh, keyUser, keySession}

// Authenticator submits credentials to the portal.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Guard tracks one client's session. All methods are safe for concurrent
// use; timer callbacks and storage events arrive on other goroutines.
type Guard struct {
	cfg      Config
	durable  Storage
	volatile Storage
	notifier Notifier
	logger   Logger

	mu       sync.Mutex
	state    State
	session  *Session
	warnedAt time.Time
	closed   bool

	inactivity *Timer
	grace      *Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a guard over the two storage scopes. If durable reports
// changes (EventSource), the guard watches it for other tabs' logins.
func New(durable, volatile Storage, cfg Config, notifier Notifier) (*Guard, error) {
	if durable == nil || volatile == nil {
		return nil, fmt.Errorf("both durable and volatile storage are required")
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	cfg = cfg.withDefaults()

	g := &Guard{
		cfg:        cfg,
		durable:    durable,
		volatile:   volatile,
		notifier:   notifier,
		logger:     cfg.Logger,
		state:      StateUnauthenticated,
		inactivity: NewTimer(cfg.Clock),
		grace:      NewTimer(cfg.Clock),
		done:       make(chan struct{}),
	}

	if src, ok := durable.(EventSource); ok {
		g.wg.Add(1)
		go g.watchEvents(src.Events())
	}
	return g, nil
}

// Close stops the timers and the storage watcher. The stored session is
// left in place.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.inactivity.Stop()
	g.grace.Stop()
	close(g.done)
	g.wg.Wait()
}

// Restore picks up a session persisted by an earlier run, durable scope
// first. An expired session is cleared and reported.
func (g *Guard) Restore() State {
	g.mu.Lock()
	var notices []Notice
	if !g.closed && g.session == nil {
		for _, scope := range []PersistenceScope{ScopeDurable, ScopeVolatile} {
			if s, ok := g.loadSessionLocked(scope); ok {
				g.session = s
				g.state = StateAuthenticated
				break
			}
		}
		if g.session != nil {
			notices = g.checkLocked()
			if g.state == StateAuthenticated {
				g.logger.Debug("session restored", "user_id", g.session.User.ID, "scope", g.session.Scope.String())
				g.inactivity.Reset(g.cfg.InactivityTimeout, g.onInactivity)
			}
		}
	}
	st := g.state
	g.mu.Unlock()

	g.deliver(notices)
	return st
}

// Login submits credentials through a and, on success, replaces any stored
// session with the new one. remember selects durable storage. While the
// brute-force lock is active it returns ErrLockedOut without calling a.
func (g *Guard) Login(ctx context.Context, a Authenticator, username, password string, remember bool) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return auth.ErrMissingCredentials
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if until, locked := g.lockedLocked(); locked {
		g.mu.Unlock()
		return fmt.Errorf("%w: retry after %s", ErrLockedOut, until.Format(time.RFC3339))
	}
	g.mu.Unlock()

	res, err := a.Login(ctx, username, password)

	g.mu.Lock()
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			g.mu.Unlock()
			return err
		}
		notices := g.recordFailureLocked(username)
		g.mu.Unlock()
		g.deliver(notices)
		return err
	}
	defer g.mu.Unlock()

	if res == nil || res.Token == "" || res.User == nil {
		return fmt.Errorf("login response carried no session")
	}

	g.stopTimersLocked()
	g.clearSessionKeysLocked()
	g.resetFailuresLocked()

	scope := ScopeVolatile
	if remember {
		scope = ScopeDurable
	}
	now := g.cfg.Clock.Now()
	s := &Session{
		AccessToken:  res.Token,
		RefreshToken: res.RefreshToken,
		User:         res.User,
		Scope:        scope,
		SessionID:    NewSessionID(now),
		LastActivity: now,
	}
	if err := g.saveSessionLocked(s); err != nil {
		g.clearSessionKeysLocked()
		return fmt.Errorf("storing session: %w", err)
	}

	g.session = s
	g.state = StateAuthenticated
	g.logActivityLocked(ActionLoginSuccess, username)
	g.inactivity.Reset(g.cfg.InactivityTimeout, g.onInactivity)
	g.logger.Info("logged in", "user_id", s.User.ID, "scope", scope.String())
	return nil
}

// Activity records a qualifying user action (click, pointer move, key
// press, scroll). It returns a Warning session to Authenticated.
func (g *Guard) Activity() {
	g.mu.Lock()
	notices := g.checkLocked()
	if g.live() {
		g.session.LastActivity = g.cfg.Clock.Now()
		g.state = StateAuthenticated
		g.grace.Stop()
		g.inactivity.Reset(g.cfg.InactivityTimeout, g.onInactivity)
	}
	g.mu.Unlock()

	g.deliver(notices)
}

// State returns the current state after checking the stored token.
func (g *Guard) State() State {
	g.mu.Lock()
	notices := g.checkLocked()
	st := g.state
	g.mu.Unlock()

	g.deliver(notices)
	return st
}

// Session returns a copy of the live session, or nil.
func (g *Guard) Session() *Session {
	g.mu.Lock()
	notices := g.checkLocked()
	var out *Session
	if g.live() {
		cp := *g.session
		out = &cp
	}
	g.mu.Unlock()

	g.deliver(notices)
	return out
}

// Logout clears every session key in both scopes and stops the timers. It is
// safe to call in any state and more than once.
func (g *Guard) Logout() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopTimersLocked()
	g.clearSessionKeysLocked()
	if g.session != nil {
		g.logActivityLocked(ActionLogout, g.session.User.Username)
		g.logger.Info("logged out", "user_id", g.session.User.ID)
	}
	g.session = nil
	g.state = StateUnauthenticated
}

// Refresh exchanges the stored refresh token for a new access token. A
// rejected refresh token expires the session.
func (g *Guard) Refresh(ctx context.Context, r Refresher) error {
	g.mu.Lock()
	notices := g.checkLocked()
	if !g.live() {
		g.mu.Unlock()
		g.deliver(notices)
		return ErrNotAuthenticated
	}
	refreshToken := g.session.RefreshToken
	g.mu.Unlock()
	g.deliver(notices)

	token, err := r.Refresh(ctx, refreshToken)

	g.mu.Lock()
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) && g.session != nil && g.session.RefreshToken == refreshToken {
			notices = g.expireLocked(msgExpiredToken)
		}
		g.mu.Unlock()
		g.deliver(notices)
		return err
	}
	defer g.mu.Unlock()

	if g.session == nil || g.session.RefreshToken != refreshToken {
		return ErrNotAuthenticated
	}
	if err := g.storage(g.session.Scope).Set(keyToken, token); err != nil {
		return fmt.Errorf("storing refreshed token: %w", err)
	}
	g.session.AccessToken = token
	g.logger.Debug("access token refreshed", "user_id", g.session.User.ID)
	return nil
}

// NotifyOtherSession reports that the server saw a session event for sid.
// Events about the guard's own session are ignored.
func (g *Guard) NotifyOtherSession(sid string) {
	g.mu.Lock()
	notices := g.checkLocked()
	if g.live() {
		claims, err := g.cfg.Decoder.Decode(g.session.AccessToken)
		if err == nil && claims.SessionID != sid {
			notices = append(notices, g.notice(NoticeOtherSession, msgOtherConnection))
		}
	}
	g.mu.Unlock()

	g.deliver(notices)
}

// ActivityLog returns the client-side security log, oldest first.
func (g *Guard) ActivityLog() []ActivityEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return readActivity(g.durable)
}

// Lockout returns the failed-attempt counter and, while locked, the time the
// lock lifts.
func (g *Guard) Lockout() (attempts int, until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	attempts = int(readInt(g.durable, keyFailedAttempts))
	if u, locked := g.lockedLocked(); locked {
		until = u
	}
	return attempts, until
}

// NewSessionID returns a client session id: "session_<unix ms>_<9 base36>".
func NewSessionID(now time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	b.WriteString("session_")
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	for range 9 {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))]) //nolint:gosec // correlation id, not a secret
	}
	return b.String()
}

// ─── Timer callbacks ───────────────────────────────────────────────

func (g *Guard) onInactivity() {
	g.mu.Lock()
	if g.closed || g.state != StateAuthenticated || g.session == nil {
		g.mu.Unlock()
		return
	}

	now := g.cfg.Clock.Now()
	if idle := now.Sub(g.session.LastActivity); idle < g.cfg.InactivityTimeout {
		g.inactivity.Reset(g.cfg.InactivityTimeout-idle, g.onInactivity)
		g.mu.Unlock()
		return
	}

	notices := g.checkLocked()
	if g.state == StateAuthenticated {
		g.state = StateWarning
		g.warnedAt = now
		notices = append(notices, g.notice(NoticeWarning, msgWarning))
		g.grace.Reset(g.cfg.WarningGrace, g.onGrace)
		g.logger.Debug("session idle warning", "user_id", g.session.User.ID)
	}
	g.mu.Unlock()

	g.deliver(notices)
}

func (g *Guard) onGrace() {
	g.mu.Lock()
	if g.closed || g.state != StateWarning || g.cfg.Clock.Now().Sub(g.warnedAt) < g.cfg.WarningGrace {
		g.mu.Unlock()
		return
	}
	notices := g.expireLocked(msgExpiredIdle)
	g.mu.Unlock()

	g.deliver(notices)
}

// ─── Storage events ────────────────────────────────────────────────

func (g *Guard) watchEvents(events <-chan StorageEvent) {
	defer g.wg.Done()
	for {
		select {
		case <-g.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.handleStorageEvent(ev)
		}
	}
}

func (g *Guard) handleStorageEvent(ev StorageEvent) {
	if ev.Key != keyToken || ev.NewValue == "" {
		return
	}

	g.mu.Lock()
	notices := g.checkLocked()
	if g.live() {
		notices = append(notices, g.notice(NoticeOtherSession, msgOtherTab))
	}
	g.mu.Unlock()

	g.deliver(notices)
}

// ─── Internals (g.mu held) ─────────────────────────────────────────

func (g *Guard) live() bool {
	return g.session != nil && (g.state == StateAuthenticated || g.state == StateWarning)
}

func (g *Guard) storage(scope PersistenceScope) Storage {
	if scope == ScopeDurable {
		return g.durable
	}
	return g.volatile
}

// checkLocked ends the session when its stored token is gone, expired or
// unreadable.
func (g *Guard) checkLocked() []Notice {
	if !g.live() {
		return nil
	}

	stored, ok := g.storage(g.session.Scope).Get(keyToken)
	if !ok || stored == "" {
		// Logged out elsewhere.
		g.stopTimersLocked()
		g.session = nil
		g.state = StateUnauthenticated
		return nil
	}

	if stored != g.session.AccessToken {
		g.adoptStoredLocked()
	}

	claims, err := g.cfg.Decoder.Decode(stored)
	if err != nil || claims.ExpiredAt(g.cfg.Clock.Now()) {
		return g.expireLocked(msgExpiredToken)
	}
	return nil
}

// adoptStoredLocked replaces the in-memory session with the one another tab
// wrote to the same scope. Local activity tracking carries over.
func (g *Guard) adoptStoredLocked() {
	s, ok := g.loadSessionLocked(g.session.Scope)
	if !ok {
		return
	}
	s.LastActivity = g.session.LastActivity
	g.session = s
	g.logger.Debug("adopted session stored by another tab", "user_id", s.User.ID)
}

func (g *Guard) expireLocked(msg string) []Notice {
	g.stopTimersLocked()
	g.clearSessionKeysLocked()
	if g.session != nil {
		g.logActivityLocked(ActionSessionExpired, g.session.User.Username)
		g.logger.Info("session expired", "user_id", g.session.User.ID, "reason", msg)
	}
	g.session = nil
	g.state = StateExpired
	return []Notice{g.notice(NoticeExpired, msg)}
}

func (g *Guard) stopTimersLocked() {
	g.inactivity.Stop()
	g.grace.Stop()
}

func (g *Guard) loadSessionLocked(scope PersistenceScope) (*Session, bool) {
	st := g.storage(scope)
	token, ok := st.Get(keyToken)
	if !ok || token == "" {
		return nil, false
	}
	rawUser, ok := st.Get(keyUser)
	if !ok {
		return nil, false
	}
	var user auth.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		g.logger.Warn("discarding unreadable stored user", "scope", scope.String(), "error", err)
		return nil, false
	}
	refresh, _ := st.Get(keyRefresh)
	sid, _ := st.Get(keySession)

	return &Session{
		AccessToken:  token,
		RefreshToken: refresh,
		User:         &user,
		Scope:        scope,
		SessionID:    sid,
		LastActivity: g.cfg.Clock.Now(),
	}, true
}

func (g *Guard) saveSessionLocked(s *Session) error {
	user, err := json.Marshal(s.User)
	if err != nil {
		return err
	}
	st := g.storage(s.Scope)
	for _, kv := range [][2]string{
		{keyUser, string(user)},
		{keySession, s.SessionID},
		{keyRefresh, s.RefreshToken},
		{keyToken, s.AccessToken},
	} {
		if err := st.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func (g *Guard) clearSessionKeysLocked() {
	for _, st := range []Storage{g.durable, g.volatile} {
		for _, key := range sessionKeys {
			if err := st.Remove(key); err != nil {
				g.logger.Warn("failed to clear session key", "key", key, "error", err)
			}
		}
	}
}

// lockedLocked reports whether the login lock is active. A lock that has
// lapsed is cleared together with the failure counter.
func (g *Guard) lockedLocked() (time.Time, bool) {
	ms := readInt(g.durable, keyLockUntil)
	if ms == 0 {
		return time.Time{}, false
	}
	until := time.UnixMilli(ms)
	if g.cfg.Clock.Now().Before(until) {
		return until, true
	}
	g.resetFailuresLocked()
	return time.Time{}, false
}

func (g *Guard) recordFailureLocked(username string) []Notice {
	now := g.cfg.Clock.Now()
	attempts := int(readInt(g.durable, keyFailedAttempts)) + 1

	g.setDurable(keyFailedAttempts, strconv.Itoa(attempts))
	g.setDurable(keyLastFailed, strconv.FormatInt(now.UnixMilli(), 10))
	g.logActivityLocked(ActionLoginFailed, username)

	if attempts < g.cfg.MaxFailedAttempts {
		return nil
	}
	until := now.Add(g.cfg.LockoutDuration)
	g.setDurable(keyLockUntil, strconv.FormatInt(until.UnixMilli(), 10))
	g.logger.Warn("login locked", "attempts", attempts, "until", until)

	minutes := int(g.cfg.LockoutDuration.Round(time.Minute) / time.Minute)
	return []Notice{g.notice(NoticeLockedOut, fmt.Sprintf(msgLockedOut, max(minutes, 1)))}
}

func (g *Guard) resetFailuresLocked() {
	for _, key := range []string{keyFailedAttempts, keyLastFailed, keyLockUntil} {
		if err := g.durable.Remove(key); err != nil {
			g.logger.Warn("failed to reset lockout key", "key", key, "error", err)
		}
	}
}

func (g *Guard) setDurable(key, value string) {
	if err := g.durable.Set(key, value); err != nil {
		g.logger.Warn("failed to persist lockout state", "key", key, "error", err)
	}
}

func (g *Guard) logActivityLocked(action, username string) {
	e := ActivityEntry{
		Action:    action,
		Username:  username,
		Timestamp: g.cfg.Clock.Now().UTC(),
		UserAgent: g.cfg.UserAgent,
	}
	if err := appendActivity(g.durable, e, g.cfg.ActivityLogSize); err != nil {
		g.logger.Warn("failed to append security log", "action", action, "error", err)
	}
}

func (g *Guard) notice(kind NoticeKind, msg string) Notice {
	return Notice{Kind: kind, Message: msg, At: g.cfg.Clock.Now()}
}

func (g *Guard) deliver(notices []Notice) {
	for _, n := range notices {
		g.notifier.Notify(n)
	}
}

func readInt(s Storage, key string) int64 {
	v, ok := s.Get(key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
