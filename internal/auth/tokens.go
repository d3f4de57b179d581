package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// KeyClass selects which secret a token is verified under.
type KeyClass int

const (
	// KeyAccess verifies short-lived access tokens.
	KeyAccess KeyClass = iota
	// KeyRefresh verifies long-lived refresh tokens.
	KeyRefresh
)

func (k KeyClass) String() string {
	switch k {
	case KeyAccess:
		return "access"
	case KeyRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("KeyClass(%d)", int(k))
	}
}

// RevocationChecker reports whether a session id has been logged out.
type RevocationChecker interface {
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

// TokenConfig configures a TokenService.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Revocations is optional. When nil, logout is stateless and tokens stay
	// valid until they expire.
	Revocations RevocationChecker

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken   string
	RefreshToken  string
	SessionID     string
	AccessClaims  *Claims
	RefreshExpiry time.Time
}

// TokenService issues and verifies access and refresh tokens.
// It is safe for concurrent use.
type TokenService struct {
	access      TokenCodec
	refresh     TokenCodec
	accessTTL   time.Duration
	refreshTTL  time.Duration
	users       CredentialStore
	revocations RevocationChecker
	now         func() time.Time
}

// NewTokenService validates the configuration and builds a service backed by
// two HMAC codecs.
func NewTokenService(cfg TokenConfig, users CredentialStore) (*TokenService, error) {
	switch {
	case cfg.AccessSecret == "" || cfg.RefreshSecret == "":
		return nil, errors.New("auth: access and refresh secrets are required")
	case cfg.AccessSecret == cfg.RefreshSecret:
		return nil, errors.New("auth: access and refresh secrets must differ")
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, errors.New("auth: token TTLs must be positive")
	case users == nil:
		return nil, errors.New("auth: credential store is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenService{
		access:      NewHMACCodec(cfg.AccessSecret, now),
		refresh:     NewHMACCodec(cfg.RefreshSecret, now),
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		users:       users,
		revocations: cfg.Revocations,
		now:         now,
	}, nil
}

// AccessTTL returns the lifetime of issued access tokens.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the lifetime of issued refresh tokens.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs an access token for user within the given session.
func (s *TokenService) IssueAccessToken(user *User, sessionID string) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		Username:  user.Username,
		Role:      user.Role,
		SessionID: sessionID,
	}

	token, err := s.access.Encode(claims)
	if err != nil {
		return "", nil, fmt.Errorf("issuing access token: %w", err)
	}
	return token, claims, nil
}

// IssueRefreshToken signs a refresh token. It carries no role or username so
// that a refresh always re-reads the user's current identity.
func (s *TokenService) IssueRefreshToken(user *User, sessionID string) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
		SessionID: sessionID,
	}

	token, err := s.refresh.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("issuing refresh token: %w", err)
	}
	return token, nil
}

// IssuePair starts a new session for user and issues both tokens.
func (s *TokenService) IssuePair(user *User) (*TokenPair, error) {
	sid := uuid.NewString()

	access, claims, err := s.IssueAccessToken(user, sid)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefreshToken(user, sid)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:   access,
		RefreshToken:  refresh,
		SessionID:     sid,
		AccessClaims:  claims,
		RefreshExpiry: s.now().Add(s.refreshTTL),
	}, nil
}

// Verify checks a token under the given key class and returns its claims.
func (s *TokenService) Verify(token string, class KeyClass) (*Claims, error) {
	var codec TokenCodec
	switch class {
	case KeyAccess:
		codec = s.access
	case KeyRefresh:
		codec = s.refresh
	default:
		return nil, fmt.Errorf("%w: unknown key class %s", ErrTokenInvalid, class)
	}

	claims, err := codec.Decode(token)
	if err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session", ErrTokenInvalid)
	}
	if class == KeyAccess && claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}

	return claims, nil
}

// CheckSession fails with ErrSessionRevoked when the session has been logged
// out. It always succeeds when no revocation store is configured.
func (s *TokenService) CheckSession(ctx context.Context, sessionID string) error {
	if s.revocations == nil {
		return nil
	}
	revoked, err := s.revocations.IsSessionRevoked(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("checking session revocation: %w", err)
	}
	if revoked {
		return fmt.Errorf("%w: %w", ErrTokenInvalid, ErrSessionRevoked)
	}
	return nil
}

// Refresh exchanges a refresh token for a new access token in the same
// session. The user is re-resolved so the new token reflects their current
// role; a user who no longer exists invalidates the refresh token.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, *Claims, error) {
	if refreshToken == "" {
		return "", nil, ErrMissingToken
	}

	rc, err := s.Verify(refreshToken, KeyRefresh)
	if err != nil {
		return "", nil, err
	}

	if err := s.CheckSession(ctx, rc.SessionID); err != nil {
		return "", nil, err
	}

	user, err := s.users.FindByID(ctx, rc.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, fmt.Errorf("%w: subject no longer exists", ErrTokenInvalid)
		}
		return "", nil, fmt.Errorf("resolving refresh subject: %w", err)
	}

	return s.IssueAccessToken(user, rc.SessionID)
}
