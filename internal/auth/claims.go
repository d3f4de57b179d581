package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of both token kinds. Access tokens carry the
// username and role; refresh tokens carry only the subject and session.
type Claims struct {
	jwt.RegisteredClaims
	Username  string `json:"username,omitempty"`
	Role      Role   `json:"role,omitempty"`
	SessionID string `json:"sid,omitempty"`
}

// Expiry returns the expiry instant, or the zero time if the claim is absent.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ExpiredAt reports whether the claims are expired at now. The boundary is
// inclusive: a token whose exp equals now is already expired.
func (c *Claims) ExpiredAt(now time.Time) bool {
	exp := c.Expiry()
	return exp.IsZero() || !now.Before(exp)
}

// TokenCodec turns claims into a compact token string and back.
type TokenCodec interface {
	Encode(claims *Claims) (string, error)
	Decode(token string) (*Claims, error)
}

// ClaimsDecoder is the read side of a TokenCodec. Clients that cannot verify
// signatures still inspect expiry through it.
type ClaimsDecoder interface {
	Decode(token string) (*Claims, error)
}

// HMACCodec signs and verifies tokens with HS256 under a single secret.
type HMACCodec struct {
	secret []byte
	now    func() time.Time
}

// NewHMACCodec creates a codec for the given secret. A nil now uses time.Now.
func NewHMACCodec(secret string, now func() time.Time) *HMACCodec {
	if now == nil {
		now = time.Now
	}
	return &HMACCodec{secret: []byte(secret), now: now}
}

// Encode signs the claims.
func (c *HMACCodec) Encode(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature, algorithm and expiry, returning the claims.
// Every failure wraps ErrTokenInvalid; expiry additionally wraps ErrTokenExpired.
func (c *HMACCodec) Decode(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	// exp == now is expired.
	if claims.ExpiredAt(c.now()) {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, ErrTokenExpired)
	}

	return claims, nil
}

// UnverifiedDecoder reads claims without checking the signature or expiry.
// It must never be used to authorise anything.
type UnverifiedDecoder struct{}

// Decode parses the token payload.
func (UnverifiedDecoder) Decode(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims, nil
}
