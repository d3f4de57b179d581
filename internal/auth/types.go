package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames: roster codes such
// as "CE1-001" or short account names, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the portal.
type Role string

const (
	// RoleStudent can read their own profile and reports.
	RoleStudent Role = "student"

	// RoleAdmin is school staff: analytics, the security log and metrics.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a user account may hold.
var ValidRoles = []Role{RoleStudent, RoleAdmin}

// IsValidRole returns true if r is a role a user account may hold.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is a roster account. The ID doubles as the login username for pupils.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never serialised
	FullName     string    `json:"fullName"`
	Class        string    `json:"class"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"-"`
}

// LoginResult is the body returned by a successful login.
type LoginResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
	ExpiresIn    int    `json:"expiresIn"` // seconds until Token expires
}

// Sentinel errors for auth operations.
var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("token is required")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrSessionRevoked     = errors.New("session has been revoked")
	ErrForbidden          = errors.New("insufficient permissions")
)
