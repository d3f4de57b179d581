package sessionguard

import (
	"time"

	"github.com/nerrad567/bulles-portal/internal/auth"
)

// Config holds the guard's timing and lockout settings.
type Config struct {
	// InactivityTimeout is how long without activity before the warning.
	InactivityTimeout time.Duration

	// WarningGrace is how long after the warning before the session expires.
	WarningGrace time.Duration

	// MaxFailedAttempts is the number of rejected logins that triggers a lock.
	MaxFailedAttempts int

	// LockoutDuration is how long the login stays locked.
	LockoutDuration time.Duration

	// ActivityLogSize caps the client-side security log.
	ActivityLogSize int

	// UserAgent is recorded in the security log.
	UserAgent string

	// Clock drives timers and timestamps. Defaults to SystemClock.
	Clock Clock

	// Decoder reads the stored access token's claims. Defaults to
	// auth.UnverifiedDecoder, since the client does not hold the secret.
	Decoder auth.ClaimsDecoder

	// Logger receives diagnostic output. Defaults to a no-op logger.
	Logger Logger
}

// DefaultConfig returns the portal's standard settings.
func DefaultConfig() Config {
	return Config{
		InactivityTimeout: 14 * time.Minute,
		WarningGrace:      60 * time.Second,
		MaxFailedAttempts: 5,
		LockoutDuration:   5 * time.Minute,
		ActivityLogSize:   100,
		UserAgent:         "bullesctl",
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	if c.WarningGrace <= 0 {
		c.WarningGrace = d.WarningGrace
	}
	if c.MaxFailedAttempts <= 0 {
		c.MaxFailedAttempts = d.MaxFailedAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = d.LockoutDuration
	}
	if c.ActivityLogSize <= 0 {
		c.ActivityLogSize = d.ActivityLogSize
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Decoder == nil {
		c.Decoder = auth.UnverifiedDecoder{}
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	return c
}

// Logger defines the logging interface for the guard. *logging.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
