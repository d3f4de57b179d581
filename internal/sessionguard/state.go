package sessionguard

import (
	"time"

	"github.com/nerrad567/bulles-portal/internal/auth"
)

// State is the guard's view of the session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
	StateWarning         State = "warning"
	StateExpired         State = "expired"
)

// PersistenceScope selects where a session is stored.
type PersistenceScope int

const (
	// ScopeVolatile lasts as long as the tab or process.
	ScopeVolatile PersistenceScope = iota
	// ScopeDurable survives restarts ("remember me").
	ScopeDurable
)

func (s PersistenceScope) String() string {
	if s == ScopeDurable {
		return "durable"
	}
	return "volatile"
}

// Session is the persisted state of one login.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *auth.User
	Scope        PersistenceScope
	SessionID    string
	LastActivity time.Time
}

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	NoticeWarning      NoticeKind = "warning"
	NoticeExpired      NoticeKind = "expired"
	NoticeOtherSession NoticeKind = "other_session"
	NoticeLockedOut    NoticeKind = "locked_out"
)

// Notice is an advisory message for the user.
type Notice struct {
	Kind    NoticeKind
	Message string
	At      time.Time
}

// Notifier receives notices. It is called without the guard's lock held, so
// it may call back into the guard.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// User-facing notice messages.
const (
	msgWarning         = "Session sur le point d'expirer"
	msgExpiredIdle     = "Session expirée pour cause d'inactivité"
	msgExpiredToken    = "Session expirée. Veuillez vous reconnecter."
	msgOtherTab        = "Session détectée sur un autre onglet"
	msgOtherConnection = "Session ouverte depuis un autre appareil"
	msgLockedOut       = "Trop de tentatives. Réessayez dans %d minutes."
)
