// Package sessionguard keeps a portal session alive on the client side.
//
// A Guard holds the tokens returned by login, persists them in either a
// durable or a volatile Storage, and watches the session:
//
//   - An inactivity timer moves the session to Warning, and a grace timer
//     after that expires it.
//   - Every State or Session call decodes the stored access token, so an
//     expired token ends the session immediately.
//   - Repeated rejected logins lock the login form for a while. The counter
//     lives in durable storage so it survives restarts.
//   - A token written by another tab, or a session event for another session
//     of the same user, raises an advisory notice.
//
// Timers are driven by a Clock. Tests use ManualClock to fire them
// deterministically:
//
//	clock := sessionguard.NewManualClock(start)
//	g, _ := sessionguard.New(durable, volatile, sessionguard.Config{Clock: clock}, notifier)
//	clock.Advance(14 * time.Minute) // Warning
//	clock.Advance(time.Minute)      // Expired
package sessionguard
