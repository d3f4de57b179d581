package sessionguard

import (
	"encoding/json"
	"time"
)

// Client-side security log actions.
const (
	ActionLoginSuccess   = "LOGIN_SUCCESS"
	ActionLoginFailed    = "LOGIN_FAILED"
	ActionLogout         = "LOGOUT"
	ActionSessionExpired = "SESSION_EXPIRED"
)

// ActivityEntry is one line of the client-side security log.
type ActivityEntry struct {
	Action    string    `json:"action"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// readActivity returns the stored log. A corrupt log reads as empty.
func readActivity(s Storage) []ActivityEntry {
	raw, ok := s.Get(keySecurityLogs)
	if !ok || raw == "" {
		return nil
	}
	var entries []ActivityEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	return entries
}

// appendActivity adds e and keeps only the newest limit entries.
func appendActivity(s Storage, e ActivityEntry, limit int) error {
	entries := append(readActivity(s), e)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.Set(keySecurityLogs, string(data))
}
