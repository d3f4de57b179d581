package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/bulles-portal/internal/audit"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/mqtt"
)

// auditChanSize is the buffer size for the async audit log channel.
// Entries beyond this are dropped (best-effort) to avoid back-pressure on requests.
const auditChanSize = 256

// authEvent is what the portal publishes on bulles/auth/event/{action}.
type authEvent struct {
	Action    string `json:"action"`
	Username  string `json:"username,omitempty"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// recordAuthEvent queues an auth action for the activity log, the MQTT bus
// and the time-series store. Secrets never reach it.
func (s *Server) recordAuthEvent(r *http.Request, action, username, userID, sessionID string, details map[string]any) {
	s.logger.Info("auth event",
		"action", action,
		"username", username,
		"user_id", userID,
		"session_id", sessionID,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	entry := &audit.Entry{
		Action:     action,
		Username:   username,
		UserID:     userID,
		SessionID:  sessionID,
		RemoteAddr: clientIP(r),
		UserAgent:  r.UserAgent(),
		Details:    details,
		CreatedAt:  s.now(),
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit log channel full, dropping entry", "action", action)
	}
}

// drainAuditLog writes queued entries serially and fans them out to the
// optional sinks. It runs until the context is cancelled, then drains what is
// left.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAuditEntry(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAuditEntry(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeAuditEntry(entry *audit.Entry) {
	if s.auditRepo != nil {
		if err := s.auditRepo.Create(context.Background(), entry); err != nil {
			s.logger.Error("audit log write failed", "action", entry.Action, "error", err)
		}
	}

	if s.mqtt.IsConnected() {
		evt := authEvent{
			Action:    entry.Action,
			Username:  entry.Username,
			UserID:    entry.UserID,
			SessionID: entry.SessionID,
			Timestamp: entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := s.mqtt.PublishJSON(mqtt.Topics{}.AuthEvent(entry.Action), evt); err != nil {
			s.logger.Warn("auth event publish failed", "action", entry.Action, "error", err)
		}
	}

	s.influx.WriteAuthEvent(entry.Action, entry.Username, !strings.HasSuffix(entry.Action, "_FAILED"))
}

// pruneAuditLoop trims the activity log to security.audit.retain entries.
func (s *Server) pruneAuditLoop(ctx context.Context) {
	keep := s.secCfg.Audit.Retain
	if keep <= 0 {
		return
	}

	ticker := time.NewTicker(auditPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.auditRepo.Prune(ctx, keep)
			if err != nil {
				s.logger.Warn("audit prune failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("audit log pruned", "removed", n, "kept", keep)
			}
		}
	}
}

// handleListAuditLogs returns paginated activity log entries.
//
// Query parameters:
//   - action: filter by action (LOGIN_SUCCESS, LOGIN_FAILED, LOGOUT, ...)
//   - username: filter by account
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, msgAuditUnavailable)
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		Username: q.Get("username"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		s.writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
