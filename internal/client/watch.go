package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Session event types pushed by the server.
const (
	EventSessionStarted = "session.started"
	EventSessionEnded   = "session.ended"
)

// handshakeTimeout bounds the websocket dial.
const handshakeTimeout = 10 * time.Second

// SessionEvent reports that another session of the same user started or
// ended.
type SessionEvent struct {
	Type      string
	SessionID string
	At        time.Time
}

type wsMessage struct {
	Type      string `json:"type"`
	EventType string `json:"eventType,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   struct {
		SessionID string `json:"sessionId"`
	} `json:"payload"`
}

// WatchSessions obtains a ticket, connects to /api/ws and calls fn for each
// session event until ctx is cancelled or the connection drops. It returns
// nil when ctx ends the watch.
func (c *Client) WatchSessions(ctx context.Context, token string, fn func(SessionEvent)) error {
	ticket, err := c.WSTicket(ctx, token)
	if err != nil {
		return err
	}

	wsURL, err := c.websocketURL(ticket)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connecting to session events: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		//nolint:errcheck // best-effort close handshake
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading session events: %w", err)
		}
		if msg.Type != "event" || !strings.HasPrefix(msg.EventType, "session.") {
			continue
		}

		ev := SessionEvent{Type: msg.EventType, SessionID: msg.Payload.SessionID}
		if ts, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
			ev.At = ts
		}
		fn(ev)
	}
}

func (c *Client) websocketURL(ticket string) (string, error) {
	u, err := url.Parse(c.baseURL + "/api/ws")
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("base URL must be http or https")
	}
	u.RawQuery = url.Values{"ticket": {ticket}}.Encode()
	return u.String(), nil
}
