package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the portal.
const (
	MeasurementAuthEvents   = "auth_events"
	MeasurementLoginLatency = "login_latency"
	MeasurementSessions     = "sessions"
)

// WriteAuthEvent records one auth action. Usernames are low-cardinality in a
// single-class portal, so they are stored as a tag.
func (c *Client) WriteAuthEvent(action, username string, success bool) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(authEventPoint(action, username, success, time.Now()))
}

// WriteLoginLatency records how long a login request took, password hashing
// included.
func (c *Client) WriteLoginLatency(d time.Duration, success bool) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(loginLatencyPoint(d, success, time.Now()))
}

// WriteSessionGauge samples the number of live sessions and connected
// WebSocket clients.
func (c *Client) WriteSessionGauge(active, wsClients int) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(sessionGaugePoint(active, wsClients, time.Now()))
}

func authEventPoint(action, username string, success bool, ts time.Time) *write.Point {
	tags := map[string]string{"action": action}
	if username != "" {
		tags["username"] = username
	}
	return write.NewPoint(MeasurementAuthEvents, tags, map[string]any{
		"count":   1,
		"success": success,
	}, ts)
}

func loginLatencyPoint(d time.Duration, success bool, ts time.Time) *write.Point {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	return write.NewPoint(MeasurementLoginLatency,
		map[string]string{"outcome": outcome},
		map[string]any{"ms": float64(d.Microseconds()) / 1000}, //nolint:mnd // µs to ms
		ts,
	)
}

func sessionGaugePoint(active, wsClients int, ts time.Time) *write.Point {
	return write.NewPoint(MeasurementSessions, nil, map[string]any{
		"active":     active,
		"ws_clients": wsClients,
	}, ts)
}
