package influxdb

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/bulles-portal/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu    sync.Mutex
	lines []string
	srv   *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			for _, l := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if l != "" {
					f.lines = append(f.lines, l)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// waitForLines polls until n lines arrive; the write API posts from its own
// goroutine even after Flush returns.
func (f *fakeInflux) waitForLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		lines := f.written()
		if len(lines) >= n || time.Now().After(deadline) {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "bulles",
		Bucket:        "auth",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	client, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("Connect() error = %v, want %v", err, ErrDisabled)
	}
	if client != nil {
		t.Error("Connect() returned a client when disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Connect(testConfig(url))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want %v", err, ErrConnectionFailed)
	}
}

func TestClient_WritesLineProtocol(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := Connect(testConfig(fake.srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if err := client.HealthCheck(t.Context()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	client.WriteAuthEvent("LOGIN_SUCCESS", "CE1-001", true)
	client.WriteLoginLatency(1500*time.Microsecond, true)
	client.WriteSessionGauge(4, 2)
	client.Flush()

	lines := fake.waitForLines(t, 3)
	if len(lines) != 3 {
		t.Fatalf("written %d lines, want 3: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "auth_events,action=LOGIN_SUCCESS,username=CE1-001 ") {
		t.Errorf("auth event line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "login_latency,outcome=success ms=1.5 ") {
		t.Errorf("latency line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "sessions active=4i,ws_clients=2i ") {
		t.Errorf("session gauge line = %q", lines[2])
	}
}

func TestClient_ClosedIsNoop(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := Connect(testConfig(fake.srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	client.WriteAuthEvent("LOGOUT", "CE1-001", true)
	client.Flush()

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want %v", err, ErrNotConnected)
	}
	if n := len(fake.written()); n != 0 {
		t.Errorf("written %d lines after Close, want 0", n)
	}
}

func TestClient_NilSafe(t *testing.T) {
	var client *Client

	client.WriteAuthEvent("LOGIN_FAILED", "", false)
	client.WriteLoginLatency(time.Millisecond, false)
	client.WriteSessionGauge(1, 0)
	client.Flush()

	if client.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want %v", err, ErrNotConnected)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestPoints(t *testing.T) {
	ts := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		point *write.Point
		want  string
	}{
		{
			"login failure without username",
			authEventPoint("LOGIN_FAILED", "", false, ts),
			"auth_events,action=LOGIN_FAILED count=1i,success=false",
		},
		{
			"refresh",
			authEventPoint("TOKEN_REFRESHED", "admin", true, ts),
			"auth_events,action=TOKEN_REFRESHED,username=admin count=1i,success=true",
		},
		{
			"session gauge",
			sessionGaugePoint(3, 1, ts),
			"sessions active=3i,ws_clients=1i",
		},
		{
			"slow failed login",
			loginLatencyPoint(250*time.Millisecond, false, ts),
			"login_latency,outcome=failure ms=250",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.TrimSpace(write.PointToLineProtocol(tt.point, time.Nanosecond))
			want := tt.want + " 1772438400000000000"
			if got != want {
				t.Errorf("line = %q, want %q", got, want)
			}
		})
	}
}
