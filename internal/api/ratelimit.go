package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter keeps one token bucket per client address. A budget of N
// requests per window refills at N/window with a burst of N, so a quiet
// client can spend its whole window at once.
type ipLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	refill  time.Duration
	ttl     time.Duration
	entries map[string]*limBucket
	now     func() time.Time
}

type limBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(requests int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		limit:   rate.Limit(float64(requests) / window.Seconds()),
		burst:   requests,
		refill:  window / time.Duration(max(requests, 1)),
		ttl:     window,
		entries: make(map[string]*limBucket),
		now:     time.Now,
	}
}

// allow spends one token for key. Buckets idle for a full window are
// forgotten; they would be full again anyway.
func (m *ipLimiter) allow(key string) bool {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.entries[key]
	if b == nil {
		b = &limBucket{lim: rate.NewLimiter(m.limit, m.burst)}
		m.entries[key] = b
	}
	b.lastSeen = now

	for k, v := range m.entries {
		if now.Sub(v.lastSeen) > m.ttl {
			delete(m.entries, k)
		}
	}
	return b.lim.AllowN(now, 1)
}

// retryAfter is the Retry-After value in whole seconds: the time to refill
// a single token.
func (m *ipLimiter) retryAfter() string {
	return strconv.Itoa(int(math.Ceil(m.refill.Seconds())))
}

// clientIP returns the first X-Forwarded-For hop, falling back to the peer
// address.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
