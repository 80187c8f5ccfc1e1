// Per-client request limiting for endpoints that hit the database.
package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter allows maxRate requests per client per fixed window.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	maxRate int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	remaining int
	started   time.Time
}

// NewRateLimiter creates a limiter allowing maxRate requests per period.
// Stale client entries are dropped lazily on Allow.
func NewRateLimiter(maxRate int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		maxRate: maxRate,
		period:  period,
		now:     time.Now,
	}
}

// Allow consumes one request for client and reports whether it fits.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.windows) > 1024 {
		rl.evictLocked(now)
	}

	w, ok := rl.windows[client]
	if !ok || now.Sub(w.started) >= rl.period {
		rl.windows[client] = &window{remaining: rl.maxRate - 1, started: now}
		return rl.maxRate > 0
	}
	if w.remaining > 0 {
		w.remaining--
		return true
	}
	return false
}

// RetryAfter returns whole seconds until client's window resets.
func (rl *RateLimiter) RetryAfter(client string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[client]
	if !ok {
		return 0
	}
	left := rl.period - rl.now().Sub(w.started)
	if left <= 0 {
		return 0
	}
	return int(left.Seconds()) + 1
}

func (rl *RateLimiter) evictLocked(now time.Time) {
	for client, w := range rl.windows {
		if now.Sub(w.started) > 2*rl.period {
			delete(rl.windows, client)
		}
	}
}

// clientIP prefers the first X-Forwarded-For hop, then the remote host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects requests over the limit with 429.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(ip)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
