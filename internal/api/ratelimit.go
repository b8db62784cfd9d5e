package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter caps requests per client within fixed windows. Rendering a run
// image is the only expensive read, so only julia.png goes through it.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	limit   int
	period  time.Duration
	swept   time.Time
	now     func() time.Time
}

type clientWindow struct {
	used   int
	opened time.Time
}

// NewRateLimiter allows limit requests per client every period.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow counts one request for client and reports whether it fits the
// current window.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	w, ok := rl.clients[client]
	if !ok || now.Sub(w.opened) >= rl.period {
		w = &clientWindow{opened: now}
		rl.clients[client] = w
	}
	if w.used >= rl.limit {
		return false
	}
	w.used++
	return true
}

// RetryAfter returns whole seconds until client's window reopens, rounded up
// past the boundary. Unknown clients get 0.
func (rl *RateLimiter) RetryAfter(client string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.clients[client]
	if !ok {
		return 0
	}
	left := rl.period - rl.now().Sub(w.opened)
	if left < 0 {
		return 0
	}
	return int(left.Seconds()) + 1
}

// sweep forgets clients idle for two periods. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.swept) <= 2*rl.period {
		return
	}
	rl.swept = now
	for client, w := range rl.clients {
		if now.Sub(w.opened) > 2*rl.period {
			delete(rl.clients, client)
		}
	}
}

// clientIP returns the first X-Forwarded-For entry, else the remote host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware answers 429 with Retry-After once a client exceeds rl.
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
