package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a per-process fixed-window limiter keyed by client IP.
// Use RedisRateLimiter when more than one replica serves traffic.
type RateLimiter struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, reset := rl.hit(ClientIP(r))
			if !admit(w, rl.limit, int64(count), reset.Sub(rl.now())) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hit counts one request for key and returns the count in the current
// window and when that window ends.
func (rl *RateLimiter) hit(key string) (int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.visitors) > maxTrackedVisitors {
		rl.evictExpired(now)
	}
	v := rl.visitors[key]
	if v == nil || now.After(v.resetTime) {
		v = &visitor{resetTime: now.Add(rl.window)}
		rl.visitors[key] = v
	}
	v.count++
	return v.count, v.resetTime
}

const maxTrackedVisitors = 10000

func (rl *RateLimiter) evictExpired(now time.Time) {
	for k, v := range rl.visitors {
		if now.After(v.resetTime) {
			delete(rl.visitors, k)
		}
	}
}

// admit sets the rate limit headers and writes a 429 envelope once count
// exceeds limit. It reports whether the request may proceed.
func admit(w http.ResponseWriter, limit int, count int64, resetIn time.Duration) bool {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	if count <= int64(limit) {
		return true
	}

	secs := int64((resetIn + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate limit exceeded","code":"RATE_LIMITED"}`))
	return false
}

// ClientIP returns the first X-Forwarded-For hop, falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
