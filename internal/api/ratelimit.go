package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// rateWindow is the length of one fixed rate-limit window.
const rateWindow = time.Minute

// RateLimiter implements per-key fixed-window rate limiting.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count    int
	windowAt time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int           // requests left in the current window
	Reset     time.Duration // until the window rolls over
}

// NewRateLimiter creates an empty RateLimiter. Call Run to evict stale
// buckets in the background.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

// Allow counts one request against key, allowing at most limit per window.
func (rl *RateLimiter) Allow(key string, limit int) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.windowAt) >= rateWindow {
		b = &bucket{windowAt: now}
		rl.buckets[key] = b
	}
	reset := b.windowAt.Add(rateWindow).Sub(now)
	if b.count >= limit {
		return Decision{Remaining: 0, Reset: reset}
	}
	b.count++
	return Decision{Allowed: true, Remaining: limit - b.count, Reset: reset}
}

// Run evicts stale buckets every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-2 * rateWindow)
	for k, b := range rl.buckets {
		if b.windowAt.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

// withRateLimit wraps a handler with per-caller rate limiting. Authenticated
// callers are keyed by API key, anonymous ones by client IP. Reads and
// writes draw from separate buckets.
func (s *Server) withRateLimit(handler http.HandlerFunc, class string, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := "ip:" + clientIP(r)
		if keyID := getKeyID(r.Context()); keyID != "" {
			subject = "key:" + keyID
		}
		d := s.rateLimiter.Allow(subject+":"+class, limit)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			s.metrics.RecordRateLimited()
			logFor(r.Context()).Warn("rate limited", "subject", subject, "class", class)
			h.Set("Retry-After", strconv.Itoa(max(1, int((d.Reset+time.Second-1)/time.Second))))
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
			return
		}
		handler(w, r)
	}
}

// clientIP extracts the client IP from the request, checking X-Forwarded-For first.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
