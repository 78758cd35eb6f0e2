package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the per-client limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// Key identifies the client. Defaults to ClientIP.
	Key func(*http.Request) string
}

// window holds the counters of the current and the previous fixed window.
type window struct {
	start     time.Time
	curr      float64
	prev      float64
	prevStart time.Time
}

// Limiter approximates a sliding window by weighting the previous fixed
// window with its remaining overlap.
type Limiter struct {
	limit int
	size  time.Duration
	mu    sync.Mutex
	byKey map[string]*window
}

// NewLimiter returns a Limiter allowing limit requests per size.
func NewLimiter(limit int, size time.Duration) *Limiter {
	return &Limiter{limit: limit, size: size, byKey: make(map[string]*window)}
}

// Allow records a request for key at now. It returns the remaining budget,
// the end of the current window and whether the request fits.
func (l *Limiter) Allow(key string, now time.Time) (int, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.byKey[key]
	if !ok {
		w = &window{start: now.Truncate(l.size)}
		l.byKey[key] = w
	}
	if now.Sub(w.start) >= l.size {
		w.prev, w.prevStart = w.curr, w.start
		w.curr = 0
		w.start = now.Truncate(l.size)
		if w.start.Sub(w.prevStart) > l.size {
			w.prev = 0
		}
	}

	overlap := 1 - now.Sub(w.start).Seconds()/l.size.Seconds()
	used := w.prev*max(overlap, 0) + w.curr
	reset := w.start.Add(l.size)
	if used >= float64(l.limit) {
		return 0, reset, false
	}
	w.curr++
	return max(int(float64(l.limit)-used-1), 0), reset, true
}

// Sweep drops clients idle for two windows.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.byKey {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.byKey, key)
		}
	}
}

// RateLimit rejects clients over budget with 429 and sets X-RateLimit-*
// headers on every response. Idle clients are swept until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg.Max, cfg.Window)
	key := cfg.Key
	if key == nil {
		key = ClientIP
	}

	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Sweep(now)
			}
		}
	}()

	limit := strconv.Itoa(cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, reset, ok := l.Allow(key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(reset.Sub(now).Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote
// host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSONError writes the {"code","message"} body shared with the API.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
