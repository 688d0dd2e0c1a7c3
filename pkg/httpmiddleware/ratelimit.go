package httpmiddleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per window.
	Max int
	// Window is the length of one window.
	Window time.Duration
	// Keys bounds how many distinct keys are tracked. Least recently seen
	// keys are evicted first. Defaults to 10000.
	Keys int
	// KeyFunc extracts the limited key from a request. Defaults to ClientKey.
	KeyFunc func(*http.Request) string
}

// window holds the counts of the current and previous fixed windows. The
// effective count weights the previous window by how much of it still
// overlaps the sliding window ending now.
type window struct {
	mu        sync.Mutex
	prevCount float64
	currCount float64
	currStart time.Time
}

func (w *window) take(now time.Time, size time.Duration, limit int) (remaining int, resetAt time.Time, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currStart.IsZero() {
		w.currStart = now.Truncate(size)
	}
	if elapsed := now.Sub(w.currStart); elapsed >= size {
		if elapsed >= 2*size {
			w.prevCount = 0
		} else {
			w.prevCount = w.currCount
		}
		w.currCount = 0
		w.currStart = now.Truncate(size)
	}

	overlap := 1 - now.Sub(w.currStart).Seconds()/size.Seconds()
	effective := w.prevCount*math.Max(overlap, 0) + w.currCount
	resetAt = w.currStart.Add(size)

	if effective >= float64(limit) {
		return 0, resetAt, false
	}
	w.currCount++
	return max(int(float64(limit)-effective-1), 0), resetAt, true
}

// rateLimiter tracks one window per key. Keys idle for two windows expire
// from the cache on their own.
type rateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	windows *expirable.LRU[string, *window]
	now     func() time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientKey
	}
	if cfg.Keys <= 0 {
		cfg.Keys = 10000
	}
	return &rateLimiter{
		cfg:     cfg,
		windows: expirable.NewLRU[string, *window](cfg.Keys, nil, 2*cfg.Window),
		now:     time.Now,
	}
}

func (rl *rateLimiter) window(key string) *window {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows.Get(key)
	if !ok {
		w = &window{}
	}
	// Re-adding refreshes the entry's expiry.
	rl.windows.Add(key, w)
	return w
}

// RateLimit rejects requests beyond cfg.Max per cfg.Window and key with 429.
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := rl.now()
		remaining, resetAt, ok := rl.window(rl.cfg.KeyFunc(r)).take(now, rl.cfg.Window, rl.cfg.Max)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !ok {
			retry := math.Ceil(math.Max(resetAt.Sub(now).Seconds(), 0))
			h.Set("Retry-After", strconv.Itoa(int(retry)))
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CallerHeader identifies the calling admin or user.
const CallerHeader = "X-Caller-ID"

// ClientKey limits identified callers by their id and anonymous clients by
// address, preferring the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func ClientKey(r *http.Request) string {
	if id := r.Header.Get(CallerHeader); id != "" {
		return "caller:" + id
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return "ip:" + strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return "ip:" + xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
