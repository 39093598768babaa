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
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// Max requests per Window for one key.
	Max    int
	Window time.Duration
	// KeyFunc defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Store defaults to an in-process MemoryStore. A failing store lets the
	// request through.
	Store Store
}

// Store counts requests per key.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (remaining int, resetAt time.Time, allowed bool, err error)
}

// slidingWindow keeps the counts of the current and the previous fixed
// window; the previous one is weighted by how much it still overlaps.
type slidingWindow struct {
	prev      float64
	prevStart time.Time
	curr      float64
	currStart time.Time
}

// MemoryStore is a sliding window Store local to one process.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*slidingWindow)}
}

// Allow never fails.
func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (int, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &slidingWindow{currStart: now}
		s.windows[key] = w
	}
	if now.Sub(w.currStart) >= window {
		w.prev, w.prevStart = w.curr, w.currStart
		w.curr, w.currStart = 0, now.Truncate(window)
		if now.Sub(w.prevStart) >= 2*window {
			w.prev = 0
		}
	}

	overlap := max(0, 1-now.Sub(w.currStart).Seconds()/window.Seconds())
	count := w.prev*overlap + w.curr
	resetAt := w.currStart.Add(window)
	if count >= float64(limit) {
		return 0, resetAt, false, nil
	}
	w.curr++
	return max(0, int(float64(limit)-count-1)), resetAt, true, nil
}

// Sweep drops keys idle for two windows.
func (s *MemoryStore) Sweep(now time.Time, window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.windows {
		if now.Sub(w.currStart) >= 2*window {
			delete(s.windows, key)
		}
	}
}

func (s *MemoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// RateLimit limits requests per key and answers 429 with a JSON body once
// the limit is reached. Responses carry X-RateLimit-* headers. The default
// MemoryStore is never swept; see RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	return rateLimit(cfg)
}

// RateLimitWithCleanup is RateLimit whose default MemoryStore is swept every
// two windows until ctx is done. Shared stores expire keys themselves.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Store == nil {
		mem := NewMemoryStore()
		go func() {
			ticker := time.NewTicker(2 * cfg.Window)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					mem.Sweep(now, cfg.Window)
				}
			}
		}()
		cfg.Store = mem
	}
	return rateLimit(cfg)
}

func rateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, allowed, err := cfg.Store.Allow(r.Context(), cfg.KeyFunc(r), cfg.Max, cfg.Window, time.Now())
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limit store failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := max(0, time.Until(resetAt))
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)

			var e jx.Encoder
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusTooManyRequests) })
				e.Field("message", func(e *jx.Encoder) { e.Str("rate limit exceeded") })
			})
			_, _ = w.Write(e.Bytes())
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
