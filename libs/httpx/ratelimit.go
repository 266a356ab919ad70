package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Decision is a limiter's answer for one request.
type Decision struct {
	Allowed    bool
	// RetryAfter is how long until the caller's window resets. Only set when
	// the request was refused.
	RetryAfter time.Duration
}

// Limiter decides whether one more request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimit wraps a Limiter as middleware keyed by client address. With
// failOpen, limiter errors let the request through instead of answering 503.
// Refusals carry a Retry-After header in whole seconds.
func RateLimit(l Limiter, logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter error", "err", err)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
				return
			}
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				http.Error(w, "too many requests, please slow down", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// MemoryRateLimiter is a per-process fixed window, used when Redis is not configured.
type MemoryRateLimiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
	windows map[string]*clientWindow
	sweepAt int
}

type clientWindow struct {
	count   int
	resetAt time.Time
}

// sweepThreshold is the map size that triggers dropping expired windows.
const sweepThreshold = 4096

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryRateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: map[string]*clientWindow{},
		sweepAt: sweepThreshold,
	}
}

func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cw := rl.windows[key]
	if cw == nil || !now.Before(cw.resetAt) {
		if len(rl.windows) >= rl.sweepAt {
			rl.sweep(now)
		}
		rl.windows[key] = &clientWindow{count: 1, resetAt: now.Add(rl.window)}
		return Decision{Allowed: true}, nil
	}
	if cw.count >= rl.limit {
		return Decision{RetryAfter: cw.resetAt.Sub(now)}, nil
	}
	cw.count++
	return Decision{Allowed: true}, nil
}

func (rl *MemoryRateLimiter) sweep(now time.Time) {
	for k, cw := range rl.windows {
		if !now.Before(cw.resetAt) {
			delete(rl.windows, k)
		}
	}
	// Keep amortised cost linear when most windows are still live.
	rl.sweepAt = 2 * len(rl.windows)
	if rl.sweepAt < sweepThreshold {
		rl.sweepAt = sweepThreshold
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
