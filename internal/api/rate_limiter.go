package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/estrella/internal/errors"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per caller
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex

	limit     rate.Limit
	burstSize int
	maxIdle   time.Duration
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter allowing rps requests per second per caller
func NewRateLimiter(rps, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     rate.Limit(rps),
		burstSize: burst,
		maxIdle:   10 * time.Minute,
		now:       time.Now,
	}
}

// getLimiter returns the limiter for key, dropping limiters idle for longer than maxIdle
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	if len(rl.limiters) >= 10000 {
		for k, entry := range rl.limiters {
			if now.Sub(entry.lastSeen) > rl.maxIdle {
				delete(rl.limiters, k)
			}
		}
	}

	limiter := rate.NewLimiter(rl.limit, rl.burstSize)
	rl.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// clientKey identifies the caller: the user ID when present, else the remote IP
func clientKey(r *http.Request) string {
	if userID := r.Header.Get(HeaderUserID); userID != "" {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.getLimiter(clientKey(r))

			if !limiter.Allow() {
				retryAfter := 1
				if rl.limit > 0 {
					retryAfter = int(math.Ceil(1 / float64(rl.limit)))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				catErr := apperrors.NewRateLimitError(retryAfter)
				respondError(w, catErr.StatusCode, catErr.Code, "Rate limit exceeded. Please try again later.", catErr.Details)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
