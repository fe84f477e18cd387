package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"sak/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RateLimiter applies a fixed-window rate limit backed by Redis.
type RateLimiter struct {
	cache  *redis.Client
	limit  int
	window time.Duration
	logger logger.Logger
}

// NewRateLimiter constructs a RateLimiter with the given limit and window.
func NewRateLimiter(cache *redis.Client, limit int, window time.Duration, log logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewNop()
	}
	return &RateLimiter{
		cache:  cache,
		limit:  limit,
		window: window,
		logger: log,
	}
}

// Limit enforces the rate limit, keyed by client IP and, when available, anchor ID.
// Redis failures let the request through.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cache == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}

		key := fmt.Sprintf("sak:ratelimit:%s", ip)
		if anchorID, ok := AnchorIDFromContext(r.Context()); ok {
			key = fmt.Sprintf("sak:ratelimit:%s:%s", ip, anchorID.String())
		}

		pipe := rl.cache.TxPipeline()
		incr := pipe.Incr(r.Context(), key)
		pipe.ExpireNX(r.Context(), key, rl.window)
		if _, err := pipe.Exec(r.Context()); err != nil {
			rl.logger.Warn("Rate limiter unavailable", map[string]interface{}{
				"error": err.Error(),
			})
			next.ServeHTTP(w, r)
			return
		}
		count := incr.Val()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		if count > int64(rl.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.limit-int(count)))

		next.ServeHTTP(w, r)
	})
}
