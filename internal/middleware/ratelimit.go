package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/response"
)

// RateLimiter is a fixed-window per-key counter kept in Redis so every
// instance behind the load balancer shares the same budget.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
	keyFn  func(ip string) string
	log    zerolog.Logger
}

// NewRateLimiter allows limit requests per window for each key produced by keyFn.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, keyFn func(ip string) string, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		limit:  int64(limit),
		window: window,
		keyFn:  keyFn,
		log:    log.With().Str("component", "rate_limiter").Logger(),
	}
}

// Allow counts one request for ip. Redis failures fail open.
func (rl *RateLimiter) Allow(ctx context.Context, ip string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	key := rl.keyFn(ip)

	pipe := rl.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.log.Warn().Err(err).Msg("Rate limit check failed")
		return true
	}
	return incr.Val() <= rl.limit
}

// Middleware returns a Gin middleware that rejects requests over the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.Request.Context(), c.ClientIP()) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
