package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/citytours/backend/internal/config"
	"github.com/citytours/backend/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimiter limits requests per client IP within cfg.RateLimitDuration.
// Redis failures never block traffic.
func RateLimiter(redisClient *redis.Client, cfg *config.Config, log zerolog.Logger) gin.HandlerFunc {
	log = logging.Component(log, "rate-limiter")
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := fmt.Sprintf("rate_limit:%s", c.ClientIP())

		count, err := redisClient.Get(ctx, key).Int()
		switch {
		case errors.Is(err, redis.Nil):
			if err := redisClient.Set(ctx, key, 1, cfg.RateLimitDuration).Err(); err != nil {
				log.Warn().Err(err).Msg("rate limiter failed to set key")
				c.Next()
				return
			}
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RateLimitRequests))
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", cfg.RateLimitRequests-1))
		case err != nil:
			log.Warn().Err(err).Msg("redis not available for rate limiting")
			c.Next()
			return
		case count >= cfg.RateLimitRequests:
			ttl, _ := redisClient.TTL(ctx, key).Result()
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RateLimitRequests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     "Too many requests",
				"retry_after": ttl.Seconds(),
			})
			return
		default:
			newCount, _ := redisClient.Incr(ctx, key).Result()
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RateLimitRequests))
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", cfg.RateLimitRequests-int(newCount)))
		}

		c.Next()
	}
}
