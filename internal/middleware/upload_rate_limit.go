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

// UploadRateLimit caps upload requests per user per day. It must run after Auth.
// The counter resets at midnight; Redis failures never block an upload.
func UploadRateLimit(redisClient *redis.Client, cfg *config.Config, log zerolog.Logger) gin.HandlerFunc {
	log = logging.Component(log, "upload-rate-limit")
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost || cfg.MediaUploadsPerDay <= 0 {
			c.Next()
			return
		}
		userID := c.GetString(UserIDKey)
		if userID == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		now := time.Now()
		key := fmt.Sprintf("upload_limit:%s:%s", userID, now.Format("2006-01-02"))

		count, err := redisClient.Get(ctx, key).Int()
		switch {
		case errors.Is(err, redis.Nil):
			midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
			if err := redisClient.Set(ctx, key, 1, midnight.Sub(now)).Err(); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Msg("upload limiter failed to set key")
			}
		case err != nil:
			log.Warn().Err(err).Str("user_id", userID).Msg("redis not available for upload limiting")
		case count >= cfg.MediaUploadsPerDay:
			ttl, _ := redisClient.TTL(ctx, key).Result()
			log.Info().Str("user_id", userID).Int("uploads_today", count).Msg("daily upload limit reached")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "upload_rate_limit_exceeded",
				"message":             "Too many uploads today. Please try again tomorrow.",
				"retry_after_hours":   int(ttl.Hours()),
				"uploads_today":       count,
				"max_uploads_per_day": cfg.MediaUploadsPerDay,
			})
			return
		default:
			redisClient.Incr(ctx, key)
		}

		c.Next()
	}
}
