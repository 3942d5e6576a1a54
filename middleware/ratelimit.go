package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"legal-doc-intelligence/internal/config"
	"legal-doc-intelligence/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware implements rate limiting using Redis
// It limits requests per IP + endpoint combination
func RateLimitMiddleware(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip rate limiting for health checks
		if c.FullPath() == "/health" || c.FullPath() == "/ready" {
			c.Next()
			return
		}

		// Use IP + endpoint for granular rate limiting
		key := "ratelimit:" + c.ClientIP() + ":" + c.FullPath()
		
		ctx := context.Background()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// Fail open - don't block requests if Redis is down
			// Log error but continue
			if cfg.GinMode == "debug" {
				c.Set("ratelimit_error", err.Error())
			}
			c.Next()
			return
		}
		
		// Set expiration on first request
		if count == 1 {
			rdb.Expire(ctx, key, time.Duration(cfg.RateLimitWindow)*time.Second)
		}
		
		// Check limit
		if count > int64(cfg.RateLimitReqs) {
			c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RateLimitReqs))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(
				time.Now().Add(time.Duration(cfg.RateLimitWindow)*time.Second).Unix(), 10))
			
			utils.RespondWithError(c, http.StatusTooManyRequests,
				"rate_limit_exceeded",
				"Too many requests. Please try again later.",
				gin.H{
					"retry_after": cfg.RateLimitWindow,
					"limit":       cfg.RateLimitReqs,
				})
			c.Abort()
			return
		}
		
		// Set rate limit headers
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RateLimitReqs))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(cfg.RateLimitReqs - int(count)))
		c.Next()
	}
}

// MatterRateLimit applies a separate, looser budget to requests already
// scoped to a matter (heavier document/job endpoints), keyed by matter
// rather than by path alone so one matter's burst can't starve another's.
func MatterRateLimit(rdb *redis.Client, cfg *config.Config, multiplier int) gin.HandlerFunc {
	return func(c *gin.Context) {
		matterID := GetMatterID(c)
		if matterID == "" {
			c.Next()
			return
		}

		limit := cfg.RateLimitReqs * multiplier
		window := cfg.RateLimitWindow
		key := "ratelimit:matter:" + matterID + ":" + c.FullPath()

		ctx := context.Background()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, time.Duration(window)*time.Second)
		}

		if count > int64(limit) {
			utils.RespondWithError(c, http.StatusTooManyRequests,
				"rate_limit_exceeded",
				"Too many requests for this matter. Please try again later.",
				gin.H{"retry_after": window, "limit": limit})
			c.Abort()
			return
		}
		c.Next()
	}
}

func GetMatterID(c *gin.Context) string {
	if matterID, exists := c.Get("matter_id"); exists {
		if id, ok := matterID.(string); ok {
			return id
		}
	}
	return ""
}

