package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/orderbridge/pkg/logger"
	"github.com/wyfcoding/orderbridge/pkg/ratelimit"
)

// RateLimitMiddleware 按客户端 IP 限流，限流器出错时放行
func RateLimitMiddleware(limiter ratelimit.RateLimiter, prefix string, limit ratelimit.Limit) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", prefix, c.ClientIP())

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			retry := int64(math.Ceil(res.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.FormatInt(max(retry, 1), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":        http.StatusTooManyRequests,
				"message":     "too many requests",
				"retry_after": res.RetryAfter.Round(time.Millisecond).String(),
			})
			return
		}

		c.Next()
	}
}
