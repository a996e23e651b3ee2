package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/Kashikuroni/api-yamdb/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Allower 按 key 判定请求是否放行。
type Allower interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// RateLimit 按客户端 IP 限流，超限返回 429 和 retry_after（秒）。
// Redis 不可用时放行（限流是保护措施，不是正确性依赖）。
func RateLimit(limiter Allower, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		allowed, wait, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("ratelimit check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			if metrics.RateLimitRejectedTotal != nil {
				metrics.RateLimitRejectedTotal.Inc()
			}
			retryAfter := int(math.Ceil(wait.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests", "retry_after": retryAfter})
			c.Abort()
			return
		}
		c.Next()
	}
}
