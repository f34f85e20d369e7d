package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/MiniChat/internal/metrics"
	"github.com/Gopher0727/MiniChat/utils/ratelimit"
)

// RateLimitMiddleware 按客户端 IP 和接口分类限流。limiter 为 nil（未启用 Redis）时直接放行
func RateLimitMiddleware(limiter *ratelimit.WindowLimiter, class ratelimit.Class, rule ratelimit.Rule, m *metrics.Metrics, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		key := string(class) + ":" + c.ClientIP()
		allowed, err := limiter.Allow(c.Request.Context(), key, rule)
		if err != nil && logger != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		}
		if !allowed {
			if m != nil {
				m.RateLimited.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"answer": false,
				"error":  "too many requests",
			})
			return
		}
		c.Next()
	}
}

// MaxConcurrencyMiddleware 限制同时处理的请求数量，<= 0 表示不限制
func MaxConcurrencyMiddleware(maxConcurrent int) gin.HandlerFunc {
	if maxConcurrent <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	// 带缓冲的 channel 作为信号量
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"answer": false,
				"error":  "too many concurrent requests",
			})
		}
	}
}
