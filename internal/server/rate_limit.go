package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fakeacquirer/internal/observability/logger"
	"go.uber.org/zap"
)

// InvoiceCreateRateLimit applies the per-client token bucket to invoice creation.
func (s *Server) InvoiceCreateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		client := c.ClientIP()

		res, err := s.limiter.Allow(ctx, client)
		if err != nil {
			logger.FromContext(ctx).Warn("invoice create rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			logger.FromContext(ctx).Warn("invoice create rate limit exceeded", zap.String("client_ip", client))
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(res.RetryAfter.Seconds())))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(seconds float64) int {
	if seconds < 1 {
		return 1
	}
	return int(math.Ceil(seconds))
}
