package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/martpos/internal/observability/logger"
	"go.uber.org/zap"
)

const rateLimitReasonClientIP = "client-ip"

// MobileRateLimit throttles the token-bound scanner endpoints per client IP.
// Without a limiter (no redis) every request passes.
func (s *Server) MobileRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.mobileLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.mobileLimiter.AllowIP(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("mobile rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("mobile rate limit exceeded",
				zap.String("reason", rateLimitReasonClientIP),
				zap.String("endpoint", endpoint),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonClientIP)

			retry := max(int(math.Ceil(result.RetryAfter.Seconds())), 1)
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
