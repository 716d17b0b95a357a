package middleware

import (
	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies one token bucket to the whole API. A nil
// limiter disables limiting.
func RateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			_ = c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

// NewLimiter returns nil when qps <= 0.
func NewLimiter(qps float64, burst int) *rate.Limiter {
	if qps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(qps) + 1
	}
	return rate.NewLimiter(rate.Limit(qps), burst)
}
