package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/aman-churiwal/loadmon/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SuspicionChecker interface {
	CheckSuspicious(ctx context.Context, address string) error
}

// SuspiciousBlock rejects addresses that are far past their quota before the
// route handler runs. A blocked request is not counted.
func SuspiciousBlock(checker SuspicionChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.ClientIP()

		err := checker.CheckSuspicious(c.Request.Context(), address)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, ratelimit.ErrSuspiciousActivity):
			logger.Warn("Blocked suspicious address",
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.String("client_ip", address),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "too many requests",
			})
		default:
			logger.Error("Suspicious address check failed", zap.String("client_ip", address), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Rate limit check failed",
			})
		}
	}
}
