package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/loadmon/internal/envelope"
	"github.com/aman-churiwal/loadmon/internal/ratelimit"
	"github.com/aman-churiwal/loadmon/internal/service"
	"github.com/gin-gonic/gin"
)

// Writes the JSON error response for err. Unclassified errors are treated as
// internal and their text is never sent to the caller.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		c.Header("Retry-After", retryAfter(limitErr.RetryAfter))
	}

	status, message := classify(err)
	c.JSON(status, gin.H{
		"status":  "error",
		"message": message,
	})
}

func classify(err error) (int, string) {
	var verr *service.ValidationError

	switch {
	case errors.Is(err, envelope.ErrDecryption):
		return http.StatusBadRequest, "Decryption failed"
	case errors.Is(err, ratelimit.ErrSuspiciousActivity):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "daily registration limit exceeded"
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Reason
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// Whole seconds, rounded up and never below one
func retryAfter(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"status":  "error",
		"message": message,
	})
}
