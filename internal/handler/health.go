package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/loadmon/internal/healthcheck"
	"github.com/gin-gonic/gin"
)

type HealthReporter interface {
	OverallHealth() healthcheck.HealthStatus
	GetAllStatus() map[string]*healthcheck.Status
}

type HealthHandler struct {
	reporter HealthReporter
}

func NewHealthHandler(reporter HealthReporter) *HealthHandler {
	return &HealthHandler{reporter: reporter}
}

// Handles GET /health from the watchdog's last snapshot
func (h *HealthHandler) Health(c *gin.Context) {
	overall := h.reporter.OverallHealth()

	statusCode := http.StatusOK
	if overall != healthcheck.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overall.String(),
		"service":   "loadmon",
		"timestamp": time.Now().Unix(),
		"checks":    h.reporter.GetAllStatus(),
	})
}
