package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/loadmon/internal/envelope"
	"github.com/aman-churiwal/loadmon/internal/service"
	"github.com/gin-gonic/gin"
)

type Collector interface {
	Submit(ctx context.Context, sealed string) (envelope.Record, error)
	Recent(ctx context.Context, nodeID uint, window time.Duration) ([]service.LoadPoint, error)
}

// Handles telemetry from monitored nodes
type TelemetryHandler struct {
	collector Collector
}

func NewTelemetryHandler(collector Collector) *TelemetryHandler {
	return &TelemetryHandler{collector: collector}
}

type updateLoadRequest struct {
	Data string `json:"data"`
}

// Handles POST /api/update_load
func (h *TelemetryHandler) UpdateLoad(c *gin.Context) {
	var req updateLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Data == "" {
		respondBadRequest(c, "No data provided")
		return
	}

	if _, err := h.collector.Submit(c.Request.Context(), req.Data); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Handles GET /api/nodes/:id/history
func (h *TelemetryHandler) History(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "Invalid server id")
		return
	}

	var window time.Duration
	if windowStr := c.Query("window"); windowStr != "" {
		window, err = time.ParseDuration(windowStr)
		if err != nil || window <= 0 {
			respondBadRequest(c, "Invalid window")
			return
		}
	}

	points, err := h.collector.Recent(c.Request.Context(), uint(id), window)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"server_id": id,
		"points":    points,
	})
}
