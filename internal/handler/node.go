package handler

import (
	"context"
	"net/http"

	"github.com/aman-churiwal/loadmon/internal/models"
	"github.com/gin-gonic/gin"
)

type NodeLister interface {
	ListAvailable(ctx context.Context) ([]models.Node, error)
}

type NodeHandler struct {
	nodes NodeLister
}

func NewNodeHandler(nodes NodeLister) *NodeHandler {
	return &NodeHandler{nodes: nodes}
}

// Subset of a node shown to people picking a server to register on
type nodeSummary struct {
	ID          uint   `json:"id"`
	Address     string `json:"ip_address"`
	Purpose     string `json:"purpose"`
	CurrentLoad int    `json:"current_load"`
}

// Handles GET /api/nodes
func (h *NodeHandler) List(c *gin.Context) {
	nodes, err := h.nodes.ListAvailable(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	summaries := make([]nodeSummary, 0, len(nodes))
	for _, n := range nodes {
		summaries = append(summaries, nodeSummary{
			ID:          n.ID,
			Address:     n.Address,
			Purpose:     n.Purpose,
			CurrentLoad: n.CurrentLoad,
		})
	}

	c.JSON(http.StatusOK, gin.H{"nodes": summaries})
}
