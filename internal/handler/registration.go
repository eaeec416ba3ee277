package handler

import (
	"context"
	"net/http"

	"github.com/aman-churiwal/loadmon/internal/models"
	"github.com/aman-churiwal/loadmon/internal/service"
	"github.com/gin-gonic/gin"
)

type Registrar interface {
	Register(ctx context.Context, req service.RegistrationRequest) (*models.Registration, error)
}

type RegistrationHandler struct {
	registrar Registrar
}

func NewRegistrationHandler(registrar Registrar) *RegistrationHandler {
	return &RegistrationHandler{registrar: registrar}
}

// Accepts form posts as well as JSON bodies
type registerRequest struct {
	Nickname string `form:"nickname" json:"nickname" binding:"required"`
	ServerID uint   `form:"server_id" json:"server_id" binding:"required"`
}

// Handles POST /register
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBadRequest(c, "Nickname and server are required")
		return
	}

	reg, err := h.registrar.Register(c.Request.Context(), service.RegistrationRequest{
		Address:  c.ClientIP(),
		Nickname: req.Nickname,
		NodeID:   req.ServerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":          "success",
		"message":         "Registration successful",
		"registration_id": reg.ID,
		"server_id":       reg.NodeID,
	})
}
