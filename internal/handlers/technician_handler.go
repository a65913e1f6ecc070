package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// TechnicianHandler handles technician roster requests (admin)
type TechnicianHandler struct {
	technicianService *services.TechnicianService
	logger            *logrus.Logger
}

// NewTechnicianHandler creates a new technician handler
func NewTechnicianHandler(technicianService *services.TechnicianService, logger *logrus.Logger) *TechnicianHandler {
	return &TechnicianHandler{technicianService: technicianService, logger: logger}
}

// SetActiveRequest toggles availability
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// Create handles POST /api/v1/technicians
func (h *TechnicianHandler) Create(c *gin.Context) {
	var req services.CreateTechnicianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	tech, err := h.technicianService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"technician": tech})
}

// List handles GET /api/v1/technicians
func (h *TechnicianHandler) List(c *gin.Context) {
	techs, err := h.technicianService.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"technicians": techs})
}

// SetActive handles PUT /api/v1/technicians/:id/active
func (h *TechnicianHandler) SetActive(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	tech, err := h.technicianService.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"technician": tech})
}
