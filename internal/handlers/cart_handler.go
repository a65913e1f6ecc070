package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/middleware"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// CartHandler handles cart HTTP requests
type CartHandler struct {
	cartService *services.CartService
	logger      *logrus.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *services.CartService, logger *logrus.Logger) *CartHandler {
	return &CartHandler{cartService: cartService, logger: logger}
}

// AddToCartRequest adds one unit of a service
type AddToCartRequest struct {
	ServiceID uuid.UUID `json:"serviceId" binding:"required"`
}

// Get handles GET /api/v1/cart
func (h *CartHandler) Get(c *gin.Context) {
	cart, err := h.cartService.Get(c.Request.Context(), middleware.MustGetUserContext(c).UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// Add handles POST /api/v1/cart/add
func (h *CartHandler) Add(c *gin.Context) {
	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	cart, err := h.cartService.Add(c.Request.Context(), middleware.MustGetUserContext(c).UserID, req.ServiceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// Remove handles DELETE /api/v1/cart/remove/:serviceId
func (h *CartHandler) Remove(c *gin.Context) {
	serviceID, ok := uuidParam(c, "serviceId")
	if !ok {
		return
	}

	cart, err := h.cartService.Remove(c.Request.Context(), middleware.MustGetUserContext(c).UserID, serviceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// Clear handles POST /api/v1/cart/clear
func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.cartService.Clear(c.Request.Context(), middleware.MustGetUserContext(c).UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Cart cleared"})
}
