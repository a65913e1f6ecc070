package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/middleware"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookingService *services.BookingService
	logger         *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService *services.BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookingService: bookingService, logger: logger}
}

// UpdateStatusRequest moves a booking to another status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AssignRequest assigns a technician
type AssignRequest struct {
	TechnicianID uuid.UUID `json:"technicianId" binding:"required"`
}

// CancelRequest carries an optional cancellation reason
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CompletionRequest carries the completion code read out by the customer
type CompletionRequest struct {
	OTP string `json:"otp" binding:"required"`
}

// Create handles POST /api/v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	var req services.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	result, err := h.bookingService.CreateFromItems(c.Request.Context(), middleware.MustGetUserContext(c).UserID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListMine handles GET /api/v1/bookings/mine
func (h *BookingHandler) ListMine(c *gin.Context) {
	bookings, err := h.bookingService.ListMine(c.Request.Context(), middleware.MustGetUserContext(c).UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// ListAll handles GET /api/v1/bookings (admin)
func (h *BookingHandler) ListAll(c *gin.Context) {
	bookings, err := h.bookingService.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// Get handles GET /api/v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookingService.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// Cancel handles PUT /api/v1/bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, err)
			return
		}
	}

	booking, err := h.bookingService.Cancel(c.Request.Context(), actor(c), id, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// UpdateStatus handles PUT /api/v1/bookings/:id/status (admin)
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	booking, err := h.bookingService.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// Assign handles PUT /api/v1/bookings/:id/assign (admin)
func (h *BookingHandler) Assign(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	booking, err := h.bookingService.Assign(c.Request.Context(), id, req.TechnicianID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// RequestCompletionOTP handles POST /api/v1/bookings/:id/completion-otp (admin)
func (h *BookingHandler) RequestCompletionOTP(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.bookingService.RequestCompletionOTP(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Completion code sent to the customer"})
}

// ConfirmCompletion handles POST /api/v1/bookings/:id/completion-otp/verify (admin)
func (h *BookingHandler) ConfirmCompletion(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	booking, err := h.bookingService.ConfirmCompletion(c.Request.Context(), id, req.OTP)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}
