package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/servicehub/marketplace-backend/internal/middleware"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/sirupsen/logrus"
)

const webhookSignatureHeader = "X-Razorpay-Signature"

// PaymentHandler handles checkout and reconciliation requests
type PaymentHandler struct {
	paymentService *services.PaymentService
	logger         *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *services.PaymentService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, logger: logger}
}

// VerifyPaymentRequest is the checkout callback. Both the gateway's field
// names and the short aliases are accepted.
type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	OrderID           string `json:"orderId"`
	PaymentID         string `json:"paymentId"`
	Signature         string `json:"signature"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// normalize folds the aliases into a VerifyRequest
func (r VerifyPaymentRequest) normalize() services.VerifyRequest {
	return services.VerifyRequest{
		OrderID:   firstNonEmpty(r.RazorpayOrderID, r.OrderID),
		PaymentID: firstNonEmpty(r.RazorpayPaymentID, r.PaymentID),
		Signature: firstNonEmpty(r.RazorpaySignature, r.Signature),
	}
}

// MockPaymentRequest asks for a synthetic capture
type MockPaymentRequest struct {
	Amount int64 `json:"amount"`
}

// CreateOrder handles POST /api/v1/payments/orders
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req services.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	order, err := h.paymentService.CreateOrder(c.Request.Context(), middleware.MustGetUserContext(c).UserID, req, middleware.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// Verify handles POST /api/v1/payments/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	verify := req.normalize()
	if verify.OrderID == "" || verify.PaymentID == "" || verify.Signature == "" {
		respondError(c, h.logger, services.InvalidInput("order id, payment id and signature are required"))
		return
	}

	settlement, err := h.paymentService.Verify(c.Request.Context(), middleware.MustGetUserContext(c).UserID, verify, middleware.RequestMeta(c))
	if err != nil {
		if services.KindOf(err) == services.KindSignatureMismatch {
			middleware.RecordPaymentProcessed("signature_mismatch")
		}
		respondError(c, h.logger, err)
		return
	}

	middleware.RecordPaymentProcessed(string(settlement.Outcome))
	c.JSON(http.StatusOK, gin.H{
		"message":    "Payment verified",
		"settlement": settlement,
	})
}

// Webhook handles POST /api/v1/payments/webhook. The signature covers the
// raw body, so it is read before any decoding.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, h.logger, services.InvalidInput("unreadable body"))
		return
	}

	result, err := h.paymentService.Webhook(c.Request.Context(), body, c.GetHeader(webhookSignatureHeader), middleware.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if result.Settlement != nil {
		middleware.RecordPaymentProcessed(string(result.Settlement.Outcome))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": result})
}

// MockPayment handles POST /api/v1/payments/mock
func (h *PaymentHandler) MockPayment(c *gin.Context) {
	var req MockPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	result, err := h.paymentService.MockPayment(req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AuditTrail handles GET /api/v1/payments/orders/:orderId/audit (admin)
func (h *PaymentHandler) AuditTrail(c *gin.Context) {
	trail, err := h.paymentService.AuditTrail(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": c.Param("orderId"), "entries": trail})
}
