package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/servicehub/marketplace-backend/internal/utils"
	"github.com/servicehub/marketplace-backend/pkg/events"
	"github.com/servicehub/marketplace-backend/pkg/razorpay"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentStore is the persistence payment reconciliation needs
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	MarkFailed(ctx context.Context, orderID, paymentID, signature string) error
	Settle(ctx context.Context, orderID, paymentID, signature string, build database.BookingBuilder) (*database.SettleResult, error)
}

// BookingReader loads a single booking
type BookingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

// PaymentAuditLog records and reads payment audit rows
type PaymentAuditLog interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	ListByOrderID(ctx context.Context, orderID string) ([]models.PaymentAudit, error)
}

// PaymentSettings is the gateway configuration the service needs
type PaymentSettings struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Currency      string
}

// OrderKind names the case of an OrderRequest
type OrderKind string

const (
	OrderForBooking OrderKind = "booking"
	OrderForPayload OrderKind = "payload"
	OrderAdHoc      OrderKind = "amount"
)

// OrderRequest asks for a gateway order. Exactly one field must be set.
type OrderRequest struct {
	BookingID     *uuid.UUID             `json:"bookingId,omitempty"`
	Payload       *models.BookingPayload `json:"bookingPayload,omitempty"`
	AmountInPaise *int64                 `json:"amountInPaise,omitempty"`
}

// Kind reports which case the request carries
func (r OrderRequest) Kind() (OrderKind, error) {
	var kinds []OrderKind
	if r.BookingID != nil {
		kinds = append(kinds, OrderForBooking)
	}
	if r.Payload != nil {
		kinds = append(kinds, OrderForPayload)
	}
	if r.AmountInPaise != nil {
		kinds = append(kinds, OrderAdHoc)
	}
	if len(kinds) != 1 {
		return "", InvalidInput("exactly one of bookingId, bookingPayload or amountInPaise is required")
	}
	return kinds[0], nil
}

// OrderResponse is handed to the checkout client
type OrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

// VerifyRequest carries the checkout callback fields
type VerifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Settlement reports what reconciliation did
type Settlement struct {
	OrderID    string                 `json:"orderId"`
	Status     models.PaymentStatus   `json:"status"`
	Outcome    database.SettleOutcome `json:"outcome"`
	BookingIDs []uuid.UUID            `json:"bookingIds"`
}

// WebhookResult reports how a webhook was handled
type WebhookResult struct {
	Event      string      `json:"event"`
	Handled    bool        `json:"handled"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

// MockPaymentResult is a synthetic capture
type MockPaymentResult struct {
	PaymentID string `json:"paymentId"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// PaymentService creates gateway orders and reconciles their outcome
type PaymentService struct {
	payments  PaymentStore
	bookings  BookingReader
	catalog   ServiceLookup
	gateway   razorpay.Gateway
	audit     PaymentAuditLog
	publisher events.Publisher
	settings  PaymentSettings
	validate  *validator.Validate
	logger    *logrus.Logger
	now       func() time.Time
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	payments PaymentStore,
	bookings BookingReader,
	catalog ServiceLookup,
	gateway razorpay.Gateway,
	audit PaymentAuditLog,
	publisher events.Publisher,
	settings PaymentSettings,
	logger *logrus.Logger,
) *PaymentService {
	if settings.Currency == "" {
		settings.Currency = "INR"
	}
	return &PaymentService{
		payments:  payments,
		bookings:  bookings,
		catalog:   catalog,
		gateway:   gateway,
		audit:     audit,
		publisher: publisher,
		settings:  settings,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// CreateOrder resolves the amount server-side, opens a gateway order and records it
func (s *PaymentService) CreateOrder(ctx context.Context, userID uuid.UUID, req OrderRequest, meta RequestMeta) (*OrderResponse, error) {
	kind, err := req.Kind()
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{Currency: s.settings.Currency, UserID: &userID}

	switch kind {
	case OrderForBooking:
		b, err := s.bookings.GetByID(ctx, *req.BookingID)
		if err != nil {
			return nil, storeError(err, "booking")
		}
		if b.UserID != userID {
			return nil, Forbidden()
		}
		payment.Amount = models.ToMinorUnits(b.TotalAmount)
		payment.BookingID = &b.ID

	case OrderForPayload:
		snapshot, total, err := s.priceSnapshot(ctx, req.Payload)
		if err != nil {
			return nil, err
		}
		if req.Payload.Total != nil && !req.Payload.Total.Equal(total) {
			s.logger.WithFields(logrus.Fields{
				"user_id":      userID,
				"client_total": req.Payload.Total.String(),
				"total":        total.String(),
			}).Warn("Client total disagrees with catalog prices")
		}
		payment.Amount = models.ToMinorUnits(total)
		payment.BookingPayload = snapshot
		payment.ItemRefs = make(models.StringArray, 0, len(snapshot.Items))
		for _, item := range snapshot.Items {
			payment.ItemRefs = append(payment.ItemRefs, string(item.ServiceID))
		}

	case OrderAdHoc:
		payment.Amount = *req.AmountInPaise
	}

	if payment.Amount <= 0 {
		return nil, InvalidAmount()
	}

	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   payment.Amount,
		Currency: payment.Currency,
		Receipt:  "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20],
		Notes:    map[string]string{"user_id": userID.String(), "kind": string(kind)},
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Gateway order creation failed")
		return nil, Upstream(CodeGatewayError, "failed to create payment order", err)
	}

	payment.OrderID = order.ID
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, Internal("failed to record payment", err)
	}

	s.record(ctx, models.NewPaymentAudit(models.PaymentEventOrderCreated, models.PaymentSourceUser).
		SetOrder(order.ID).
		SetAmount(payment.Amount).
		SetUser(&userID).
		SetDetails(map[string]interface{}{"kind": kind}).
		SetMetadata(meta.IP, meta.UserAgent))

	s.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"user_id":  userID,
		"amount":   payment.Amount,
		"kind":     kind,
	}).Info("Payment order created")

	return &OrderResponse{
		OrderID:  order.ID,
		Amount:   payment.Amount,
		Currency: payment.Currency,
		Key:      s.settings.KeyID,
	}, nil
}

// priceSnapshot validates a payload and fills in catalog name and price per item
func (s *PaymentService) priceSnapshot(ctx context.Context, payload *models.BookingPayload) (*models.BookingPayload, decimal.Decimal, error) {
	if payload.ScheduleAt == nil || payload.Address.String() == "" {
		return nil, decimal.Zero, ScheduleOrAddressMissing()
	}
	if err := s.validate.Struct(payload); err != nil {
		return nil, decimal.Zero, InvalidInput(fmt.Sprintf("invalid booking payload: %v", err))
	}

	lines, err := resolveLines(ctx, s.catalog, payload.Items)
	if err != nil {
		return nil, decimal.Zero, err
	}

	snapshot := &models.BookingPayload{
		Items:      make([]models.PayloadItem, 0, len(lines)),
		Address:    models.PayloadAddress{Text: payload.Address.String()},
		ScheduleAt: payload.ScheduleAt,
		Notes:      payload.Notes,
	}
	total := decimal.Zero
	for _, line := range lines {
		price := line.service.Price
		snapshot.Items = append(snapshot.Items, models.PayloadItem{
			ServiceID:   models.ServiceRef(line.service.ID.String()),
			Quantity:    line.quantity,
			ServiceName: line.service.Name,
			UnitPrice:   &price,
		})
		total = total.Add(models.LineTotal(price, line.quantity))
	}
	snapshot.Total = &total
	return snapshot, total, nil
}

// Verify checks the checkout signature and reconciles the order
func (s *PaymentService) Verify(ctx context.Context, userID uuid.UUID, req VerifyRequest, meta RequestMeta) (*Settlement, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, InvalidInput("order id, payment id and signature are required")
	}

	if !razorpay.VerifyPaymentSignature(s.settings.KeySecret, req.OrderID, req.PaymentID, req.Signature) {
		if err := s.payments.MarkFailed(ctx, req.OrderID, req.PaymentID, req.Signature); err != nil && !errors.Is(err, database.ErrNotFound) {
			s.logger.WithError(err).WithField("order_id", req.OrderID).Error("Failed to mark payment failed")
		}
		s.record(ctx, models.NewPaymentAudit(models.PaymentEventSignatureMismatch, models.PaymentSourceUser).
			SetOrder(req.OrderID).
			SetPayment(req.PaymentID, req.Signature).
			SetUser(&userID).
			SetMetadata(meta.IP, meta.UserAgent))
		s.logger.WithFields(logrus.Fields{
			"order_id":   req.OrderID,
			"payment_id": req.PaymentID,
			"user_id":    userID,
		}).Warn("Payment signature mismatch")
		return nil, SignatureMismatch()
	}

	s.record(ctx, models.NewPaymentAudit(models.PaymentEventVerifyRequested, models.PaymentSourceUser).
		SetOrder(req.OrderID).
		SetPayment(req.PaymentID, req.Signature).
		SetUser(&userID).
		SetMetadata(meta.IP, meta.UserAgent))

	return s.reconcile(ctx, req.OrderID, req.PaymentID, req.Signature, models.PaymentSourceUser)
}

// Webhook authenticates and applies a gateway webhook
func (s *PaymentService) Webhook(ctx context.Context, rawBody []byte, signature string, meta RequestMeta) (*WebhookResult, error) {
	s.record(ctx, models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceWebhook).
		SetRawBody(string(rawBody)).
		SetMetadata(meta.IP, meta.UserAgent))

	if s.settings.WebhookSecret != "" && !razorpay.VerifyWebhookSignature(s.settings.WebhookSecret, rawBody, signature) {
		s.record(ctx, models.NewPaymentAudit(models.PaymentEventWebhookRejected, models.PaymentSourceWebhook).
			SetPayment("", signature).
			SetMetadata(meta.IP, meta.UserAgent))
		s.logger.WithField("ip", meta.IP).Warn("Webhook signature rejected")
		return nil, InvalidWebhookSignature()
	}

	// Anything but an unmatched order answers 5xx so the gateway redelivers.
	event, err := razorpay.ParseWebhook(rawBody)
	if err != nil {
		return nil, Internal("failed to parse webhook", err)
	}

	result := &WebhookResult{Event: event.Event}
	if event.Event != "payment.captured" {
		s.logger.WithField("event", event.Event).Debug("Ignoring webhook event")
		return result, nil
	}

	entity := event.Payload.Payment.Entity
	if entity.OrderID == "" {
		return nil, Internal("webhook payment has no order id", errors.New("missing order_id"))
	}

	settlement, err := s.reconcile(ctx, entity.OrderID, entity.ID, "", models.PaymentSourceWebhook)
	if err != nil {
		if KindOf(err) == KindNotFound {
			s.record(ctx, models.NewPaymentAudit(models.PaymentEventWebhookUnmatched, models.PaymentSourceWebhook).
				SetOrder(entity.OrderID).
				SetPayment(entity.ID, "").
				SetAmount(entity.Amount))
			s.logger.WithField("order_id", entity.OrderID).Warn("Webhook for unknown order")
			return result, nil
		}
		return nil, err
	}

	result.Handled = true
	result.Settlement = settlement
	return result, nil
}

// MockPayment returns a synthetic capture without touching any state
func (s *PaymentService) MockPayment(amount int64) (*MockPaymentResult, error) {
	if amount <= 0 {
		return nil, InvalidAmount()
	}
	return &MockPaymentResult{
		PaymentID: fmt.Sprintf("mockpay_%d", s.now().UnixNano()),
		Amount:    amount,
		Status:    "captured",
	}, nil
}

// AuditTrail returns every audit row for a gateway order, oldest first.
// Unmatched webhooks are reconciled by hand from this trail.
func (s *PaymentService) AuditTrail(ctx context.Context, orderID string) ([]models.PaymentAudit, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, InvalidInput("orderId is required")
	}
	if s.audit == nil {
		return []models.PaymentAudit{}, nil
	}
	trail, err := s.audit.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, Internal("failed to load payment audit trail", err)
	}
	if trail == nil {
		trail = []models.PaymentAudit{}
	}
	return trail, nil
}

// reconcile settles the order once, whichever of verify and webhook arrives first
func (s *PaymentService) reconcile(ctx context.Context, orderID, paymentID, signature string, source models.PaymentEventSource) (*Settlement, error) {
	res, err := s.payments.Settle(ctx, orderID, paymentID, signature, s.materialize)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, NotFound("payment")
		}
		var svcErr *Error
		if errors.As(err, &svcErr) {
			return nil, svcErr
		}
		s.record(ctx, models.NewPaymentAudit(models.PaymentEventError, source).
			SetOrder(orderID).
			SetPayment(paymentID, signature).
			SetDetails(map[string]interface{}{"error": err.Error()}))
		return nil, Internal("failed to reconcile payment", err)
	}

	settlement := &Settlement{
		OrderID:    orderID,
		Status:     res.Payment.Status,
		Outcome:    res.Outcome,
		BookingIDs: res.BookingIDs,
	}
	if settlement.BookingIDs == nil {
		settlement.BookingIDs = []uuid.UUID{}
	}

	fields := logrus.Fields{
		"order_id":   orderID,
		"payment_id": paymentID,
		"outcome":    res.Outcome,
		"bookings":   len(res.BookingIDs),
		"source":     source,
	}

	if res.Outcome == database.SettleAlreadyReconciled {
		s.record(ctx, models.NewPaymentAudit(models.PaymentEventAlreadyReconciled, source).
			SetOrder(orderID).
			SetPayment(paymentID, signature))
		s.logger.WithFields(fields).Info("Payment already reconciled")
		return settlement, nil
	}

	eventType := models.PaymentEventSettled
	switch res.Outcome {
	case database.SettleMaterialized:
		eventType = models.PaymentEventBookingsMaterialized
	case database.SettleConfirmed:
		eventType = models.PaymentEventBookingsConfirmed
	}
	s.record(ctx, models.NewPaymentAudit(eventType, source).
		SetOrder(orderID).
		SetPayment(paymentID, signature).
		SetAmount(res.Payment.Amount).
		SetUser(res.Payment.UserID).
		SetDetails(map[string]interface{}{"booking_ids": settlement.BookingIDs}))

	event := events.New(events.TypePaymentSettled, orderID, map[string]interface{}{
		"order_id":    orderID,
		"payment_id":  paymentID,
		"amount":      res.Payment.Amount,
		"currency":    res.Payment.Currency,
		"user_id":     res.Payment.UserID,
		"booking_ids": settlement.BookingIDs,
		"outcome":     res.Outcome,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("Failed to publish payment settlement")
	}

	s.logger.WithFields(fields).Info("Payment settled")
	return settlement, nil
}

// materialize builds one confirmed, paid booking per snapshot item at the
// price recorded when the order was created
func (s *PaymentService) materialize(p *models.Payment) ([]*models.Booking, error) {
	payload := p.BookingPayload
	if p.UserID == nil {
		return nil, Internal("payment has no owner", fmt.Errorf("order %s", p.OrderID))
	}
	if payload.ScheduleAt == nil {
		return nil, ScheduleOrAddressMissing()
	}

	now := s.now()
	bookings := make([]*models.Booking, 0, len(payload.Items))
	for _, item := range payload.Items {
		serviceID, err := item.ServiceID.UUID()
		if err != nil {
			return nil, InvalidServiceID(string(item.ServiceID))
		}
		if item.UnitPrice == nil {
			return nil, Internal("payload snapshot has no price", fmt.Errorf("order %s service %s", p.OrderID, serviceID))
		}

		b := models.NewBooking(*p.UserID, &models.Service{
			ID:    serviceID,
			Name:  item.ServiceName,
			Price: *item.UnitPrice,
		}, item.Quantity, *payload.ScheduleAt, payload.Address.String(), payload.Notes)
		b.Status = models.BookingStatusConfirmed
		b.PaymentStatus = models.BookingPaymentPaid
		b.CreatedAt, b.UpdatedAt = now, now
		bookings = append(bookings, b)
	}
	return bookings, nil
}

// record writes a payment audit row; failures are logged only
func (s *PaymentService) record(ctx context.Context, audit *models.PaymentAudit) {
	if s.audit == nil {
		return
	}
	if audit.UserAgent != nil {
		if audit.Details == nil {
			audit.Details = models.JSONB{}
		}
		audit.Details["device"] = utils.ParseUserAgent(*audit.UserAgent).Map()
	}
	if err := s.audit.Log(ctx, audit); err != nil {
		s.logger.WithError(err).WithField("event_type", audit.EventType).Warn("Failed to write payment audit")
	}
}
