package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/servicehub/marketplace-backend/pkg/events"
	"github.com/servicehub/marketplace-backend/pkg/mailer"
	"github.com/servicehub/marketplace-backend/pkg/otp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BookingStore is the persistence the booking lifecycle needs
type BookingStore interface {
	OTPStore
	CreateMany(ctx context.Context, bookings []*models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetWithOwner(ctx context.Context, id uuid.UUID) (*models.BookingWithUser, error)
	ListAll(ctx context.Context) ([]models.BookingWithUser, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) error
	Cancel(ctx context.Context, id uuid.UUID, from models.BookingStatus, reason string) error
	Assign(ctx context.Context, id uuid.UUID, from models.BookingStatus, technicianID uuid.UUID, at time.Time) error
	Complete(ctx context.Context, id uuid.UUID, from models.BookingStatus, otpHash string) error
}

// ServiceLookup resolves catalog prices
type ServiceLookup interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Service, error)
}

// TechnicianLookup finds technicians
type TechnicianLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Technician, error)
}

// CartClearer empties a user's cart
type CartClearer interface {
	Clear(ctx context.Context, userID uuid.UUID) error
}

// Actor is the authenticated caller
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

// CreateBookingRequest is a direct booking from cart items
type CreateBookingRequest struct {
	Items      []models.PayloadItem  `json:"items"`
	ScheduleAt *time.Time            `json:"scheduleAt"`
	Address    models.PayloadAddress `json:"address"`
	Notes      string                `json:"notes"`
}

// CreateBookingResult lists the created bookings and their combined total
type CreateBookingResult struct {
	Bookings []*models.Booking `json:"bookings"`
	Total    decimal.Decimal   `json:"total"`
}

// BookingService owns the booking state machine
type BookingService struct {
	bookings    BookingStore
	catalog     ServiceLookup
	technicians TechnicianLookup
	carts       CartClearer
	otps        *OTPService
	publisher   events.Publisher
	logger      *logrus.Logger
	now         func() time.Time
}

// NewBookingService creates a new BookingService
func NewBookingService(
	bookings BookingStore,
	catalog ServiceLookup,
	technicians TechnicianLookup,
	carts CartClearer,
	otps *OTPService,
	publisher events.Publisher,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookings:    bookings,
		catalog:     catalog,
		technicians: technicians,
		carts:       carts,
		otps:        otps,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

// resolvedLine is a cart line priced from the catalog
type resolvedLine struct {
	service  *models.Service
	quantity int
}

// resolveLines prices every item from the catalog. Client prices are ignored.
func resolveLines(ctx context.Context, catalog ServiceLookup, items []models.PayloadItem) ([]resolvedLine, error) {
	if len(items) == 0 {
		return nil, InvalidInput("at least one item is required")
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		id, err := item.ServiceID.UUID()
		if err != nil {
			return nil, InvalidServiceID(string(item.ServiceID))
		}
		if item.Quantity < 1 {
			return nil, InvalidInput(fmt.Sprintf("quantity for service %s must be at least 1", id))
		}
		ids = append(ids, id)
	}

	services, err := catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, Internal("failed to load services", err)
	}

	lines := make([]resolvedLine, 0, len(items))
	for i, id := range ids {
		svc, ok := services[id]
		if !ok {
			return nil, InvalidServiceID(id.String())
		}
		lines = append(lines, resolvedLine{service: svc, quantity: items[i].Quantity})
	}
	return lines, nil
}

// CreateFromItems books every item for one schedule and address, then clears the cart
func (s *BookingService) CreateFromItems(ctx context.Context, userID uuid.UUID, req CreateBookingRequest) (*CreateBookingResult, error) {
	address := req.Address.String()
	if req.ScheduleAt == nil || req.ScheduleAt.IsZero() || address == "" {
		return nil, ScheduleOrAddressMissing()
	}

	lines, err := resolveLines(ctx, s.catalog, req.Items)
	if err != nil {
		return nil, err
	}

	result := &CreateBookingResult{Bookings: make([]*models.Booking, 0, len(lines)), Total: decimal.Zero}
	for _, line := range lines {
		b := models.NewBooking(userID, line.service, line.quantity, *req.ScheduleAt, address, req.Notes)
		b.PaymentStatus = models.BookingPaymentPaid
		result.Bookings = append(result.Bookings, b)
		result.Total = result.Total.Add(b.TotalAmount)
	}

	if err := s.bookings.CreateMany(ctx, result.Bookings); err != nil {
		return nil, Internal("failed to create bookings", err)
	}

	// Not atomic with the insert: an item added between the two writes is lost.
	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to clear cart after booking")
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"bookings": len(result.Bookings),
		"total":    result.Total.String(),
	}).Info("Bookings created")
	return result, nil
}

// Get returns a booking visible to the actor
func (s *BookingService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	if !actor.Admin && b.UserID != actor.UserID {
		return nil, Forbidden()
	}
	return b, nil
}

// ListMine returns the actor's bookings
func (s *BookingService) ListMine(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	bookings, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, Internal("failed to list bookings", err)
	}
	return bookings, nil
}

// ListAll returns every booking with its owner, newest first
func (s *BookingService) ListAll(ctx context.Context) ([]models.BookingWithUser, error) {
	bookings, err := s.bookings.ListAll(ctx)
	if err != nil {
		return nil, Internal("failed to list bookings", err)
	}
	return bookings, nil
}

// Assign attaches an active technician and confirms the booking
func (s *BookingService) Assign(ctx context.Context, bookingID, technicianID uuid.UUID) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, "booking")
	}

	tech, err := s.technicians.GetByID(ctx, technicianID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, TechnicianUnavailable()
		}
		return nil, Internal("failed to load technician", err)
	}
	if !tech.Active {
		return nil, TechnicianUnavailable()
	}

	if !b.Status.CanAssign() {
		return nil, InvalidTransition(string(b.Status), string(models.BookingStatusConfirmed))
	}

	at := s.now()
	if err := s.bookings.Assign(ctx, b.ID, b.Status, tech.ID, at); err != nil {
		return nil, s.transitionError(err, b.Status, models.BookingStatusConfirmed)
	}

	b.Status = models.BookingStatusConfirmed
	b.AssignedTo = &tech.ID
	b.AssignedAt = &at
	s.logger.WithFields(logrus.Fields{"booking_id": b.ID, "technician_id": tech.ID}).Info("Technician assigned")
	return b, nil
}

// UpdateStatus moves a booking along the transition table. Setting the
// current status again is a no-op.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID uuid.UUID, raw string) (*models.Booking, error) {
	next, ok := models.ParseBookingStatus(raw)
	if !ok {
		return nil, InvalidStatus(raw)
	}

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	if b.Status == next {
		return b, nil
	}
	if !b.Status.CanTransitionTo(next) {
		return nil, InvalidTransition(string(b.Status), string(next))
	}

	if next == models.BookingStatusCancelled {
		err = s.bookings.Cancel(ctx, b.ID, b.Status, "")
	} else {
		err = s.bookings.TransitionStatus(ctx, b.ID, b.Status, next)
	}
	if err != nil {
		return nil, s.transitionError(err, b.Status, next)
	}

	s.logger.WithFields(logrus.Fields{"booking_id": b.ID, "from": b.Status, "to": next}).Info("Booking status updated")
	b.Status = next
	return b, nil
}

// Cancel cancels a pending or confirmed booking
func (s *BookingService) Cancel(ctx context.Context, actor Actor, bookingID uuid.UUID, reason string) (*models.Booking, error) {
	b, err := s.Get(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanCancel() {
		return nil, InvalidTransition(string(b.Status), string(models.BookingStatusCancelled))
	}

	if err := s.bookings.Cancel(ctx, b.ID, b.Status, reason); err != nil {
		return nil, s.transitionError(err, b.Status, models.BookingStatusCancelled)
	}

	b.Status = models.BookingStatusCancelled
	if reason != "" {
		b.CancelReason = &reason
	}
	b.OTPHash, b.OTPExpiry = nil, nil
	s.logger.WithFields(logrus.Fields{"booking_id": b.ID, "user_id": actor.UserID}).Info("Booking cancelled")
	return b, nil
}

// RequestCompletionOTP issues a completion code and mails it to the booking owner
func (s *BookingService) RequestCompletionOTP(ctx context.Context, bookingID uuid.UUID) error {
	b, err := s.bookings.GetWithOwner(ctx, bookingID)
	if err != nil {
		return storeError(err, "booking")
	}
	if b.Status.IsTerminal() {
		return InvalidTransition(string(b.Status), string(models.BookingStatusCompleted))
	}
	if b.UserEmail == "" {
		return NoContactEmail()
	}

	if err := s.otps.Send(ctx, s.bookings, b.ID, OTPRecipient{Email: b.UserEmail, Name: b.UserName}, mailer.PurposeCompletion); err != nil {
		return err
	}

	s.logger.WithField("booking_id", b.ID).Info("Completion OTP sent")
	return nil
}

// ConfirmCompletion checks the completion code and completes the booking
func (s *BookingService) ConfirmCompletion(ctx context.Context, bookingID uuid.UUID, code string) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, "booking")
	}

	// A used code leaves no hash behind, so replays land here.
	hash, expiry := b.OTPState()
	if hash == "" {
		return nil, otpError(otp.ErrNotRequested)
	}
	if b.Status.IsTerminal() {
		return nil, InvalidTransition(string(b.Status), string(models.BookingStatusCompleted))
	}

	if err := s.otps.Check(ctx, s.bookings, b.ID, hash, expiry, code); err != nil {
		return nil, err
	}

	if err := s.bookings.Complete(ctx, b.ID, b.Status, hash); err != nil {
		if errors.Is(err, database.ErrStale) {
			// The code was consumed or replaced, or the booking moved since it was read.
			return nil, otpError(otp.ErrNotRequested)
		}
		return nil, Internal("failed to complete booking", err)
	}

	b.Status = models.BookingStatusCompleted
	b.OTPHash, b.OTPExpiry = nil, nil

	event := events.New(events.TypeBookingCompleted, b.ID.String(), map[string]interface{}{
		"booking_id":  b.ID,
		"user_id":     b.UserID,
		"service_id":  b.ServiceID,
		"assigned_to": b.AssignedTo,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Failed to publish booking completion")
	}

	s.logger.WithField("booking_id", b.ID).Info("Booking completed")
	return b, nil
}

func (s *BookingService) transitionError(err error, from, to models.BookingStatus) error {
	if errors.Is(err, database.ErrStale) {
		return InvalidTransition(string(from), string(to))
	}
	return storeError(err, "booking")
}
