package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentRowColumns = []string{
	"id", "order_id", "payment_id", "signature", "amount", "currency", "status", "booking_id",
	"booking_ids", "item_refs", "booking_payload", "user_id", "created_at", "updated_at",
}

const snapshotJSON = `{"items":[{"serviceId":"7a4c1f0e-8b7e-4b8a-9a53-2f0d6f1c9e11","quantity":2,"serviceName":"Deep Cleaning","unitPrice":250}],"address":{"text":"12 MG Road"},"scheduleAt":"2026-11-02T10:00:00Z"}`

func paymentRow(id, userID uuid.UUID, status string, bookingIDs string, payload interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentRowColumns).AddRow(
		id.String(), "order_1", nil, nil, int64(50000), "INR", status, nil,
		bookingIDs, "{}", payload, userID.String(), now, now,
	)
}

func snapshotBuilder(p *models.Payment) ([]*models.Booking, error) {
	bookings := make([]*models.Booking, 0, len(p.BookingPayload.Items))
	for _, item := range p.BookingPayload.Items {
		svcID, err := item.ServiceID.UUID()
		if err != nil {
			return nil, err
		}
		svc := &models.Service{ID: svcID, Name: item.ServiceName, Price: *item.UnitPrice}
		b := models.NewBooking(*p.UserID, svc, item.Quantity, *p.BookingPayload.ScheduleAt,
			p.BookingPayload.Address.String(), p.BookingPayload.Notes)
		b.Status = models.BookingStatusConfirmed
		b.PaymentStatus = models.BookingPaymentPaid
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func TestSettle_MaterializesFromSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	paymentID, userID := uuid.New(), uuid.New()

	var built []*models.Booking
	builder := func(p *models.Payment) ([]*models.Booking, error) {
		bookings, err := snapshotBuilder(p)
		built = bookings
		return bookings, err
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM payments WHERE order_id = \$1 FOR UPDATE`).
		WithArgs("order_1").
		WillReturnRows(paymentRow(paymentID, userID, "created", "{}", []byte(snapshotJSON)))
	mock.ExpectExec(`UPDATE payments\s+SET status = \$2`).
		WithArgs(paymentID, models.PaymentStatusPaid, "pay_1", "sig_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payments SET booking_ids = \$2 WHERE id = \$1 AND cardinality\(booking_ids\) = 0`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Settle(context.Background(), "order_1", "pay_1", "sig_1", builder)
	require.NoError(t, err)
	assert.Equal(t, SettleMaterialized, result.Outcome)
	require.Len(t, built, 1)
	assert.Equal(t, []uuid.UUID{built[0].ID}, result.BookingIDs)

	b := built[0]
	assert.Equal(t, userID, b.UserID)
	assert.Equal(t, "Deep Cleaning", b.ServiceName)
	assert.True(t, b.TotalAmount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, models.BookingStatusConfirmed, b.Status)
	assert.Equal(t, models.BookingPaymentPaid, b.PaymentStatus)
	assert.Equal(t, models.PaymentStatusPaid, result.Payment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettle_LostCompareAndSetIsAlreadyReconciled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	paymentID, userID, existing := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(paymentRow(paymentID, userID, "created", "{}", []byte(snapshotJSON)))
	mock.ExpectExec(`UPDATE payments\s+SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payments SET booking_ids`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery(`FROM payments WHERE order_id = \$1`).
		WithArgs("order_1").
		WillReturnRows(paymentRow(paymentID, userID, "paid", "{"+existing.String()+"}", []byte(snapshotJSON)))

	result, err := repo.Settle(context.Background(), "order_1", "pay_1", "sig_1", snapshotBuilder)
	require.NoError(t, err)
	assert.Equal(t, SettleAlreadyReconciled, result.Outcome)
	assert.Equal(t, []uuid.UUID{existing}, result.BookingIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettle_SecondCallDoesNotMaterializeAgain(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	paymentID, userID, existing := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(paymentRow(paymentID, userID, "paid", "{"+existing.String()+"}", []byte(snapshotJSON)))
	mock.ExpectExec(`UPDATE payments\s+SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bookings\s+SET payment_status = 'paid'`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	builder := func(p *models.Payment) ([]*models.Booking, error) {
		t.Fatal("builder must not run once bookings exist")
		return nil, nil
	}

	result, err := repo.Settle(context.Background(), "order_1", "pay_1", "sig_1", builder)
	require.NoError(t, err)
	assert.Equal(t, SettleAlreadyReconciled, result.Outcome)
	assert.Equal(t, []uuid.UUID{existing}, result.BookingIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettle_ConfirmsReferencedBooking(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)
	paymentID, userID, bookingID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(paymentRowColumns).AddRow(
			paymentID.String(), "order_1", nil, nil, int64(50000), "INR", "created", bookingID.String(),
			"{}", "{}", nil, userID.String(), now, now,
		))
	mock.ExpectExec(`UPDATE payments\s+SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bookings\s+SET payment_status = 'paid'`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Settle(context.Background(), "order_1", "pay_1", "sig_1", snapshotBuilder)
	require.NoError(t, err)
	assert.Equal(t, SettleConfirmed, result.Outcome)
	assert.Equal(t, []uuid.UUID{bookingID}, result.BookingIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettle_UnknownOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(paymentRowColumns))
	mock.ExpectRollback()

	_, err := repo.Settle(context.Background(), "order_x", "pay_1", "sig_1", snapshotBuilder)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed(t *testing.T) {
	t.Run("Records attempt", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectExec(`UPDATE payments\s+SET status = \$2`).
			WithArgs("order_1", models.PaymentStatusFailed, "pay_1", "bad", models.PaymentStatusPaid).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.MarkFailed(context.Background(), "order_1", "pay_1", "bad"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown order", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentRepository(db)

		mock.ExpectExec(`UPDATE payments`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM payments WHERE order_id`).WillReturnRows(sqlmock.NewRows(paymentRowColumns))

		assert.ErrorIs(t, repo.MarkFailed(context.Background(), "order_x", "pay_1", "bad"), ErrNotFound)
	})
}
