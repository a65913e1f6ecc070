package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCartRepository(db)

	userID, serviceID, categoryID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"service_id", "quantity", "added_at",
		"id", "name", "description", "price", "category_id", "image_url", "image_public_id",
		"created_at", "updated_at",
	}).AddRow(serviceID.String(), 2, now, serviceID.String(), "Deep Cleaning", "", "1299.00", categoryID.String(), nil, nil, now, now)
	mock.ExpectQuery(`FROM cart_items ci`).WithArgs(userID).WillReturnRows(rows)

	cart, err := repo.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, "Deep Cleaning", cart.Items[0].Service.Name)
	assert.Equal(t, "1299", cart.Items[0].Service.Price.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartGet_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCartRepository(db)

	mock.ExpectQuery(`FROM cart_items ci`).WillReturnRows(sqlmock.NewRows([]string{"service_id"}))

	cart, err := repo.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, cart.Items)
	assert.Empty(t, cart.Items)
}

func TestCartAddItem_Upserts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCartRepository(db)

	mock.ExpectExec(`ON CONFLICT \(user_id, service_id\) DO UPDATE SET quantity = cart_items.quantity \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddItem(context.Background(), uuid.New(), uuid.New()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRemoveItem(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCartRepository(db)

	userID, serviceID := uuid.New(), uuid.New()

	// single-unit lines are deleted before the decrement
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM cart_items WHERE user_id = \$1 AND service_id = \$2 AND quantity <= 1`).
		WithArgs(userID, serviceID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE cart_items SET quantity = quantity - 1`).
		WithArgs(userID, serviceID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.RemoveItem(context.Background(), userID, serviceID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartClear(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCartRepository(db)

	userID := uuid.New()
	mock.ExpectExec(`DELETE FROM cart_items WHERE user_id = \$1`).WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.Clear(context.Background(), userID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
