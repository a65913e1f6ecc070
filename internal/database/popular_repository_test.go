package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopularAdd(t *testing.T) {
	ctx := context.Background()
	svcID := uuid.New()

	t.Run("Insert at position shifts the tail", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPopularRepository(db)
		pos := 1

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM popular_services`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectExec(`UPDATE popular_services SET position = position \+ 1 WHERE position >= \$1`).
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`INSERT INTO popular_services`).
			WithArgs(svcID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Add(ctx, svcID, &pos))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Append without position", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPopularRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectExec(`INSERT INTO popular_services`).
			WithArgs(svcID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Add(ctx, svcID, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPopularRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT COUNT`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectExec(`INSERT INTO popular_services`).WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.Add(ctx, svcID, nil), ErrDuplicate)
	})
}

func TestPopularReorder_DropsUnknownIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPopularRepository(db)
	a, b, c, stranger := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT service_id FROM popular_services ORDER BY position FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"service_id"}).
			AddRow(a.String()).AddRow(b.String()).AddRow(c.String()))
	mock.ExpectExec(`UPDATE popular_services SET position = \$2`).WithArgs(c, 0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE popular_services SET position = \$2`).WithArgs(a, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE popular_services SET position = \$2`).WithArgs(b, 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Reorder(context.Background(), []uuid.UUID{c, stranger, a}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopularRemove_NotListed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPopularRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM popular_services WHERE service_id = \$1 RETURNING position`).
		WillReturnRows(sqlmock.NewRows([]string{"position"}))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Remove(context.Background(), uuid.New()), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
