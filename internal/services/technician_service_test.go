package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryTechnicianStore struct {
	rows map[uuid.UUID]models.Technician
}

func (m *memoryTechnicianStore) Create(_ context.Context, t *models.Technician) error {
	for _, row := range m.rows {
		if row.PhoneNumber == t.PhoneNumber {
			return database.ErrDuplicate
		}
	}
	t.ID = uuid.New()
	t.Active = true
	m.rows[t.ID] = *t
	return nil
}

func (m *memoryTechnicianStore) GetByID(_ context.Context, id uuid.UUID) (*models.Technician, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &row, nil
}

func (m *memoryTechnicianStore) List(context.Context) ([]models.Technician, error) {
	out := []models.Technician{}
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *memoryTechnicianStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	row, ok := m.rows[id]
	if !ok {
		return database.ErrNotFound
	}
	row.Active = active
	m.rows[id] = row
	return nil
}

func TestTechnicianService(t *testing.T) {
	store := &memoryTechnicianStore{rows: map[uuid.UUID]models.Technician{}}
	svc := NewTechnicianService(store, quietLogger())
	ctx := context.Background()

	tech, err := svc.Create(ctx, CreateTechnicianRequest{Name: " Ravi ", PhoneNumber: "+91 98765-43210", Skills: []string{"plumbing", " ", "wiring"}})
	require.NoError(t, err)
	assert.Equal(t, "Ravi", tech.Name)
	assert.Equal(t, "9876543210", tech.PhoneNumber)
	assert.Equal(t, models.StringArray{"plumbing", "wiring"}, tech.Skills)
	assert.True(t, tech.Active)

	_, err = svc.Create(ctx, CreateTechnicianRequest{Name: "Other", PhoneNumber: "9876543210"})
	assert.Equal(t, KindConflict, KindOf(err))

	_, err = svc.Create(ctx, CreateTechnicianRequest{Name: "Bad", PhoneNumber: "12345"})
	assert.Equal(t, KindInvalidInput, KindOf(err))

	updated, err := svc.SetActive(ctx, tech.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	_, err = svc.SetActive(ctx, uuid.New(), true)
	assert.Equal(t, KindNotFound, KindOf(err))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
