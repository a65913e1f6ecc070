package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/servicehub/marketplace-backend/pkg/cache"
	"github.com/servicehub/marketplace-backend/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryServiceStore struct {
	rows  map[uuid.UUID]models.Service
	lists int
}

func (m *memoryServiceStore) Create(_ context.Context, svc *models.Service) error {
	for _, row := range m.rows {
		if row.Name == svc.Name {
			return database.ErrDuplicate
		}
	}
	svc.ID = uuid.New()
	m.rows[svc.ID] = *svc
	return nil
}

func (m *memoryServiceStore) GetByID(_ context.Context, id uuid.UUID) (*models.Service, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &row, nil
}

func (m *memoryServiceStore) List(_ context.Context, categoryID *uuid.UUID) ([]models.Service, error) {
	m.lists++
	out := []models.Service{}
	for _, row := range m.rows {
		if categoryID == nil || row.CategoryID == *categoryID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryServiceStore) Update(_ context.Context, svc *models.Service, _ uuid.UUID) error {
	if _, ok := m.rows[svc.ID]; !ok {
		return database.ErrNotFound
	}
	m.rows[svc.ID] = *svc
	return nil
}

func (m *memoryServiceStore) Delete(_ context.Context, id uuid.UUID) (*models.Service, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	delete(m.rows, id)
	return &row, nil
}

type memoryCategoryStore struct {
	rows map[uuid.UUID]models.Category
}

func (m *memoryCategoryStore) Create(_ context.Context, c *models.Category) error {
	c.ID = uuid.New()
	m.rows[c.ID] = *c
	return nil
}

func (m *memoryCategoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Category, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &row, nil
}

func (m *memoryCategoryStore) List(context.Context) ([]models.Category, error) {
	out := []models.Category{}
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *memoryCategoryStore) Update(_ context.Context, c *models.Category) error {
	m.rows[c.ID] = *c
	return nil
}

func (m *memoryCategoryStore) Delete(_ context.Context, id uuid.UUID) (*models.Category, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	delete(m.rows, id)
	return &row, nil
}

type memoryCityStore struct {
	rows map[string]bool
}

func (m *memoryCityStore) Add(_ context.Context, name string) (bool, error) {
	if _, ok := m.rows[name]; ok {
		return false, nil
	}
	m.rows[name] = false
	return true, nil
}

func (m *memoryCityStore) List(context.Context) ([]models.City, error) {
	out := []models.City{}
	for name, available := range m.rows {
		out = append(out, models.City{Name: name, IsAvailable: available})
	}
	return out, nil
}

func (m *memoryCityStore) SetAvailability(_ context.Context, name string, available bool) error {
	if _, ok := m.rows[name]; !ok {
		return database.ErrNotFound
	}
	m.rows[name] = available
	return nil
}

type memoryPopularStore struct {
	ids   []uuid.UUID
	lists int
}

func (m *memoryPopularStore) List(context.Context) ([]models.PopularService, error) {
	m.lists++
	out := make([]models.PopularService, 0, len(m.ids))
	for i, id := range m.ids {
		out = append(out, models.PopularService{ServiceID: id, Position: i})
	}
	return out, nil
}

func (m *memoryPopularStore) Add(_ context.Context, serviceID uuid.UUID, position *int) error {
	for _, id := range m.ids {
		if id == serviceID {
			return database.ErrDuplicate
		}
	}
	pos := len(m.ids)
	if position != nil && *position >= 0 && *position < pos {
		pos = *position
	}
	m.ids = append(m.ids[:pos], append([]uuid.UUID{serviceID}, m.ids[pos:]...)...)
	return nil
}

func (m *memoryPopularStore) Remove(_ context.Context, serviceID uuid.UUID) error {
	for i, id := range m.ids {
		if id == serviceID {
			m.ids = append(m.ids[:i], m.ids[i+1:]...)
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *memoryPopularStore) Reorder(_ context.Context, orderedIDs []uuid.UUID) error {
	listed := map[uuid.UUID]bool{}
	for _, id := range m.ids {
		listed[id] = true
	}
	next := []uuid.UUID{}
	for _, id := range orderedIDs {
		if listed[id] {
			next = append(next, id)
			delete(listed, id)
		}
	}
	for _, id := range m.ids {
		if listed[id] {
			next = append(next, id)
		}
	}
	m.ids = next
	return nil
}

// memoryCache round-trips values through JSON like the redis cache
type memoryCache struct {
	values map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

type fakeImageStore struct {
	uploads   int
	deleted   []string
	uploadErr error
}

func (f *fakeImageStore) Upload(_ context.Context, r io.Reader, folder string) (*storage.Object, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	f.uploads++
	id := folder + "/img-" + strings.Repeat("x", f.uploads)
	return &storage.Object{URL: "https://cdn.example.com/" + id, PublicID: id}, nil
}

func (f *fakeImageStore) Delete(_ context.Context, publicID string) error {
	f.deleted = append(f.deleted, publicID)
	return nil
}

type catalogFixture struct {
	svc        *CatalogService
	services   *memoryServiceStore
	categories *memoryCategoryStore
	cities     *memoryCityStore
	popular    *memoryPopularStore
	images     *fakeImageStore
	cache      *memoryCache
	category   uuid.UUID
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	f := &catalogFixture{
		services:   &memoryServiceStore{rows: map[uuid.UUID]models.Service{}},
		categories: &memoryCategoryStore{rows: map[uuid.UUID]models.Category{}},
		cities:     &memoryCityStore{rows: map[string]bool{}},
		popular:    &memoryPopularStore{},
		images:     &fakeImageStore{},
		cache:      &memoryCache{values: map[string][]byte{}},
	}
	f.svc = NewCatalogService(f.services, f.categories, f.cities, f.popular, f.images, f.cache, quietLogger())

	cat, err := f.svc.CreateCategory(context.Background(), "Cleaning", nil)
	require.NoError(t, err)
	f.category = cat.ID
	return f
}

func (f *catalogFixture) input(name, price string) ServiceInput {
	p := decimal.RequireFromString(price)
	return ServiceInput{Name: &name, Price: &p, CategoryID: &f.category}
}

func TestCreateService(t *testing.T) {
	f := newCatalogFixture(t)

	svc, err := f.svc.CreateService(context.Background(), f.input(" Deep Clean ", "499.999"), strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "Deep Clean", svc.Name)
	assert.Equal(t, "500", svc.Price.String())
	require.NotNil(t, svc.ImageURL)
	assert.Equal(t, 1, f.images.uploads)

	_, err = f.svc.CreateService(context.Background(), f.input("Deep Clean", "10"), strings.NewReader("png"))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, []string{"services/img-xx"}, f.images.deleted, "orphaned upload is removed")
}

func TestCreateService_Validation(t *testing.T) {
	f := newCatalogFixture(t)

	_, err := f.svc.CreateService(context.Background(), f.input("Free", "0"), nil)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	in := f.input("Orphan", "10")
	missing := uuid.New()
	in.CategoryID = &missing
	_, err = f.svc.CreateService(context.Background(), in, nil)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	f.images.uploadErr = errors.New("cloudinary down")
	_, err = f.svc.CreateService(context.Background(), f.input("Painting", "10"), strings.NewReader("png"))
	assert.Equal(t, CodeStorageError, AsError(err).Code)
	assert.Equal(t, 502, AsError(err).HTTPStatus())
	assert.Empty(t, f.services.rows)
}

func TestUpdateService_ReplacesImage(t *testing.T) {
	f := newCatalogFixture(t)
	svc, err := f.svc.CreateService(context.Background(), f.input("Repair", "100"), strings.NewReader("a"))
	require.NoError(t, err)
	oldImage := *svc.ImagePublicID

	price := decimal.NewFromInt(150)
	updated, err := f.svc.UpdateService(context.Background(), svc.ID, ServiceInput{Price: &price}, strings.NewReader("b"))
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(price))
	assert.Equal(t, "Repair", updated.Name)
	assert.NotEqual(t, oldImage, *updated.ImagePublicID)
	assert.Equal(t, []string{oldImage}, f.images.deleted)

	_, err = f.svc.UpdateService(context.Background(), uuid.New(), ServiceInput{}, nil)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDeleteService_RemovesImage(t *testing.T) {
	f := newCatalogFixture(t)
	svc, err := f.svc.CreateService(context.Background(), f.input("Repair", "100"), strings.NewReader("a"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteService(context.Background(), svc.ID))
	assert.Equal(t, []string{*svc.ImagePublicID}, f.images.deleted)
	assert.Equal(t, KindNotFound, KindOf(f.svc.DeleteService(context.Background(), svc.ID)))
}

func TestListServices_CachedUntilWrite(t *testing.T) {
	f := newCatalogFixture(t)
	_, err := f.svc.CreateService(context.Background(), f.input("A", "1"), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		list, err := f.svc.ListServices(context.Background(), nil)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	}
	assert.Equal(t, 1, f.services.lists)

	_, err = f.svc.CreateService(context.Background(), f.input("B", "1"), nil)
	require.NoError(t, err)
	list, err := f.svc.ListServices(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, f.services.lists)
}

func TestPopular(t *testing.T) {
	f := newCatalogFixture(t)
	a, err := f.svc.CreateService(context.Background(), f.input("A", "1"), nil)
	require.NoError(t, err)
	b, err := f.svc.CreateService(context.Background(), f.input("B", "1"), nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.AddPopular(context.Background(), a.ID, nil))
	front := 0
	require.NoError(t, f.svc.AddPopular(context.Background(), b.ID, &front))

	err = f.svc.AddPopular(context.Background(), a.ID, nil)
	assert.Equal(t, KindInvalidInput, KindOf(err), "duplicate entry")
	assert.Equal(t, KindNotFound, KindOf(f.svc.AddPopular(context.Background(), uuid.New(), nil)))

	list, err := f.svc.ListPopular(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ServiceID)

	_, err = f.svc.ListPopular(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.popular.lists)

	require.NoError(t, f.svc.ReorderPopular(context.Background(), []uuid.UUID{uuid.New(), a.ID}))
	list, err = f.svc.ListPopular(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID}, []uuid.UUID{list[0].ServiceID, list[1].ServiceID})

	require.NoError(t, f.svc.RemovePopular(context.Background(), a.ID))
	assert.Equal(t, KindNotFound, KindOf(f.svc.RemovePopular(context.Background(), a.ID)))
}

func TestCities(t *testing.T) {
	f := newCatalogFixture(t)

	created, err := f.svc.AddCity(context.Background(), " Pune ")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.AddCity(context.Background(), "Pune")
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, f.svc.SetCityAvailability(context.Background(), "Pune", true))
	assert.True(t, f.cities.rows["Pune"])
	assert.Equal(t, KindNotFound, KindOf(f.svc.SetCityAvailability(context.Background(), "Goa", true)))
}
