package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/servicehub/marketplace-backend/pkg/cache"
	"github.com/servicehub/marketplace-backend/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	cacheKeyServices   = "catalog:services"
	cacheKeyCategories = "catalog:categories"
	cacheKeyPopular    = "catalog:popular"

	folderServices   = "services"
	folderCategories = "categories"
)

// ServiceStore persists catalog services
type ServiceStore interface {
	Create(ctx context.Context, svc *models.Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
	List(ctx context.Context, categoryID *uuid.UUID) ([]models.Service, error)
	Update(ctx context.Context, svc *models.Service, previousCategory uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// CategoryStore persists categories
type CategoryStore interface {
	Create(ctx context.Context, c *models.Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	List(ctx context.Context) ([]models.Category, error)
	Update(ctx context.Context, c *models.Category) error
	Delete(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

// CityStore persists serviceable cities
type CityStore interface {
	Add(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]models.City, error)
	SetAvailability(ctx context.Context, name string, available bool) error
}

// PopularStore persists the curated popular list
type PopularStore interface {
	List(ctx context.Context) ([]models.PopularService, error)
	Add(ctx context.Context, serviceID uuid.UUID, position *int) error
	Remove(ctx context.Context, serviceID uuid.UUID) error
	Reorder(ctx context.Context, orderedIDs []uuid.UUID) error
}

// ServiceInput is the admin-editable part of a service. Nil fields are left
// unchanged on update.
type ServiceInput struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	CategoryID  *uuid.UUID
}

// CatalogService manages services, categories, cities and the popular list
type CatalogService struct {
	services   ServiceStore
	categories CategoryStore
	cities     CityStore
	popular    PopularStore
	images     storage.Store
	cache      cache.Cache
	logger     *logrus.Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(
	services ServiceStore,
	categories CategoryStore,
	cities CityStore,
	popular PopularStore,
	images storage.Store,
	c cache.Cache,
	logger *logrus.Logger,
) *CatalogService {
	if images == nil {
		images = storage.Disabled{}
	}
	if c == nil {
		c = cache.Noop{}
	}
	return &CatalogService{
		services:   services,
		categories: categories,
		cities:     cities,
		popular:    popular,
		images:     images,
		cache:      c,
		logger:     logger,
	}
}

// ListServices returns every service, or those of one category
func (s *CatalogService) ListServices(ctx context.Context, categoryID *uuid.UUID) ([]models.Service, error) {
	if categoryID != nil {
		services, err := s.services.List(ctx, categoryID)
		if err != nil {
			return nil, Internal("failed to list services", err)
		}
		return services, nil
	}
	return cachedList(ctx, s, cacheKeyServices, func(ctx context.Context) ([]models.Service, error) {
		return s.services.List(ctx, nil)
	})
}

// GetService returns a single service
func (s *CatalogService) GetService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	svc, err := s.services.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "service")
	}
	return svc, nil
}

// CreateService adds a service with an optional image
func (s *CatalogService) CreateService(ctx context.Context, in ServiceInput, image io.Reader) (*models.Service, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, InvalidInput("name is required")
	}
	if in.Price == nil || !in.Price.IsPositive() {
		return nil, InvalidInput("price must be greater than zero")
	}
	if in.CategoryID == nil {
		return nil, InvalidInput("category is required")
	}
	if err := s.requireCategory(ctx, *in.CategoryID); err != nil {
		return nil, err
	}

	svc := &models.Service{
		Name:       strings.TrimSpace(*in.Name),
		Price:      in.Price.Round(2),
		CategoryID: *in.CategoryID,
	}
	if in.Description != nil {
		svc.Description = strings.TrimSpace(*in.Description)
	}

	obj, err := s.upload(ctx, image, folderServices)
	if err != nil {
		return nil, err
	}
	if obj != nil {
		svc.ImageURL, svc.ImagePublicID = &obj.URL, &obj.PublicID
	}

	if err := s.services.Create(ctx, svc); err != nil {
		s.discardImage(ctx, svc.ImagePublicID)
		return nil, storeError(err, "service")
	}

	s.invalidate(ctx, cacheKeyServices, cacheKeyCategories)
	s.logger.WithFields(logrus.Fields{"service_id": svc.ID, "name": svc.Name}).Info("Service created")
	return svc, nil
}

// UpdateService applies the non-nil fields of in and optionally replaces the image.
// The previous image is deleted once the new one is stored.
func (s *CatalogService) UpdateService(ctx context.Context, id uuid.UUID, in ServiceInput, image io.Reader) (*models.Service, error) {
	svc, err := s.services.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "service")
	}
	previousCategory := svc.CategoryID
	previousImage := svc.ImagePublicID

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, InvalidInput("name cannot be empty")
		}
		svc.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		svc.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		if !in.Price.IsPositive() {
			return nil, InvalidInput("price must be greater than zero")
		}
		svc.Price = in.Price.Round(2)
	}
	if in.CategoryID != nil && *in.CategoryID != svc.CategoryID {
		if err := s.requireCategory(ctx, *in.CategoryID); err != nil {
			return nil, err
		}
		svc.CategoryID = *in.CategoryID
	}

	obj, err := s.upload(ctx, image, folderServices)
	if err != nil {
		return nil, err
	}
	if obj != nil {
		svc.ImageURL, svc.ImagePublicID = &obj.URL, &obj.PublicID
	}

	if err := s.services.Update(ctx, svc, previousCategory); err != nil {
		if obj != nil {
			s.discardImage(ctx, &obj.PublicID)
		}
		return nil, storeError(err, "service")
	}
	if obj != nil {
		s.discardImage(ctx, previousImage)
	}

	s.invalidate(ctx, cacheKeyServices, cacheKeyCategories, cacheKeyPopular)
	return svc, nil
}

// DeleteService removes a service and its image
func (s *CatalogService) DeleteService(ctx context.Context, id uuid.UUID) error {
	svc, err := s.services.Delete(ctx, id)
	if err != nil {
		return storeError(err, "service")
	}
	s.discardImage(ctx, svc.ImagePublicID)
	s.invalidate(ctx, cacheKeyServices, cacheKeyCategories, cacheKeyPopular)
	s.logger.WithField("service_id", id).Info("Service deleted")
	return nil
}

// ListCategories returns every category with its service count
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return cachedList(ctx, s, cacheKeyCategories, s.categories.List)
}

// GetCategory returns a single category
func (s *CatalogService) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "category")
	}
	return c, nil
}

// CreateCategory adds a category with an optional image
func (s *CatalogService) CreateCategory(ctx context.Context, name string, image io.Reader) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, InvalidInput("name is required")
	}

	c := &models.Category{Name: name}
	obj, err := s.upload(ctx, image, folderCategories)
	if err != nil {
		return nil, err
	}
	if obj != nil {
		c.ImageURL, c.ImagePublicID = &obj.URL, &obj.PublicID
	}

	if err := s.categories.Create(ctx, c); err != nil {
		s.discardImage(ctx, c.ImagePublicID)
		return nil, storeError(err, "category")
	}
	s.invalidate(ctx, cacheKeyCategories)
	return c, nil
}

// UpdateCategory renames a category and optionally replaces its image
func (s *CatalogService) UpdateCategory(ctx context.Context, id uuid.UUID, name *string, image io.Reader) (*models.Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "category")
	}
	previousImage := c.ImagePublicID

	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return nil, InvalidInput("name cannot be empty")
		}
		c.Name = strings.TrimSpace(*name)
	}

	obj, err := s.upload(ctx, image, folderCategories)
	if err != nil {
		return nil, err
	}
	if obj != nil {
		c.ImageURL, c.ImagePublicID = &obj.URL, &obj.PublicID
	}

	if err := s.categories.Update(ctx, c); err != nil {
		if obj != nil {
			s.discardImage(ctx, &obj.PublicID)
		}
		return nil, storeError(err, "category")
	}
	if obj != nil {
		s.discardImage(ctx, previousImage)
	}

	s.invalidate(ctx, cacheKeyCategories)
	return c, nil
}

// DeleteCategory removes a category and its image
func (s *CatalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	c, err := s.categories.Delete(ctx, id)
	if err != nil {
		return storeError(err, "category")
	}
	s.discardImage(ctx, c.ImagePublicID)
	s.invalidate(ctx, cacheKeyCategories, cacheKeyServices, cacheKeyPopular)
	return nil
}

// ListCities returns every known city
func (s *CatalogService) ListCities(ctx context.Context) ([]models.City, error) {
	cities, err := s.cities.List(ctx)
	if err != nil {
		return nil, Internal("failed to list cities", err)
	}
	return cities, nil
}

// AddCity registers a city as unavailable. Adding a known city is a no-op
// and reports created=false.
func (s *CatalogService) AddCity(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, InvalidInput("city is required")
	}
	created, err := s.cities.Add(ctx, name)
	if err != nil {
		return false, Internal("failed to add city", err)
	}
	return created, nil
}

// SetCityAvailability toggles whether a city is served
func (s *CatalogService) SetCityAvailability(ctx context.Context, name string, available bool) error {
	if strings.TrimSpace(name) == "" {
		return InvalidInput("city is required")
	}
	if err := s.cities.SetAvailability(ctx, strings.TrimSpace(name), available); err != nil {
		return storeError(err, "city")
	}
	return nil
}

// ListPopular returns the popular services in display order
func (s *CatalogService) ListPopular(ctx context.Context) ([]models.PopularService, error) {
	return cachedList(ctx, s, cacheKeyPopular, s.popular.List)
}

// AddPopular lists a service at position, or at the end when position is nil
func (s *CatalogService) AddPopular(ctx context.Context, serviceID uuid.UUID, position *int) error {
	if _, err := s.services.GetByID(ctx, serviceID); err != nil {
		return storeError(err, "service")
	}
	if err := s.popular.Add(ctx, serviceID, position); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return InvalidInput("service is already in the popular list")
		}
		return Internal("failed to add popular service", err)
	}
	s.invalidate(ctx, cacheKeyPopular)
	return nil
}

// RemovePopular drops a service from the popular list
func (s *CatalogService) RemovePopular(ctx context.Context, serviceID uuid.UUID) error {
	if err := s.popular.Remove(ctx, serviceID); err != nil {
		return storeError(err, "popular service")
	}
	s.invalidate(ctx, cacheKeyPopular)
	return nil
}

// ReorderPopular rewrites the popular order. Unknown ids are ignored.
func (s *CatalogService) ReorderPopular(ctx context.Context, orderedIDs []uuid.UUID) error {
	if len(orderedIDs) == 0 {
		return InvalidInput("orderedIds is required")
	}
	if err := s.popular.Reorder(ctx, orderedIDs); err != nil {
		return Internal("failed to reorder popular services", err)
	}
	s.invalidate(ctx, cacheKeyPopular)
	return nil
}

func (s *CatalogService) requireCategory(ctx context.Context, id uuid.UUID) error {
	if _, err := s.categories.GetByID(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return InvalidInput("category does not exist")
		}
		return Internal("failed to look up category", err)
	}
	return nil
}

func (s *CatalogService) upload(ctx context.Context, image io.Reader, folder string) (*storage.Object, error) {
	if image == nil {
		return nil, nil
	}
	obj, err := s.images.Upload(ctx, image, folder)
	if err != nil {
		return nil, Upstream(CodeStorageError, "failed to store image", err)
	}
	return obj, nil
}

// discardImage deletes an asset best-effort
func (s *CatalogService) discardImage(ctx context.Context, publicID *string) {
	if publicID == nil || *publicID == "" {
		return
	}
	if err := s.images.Delete(ctx, *publicID); err != nil {
		s.logger.WithError(err).WithField("public_id", *publicID).Warn("Failed to delete image")
	}
}

func (s *CatalogService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.WithError(err).WithField("keys", keys).Warn("Failed to invalidate catalog cache")
	}
}

// cachedList reads key from the cache, falling back to load and repopulating.
// Cache errors only cost a database round trip.
func cachedList[T any](ctx context.Context, s *CatalogService, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	var items []T
	err := s.cache.Get(ctx, key, &items)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.WithError(err).WithField("key", key).Warn("Catalog cache read failed")
	}

	items, err = load(ctx)
	if err != nil {
		return nil, Internal("failed to load "+strings.TrimPrefix(key, "catalog:"), err)
	}
	if err := s.cache.Set(ctx, key, items); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Catalog cache write failed")
	}
	return items, nil
}
