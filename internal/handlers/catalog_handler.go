package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// maxImageSize caps uploaded catalog images
const maxImageSize = 5 << 20

// CatalogHandler handles services, categories, popular services and cities
type CatalogHandler struct {
	catalogService *services.CatalogService
	logger         *logrus.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalogService *services.CatalogService, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService, logger: logger}
}

// AddPopularRequest lists a service as popular
type AddPopularRequest struct {
	ServiceID uuid.UUID `json:"serviceId" binding:"required"`
	Position  *int      `json:"position" binding:"omitempty,min=0"`
}

// ReorderPopularRequest is the new popular order
type ReorderPopularRequest struct {
	OrderedIDs []uuid.UUID `json:"orderedIds" binding:"required,min=1"`
}

// AddCityRequest registers a city
type AddCityRequest struct {
	City string `json:"city" binding:"required"`
}

// CityAvailabilityRequest toggles a city
type CityAvailabilityRequest struct {
	City      string `json:"city" binding:"required"`
	Available *bool  `json:"available" binding:"required"`
}

// formImage opens the optional "image" part of a multipart form
func formImage(c *gin.Context) (io.ReadCloser, error) {
	header, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, services.InvalidInput("invalid image upload")
	}
	if header.Size > maxImageSize {
		return nil, services.InvalidInput("image must be 5MB or smaller")
	}
	file, err := header.Open()
	if err != nil {
		return nil, services.Internal("failed to read image", err)
	}
	return file, nil
}

// serviceForm reads service fields from a multipart or urlencoded form. Absent
// fields are nil.
func serviceForm(c *gin.Context) (services.ServiceInput, error) {
	var in services.ServiceInput
	if v, ok := c.GetPostForm("name"); ok {
		in.Name = &v
	}
	if v, ok := c.GetPostForm("description"); ok {
		in.Description = &v
	}
	if v, ok := c.GetPostForm("price"); ok {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return in, services.InvalidInput("price must be a number")
		}
		in.Price = &price
	}
	if v, ok := c.GetPostForm("categoryId"); ok {
		id, err := uuid.Parse(v)
		if err != nil {
			return in, services.InvalidInput("invalid categoryId")
		}
		in.CategoryID = &id
	}
	return in, nil
}

// ListServices handles GET /api/v1/services
func (h *CatalogHandler) ListServices(c *gin.Context) {
	list, err := h.catalogService.ListServices(c.Request.Context(), nil)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": list})
}

// ListServicesByCategory handles GET /api/v1/services/category/:id
func (h *CatalogHandler) ListServicesByCategory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	list, err := h.catalogService.ListServices(c.Request.Context(), &id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": list})
}

// GetService handles GET /api/v1/services/:id
func (h *CatalogHandler) GetService(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, err := h.catalogService.GetService(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": svc})
}

// CreateService handles POST /api/v1/services (admin, multipart)
func (h *CatalogHandler) CreateService(c *gin.Context) {
	in, err := serviceForm(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	image, err := formImage(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if image != nil {
		defer image.Close()
	}

	svc, err := h.catalogService.CreateService(c.Request.Context(), in, readerOrNil(image))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"service": svc})
}

// UpdateService handles PUT /api/v1/services/:id (admin, multipart)
func (h *CatalogHandler) UpdateService(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	in, err := serviceForm(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	image, err := formImage(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if image != nil {
		defer image.Close()
	}

	svc, err := h.catalogService.UpdateService(c.Request.Context(), id, in, readerOrNil(image))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": svc})
}

// DeleteService handles DELETE /api/v1/services/:id (admin)
func (h *CatalogHandler) DeleteService(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.catalogService.DeleteService(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Service deleted"})
}

// ListCategories handles GET /api/v1/categories
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	list, err := h.catalogService.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": list})
}

// GetCategory handles GET /api/v1/categories/:id
func (h *CatalogHandler) GetCategory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	category, err := h.catalogService.GetCategory(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category})
}

// CreateCategory handles POST /api/v1/categories (admin, multipart)
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	image, err := formImage(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if image != nil {
		defer image.Close()
	}

	category, err := h.catalogService.CreateCategory(c.Request.Context(), c.PostForm("name"), readerOrNil(image))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": category})
}

// UpdateCategory handles PUT /api/v1/categories/:id (admin, multipart)
func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	image, err := formImage(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if image != nil {
		defer image.Close()
	}

	var name *string
	if v, ok := c.GetPostForm("name"); ok {
		name = &v
	}
	category, err := h.catalogService.UpdateCategory(c.Request.Context(), id, name, readerOrNil(image))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category})
}

// DeleteCategory handles DELETE /api/v1/categories/:id (admin)
func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.catalogService.DeleteCategory(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Category deleted"})
}

// ListPopular handles GET /api/v1/services/popular
func (h *CatalogHandler) ListPopular(c *gin.Context) {
	list, err := h.catalogService.ListPopular(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"popular": list})
}

// AddPopular handles POST /api/v1/services/popular (admin)
func (h *CatalogHandler) AddPopular(c *gin.Context) {
	var req AddPopularRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if err := h.catalogService.AddPopular(c.Request.Context(), req.ServiceID, req.Position); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, MessageResponse{Message: "Service added to popular list"})
}

// RemovePopular handles DELETE /api/v1/services/popular/:serviceId (admin)
func (h *CatalogHandler) RemovePopular(c *gin.Context) {
	serviceID, ok := uuidParam(c, "serviceId")
	if !ok {
		return
	}
	if err := h.catalogService.RemovePopular(c.Request.Context(), serviceID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Service removed from popular list"})
}

// ReorderPopular handles PATCH /api/v1/services/popular/reorder (admin)
func (h *CatalogHandler) ReorderPopular(c *gin.Context) {
	var req ReorderPopularRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if err := h.catalogService.ReorderPopular(c.Request.Context(), req.OrderedIDs); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Popular list reordered"})
}

// ListCities handles GET /api/v1/cities
func (h *CatalogHandler) ListCities(c *gin.Context) {
	cities, err := h.catalogService.ListCities(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cities": cities})
}

// AddCity handles POST /api/v1/cities (admin). A known city answers 200.
func (h *CatalogHandler) AddCity(c *gin.Context) {
	var req AddCityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	created, err := h.catalogService.AddCity(c.Request.Context(), req.City)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, MessageResponse{Message: "City already exists"})
		return
	}
	c.JSON(http.StatusCreated, MessageResponse{Message: "City added"})
}

// SetCityAvailability handles PUT /api/v1/cities/availability (admin)
func (h *CatalogHandler) SetCityAvailability(c *gin.Context) {
	var req CityAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if err := h.catalogService.SetCityAvailability(c.Request.Context(), req.City, *req.Available); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "City availability updated"})
}

// readerOrNil keeps a nil ReadCloser from becoming a non-nil io.Reader
func readerOrNil(rc io.ReadCloser) io.Reader {
	if rc == nil {
		return nil
	}
	return rc
}
