package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/servicehub/marketplace-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

// TechnicianStore persists technicians
type TechnicianStore interface {
	TechnicianLookup
	Create(ctx context.Context, t *models.Technician) error
	List(ctx context.Context) ([]models.Technician, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// CreateTechnicianRequest is a new technician
type CreateTechnicianRequest struct {
	Name        string   `json:"name" binding:"required"`
	PhoneNumber string   `json:"phoneNumber" binding:"required"`
	Skills      []string `json:"skills"`
}

// TechnicianService manages the technician roster
type TechnicianService struct {
	technicians TechnicianStore
	phones      *validator.PhoneValidator
	logger      *logrus.Logger
}

// NewTechnicianService creates a new TechnicianService
func NewTechnicianService(technicians TechnicianStore, logger *logrus.Logger) *TechnicianService {
	return &TechnicianService{
		technicians: technicians,
		phones:      validator.NewPhoneValidator(),
		logger:      logger,
	}
}

// Create registers an active technician. Phone numbers are unique.
func (s *TechnicianService) Create(ctx context.Context, req CreateTechnicianRequest) (*models.Technician, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, InvalidInput("name is required")
	}
	phone, err := s.phones.Validate(req.PhoneNumber)
	if err != nil {
		return nil, InvalidInput(err.Error())
	}

	skills := make(models.StringArray, 0, len(req.Skills))
	for _, skill := range req.Skills {
		if skill = strings.TrimSpace(skill); skill != "" {
			skills = append(skills, skill)
		}
	}

	t := &models.Technician{Name: name, PhoneNumber: phone, Skills: skills}
	if err := s.technicians.Create(ctx, t); err != nil {
		return nil, storeError(err, "technician")
	}
	s.logger.WithField("technician_id", t.ID).Info("Technician created")
	return t, nil
}

// List returns the roster
func (s *TechnicianService) List(ctx context.Context) ([]models.Technician, error) {
	techs, err := s.technicians.List(ctx)
	if err != nil {
		return nil, Internal("failed to list technicians", err)
	}
	return techs, nil
}

// SetActive toggles whether a technician can be assigned
func (s *TechnicianService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Technician, error) {
	if err := s.technicians.SetActive(ctx, id, active); err != nil {
		return nil, storeError(err, "technician")
	}
	t, err := s.technicians.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "technician")
	}
	return t, nil
}
