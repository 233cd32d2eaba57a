package plans

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	apperrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/pagination"
)

// Service exposes the plan catalog.
type Service interface {
	CreatePlan(ctx context.Context, input CreatePlanInput) (*models.Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	ListPlans(ctx context.Context, limit int) ([]models.Plan, error)
}

// CreatePlanInput carries the admin-facing plan definition.
type CreatePlanInput struct {
	Name         string
	FullPrice    decimal.Decimal
	EntryPrice   decimal.Decimal
	Capacity     int
	DurationDays *int
}

type service struct {
	repo Repository
}

// NewService wires a plan service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreatePlan(ctx context.Context, input CreatePlanInput) (*models.Plan, error) {
	if input.Name == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "plan name is required")
	}
	if !input.FullPrice.IsPositive() {
		return nil, apperrors.New(apperrors.CodeValidation, "full price must be positive")
	}
	if !input.EntryPrice.IsPositive() {
		return nil, apperrors.New(apperrors.CodeValidation, "entry price must be positive")
	}
	if input.EntryPrice.GreaterThan(input.FullPrice) {
		return nil, apperrors.New(apperrors.CodeValidation, "entry price cannot exceed full price")
	}
	if input.Capacity < 2 {
		return nil, apperrors.New(apperrors.CodeValidation, "capacity must be at least 2")
	}
	if input.DurationDays != nil && *input.DurationDays <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "duration days must be positive")
	}

	plan := &models.Plan{
		ID:           uuid.New(),
		Name:         input.Name,
		FullPrice:    input.FullPrice,
		EntryPrice:   input.EntryPrice,
		Capacity:     input.Capacity,
		DurationDays: input.DurationDays,
	}
	if err := s.repo.Create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *service) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "plan id is required")
	}
	plan, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "plan not found")
	}
	return plan, nil
}

func (s *service) ListPlans(ctx context.Context, limit int) ([]models.Plan, error) {
	return s.repo.List(ctx, pagination.NormalizeLimit(limit))
}
