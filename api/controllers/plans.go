package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contemplaapp/contempla-backend/api/responses"
	"github.com/contemplaapp/contempla-backend/api/validators"
	"github.com/contemplaapp/contempla-backend/internal/plans"
	pkgerrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	"github.com/contemplaapp/contempla-backend/pkg/pagination"
)

type createPlanRequest struct {
	Name         string          `json:"name" validate:"required,max=200"`
	FullPrice    decimal.Decimal `json:"full_price" validate:"required"`
	EntryPrice   decimal.Decimal `json:"entry_price" validate:"required"`
	Capacity     int             `json:"capacity" validate:"required,min=2"`
	DurationDays *int            `json:"duration_days,omitempty" validate:"omitempty,min=1"`
}

// CreatePlan registers a new catalog entry groups can form against.
func CreatePlan(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPlanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.CreatePlan(r.Context(), plans.CreatePlanInput{
			Name:         req.Name,
			FullPrice:    req.FullPrice,
			EntryPrice:   req.EntryPrice,
			Capacity:     req.Capacity,
			DurationDays: req.DurationDays,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPlanResponse(plan))
	}
}

func GetPlan(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		planID, err := uuid.Parse(chi.URLParam(r, "planID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id"))
			return
		}

		plan, err := svc.GetPlan(r.Context(), planID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPlanResponse(plan))
	}
}

func ListPlans(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListPlans(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]planResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newPlanResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
