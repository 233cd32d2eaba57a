package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/contemplaapp/contempla-backend/api/responses"
	"github.com/contemplaapp/contempla-backend/api/validators"
	"github.com/contemplaapp/contempla-backend/internal/referral"
	pkgerrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
)

type resolveResponse struct {
	CreateNew bool           `json:"create_new"`
	Group     *groupResponse `json:"group,omitempty"`
}

// ResolveReferralCode looks up which group a code points at without mutating
// anything. Callers use it to preview a join before committing.
func ResolveReferralCode(svc referral.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		resolution, err := svc.Resolve(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := resolveResponse{CreateNew: resolution.CreateNew}
		if resolution.Group != nil {
			group := newGroupResponse(resolution.Group)
			out.Group = &group
		}
		responses.WriteSuccess(w, out)
	}
}

type enrollRequest struct {
	PlanID       uuid.UUID  `json:"plan_id,omitempty"`
	UserID       uuid.UUID  `json:"user_id" validate:"required"`
	ReferralCode string     `json:"referral_code,omitempty"`
	ReferredBy   *uuid.UUID `json:"referred_by,omitempty"`
}

// Enroll is the single entry point for joining: with a referral code it
// reserves the next slot in that group, without one it opens a new group.
func Enroll(svc referral.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enrollRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.UserID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user id is required"))
			return
		}

		result, err := svc.Enroll(r.Context(), referral.EnrollInput{
			PlanID:       req.PlanID,
			UserID:       req.UserID,
			ReferralCode: req.ReferralCode,
			ReferredBy:   req.ReferredBy,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, enrollmentResponse{
			Group:       newGroupResponse(result.Group),
			Participant: newParticipantResponse(result.Participant),
		})
	}
}
