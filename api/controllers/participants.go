package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/contemplaapp/contempla-backend/api/responses"
	"github.com/contemplaapp/contempla-backend/internal/groups"
	"github.com/contemplaapp/contempla-backend/internal/payments"
	pkgerrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
)

func GetParticipant(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID, err := uuid.Parse(chi.URLParam(r, "participantID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid participant id"))
			return
		}

		participant, err := svc.GetParticipant(r.Context(), participantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newParticipantResponse(participant))
	}
}

type payWithCreditsResponse struct {
	Participant    *participantResponse `json:"participant,omitempty"`
	AlreadyPaid    bool                 `json:"already_paid"`
	GroupCompleted bool                 `json:"group_completed"`
}

// PayWithCredits settles a participant's entry fee from their credit balance.
// Replays are absorbed by the processed ref for that participant.
func PayWithCredits(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID, err := uuid.Parse(chi.URLParam(r, "participantID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid participant id"))
			return
		}

		result, err := svc.PayWithCredits(r.Context(), participantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := payWithCreditsResponse{
			AlreadyPaid:    result.AlreadyPaid || result.AlreadyProcessed,
			GroupCompleted: result.GroupCompleted,
		}
		if result.Participant != nil {
			participant := newParticipantResponse(result.Participant)
			out.Participant = &participant
		}
		responses.WriteSuccess(w, out)
	}
}
