package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contemplaapp/contempla-backend/api/responses"
	"github.com/contemplaapp/contempla-backend/api/validators"
	"github.com/contemplaapp/contempla-backend/internal/payments"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
)

type paymentWebhookRequest struct {
	ExternalRef   string          `json:"external_ref" validate:"required,max=200"`
	ParticipantID uuid.UUID       `json:"participant_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
}

type paymentWebhookResponse struct {
	Accepted       bool `json:"accepted"`
	Duplicate      bool `json:"duplicate"`
	GroupCompleted bool `json:"group_completed"`
}

// PaymentWebhook ingests provider confirmations. Replays of a ref the engine
// has already settled are acknowledged with 202 so the provider stops
// retrying; real failures keep their error status.
func PaymentWebhook(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentWebhookRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.HandleConfirmation(r.Context(), payments.ConfirmationInput{
			ExternalRef:   req.ExternalRef,
			ParticipantID: req.ParticipantID,
			Amount:        req.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, paymentWebhookResponse{
			Accepted:       true,
			Duplicate:      result.AlreadyProcessed || result.AlreadyPaid,
			GroupCompleted: result.GroupCompleted,
		})
	}
}
