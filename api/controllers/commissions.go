package controllers

import (
	"net/http"

	"github.com/contemplaapp/contempla-backend/api/responses"
	"github.com/contemplaapp/contempla-backend/api/validators"
	"github.com/contemplaapp/contempla-backend/internal/commission"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	"github.com/contemplaapp/contempla-backend/pkg/pagination"
)

func ListCommissions(svc commission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByPayee(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCommissionList(rows))
	}
}
