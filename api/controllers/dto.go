package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contemplaapp/contempla-backend/pkg/db/models"
)

type planResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	FullPrice    decimal.Decimal `json:"full_price"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Capacity     int             `json:"capacity"`
	DurationDays *int            `json:"duration_days,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func newPlanResponse(plan *models.Plan) planResponse {
	return planResponse{
		ID:           plan.ID,
		Name:         plan.Name,
		FullPrice:    plan.FullPrice,
		EntryPrice:   plan.EntryPrice,
		Capacity:     plan.Capacity,
		DurationDays: plan.DurationDays,
		CreatedAt:    plan.CreatedAt,
	}
}

type groupResponse struct {
	ID                        uuid.UUID  `json:"id"`
	PlanID                    uuid.UUID  `json:"plan_id"`
	ReferralCode              string     `json:"referral_code"`
	Capacity                  int        `json:"capacity"`
	State                     string     `json:"state"`
	ContemplatedParticipantID *uuid.UUID `json:"contemplated_participant_id,omitempty"`
	ContemplatedAt            *time.Time `json:"contemplated_at,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
}

func newGroupResponse(group *models.Group) groupResponse {
	return groupResponse{
		ID:                        group.ID,
		PlanID:                    group.PlanID,
		ReferralCode:              group.ReferralCode,
		Capacity:                  group.Capacity,
		State:                     string(group.State),
		ContemplatedParticipantID: group.ContemplatedParticipantID,
		ContemplatedAt:            group.ContemplatedAt,
		CreatedAt:                 group.CreatedAt,
	}
}

type participantResponse struct {
	ID            uuid.UUID  `json:"id"`
	GroupID       uuid.UUID  `json:"group_id"`
	UserID        uuid.UUID  `json:"user_id"`
	Position      int        `json:"position"`
	PaymentStatus string     `json:"payment_status"`
	ReferredBy    *uuid.UUID `json:"referred_by,omitempty"`
	EnrolledAt    time.Time  `json:"enrolled_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

func newParticipantResponse(participant *models.Participant) participantResponse {
	return participantResponse{
		ID:            participant.ID,
		GroupID:       participant.GroupID,
		UserID:        participant.UserID,
		Position:      participant.Position,
		PaymentStatus: string(participant.PaymentStatus),
		ReferredBy:    participant.ReferredBy,
		EnrolledAt:    participant.EnrolledAt,
		PaidAt:        participant.PaidAt,
	}
}

func newParticipantList(rows []models.Participant) []participantResponse {
	out := make([]participantResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newParticipantResponse(&rows[i]))
	}
	return out
}

type transactionResponse struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	ReferenceID string          `json:"reference_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

func newTransactionResponse(entry *models.CreditTransaction) transactionResponse {
	return transactionResponse{
		ID:          entry.ID,
		UserID:      entry.UserID,
		Amount:      entry.Amount,
		Kind:        string(entry.Kind),
		ReferenceID: entry.ReferenceID,
		CreatedAt:   entry.CreatedAt,
	}
}

type commissionResponse struct {
	ID                 uuid.UUID       `json:"id"`
	SourcePaymentID    string          `json:"source_payment_id"`
	PayerParticipantID uuid.UUID       `json:"payer_participant_id"`
	PayeeUserID        uuid.UUID       `json:"payee_user_id"`
	Level              int             `json:"level"`
	Amount             decimal.Decimal `json:"amount"`
	CreatedAt          time.Time       `json:"created_at"`
}

func newCommissionList(rows []models.Commission) []commissionResponse {
	out := make([]commissionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, commissionResponse{
			ID:                 row.ID,
			SourcePaymentID:    row.SourcePaymentID,
			PayerParticipantID: row.PayerParticipantID,
			PayeeUserID:        row.PayeeUserID,
			Level:              row.Level,
			Amount:             row.Amount,
			CreatedAt:          row.CreatedAt,
		})
	}
	return out
}

type enrollmentResponse struct {
	Group       groupResponse       `json:"group"`
	Participant participantResponse `json:"participant"`
}
