package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GroupContemplatedEvent is emitted once when the last participant of a full
// group confirms payment and the group completes its contemplation.
type GroupContemplatedEvent struct {
	GroupID                   uuid.UUID `json:"group_id"`
	PlanID                    uuid.UUID `json:"plan_id"`
	ContemplatedParticipantID uuid.UUID `json:"contemplated_participant_id"`
	ContemplatedUserID        uuid.UUID `json:"contemplated_user_id"`
	ContemplatedAt            time.Time `json:"contemplated_at"`
}

// CommissionCreditedEvent reports a single commission credit from the referral
// cascade.
type CommissionCreditedEvent struct {
	CommissionID       uuid.UUID       `json:"commission_id"`
	PayeeUserID        uuid.UUID       `json:"payee_user_id"`
	PayerParticipantID uuid.UUID       `json:"payer_participant_id"`
	SourcePaymentID    string          `json:"source_payment_id"`
	Level              int             `json:"level"`
	Amount             decimal.Decimal `json:"amount"`
}

// ParticipantExpiredEvent is emitted when a reservation lapses without payment.
type ParticipantExpiredEvent struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	GroupID       uuid.UUID `json:"group_id"`
	UserID        uuid.UUID `json:"user_id"`
	Position      int       `json:"position"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// ParticipantPaymentNudgeEvent carries the payload for payment reminders.
type ParticipantPaymentNudgeEvent struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	GroupID       uuid.UUID `json:"group_id"`
	UserID        uuid.UUID `json:"user_id"`
	DueAt         time.Time `json:"due_at"`
	HoursLeft     int       `json:"hours_left"`
}
