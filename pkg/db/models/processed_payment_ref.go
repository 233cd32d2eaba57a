package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedPaymentRef is the durable dedup set for payment confirmations.
// The unique constraint on external_ref decides which concurrent delivery
// wins the right to process; everyone else short-circuits.
type ProcessedPaymentRef struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ExternalRef   string    `gorm:"column:external_ref;not null;uniqueIndex:ux_processed_payment_refs_external_ref"`
	ParticipantID uuid.UUID `gorm:"column:participant_id;type:uuid;not null;index"`
	ProcessedAt   time.Time `gorm:"column:processed_at;autoCreateTime"`
}

func (ProcessedPaymentRef) TableName() string { return "processed_payment_refs" }
