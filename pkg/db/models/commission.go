package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Commission records one payout of a referral cascade. The unique index on
// (source_payment_id, payee_user_id, level) is what makes replays harmless.
type Commission struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SourcePaymentID    string          `gorm:"column:source_payment_id;not null;uniqueIndex:ux_commissions_source_payee_level,priority:1"`
	PayerParticipantID uuid.UUID       `gorm:"column:payer_participant_id;type:uuid;not null;index"`
	PayeeUserID        uuid.UUID       `gorm:"column:payee_user_id;type:uuid;not null;uniqueIndex:ux_commissions_source_payee_level,priority:2"`
	Level              int             `gorm:"column:level;not null;uniqueIndex:ux_commissions_source_payee_level,priority:3"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Commission) TableName() string { return "commissions" }
