package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/contemplaapp/contempla-backend/pkg/enums"
)

// Participant is a user's membership in a group. Position is assigned at
// reservation time, unique per group, and kept forever for audit ordering.
type Participant struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID       uuid.UUID           `gorm:"column:group_id;type:uuid;not null;uniqueIndex:ux_participants_group_position,priority:1"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Position      int                 `gorm:"column:position;not null;uniqueIndex:ux_participants_group_position,priority:2"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending_payment'"`
	ReferredBy    *uuid.UUID          `gorm:"column:referred_by;type:uuid"`
	EnrolledAt    time.Time           `gorm:"column:enrolled_at;autoCreateTime"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Participant) TableName() string { return "participants" }
