package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/contemplaapp/contempla-backend/pkg/enums"
)

// Group is one formation instance of a Plan. NextPosition is a monotonic
// counter: positions are handed out in assignment order and never recycled,
// even when a reservation expires.
type Group struct {
	ID                        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PlanID                    uuid.UUID        `gorm:"column:plan_id;type:uuid;not null;index"`
	ReferralCode              string           `gorm:"column:referral_code;not null;uniqueIndex:ux_groups_referral_code"`
	Capacity                  int              `gorm:"column:capacity;not null"`
	State                     enums.GroupState `gorm:"column:state;type:group_state;not null;default:'forming'"`
	NextPosition              int              `gorm:"column:next_position;not null;default:1"`
	ContemplatedParticipantID *uuid.UUID       `gorm:"column:contemplated_participant_id;type:uuid"`
	ContemplatedAt            *time.Time       `gorm:"column:contemplated_at"`
	CreatedAt                 time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	Participants []Participant `gorm:"foreignKey:GroupID"`
}

func (Group) TableName() string { return "groups" }
