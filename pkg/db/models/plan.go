package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is an immutable catalog entry a group is formed against. Rows are
// created by administrators and never mutated once a group references them.
type Plan struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string          `gorm:"column:name;not null"`
	FullPrice    decimal.Decimal `gorm:"column:full_price;type:numeric(12,2);not null"`
	EntryPrice   decimal.Decimal `gorm:"column:entry_price;type:numeric(12,2);not null"`
	Capacity     int             `gorm:"column:capacity;not null"`
	DurationDays *int            `gorm:"column:duration_days"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Plan) TableName() string { return "plans" }
