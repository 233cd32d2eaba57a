package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contemplaapp/contempla-backend/pkg/enums"
)

// CreditTransaction is an append-only ledger entry. Amount is always a
// positive magnitude; Kind decides whether it credits or debits the balance,
// so the signed value of a row is +Amount for credit kinds and -Amount for
// debit kinds. The materialized user balance must always equal the sum of
// those signed values, which keeps the ledger replayable even though the
// column itself never goes negative.
type CreditTransaction struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Kind        enums.TransactionKind `gorm:"column:kind;type:transaction_kind;not null"`
	ReferenceID string                `gorm:"column:reference_id;not null"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }

// UserBalance is the materialized balance cache. It is derived from
// credit_transactions and updated in the same transaction as every append.
type UserBalance struct {
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserBalance) TableName() string { return "user_balances" }
