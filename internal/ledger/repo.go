package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/pagination"
)

// Repository manages persistence for credit transactions and balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.CreditTransaction) error
	LockBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	SaveBalance(ctx context.Context, balance *models.UserBalance) error
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.CreditTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, entry *models.CreditTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// LockBalance returns the user's balance row under a row lock, creating the
// zero row first if it does not exist yet. SQLite has a single writer, so the
// locking clause is only applied on Postgres.
func (r *repository) LockBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	seed := models.UserBalance{UserID: userID, Balance: decimal.Zero, UpdatedAt: time.Now()}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error; err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var balance models.UserBalance
	if err := q.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) SaveBalance(ctx context.Context, balance *models.UserBalance) error {
	balance.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Model(&models.UserBalance{}).
		Where("user_id = ?", balance.UserID).
		Updates(map[string]any{
			"balance":    balance.Balance,
			"updated_at": balance.UpdatedAt,
		}).Error
}

func (r *repository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	var balance models.UserBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.UserBalance{UserID: userID, Balance: decimal.Zero}, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.CreditTransaction, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.CreditTransaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
