package commission

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/pkg/db/models"
)

// Repository manages persistence for cascade payout records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, commission *models.Commission) error
	Exists(ctx context.Context, sourcePaymentID string, payeeUserID uuid.UUID, level int) (bool, error)
	ListBySource(ctx context.Context, sourcePaymentID string) ([]models.Commission, error)
	ListByPayee(ctx context.Context, payeeUserID uuid.UUID, limit int) ([]models.Commission, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a commission repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, commission *models.Commission) error {
	return r.db.WithContext(ctx).Create(commission).Error
}

func (r *repository) Exists(ctx context.Context, sourcePaymentID string, payeeUserID uuid.UUID, level int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("source_payment_id = ? AND payee_user_id = ? AND level = ?", sourcePaymentID, payeeUserID, level).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListBySource(ctx context.Context, sourcePaymentID string) ([]models.Commission, error) {
	var rows []models.Commission
	err := r.db.WithContext(ctx).
		Where("source_payment_id = ?", sourcePaymentID).
		Order("level ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByPayee(ctx context.Context, payeeUserID uuid.UUID, limit int) ([]models.Commission, error) {
	var rows []models.Commission
	err := r.db.WithContext(ctx).
		Where("payee_user_id = ?", payeeUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
