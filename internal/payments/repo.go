package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/pkg/db/models"
)

// Repository manages the processed payment ref dedup set.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, ref *models.ProcessedPaymentRef) error
	FindByExternalRef(ctx context.Context, externalRef string) (*models.ProcessedPaymentRef, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment ref repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, ref *models.ProcessedPaymentRef) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

func (r *repository) FindByExternalRef(ctx context.Context, externalRef string) (*models.ProcessedPaymentRef, error) {
	var ref models.ProcessedPaymentRef
	err := r.db.WithContext(ctx).Where("external_ref = ?", externalRef).First(&ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}
