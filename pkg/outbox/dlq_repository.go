package outbox

import (
	"errors"

	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/pkg/db/models"
)

// DLQ rows are append-only; remediation happens by replaying the original
// event, not by mutating the dead letter.
const maxDLQErrorLen = 1024

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx writes a dead letter inside the caller's transaction, truncating
// oversized error messages so a noisy failure cannot bloat the table.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > maxDLQErrorLen {
		msg := (*entry.ErrorMessage)[:maxDLQErrorLen]
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}
