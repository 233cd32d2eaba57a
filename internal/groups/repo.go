package groups

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
)

// Repository manages persistence for groups and their participants.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error)
	// GetGroupLocked loads the group row under a row lock so capacity checks
	// and position assignment serialize per group.
	GetGroupLocked(ctx context.Context, id uuid.UUID) (*models.Group, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Group, error)
	SaveGroup(ctx context.Context, group *models.Group) error
	CreateParticipant(ctx context.Context, participant *models.Participant) error
	GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	SaveParticipant(ctx context.Context, participant *models.Participant) error
	ListParticipants(ctx context.Context, groupID uuid.UUID) ([]models.Participant, error)
	// CountOccupied counts participants whose status still holds a slot.
	CountOccupied(ctx context.Context, groupID uuid.UUID) (int64, error)
	CountByStatus(ctx context.Context, groupID uuid.UUID, status enums.PaymentStatus) (int64, error)
	ListPendingEnrolledBefore(ctx context.Context, before time.Time, limit int) ([]models.Participant, error)
	ListPendingEnrolledBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Participant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a group repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateGroup(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repository) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

// SQLite has a single writer, so the locking clause is only applied on
// Postgres.
func (r *repository) GetGroupLocked(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var group models.Group
	err := q.Where("id = ?", id).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *repository) FindByReferralCode(ctx context.Context, code string) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (r *repository) SaveGroup(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Save(group).Error
}

func (r *repository) CreateParticipant(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

func (r *repository) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &participant, nil
}

func (r *repository) SaveParticipant(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Save(participant).Error
}

func (r *repository) ListParticipants(ctx context.Context, groupID uuid.UUID) ([]models.Participant, error) {
	var rows []models.Participant
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("position ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountOccupied(ctx context.Context, groupID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("group_id = ?", groupID).
		Where("payment_status IN ?", []enums.PaymentStatus{
			enums.PaymentStatusPending,
			enums.PaymentStatusPaid,
		}).
		Count(&count).Error
	return count, err
}

func (r *repository) CountByStatus(ctx context.Context, groupID uuid.UUID, status enums.PaymentStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("group_id = ? AND payment_status = ?", groupID, status).
		Count(&count).Error
	return count, err
}

func (r *repository) ListPendingEnrolledBefore(ctx context.Context, before time.Time, limit int) ([]models.Participant, error) {
	var rows []models.Participant
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND enrolled_at < ?", enums.PaymentStatusPending, before).
		Order("enrolled_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListPendingEnrolledBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Participant, error) {
	var rows []models.Participant
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND enrolled_at >= ? AND enrolled_at < ?", enums.PaymentStatusPending, from, to).
		Order("enrolled_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
