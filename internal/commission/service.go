package commission

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/internal/groups"
	"github.com/contemplaapp/contempla-backend/internal/ledger"
	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/db"
	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	apperrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	"github.com/contemplaapp/contempla-backend/pkg/outbox"
	"github.com/contemplaapp/contempla-backend/pkg/outbox/payloads"
	"github.com/contemplaapp/contempla-backend/pkg/pagination"
)

// Service applies the commission cascade when an entry payment confirms.
type Service interface {
	// ApplyCascadeTx walks the payer's referral chain inside the caller's
	// transaction, crediting one commission per level of the rate schedule.
	// Replaying the same source payment creates nothing and returns an empty
	// list.
	ApplyCascadeTx(ctx context.Context, tx *gorm.DB, input CascadeInput) ([]models.Commission, error)
	ListBySource(ctx context.Context, sourcePaymentID string) ([]models.Commission, error)
	ListByPayee(ctx context.Context, payeeUserID uuid.UUID, limit int) ([]models.Commission, error)
}

// CascadeInput identifies the confirmed payment that funds the cascade.
type CascadeInput struct {
	SourcePaymentID    string
	PayerParticipantID uuid.UUID
	EntryAmount        decimal.Decimal
}

type service struct {
	repo      Repository
	groupRepo groups.Repository
	ledgerSvc ledger.Service
	events    *outbox.Service
	rates     []decimal.Decimal
	logg      *logger.Logger
}

// NewService wires the cascade engine. The rate schedule is validated once at
// startup; its length bounds the chain walk.
func NewService(repo Repository, groupRepo groups.Repository, ledgerSvc ledger.Service, events *outbox.Service, cfg config.CommissionConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if groupRepo == nil {
		return nil, fmt.Errorf("group repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	rates, err := cfg.Rates()
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("commission rate schedule is empty")
	}
	return &service{
		repo:      repo,
		groupRepo: groupRepo,
		ledgerSvc: ledgerSvc,
		events:    events,
		rates:     rates,
		logg:      logg,
	}, nil
}

func (s *service) ApplyCascadeTx(ctx context.Context, tx *gorm.DB, input CascadeInput) ([]models.Commission, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.SourcePaymentID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "source payment id is required")
	}
	if input.PayerParticipantID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "payer participant id is required")
	}
	if !input.EntryAmount.IsPositive() {
		return nil, apperrors.New(apperrors.CodeValidation, "entry amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	groupRepo := s.groupRepo.WithTx(tx)

	payer, err := groupRepo.GetParticipant(ctx, input.PayerParticipantID)
	if err != nil {
		return nil, err
	}
	if payer == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "payer participant not found")
	}

	created := make([]models.Commission, 0, len(s.rates))
	next := payer.ReferredBy
	// the walk is bounded by the schedule length, never by trust in the data
	for level := 1; level <= len(s.rates) && next != nil; level++ {
		referrer, err := groupRepo.GetParticipant(ctx, *next)
		if err != nil {
			return nil, err
		}
		if referrer == nil {
			break
		}

		amount := input.EntryAmount.Mul(s.rates[level-1]).Round(2)
		if amount.IsPositive() {
			row, err := s.credit(ctx, tx, repo, creditInput{
				sourcePaymentID:    input.SourcePaymentID,
				payerParticipantID: payer.ID,
				payeeUserID:        referrer.UserID,
				level:              level,
				amount:             amount,
			})
			if err != nil {
				return nil, err
			}
			if row != nil {
				created = append(created, *row)
			}
		}
		next = referrer.ReferredBy
	}
	return created, nil
}

type creditInput struct {
	sourcePaymentID    string
	payerParticipantID uuid.UUID
	payeeUserID        uuid.UUID
	level              int
	amount             decimal.Decimal
}

// credit writes one commission row, mirrors it into the payee's ledger, and
// queues the credited event. A duplicate (source, payee, level) key means a
// replay; it is skipped without touching the ledger.
func (s *service) credit(ctx context.Context, tx *gorm.DB, repo Repository, input creditInput) (*models.Commission, error) {
	exists, err := repo.Exists(ctx, input.sourcePaymentID, input.payeeUserID, input.level)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	row := &models.Commission{
		ID:                 uuid.New(),
		SourcePaymentID:    input.sourcePaymentID,
		PayerParticipantID: input.payerParticipantID,
		PayeeUserID:        input.payeeUserID,
		Level:              input.level,
		Amount:             input.amount,
	}
	if err := repo.Create(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "ux_commissions_source_payee_level") {
			return nil, nil
		}
		return nil, err
	}

	if _, err := s.ledgerSvc.ApplyTx(ctx, tx, ledger.ApplyInput{
		UserID:      input.payeeUserID,
		Amount:      input.amount,
		Kind:        enums.TransactionKindCommissionCredit,
		ReferenceID: fmt.Sprintf("commission:%s", row.ID),
	}); err != nil {
		return nil, err
	}

	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCommissionCredited,
		AggregateType: enums.AggregateCommission,
		AggregateID:   row.ID,
		Data: payloads.CommissionCreditedEvent{
			CommissionID:       row.ID,
			PayeeUserID:        row.PayeeUserID,
			PayerParticipantID: row.PayerParticipantID,
			SourcePaymentID:    row.SourcePaymentID,
			Level:              row.Level,
			Amount:             row.Amount,
		},
		Version: 1,
	}); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"commission_id": row.ID.String(),
			"payee_user_id": row.PayeeUserID.String(),
			"level":         row.Level,
		})
		s.logg.Info(logCtx, "commission credited")
	}
	return row, nil
}

func (s *service) ListBySource(ctx context.Context, sourcePaymentID string) ([]models.Commission, error) {
	if sourcePaymentID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "source payment id is required")
	}
	return s.repo.ListBySource(ctx, sourcePaymentID)
}

func (s *service) ListByPayee(ctx context.Context, payeeUserID uuid.UUID, limit int) ([]models.Commission, error) {
	if payeeUserID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "payee user id is required")
	}
	return s.repo.ListByPayee(ctx, payeeUserID, pagination.NormalizeLimit(limit))
}
