package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/internal/commission"
	"github.com/contemplaapp/contempla-backend/internal/groups"
	"github.com/contemplaapp/contempla-backend/internal/ledger"
	"github.com/contemplaapp/contempla-backend/internal/plans"
	"github.com/contemplaapp/contempla-backend/pkg/db"
	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	apperrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	"github.com/contemplaapp/contempla-backend/pkg/metrics"
)

// errAlreadyProcessed aborts the transaction when the dedup insert loses, so
// the loser's partial work is rolled back before the short-circuit response.
var errAlreadyProcessed = errors.New("payment ref already processed")

// Service is the single entry point for payment confirmations coming from the
// provider boundary. Every path through it is idempotent per external ref.
type Service interface {
	HandleConfirmation(ctx context.Context, input ConfirmationInput) (*ConfirmationResult, error)
	// PayWithCredits settles a participant's entry fee from their credit
	// balance instead of an external payment.
	PayWithCredits(ctx context.Context, participantID uuid.UUID) (*ConfirmationResult, error)
}

// ConfirmationInput mirrors the provider callback payload. Amount is optional;
// when present it must match the plan's entry price.
type ConfirmationInput struct {
	ExternalRef   string
	ParticipantID uuid.UUID
	Amount        decimal.Decimal
}

// ConfirmationResult reports what one confirmation changed.
type ConfirmationResult struct {
	AlreadyProcessed bool
	AlreadyPaid      bool
	Participant      *models.Participant
	GroupCompleted   bool
	Commissions      []models.Commission
}

type service struct {
	client      *db.Client
	repo        Repository
	coordinator groups.Service
	groupRepo   groups.Repository
	planRepo    plans.Repository
	cascade     commission.Service
	ledgerSvc   ledger.Service
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
}

// NewService wires the payment confirmation handler.
func NewService(
	client *db.Client,
	repo Repository,
	coordinator groups.Service,
	groupRepo groups.Repository,
	planRepo plans.Repository,
	cascade commission.Service,
	ledgerSvc ledger.Service,
	paymentMetrics *metrics.PaymentMetrics,
	logg *logger.Logger,
) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("payment ref repository required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("group coordinator required")
	}
	if groupRepo == nil {
		return nil, fmt.Errorf("group repository required")
	}
	if planRepo == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	if cascade == nil {
		return nil, fmt.Errorf("commission service required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{
		client:      client,
		repo:        repo,
		coordinator: coordinator,
		groupRepo:   groupRepo,
		planRepo:    planRepo,
		cascade:     cascade,
		ledgerSvc:   ledgerSvc,
		metrics:     paymentMetrics,
		logg:        logg,
	}, nil
}

func (s *service) HandleConfirmation(ctx context.Context, input ConfirmationInput) (*ConfirmationResult, error) {
	started := time.Now()
	result, err := s.handle(ctx, input, nil)
	s.record(result, err, started)
	return result, err
}

func (s *service) PayWithCredits(ctx context.Context, participantID uuid.UUID) (*ConfirmationResult, error) {
	if participantID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "participant id is required")
	}
	started := time.Now()
	// the synthetic ref rides the same dedup set, so paying twice with
	// credits is as harmless as a replayed webhook
	input := ConfirmationInput{
		ExternalRef:   fmt.Sprintf("credit:%s", participantID),
		ParticipantID: participantID,
	}
	result, err := s.handle(ctx, input, s.debitEntryFee)
	s.record(result, err, started)
	return result, err
}

// handle runs the confirmation pipeline in one transaction: claim the dedup
// ref, confirm the participant, optionally charge credits, cascade
// commissions. Losing the dedup race rolls everything back and reports
// AlreadyProcessed.
func (s *service) handle(ctx context.Context, input ConfirmationInput, charge func(ctx context.Context, tx *gorm.DB, participant *models.Participant, entryPrice decimal.Decimal) error) (*ConfirmationResult, error) {
	if input.ExternalRef == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "external payment ref is required")
	}
	if input.ParticipantID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "participant id is required")
	}

	participant, err := s.coordinator.GetParticipant(ctx, input.ParticipantID)
	if err != nil {
		return nil, err
	}
	entryPrice, err := s.entryPriceFor(ctx, participant)
	if err != nil {
		return nil, err
	}
	if !input.Amount.IsZero() && !input.Amount.Equal(entryPrice) {
		return nil, apperrors.New(apperrors.CodeValidation, "amount does not match the plan entry price").
			WithDetails(map[string]string{
				"expected": entryPrice.StringFixed(2),
				"received": input.Amount.StringFixed(2),
			})
	}

	result := &ConfirmationResult{}
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		ref := &models.ProcessedPaymentRef{
			ID:            uuid.New(),
			ExternalRef:   input.ExternalRef,
			ParticipantID: input.ParticipantID,
		}
		if err := s.repo.WithTx(tx).Insert(ctx, ref); err != nil {
			if db.IsUniqueViolation(err, "ux_processed_payment_refs_external_ref") {
				return errAlreadyProcessed
			}
			return err
		}

		confirmed, err := s.coordinator.ConfirmParticipantPaymentTx(ctx, tx, input.ParticipantID)
		if err != nil {
			return err
		}
		result.Participant = confirmed.Participant
		if confirmed.AlreadyPaid {
			// paid earlier under a different ref: keep the dedup row,
			// skip the charge and the cascade
			result.AlreadyPaid = true
			return nil
		}
		result.GroupCompleted = confirmed.GroupCompleted

		// charge only after the confirmation settled this ref as the one
		// that pays; a participant already confirmed elsewhere keeps their
		// balance untouched
		if charge != nil {
			if err := charge(ctx, tx, participant, entryPrice); err != nil {
				return err
			}
		}

		created, err := s.cascade.ApplyCascadeTx(ctx, tx, commission.CascadeInput{
			SourcePaymentID:    input.ExternalRef,
			PayerParticipantID: input.ParticipantID,
			EntryAmount:        entryPrice,
		})
		if err != nil {
			return err
		}
		result.Commissions = created
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		return &ConfirmationResult{AlreadyProcessed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithPaymentRef(ctx, input.ExternalRef)
		logCtx = s.logg.WithParticipantID(logCtx, input.ParticipantID.String())
		s.logg.Info(logCtx, "payment confirmation processed")
	}
	return result, nil
}

// debitEntryFee charges the entry fee against the participant's credit
// balance. Insufficient balance surfaces as a state conflict and rolls the
// whole confirmation back, dedup row included.
func (s *service) debitEntryFee(ctx context.Context, tx *gorm.DB, participant *models.Participant, entryPrice decimal.Decimal) error {
	_, err := s.ledgerSvc.ApplyTx(ctx, tx, ledger.ApplyInput{
		UserID:      participant.UserID,
		Amount:      entryPrice,
		Kind:        enums.TransactionKindEntryCharge,
		ReferenceID: fmt.Sprintf("participant:%s", participant.ID),
	})
	return err
}

func (s *service) entryPriceFor(ctx context.Context, participant *models.Participant) (decimal.Decimal, error) {
	group, err := s.groupRepo.GetGroup(ctx, participant.GroupID)
	if err != nil {
		return decimal.Zero, err
	}
	if group == nil {
		return decimal.Zero, apperrors.New(apperrors.CodeInternal, "participant references missing group")
	}
	plan, err := s.planRepo.GetByID(ctx, group.PlanID)
	if err != nil {
		return decimal.Zero, err
	}
	if plan == nil {
		return decimal.Zero, apperrors.New(apperrors.CodeInternal, "group references missing plan")
	}
	return plan.EntryPrice, nil
}

func (s *service) record(result *ConfirmationResult, err error, started time.Time) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.PaymentOutcomeConfirmed
	switch {
	case err != nil:
		outcome = metrics.PaymentOutcomeError
		if typed := apperrors.As(err); typed != nil && typed.Code() != apperrors.CodeInternal {
			outcome = metrics.PaymentOutcomeRejected
		}
	case result.AlreadyProcessed || result.AlreadyPaid:
		outcome = metrics.PaymentOutcomeDuplicate
	case result.GroupCompleted:
		outcome = metrics.PaymentOutcomeContemplate
	}
	s.metrics.Record(outcome, time.Since(started))
}
