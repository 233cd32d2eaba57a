package groups

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/internal/plans"
	"github.com/contemplaapp/contempla-backend/pkg/db"
	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	apperrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	"github.com/contemplaapp/contempla-backend/pkg/outbox"
	"github.com/contemplaapp/contempla-backend/pkg/outbox/payloads"
	"github.com/contemplaapp/contempla-backend/pkg/referralcode"
)

const (
	codeCollisionAttempts = 4
	positionRaceAttempts  = 3
	retryBackoff          = 25 * time.Millisecond
	expiryBatchSize       = 200
)

// Service coordinates group formation: admission, capacity enforcement,
// position assignment, and the contemplation transition.
type Service interface {
	CreateGroup(ctx context.Context, input CreateGroupInput) (*JoinResult, error)
	JoinGroup(ctx context.Context, input JoinGroupInput) (*JoinResult, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error)
	GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	ListParticipants(ctx context.Context, groupID uuid.UUID) ([]models.Participant, error)
	// ConfirmParticipantPaymentTx marks the participant paid inside the
	// caller's transaction and, when the whole group has paid, collapses
	// Full -> Contemplating -> Completed and queues the contemplation event.
	ConfirmParticipantPaymentTx(ctx context.Context, tx *gorm.DB, participantID uuid.UUID) (*ConfirmResult, error)
	// ExpireStaleReservations flips reservations that never confirmed within
	// the window to expired, freeing their slot. Positions are not reused.
	ExpireStaleReservations(ctx context.Context, window time.Duration) (int, error)
	// QueuePaymentNudges emits one reminder per pending reservation that is
	// inside the lead window before expiry.
	QueuePaymentNudges(ctx context.Context, window, lead time.Duration) (int, error)
}

// CreateGroupInput opens a new group for a plan with the creator at position 1.
type CreateGroupInput struct {
	PlanID        uuid.UUID
	CreatorUserID uuid.UUID
}

// JoinGroupInput reserves the next position in an existing group.
type JoinGroupInput struct {
	GroupID    uuid.UUID
	UserID     uuid.UUID
	ReferredBy *uuid.UUID
}

// JoinResult pairs the group with the participant the operation produced.
type JoinResult struct {
	Group       *models.Group
	Participant *models.Participant
}

// ConfirmResult reports what a payment confirmation changed.
type ConfirmResult struct {
	Participant    *models.Participant
	AlreadyPaid    bool
	GroupCompleted bool
	ContemplatedID *uuid.UUID
}

type service struct {
	client *db.Client
	repo   Repository
	plans  plans.Repository
	events *outbox.Service
	logg   *logger.Logger
}

// NewService wires the group coordinator.
func NewService(client *db.Client, repo Repository, planRepo plans.Repository, events *outbox.Service, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("group repository required")
	}
	if planRepo == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{client: client, repo: repo, plans: planRepo, events: events, logg: logg}, nil
}

func (s *service) CreateGroup(ctx context.Context, input CreateGroupInput) (*JoinResult, error) {
	if input.PlanID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "plan id is required")
	}
	if input.CreatorUserID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "creator user id is required")
	}

	plan, err := s.plans.GetByID(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "plan not found")
	}

	var result *JoinResult
	backoff := retry.WithMaxRetries(codeCollisionAttempts, retry.NewConstant(retryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		code, genErr := referralcode.Generate(referralcode.DefaultLength)
		if genErr != nil {
			return genErr
		}
		txErr := s.client.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			group := &models.Group{
				ID:           uuid.New(),
				PlanID:       plan.ID,
				ReferralCode: code,
				Capacity:     plan.Capacity,
				State:        enums.GroupStateForming,
				NextPosition: 2,
			}
			if err := repo.CreateGroup(ctx, group); err != nil {
				return err
			}
			participant := &models.Participant{
				ID:            uuid.New(),
				GroupID:       group.ID,
				UserID:        input.CreatorUserID,
				Position:      1,
				PaymentStatus: enums.PaymentStatusPending,
			}
			if err := repo.CreateParticipant(ctx, participant); err != nil {
				return err
			}
			result = &JoinResult{Group: group, Participant: participant}
			return nil
		})
		if txErr != nil {
			if db.IsUniqueViolation(txErr, "ux_groups_referral_code") {
				return retry.RetryableError(txErr)
			}
			return txErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithGroupID(ctx, result.Group.ID.String())
		s.logg.Info(logCtx, "group created")
	}
	return result, nil
}

func (s *service) JoinGroup(ctx context.Context, input JoinGroupInput) (*JoinResult, error) {
	if input.GroupID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "group id is required")
	}
	if input.UserID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}

	var result *JoinResult
	backoff := retry.WithMaxRetries(positionRaceAttempts, retry.NewConstant(retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := s.client.WithTx(ctx, func(tx *gorm.DB) error {
			joined, err := s.joinTx(ctx, tx, input)
			if err != nil {
				return err
			}
			result = joined
			return nil
		})
		if txErr != nil {
			// two joiners drew the same position; re-run the whole
			// read-count-then-insert unit
			if db.IsUniqueViolation(txErr, "ux_participants_group_position") {
				return retry.RetryableError(txErr)
			}
			return txErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) joinTx(ctx context.Context, tx *gorm.DB, input JoinGroupInput) (*JoinResult, error) {
	repo := s.repo.WithTx(tx)

	group, err := repo.GetGroupLocked(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "group not found")
	}
	// a Full group can still admit joiners when an expired reservation freed
	// a slot; states are monotonic so it never returns to Forming
	if group.State != enums.GroupStateForming && group.State != enums.GroupStateFull {
		return nil, apperrors.New(apperrors.CodeStateConflict, "group is not accepting new members").
			WithDetails(map[string]string{"state": group.State.String()})
	}

	occupied, err := repo.CountOccupied(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	if occupied >= int64(group.Capacity) {
		return nil, apperrors.New(apperrors.CodeConflict, "group is full")
	}

	if input.ReferredBy != nil {
		referrer, err := repo.GetParticipant(ctx, *input.ReferredBy)
		if err != nil {
			return nil, err
		}
		if referrer == nil || referrer.GroupID != group.ID {
			return nil, apperrors.New(apperrors.CodeValidation, "referrer is not a member of this group")
		}
		if referrer.UserID == input.UserID {
			return nil, apperrors.New(apperrors.CodeValidation, "participants cannot refer themselves")
		}
	}

	participant := &models.Participant{
		ID:            uuid.New(),
		GroupID:       group.ID,
		UserID:        input.UserID,
		Position:      group.NextPosition,
		PaymentStatus: enums.PaymentStatusPending,
		ReferredBy:    input.ReferredBy,
	}
	if err := repo.CreateParticipant(ctx, participant); err != nil {
		return nil, err
	}

	group.NextPosition++
	if group.State == enums.GroupStateForming && occupied+1 >= int64(group.Capacity) {
		group.State = enums.GroupStateFull
	}
	if err := repo.SaveGroup(ctx, group); err != nil {
		return nil, err
	}
	return &JoinResult{Group: group, Participant: participant}, nil
}

func (s *service) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "group id is required")
	}
	group, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "group not found")
	}
	return group, nil
}

func (s *service) GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "participant id is required")
	}
	participant, err := s.repo.GetParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "participant not found")
	}
	return participant, nil
}

func (s *service) ListParticipants(ctx context.Context, groupID uuid.UUID) ([]models.Participant, error) {
	if groupID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "group id is required")
	}
	return s.repo.ListParticipants(ctx, groupID)
}

func (s *service) ConfirmParticipantPaymentTx(ctx context.Context, tx *gorm.DB, participantID uuid.UUID) (*ConfirmResult, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if participantID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "participant id is required")
	}
	repo := s.repo.WithTx(tx)

	participant, err := repo.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "participant not found")
	}

	group, err := repo.GetGroupLocked(ctx, participant.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "participant references missing group")
	}

	// re-read under the group lock: a confirmation for the same participant
	// under a different ref may have committed while we waited, and the status
	// checks must see it
	participant, err = repo.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "participant not found")
	}
	if participant.PaymentStatus == enums.PaymentStatusPaid {
		return &ConfirmResult{Participant: participant, AlreadyPaid: true}, nil
	}
	if participant.PaymentStatus != enums.PaymentStatusPending {
		return nil, apperrors.New(apperrors.CodeStateConflict, "participant reservation is no longer payable").
			WithDetails(map[string]string{"payment_status": participant.PaymentStatus.String()})
	}

	now := time.Now()
	participant.PaymentStatus = enums.PaymentStatusPaid
	participant.PaidAt = &now
	if err := repo.SaveParticipant(ctx, participant); err != nil {
		return nil, err
	}

	result := &ConfirmResult{Participant: participant}
	if group.State != enums.GroupStateFull {
		return result, nil
	}

	paid, err := repo.CountByStatus(ctx, group.ID, enums.PaymentStatusPaid)
	if err != nil {
		return nil, err
	}
	if paid < int64(group.Capacity) {
		return result, nil
	}

	contemplated, err := s.contemplate(ctx, repo, group, now)
	if err != nil {
		return nil, err
	}
	result.GroupCompleted = true
	result.ContemplatedID = &contemplated.ID

	return result, s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventGroupContemplated,
		AggregateType: enums.AggregateGroup,
		AggregateID:   group.ID,
		Data: payloads.GroupContemplatedEvent{
			GroupID:                   group.ID,
			PlanID:                    group.PlanID,
			ContemplatedParticipantID: contemplated.ID,
			ContemplatedUserID:        contemplated.UserID,
			ContemplatedAt:            now,
		},
		Version: 1,
	})
}

func (s *service) ExpireStaleReservations(ctx context.Context, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, apperrors.New(apperrors.CodeValidation, "expiry window must be positive")
	}
	cutoff := time.Now().Add(-window)
	stale, err := s.repo.ListPendingEnrolledBefore(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		participantID := stale[i].ID
		err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			participant, err := repo.GetParticipant(ctx, participantID)
			if err != nil {
				return err
			}
			// re-check under the transaction: a payment may have landed
			// between the scan and now
			if participant == nil || participant.PaymentStatus != enums.PaymentStatusPending {
				return nil
			}
			now := time.Now()
			participant.PaymentStatus = enums.PaymentStatusExpired
			if err := repo.SaveParticipant(ctx, participant); err != nil {
				return err
			}
			expired++
			return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventParticipantExpired,
				AggregateType: enums.AggregateParticipant,
				AggregateID:   participant.ID,
				Data: payloads.ParticipantExpiredEvent{
					ParticipantID: participant.ID,
					GroupID:       participant.GroupID,
					UserID:        participant.UserID,
					Position:      participant.Position,
					ExpiredAt:     now,
				},
				Version: 1,
			})
		})
		if err != nil {
			return expired, err
		}
	}

	if expired > 0 && s.logg != nil {
		logCtx := s.logg.WithField(ctx, "expired", expired)
		s.logg.Info(logCtx, "stale reservations expired")
	}
	return expired, nil
}

func (s *service) QueuePaymentNudges(ctx context.Context, window, lead time.Duration) (int, error) {
	if window <= 0 || lead <= 0 || lead >= window {
		return 0, apperrors.New(apperrors.CodeValidation, "nudge lead must be positive and shorter than the expiry window")
	}
	now := time.Now()
	// enrolled long enough ago to be inside the lead window, but not expired
	from := now.Add(-window)
	to := now.Add(lead - window)

	due, err := s.repo.ListPendingEnrolledBetween(ctx, from, to, expiryBatchSize)
	if err != nil {
		return 0, err
	}

	queued := 0
	for i := range due {
		participant := due[i]
		dueAt := participant.EnrolledAt.Add(window)
		err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
			return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventParticipantPaymentNudge,
				AggregateType: enums.AggregateParticipant,
				AggregateID:   participant.ID,
				Data: payloads.ParticipantPaymentNudgeEvent{
					ParticipantID: participant.ID,
					GroupID:       participant.GroupID,
					UserID:        participant.UserID,
					DueAt:         dueAt,
					HoursLeft:     int(time.Until(dueAt).Hours()),
				},
				Version: 1,
			})
		})
		if err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// contemplate walks Full -> Contemplating -> Completed and stamps the winner:
// the lowest paid position, which by construction is the group's creator.
func (s *service) contemplate(ctx context.Context, repo Repository, group *models.Group, now time.Time) (*models.Participant, error) {
	members, err := repo.ListParticipants(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	var winner *models.Participant
	for i := range members {
		if members[i].PaymentStatus == enums.PaymentStatusPaid {
			winner = &members[i]
			break
		}
	}
	if winner == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "no paid participant to contemplate")
	}

	for _, next := range []enums.GroupState{enums.GroupStateContemplating, enums.GroupStateCompleted} {
		if !group.State.CanTransitionTo(next) {
			return nil, apperrors.New(apperrors.CodeInternal, fmt.Sprintf("group %s cannot move %s -> %s", group.ID, group.State, next))
		}
		group.State = next
	}
	group.ContemplatedParticipantID = &winner.ID
	group.ContemplatedAt = &now
	if err := repo.SaveGroup(ctx, group); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"group_id":       group.ID.String(),
			"participant_id": winner.ID.String(),
		})
		s.logg.Info(logCtx, "group contemplated")
	}
	return winner, nil
}
