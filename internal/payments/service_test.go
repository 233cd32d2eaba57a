package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/internal/commission"
	"github.com/contemplaapp/contempla-backend/internal/groups"
	"github.com/contemplaapp/contempla-backend/internal/ledger"
	"github.com/contemplaapp/contempla-backend/internal/plans"
	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/db"
	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	apperrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/outbox"
)

type paymentFixture struct {
	payments    Service
	coordinator groups.Service
	ledgerSvc   ledger.Service
	client      *db.Client
}

func setupPaymentService(t *testing.T) *paymentFixture {
	t.Helper()

	client, err := db.New(context.Background(), config.DBConfig{
		DSN:    "file::memory:?cache=shared",
		Driver: "sqlite",
	}, nil)
	require.NoError(t, err)

	conn := client.DB()
	statements := []string{`
CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  full_price NUMERIC NOT NULL,
  entry_price NUMERIC NOT NULL,
  capacity INTEGER NOT NULL,
  duration_days INTEGER,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS groups (
  id TEXT PRIMARY KEY,
  plan_id TEXT NOT NULL,
  referral_code TEXT NOT NULL UNIQUE,
  capacity INTEGER NOT NULL,
  state TEXT NOT NULL DEFAULT 'forming',
  next_position INTEGER NOT NULL DEFAULT 1,
  contemplated_participant_id TEXT,
  contemplated_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS participants (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending_payment',
  referred_by TEXT,
  enrolled_at DATETIME,
  paid_at DATETIME,
  updated_at DATETIME,
  UNIQUE (group_id, position)
);`, `
CREATE TABLE IF NOT EXISTS commissions (
  id TEXT PRIMARY KEY,
  source_payment_id TEXT NOT NULL,
  payer_participant_id TEXT NOT NULL,
  payee_user_id TEXT NOT NULL,
  level INTEGER NOT NULL,
  amount NUMERIC NOT NULL,
  created_at DATETIME,
  UNIQUE (source_payment_id, payee_user_id, level)
);`, `
CREATE TABLE IF NOT EXISTS credit_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  kind TEXT NOT NULL,
  reference_id TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS user_balances (
  user_id TEXT PRIMARY KEY,
  balance NUMERIC NOT NULL DEFAULT 0,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS processed_payment_refs (
  id TEXT PRIMARY KEY,
  external_ref TEXT NOT NULL UNIQUE,
  participant_id TEXT NOT NULL,
  processed_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  UNIQUE (event_type, aggregate_type, aggregate_id)
);`}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	planRepo := plans.NewRepository(conn)
	groupRepo := groups.NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)

	coordinator, err := groups.NewService(client, groupRepo, planRepo, events, nil)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(client, ledger.NewRepository(conn))
	require.NoError(t, err)
	cascade, err := commission.NewService(commission.NewRepository(conn), groupRepo, ledgerSvc, events,
		config.CommissionConfig{LevelRates: []string{"0.20", "0.10", "0.05"}}, nil)
	require.NoError(t, err)

	payments, err := NewService(client, NewRepository(conn), coordinator, groupRepo, planRepo, cascade, ledgerSvc, nil, nil)
	require.NoError(t, err)

	return &paymentFixture{
		payments:    payments,
		coordinator: coordinator,
		ledgerSvc:   ledgerSvc,
		client:      client,
	}
}

func (f *paymentFixture) seedPlan(t *testing.T, capacity int) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		ID:         uuid.New(),
		Name:       "Plan",
		FullPrice:  decimal.RequireFromString("1000.00"),
		EntryPrice: decimal.RequireFromString("100.00"),
		Capacity:   capacity,
	}
	require.NoError(t, f.client.DB().Create(plan).Error)
	return plan
}

// seedGroup opens a group and fills it with members referred in a chain:
// creator <- member2 <- member3 <- ...
func (f *paymentFixture) seedGroup(t *testing.T, capacity int) (*models.Group, []models.Participant) {
	t.Helper()
	ctx := context.Background()
	plan := f.seedPlan(t, capacity)

	created, err := f.coordinator.CreateGroup(ctx, groups.CreateGroupInput{
		PlanID:        plan.ID,
		CreatorUserID: uuid.New(),
	})
	require.NoError(t, err)

	members := []models.Participant{*created.Participant}
	for i := 1; i < capacity; i++ {
		referrer := members[i-1].ID
		joined, err := f.coordinator.JoinGroup(ctx, groups.JoinGroupInput{
			GroupID:    created.Group.ID,
			UserID:     uuid.New(),
			ReferredBy: &referrer,
		})
		require.NoError(t, err)
		members = append(members, *joined.Participant)
	}
	return created.Group, members
}

func (f *paymentFixture) fund(t *testing.T, userID uuid.UUID, amount string) {
	t.Helper()
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := f.ledgerSvc.ApplyTx(context.Background(), tx, ledger.ApplyInput{
			UserID:      userID,
			Amount:      decimal.RequireFromString(amount),
			Kind:        enums.TransactionKindCommissionCredit,
			ReferenceID: "seed:" + uuid.NewString(),
		})
		return err
	})
	require.NoError(t, err)
}

func TestHappyPathContemplation(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	group, members := f.seedGroup(t, 3)

	// confirm out of order: last joiner, then the middle, then the creator
	for _, idx := range []int{2, 1, 0} {
		result, err := f.payments.HandleConfirmation(ctx, ConfirmationInput{
			ExternalRef:   "pay_" + uuid.NewString(),
			ParticipantID: members[idx].ID,
			Amount:        decimal.RequireFromString("100.00"),
		})
		require.NoError(t, err)
		assert.False(t, result.AlreadyProcessed)
	}

	final, err := f.coordinator.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.GroupStateCompleted, final.State)
	require.NotNil(t, final.ContemplatedParticipantID)
	assert.Equal(t, members[0].ID, *final.ContemplatedParticipantID, "lowest position wins")

	// member3's payment cascades two levels, member2's one, the creator's none
	creatorBalance, err := f.ledgerSvc.Balance(ctx, members[0].UserID)
	require.NoError(t, err)
	assert.True(t, creatorBalance.Equal(decimal.RequireFromString("30.00")), "got %s", creatorBalance)

	middleBalance, err := f.ledgerSvc.Balance(ctx, members[1].UserID)
	require.NoError(t, err)
	assert.True(t, middleBalance.Equal(decimal.RequireFromString("20.00")), "got %s", middleBalance)

	memberIDs := []uuid.UUID{members[0].ID, members[1].ID, members[2].ID}
	var commissions int64
	require.NoError(t, f.client.DB().Model(&models.Commission{}).
		Where("payer_participant_id IN ?", memberIDs).
		Count(&commissions).Error)
	assert.EqualValues(t, 3, commissions)

	var contemplations int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventGroupContemplated, group.ID).
		Count(&contemplations).Error)
	assert.EqualValues(t, 1, contemplations)
}

func TestDuplicateWebhookIsSingleEffect(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	_, members := f.seedGroup(t, 3)

	ref := "pay_" + uuid.NewString()
	input := ConfirmationInput{ExternalRef: ref, ParticipantID: members[1].ID}

	first, err := f.payments.HandleConfirmation(ctx, input)
	require.NoError(t, err)
	require.False(t, first.AlreadyProcessed)
	require.Len(t, first.Commissions, 1)

	second, err := f.payments.HandleConfirmation(ctx, input)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)

	var ledgerRows int64
	require.NoError(t, f.client.DB().Model(&models.CreditTransaction{}).
		Where("user_id = ?", members[0].UserID).
		Count(&ledgerRows).Error)
	assert.EqualValues(t, 1, ledgerRows, "replay must add no ledger rows")
}

func TestSecondRefForPaidParticipantSkipsCascade(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	_, members := f.seedGroup(t, 3)

	_, err := f.payments.HandleConfirmation(ctx, ConfirmationInput{
		ExternalRef:   "pay_" + uuid.NewString(),
		ParticipantID: members[1].ID,
	})
	require.NoError(t, err)

	result, err := f.payments.HandleConfirmation(ctx, ConfirmationInput{
		ExternalRef:   "pay_" + uuid.NewString(),
		ParticipantID: members[1].ID,
	})
	require.NoError(t, err)
	assert.True(t, result.AlreadyPaid)
	assert.Empty(t, result.Commissions)

	var commissions int64
	require.NoError(t, f.client.DB().Model(&models.Commission{}).
		Where("payer_participant_id = ?", members[1].ID).
		Count(&commissions).Error)
	assert.EqualValues(t, 1, commissions)
}

func TestAmountMismatchIsRejected(t *testing.T) {
	f := setupPaymentService(t)
	_, members := f.seedGroup(t, 3)

	_, err := f.payments.HandleConfirmation(context.Background(), ConfirmationInput{
		ExternalRef:   "pay_" + uuid.NewString(),
		ParticipantID: members[0].ID,
		Amount:        decimal.RequireFromString("42.00"),
	})
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperrors.CodeValidation, typed.Code())
}

func TestPayWithCredits(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	_, members := f.seedGroup(t, 3)
	payer := members[1]

	f.fund(t, payer.UserID, "150.00")

	result, err := f.payments.PayWithCredits(ctx, payer.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Participant)
	assert.Equal(t, enums.PaymentStatusPaid, result.Participant.PaymentStatus)

	balance, err := f.ledgerSvc.Balance(ctx, payer.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("50.00")), "got %s", balance)

	// replaying the synthetic ref is a no-op
	replay, err := f.payments.PayWithCredits(ctx, payer.ID)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyProcessed)
}

func TestPayWithCreditsAfterWebhookKeepsBalance(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	_, members := f.seedGroup(t, 3)
	payer := members[1]

	f.fund(t, payer.UserID, "150.00")

	_, err := f.payments.HandleConfirmation(ctx, ConfirmationInput{
		ExternalRef:   "pay_" + uuid.NewString(),
		ParticipantID: payer.ID,
	})
	require.NoError(t, err)

	// the synthetic ref differs from the webhook's, so dedup lets the call
	// through; it must still settle as already paid without a charge
	result, err := f.payments.PayWithCredits(ctx, payer.ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)
	assert.True(t, result.AlreadyPaid)

	balance, err := f.ledgerSvc.Balance(ctx, payer.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("150.00")), "got %s", balance)

	var charges int64
	require.NoError(t, f.client.DB().Model(&models.CreditTransaction{}).
		Where("user_id = ? AND kind = ?", payer.UserID, enums.TransactionKindEntryCharge).
		Count(&charges).Error)
	assert.Zero(t, charges)
}

func TestPayWithCreditsInsufficientBalance(t *testing.T) {
	f := setupPaymentService(t)
	ctx := context.Background()
	_, members := f.seedGroup(t, 3)
	payer := members[2]

	_, err := f.payments.PayWithCredits(ctx, payer.ID)
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperrors.CodeStateConflict, typed.Code())

	// the dedup row rolled back with the rest, so a funded retry succeeds
	f.fund(t, payer.UserID, "100.00")
	result, err := f.payments.PayWithCredits(ctx, payer.ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)
	assert.Equal(t, enums.PaymentStatusPaid, result.Participant.PaymentStatus)
}
