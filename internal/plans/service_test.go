package plans

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/contemplaapp/contempla-backend/pkg/errors"
)

func setupPlansTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  full_price NUMERIC NOT NULL,
  entry_price NUMERIC NOT NULL,
  capacity INTEGER NOT NULL,
  duration_days INTEGER,
  created_at DATETIME
);`).Error)
	return db
}

func newPlanService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(NewRepository(setupPlansTestDB(t)))
	require.NoError(t, err)
	return svc
}

func TestCreateAndGetPlan(t *testing.T) {
	svc := newPlanService(t)
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, CreatePlanInput{
		Name:       "Motocicleta 160cc",
		FullPrice:  decimal.RequireFromString("12000.00"),
		EntryPrice: decimal.RequireFromString("1200.00"),
		Capacity:   10,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, plan.ID)

	got, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Name, got.Name)
	assert.True(t, got.EntryPrice.Equal(decimal.RequireFromString("1200.00")))
}

func TestGetPlanNotFound(t *testing.T) {
	svc := newPlanService(t)

	_, err := svc.GetPlan(context.Background(), uuid.New())
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperrors.CodeNotFound, typed.Code())
}

func TestCreatePlanValidation(t *testing.T) {
	svc := newPlanService(t)
	ctx := context.Background()

	cases := map[string]CreatePlanInput{
		"missing name": {
			FullPrice:  decimal.NewFromInt(100),
			EntryPrice: decimal.NewFromInt(10),
			Capacity:   10,
		},
		"entry above full": {
			Name:       "Plan",
			FullPrice:  decimal.NewFromInt(10),
			EntryPrice: decimal.NewFromInt(100),
			Capacity:   10,
		},
		"capacity too small": {
			Name:       "Plan",
			FullPrice:  decimal.NewFromInt(100),
			EntryPrice: decimal.NewFromInt(10),
			Capacity:   1,
		},
		"zero full price": {
			Name:       "Plan",
			FullPrice:  decimal.Zero,
			EntryPrice: decimal.NewFromInt(10),
			Capacity:   10,
		},
	}
	for name, input := range cases {
		_, err := svc.CreatePlan(ctx, input)
		require.Error(t, err, name)
		typed := apperrors.As(err)
		require.NotNil(t, typed, name)
		assert.Equal(t, apperrors.CodeValidation, typed.Code(), name)
	}
}

func TestListPlans(t *testing.T) {
	svc := newPlanService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreatePlan(ctx, CreatePlanInput{
			Name:       "Plan",
			FullPrice:  decimal.NewFromInt(1000),
			EntryPrice: decimal.NewFromInt(100),
			Capacity:   10,
		})
		require.NoError(t, err)
	}

	rows, err := svc.ListPlans(ctx, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rows), 3)
}
