package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	"github.com/contemplaapp/contempla-backend/pkg/pagination"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	creditTransactions := `
CREATE TABLE IF NOT EXISTS credit_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  kind TEXT NOT NULL,
  reference_id TEXT NOT NULL,
  created_at DATETIME
);`
	userBalances := `
CREATE TABLE IF NOT EXISTS user_balances (
  user_id TEXT PRIMARY KEY,
  balance NUMERIC NOT NULL DEFAULT 0,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(creditTransactions).Error)
	require.NoError(t, db.Exec(userBalances).Error)
	return db
}

func TestLockBalanceCreatesZeroRow(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	balance, err := repo.LockBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.IsZero())

	// second call finds the same row
	balance.Balance = decimal.RequireFromString("12.50")
	require.NoError(t, repo.SaveBalance(ctx, balance))

	again, err := repo.LockBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, again.Balance.Equal(decimal.RequireFromString("12.50")))
}

func TestGetBalanceMissingRowIsZero(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)

	balance, err := repo.GetBalance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, balance.Balance.IsZero())
}

func TestListByUserPaginates(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := models.CreditTransaction{
			ID:          uuid.New(),
			UserID:      userID,
			Amount:      decimal.NewFromInt(int64(i + 1)),
			Kind:        enums.TransactionKindCommissionCredit,
			ReferenceID: "commission:" + uuid.NewString(),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&entry).Error)
	}

	first, err := repo.ListByUser(ctx, userID, 3, nil)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.True(t, first[0].CreatedAt.After(first[2].CreatedAt))

	last := first[len(first)-1]
	rest, err := repo.ListByUser(ctx, userID, 10, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	for _, row := range rest {
		assert.True(t, row.CreatedAt.Before(last.CreatedAt))
	}
}
