package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/pkg/db"
	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	apperrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/pagination"
)

// Service defines the append-only credit ledger operations.
type Service interface {
	// ApplyTx appends a ledger entry and updates the materialized balance
	// inside the caller's transaction. Debits that would push the balance
	// below zero are rejected.
	ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.CreditTransaction, error)
	Withdraw(ctx context.Context, input WithdrawInput) (*models.CreditTransaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.CreditTransaction, string, error)
}

// ApplyInput captures one balance mutation. Amount is a positive magnitude;
// Kind decides the sign.
type ApplyInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Kind        enums.TransactionKind
	ReferenceID string
}

// WithdrawInput requests a payout debit against the user's credit balance.
type WithdrawInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	ReferenceID string
}

type service struct {
	client *db.Client
	repo   Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(client *db.Client, repo Repository) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{client: client, repo: repo}, nil
}

func (s *service) ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.CreditTransaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validateApply(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	balance, err := repo.LockBalance(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	next := balance.Balance
	if input.Kind.IsDebit() {
		next = next.Sub(input.Amount)
	} else {
		next = next.Add(input.Amount)
	}
	if next.IsNegative() {
		return nil, apperrors.New(apperrors.CodeStateConflict, "insufficient balance").
			WithDetails(map[string]string{
				"balance":  balance.Balance.StringFixed(2),
				"required": input.Amount.StringFixed(2),
			})
	}

	entry := &models.CreditTransaction{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Amount:      input.Amount,
		Kind:        input.Kind,
		ReferenceID: input.ReferenceID,
	}
	if err := repo.Append(ctx, entry); err != nil {
		return nil, err
	}

	balance.Balance = next
	if err := repo.SaveBalance(ctx, balance); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Withdraw(ctx context.Context, input WithdrawInput) (*models.CreditTransaction, error) {
	var entry *models.CreditTransaction
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.ApplyTx(ctx, tx, ApplyInput{
			UserID:      input.UserID,
			Amount:      input.Amount,
			Kind:        enums.TransactionKindWithdrawal,
			ReferenceID: input.ReferenceID,
		})
		if err != nil {
			return err
		}
		entry = applied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if userID == uuid.Nil {
		return decimal.Zero, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Balance, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.CreditTransaction, string, error) {
	if userID == uuid.Nil {
		return nil, "", apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByUser(ctx, userID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func validateApply(input ApplyInput) error {
	if input.UserID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if !input.Kind.IsValid() {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid transaction kind %q", input.Kind))
	}
	if !input.Amount.IsPositive() {
		return apperrors.New(apperrors.CodeValidation, "amount must be positive")
	}
	if input.ReferenceID == "" {
		return apperrors.New(apperrors.CodeValidation, "reference id is required")
	}
	return nil
}
