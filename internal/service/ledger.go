package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Djju69/KARMABOT1-sub001/internal/apperr"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
	"github.com/Djju69/KARMABOT1-sub001/internal/repository"
)

// LedgerRepo is the slice of the repository the ledger needs. Satisfied by
// *repository.Repository; tests substitute an in-memory store.
type LedgerRepo interface {
	WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	EnsureBalance(ctx context.Context, accountID int64) (*model.Balance, error)
	LockBalance(ctx context.Context, tx *sqlx.Tx, accountID int64) (*model.Balance, error)
	CreditBalance(ctx context.Context, q sqlx.ExtContext, accountID int64, points float64) (*model.Balance, error)
	DebitBalance(ctx context.Context, tx *sqlx.Tx, accountID int64, points float64) error
	InsertTransaction(ctx context.Context, q sqlx.ExtContext, t *model.Transaction) error
	ListTransactions(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, int, error)
	SummarizeTransactions(ctx context.Context, f model.TransactionFilter) (*model.TransactionSummary, error)
	PartnerNamesByTransaction(ctx context.Context, txIDs []any) (map[string]string, error)
}

// LedgerService owns balances and the append-only transaction log. It is the
// only component that mutates balances.
type LedgerService struct {
	repo LedgerRepo
}

func NewLedgerService(repo LedgerRepo) *LedgerService {
	return &LedgerService{repo: repo}
}

type AddPointsInput struct {
	AccountID    int64
	Points       float64
	Type         model.TransactionType
	ActivityType *string
	ReferenceID  *uuid.UUID
	Description  *string
}

// AddPoints credits points in its own unit of work.
func (s *LedgerService) AddPoints(ctx context.Context, in AddPointsInput) (*model.Transaction, error) {
	var t *model.Transaction
	err := s.repo.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		t, err = s.AddPointsTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// AddPointsTx credits points inside a caller-owned transaction, so the bonus
// engine can commit several credits plus its audit rows atomically. The
// balance upsert and the transaction insert stay one atomic unit either way.
func (s *LedgerService) AddPointsTx(ctx context.Context, q sqlx.ExtContext, in AddPointsInput) (*model.Transaction, error) {
	if in.Points <= 0 {
		return nil, apperr.Validationf("сумма начисления должна быть положительной")
	}

	if _, err := s.repo.CreditBalance(ctx, q, in.AccountID, in.Points); err != nil {
		return nil, apperr.Wrap(err, "credit balance")
	}

	t := &model.Transaction{
		AccountID:    in.AccountID,
		Points:       in.Points,
		Type:         in.Type,
		ActivityType: in.ActivityType,
		ReferenceID:  in.ReferenceID,
		Description:  in.Description,
	}
	if err := s.repo.InsertTransaction(ctx, q, t); err != nil {
		return nil, apperr.Wrap(err, "insert transaction")
	}
	return t, nil
}

// SpendPoints debits available points. The row lock held from the balance
// read through the update prevents lost updates between concurrent spends.
func (s *LedgerService) SpendPoints(ctx context.Context, accountID int64, points float64, description string) (*model.Transaction, error) {
	if points <= 0 {
		return nil, apperr.Validationf("сумма списания должна быть положительной")
	}

	var t *model.Transaction
	err := s.repo.WithinTx(ctx, func(tx *sqlx.Tx) error {
		balance, err := s.repo.LockBalance(ctx, tx, accountID)
		if err != nil {
			if errors.Is(err, repository.ErrBalanceNotFound) {
				return apperr.NotFoundf("баланс не найден")
			}
			return apperr.Wrap(err, "lock balance")
		}

		if balance.AvailablePoints < points {
			return apperr.InsufficientBalancef("недостаточно баллов: доступно %.2f, требуется %.2f",
				balance.AvailablePoints, points)
		}

		if err := s.repo.DebitBalance(ctx, tx, accountID, points); err != nil {
			return apperr.Wrap(err, "debit balance")
		}

		var desc *string
		if description != "" {
			desc = &description
		}
		t = &model.Transaction{
			AccountID:   accountID,
			Points:      -points,
			Type:        model.TransactionTypeSpend,
			Description: desc,
		}
		if err := s.repo.InsertTransaction(ctx, tx, t); err != nil {
			return apperr.Wrap(err, "insert transaction")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetBalance returns the balance, lazily materializing a zero row.
func (s *LedgerService) GetBalance(ctx context.Context, accountID int64) (*model.Balance, error) {
	balance, err := s.repo.EnsureBalance(ctx, accountID)
	if err != nil {
		return nil, apperr.Wrap(err, "ensure balance")
	}
	return balance, nil
}

// GetTransactionHistory returns one page plus aggregates over the whole
// filtered set.
func (s *LedgerService) GetTransactionHistory(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	items, total, err := s.repo.ListTransactions(ctx, f)
	if err != nil {
		return nil, apperr.Wrap(err, "list transactions")
	}

	summary, err := s.repo.SummarizeTransactions(ctx, f)
	if err != nil {
		return nil, apperr.Wrap(err, "summarize transactions")
	}

	return &model.TransactionPage{Items: items, Total: total, Summary: *summary}, nil
}

// AttachPartnerNames enriches geo check-in rows with partner display names.
// Read-side composition only; the ledger core stays unaware of partners.
func (s *LedgerService) AttachPartnerNames(ctx context.Context, items []model.Transaction) error {
	var ids []any
	for i := range items {
		if items[i].Type == model.TransactionTypeActivity &&
			items[i].ActivityType != nil && *items[i].ActivityType == model.ActivityGeoCheckin {
			ids = append(ids, items[i].ID.String())
		}
	}
	if len(ids) == 0 {
		return nil
	}

	names, err := s.repo.PartnerNamesByTransaction(ctx, ids)
	if err != nil {
		return apperr.Wrap(err, "join partner names")
	}
	for i := range items {
		if name, ok := names[items[i].ID.String()]; ok {
			n := name
			items[i].PartnerName = &n
		}
	}
	return nil
}
