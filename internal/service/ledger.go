package service

import (
	"context"
	"fmt"
	"time"

	"clubledger-backend/internal/audit"
	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"
)

type ledgerService struct {
	repos      repository.Repositories
	transactor repository.Transactor
	audit      audit.Logger
	now        func() time.Time
}

func NewLedgerService(repos repository.Repositories, transactor repository.Transactor, auditLog audit.Logger) LedgerService {
	return &ledgerService{
		repos:      repos,
		transactor: transactor,
		audit:      auditLog,
		now:        time.Now,
	}
}

func (s *ledgerService) CreateAccount(ctx context.Context, category domain.AccountCategory, name, actor string) (*domain.Account, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("unknown account category %q", category)
	}
	account := &domain.Account{Category: category, Name: name}
	if err := s.repos.Accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, actor, audit.ActionAccountCreated, map[string]any{
		"account_id": account.ID,
		"category":   string(category),
	})
	return account, nil
}

func (s *ledgerService) DeleteAccount(ctx context.Context, id int64, actor string) error {
	return s.repos.Accounts.Delete(ctx, id)
}

func (s *ledgerService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.repos.Accounts.GetByID(ctx, id)
}

func (s *ledgerService) AccountBalances(ctx context.Context, accountID int64, start, end *time.Time, peerAccountID *int64) (domain.Balances, error) {
	account, err := s.repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return domain.ZeroBalances(), err
	}
	if end == nil {
		now := s.now()
		end = &now
	}
	debit, credit, err := s.repos.Accounts.Balances(ctx, accountID, repository.BalanceWindow{Start: start, End: end}, peerAccountID)
	if err != nil {
		return domain.ZeroBalances(), err
	}
	return domain.NewBalances(account.Category, debit, credit), nil
}

func (s *ledgerService) AccountBookings(ctx context.Context, accountID int64) ([]domain.Booking, error) {
	return s.repos.Accounts.Bookings(ctx, accountID, repository.BalanceWindow{})
}

func (s *ledgerService) UnbalancedTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	return s.repos.Transactions.ListUnbalanced(ctx, accountID)
}

func (s *ledgerService) CreateTransaction(ctx context.Context, tx *domain.Transaction, actor string) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	err := s.transactor.InTransaction(ctx, func(r repository.Repositories) error {
		return r.Transactions.Create(ctx, tx)
	})
	if err != nil {
		return err
	}
	s.audit.Log(ctx, actor, audit.ActionTransactionCreated, map[string]any{
		"transaction_id": tx.ID,
		"bookings":       len(tx.Bookings),
	})
	for i := range tx.Bookings {
		b := &tx.Bookings[i]
		s.audit.Log(ctx, actor, audit.ActionBookingCreated, map[string]any{
			"transaction_id": tx.ID,
			"booking_id":     b.ID,
			"account_id":     b.AccountID(),
			"amount":         b.Amount.String(),
		})
	}
	return nil
}

func (s *ledgerService) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return s.repos.Transactions.GetByID(ctx, id)
}

// ReverseTransaction creates and persists the correcting transaction for
// the given transaction as one atomic unit. The original keeps its bookings
// untouched; the ledger stays append-only.
func (s *ledgerService) ReverseTransaction(ctx context.Context, id int64, valueDatetime *time.Time, memo, actor string) (*domain.Transaction, error) {
	logger.EnterMethod("ledgerService.ReverseTransaction", "transaction_id", id)

	var reversal *domain.Transaction
	err := s.transactor.InTransaction(ctx, func(r repository.Repositories) error {
		original, err := r.Transactions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		reversed, err := r.Transactions.HasActiveReversal(ctx, id)
		if err != nil {
			return err
		}
		if reversed {
			return fmt.Errorf("transaction %d: %w", id, domain.ErrAlreadyReversed)
		}

		var valueDT time.Time
		if valueDatetime != nil {
			valueDT = *valueDatetime
		}
		now := s.now()
		reversal = original.Reversal(valueDT, &now, memo)
		return r.Transactions.Create(ctx, reversal)
	})
	if err != nil {
		logger.ExitMethodWithError("ledgerService.ReverseTransaction", err, "transaction_id", id)
		return nil, err
	}

	s.audit.Log(ctx, actor, audit.ActionTransactionReversed, map[string]any{
		"transaction_id": id,
		"reversed_by":    reversal.ID,
	})
	logger.ExitMethod("ledgerService.ReverseTransaction", "transaction_id", id, "reversal_id", reversal.ID)
	return reversal, nil
}
