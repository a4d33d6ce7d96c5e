package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"clubledger-backend/internal/audit"
	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"
)

type specialAccountKey struct {
	tag      string
	category domain.AccountCategory
}

type specialAccountsService struct {
	repos      repository.Repositories
	transactor repository.Transactor
	audit      audit.Logger

	mu    sync.RWMutex
	cache map[specialAccountKey]*domain.Account
}

func NewSpecialAccountsService(repos repository.Repositories, transactor repository.Transactor, auditLog audit.Logger) SpecialAccountsService {
	return &specialAccountsService{
		repos:      repos,
		transactor: transactor,
		audit:      auditLog,
		cache:      make(map[specialAccountKey]*domain.Account),
	}
}

// SpecialAccount resolves the account carrying the tag within the category,
// creating and tagging one on first use. Resolution is idempotent: the
// uniqueness guarantee lives in the storage constraints, the in-process
// cache only saves queries. An untagged account matching the display name
// is adopted and tagged, which migrates databases predating the tag scheme.
func (s *specialAccountsService) SpecialAccount(ctx context.Context, tag string, category domain.AccountCategory, name string) (*domain.Account, error) {
	tag = strings.ToLower(tag)
	key := specialAccountKey{tag: tag, category: category}

	s.mu.RLock()
	cached := s.cache[key]
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	var account *domain.Account
	var created bool
	err := s.transactor.InTransaction(ctx, func(r repository.Repositories) error {
		if err := r.Accounts.EnsureTag(ctx, tag); err != nil {
			return fmt.Errorf("ensure tag %q: %w", tag, err)
		}

		accounts, err := r.Accounts.ListByTag(ctx, tag, category)
		if err != nil {
			return err
		}
		if len(accounts) > 1 {
			return fmt.Errorf("tag %q, category %q: %w", tag, category, domain.ErrAmbiguousSpecialAccount)
		}
		if len(accounts) == 1 {
			account = &accounts[0]
			return nil
		}

		account, err = r.Accounts.FindByCategoryAndName(ctx, category, name)
		if err != nil {
			return err
		}
		if account == nil {
			account = &domain.Account{Category: category, Name: name}
			if err := r.Accounts.Create(ctx, account); err != nil {
				return fmt.Errorf("create special account %q: %w", tag, err)
			}
			created = true
		}
		return r.Accounts.TagAccount(ctx, account.ID, tag)
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.audit.Log(ctx, "internal: special account resolution", audit.ActionAccountCreated, map[string]any{
			"account_id": account.ID,
			"tag":        tag,
			"category":   string(category),
		})
		logger.Info("Created special account", "tag", tag, "category", category, "account_id", account.ID)
	}

	s.mu.Lock()
	s.cache[key] = account
	s.mu.Unlock()
	return account, nil
}

func (s *specialAccountsService) Fees(ctx context.Context) (*domain.Account, error) {
	return s.SpecialAccount(ctx, domain.TagFees, domain.AccountCategoryIncome, "Member fees")
}

func (s *specialAccountsService) FeesReceivable(ctx context.Context) (*domain.Account, error) {
	return s.SpecialAccount(ctx, domain.TagFeesReceivable, domain.AccountCategoryAsset, "Member fees receivable")
}

func (s *specialAccountsService) Donations(ctx context.Context) (*domain.Account, error) {
	return s.SpecialAccount(ctx, domain.TagDonations, domain.AccountCategoryIncome, "Donations")
}

func (s *specialAccountsService) Bank(ctx context.Context) (*domain.Account, error) {
	return s.SpecialAccount(ctx, domain.TagBank, domain.AccountCategoryAsset, "Bank")
}

func (s *specialAccountsService) OpeningBalance(ctx context.Context) (*domain.Account, error) {
	return s.SpecialAccount(ctx, domain.TagOpeningBalance, domain.AccountCategoryAsset, "Opening balance")
}

func (s *specialAccountsService) LostIncome(ctx context.Context) (*domain.Account, error) {
	return s.SpecialAccount(ctx, domain.TagLostIncome, domain.AccountCategoryExpense, "Lost income")
}
