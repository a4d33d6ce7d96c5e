package service

import (
	"context"
	"fmt"
	"time"

	"clubledger-backend/internal/audit"
	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memos attached to reconciliation transactions.
const (
	memoMembershipDue      = "Membership due"
	memoWrongDueCanceled   = "Due amount canceled because of change in membership amount"
	memoStrayDueCanceled   = "Due amount outside of membership canceled"
	actorUpdateLiabilities = "internal: update_liabilities"
)

type liabilityService struct {
	repos           repository.Repositories
	transactor      repository.Transactor
	specials        SpecialAccountsService
	audit           audit.Logger
	intervalMonths  int        // statute of limitations
	accountingStart *time.Time // earliest date dues are generated for
	now             func() time.Time
}

func NewLiabilityService(
	repos repository.Repositories,
	transactor repository.Transactor,
	specials SpecialAccountsService,
	auditLog audit.Logger,
	liabilityIntervalMonths int,
	accountingStart *time.Time,
) LiabilityService {
	return &liabilityService{
		repos:           repos,
		transactor:      transactor,
		specials:        specials,
		audit:           auditLog,
		intervalMonths:  liabilityIntervalMonths,
		accountingStart: accountingStart,
		now:             time.Now,
	}
}

// UpdateLiabilities reconciles the fee dues implied by the member's
// membership history against the persisted ledger state:
//
//  1. enumerate the (date, amount) dues each membership implies, in memory
//  2. fetch the live fee credits within the membership ranges in one query
//  3. diff the two sets
//  4. reverse dues that should not exist, in sorted order
//  5. create dues that are missing, in sorted order
//  6. retire live dues outside every membership range
//
// Cancellations run before creations so an amount change never leaves two
// live dues for the same date. Sorting makes the output deterministic. All
// corrections are reversals; nothing persisted is ever mutated or deleted.
// The whole run is one atomic unit, and re-running without membership
// changes performs no writes.
func (s *liabilityService) UpdateLiabilities(ctx context.Context, memberID int64) error {
	logger.EnterMethod("liabilityService.UpdateLiabilities", "member_id", memberID)

	fees, err := s.specials.Fees(ctx)
	if err != nil {
		return err
	}
	feesReceivable, err := s.specials.FeesReceivable(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	var created, canceled, retired int

	err = s.transactor.InTransaction(ctx, func(r repository.Repositories) error {
		memberships, err := r.Members.ListMemberships(ctx, memberID)
		if err != nil {
			return err
		}

		// Step 1: expected dues and membership ranges, no storage access.
		dueByKey := make(map[domain.DueKey]domain.Due)
		var ranges []domain.DateRange
		for i := range memberships {
			ms := &memberships[i]
			if ms.Amount.IsZero() {
				continue
			}
			rng, dues := ms.DueSchedule(now)
			rng, dues, keep := s.clampToAccountingStart(rng, dues)
			if !keep {
				continue
			}
			ranges = append(ranges, rng)
			for _, due := range dues {
				dueByKey[due.Key()] = due
			}
		}

		// Step 2: live fee credits within the ranges.
		existing, err := r.Transactions.MemberFeeCredits(ctx, memberID, fees.ID, ranges, true)
		if err != nil {
			return err
		}
		existingByKey := make(map[domain.DueKey]repository.FeeCredit, len(existing))
		for _, credit := range existing {
			existingByKey[credit.Key()] = credit
		}

		// Step 3: diff.
		var wrongKeys, missingKeys []domain.DueKey
		for key := range existingByKey {
			if _, ok := dueByKey[key]; !ok {
				wrongKeys = append(wrongKeys, key)
			}
		}
		for key := range dueByKey {
			if _, ok := existingByKey[key]; !ok {
				missingKeys = append(missingKeys, key)
			}
		}
		domain.SortDueKeys(wrongKeys)
		domain.SortDueKeys(missingKeys)

		// Step 4: cancel dues that no longer match any membership.
		for _, key := range wrongKeys {
			if err := s.reverse(ctx, r, existingByKey[key].TransactionID, memoWrongDueCanceled, now); err != nil {
				return err
			}
			canceled++
		}

		// Step 5: create missing dues.
		for _, key := range missingKeys {
			due := dueByKey[key]
			tx := &domain.Transaction{
				Memo:            memoMembershipDue,
				BookingDatetime: &now,
				ValueDatetime:   due.Date,
			}
			tx.Credit(fees.ID, due.Amount, &memberID, "")
			tx.Debit(feesReceivable.ID, due.Amount, &memberID, "")
			if err := r.Transactions.Create(ctx, tx); err != nil {
				return err
			}
			created++
		}

		// Step 6: retire live dues outside every membership range. This is
		// a fresh query on purpose: its predicate is the negation of step
		// 2's, so reusing the step-2 result would miss these bookings.
		strays, err := r.Transactions.MemberFeeCredits(ctx, memberID, fees.ID, ranges, false)
		if err != nil {
			return err
		}
		for _, stray := range strays {
			if err := s.reverse(ctx, r, stray.TransactionID, memoStrayDueCanceled, now); err != nil {
				return err
			}
			retired++
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("liabilityService.UpdateLiabilities", err, "member_id", memberID)
		return err
	}

	if created > 0 || canceled > 0 || retired > 0 {
		s.audit.Log(ctx, actorUpdateLiabilities, audit.ActionTransactionCreated, map[string]any{
			"member_id": memberID,
			"created":   created,
			"canceled":  canceled,
			"retired":   retired,
		})
	}
	logger.ExitMethod("liabilityService.UpdateLiabilities", "member_id", memberID,
		"created", created, "canceled", canceled, "retired", retired)
	return nil
}

// clampToAccountingStart drops dues and range parts before the configured
// accounting start. A membership ending before the accounting start is
// skipped entirely, so its stale dues count as strays and get retired.
func (s *liabilityService) clampToAccountingStart(rng domain.DateRange, dues []domain.Due) (domain.DateRange, []domain.Due, bool) {
	if s.accountingStart == nil {
		return rng, dues, true
	}
	start := domain.Date(*s.accountingStart)
	if rng.End.Before(start) {
		return rng, nil, false
	}
	if rng.Start.Before(start) {
		rng.Start = start
		kept := dues[:0]
		for _, due := range dues {
			if !due.Date.Before(start) {
				kept = append(kept, due)
			}
		}
		dues = kept
	}
	return rng, dues, true
}

// reverse creates the counter-transaction for the given transaction within
// the enclosing unit. The queries feeding the reconciliation only return
// not-yet-reversed transactions, so double cancellation cannot occur here.
func (s *liabilityService) reverse(ctx context.Context, r repository.Repositories, transactionID int64, memo string, now time.Time) error {
	original, err := r.Transactions.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	reversal := original.Reversal(time.Time{}, &now, memo)
	if err := r.Transactions.Create(ctx, reversal); err != nil {
		return fmt.Errorf("reverse transaction %d: %w", transactionID, err)
	}
	return nil
}

// calcBalance computes payments received minus fees owed against the fees
// receivable account, each side independently windowed on value dates.
func (s *liabilityService) calcBalance(ctx context.Context, r repository.Repositories, memberID int64, liabilityCutoff, assetCutoff, liabilityStart, assetStart *time.Time) (decimal.Decimal, error) {
	feesReceivable, err := s.specials.FeesReceivable(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	now := s.now()
	if liabilityCutoff == nil {
		liabilityCutoff = &now
	}
	if assetCutoff == nil {
		assetCutoff = &now
	}

	liability, err := r.Transactions.MemberAccountSum(ctx, memberID, feesReceivable.ID, true,
		repository.BalanceWindow{Start: liabilityStart, End: liabilityCutoff})
	if err != nil {
		return decimal.Zero, err
	}
	asset, err := r.Transactions.MemberAccountSum(ctx, memberID, feesReceivable.ID, false,
		repository.BalanceWindow{Start: assetStart, End: assetCutoff})
	if err != nil {
		return decimal.Zero, err
	}
	return asset.Sub(liability), nil
}

func (s *liabilityService) Balance(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	return s.calcBalance(ctx, s.repos, memberID, nil, nil, nil, nil)
}

// StatuteBarredDebt anchors the limitation period at December 31 of the
// current year, matching the year-granular legal interpretation: the last
// unenforceable date is that anchor minus the liability interval minus one
// year, shifted by futureLimitMonths.
func (s *liabilityService) StatuteBarredDebt(ctx context.Context, memberID int64, futureLimitMonths int) (decimal.Decimal, error) {
	now := s.now()
	limitMonths := s.intervalMonths - futureLimitMonths
	anchor := time.Date(now.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
	cutoff := domain.AddMonths(anchor, -limitMonths).AddDate(-1, 0, 0)

	balance, err := s.calcBalance(ctx, s.repos, memberID, &cutoff, nil, nil, nil)
	if err != nil {
		return decimal.Zero, err
	}
	barred := balance.Neg()
	if barred.IsNegative() {
		return decimal.Zero.Round(2), nil
	}
	return barred.Round(2), nil
}

func (s *liabilityService) CreateBalance(ctx context.Context, memberID int64, start, end time.Time, createIfZero bool) (*domain.MemberBalance, error) {
	var balance *domain.MemberBalance
	err := s.transactor.InTransaction(ctx, func(r repository.Repositories) error {
		existing, err := r.Members.ListBalances(ctx, memberID)
		if err != nil {
			return err
		}
		for i := range existing {
			if existing[i].Overlaps(start, end) {
				return fmt.Errorf("member %d, %s to %s: %w", memberID,
					start.Format("2006-01-02"), end.Format("2006-01-02"), domain.ErrOverlappingBalance)
			}
		}

		amount, err := s.calcBalance(ctx, r, memberID, &end, &end, &start, &start)
		if err != nil {
			return err
		}
		if amount.IsZero() && !createIfZero {
			return nil
		}

		balance = &domain.MemberBalance{
			MemberID:  memberID,
			Reference: uuid.NewString(),
			Amount:    amount.Round(2),
			Start:     start,
			End:       end,
			State:     domain.BalanceStateUnpaid,
		}
		return r.Members.CreateBalance(ctx, balance)
	})
	if err != nil {
		return nil, err
	}
	if balance != nil {
		s.audit.Log(ctx, actorUpdateLiabilities, audit.ActionBalanceCreated, map[string]any{
			"member_id": memberID,
			"reference": balance.Reference,
			"amount":    balance.Amount.StringFixed(2),
		})
	}
	return balance, nil
}

func (s *liabilityService) DonationBalance(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	donations, err := s.specials.Donations(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	now := s.now()
	return s.repos.Transactions.MemberAccountSum(ctx, memberID, donations.ID, false,
		repository.BalanceWindow{End: &now})
}

func (s *liabilityService) FeePayments(ctx context.Context, memberID int64) ([]domain.Booking, error) {
	feesReceivable, err := s.specials.FeesReceivable(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	bookings, err := s.repos.Accounts.Bookings(ctx, feesReceivable.ID, repository.BalanceWindow{End: &now})
	if err != nil {
		return nil, err
	}
	var payments []domain.Booking
	for _, b := range bookings {
		if b.IsDebit() && b.MemberID != nil && *b.MemberID == memberID {
			payments = append(payments, b)
		}
	}
	return payments, nil
}

func (s *liabilityService) IsActive(ctx context.Context, memberID int64) (bool, error) {
	memberships, err := s.repos.Members.ListMemberships(ctx, memberID)
	if err != nil {
		return false, err
	}
	if len(memberships) == 0 {
		return false, nil
	}
	last := memberships[len(memberships)-1]
	return last.IsActive(s.now()), nil
}
