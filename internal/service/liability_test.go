package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubledger-backend/internal/audit"
	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func int64Ptr(v int64) *int64 { return &v }

type liabilityFixture struct {
	store    *memStore
	specials SpecialAccountsService
	svc      *liabilityService
	ctx      context.Context
}

func newLiabilityFixture(t *testing.T, now time.Time, intervalMonths int, accountingStart *time.Time) *liabilityFixture {
	t.Helper()
	store := newMemStore()
	specials := NewSpecialAccountsService(store.repositories(), store, audit.NewNopLogger())
	svc := NewLiabilityService(store.repositories(), store, specials, audit.NewNopLogger(), intervalMonths, accountingStart).(*liabilityService)
	svc.now = func() time.Time { return now }
	return &liabilityFixture{store: store, specials: specials, svc: svc, ctx: context.Background()}
}

func (f *liabilityFixture) addMembership(t *testing.T, memberID int64, start time.Time, end *time.Time, amount int64, interval int) *domain.Membership {
	t.Helper()
	ms := &domain.Membership{
		MemberID:       memberID,
		Start:          start,
		End:            end,
		Amount:         decimal.NewFromInt(amount),
		IntervalMonths: interval,
	}
	require.NoError(t, f.store.repositories().Members.CreateMembership(f.ctx, ms))
	return ms
}

// liveDues returns the not-yet-reversed fee credits for the member,
// regardless of date.
func (f *liabilityFixture) liveDues(t *testing.T, memberID int64) []repository.FeeCredit {
	t.Helper()
	fees, err := f.specials.Fees(f.ctx)
	require.NoError(t, err)
	credits, err := f.store.repositories().Transactions.MemberFeeCredits(f.ctx, memberID, fees.ID, nil, true)
	require.NoError(t, err)
	return credits
}

func TestUpdateLiabilities_CreatesDues(t *testing.T) {
	now := date(2024, 6, 15)
	f := newLiabilityFixture(t, now, 36, nil)
	end := date(2024, 2, 1)
	f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)

	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

	dues := f.liveDues(t, 7)
	require.Len(t, dues, 2)
	assert.Equal(t, date(2024, 1, 1), domain.Date(dues[0].ValueDate))
	assert.Equal(t, date(2024, 2, 1), domain.Date(dues[1].ValueDate))
	assert.Equal(t, "20.00", dues[0].Amount.StringFixed(2))

	// Every created transaction balances fees against fees receivable.
	for _, due := range dues {
		tx, err := f.store.repositories().Transactions.GetByID(f.ctx, due.TransactionID)
		require.NoError(t, err)
		assert.True(t, tx.IsBalanced())
		require.Len(t, tx.Bookings, 2)
		assert.Equal(t, "Membership due", tx.Memo)
	}

	balance, err := f.svc.Balance(f.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "-40.00", balance.StringFixed(2))
}

func TestUpdateLiabilities_Idempotent(t *testing.T) {
	now := date(2024, 6, 15)
	f := newLiabilityFixture(t, now, 36, nil)
	end := date(2024, 2, 1)
	f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)

	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))
	count := f.store.transactionCount()

	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))
	assert.Equal(t, count, f.store.transactionCount())
}

func TestUpdateLiabilities_ExtendThenRevert(t *testing.T) {
	now := date(2024, 6, 15)
	f := newLiabilityFixture(t, now, 36, nil)
	end := date(2024, 2, 1)
	ms := f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)

	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))
	require.Len(t, f.liveDues(t, 7), 2)

	// Extending the membership by one month adds exactly one due.
	extended := date(2024, 3, 1)
	ms.End = &extended
	require.NoError(t, f.store.repositories().Members.UpdateMembership(f.ctx, ms))
	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))
	require.Len(t, f.liveDues(t, 7), 3)

	balance, err := f.svc.Balance(f.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "-60.00", balance.StringFixed(2))

	// Reverting the extension retires the March due with a reversal; the
	// ledger only ever grows.
	ms.End = &end
	require.NoError(t, f.store.repositories().Members.UpdateMembership(f.ctx, ms))
	before := f.store.transactionCount()
	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

	assert.Equal(t, before+1, f.store.transactionCount())
	require.Len(t, f.liveDues(t, 7), 2)

	balance, err = f.svc.Balance(f.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "-40.00", balance.StringFixed(2))
}

func TestUpdateLiabilities_AmountChange(t *testing.T) {
	now := date(2024, 6, 15)
	f := newLiabilityFixture(t, now, 36, nil)
	end := date(2024, 2, 1)
	ms := f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)

	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

	ms.Amount = decimal.NewFromInt(30)
	require.NoError(t, f.store.repositories().Members.UpdateMembership(f.ctx, ms))
	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

	dues := f.liveDues(t, 7)
	require.Len(t, dues, 2)
	for _, due := range dues {
		assert.Equal(t, "30.00", due.Amount.StringFixed(2))
	}

	// Two original dues, two cancellations, two corrected dues.
	assert.Equal(t, 6, f.store.transactionCount())

	balance, err := f.svc.Balance(f.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "-60.00", balance.StringFixed(2))
}

func TestUpdateLiabilities_ZeroAmountMembership(t *testing.T) {
	now := date(2024, 6, 15)
	f := newLiabilityFixture(t, now, 36, nil)
	end := date(2024, 3, 1)
	f.addMembership(t, 7, date(2024, 1, 1), &end, 0, domain.IntervalMonthly)

	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))
	assert.Equal(t, 0, f.store.transactionCount())
}

func TestUpdateLiabilities_OngoingMembership(t *testing.T) {
	now := date(2024, 3, 10)
	f := newLiabilityFixture(t, now, 36, nil)
	f.addMembership(t, 7, date(2024, 1, 1), nil, 20, domain.IntervalMonthly)

	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))
	assert.Len(t, f.liveDues(t, 7), 3) // January through March
}

func TestUpdateLiabilities_AccountingStartClamp(t *testing.T) {
	now := date(2024, 6, 15)
	f := newLiabilityFixture(t, now, 36, nil)
	end := date(2024, 3, 1)
	f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)

	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))
	require.Len(t, f.liveDues(t, 7), 3)

	// A later reconciliation under an accounting start retires the dues
	// that now fall before it.
	accountingStart := date(2024, 2, 1)
	clamped := NewLiabilityService(f.store.repositories(), f.store, f.specials, audit.NewNopLogger(), 36, &accountingStart).(*liabilityService)
	clamped.now = func() time.Time { return now }
	require.NoError(t, clamped.UpdateLiabilities(f.ctx, 7))

	dues := f.liveDues(t, 7)
	require.Len(t, dues, 2)
	assert.Equal(t, date(2024, 2, 1), domain.Date(dues[0].ValueDate))
}

func TestUpdateLiabilities_PaymentsUntouched(t *testing.T) {
	now := date(2024, 6, 15)
	f := newLiabilityFixture(t, now, 36, nil)
	end := date(2024, 2, 1)
	f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)
	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

	// A payment: bank receives money, fees receivable is credited.
	feesReceivable, err := f.specials.FeesReceivable(f.ctx)
	require.NoError(t, err)
	bank, err := f.specials.Bank(f.ctx)
	require.NoError(t, err)

	payment := &domain.Transaction{Memo: "Fee payment", ValueDatetime: date(2024, 1, 10)}
	payment.Debit(bank.ID, decimal.NewFromInt(20), int64Ptr(7), "")
	payment.Credit(feesReceivable.ID, decimal.NewFromInt(20), int64Ptr(7), "")
	require.NoError(t, f.store.repositories().Transactions.Create(f.ctx, payment))

	before := f.store.transactionCount()
	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))
	assert.Equal(t, before, f.store.transactionCount())

	balance, err := f.svc.Balance(f.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "-20.00", balance.StringFixed(2))
}

func TestBalance_NewMemberIsZero(t *testing.T) {
	f := newLiabilityFixture(t, date(2024, 6, 15), 36, nil)
	balance, err := f.svc.Balance(f.ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestStatuteBarredDebt(t *testing.T) {
	now := date(2024, 6, 15)

	t.Run("OldDuesAreBarred", func(t *testing.T) {
		f := newLiabilityFixture(t, now, 36, nil)
		end := date(2019, 6, 1)
		f.addMembership(t, 7, date(2019, 1, 1), &end, 10, domain.IntervalMonthly)
		require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

		// Cutoff is 2020-12-31: all six 2019 dues lie before it.
		barred, err := f.svc.StatuteBarredDebt(f.ctx, 7, 0)
		require.NoError(t, err)
		assert.Equal(t, "60.00", barred.StringFixed(2))
	})

	t.Run("NeverNegative", func(t *testing.T) {
		f := newLiabilityFixture(t, now, 36, nil)
		feesReceivable, err := f.specials.FeesReceivable(f.ctx)
		require.NoError(t, err)
		bank, err := f.specials.Bank(f.ctx)
		require.NoError(t, err)

		// A payment without any due leaves a positive member balance.
		payment := &domain.Transaction{ValueDatetime: date(2019, 1, 10)}
		payment.Debit(bank.ID, decimal.NewFromInt(50), int64Ptr(7), "")
		payment.Credit(feesReceivable.ID, decimal.NewFromInt(50), int64Ptr(7), "")
		require.NoError(t, f.store.repositories().Transactions.Create(f.ctx, payment))

		barred, err := f.svc.StatuteBarredDebt(f.ctx, 7, 0)
		require.NoError(t, err)
		assert.True(t, barred.IsZero())
	})

	t.Run("GrowsWithFutureLimit", func(t *testing.T) {
		f := newLiabilityFixture(t, now, 36, nil)
		oldEnd := date(2019, 6, 1)
		f.addMembership(t, 7, date(2019, 1, 1), &oldEnd, 10, domain.IntervalMonthly)
		laterEnd := date(2021, 8, 1)
		f.addMembership(t, 7, date(2021, 6, 1), &laterEnd, 10, domain.IntervalMonthly)
		require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

		barredNow, err := f.svc.StatuteBarredDebt(f.ctx, 7, 0)
		require.NoError(t, err)
		barredLater, err := f.svc.StatuteBarredDebt(f.ctx, 7, 12)
		require.NoError(t, err)

		// Looking twelve months ahead moves the cutoff to 2021-12-31 and
		// pulls the 2021 dues into the barred amount.
		assert.Equal(t, "60.00", barredNow.StringFixed(2))
		assert.Equal(t, "90.00", barredLater.StringFixed(2))
		assert.True(t, barredLater.GreaterThanOrEqual(barredNow))
	})
}

func TestCreateBalance(t *testing.T) {
	now := date(2024, 6, 15)

	t.Run("SnapshotsPeriodAmount", func(t *testing.T) {
		f := newLiabilityFixture(t, now, 36, nil)
		end := date(2024, 2, 1)
		f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)
		require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

		balance, err := f.svc.CreateBalance(f.ctx, 7, date(2024, 1, 1), date(2024, 1, 31), false)
		require.NoError(t, err)
		require.NotNil(t, balance)
		assert.Equal(t, "-20.00", balance.Amount.StringFixed(2))
		assert.Equal(t, domain.BalanceStateUnpaid, balance.State)
		assert.NotEmpty(t, balance.Reference)
	})

	t.Run("RefusesOverlap", func(t *testing.T) {
		f := newLiabilityFixture(t, now, 36, nil)
		end := date(2024, 2, 1)
		f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)
		require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

		_, err := f.svc.CreateBalance(f.ctx, 7, date(2024, 1, 1), date(2024, 1, 31), false)
		require.NoError(t, err)

		_, err = f.svc.CreateBalance(f.ctx, 7, date(2024, 1, 15), date(2024, 2, 15), false)
		assert.ErrorIs(t, err, domain.ErrOverlappingBalance)

		// An adjacent, non-overlapping period is fine.
		balance, err := f.svc.CreateBalance(f.ctx, 7, date(2024, 2, 1), date(2024, 2, 29), false)
		require.NoError(t, err)
		require.NotNil(t, balance)
		assert.Equal(t, "-20.00", balance.Amount.StringFixed(2))
	})

	t.Run("SkipsZeroUnlessForced", func(t *testing.T) {
		f := newLiabilityFixture(t, now, 36, nil)

		balance, err := f.svc.CreateBalance(f.ctx, 7, date(2024, 3, 1), date(2024, 3, 31), false)
		require.NoError(t, err)
		assert.Nil(t, balance)

		balance, err = f.svc.CreateBalance(f.ctx, 7, date(2024, 3, 1), date(2024, 3, 31), true)
		require.NoError(t, err)
		require.NotNil(t, balance)
		assert.True(t, balance.Amount.IsZero())
	})
}

func TestDonationBalance(t *testing.T) {
	f := newLiabilityFixture(t, date(2024, 6, 15), 36, nil)
	donations, err := f.specials.Donations(f.ctx)
	require.NoError(t, err)
	bank, err := f.specials.Bank(f.ctx)
	require.NoError(t, err)

	donation := &domain.Transaction{Memo: "Donation", ValueDatetime: date(2024, 2, 1)}
	donation.Debit(bank.ID, decimal.NewFromInt(15), int64Ptr(7), "")
	donation.Credit(donations.ID, decimal.NewFromInt(15), int64Ptr(7), "")
	require.NoError(t, f.store.repositories().Transactions.Create(f.ctx, donation))

	total, err := f.svc.DonationBalance(f.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "15.00", total.StringFixed(2))

	other, err := f.svc.DonationBalance(f.ctx, 8)
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func TestFeePayments(t *testing.T) {
	now := date(2024, 6, 15)
	f := newLiabilityFixture(t, now, 36, nil)
	end := date(2024, 2, 1)
	f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)
	require.NoError(t, f.svc.UpdateLiabilities(f.ctx, 7))

	feesReceivable, err := f.specials.FeesReceivable(f.ctx)
	require.NoError(t, err)
	bank, err := f.specials.Bank(f.ctx)
	require.NoError(t, err)

	payment := &domain.Transaction{ValueDatetime: date(2024, 1, 10)}
	payment.Debit(bank.ID, decimal.NewFromInt(20), int64Ptr(7), "")
	payment.Credit(feesReceivable.ID, decimal.NewFromInt(20), int64Ptr(7), "")
	require.NoError(t, f.store.repositories().Transactions.Create(f.ctx, payment))

	// The dues debit the receivable account; the payment credits it and
	// therefore stays out of the result.
	payments, err := f.svc.FeePayments(f.ctx, 7)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	for _, p := range payments {
		assert.True(t, p.IsDebit())
		assert.Equal(t, "20.00", p.Amount.StringFixed(2))
		assert.Equal(t, int64(7), *p.MemberID)
	}
}

func TestIsActive(t *testing.T) {
	now := date(2024, 6, 15)

	t.Run("OngoingMembership", func(t *testing.T) {
		f := newLiabilityFixture(t, now, 36, nil)
		f.addMembership(t, 7, date(2024, 1, 1), nil, 20, domain.IntervalMonthly)
		active, err := f.svc.IsActive(f.ctx, 7)
		require.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("EndedMembership", func(t *testing.T) {
		f := newLiabilityFixture(t, now, 36, nil)
		end := date(2024, 2, 1)
		f.addMembership(t, 7, date(2024, 1, 1), &end, 20, domain.IntervalMonthly)
		active, err := f.svc.IsActive(f.ctx, 7)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("NoMemberships", func(t *testing.T) {
		f := newLiabilityFixture(t, now, 36, nil)
		active, err := f.svc.IsActive(f.ctx, 7)
		require.NoError(t, err)
		assert.False(t, active)
	})
}
