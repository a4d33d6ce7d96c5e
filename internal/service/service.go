package service

import (
	"context"
	"time"

	"clubledger-backend/internal/domain"

	"github.com/shopspring/decimal"
)

type LedgerService interface {
	CreateAccount(ctx context.Context, category domain.AccountCategory, name, actor string) (*domain.Account, error)
	DeleteAccount(ctx context.Context, id int64, actor string) error
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	// AccountBalances aggregates debit, credit and net totals for the
	// account over [start, end] on value dates. A nil end defaults to now;
	// a nil start leaves the window open. peerAccountID, when set,
	// restricts the aggregation to transactions that also book the peer
	// account on the opposite side.
	AccountBalances(ctx context.Context, accountID int64, start, end *time.Time, peerAccountID *int64) (domain.Balances, error)
	AccountBookings(ctx context.Context, accountID int64) ([]domain.Booking, error)
	// UnbalancedTransactions lists transactions with unequal debit and
	// credit totals; accountID zero means all accounts.
	UnbalancedTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error)

	CreateTransaction(ctx context.Context, tx *domain.Transaction, actor string) error
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	// ReverseTransaction creates the correcting counter-transaction for the
	// given transaction. It refuses to reverse a transaction that already
	// has a live reversal.
	ReverseTransaction(ctx context.Context, id int64, valueDatetime *time.Time, memo, actor string) (*domain.Transaction, error)
}

// SpecialAccountsService resolves well-known ledger accounts by symbolic
// tag, creating them on first use.
type SpecialAccountsService interface {
	SpecialAccount(ctx context.Context, tag string, category domain.AccountCategory, name string) (*domain.Account, error)

	Fees(ctx context.Context) (*domain.Account, error)
	FeesReceivable(ctx context.Context) (*domain.Account, error)
	Donations(ctx context.Context) (*domain.Account, error)
	Bank(ctx context.Context) (*domain.Account, error)
	OpeningBalance(ctx context.Context) (*domain.Account, error)
	LostIncome(ctx context.Context) (*domain.Account, error)
}

// LiabilityService owns the membership-fee side of the ledger: liability
// reconciliation, member balances and statute-of-limitations queries.
type LiabilityService interface {
	// UpdateLiabilities reconciles the member's fee dues against the
	// ledger: dues that no longer match any membership are reversed, dues
	// that should exist are created, dues outside every membership range
	// are retired. The whole run is one atomic unit and a second run with
	// unchanged memberships is a no-op.
	UpdateLiabilities(ctx context.Context, memberID int64) error

	// Balance is the member's net fee position: payments received minus
	// fees owed, both up to now. Negative means the member owes money.
	Balance(ctx context.Context, memberID int64) (decimal.Decimal, error)

	// StatuteBarredDebt computes how much of the member's debt can no
	// longer be collected under the configured limitation interval.
	// futureLimitMonths shifts the computation into the future. The result
	// is never negative.
	StatuteBarredDebt(ctx context.Context, memberID int64, futureLimitMonths int) (decimal.Decimal, error)

	// CreateBalance snapshots the member's net position over [start, end]
	// into an immutable MemberBalance. It refuses overlapping periods and,
	// unless createIfZero is set, skips zero balances (returning nil).
	CreateBalance(ctx context.Context, memberID int64, start, end time.Time, createIfZero bool) (*domain.MemberBalance, error)

	// DonationBalance sums the member's donations up to now.
	DonationBalance(ctx context.Context, memberID int64) (decimal.Decimal, error)

	// FeePayments returns the member's bookings on the debit side of the
	// fees receivable account with value date up to now.
	FeePayments(ctx context.Context, memberID int64) ([]domain.Booking, error)

	// IsActive reports whether the member's latest membership covers today.
	IsActive(ctx context.Context, memberID int64) (bool, error)
}
