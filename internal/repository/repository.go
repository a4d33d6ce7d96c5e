package repository

import (
	"context"
	"time"

	"clubledger-backend/internal/domain"

	"github.com/shopspring/decimal"
)

// BalanceWindow bounds a balance aggregation on transaction value dates.
// Nil bounds are open.
type BalanceWindow struct {
	Start *time.Time
	End   *time.Time
}

// FeeCredit is one not-yet-reversed booking crediting the fees account for
// a member, together with its transaction's value date. It is the unit the
// liability reconciliation diffs against the expected due set.
type FeeCredit struct {
	BookingID     int64
	TransactionID int64
	ValueDate     time.Time
	Amount        decimal.Decimal
}

// Key returns the reconciliation key of the persisted due.
func (c FeeCredit) Key() domain.DueKey {
	return domain.DueKey{
		Date:   domain.Date(c.ValueDate).Format("2006-01-02"),
		Amount: c.Amount.StringFixed(2),
	}
}

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	// FindByCategoryAndName returns nil, nil when no account matches.
	FindByCategoryAndName(ctx context.Context, category domain.AccountCategory, name string) (*domain.Account, error)
	// ListByTag returns all accounts of the category carrying the tag.
	ListByTag(ctx context.Context, tag string, category domain.AccountCategory) ([]domain.Account, error)
	// EnsureTag creates the tag record if it does not exist yet.
	EnsureTag(ctx context.Context, name string) error
	// TagAccount attaches the tag to the account, idempotently.
	TagAccount(ctx context.Context, accountID int64, tag string) error
	// Delete removes an account; it fails with domain.ErrAccountInUse while
	// bookings reference it.
	Delete(ctx context.Context, id int64) error

	// Balances sums booking amounts over all transactions touching the
	// account within the window, optionally restricted to transactions that
	// also book the peer account on the opposite side.
	Balances(ctx context.Context, accountID int64, window BalanceWindow, peerAccountID *int64) (debit, credit decimal.Decimal, err error)
	// Bookings returns all bookings on either side of the account whose
	// transaction value date falls inside the window.
	Bookings(ctx context.Context, accountID int64, window BalanceWindow) ([]domain.Booking, error)
}

type TransactionRepository interface {
	// Create persists the transaction and all its bookings.
	Create(ctx context.Context, tx *domain.Transaction) error
	// GetByID loads a transaction with its bookings.
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)
	// HasActiveReversal reports whether a not-itself-reversed reversal of
	// the transaction exists.
	HasActiveReversal(ctx context.Context, id int64) (bool, error)
	// ListUnbalanced returns transactions whose debit and credit totals
	// differ, optionally restricted to those touching accountID (non-zero).
	ListUnbalanced(ctx context.Context, accountID int64) ([]domain.Transaction, error)

	// MemberFeeCredits returns bookings crediting creditAccountID for the
	// member whose transaction has no reversal yet. With insideRanges true
	// only bookings whose value date falls in the union of ranges are
	// returned, otherwise only bookings outside every range. Empty ranges
	// mean no date restriction in either mode.
	MemberFeeCredits(ctx context.Context, memberID, creditAccountID int64, ranges []domain.DateRange, insideRanges bool) ([]FeeCredit, error)

	// MemberAccountSum adds up booking amounts for the member on the given
	// side of the account, value-dated within the window.
	MemberAccountSum(ctx context.Context, memberID, accountID int64, debitSide bool, window BalanceWindow) (decimal.Decimal, error)
}

type MemberRepository interface {
	Create(ctx context.Context, member *domain.Member) error
	GetByID(ctx context.Context, id int64) (*domain.Member, error)
	List(ctx context.Context) ([]domain.Member, error)

	ListMemberships(ctx context.Context, memberID int64) ([]domain.Membership, error)
	CreateMembership(ctx context.Context, ms *domain.Membership) error
	UpdateMembership(ctx context.Context, ms *domain.Membership) error

	// CreateBalance persists a balance snapshot.
	CreateBalance(ctx context.Context, balance *domain.MemberBalance) error
	// ListBalances returns the member's snapshots ordered by start.
	ListBalances(ctx context.Context, memberID int64) ([]domain.MemberBalance, error)
}

// Repositories bundles all repositories sharing one database handle, either
// the connection pool or a single open transaction.
type Repositories struct {
	Accounts     AccountRepository
	Transactions TransactionRepository
	Members      MemberRepository
}

// Transactor runs a function against transaction-scoped repositories as one
// atomic unit: every write either commits together or rolls back together.
// Multi-step ledger mutations (reversal, liability reconciliation, balance
// snapshots) must run through it.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(r Repositories) error) error
}
