package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountCategory classifies accounts for double-entry bookkeeping.
type AccountCategory string

const (
	AccountCategoryAsset     AccountCategory = "asset"     // e.g. bank account or cash
	AccountCategoryLiability AccountCategory = "liability" // e.g. invoices to be paid
	AccountCategoryIncome    AccountCategory = "income"    // e.g. fees paid
	AccountCategoryExpense   AccountCategory = "expense"   // e.g. fees owed to others
	AccountCategoryEquity    AccountCategory = "equity"    // assets less liabilities
)

// Valid reports whether the category is one of the known values.
func (c AccountCategory) Valid() bool {
	switch c {
	case AccountCategoryAsset, AccountCategoryLiability, AccountCategoryIncome,
		AccountCategoryExpense, AccountCategoryEquity:
		return true
	}
	return false
}

// Special account tags resolved by the special accounts registry.
const (
	TagFees           = "fees"
	TagFeesReceivable = "fees_receivable"
	TagDonations      = "donations"
	TagBank           = "bank"
	TagOpeningBalance = "opening_balance"
	TagLostIncome     = "lost_income"
)

// Account is a named ledger account. (category, name) is unique when the
// name is set.
type Account struct {
	ID       int64           `json:"id"`
	Category AccountCategory `json:"category"`
	Name     string          `json:"name,omitempty"`
	Tags     []string        `json:"tags,omitempty"`
}

func (a *Account) String() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("%s account #%d", a.Category, a.ID)
}

// Balances holds aggregated debit and credit totals plus the net balance
// under the account's sign convention.
type Balances struct {
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
	Net    decimal.Decimal `json:"net"`
}

// ZeroBalances returns a Balances with all totals quantized to 0.00.
func ZeroBalances() Balances {
	zero := decimal.Zero.Round(2)
	return Balances{Debit: zero, Credit: zero, Net: zero}
}

// NewBalances computes the net total for the given category.
// For asset and expense accounts debit increases the balance and credit
// decreases it; for liability, income and equity accounts it is the
// other way around. All totals are quantized to two decimal places.
func NewBalances(category AccountCategory, debit, credit decimal.Decimal) Balances {
	var net decimal.Decimal
	switch category {
	case AccountCategoryLiability, AccountCategoryIncome, AccountCategoryEquity:
		net = credit.Sub(debit)
	default:
		net = debit.Sub(credit)
	}
	return Balances{
		Debit:  debit.Round(2),
		Credit: credit.Round(2),
		Net:    net.Round(2),
	}
}
