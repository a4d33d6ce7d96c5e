package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Booking is one half of a balanced entry: a non-negative amount applied to
// exactly one of a debit or a credit account, optionally attributed to a
// member and an import source.
type Booking struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	Memo          string          `json:"memo,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	DebitAccount  *int64          `json:"debit_account_id,omitempty"`
	CreditAccount *int64          `json:"credit_account_id,omitempty"`
	MemberID      *int64          `json:"member_id,omitempty"`
	Importer      string          `json:"importer,omitempty"`
}

// Validate checks the booking invariants: exactly one side set, amount not
// negative. The storage layer enforces the same rules as a last line of
// defense.
func (b *Booking) Validate() error {
	if (b.DebitAccount == nil) == (b.CreditAccount == nil) {
		return ErrBookingSides
	}
	if b.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// IsDebit reports whether the booking applies to the debit side.
func (b *Booking) IsDebit() bool {
	return b.DebitAccount != nil
}

// IsCredit reports whether the booking applies to the credit side.
func (b *Booking) IsCredit() bool {
	return b.CreditAccount != nil
}

// AccountID returns the account the booking applies to, regardless of side.
func (b *Booking) AccountID() int64 {
	if b.DebitAccount != nil {
		return *b.DebitAccount
	}
	if b.CreditAccount != nil {
		return *b.CreditAccount
	}
	return 0
}

// Transaction is a named group of bookings representing one economic event.
// ValueDatetime is the economically effective date; BookingDatetime, when
// set, records when the event was entered. Reverses links a correcting
// transaction to the transaction it cancels.
type Transaction struct {
	ID              int64           `json:"id"`
	Memo            string          `json:"memo,omitempty"`
	BookingDatetime *time.Time      `json:"booking_datetime,omitempty"`
	ValueDatetime   time.Time       `json:"value_datetime"`
	Modified        time.Time       `json:"modified"`
	Reverses        *int64          `json:"reverses_id,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`

	Bookings []Booking `json:"bookings,omitempty"`
}

// Debit appends a debit-side booking for the given account.
func (t *Transaction) Debit(accountID int64, amount decimal.Decimal, memberID *int64, memo string) *Booking {
	t.Bookings = append(t.Bookings, Booking{
		Memo:         memo,
		Amount:       amount,
		DebitAccount: &accountID,
		MemberID:     memberID,
	})
	return &t.Bookings[len(t.Bookings)-1]
}

// Credit appends a credit-side booking for the given account.
func (t *Transaction) Credit(accountID int64, amount decimal.Decimal, memberID *int64, memo string) *Booking {
	t.Bookings = append(t.Bookings, Booking{
		Memo:          memo,
		Amount:        amount,
		CreditAccount: &accountID,
		MemberID:      memberID,
	})
	return &t.Bookings[len(t.Bookings)-1]
}

// Debits returns the debit-side bookings.
func (t *Transaction) Debits() []Booking {
	var out []Booking
	for _, b := range t.Bookings {
		if b.IsDebit() {
			out = append(out, b)
		}
	}
	return out
}

// Credits returns the credit-side bookings.
func (t *Transaction) Credits() []Booking {
	var out []Booking
	for _, b := range t.Bookings {
		if b.IsCredit() {
			out = append(out, b)
		}
	}
	return out
}

// Balances aggregates debit and credit totals over this transaction's own
// bookings.
func (t *Transaction) Balances() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, b := range t.Bookings {
		if b.IsDebit() {
			debit = debit.Add(b.Amount)
		} else if b.IsCredit() {
			credit = credit.Add(b.Amount)
		}
	}
	return debit, credit
}

// IsBalanced reports whether debit and credit totals are exactly equal.
func (t *Transaction) IsBalanced() bool {
	debit, credit := t.Balances()
	return debit.Equal(credit)
}

// IsReadOnly is advisory: balanced transactions must not receive further
// bookings. Corrections go through Reversal.
func (t *Transaction) IsReadOnly() bool {
	return t.IsBalanced()
}

// Validate checks all bookings of the transaction.
func (t *Transaction) Validate() error {
	for i := range t.Bookings {
		if err := t.Bookings[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FindMemo returns the transaction memo, falling back to the first booking
// that carries one.
func (t *Transaction) FindMemo() string {
	if t.Memo != "" {
		return t.Memo
	}
	for _, b := range t.Bookings {
		if b.Memo != "" {
			return b.Memo
		}
	}
	return ""
}

// CounterBookings returns the bookings on the opposite side of the given
// booking within this transaction.
func (t *Transaction) CounterBookings(b *Booking) []Booking {
	if b.IsDebit() {
		return t.Credits()
	}
	if b.IsCredit() {
		return t.Debits()
	}
	return nil
}

// Reversal builds the correcting transaction for t: one booking per
// original booking with debit and credit swapped, amount and member
// preserved, dated valueDatetime (the original's value date when zero).
// The original transaction is never modified. The caller persists the
// returned transaction; it is not stored here.
func (t *Transaction) Reversal(valueDatetime time.Time, bookingDatetime *time.Time, memo string) *Transaction {
	if valueDatetime.IsZero() {
		valueDatetime = t.ValueDatetime
	}
	rev := &Transaction{
		Memo:            memo,
		BookingDatetime: bookingDatetime,
		ValueDatetime:   valueDatetime,
		Reverses:        &t.ID,
	}
	for _, b := range t.Bookings {
		if b.IsCredit() {
			rev.Debit(*b.CreditAccount, b.Amount, b.MemberID, "")
		} else if b.IsDebit() {
			rev.Credit(*b.DebitAccount, b.Amount, b.MemberID, "")
		}
	}
	return rev
}
