package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Payment intervals in months.
const (
	IntervalMonthly   = 1
	IntervalQuarterly = 3
	IntervalBiannual  = 6
	IntervalAnnually  = 12
)

// Membership is one continuous fee obligation of a member: Amount is due
// every IntervalMonths, starting at Start. A nil End means the membership
// is ongoing.
type Membership struct {
	ID             int64           `json:"id"`
	MemberID       int64           `json:"member_id"`
	Start          time.Time       `json:"start"`
	End            *time.Time      `json:"end,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	IntervalMonths int             `json:"interval_months"`
}

// Due is one expected fee: Amount owed on Date.
type Due struct {
	Date   time.Time
	Amount decimal.Decimal
}

// DateRange is an inclusive date interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range, inclusive on both ends.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Date strips the time-of-day portion, normalizing to midnight UTC. All due
// and membership dates are compared at day granularity.
func Date(t time.Time) time.Time {
	y, m, d := t.In(time.UTC).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds months to a date, clamping the day to the last day of the
// target month (January 31 plus one month is February 28), rather than
// normalizing into the following month.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(firstOfTarget); d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, t.Location())
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -1).Day()
}

// EffectiveEnd returns the membership end used for due enumeration. An
// ongoing membership ends at "now", clamped to the membership's start day
// of month; if that day does not exist in the current month (say, day 31
// in February), the last day of the current month is used instead.
func (m *Membership) EffectiveEnd(now time.Time) time.Time {
	if m.End != nil {
		return Date(*m.End)
	}
	now = Date(now)
	day := Date(m.Start).Day()
	if last := daysInMonth(now); day > last {
		day = last
	}
	return time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DueSchedule enumerates the fee dues implied by the membership as of now:
// one due of Amount per interval step from Start through the effective end,
// inclusive. It also returns the membership's effective date range. A
// membership with a zero amount implies no dues and no range; callers skip
// it entirely.
func (m *Membership) DueSchedule(now time.Time) (DateRange, []Due) {
	start := Date(m.Start)
	end := m.EffectiveEnd(now)
	rng := DateRange{Start: start, End: end}

	var dues []Due
	for date := start; !date.After(end); date = AddMonths(date, m.IntervalMonths) {
		dues = append(dues, Due{Date: date, Amount: m.Amount})
	}
	return rng, dues
}

// DueKey identifies a due by date and amount; two dues with equal keys are
// the same due for reconciliation purposes.
type DueKey struct {
	Date   string // "2006-01-02"
	Amount string // fixed to two decimal places
}

// Key returns the reconciliation key of the due.
func (d Due) Key() DueKey {
	return DueKey{Date: d.Date.Format("2006-01-02"), Amount: d.Amount.StringFixed(2)}
}

// SortDueKeys orders keys by date, then amount, for deterministic
// application of ledger mutations.
func SortDueKeys(keys []DueKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].Amount < keys[j].Amount
	})
}

// IsActive reports whether the membership covers the given day.
func (m *Membership) IsActive(now time.Time) bool {
	day := Date(now)
	if Date(m.Start).After(day) {
		return false
	}
	return m.End == nil || !Date(*m.End).Before(day)
}
