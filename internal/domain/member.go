package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Member is a club member. Only the fields the ledger needs live here;
// profile data is managed elsewhere.
type Member struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// MemberBalanceState describes how much of a balance period has been paid.
type MemberBalanceState string

const (
	BalanceStateUnpaid  MemberBalanceState = "unpaid"
	BalanceStatePartial MemberBalanceState = "partial"
	BalanceStatePaid    MemberBalanceState = "paid"
)

// MemberBalance snapshots a member's net position over a period, similar in
// nature to an invoice. Periods of one member must never overlap; create
// them through LiabilityService.CreateBalance.
type MemberBalance struct {
	ID        int64              `json:"id"`
	MemberID  int64              `json:"member_id"`
	Reference string             `json:"reference,omitempty"`
	Amount    decimal.Decimal    `json:"amount"`
	Start     time.Time          `json:"start"`
	End       time.Time          `json:"end"`
	State     MemberBalanceState `json:"state"`
}

// Overlaps reports whether the given period intersects this balance.
func (b *MemberBalance) Overlaps(start, end time.Time) bool {
	return !start.After(b.End) && !end.Before(b.Start)
}
