package audit

import (
	"context"

	"clubledger-backend/internal/logger"
)

// Logger receives audit events for every mutating ledger operation. The
// durable, hash-chained audit log lives outside this repository; the ledger
// core only emits events through this interface.
type Logger interface {
	// Log records one event. actor identifies the responsible user or an
	// internal context string, action is a dotted event name such as
	// "bookkeeping.transaction.reversed".
	Log(ctx context.Context, actor, action string, data map[string]any)
}

// Ledger event names.
const (
	ActionAccountCreated      = "bookkeeping.account.created"
	ActionTransactionCreated  = "bookkeeping.transaction.created"
	ActionTransactionReversed = "bookkeeping.transaction.reversed"
	ActionBookingCreated      = "bookkeeping.booking.created"
	ActionBalanceCreated      = "members.balance.created"
)

type slogAudit struct{}

// NewSlogLogger returns a Logger that forwards events to the application log.
func NewSlogLogger() Logger {
	return slogAudit{}
}

func (slogAudit) Log(ctx context.Context, actor, action string, data map[string]any) {
	args := []any{"actor", actor, "action", action}
	for k, v := range data {
		args = append(args, k, v)
	}
	logger.InfoContext(ctx, "Audit event", args...)
}

type nopAudit struct{}

// NewNopLogger returns a Logger that discards all events.
func NewNopLogger() Logger {
	return nopAudit{}
}

func (nopAudit) Log(context.Context, string, string, map[string]any) {}
