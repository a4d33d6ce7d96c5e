package domain

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrBookingSides is returned when a booking does not have exactly one
	// of debit account and credit account set.
	ErrBookingSides = errors.New("booking must have exactly one of debit or credit account")

	// ErrNegativeAmount is returned when a booking amount is negative.
	ErrNegativeAmount = errors.New("booking amount must not be negative")

	// ErrAccountInUse is returned when deleting an account that bookings
	// still reference.
	ErrAccountInUse = errors.New("account is referenced by bookings and cannot be deleted")

	// ErrAmbiguousSpecialAccount indicates more than one account carries a
	// special tag for one category. This points at manual database changes
	// and is never resolved automatically.
	ErrAmbiguousSpecialAccount = errors.New("more than one account matches special tag and category")

	// ErrAlreadyReversed is returned when reversing a transaction that
	// already has a live reversal.
	ErrAlreadyReversed = errors.New("transaction already has an active reversal")

	// ErrOverlappingBalance is returned when a member balance snapshot
	// would overlap an existing one.
	ErrOverlappingBalance = errors.New("member balance ranges must not overlap")
)
