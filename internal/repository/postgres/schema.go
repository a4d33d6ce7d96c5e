package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema DDL. The booking check constraint and the (category, name)
// uniqueness are the storage layer's last line of defense for invariants
// the application already enforces.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		category TEXT NOT NULL CHECK (category IN ('asset', 'liability', 'income', 'expense', 'equity')),
		name TEXT,
		UNIQUE (category, name)
	)`,
	`CREATE TABLE IF NOT EXISTS account_tags (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS account_tag_links (
		account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		tag_id BIGINT NOT NULL REFERENCES account_tags(id),
		PRIMARY KEY (account_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id BIGSERIAL PRIMARY KEY,
		number TEXT UNIQUE,
		name TEXT,
		email TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		id BIGSERIAL PRIMARY KEY,
		member_id BIGINT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		start_date DATE NOT NULL,
		end_date DATE,
		amount NUMERIC(8,2) NOT NULL,
		interval_months INT NOT NULL CHECK (interval_months IN (1, 3, 6, 12))
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		memo TEXT,
		booking_datetime TIMESTAMPTZ,
		value_datetime TIMESTAMPTZ NOT NULL,
		modified TIMESTAMPTZ NOT NULL DEFAULT now(),
		reverses_id BIGINT REFERENCES transactions(id),
		data JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL REFERENCES transactions(id),
		memo TEXT,
		amount NUMERIC(8,2) NOT NULL CHECK (amount >= 0),
		debit_account_id BIGINT REFERENCES accounts(id),
		credit_account_id BIGINT REFERENCES accounts(id),
		member_id BIGINT REFERENCES members(id),
		importer TEXT,
		CONSTRAINT exactly_either_debit_or_credit
			CHECK (NOT ((debit_account_id IS NULL) = (credit_account_id IS NULL)))
	)`,
	`CREATE TABLE IF NOT EXISTS member_balances (
		id BIGSERIAL PRIMARY KEY,
		member_id BIGINT NOT NULL REFERENCES members(id),
		reference TEXT UNIQUE,
		amount NUMERIC(8,2) NOT NULL,
		start_datetime TIMESTAMPTZ NOT NULL,
		end_datetime TIMESTAMPTZ NOT NULL,
		state TEXT NOT NULL DEFAULT 'unpaid' CHECK (state IN ('paid', 'partial', 'unpaid'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_transaction ON bookings(transaction_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_member ON bookings(member_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_reverses ON transactions(reverses_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_value ON transactions(value_datetime)`,
}

// EnsureSchema creates the ledger tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
