package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type accountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) repository.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `INSERT INTO accounts (category, name) VALUES ($1, NULLIF($2, '')) RETURNING id`
	return r.db.QueryRowContext(ctx, query, account.Category, account.Name).Scan(&account.ID)
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT id, category, COALESCE(name, '') FROM accounts WHERE id = $1`
	var a domain.Account
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Category, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) FindByCategoryAndName(ctx context.Context, category domain.AccountCategory, name string) (*domain.Account, error) {
	query := `SELECT id, category, COALESCE(name, '') FROM accounts WHERE category = $1 AND name = $2`
	var a domain.Account
	err := r.db.QueryRowContext(ctx, query, category, name).Scan(&a.ID, &a.Category, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) ListByTag(ctx context.Context, tag string, category domain.AccountCategory) ([]domain.Account, error) {
	query := `SELECT a.id, a.category, COALESCE(a.name, '')
	          FROM accounts a
	          JOIN account_tag_links l ON l.account_id = a.id
	          JOIN account_tags t ON t.id = l.tag_id
	          WHERE t.name = $1 AND a.category = $2
	          ORDER BY a.id`
	rows, err := r.db.QueryContext(ctx, query, tag, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Category, &a.Name); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *accountRepository) EnsureTag(ctx context.Context, name string) error {
	query := `INSERT INTO account_tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, name)
	return err
}

func (r *accountRepository) TagAccount(ctx context.Context, accountID int64, tag string) error {
	query := `INSERT INTO account_tag_links (account_id, tag_id)
	          SELECT $1, id FROM account_tags WHERE name = $2
	          ON CONFLICT DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, accountID, tag)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		// Either the link already exists or the tag is missing; the former
		// is fine, the latter means EnsureTag was skipped.
		var exists bool
		check := `SELECT EXISTS (SELECT 1 FROM account_tag_links l JOIN account_tags t ON t.id = l.tag_id WHERE l.account_id = $1 AND t.name = $2)`
		if err := r.db.QueryRowContext(ctx, check, accountID, tag).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("tag %q does not exist", tag)
		}
	}
	return nil
}

func (r *accountRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM accounts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return domain.ErrAccountInUse
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Balances aggregates the account's own debit and credit bookings within
// the window. Sibling bookings of the same transactions never count; the
// optional peer restricts each booking to transactions whose opposite side
// books the peer account.
func (r *accountRepository) Balances(ctx context.Context, accountID int64, window repository.BalanceWindow, peerAccountID *int64) (decimal.Decimal, decimal.Decimal, error) {
	query := `SELECT
	            COALESCE(SUM(b.amount) FILTER (WHERE b.debit_account_id = $1), 0),
	            COALESCE(SUM(b.amount) FILTER (WHERE b.credit_account_id = $1), 0)
	          FROM bookings b
	          JOIN transactions t ON t.id = b.transaction_id
	          WHERE (b.debit_account_id = $1 OR b.credit_account_id = $1)`
	args := []any{accountID}
	query, args = windowClauses(query, args, window)
	if peerAccountID != nil {
		args = append(args, *peerAccountID)
		query += fmt.Sprintf(` AND EXISTS (
	            SELECT 1 FROM bookings peer
	            WHERE peer.transaction_id = t.id
	              AND ((b.debit_account_id = $1 AND peer.credit_account_id = $%d)
	                OR (b.credit_account_id = $1 AND peer.debit_account_id = $%d))
	          )`, len(args), len(args))
	}

	var debit, credit decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&debit, &credit); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}

func (r *accountRepository) Bookings(ctx context.Context, accountID int64, window repository.BalanceWindow) ([]domain.Booking, error) {
	query := `SELECT b.id, b.transaction_id, COALESCE(b.memo, ''), b.amount,
	                 b.debit_account_id, b.credit_account_id, b.member_id, COALESCE(b.importer, '')
	          FROM bookings b
	          JOIN transactions t ON t.id = b.transaction_id
	          WHERE (b.debit_account_id = $1 OR b.credit_account_id = $1)`
	args := []any{accountID}
	query, args = windowClauses(query, args, window)
	query += " ORDER BY b.id"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBookings(rows)
}

func scanBookings(rows *sql.Rows) ([]domain.Booking, error) {
	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		var debitID, creditID, memberID sql.NullInt64
		if err := rows.Scan(&b.ID, &b.TransactionID, &b.Memo, &b.Amount, &debitID, &creditID, &memberID, &b.Importer); err != nil {
			return nil, err
		}
		if debitID.Valid {
			b.DebitAccount = &debitID.Int64
		}
		if creditID.Valid {
			b.CreditAccount = &creditID.Int64
		}
		if memberID.Valid {
			b.MemberID = &memberID.Int64
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// windowClauses appends value-datetime bounds for the transaction alias t.
func windowClauses(query string, args []any, window repository.BalanceWindow) (string, []any) {
	if window.Start != nil {
		args = append(args, *window.Start)
		query += fmt.Sprintf(" AND t.value_datetime >= $%d", len(args))
	}
	if window.End != nil {
		args = append(args, *window.End)
		query += fmt.Sprintf(" AND t.value_datetime <= $%d", len(args))
	}
	return query, args
}
