package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type transactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

// Create persists the transaction and all of its bookings. On a DBTX backed
// by the connection pool the bookings ride on the implicit statement
// transaction per insert; multi-step callers run through the Transactor.
func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO transactions (memo, booking_datetime, value_datetime, reverses_id, data)
	          VALUES (NULLIF($1, ''), $2, $3, $4, $5) RETURNING id, modified`
	var data any
	if len(tx.Data) > 0 {
		data = []byte(tx.Data)
	}
	logger.DatabaseCall("INSERT", "transactions", "value_datetime", tx.ValueDatetime)
	err := r.db.QueryRowContext(ctx, query,
		tx.Memo, tx.BookingDatetime, tx.ValueDatetime, tx.Reverses, data,
	).Scan(&tx.ID, &tx.Modified)
	if err != nil {
		logger.DatabaseResult("INSERT", 0, err)
		return fmt.Errorf("insert transaction: %w", err)
	}

	for i := range tx.Bookings {
		b := &tx.Bookings[i]
		b.TransactionID = tx.ID
		bookingQuery := `INSERT INTO bookings (transaction_id, memo, amount, debit_account_id, credit_account_id, member_id, importer)
		                 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, '')) RETURNING id`
		err := r.db.QueryRowContext(ctx, bookingQuery,
			b.TransactionID, b.Memo, b.Amount, b.DebitAccount, b.CreditAccount, b.MemberID, b.Importer,
		).Scan(&b.ID)
		if err != nil {
			logger.DatabaseResult("INSERT", int64(i), err, "transaction_id", tx.ID)
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "check_violation" {
				return domain.ErrBookingSides
			}
			return fmt.Errorf("insert booking: %w", err)
		}
	}
	logger.DatabaseResult("INSERT", int64(1+len(tx.Bookings)), nil, "transaction_id", tx.ID)
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT id, COALESCE(memo, ''), booking_datetime, value_datetime, modified, reverses_id, data
	          FROM transactions WHERE id = $1`
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	bookingsQuery := `SELECT id, transaction_id, COALESCE(memo, ''), amount,
	                         debit_account_id, credit_account_id, member_id, COALESCE(importer, '')
	                  FROM bookings WHERE transaction_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, bookingsQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tx.Bookings, err = scanBookings(rows)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var bookingDatetime sql.NullTime
	var reverses sql.NullInt64
	var data []byte
	err := row.Scan(&tx.ID, &tx.Memo, &bookingDatetime, &tx.ValueDatetime, &tx.Modified, &reverses, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if bookingDatetime.Valid {
		tx.BookingDatetime = &bookingDatetime.Time
	}
	if reverses.Valid {
		tx.Reverses = &reverses.Int64
	}
	if len(data) > 0 {
		tx.Data = data
	}
	return &tx, nil
}

// HasActiveReversal reports whether the transaction has a reversal that has
// not itself been reversed. Callers must check this before reversing again;
// the data model does not prevent double cancellation.
func (r *transactionRepository) HasActiveReversal(ctx context.Context, id int64) (bool, error) {
	query := `SELECT EXISTS (
	            SELECT 1 FROM transactions rev
	            WHERE rev.reverses_id = $1
	              AND NOT EXISTS (SELECT 1 FROM transactions rr WHERE rr.reverses_id = rev.id)
	          )`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	return exists, err
}

func (r *transactionRepository) ListUnbalanced(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	query := `SELECT t.id, COALESCE(t.memo, ''), t.booking_datetime, t.value_datetime, t.modified, t.reverses_id, t.data
	          FROM transactions t
	          JOIN bookings b ON b.transaction_id = t.id
	          GROUP BY t.id`
	args := []any{}
	having := ` HAVING COALESCE(SUM(CASE WHEN b.debit_account_id IS NOT NULL THEN b.amount ELSE 0 END), 0)
	                <> COALESCE(SUM(CASE WHEN b.credit_account_id IS NOT NULL THEN b.amount ELSE 0 END), 0)`
	if accountID != 0 {
		args = append(args, accountID)
		having += fmt.Sprintf(" AND BOOL_OR(b.debit_account_id = $%d OR b.credit_account_id = $%d)", len(args), len(args))
	}
	query += having + " ORDER BY t.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

// MemberFeeCredits runs the reconciliation's storage-side query: bookings
// crediting the fees account for the member whose transaction has no
// reversal yet, restricted to value dates inside (or outside) the union of
// the membership ranges.
func (r *transactionRepository) MemberFeeCredits(ctx context.Context, memberID, creditAccountID int64, ranges []domain.DateRange, insideRanges bool) ([]repository.FeeCredit, error) {
	query := `SELECT b.id, b.transaction_id, t.value_datetime, b.amount
	          FROM bookings b
	          JOIN transactions t ON t.id = b.transaction_id
	          WHERE b.member_id = $1
	            AND b.credit_account_id = $2
	            AND NOT EXISTS (SELECT 1 FROM transactions rev WHERE rev.reverses_id = t.id)`
	args := []any{memberID, creditAccountID}

	if len(ranges) > 0 {
		var clauses []string
		for _, rng := range ranges {
			args = append(args, rng.Start)
			startParam := len(args)
			args = append(args, endOfDay(rng.End))
			endParam := len(args)
			clauses = append(clauses, fmt.Sprintf("(t.value_datetime >= $%d AND t.value_datetime <= $%d)", startParam, endParam))
		}
		union := strings.Join(clauses, " OR ")
		if insideRanges {
			query += " AND (" + union + ")"
		} else {
			query += " AND NOT (" + union + ")"
		}
	}
	// Without ranges no date restriction applies on either side: every
	// live fee credit is a candidate, and none is shielded from retirement.
	query += " ORDER BY t.value_datetime, b.amount, b.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credits []repository.FeeCredit
	for rows.Next() {
		var c repository.FeeCredit
		if err := rows.Scan(&c.BookingID, &c.TransactionID, &c.ValueDate, &c.Amount); err != nil {
			return nil, err
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func (r *transactionRepository) MemberAccountSum(ctx context.Context, memberID, accountID int64, debitSide bool, window repository.BalanceWindow) (decimal.Decimal, error) {
	side := "credit_account_id"
	if debitSide {
		side = "debit_account_id"
	}
	query := fmt.Sprintf(`SELECT COALESCE(SUM(b.amount), 0)
	          FROM bookings b
	          JOIN transactions t ON t.id = b.transaction_id
	          WHERE b.member_id = $1 AND b.%s = $2`, side)
	args := []any{memberID, accountID}
	query, args = windowClauses(query, args, window)

	var sum decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// endOfDay widens an inclusive date bound to cover timestamps within that day.
func endOfDay(t time.Time) time.Time {
	return domain.Date(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
