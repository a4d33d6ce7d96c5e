package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository"

	"github.com/lib/pq"
)

type memberRepository struct {
	db DBTX
}

func NewMemberRepository(db DBTX) repository.MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(ctx context.Context, member *domain.Member) error {
	query := `INSERT INTO members (number, name, email) VALUES ($1, $2, $3) RETURNING id`
	return r.db.QueryRowContext(ctx, query, member.Number, member.Name, member.Email).Scan(&member.ID)
}

func (r *memberRepository) GetByID(ctx context.Context, id int64) (*domain.Member, error) {
	query := `SELECT id, COALESCE(number, ''), COALESCE(name, ''), COALESCE(email, '') FROM members WHERE id = $1`
	var m domain.Member
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.Number, &m.Name, &m.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *memberRepository) List(ctx context.Context) ([]domain.Member, error) {
	query := `SELECT id, COALESCE(number, ''), COALESCE(name, ''), COALESCE(email, '') FROM members ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Number, &m.Name, &m.Email); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *memberRepository) ListMemberships(ctx context.Context, memberID int64) ([]domain.Membership, error) {
	query := `SELECT id, member_id, start_date, end_date, amount, interval_months
	          FROM memberships WHERE member_id = $1 ORDER BY start_date, id`
	rows, err := r.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []domain.Membership
	for rows.Next() {
		var ms domain.Membership
		var end sql.NullTime
		if err := rows.Scan(&ms.ID, &ms.MemberID, &ms.Start, &end, &ms.Amount, &ms.IntervalMonths); err != nil {
			return nil, err
		}
		if end.Valid {
			ms.End = &end.Time
		}
		memberships = append(memberships, ms)
	}
	return memberships, rows.Err()
}

func (r *memberRepository) CreateMembership(ctx context.Context, ms *domain.Membership) error {
	query := `INSERT INTO memberships (member_id, start_date, end_date, amount, interval_months)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	return r.db.QueryRowContext(ctx, query, ms.MemberID, ms.Start, ms.End, ms.Amount, ms.IntervalMonths).Scan(&ms.ID)
}

func (r *memberRepository) UpdateMembership(ctx context.Context, ms *domain.Membership) error {
	query := `UPDATE memberships SET start_date = $1, end_date = $2, amount = $3, interval_months = $4 WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, ms.Start, ms.End, ms.Amount, ms.IntervalMonths, ms.ID)
	if err != nil {
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

func (r *memberRepository) CreateBalance(ctx context.Context, balance *domain.MemberBalance) error {
	query := `INSERT INTO member_balances (member_id, reference, amount, start_datetime, end_datetime, state)
	          VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		balance.MemberID, balance.Reference, balance.Amount, balance.Start, balance.End, balance.State,
	).Scan(&balance.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("balance reference %q already exists: %w", balance.Reference, err)
		}
		return err
	}
	return nil
}

func (r *memberRepository) ListBalances(ctx context.Context, memberID int64) ([]domain.MemberBalance, error) {
	query := `SELECT id, member_id, COALESCE(reference, ''), amount, start_datetime, end_datetime, state
	          FROM member_balances WHERE member_id = $1 ORDER BY start_datetime, id`
	rows, err := r.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []domain.MemberBalance
	for rows.Next() {
		var b domain.MemberBalance
		if err := rows.Scan(&b.ID, &b.MemberID, &b.Reference, &b.Amount, &b.Start, &b.End, &b.State); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
