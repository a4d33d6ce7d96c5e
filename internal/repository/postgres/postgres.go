package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"clubledger-backend/internal/repository"

	_ "github.com/lib/pq"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx. All
// repositories run on it so the same code serves both pooled access and
// transaction-scoped access.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store bundles the Postgres repositories and implements
// repository.Transactor over a *sql.DB.
type Store struct {
	db *sql.DB
	repository.Repositories
}

// NewStore creates a store with repositories bound to the connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:           db,
		Repositories: newRepositories(db),
	}
}

func newRepositories(db DBTX) repository.Repositories {
	return repository.Repositories{
		Accounts:     NewAccountRepository(db),
		Transactions: NewTransactionRepository(db),
		Members:      NewMemberRepository(db),
	}
}

// InTransaction runs fn against repositories bound to one database
// transaction. Any error rolls the whole unit back; no partial state is
// persisted.
func (s *Store) InTransaction(ctx context.Context, fn func(r repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	return tx.Commit()
}
