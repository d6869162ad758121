package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDisabled is returned by every method of a nil *Store, which is what the
// service runs with when DATABASE_URL is unset.
var ErrDisabled = errors.New("ledger disabled")

// DB is the subset of *pgxpool.Pool the ledger uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type Store struct {
	db    DB
	close func()
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: pool, close: pool.Close}, nil
}

// NewWithDB wraps an existing connection, e.g. a pgxmock pool.
func NewWithDB(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) Enabled() bool { return s != nil }

func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return ErrDisabled
	}
	return s.db.Ping(ctx)
}

func (s *Store) Close() {
	if s == nil || s.close == nil {
		return
	}
	s.close()
}
