// Package store owns the process-wide Postgres handle shared by every
// repository. The pool is opened lazily exactly once and closed at shutdown.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the narrow query surface repositories depend on. Both *pgxpool.Pool
// and pgxmock pools satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DBTX = (*pgxpool.Pool)(nil)

// Handle is an explicitly constructed, shared storage handle.
type Handle struct {
	url string

	once sync.Once
	pool *pgxpool.Pool
	err  error

	mu     sync.Mutex
	closed bool
}

func New(databaseURL string) *Handle { return &Handle{url: databaseURL} }

// Pool returns the shared pool, connecting on first use. Concurrent callers
// observe the same pool or the same error.
func (h *Handle) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.once.Do(func() {
		cfg, err := pgxpool.ParseConfig(h.url)
		if err != nil {
			h.err = fmt.Errorf("invalid DATABASE_URL: %w", err)
			return
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			h.err = fmt.Errorf("create pg pool: %w", err)
			return
		}
		h.pool = pool
	})
	return h.pool, h.err
}

// Close releases the pool. Safe to call more than once.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.pool != nil {
		h.pool.Close()
	}
}

var ErrClosed = errors.New("store: handle closed")

// UniqueViolation is the Postgres SQLSTATE for unique_violation.
const UniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// ForeignKeyViolation is the Postgres SQLSTATE for foreign_key_violation.
const ForeignKeyViolation = "23503"

// IsForeignKeyViolation reports whether err is a foreign key violation,
// optionally restricted to the named constraint.
func IsForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != ForeignKeyViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsNotFound reports whether err signals an empty single-row result.
func IsNotFound(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
