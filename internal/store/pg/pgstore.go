// Package pg backs the auth store with PostgreSQL through database/sql and
// the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"theinternetcompany.one/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"

	// Every store call is bounded so a stalled database turns into
	// ErrStoreUnavailable instead of a hung request.
	opTimeout = 3 * time.Second
)

type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests and the migration
// runner.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies connectivity; readiness probes call it.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return mapErr(err)
	}
	return nil
}

func (s *Store) Users(context.Context) auth.UserStore             { return users{s.db} }
func (s *Store) Roles(context.Context) auth.RoleStore             { return roles{s.db} }
func (s *Store) Permissions(context.Context) auth.PermissionStore { return permissions{s.db} }
func (s *Store) Sessions(context.Context) auth.SessionStore       { return sessions{s.db} }

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// mapErr folds driver-level failures into the store error vocabulary.
// sql.ErrNoRows is handled at each call site because its meaning depends on
// the query.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
	}
	if pgErr, ok := maybePgError(err); ok {
		switch {
		case pgErr.Code == pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErr.Code == pgErrForeignKeyViolation:
			return auth.ErrNotFound
		case strings.HasPrefix(pgErr.Code, "08"): // connection exceptions
			return fmt.Errorf("%w: %v", auth.ErrStoreUnavailable, err)
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
