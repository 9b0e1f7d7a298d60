package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested record does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when the store recognises a submission with the
// same content inside the duplicate window.
var ErrDuplicate = errors.New("duplicate submission")

// ErrTimeout is returned when the store did not answer in time.
var ErrTimeout = errors.New("store timeout")

// postgres SQLSTATE codes mapped at this boundary
const (
	pgUniqueViolation    = "23505"
	pgQueryCanceled      = "57014"
	pgInvalidTextRepr    = "22P02"
	pgLockNotAvailable   = "55P03"
	pgIdleSessionTimeout = "57P05"
)

// classifyPgError maps driver errors to the sentinel errors above. Errors it
// does not recognise are returned unchanged.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		case pgQueryCanceled, pgLockNotAvailable, pgIdleSessionTimeout:
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		case pgInvalidTextRepr:
			return ErrNotFound
		}
	}
	return err
}
