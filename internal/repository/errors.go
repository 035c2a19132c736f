package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"school-ledger/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

// mapError turns postgres failures the ledger cares about into domain errors.
// Anything else is returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", domain.ErrConcurrentModification, pgErr.Message)
		case "23505":
			return fmt.Errorf("%w: %s", domain.ErrDuplicate, pgErr.ConstraintName)
		case "23514":
			// check constraints guard paid bounds and non-negative balances
			return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, pgErr.ConstraintName)
		}
	}
	return err
}

// notFound maps sql.ErrNoRows onto the given sentinel.
func notFound(err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return mapError(err)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
