package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/siherrmann/persona/helper"
)

const (
	pqUniqueViolation     pq.ErrorCode = "23505"
	pqForeignKeyViolation pq.ErrorCode = "23503"
	pqConnectionException              = "08"
)

// classify maps driver errors onto the helper sentinels and wraps them with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var sentinel error
	var pqErr *pq.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		sentinel = helper.ErrNotFound
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		sentinel = helper.ErrStoreUnavailable
	case errors.As(err, &pqErr):
		switch {
		case pqErr.Code == pqUniqueViolation:
			sentinel = helper.ErrAlreadyExists
		case pqErr.Code == pqForeignKeyViolation:
			sentinel = helper.ErrNotFound
		case pqErr.Code.Class() == pqConnectionException:
			sentinel = helper.ErrStoreUnavailable
		}
	}

	if sentinel == nil {
		return helper.NewError(op, err)
	}
	return helper.NewError(op, fmt.Errorf("%w: %w", sentinel, err))
}
