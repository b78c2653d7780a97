package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

// dbError classifies err for callers. Domain errors and context errors
// pass through unchanged; anything else becomes DATABASE_ERROR carrying
// the failed operation.
func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domainerrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domainerrors.Wrap(err, domainerrors.CodeDatabase, "database error").
		WithDetails(map[string]any{"operation": op})
}

// isTransient reports whether err is a lock or serialization conflict
// worth retrying.
func isTransient(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case "40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
	}
	return false
}
