package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Postgres SQLSTATEs that clear up on their own once the competing
// transaction finishes.
var transientStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled
	"53300": {}, // too_many_connections
}

// IsConnectionFailure reports whether err means the connection itself is
// unusable and should not go back to a pool.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}

// IsTransient reports whether a driver error is lock contention or a lost
// connection, as opposed to a failure that repeats on every attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsConnectionFailure(err) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := transientStates[pgErr.Code]
		return ok
	}
	return pgconn.SafeToRetry(err)
}
