package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	sqliteUniquePrefix = "UNIQUE constraint failed: "
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraint is set the violation must name it. SQLite does not report
// constraint names, so its "table.column" detail is mapped to the Postgres
// default "table_column_key".
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode != sqlite3.ErrConstraintUnique && liteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	msg := err.Error()
	idx := strings.Index(msg, sqliteUniquePrefix)
	if idx < 0 {
		return strings.Contains(msg, "duplicate key value") && (constraint == "" || strings.Contains(msg, constraint))
	}
	if constraint == "" {
		return true
	}
	for _, column := range strings.Split(msg[idx+len(sqliteUniquePrefix):], ", ") {
		if sqliteConstraintName(column) == constraint {
			return true
		}
	}
	return false
}

// IsForeignKeyViolation reports whether err references a missing parent row.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// IsRetryable reports transaction failures that succeed when replayed:
// serialization conflicts and deadlocks on Postgres, busy or locked
// databases on SQLite.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func sqliteConstraintName(column string) string {
	return strings.ReplaceAll(strings.TrimSpace(column), ".", "_") + "_key"
}
