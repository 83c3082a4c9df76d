package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const mysqlDuplicateEntry = 1062

// IsDuplicateEntry reports whether err is a MySQL unique key violation.
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// DuplicateKey returns the name of the unique index a duplicate entry error refers to,
// e.g. "users.email" for "Duplicate entry 'a@b.c' for key 'users.email'".
func DuplicateKey(err error) string {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) || mysqlErr.Number != mysqlDuplicateEntry {
		return ""
	}

	msg := mysqlErr.Message
	idx := strings.LastIndex(msg, "for key '")
	if idx == -1 {
		return ""
	}
	return strings.TrimSuffix(msg[idx+len("for key '"):], "'")
}

type rowScanner func(dest ...interface{}) error
