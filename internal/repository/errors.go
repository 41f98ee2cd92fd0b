// Package repository defines error types that are reused across the user
// and token repositories. These sentinel values allow the auth service to
// distinguish storage outcomes without inspecting driver errors itself.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a signup collides with an existing email.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicateToken is returned when a token string is already stored for
// its kind. With 256 bits of entropy this only happens on a generator fault,
// but the insert is rejected rather than overwriting the existing row.
var ErrDuplicateToken = errors.New("duplicate token")

// ErrAlreadyConsumed is returned by the compare-and-swap transitions when the
// row was revoked or used by someone else first.
var ErrAlreadyConsumed = errors.New("token already consumed")

const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a unique constraint violation from
// either supported driver.
func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}
