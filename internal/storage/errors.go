package storage

import (
	"errors"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrRequestNotFound is returned when no ledger entry has the given id
	ErrRequestNotFound = errors.New("request not found")

	// ErrOutcomeAlreadyRecorded is returned when an entry already has a result or error
	ErrOutcomeAlreadyRecorded = errors.New("outcome already recorded for request")

	// ErrDuplicateRequest is returned when an entry id is reused
	ErrDuplicateRequest = errors.New("request id already exists")
)

// isUniqueViolation reports primary key or unique constraint failures from
// either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
