package sqlrepo

import (
	"database/sql"
	"errors"
	"fmt"
	"syscall"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	pgDiskFull         = "53100"
	pgUniqueViolation  = "23505"
	pgOutOfMemory      = "53200"
	pgInsufficientDisk = "53000"
)

// classify wraps err with the failed operation and maps backend conditions
// onto the wallet's sentinel errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to %s: %w", op, common.ErrNotFound)
	case isQuota(err):
		return fmt.Errorf("failed to %s: %w: %v", op, common.ErrStorageQuotaExceeded, err)
	case isUnique(err):
		return fmt.Errorf("failed to %s: %w", op, common.ErrKeyExists)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isQuota(err error) bool {
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_FULL {
		return true
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case pgDiskFull, pgOutOfMemory, pgInsufficientDisk:
			return true
		}
	}
	return false
}

func isUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == pgUniqueViolation
}
