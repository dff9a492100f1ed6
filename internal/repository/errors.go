// Package repository implements service.Store twice: SQLStore on MySQL and
// MemoryStore in process.  The sentinel errors below are the store-level
// errors of the service package, re-exported so handlers and tests can
// match them without importing service.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/admission-allocation/internal/service"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = service.ErrNotFound

// ErrConflict is returned when an insert or update violates a unique key,
// such as a second admission for the same applicant.
var ErrConflict = service.ErrConflict

// ErrStaleRecord is returned when an optimistic save finds a newer version.
var ErrStaleRecord = service.ErrStaleRecord

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a MySQL unique-key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
