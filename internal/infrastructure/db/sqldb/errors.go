package sqldb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/99minutos/identity-system/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

// translate maps unique violations to the identifier they hit and wraps
// everything else as a repository failure.
func (r *UserRepository) translate(err error, op string) error {
	if detail, ok := uniqueViolation(r.driver, err); ok {
		if isPrimaryKey(r.driver, err, detail) {
			return domain.ErrUserIDTaken
		}
		if strings.Contains(detail, "email") {
			return domain.ErrEmailTaken
		}
		return domain.ErrUsernameTaken
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrRepository, op, err)
}

// uniqueViolation reports whether err is a unique constraint failure and
// returns the part of the message naming the index or column.
func uniqueViolation(driver Driver, err error) (string, bool) {
	switch driver {
	case DriverMySQL:
		var myErr *mysql.MySQLError
		if !errors.As(err, &myErr) || myErr.Number != mysqlDuplicateEntry {
			return "", false
		}
		// Duplicate entry 'x' for key 'users.uniq_users_email'
		_, key, _ := strings.Cut(myErr.Message, " for key ")
		return key, true

	case DriverSQLite:
		var liteErr *msqlite.Error
		if !errors.As(err, &liteErr) {
			return "", false
		}
		switch liteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		default:
			return "", false
		}
		// UNIQUE constraint failed: users.email
		_, cols, _ := strings.Cut(liteErr.Error(), "constraint failed: ")
		return cols, true
	}
	return "", false
}

// isPrimaryKey reports whether a unique violation hit the id column rather
// than one of the username or email indexes.
func isPrimaryKey(driver Driver, err error, detail string) bool {
	if driver == DriverSQLite {
		var liteErr *msqlite.Error
		if errors.As(err, &liteErr) && liteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return strings.TrimSpace(detail) == "users.id"
	}
	// Duplicate entry 'x' for key 'users.PRIMARY'
	return strings.Contains(detail, "PRIMARY")
}
