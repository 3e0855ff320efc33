package postgres

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect captures the handful of places where PostgreSQL and SQLite differ.
// Both accept $n placeholders, RETURNING and ON CONFLICT DO NOTHING.
type Dialect struct {
	Name   string
	Driver string

	// serial is the column definition of an auto-increment primary key
	serial string
	// now is the SQL expression for the current timestamp
	now string
	// contains renders "haystack contains needle"
	contains func(haystack, needle string) string
	// uniqueViolation reports whether err is a unique constraint failure
	uniqueViolation func(err error) bool
}

// PostgresDialect targets PostgreSQL through lib/pq
var PostgresDialect = Dialect{
	Name:   "postgres",
	Driver: "postgres",
	serial: "BIGSERIAL PRIMARY KEY",
	now:    "NOW()",
	contains: func(haystack, needle string) string {
		return "strpos(" + haystack + ", " + needle + ") > 0"
	},
	uniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

// SQLiteDialect targets SQLite through mattn/go-sqlite3
var SQLiteDialect = Dialect{
	Name:   "sqlite",
	Driver: "sqlite3",
	serial: "INTEGER PRIMARY KEY AUTOINCREMENT",
	now:    "CURRENT_TIMESTAMP",
	contains: func(haystack, needle string) string {
		return "instr(" + haystack + ", " + needle + ") > 0"
	},
	uniqueViolation: func(err error) bool {
		var sqliteErr sqlite3.Error
		return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	},
}

// DialectFor returns the dialect registered under name
func DialectFor(name string) (Dialect, bool) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return PostgresDialect, true
	case "sqlite", "sqlite3":
		return SQLiteDialect, true
	}
	return Dialect{}, false
}

// render expands the {{serial}} and {{now}} tokens of a schema statement
func (d Dialect) render(stmt string) string {
	return strings.NewReplacer("{{serial}}", d.serial, "{{now}}", d.now).Replace(stmt)
}
