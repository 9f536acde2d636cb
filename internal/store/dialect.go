package store

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// dialect captures what differs between the supported databases.
type dialect struct {
	name        string
	driverName  string // database/sql driver
	sqlite      bool
	dollarBinds bool // $1, $2 instead of ?
	rowLocks    bool // supports SELECT ... FOR UPDATE
	pragmas     []string
	types       *strings.Replacer // schema type placeholders
	prepareDSN  func(string) (string, error)
	isUnique    func(error) bool
}

var dialects = map[string]*dialect{
	"sqlite": {
		name:       "sqlite",
		driverName: "sqlite",
		sqlite:     true,
		pragmas: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA foreign_keys=ON",
		},
		types:    sqliteTypes,
		isUnique: isModerncUnique,
	},
	"postgres": {
		name:        "postgres",
		driverName:  "pgx",
		dollarBinds: true,
		rowLocks:    true,
		types: strings.NewReplacer(
			"{{ID}}", "VARCHAR(64)",
			"{{STR}}", "VARCHAR(255)",
			"{{TEXT}}", "TEXT",
			"{{TS}}", "TIMESTAMPTZ",
			"{{BIGINT}}", "BIGINT",
			"{{INT}}", "INTEGER",
			"{{BOOL}}", "BOOLEAN",
			"{{FLOAT}}", "DOUBLE PRECISION",
		),
		isUnique: isPostgresUnique,
	},
	"mysql": {
		name:       "mysql",
		driverName: "mysql",
		rowLocks:   true,
		prepareDSN: mysqlDSN,
		types: strings.NewReplacer(
			"{{ID}}", "VARCHAR(64)",
			"{{STR}}", "VARCHAR(255)",
			"{{TEXT}}", "TEXT",
			"{{TS}}", "DATETIME(6)",
			"{{BIGINT}}", "BIGINT",
			"{{INT}}", "INT",
			"{{BOOL}}", "BOOLEAN",
			"{{FLOAT}}", "DOUBLE",
		),
		isUnique: isMySQLUnique,
	},
}

var sqliteTypes = strings.NewReplacer(
	"{{ID}}", "TEXT",
	"{{STR}}", "TEXT",
	"{{TEXT}}", "TEXT",
	"{{TS}}", "DATETIME",
	"{{BIGINT}}", "INTEGER",
	"{{INT}}", "INTEGER",
	"{{BOOL}}", "BOOLEAN",
	"{{FLOAT}}", "REAL",
)

func lookupDialect(name string) (*dialect, error) {
	if name == "postgresql" || name == "pgx" {
		name = "postgres"
	}
	d, ok := dialects[name]
	if !ok {
		if name == "sqlite3" {
			return nil, fmt.Errorf("driver sqlite3 requires a cgo build; use sqlite")
		}
		return nil, fmt.Errorf("unsupported database driver %q (supported: %s)", name, strings.Join(Drivers(), ", "))
	}
	return d, nil
}

// Drivers lists the drivers compiled into this binary.
func Drivers() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (d *dialect) rebind(query string) string {
	if !d.dollarBinds {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// mysqlDSN makes the driver decode DATETIME columns into time.Time values in
// UTC, which every scan in the store expects.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// forUpdate appends a row lock to a SELECT. SQLite has no row locks; the
// store's single connection serializes writers there instead.
func (d *dialect) forUpdate(query string) string {
	if !d.rowLocks {
		return query
	}
	return query + " FOR UPDATE"
}

func isModerncUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func isPostgresUnique(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == "23505"
}

func isMySQLUnique(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (s *Store) isUniqueViolation(err error) bool {
	return err != nil && s.dialect.isUnique(err)
}
