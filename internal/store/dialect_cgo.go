//go:build cgo

package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

func init() {
	dialects["sqlite3"] = &dialect{
		name:       "sqlite3",
		driverName: "sqlite3",
		sqlite:     true,
		pragmas: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA foreign_keys=ON",
		},
		types:    sqliteTypes,
		isUnique: isMattnUnique,
	}
}

func isMattnUnique(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
