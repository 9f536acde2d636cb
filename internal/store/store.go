// Package store is the SQL implementation of the tracker's persistence
// contract. It runs on SQLite (modernc, or mattn when built with cgo),
// PostgreSQL (pgx) and MySQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options configures Open.
type Options struct {
	Driver         string        // sqlite (default), sqlite3, postgres, mysql
	DSN            string        // file path for sqlite, connection string otherwise
	MaxOpenConns   int           // ignored for sqlite, which uses a single connection
	ConnectTimeout time.Duration // total time to keep retrying the first ping
}

// Store wraps the database connection.
type Store struct {
	conn    *sql.DB
	dialect *dialect
}

// Open connects, waits for the database to answer, and runs any pending
// migrations. SQLite files are created along with their directory.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = "sqlite"
	}
	d, err := lookupDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	if d.sqlite && opts.DSN != ":memory:" && !strings.HasPrefix(opts.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(opts.DSN), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := opts.DSN
	if d.prepareDSN != nil {
		if dsn, err = d.prepareDSN(dsn); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if d.sqlite {
		conn.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := pingWithRetry(ctx, conn, opts.ConnectTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect %s: %w", opts.Driver, err)
	}

	for _, pragma := range d.pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, dialect: d}
	if _, err := s.RunMigrations(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func newConnectBackoff(maxElapsed time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	bo.MaxElapsedTime = maxElapsed
	return bo
}

// pingWithRetry keeps pinging until the server answers, so the service can
// start before its database container is ready.
func pingWithRetry(ctx context.Context, conn *sql.DB, maxElapsed time.Duration) error {
	return backoff.Retry(func() error {
		return conn.PingContext(ctx)
	}, backoff.WithContext(newConnectBackoff(maxElapsed), ctx))
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.dialect.sqlite {
		s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.conn.Close()
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.dialect.name
}

// q rewrites ? placeholders for the active dialect.
func (s *Store) q(query string) string {
	return s.dialect.rebind(query)
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func now() time.Time {
	return time.Now().UTC()
}
