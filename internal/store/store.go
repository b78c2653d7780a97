// Package store persists images, metadata, tags and the tag-count cache
// in a relational database through database/sql. The SQL dialect is
// chosen once at Open and used for every statement.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Drivers registered under "pgx" and "sqlite".
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/buruapp/buru-server/internal/query"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Config describes the database connection.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	// ApplySchema creates missing tables on Open.
	ApplySchema bool
}

// Store is the relational persistence layer. It owns its connection pool.
type Store struct {
	db      *sql.DB
	dialect query.Dialect
	logger  *slog.Logger
}

// Open connects to the configured database, verifies the connection and
// optionally applies the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialect, err := query.DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	driverName, dsn := "pgx", cfg.DSN
	if dialect.Name() == query.SqliteName {
		driverName, dsn = "sqlite", sqliteDSN(cfg.DSN)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name(), err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name(), err)
	}

	s := &Store{db: db, dialect: dialect, logger: logger}

	if cfg.ApplySchema {
		if err := s.applySchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info("database opened", "dialect", dialect.Name())
	return s, nil
}

// sqliteDSN turns a path into a modernc DSN. Pragmas go in the DSN so
// that every pooled connection gets them, not just the first.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + strings.Join([]string{
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
	}, "&")
}

func (s *Store) applySchema(ctx context.Context) error {
	raw, err := schemaFS.ReadFile("schema/" + s.dialect.Name() + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

// Dialect returns the SQL dialect chosen at Open.
func (s *Store) Dialect() query.Dialect {
	return s.dialect
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return dbError("ping", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, retrying the whole transaction on
// transient conflicts. fn must not have effects outside tx.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return s.withRetry(ctx, op, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// exec runs a fixed '?' statement rebound for the dialect.
func (s *Store) exec(ctx context.Context, tx *sql.Tx, stmt string, args ...any) (sql.Result, error) {
	return tx.ExecContext(ctx, s.dialect.Rebind(stmt), args...)
}
