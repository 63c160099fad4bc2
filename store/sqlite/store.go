package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/relicore/toil/job"
)

// Ensure Store implements the job contract at compile time.
var _ job.Store = (*Store)(nil)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (or creates) the SQLite database at dsn and returns a Store.
// Use ":memory:" for an ephemeral database.
func Open(dsn string, opts ...Option) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("toil/sqlite: open %q: %w", dsn, err)
	}

	// One writer at a time; a single conn keeps claims serialized and
	// avoids SQLITE_BUSY churn under concurrent workers.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	return New(db, opts...), nil
}

// New creates a Store from an existing *bun.DB. The caller owns the db
// lifecycle when using this constructor; Close still closes it.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate applies all pending schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS toil_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("toil/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM toil_migrations WHERE name = ?)`,
			m.name,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("toil/sqlite: check migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}

		if _, err = s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("toil/sqlite: execute migration %s: %w", m.name, err)
		}
		if _, err = s.db.ExecContext(ctx,
			`INSERT INTO toil_migrations (name) VALUES (?)`, m.name,
		); err != nil {
			return fmt.Errorf("toil/sqlite: record migration %s: %w", m.name, err)
		}

		s.logger.Debug("applied migration", slog.String("name", m.name))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
