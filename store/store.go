// Package store defines the aggregate persistence interface. The job
// subsystem defines its own store contract; the composite Store adds the
// backend lifecycle. Backends: SQLite (embedded, via Bun), Postgres, and
// Memory.
package store

import (
	"context"

	"github.com/relicore/toil/job"
)

// Store is the aggregate persistence interface. A single backend
// (sqlite, postgres, memory) implements the job contract plus lifecycle.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
