package collection

import (
	"context"

	"officeflow/pkg/domain"
)

// Driver identifies a concrete collection backend.
type Driver string

const (
	DriverFile     Driver = "file"     // JSON files under the data root (default)
	DriverMemory   Driver = "memory"   // process memory (tests)
	DriverSQLite   Driver = "sqlite"   // one row per collection in an embedded database
	DriverPostgres Driver = "postgres" // one JSONB row per collection
)

// Mutator receives the stored records and returns the replacement list. An
// error aborts the update and nothing is written.
type Mutator func(records []domain.Record) ([]domain.Record, error)

// Backend loads and rewrites whole collections.
type Backend interface {
	// Load returns the stored records; a missing collection is empty, not an error.
	Load(ctx context.Context, scope Scope, name domain.CollectionName) ([]domain.Record, error)
	// Update runs fn under the collection's exclusive lock and persists its result.
	Update(ctx context.Context, scope Scope, name domain.CollectionName, fn Mutator) error
	Driver() Driver
	Close() error
}
