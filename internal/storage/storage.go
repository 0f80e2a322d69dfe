package storage

import (
	"context"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
)

// DefaultMaxFetchSize bounds the rows materialized by a single GetAll.
const DefaultMaxFetchSize = 10000

// Storage is the record store contract. Implementations must be safe for
// concurrent use and observably identical to the in-memory reference.
type Storage interface {
	// Flush wipes every collection. Intended for tests and operations.
	Flush(ctx context.Context) error

	// Ping reports whether the backend answers. It never fails.
	Ping(ctx context.Context) bool

	// CollectionTimestamp returns the stamp of the latest write to the
	// collection, or the current time if it was never written.
	CollectionTimestamp(ctx context.Context, r *ir.Resource, tenant string) (int64, error)

	// Create stores a new record and returns it with its reserved fields.
	Create(ctx context.Context, r *ir.Resource, tenant string, record ir.Record) (ir.Record, error)

	// Get returns a live record or a *RecordNotFoundError.
	Get(ctx context.Context, r *ir.Resource, tenant, id string) (ir.Record, error)

	// Update replaces the content of record id, creating it if absent.
	Update(ctx context.Context, r *ir.Resource, tenant, id string, record ir.Record) (ir.Record, error)

	// Delete turns a live record into a tombstone and returns the tombstone.
	Delete(ctx context.Context, r *ir.Resource, tenant, id string) (ir.Record, error)

	// GetAll runs a query and returns the page and the live total.
	GetAll(ctx context.Context, r *ir.Resource, tenant string, q queryir.Query) ([]ir.Record, int, error)

	// Close releases backend resources.
	Close() error
}

// SchemaInitializer is implemented by backends that need a bootstrap step
// before first use. EnsureSchema must be idempotent.
type SchemaInitializer interface {
	EnsureSchema(ctx context.Context) error
}

// EnsureSchema bootstraps s if it needs it.
func EnsureSchema(ctx context.Context, s Storage) error {
	if init, ok := s.(SchemaInitializer); ok {
		return init.EnsureSchema(ctx)
	}
	return nil
}
