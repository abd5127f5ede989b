// Package adapter defines the contract every persistence backend implements,
// the error taxonomy that keeps backend failures distinguishable, and the
// construction/teardown guards shared by all backends.
//
// A concrete adapter owns whatever low-level handles it opens (connections,
// descriptors, in-process state); those are never exposed. Disconnect is the
// single state transition of the lifecycle: before it, operations are valid
// subject to real backend errors; after it, every operation on a released
// handle fails with ErrDisconnected. Adapters are not safe for concurrent use
// unless the concrete implementation documents it.
package adapter

import (
	"context"

	"github.com/stratadb/strata/pkg/mapper"
)

// SortOrder is the direction of an ordered scope.
type SortOrder string

const (
	// SortAsc sorts ascending.
	SortAsc SortOrder = "asc"
	// SortDesc sorts descending.
	SortDesc SortOrder = "desc"
)

// TxOptions carries transaction options. A backend that does not understand
// an option defines its own behavior for it; the contract does not.
type TxOptions struct {
	ReadOnly bool
}

// Query is a deferred, composable read scope over a single collection.
// Builder methods return the query itself so scopes compose; nothing touches
// the backend until Run or Count.
type Query interface {
	Where(field string, value any) Query
	OrderBy(field string, order SortOrder) Query
	Limit(n int) Query
	Offset(n int) Query

	// Collection names the scoped collection.
	Collection() string

	Run(ctx context.Context) ([]any, error)
	Count(ctx context.Context) (int64, error)
}

// Adapter is the full set of operations a persistence backend supports. The
// collection argument names a mapped storage collection; registration with
// the mapper is assumed, not enforced here. Entities are opaque: adapters
// translate them through the mapper they received at construction.
type Adapter interface {
	// Persist creates or updates the entity depending on whether it already
	// carries an identity.
	Persist(ctx context.Context, collection string, entity any) (any, error)

	// Create inserts the entity, assigning it an identity.
	Create(ctx context.Context, collection string, entity any) (any, error)

	// Update replaces the stored record carrying the entity's identity.
	Update(ctx context.Context, collection string, entity any) (any, error)

	// Delete removes the stored record carrying the entity's identity.
	Delete(ctx context.Context, collection string, entity any) error

	// All returns every entity of the collection, in insertion order where
	// the backend has one.
	All(ctx context.Context, collection string) ([]any, error)

	// Find returns the entity with the given identity, or ErrNotFound.
	Find(ctx context.Context, collection string, id any) (any, error)

	// First and Last return the entities at the ends of the backend's native
	// order, or ErrNotFound on an empty collection.
	First(ctx context.Context, collection string) (any, error)
	Last(ctx context.Context, collection string) (any, error)

	// Clear removes every record of the collection.
	Clear(ctx context.Context, collection string) error

	// Query opens a deferred read scope on the collection.
	Query(collection string) (Query, error)

	// Command executes the destructive operation for a scope built by Query:
	// every record the scope matches is removed.
	Command(ctx context.Context, q Query) error

	// Transaction runs fn inside the backend's transactional semantics. An
	// error from fn rolls the unit of work back and is returned unchanged.
	Transaction(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error

	// Execute runs a raw statement against the backend.
	Execute(ctx context.Context, raw string, args ...any) error

	// Fetch runs a raw read statement and returns the raw records.
	Fetch(ctx context.Context, raw string, args ...any) ([]mapper.Record, error)

	// ConnectionString reports the locator. Backends without a meaningful
	// locator fail with ErrNotSupported.
	ConnectionString() (string, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Disconnect releases every owned resource handle. It is terminal: any
	// later operation fails with ErrDisconnected, including Disconnect itself.
	Disconnect() error
}
