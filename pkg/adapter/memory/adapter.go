// Package memory implements the persistence contract on process memory.
// Collections keep insertion order, so First and Last are deterministic.
// The adapter is safe for concurrent use; transactions serialize against a
// snapshot and are not isolated from other goroutines.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

// Config holds memory adapter configuration. The locator has no backend to
// reach but is still required, so a half-configured adapter fails fast.
type Config struct {
	URI string
}

// MemoryAdapter keeps every collection in process memory.
type MemoryAdapter struct {
	config Config
	mapper mapper.Mapper
	logger logger.Logger

	mu    sync.Mutex
	store store // swapped for the disconnected variant by Disconnect
}

var _ adapter.Adapter = (*MemoryAdapter)(nil)

// New creates a memory adapter.
func New(cfg Config, m mapper.Mapper, log logger.Logger) (*MemoryAdapter, error) {
	a := &MemoryAdapter{config: cfg, mapper: m, logger: log}
	if err := adapter.CheckURI(a, cfg.URI); err != nil {
		return nil, err
	}
	a.store = newLiveStore()
	log.Info("memory store initialized")
	return a, nil
}

// Persist creates the entity when it has no identity yet, otherwise writes it
// under its identity whether or not a record existed.
func (a *MemoryAdapter) Persist(ctx context.Context, collection string, entity any) (any, error) {
	rec, err := a.mapper.Serialize(collection, entity)
	if err != nil {
		return nil, err
	}

	var out mapper.Record
	err = a.withCollection(collection, func(c *collectionData, col mapper.Collection) error {
		id, ok := col.IdentityOf(rec)
		if !ok {
			id = uuid.NewString()
			col.SetIdentity(rec, id)
		}
		c.upsert(id, rec.Clone())
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.mapper.Deserialize(collection, out)
}

// Create inserts the entity, assigning a fresh identity when it has none.
func (a *MemoryAdapter) Create(ctx context.Context, collection string, entity any) (any, error) {
	rec, err := a.mapper.Serialize(collection, entity)
	if err != nil {
		return nil, err
	}

	var out mapper.Record
	err = a.withCollection(collection, func(c *collectionData, col mapper.Collection) error {
		id, ok := col.IdentityOf(rec)
		if !ok {
			id = uuid.NewString()
			col.SetIdentity(rec, id)
		}
		if err := c.insert(id, rec.Clone()); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.mapper.Deserialize(collection, out)
}

// Update replaces the record carrying the entity's identity.
func (a *MemoryAdapter) Update(ctx context.Context, collection string, entity any) (any, error) {
	rec, err := a.mapper.Serialize(collection, entity)
	if err != nil {
		return nil, err
	}

	var out mapper.Record
	err = a.withCollection(collection, func(c *collectionData, col mapper.Collection) error {
		id, ok := col.IdentityOf(rec)
		if !ok {
			return fmt.Errorf("%w: entity has no identity", adapter.ErrNotFound)
		}
		if err := c.replace(id, rec.Clone()); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.mapper.Deserialize(collection, out)
}

// Delete removes the record carrying the entity's identity.
func (a *MemoryAdapter) Delete(ctx context.Context, collection string, entity any) error {
	rec, err := a.mapper.Serialize(collection, entity)
	if err != nil {
		return err
	}
	return a.withCollection(collection, func(c *collectionData, col mapper.Collection) error {
		id, ok := col.IdentityOf(rec)
		if !ok {
			return fmt.Errorf("%w: entity has no identity", adapter.ErrNotFound)
		}
		return c.remove(id)
	})
}

// All returns every entity of the collection in insertion order.
func (a *MemoryAdapter) All(ctx context.Context, collection string) ([]any, error) {
	recs, err := a.collectRecords(collection)
	if err != nil {
		return nil, err
	}
	return a.deserializeAll(collection, recs)
}

// Find returns the entity with the given identity.
func (a *MemoryAdapter) Find(ctx context.Context, collection string, id any) (any, error) {
	key := identityKey(id)

	var out mapper.Record
	err := a.withCollection(collection, func(c *collectionData, col mapper.Collection) error {
		rec, ok := c.get(key)
		if !ok {
			return fmt.Errorf("%w: %s %q", adapter.ErrNotFound, collection, key)
		}
		out = rec.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.mapper.Deserialize(collection, out)
}

// First returns the oldest entity of the collection.
func (a *MemoryAdapter) First(ctx context.Context, collection string) (any, error) {
	return a.edge(collection, false)
}

// Last returns the newest entity of the collection.
func (a *MemoryAdapter) Last(ctx context.Context, collection string) (any, error) {
	return a.edge(collection, true)
}

func (a *MemoryAdapter) edge(collection string, last bool) (any, error) {
	var out mapper.Record
	err := a.withCollection(collection, func(c *collectionData, col mapper.Collection) error {
		if len(c.records) == 0 {
			return fmt.Errorf("%w: %s is empty", adapter.ErrNotFound, collection)
		}
		if last {
			out = c.records[len(c.records)-1].Clone()
		} else {
			out = c.records[0].Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.mapper.Deserialize(collection, out)
}

// Clear removes every record of the collection.
func (a *MemoryAdapter) Clear(ctx context.Context, collection string) error {
	return a.withCollection(collection, func(c *collectionData, col mapper.Collection) error {
		c.reset()
		return nil
	})
}

// Query opens a deferred read scope on the collection.
func (a *MemoryAdapter) Query(collection string) (adapter.Query, error) {
	return &Query{a: a, scope: adapter.NewScope(collection)}, nil
}

// Command removes every record matched by the scope.
func (a *MemoryAdapter) Command(ctx context.Context, q adapter.Query) error {
	mq, ok := q.(*Query)
	if !ok || mq.a != a {
		return fmt.Errorf("command: query %T does not belong to this memory adapter", q)
	}
	return a.withCollection(mq.scope.Coll, func(c *collectionData, col mapper.Collection) error {
		c.removeMatching(func(rec mapper.Record) bool { return mq.scope.Matches(rec) })
		return nil
	})
}

// Transaction snapshots the store, runs fn, and restores the snapshot when fn
// fails. With ReadOnly set, changes made inside fn are discarded either way.
func (a *MemoryAdapter) Transaction(ctx context.Context, opts adapter.TxOptions, fn func(ctx context.Context) error) error {
	a.mu.Lock()
	snap, err := a.store.snapshot()
	a.mu.Unlock()
	if err != nil {
		return err
	}

	fnErr := fn(ctx)
	if fnErr != nil || opts.ReadOnly {
		a.mu.Lock()
		if _, live := a.store.(*liveStore); live {
			a.store = snap
		}
		a.mu.Unlock()
	}
	return fnErr
}

// Execute is not supported: memory has no raw statement language.
func (a *MemoryAdapter) Execute(ctx context.Context, raw string, args ...any) error {
	return adapter.NotSupported("execute")
}

// Fetch is not supported: memory has no raw statement language.
func (a *MemoryAdapter) Fetch(ctx context.Context, raw string, args ...any) ([]mapper.Record, error) {
	return nil, adapter.NotSupported("fetch")
}

// ConnectionString is not supported: the memory locator identifies nothing
// reachable.
func (a *MemoryAdapter) ConnectionString() (string, error) {
	return "", adapter.NotSupported("connection_string")
}

// HealthCheck verifies the store handle is still live.
func (a *MemoryAdapter) HealthCheck(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.ping(); err != nil {
		return fmt.Errorf("memory health check failed: %w", err)
	}
	return nil
}

// Disconnect releases the store, installing the disconnected sentinel in its
// place. Terminal: every later call, Disconnect included, fails with
// ErrDisconnected.
func (a *MemoryAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.release(); err != nil {
		return err
	}
	a.store = disconnectedStore{}
	a.logger.Info("memory store released")
	return nil
}

// withCollection runs fn with the named collection under the store lock.
func (a *MemoryAdapter) withCollection(name string, fn func(c *collectionData, col mapper.Collection) error) error {
	col, err := a.mapper.Collection(name)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, err := a.store.collection(name, col.Identity)
	if err != nil {
		return err
	}
	return fn(c, col)
}

// collectRecords copies the collection's records out of the lock.
func (a *MemoryAdapter) collectRecords(name string) ([]mapper.Record, error) {
	var out []mapper.Record
	err := a.withCollection(name, func(c *collectionData, col mapper.Collection) error {
		out = make([]mapper.Record, 0, len(c.records))
		for _, rec := range c.records {
			out = append(out, rec.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *MemoryAdapter) deserializeAll(collection string, recs []mapper.Record) ([]any, error) {
	out := make([]any, 0, len(recs))
	for _, rec := range recs {
		entity, err := a.mapper.Deserialize(collection, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func identityKey(id any) string {
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id)
}
