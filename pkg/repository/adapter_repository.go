package repository

import (
	"context"
	"fmt"

	"github.com/stratadb/strata/pkg/adapter"
)

// AdapterRepository implements Repository over a storage adapter. The
// collection must be registered with the adapter's mapper and deserialize
// to *T.
type AdapterRepository[T any] struct {
	adapter    adapter.Adapter
	collection string
}

var _ Repository[struct{}] = (*AdapterRepository[struct{}])(nil)

// New creates a typed repository for one collection.
func New[T any](a adapter.Adapter, collection string) *AdapterRepository[T] {
	return &AdapterRepository[T]{adapter: a, collection: collection}
}

// Collection returns the backing collection name.
func (r *AdapterRepository[T]) Collection() string { return r.collection }

// Save creates or updates the entity depending on whether it carries an
// identity.
func (r *AdapterRepository[T]) Save(ctx context.Context, entity *T) (*T, error) {
	out, err := r.adapter.Persist(ctx, r.collection, entity)
	if err != nil {
		return nil, err
	}
	return r.typed(out)
}

// Create inserts the entity.
func (r *AdapterRepository[T]) Create(ctx context.Context, entity *T) (*T, error) {
	out, err := r.adapter.Create(ctx, r.collection, entity)
	if err != nil {
		return nil, err
	}
	return r.typed(out)
}

// Update replaces the stored entity with the same identity.
func (r *AdapterRepository[T]) Update(ctx context.Context, entity *T) (*T, error) {
	out, err := r.adapter.Update(ctx, r.collection, entity)
	if err != nil {
		return nil, err
	}
	return r.typed(out)
}

// Delete removes the stored entity with the same identity.
func (r *AdapterRepository[T]) Delete(ctx context.Context, entity *T) error {
	return r.adapter.Delete(ctx, r.collection, entity)
}

// DeleteWhere removes every entity matching the filter.
func (r *AdapterRepository[T]) DeleteWhere(ctx context.Context, filter Filter) error {
	q, err := r.adapter.Query(r.collection)
	if err != nil {
		return err
	}
	for field, value := range filter {
		q = q.Where(field, value)
	}
	return r.adapter.Command(ctx, q)
}

// Clear removes every entity of the collection.
func (r *AdapterRepository[T]) Clear(ctx context.Context) error {
	return r.adapter.Clear(ctx, r.collection)
}

// FindByID retrieves an entity by its identity.
func (r *AdapterRepository[T]) FindByID(ctx context.Context, id any) (*T, error) {
	out, err := r.adapter.Find(ctx, r.collection, id)
	if err != nil {
		return nil, err
	}
	return r.typed(out)
}

// FindAll retrieves entities matching the query options. Returns an empty
// slice if no entities match.
func (r *AdapterRepository[T]) FindAll(ctx context.Context, opts QueryOptions) ([]*T, error) {
	q, err := r.adapter.Query(r.collection)
	if err != nil {
		return nil, err
	}
	for field, value := range opts.Filter {
		q = q.Where(field, value)
	}
	if opts.Sort.Field != "" {
		order := adapter.SortAsc
		if opts.Sort.Order == SortDesc {
			order = adapter.SortDesc
		}
		q = q.OrderBy(opts.Sort.Field, order)
	}
	if opts.Pagination.PageSize > 0 {
		q = q.Limit(opts.Pagination.Limit()).Offset(opts.Pagination.Offset())
	}

	results, err := q.Run(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(results))
	for _, res := range results {
		entity, err := r.typed(res)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

// First retrieves the entity with the smallest identity.
func (r *AdapterRepository[T]) First(ctx context.Context) (*T, error) {
	out, err := r.adapter.First(ctx, r.collection)
	if err != nil {
		return nil, err
	}
	return r.typed(out)
}

// Last retrieves the entity with the largest identity.
func (r *AdapterRepository[T]) Last(ctx context.Context) (*T, error) {
	out, err := r.adapter.Last(ctx, r.collection)
	if err != nil {
		return nil, err
	}
	return r.typed(out)
}

// Count returns the number of entities matching the filter.
func (r *AdapterRepository[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	q, err := r.adapter.Query(r.collection)
	if err != nil {
		return 0, err
	}
	for field, value := range filter {
		q = q.Where(field, value)
	}
	return q.Count(ctx)
}

// Transaction runs fn atomically when the backing adapter supports
// transactions.
func (r *AdapterRepository[T]) Transaction(ctx context.Context, opts adapter.TxOptions, fn func(ctx context.Context) error) error {
	return r.adapter.Transaction(ctx, opts, fn)
}

func (r *AdapterRepository[T]) typed(v any) (*T, error) {
	entity, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("collection %s deserialized to %T, want %T", r.collection, v, (*T)(nil))
	}
	return entity, nil
}
