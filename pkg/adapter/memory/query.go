package memory

import (
	"context"

	"github.com/stratadb/strata/pkg/adapter"
)

// Query is the memory adapter's deferred read scope, evaluated in process.
type Query struct {
	a     *MemoryAdapter
	scope adapter.Scope
}

var _ adapter.Query = (*Query)(nil)

func (q *Query) Where(field string, value any) adapter.Query {
	q.scope.Where(field, value)
	return q
}

func (q *Query) OrderBy(field string, order adapter.SortOrder) adapter.Query {
	q.scope.OrderBy(field, order)
	return q
}

func (q *Query) Limit(n int) adapter.Query {
	q.scope.Limit(n)
	return q
}

func (q *Query) Offset(n int) adapter.Query {
	q.scope.Offset(n)
	return q
}

func (q *Query) Collection() string { return q.scope.Coll }

// Run evaluates the scope against a copy of the collection.
func (q *Query) Run(ctx context.Context) ([]any, error) {
	recs, err := q.a.collectRecords(q.scope.Coll)
	if err != nil {
		return nil, err
	}
	return q.a.deserializeAll(q.scope.Coll, q.scope.Apply(recs))
}

// Count returns the number of records matching the conditions, ignoring
// ordering and windowing.
func (q *Query) Count(ctx context.Context) (int64, error) {
	recs, err := q.a.collectRecords(q.scope.Coll)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, rec := range recs {
		if q.scope.Matches(rec) {
			n++
		}
	}
	return n, nil
}
