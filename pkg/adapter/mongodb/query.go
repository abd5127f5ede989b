package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stratadb/strata/pkg/adapter"
)

// Query is the MongoDB adapter's deferred read scope, translated to a find
// at Run time.
type Query struct {
	a     *MongoDBAdapter
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

// Run executes the scope as a find.
func (q *Query) Run(ctx context.Context) ([]any, error) {
	return q.a.findMany(ctx, q.scope.Coll, scopeFilter(q.scope), scopeOptions(q.scope))
}

// Count counts the documents matching the conditions, ignoring ordering and
// windowing.
func (q *Query) Count(ctx context.Context) (int64, error) {
	mc, err := q.a.collection(q.scope.Coll)
	if err != nil {
		return 0, err
	}
	opCtx, cancel := q.a.withOperationTimeout(ctx)
	defer cancel()

	n, err := mc.CountDocuments(opCtx, scopeFilter(q.scope))
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func scopeFilter(s adapter.Scope) bson.M {
	filter := bson.M{}
	for _, c := range s.Conditions {
		filter[c.Field] = c.Value
	}
	return filter
}

func scopeOptions(s adapter.Scope) *options.FindOptions {
	opts := options.Find()
	if s.SortField != "" {
		dir := 1
		if s.SortOrder == adapter.SortDesc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: s.SortField, Value: dir}})
	}
	if s.LimitN >= 0 {
		opts.SetLimit(int64(s.LimitN))
	}
	if s.OffsetN > 0 {
		opts.SetSkip(int64(s.OffsetN))
	}
	return opts
}
