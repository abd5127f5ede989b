package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/stratadb/strata/pkg/adapter"
)

// Query is the SQL adapter's deferred read scope, translated to a SELECT at
// Run time.
type Query struct {
	a     *SQLAdapter
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

// Run executes the scope as a SELECT.
func (q *Query) Run(ctx context.Context) ([]any, error) {
	query, args := q.selectSQL()
	recs, err := q.a.fetchRecords(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return q.a.deserializeAll(q.scope.Coll, recs)
}

// Count executes the scope as a SELECT COUNT, ignoring ordering and
// windowing.
func (q *Query) Count(ctx context.Context) (int64, error) {
	where, args := q.a.whereClause(q.scope, 1)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.scope.Coll, where)

	rows, err := q.a.queryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to scan count: %w", err)
		}
	}
	return n, rows.Err()
}

func (q *Query) selectSQL() (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s", q.scope.Coll)

	where, args := q.a.whereClause(q.scope, 1)
	b.WriteString(where)

	if q.scope.SortField != "" {
		dir := "ASC"
		if q.scope.SortOrder == adapter.SortDesc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", q.scope.SortField, dir)
	}
	if q.scope.LimitN >= 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.scope.LimitN)
	} else if q.scope.OffsetN > 0 {
		// sqlite and MySQL reject OFFSET without LIMIT; only postgres
		// accepts the bare form.
		switch q.a.driver {
		case "sqlite":
			b.WriteString(" LIMIT -1")
		case "mysql":
			b.WriteString(" LIMIT 18446744073709551615")
		}
	}
	if q.scope.OffsetN > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.scope.OffsetN)
	}
	return b.String(), args
}
