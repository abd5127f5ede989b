package adapter

import (
	"fmt"
	"sort"

	"github.com/stratadb/strata/pkg/mapper"
)

// Condition is one field equality constraint of a scope.
type Condition struct {
	Field string
	Value any
}

// Scope is the portable state of a Query: conditions, ordering, windowing.
// Backends with a native query language translate it; the others evaluate it
// in process with Apply.
type Scope struct {
	Coll       string
	Conditions []Condition
	SortField  string
	SortOrder  SortOrder
	LimitN     int // negative means unlimited
	OffsetN    int
}

// NewScope creates an unconstrained scope over a collection.
func NewScope(collection string) Scope {
	return Scope{Coll: collection, LimitN: -1}
}

// Where adds a field equality condition. Conditions combine with AND.
func (s *Scope) Where(field string, value any) {
	s.Conditions = append(s.Conditions, Condition{Field: field, Value: value})
}

// OrderBy sets the scope ordering.
func (s *Scope) OrderBy(field string, order SortOrder) {
	s.SortField = field
	s.SortOrder = order
}

// Limit caps the number of matched records.
func (s *Scope) Limit(n int) {
	s.LimitN = n
}

// Offset skips the first n matched records.
func (s *Scope) Offset(n int) {
	s.OffsetN = n
}

// Matches reports whether rec satisfies every condition.
func (s *Scope) Matches(rec mapper.Record) bool {
	for _, c := range s.Conditions {
		v, ok := rec[c.Field]
		if !ok || !looseEqual(v, c.Value) {
			return false
		}
	}
	return true
}

// Apply evaluates the scope in process: filter, sort, then window. The input
// slice is not modified.
func (s *Scope) Apply(recs []mapper.Record) []mapper.Record {
	matched := make([]mapper.Record, 0, len(recs))
	for _, rec := range recs {
		if s.Matches(rec) {
			matched = append(matched, rec)
		}
	}

	if s.SortField != "" {
		field := s.SortField
		desc := s.SortOrder == SortDesc
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][field], matched[j][field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if s.OffsetN > 0 {
		if s.OffsetN >= len(matched) {
			return nil
		}
		matched = matched[s.OffsetN:]
	}
	if s.LimitN >= 0 && s.LimitN < len(matched) {
		matched = matched[:s.LimitN]
	}
	return matched
}

// looseEqual compares two record values across the numeric widening JSON
// decoding introduces (every number becomes float64).
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if as, ok := a.(string); ok {
		bs, bok := b.(string)
		return bok && as == bs
	}
	if ab, ok := a.(bool); ok {
		bb, bok := b.(bool)
		return bok && ab == bb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues orders two record values: numbers numerically, everything
// else by string form. Nil sorts first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
