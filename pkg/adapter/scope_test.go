package adapter

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stratadb/strata/pkg/mapper"
)

func sampleRecords() []mapper.Record {
	return []mapper.Record{
		{"id": "1", "name": "ada", "age": float64(36), "active": true},
		{"id": "2", "name": "grace", "age": float64(45), "active": false},
		{"id": "3", "name": "alan", "age": float64(41), "active": true},
		{"id": "4", "name": "edsger", "age": float64(36), "active": false},
	}
}

func TestScope_Matches(t *testing.T) {
	tests := []struct {
		name       string
		conditions []Condition
		rec        mapper.Record
		want       bool
	}{
		{"no conditions", nil, mapper.Record{"id": "1"}, true},
		{"single match", []Condition{{"name", "ada"}}, sampleRecords()[0], true},
		{"single miss", []Condition{{"name", "ada"}}, sampleRecords()[1], false},
		{"and semantics", []Condition{{"active", true}, {"age", 36}}, sampleRecords()[0], true},
		{"and partial miss", []Condition{{"active", true}, {"age", 36}}, sampleRecords()[2], false},
		{"missing field", []Condition{{"email", "x"}}, sampleRecords()[0], false},
		{"numeric widening", []Condition{{"age", 41}}, sampleRecords()[2], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScope("users")
			s.Conditions = tt.conditions
			if got := s.Matches(tt.rec); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScope_ApplyFilterSortWindow(t *testing.T) {
	s := NewScope("users")
	s.OrderBy("age", SortAsc)

	got := s.Apply(sampleRecords())
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	// Stable sort keeps insertion order for the two age 36 records.
	wantIDs := []string{"1", "4", "3", "2"}
	for i, id := range wantIDs {
		if got[i]["id"] != id {
			t.Errorf("got[%d].id = %v, want %s", i, got[i]["id"], id)
		}
	}
}

func TestScope_ApplyDescending(t *testing.T) {
	s := NewScope("users")
	s.OrderBy("name", SortDesc)

	got := s.Apply(sampleRecords())
	wantNames := []string{"grace", "edsger", "alan", "ada"}
	for i, name := range wantNames {
		if got[i]["name"] != name {
			t.Errorf("got[%d].name = %v, want %s", i, got[i]["name"], name)
		}
	}
}

func TestScope_ApplyWindowing(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		offset  int
		wantLen int
	}{
		{"unlimited", -1, 0, 4},
		{"limit two", 2, 0, 2},
		{"limit zero", 0, 0, 0},
		{"offset one", -1, 1, 3},
		{"offset past end", -1, 10, 0},
		{"limit and offset", 2, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScope("users")
			s.Limit(tt.limit)
			s.Offset(tt.offset)
			if got := s.Apply(sampleRecords()); len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestScope_ApplyDoesNotModifyInput(t *testing.T) {
	recs := sampleRecords()
	s := NewScope("users")
	s.OrderBy("name", SortDesc)
	s.Apply(recs)

	if recs[0]["id"] != "1" || recs[3]["id"] != "4" {
		t.Error("Apply reordered the input slice")
	}
}

func TestProperty_ApplyWindowNeverExceedsLimit(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	genRecords := gen.SliceOf(gen.IntRange(0, 50).Map(func(n int) mapper.Record {
		return mapper.Record{"id": n, "n": float64(n % 7)}
	}))

	properties.Property("result length respects limit and offset", prop.ForAll(
		func(recs []mapper.Record, limit, offset int) bool {
			s := NewScope("items")
			s.Limit(limit)
			s.Offset(offset)
			got := s.Apply(recs)
			if limit >= 0 && len(got) > limit {
				return false
			}
			return len(got) <= len(recs)
		},
		genRecords,
		gen.IntRange(-1, 20),
		gen.IntRange(0, 20),
	))

	properties.Property("every result satisfies the conditions", prop.ForAll(
		func(recs []mapper.Record, want int) bool {
			s := NewScope("items")
			s.Where("n", float64(want))
			for _, rec := range s.Apply(recs) {
				if rec["n"] != float64(want) {
					return false
				}
			}
			return true
		},
		genRecords,
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}
