package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/adapter/memory"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

type user struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Age   float64 `json:"age"`
	Email string  `json:"email,omitempty"`
}

func newUserRepository(t *testing.T) *AdapterRepository[user] {
	t.Helper()
	m := mapper.NewEntityMapper()
	err := m.Register(mapper.Collection{
		Name:      "users",
		NewEntity: func() any { return &user{} },
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	a, err := memory.New(memory.Config{URI: "memory://localhost"}, m, logger.Nop())
	if err != nil {
		t.Fatalf("memory.New error: %v", err)
	}
	return New[user](a, "users")
}

func seedUsers(t *testing.T, r *AdapterRepository[user]) {
	t.Helper()
	for _, u := range []user{
		{ID: "u1", Name: "ada", Age: 36},
		{ID: "u2", Name: "grace", Age: 45},
		{ID: "u3", Name: "barbara", Age: 36},
	} {
		if _, err := r.Create(context.Background(), &u); err != nil {
			t.Fatalf("Create %s error: %v", u.ID, err)
		}
	}
}

func TestSave_AssignsIdentity(t *testing.T) {
	ctx := context.Background()
	r := newUserRepository(t)

	saved, err := r.Save(ctx, &user{Name: "ada"})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected Save to assign an identity")
	}

	found, err := r.FindByID(ctx, saved.ID)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if found.Name != "ada" {
		t.Errorf("found = %+v", found)
	}
}

func TestCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	r := newUserRepository(t)

	created, err := r.Create(ctx, &user{ID: "u1", Name: "ada"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := r.Create(ctx, created); err == nil {
		t.Error("expected duplicate create to fail")
	}

	created.Name = "lovelace"
	updated, err := r.Update(ctx, created)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Name != "lovelace" {
		t.Errorf("updated = %+v", updated)
	}

	if err := r.Delete(ctx, updated); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := r.FindByID(ctx, "u1"); !errors.Is(err, adapter.ErrNotFound) {
		t.Fatalf("FindByID after delete = %v, want ErrNotFound", err)
	}
}

func TestFindAll_FilterSortPaginate(t *testing.T) {
	ctx := context.Background()
	r := newUserRepository(t)
	seedUsers(t, r)

	all, err := r.FindAll(ctx, QueryOptions{})
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}

	young, err := r.FindAll(ctx, QueryOptions{
		Filter: Filter{"age": 36},
		Sort:   Sort{Field: "name", Order: SortDesc},
	})
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if len(young) != 2 || young[0].Name != "barbara" || young[1].Name != "ada" {
		t.Errorf("young = %+v", young)
	}

	page, err := r.FindAll(ctx, QueryOptions{
		Sort:       Sort{Field: "name", Order: SortAsc},
		Pagination: Pagination{Page: 2, PageSize: 2},
	})
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if len(page) != 1 || page[0].Name != "grace" {
		t.Errorf("page = %+v", page)
	}
}

func TestFirstLastCount(t *testing.T) {
	ctx := context.Background()
	r := newUserRepository(t)
	seedUsers(t, r)

	first, err := r.First(ctx)
	if err != nil {
		t.Fatalf("First error: %v", err)
	}
	if first.ID != "u1" {
		t.Errorf("First = %+v", first)
	}

	last, err := r.Last(ctx)
	if err != nil {
		t.Fatalf("Last error: %v", err)
	}
	if last.ID != "u3" {
		t.Errorf("Last = %+v", last)
	}

	n, err := r.Count(ctx, Filter{"age": 36})
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestDeleteWhereAndClear(t *testing.T) {
	ctx := context.Background()
	r := newUserRepository(t)
	seedUsers(t, r)

	if err := r.DeleteWhere(ctx, Filter{"age": 36}); err != nil {
		t.Fatalf("DeleteWhere error: %v", err)
	}
	n, err := r.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count after DeleteWhere = %d, want 1", n)
	}

	if err := r.Clear(ctx); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if _, err := r.First(ctx); !errors.Is(err, adapter.ErrNotFound) {
		t.Fatalf("First after Clear = %v, want ErrNotFound", err)
	}
}

func TestTransaction_RollsBack(t *testing.T) {
	ctx := context.Background()
	r := newUserRepository(t)
	seedUsers(t, r)

	boom := errors.New("boom")
	err := r.Transaction(ctx, adapter.TxOptions{}, func(txCtx context.Context) error {
		if err := r.Clear(txCtx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction = %v, want boom", err)
	}

	n, err := r.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 3 {
		t.Errorf("Count after rollback = %d, want 3", n)
	}
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		p          Pagination
		wantOffset int
		wantLimit  int
	}{
		{"first page", Pagination{Page: 1, PageSize: 10}, 0, 10},
		{"third page", Pagination{Page: 3, PageSize: 25}, 50, 25},
		{"zero page treated as first", Pagination{Page: 0, PageSize: 10}, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Offset(); got != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", got, tt.wantOffset)
			}
			if got := tt.p.Limit(); got != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", got, tt.wantLimit)
			}
		})
	}
}
