package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stratadb/strata/pkg/adapter/memory"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

func memoryAdapter(t *testing.T) *memory.MemoryAdapter {
	t.Helper()
	a, err := memory.New(memory.Config{URI: "memory://localhost"}, mapper.NewEntityMapper(), logger.Nop())
	if err != nil {
		t.Fatalf("memory.New error: %v", err)
	}
	return a
}

func TestAdapterChecker(t *testing.T) {
	ctx := context.Background()
	a := memoryAdapter(t)

	checker := NewAdapterChecker("", a, 0)
	if checker.Name() != "memory" {
		t.Errorf("Name = %q, want %q", checker.Name(), "memory")
	}

	result := checker.Check(ctx)
	if result.Status != StatusHealthy {
		t.Fatalf("Status = %q, want healthy (error: %s)", result.Status, result.Error)
	}
	if result.Timestamp.IsZero() {
		t.Error("Timestamp must be set")
	}
}

func TestAdapterChecker_Unhealthy(t *testing.T) {
	ctx := context.Background()
	a := memoryAdapter(t)
	if err := a.Disconnect(); err != nil {
		t.Fatalf("Disconnect error: %v", err)
	}

	result := NewAdapterChecker("primary", a, time.Second).Check(ctx)
	if result.Status != StatusUnhealthy {
		t.Fatalf("Status = %q, want unhealthy", result.Status)
	}
	if result.Error == "" {
		t.Error("Error must carry the failure cause")
	}
	if result.Name != "primary" {
		t.Errorf("Name = %q", result.Name)
	}
}

func TestRegistry_Check(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	reg.Register(NewAdapterChecker("db", memoryAdapter(t), time.Second))
	reg.Register(NewCheckerFunc("self", func(context.Context) error { return nil }))

	agg := reg.Check(ctx)
	if !agg.IsHealthy() {
		t.Fatalf("aggregated status = %q, want healthy", agg.Status)
	}
	if len(agg.Checks) != 2 {
		t.Fatalf("len(Checks) = %d, want 2", len(agg.Checks))
	}
}

func TestRegistry_OneFailureTurnsUnhealthy(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	reg.Register(NewCheckerFunc("ok", func(context.Context) error { return nil }))
	reg.Register(NewCheckerFunc("broken", func(context.Context) error { return errors.New("down") }))

	agg := reg.Check(ctx)
	if agg.IsHealthy() {
		t.Fatal("expected aggregated status to be unhealthy")
	}
}

func TestRegistry_CheckOne(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	reg.Register(NewCheckerFunc("self", func(context.Context) error { return nil }))

	result, err := reg.CheckOne(ctx, "self")
	if err != nil {
		t.Fatalf("CheckOne error: %v", err)
	}
	if result.Status != StatusHealthy {
		t.Errorf("Status = %q", result.Status)
	}

	if _, err := reg.CheckOne(ctx, "ghost"); err == nil {
		t.Fatal("expected error for unknown check")
	}
}

func TestRegistry_RegisterReplacesAndUnregister(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	reg.Register(NewCheckerFunc("db", func(context.Context) error { return errors.New("down") }))
	reg.Register(NewCheckerFunc("db", func(context.Context) error { return nil }))

	if agg := reg.Check(ctx); !agg.IsHealthy() {
		t.Fatal("replacement checker should have taken over")
	}
	if got := len(reg.List()); got != 1 {
		t.Fatalf("len(List) = %d, want 1", got)
	}

	reg.Unregister("db")
	if got := len(reg.List()); got != 0 {
		t.Fatalf("len(List) after Unregister = %d, want 0", got)
	}
}
