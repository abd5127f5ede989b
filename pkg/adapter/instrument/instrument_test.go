package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/adapter/memory"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

func wrappedMemory(t *testing.T) (*Instrumented, *Metrics) {
	t.Helper()
	m := mapper.NewEntityMapper()
	if err := m.Register(mapper.Collection{Name: "users"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	a, err := memory.New(memory.Config{URI: "memory://localhost"}, m, logger.Nop())
	if err != nil {
		t.Fatalf("memory.New error: %v", err)
	}
	metrics := NewMetrics(prometheus.NewRegistry(), "strata_test")
	return Wrap(a, metrics), metrics
}

func TestWrap_CountsOperations(t *testing.T) {
	ctx := context.Background()
	a, metrics := wrappedMemory(t)

	if _, err := a.Persist(ctx, "users", mapper.Record{"id": "u1", "name": "ada"}); err != nil {
		t.Fatalf("Persist error: %v", err)
	}
	if _, err := a.Find(ctx, "users", "u1"); err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if _, err := a.Find(ctx, "users", "ghost"); !errors.Is(err, adapter.ErrNotFound) {
		t.Fatalf("Find ghost = %v, want ErrNotFound", err)
	}

	persists := promtest.ToFloat64(metrics.operations.WithLabelValues("memory", "persist"))
	if persists != 1 {
		t.Errorf("persist operations = %v, want 1", persists)
	}
	finds := promtest.ToFloat64(metrics.operations.WithLabelValues("memory", "find"))
	if finds != 2 {
		t.Errorf("find operations = %v, want 2", finds)
	}
	findErrors := promtest.ToFloat64(metrics.errors.WithLabelValues("memory", "find"))
	if findErrors != 1 {
		t.Errorf("find errors = %v, want 1", findErrors)
	}
	persistErrors := promtest.ToFloat64(metrics.errors.WithLabelValues("memory", "persist"))
	if persistErrors != 0 {
		t.Errorf("persist errors = %v, want 0", persistErrors)
	}
}

func TestWrap_AdapterLabel(t *testing.T) {
	a, _ := wrappedMemory(t)
	if a.name != "memory" {
		t.Errorf("label = %q, want %q", a.name, "memory")
	}
}

func TestWrap_PreservesErrorIdentity(t *testing.T) {
	ctx := context.Background()
	a, metrics := wrappedMemory(t)

	if err := a.Disconnect(); err != nil {
		t.Fatalf("Disconnect error: %v", err)
	}
	if _, err := a.All(ctx, "users"); !errors.Is(err, adapter.ErrDisconnected) {
		t.Fatalf("All after disconnect = %v, want ErrDisconnected", err)
	}

	allErrors := promtest.ToFloat64(metrics.errors.WithLabelValues("memory", "all"))
	if allErrors != 1 {
		t.Errorf("all errors = %v, want 1", allErrors)
	}
}

func TestUnwrap(t *testing.T) {
	a, _ := wrappedMemory(t)
	if _, ok := a.Unwrap().(*memory.MemoryAdapter); !ok {
		t.Errorf("Unwrap = %T, want *memory.MemoryAdapter", a.Unwrap())
	}
}
