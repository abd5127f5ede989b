package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/adapter/memory"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/observability/logger"
)

func guardedMemory(t *testing.T, opts Options) *Guarded {
	t.Helper()
	m := mapper.NewEntityMapper()
	if err := m.Register(mapper.Collection{Name: "users"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	a, err := memory.New(memory.Config{URI: "memory://localhost"}, m, logger.Nop())
	if err != nil {
		t.Fatalf("memory.New error: %v", err)
	}
	return Wrap(a, opts)
}

func TestGuarded_PassesOperationsThrough(t *testing.T) {
	ctx := context.Background()
	g := guardedMemory(t, Options{})

	if _, err := g.Persist(ctx, "users", mapper.Record{"id": "u1", "name": "ada"}); err != nil {
		t.Fatalf("Persist error: %v", err)
	}
	found, err := g.Find(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if found.(mapper.Record)["name"] != "ada" {
		t.Errorf("found = %v", found)
	}
	if g.Breaker().State() != StateClosed {
		t.Errorf("State = %v, want closed", g.Breaker().State())
	}
}

func TestGuarded_DomainErrorsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	g := guardedMemory(t, Options{MaxFailures: 2})

	for i := 0; i < 5; i++ {
		if _, err := g.Find(ctx, "users", "ghost"); !errors.Is(err, adapter.ErrNotFound) {
			t.Fatalf("Find = %v, want ErrNotFound", err)
		}
	}
	if g.Breaker().State() != StateClosed {
		t.Fatalf("State = %v, missing records must not open the circuit", g.Breaker().State())
	}
}

func TestGuarded_BackendFailuresOpenCircuit(t *testing.T) {
	ctx := context.Background()
	g := guardedMemory(t, Options{MaxFailures: 2, Cooldown: time.Minute})

	if err := g.Disconnect(); err != nil {
		t.Fatalf("Disconnect error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := g.All(ctx, "users"); !errors.Is(err, adapter.ErrDisconnected) {
			t.Fatalf("All = %v, want ErrDisconnected", err)
		}
	}

	// The circuit is open now; calls fail fast without reaching the adapter.
	if _, err := g.All(ctx, "users"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("All = %v, want ErrCircuitOpen", err)
	}
}

func TestGuarded_OperationTimeout(t *testing.T) {
	ctx := context.Background()
	g := guardedMemory(t, Options{OperationTimeout: 10 * time.Millisecond})

	err := g.Transaction(ctx, adapter.TxOptions{}, func(txCtx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-txCtx.Done():
			return txCtx.Err()
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Transaction = %v, want ErrTimeout", err)
	}
}

func TestGuarded_DisconnectBypassesBreaker(t *testing.T) {
	ctx := context.Background()
	g := guardedMemory(t, Options{MaxFailures: 1, Cooldown: time.Minute})

	if err := g.Disconnect(); err != nil {
		t.Fatalf("Disconnect error: %v", err)
	}
	if _, err := g.All(ctx, "users"); !errors.Is(err, adapter.ErrDisconnected) {
		t.Fatalf("All = %v, want ErrDisconnected", err)
	}
	if _, err := g.All(ctx, "users"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("All = %v, want ErrCircuitOpen", err)
	}

	// Teardown still reaches the adapter while the circuit is open.
	if err := g.Disconnect(); !errors.Is(err, adapter.ErrDisconnected) {
		t.Fatalf("second Disconnect = %v, want ErrDisconnected", err)
	}
}

func TestGuarded_Unwrap(t *testing.T) {
	g := guardedMemory(t, Options{})
	if _, ok := g.Unwrap().(*memory.MemoryAdapter); !ok {
		t.Errorf("Unwrap = %T, want *memory.MemoryAdapter", g.Unwrap())
	}
}
