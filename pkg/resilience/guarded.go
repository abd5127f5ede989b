package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/mapper"
)

// Options configures the guarded adapter.
type Options struct {
	// MaxFailures opens the circuit after this many consecutive failures.
	// Zero defaults to 5.
	MaxFailures int
	// Cooldown is how long the circuit stays open before probing. Zero
	// defaults to 30 seconds.
	Cooldown time.Duration
	// OperationTimeout caps every guarded call. Zero disables the cap.
	OperationTimeout time.Duration
}

// Guarded decorates an adapter with a circuit breaker and an optional
// per-operation timeout. While the circuit is open every backend-reaching
// operation fails fast with ErrCircuitOpen.
type Guarded struct {
	next    adapter.Adapter
	breaker *CircuitBreaker
	timeout time.Duration
}

var _ adapter.Adapter = (*Guarded)(nil)

// Wrap decorates next.
func Wrap(next adapter.Adapter, opts Options) *Guarded {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	return &Guarded{
		next:    next,
		breaker: NewCircuitBreaker(opts.MaxFailures, opts.Cooldown),
		timeout: opts.OperationTimeout,
	}
}

// Unwrap returns the decorated adapter.
func (g *Guarded) Unwrap() adapter.Adapter { return g.next }

// Breaker exposes the circuit breaker for inspection.
func (g *Guarded) Breaker() *CircuitBreaker { return g.breaker }

func (g *Guarded) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var opErr error
	err := g.breaker.Execute(func() error {
		opErr = WithTimeout(ctx, g.timeout, fn)
		if isDomainError(opErr) {
			// Contract-level outcomes are not backend failures and must
			// not trip the breaker.
			return nil
		}
		return opErr
	})
	if errors.Is(err, ErrCircuitOpen) {
		return err
	}
	return opErr
}

func isDomainError(err error) bool {
	return errors.Is(err, adapter.ErrNotFound) ||
		errors.Is(err, adapter.ErrNotSupported) ||
		errors.Is(err, adapter.ErrNotImplemented)
}

func (g *Guarded) Persist(ctx context.Context, collection string, entity any) (any, error) {
	var out any
	err := g.do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = g.next.Persist(ctx, collection, entity)
		return opErr
	})
	return out, err
}

func (g *Guarded) Create(ctx context.Context, collection string, entity any) (any, error) {
	var out any
	err := g.do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = g.next.Create(ctx, collection, entity)
		return opErr
	})
	return out, err
}

func (g *Guarded) Update(ctx context.Context, collection string, entity any) (any, error) {
	var out any
	err := g.do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = g.next.Update(ctx, collection, entity)
		return opErr
	})
	return out, err
}

func (g *Guarded) Delete(ctx context.Context, collection string, entity any) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.next.Delete(ctx, collection, entity)
	})
}

func (g *Guarded) All(ctx context.Context, collection string) ([]any, error) {
	var out []any
	err := g.do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = g.next.All(ctx, collection)
		return opErr
	})
	return out, err
}

func (g *Guarded) Find(ctx context.Context, collection string, id any) (any, error) {
	var out any
	err := g.do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = g.next.Find(ctx, collection, id)
		return opErr
	})
	return out, err
}

func (g *Guarded) First(ctx context.Context, collection string) (any, error) {
	var out any
	err := g.do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = g.next.First(ctx, collection)
		return opErr
	})
	return out, err
}

func (g *Guarded) Last(ctx context.Context, collection string) (any, error) {
	var out any
	err := g.do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = g.next.Last(ctx, collection)
		return opErr
	})
	return out, err
}

func (g *Guarded) Clear(ctx context.Context, collection string) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.next.Clear(ctx, collection)
	})
}

// Query builds the scope on the decorated adapter; the breaker engages
// when the scope reaches the backend through Command on the guard.
func (g *Guarded) Query(collection string) (adapter.Query, error) {
	return g.next.Query(collection)
}

func (g *Guarded) Command(ctx context.Context, q adapter.Query) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.next.Command(ctx, q)
	})
}

func (g *Guarded) Transaction(ctx context.Context, opts adapter.TxOptions, fn func(ctx context.Context) error) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.next.Transaction(ctx, opts, fn)
	})
}

func (g *Guarded) Execute(ctx context.Context, raw string, args ...any) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.next.Execute(ctx, raw, args...)
	})
}

func (g *Guarded) Fetch(ctx context.Context, raw string, args ...any) ([]mapper.Record, error) {
	var out []mapper.Record
	err := g.do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = g.next.Fetch(ctx, raw, args...)
		return opErr
	})
	return out, err
}

func (g *Guarded) ConnectionString() (string, error) {
	return g.next.ConnectionString()
}

func (g *Guarded) HealthCheck(ctx context.Context) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.next.HealthCheck(ctx)
	})
}

// Disconnect bypasses the breaker so teardown always reaches the adapter.
func (g *Guarded) Disconnect() error {
	return g.next.Disconnect()
}
