// Package instrument decorates a storage adapter with Prometheus metrics.
package instrument

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stratadb/strata/pkg/adapter"
	"github.com/stratadb/strata/pkg/mapper"
)

// Metrics holds the adapter instrumentation collectors.
type Metrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the adapter collectors on reg under the given
// namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_operations_total",
				Help:      "Total number of adapter operations",
			},
			[]string{"adapter", "operation"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_operation_errors_total",
				Help:      "Total number of failed adapter operations",
			},
			[]string{"adapter", "operation"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "adapter_operation_duration_seconds",
				Help:      "Adapter operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"adapter", "operation"},
		),
	}
}

// Instrumented wraps an adapter and records a counter, an error counter
// and a duration observation per operation. The adapter label is the
// wrapped adapter's derived name.
type Instrumented struct {
	next    adapter.Adapter
	name    string
	metrics *Metrics
}

var _ adapter.Adapter = (*Instrumented)(nil)

// Wrap decorates next with the given metrics.
func Wrap(next adapter.Adapter, metrics *Metrics) *Instrumented {
	return &Instrumented{next: next, name: adapter.Name(next), metrics: metrics}
}

// Unwrap returns the decorated adapter.
func (i *Instrumented) Unwrap() adapter.Adapter { return i.next }

func (i *Instrumented) observe(operation string, start time.Time, err error) {
	i.metrics.operations.WithLabelValues(i.name, operation).Inc()
	i.metrics.duration.WithLabelValues(i.name, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		i.metrics.errors.WithLabelValues(i.name, operation).Inc()
	}
}

func (i *Instrumented) Persist(ctx context.Context, collection string, entity any) (any, error) {
	start := time.Now()
	out, err := i.next.Persist(ctx, collection, entity)
	i.observe("persist", start, err)
	return out, err
}

func (i *Instrumented) Create(ctx context.Context, collection string, entity any) (any, error) {
	start := time.Now()
	out, err := i.next.Create(ctx, collection, entity)
	i.observe("create", start, err)
	return out, err
}

func (i *Instrumented) Update(ctx context.Context, collection string, entity any) (any, error) {
	start := time.Now()
	out, err := i.next.Update(ctx, collection, entity)
	i.observe("update", start, err)
	return out, err
}

func (i *Instrumented) Delete(ctx context.Context, collection string, entity any) error {
	start := time.Now()
	err := i.next.Delete(ctx, collection, entity)
	i.observe("delete", start, err)
	return err
}

func (i *Instrumented) All(ctx context.Context, collection string) ([]any, error) {
	start := time.Now()
	out, err := i.next.All(ctx, collection)
	i.observe("all", start, err)
	return out, err
}

func (i *Instrumented) Find(ctx context.Context, collection string, id any) (any, error) {
	start := time.Now()
	out, err := i.next.Find(ctx, collection, id)
	i.observe("find", start, err)
	return out, err
}

func (i *Instrumented) First(ctx context.Context, collection string) (any, error) {
	start := time.Now()
	out, err := i.next.First(ctx, collection)
	i.observe("first", start, err)
	return out, err
}

func (i *Instrumented) Last(ctx context.Context, collection string) (any, error) {
	start := time.Now()
	out, err := i.next.Last(ctx, collection)
	i.observe("last", start, err)
	return out, err
}

func (i *Instrumented) Clear(ctx context.Context, collection string) error {
	start := time.Now()
	err := i.next.Clear(ctx, collection)
	i.observe("clear", start, err)
	return err
}

// Query is delegated unwrapped: the scope records metrics only when it
// reaches the backend through Run or Count on the wrapped adapter.
func (i *Instrumented) Query(collection string) (adapter.Query, error) {
	return i.next.Query(collection)
}

func (i *Instrumented) Command(ctx context.Context, q adapter.Query) error {
	start := time.Now()
	err := i.next.Command(ctx, q)
	i.observe("command", start, err)
	return err
}

func (i *Instrumented) Transaction(ctx context.Context, opts adapter.TxOptions, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := i.next.Transaction(ctx, opts, fn)
	i.observe("transaction", start, err)
	return err
}

func (i *Instrumented) Execute(ctx context.Context, raw string, args ...any) error {
	start := time.Now()
	err := i.next.Execute(ctx, raw, args...)
	i.observe("execute", start, err)
	return err
}

func (i *Instrumented) Fetch(ctx context.Context, raw string, args ...any) ([]mapper.Record, error) {
	start := time.Now()
	out, err := i.next.Fetch(ctx, raw, args...)
	i.observe("fetch", start, err)
	return out, err
}

func (i *Instrumented) ConnectionString() (string, error) {
	return i.next.ConnectionString()
}

func (i *Instrumented) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := i.next.HealthCheck(ctx)
	i.observe("health_check", start, err)
	return err
}

func (i *Instrumented) Disconnect() error {
	start := time.Now()
	err := i.next.Disconnect()
	i.observe("disconnect", start, err)
	return err
}
